package mirror

import (
	"context"
	"fmt"
	"io"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/weiwangfds/linkdrop/config"
)

// AliyunProvider 阿里云OSS
type AliyunProvider struct {
	client *oss.Client
	bucket *oss.Bucket
	name   string
}

// NewAliyunProvider 创建阿里云OSS提供商实例
func NewAliyunProvider(cfg config.MirrorConfig) (*AliyunProvider, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://oss-%s.aliyuncs.com", cfg.Region)
	}

	client, err := oss.New(endpoint, cfg.AccessKey, cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create aliyun oss client: %w", err)
	}

	bucket, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket %s: %w", cfg.Bucket, err)
	}

	return &AliyunProvider{
		client: client,
		bucket: bucket,
		name:   cfg.Bucket,
	}, nil
}

func (p *AliyunProvider) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	options := []oss.Option{oss.WithContext(ctx)}
	if contentType != "" {
		options = append(options, oss.ContentType(contentType))
	}

	if err := p.bucket.PutObject(key, r, options...); err != nil {
		return fmt.Errorf("failed to upload object to aliyun oss: %w", err)
	}
	return nil
}

func (p *AliyunProvider) Delete(ctx context.Context, key string) error {
	if err := p.bucket.DeleteObject(key, oss.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to delete object from aliyun oss: %w", err)
	}
	return nil
}

func (p *AliyunProvider) Exists(ctx context.Context, key string) (bool, error) {
	exists, err := p.bucket.IsObjectExist(key, oss.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("failed to check object existence in aliyun oss: %w", err)
	}
	return exists, nil
}

func (p *AliyunProvider) TestConnection(ctx context.Context) error {
	if _, err := p.client.GetBucketInfo(p.name, oss.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to test aliyun oss connection: %w", err)
	}
	return nil
}
