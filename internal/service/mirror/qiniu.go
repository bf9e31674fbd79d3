package mirror

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/qiniu/go-sdk/v7/auth/qbox"
	"github.com/qiniu/go-sdk/v7/storage"
	"github.com/weiwangfds/linkdrop/config"
)

// QiniuProvider 七牛云Kodo
type QiniuProvider struct {
	mac    *qbox.Mac
	bucket string
	region *storage.Region
}

// NewQiniuProvider 创建七牛云Kodo提供商实例，会联网查询 bucket 所在区域
func NewQiniuProvider(cfg config.MirrorConfig) (*QiniuProvider, error) {
	mac := qbox.NewMac(cfg.AccessKey, cfg.SecretKey)

	region, err := storage.GetRegion(cfg.AccessKey, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to get qiniu region: %w", err)
	}

	return &QiniuProvider{
		mac:    mac,
		bucket: cfg.Bucket,
		region: region,
	}, nil
}

func (p *QiniuProvider) bucketManager() *storage.BucketManager {
	return storage.NewBucketManager(p.mac, &storage.Config{
		Region: p.region,
	})
}

func (p *QiniuProvider) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	putPolicy := storage.PutPolicy{
		Scope: fmt.Sprintf("%s:%s", p.bucket, key),
	}
	upToken := putPolicy.UploadToken(p.mac)

	formUploader := storage.NewFormUploader(&storage.Config{
		Region:   p.region,
		UseHTTPS: true,
	})

	putExtra := storage.PutExtra{MimeType: contentType}
	ret := storage.PutRet{}
	if err := formUploader.Put(ctx, &ret, upToken, key, r, -1, &putExtra); err != nil {
		return fmt.Errorf("failed to upload object to qiniu kodo: %w", err)
	}
	return nil
}

// Delete 七牛的 BucketManager 不接受 context，ctx 仅用于提前放弃
func (p *QiniuProvider) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.bucketManager().Delete(p.bucket, key); err != nil {
		return fmt.Errorf("failed to delete object from qiniu kodo: %w", err)
	}
	return nil
}

func (p *QiniuProvider) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := p.bucketManager().Stat(p.bucket, key)
	if err != nil {
		if strings.Contains(err.Error(), "no such file or directory") {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence in qiniu kodo: %w", err)
	}
	return true, nil
}

func (p *QiniuProvider) TestConnection(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, _, _, _, err := p.bucketManager().ListFiles(p.bucket, "", "", "", 1); err != nil {
		return fmt.Errorf("failed to test qiniu kodo connection: %w", err)
	}
	return nil
}
