// Package mirror 把本地文件异步复制到对象存储
// 支持阿里云OSS、腾讯云COS、七牛云Kodo，镜像失败不影响本地文件的可用性
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/weiwangfds/linkdrop/config"
)

// ErrUnsupportedProvider 不支持的对象存储提供商
var ErrUnsupportedProvider = errors.New("unsupported mirror provider")

// Provider 对象存储提供商接口
type Provider interface {
	// Upload 上传对象
	Upload(ctx context.Context, key string, r io.Reader, contentType string) error
	// Delete 删除对象
	Delete(ctx context.Context, key string) error
	// Exists 检查对象是否存在
	Exists(ctx context.Context, key string) (bool, error)
	// TestConnection 测试连接
	TestConnection(ctx context.Context) error
}

// NewProvider 根据配置创建对象存储提供商
func NewProvider(cfg config.MirrorConfig) (Provider, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case "aliyun":
		return NewAliyunProvider(cfg)
	case "tencent":
		return NewTencentProvider(cfg)
	case "qiniu":
		return NewQiniuProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}

// validate 校验提供商所需的必填字段
func validate(cfg config.MirrorConfig) error {
	switch cfg.Provider {
	case "aliyun", "tencent", "qiniu":
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
	if cfg.Bucket == "" {
		return errors.New("bucket name is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return errors.New("access key and secret key are required")
	}
	// 七牛通过 bucket 自动查询区域
	if cfg.Provider != "qiniu" && cfg.Region == "" && cfg.Endpoint == "" {
		return errors.New("region or endpoint is required")
	}
	return nil
}
