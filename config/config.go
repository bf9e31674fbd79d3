// Package config 负责加载应用配置
// 配置来源优先级：环境变量 > 配置文件 > 默认值，支持 .env 文件
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 LINKDROP_SERVER_PORT
const EnvPrefix = "LINKDROP"

// Config 应用配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	File      FileConfig      `mapstructure:"file"`
	Download  DownloadConfig  `mapstructure:"download"`
	Retention RetentionConfig `mapstructure:"retention"`
	Mirror    MirrorConfig    `mapstructure:"mirror"`
	Log       LogConfig       `mapstructure:"log"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // 秒
	WriteTimeout int    `mapstructure:"write_timeout"` // 秒
	EnableHTTPS  bool   `mapstructure:"enable_https"`
	EnableHTTP2  bool   `mapstructure:"enable_http2"`
	TLSCertFile  string `mapstructure:"tls_cert_file"`
	TLSKeyFile   string `mapstructure:"tls_key_file"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	DSN             string `mapstructure:"dsn"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	LogLevel        string `mapstructure:"log_level"`         // silent, error, warn, info
}

// FileConfig 文件存储配置
type FileConfig struct {
	// StoragePath 文件落盘的根目录
	StoragePath string `mapstructure:"storage_path"`
	// MaxUploadSize 单个上传的大小上限，支持 "100MB" 这种写法
	MaxUploadSize string `mapstructure:"max_upload_size"`
	// DownloadBaseURL 临时下载链接的前缀，令牌拼接在其后
	DownloadBaseURL string `mapstructure:"download_base_url"`
}

// MaxUploadBytes 解析 MaxUploadSize，为空或无法解析时返回0（不限制）
func (c FileConfig) MaxUploadBytes() int64 {
	if c.MaxUploadSize == "" {
		return 0
	}
	size, err := units.FromHumanSize(c.MaxUploadSize)
	if err != nil || size < 0 {
		return 0
	}
	return size
}

// DownloadConfig 下载行为配置
type DownloadConfig struct {
	// CountOnTransfer 为true时，下载接口在字节完整写出后自动累加下载次数；
	// 为false时由客户端显式调用 update-download-count 接口
	CountOnTransfer bool `mapstructure:"count_on_transfer"`
}

// RetentionConfig 过期文件回收配置
type RetentionConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ThresholdDays int    `mapstructure:"threshold_days"`
	RunAt         string `mapstructure:"run_at"` // HH:MM，本地时间
	RunOnStart    bool   `mapstructure:"run_on_start"`
}

// RunAtClock 解析 RunAt 为小时和分钟
func (c RetentionConfig) RunAtClock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", c.RunAt)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid retention.run_at %q: %w", c.RunAt, err)
	}
	return t.Hour(), t.Minute(), nil
}

// MirrorConfig 异地镜像（对象存储）配置
type MirrorConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Provider  string `mapstructure:"provider"` // aliyun, tencent, qiniu
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Endpoint  string `mapstructure:"endpoint"`
	Prefix    string `mapstructure:"prefix"`
	QueueSize int    `mapstructure:"queue_size"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// setDefaults 注册所有配置项的默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 60)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.enable_https", false)
	v.SetDefault("server.enable_http2", true)
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "data/linkdrop.db")
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 3600)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("file.storage_path", "uploads")
	v.SetDefault("file.max_upload_size", "100MB")
	v.SetDefault("file.download_base_url", "http://localhost:8080/api/v1/files/download")

	v.SetDefault("download.count_on_transfer", false)

	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.threshold_days", 30)
	v.SetDefault("retention.run_at", "02:00")
	v.SetDefault("retention.run_on_start", false)

	v.SetDefault("mirror.enabled", false)
	v.SetDefault("mirror.provider", "")
	v.SetDefault("mirror.region", "")
	v.SetDefault("mirror.bucket", "")
	v.SetDefault("mirror.access_key", "")
	v.SetDefault("mirror.secret_key", "")
	v.SetDefault("mirror.endpoint", "")
	v.SetDefault("mirror.prefix", "linkdrop")
	v.SetDefault("mirror.queue_size", 100)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "console")
	v.SetDefault("log.file_path", "logs/app.log")

	v.SetDefault("cors.allow_origins", []string{"*"})
}

// Load 加载配置
// 参数:
//   - path: 配置文件路径，为空时在当前目录和 ./config 下查找 config.toml
//
// 返回值:
//   - *Config: 配置
//   - error: 配置文件存在但无法解析、或配置项不合法时返回
func Load(path string) (*Config, error) {
	// .env 不存在是正常情况
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置项
func (c *Config) Validate() error {
	if c.File.StoragePath == "" {
		return errors.New("file.storage_path must not be empty")
	}
	if c.File.DownloadBaseURL == "" {
		return errors.New("file.download_base_url must not be empty")
	}
	if c.Retention.ThresholdDays <= 0 {
		return fmt.Errorf("retention.threshold_days must be positive, got %d", c.Retention.ThresholdDays)
	}
	if _, _, err := c.Retention.RunAtClock(); err != nil {
		return err
	}
	if c.Server.EnableHTTPS && (c.Server.TLSCertFile == "" || c.Server.TLSKeyFile == "") {
		return errors.New("server.tls_cert_file and server.tls_key_file are required when https is enabled")
	}
	if c.Mirror.Enabled && (c.Mirror.Provider == "" || c.Mirror.Bucket == "") {
		return errors.New("mirror.provider and mirror.bucket are required when mirror is enabled")
	}
	return nil
}
