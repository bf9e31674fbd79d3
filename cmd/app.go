package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/weiwangfds/linkdrop/config"
	"github.com/weiwangfds/linkdrop/internal/database"
	"github.com/weiwangfds/linkdrop/internal/logger"
	"github.com/weiwangfds/linkdrop/internal/repository"
	fileservice "github.com/weiwangfds/linkdrop/internal/service/file"
	"github.com/weiwangfds/linkdrop/internal/service/link"
	"github.com/weiwangfds/linkdrop/internal/service/mirror"
	"github.com/weiwangfds/linkdrop/internal/storage"
	"gorm.io/gorm"
)

// app 进程内共享的组件
type app struct {
	cfg        *config.Config
	db         *gorm.DB
	links      link.Registry
	replicator *mirror.Replicator
	files      fileservice.FileService
}

// mirrorCheckTimeout 启动时检查对象存储连通性的超时时间
const mirrorCheckTimeout = 10 * time.Second

var newMirrorProvider = mirror.NewProvider

// loadConfig 读取配置并初始化日志
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(&cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// newApp 按配置组装数据库、存储和文件服务
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := database.Init(cfg.Database)
	if err != nil {
		return nil, err
	}

	repo := repository.NewFileMetadataRepository(db)
	blobs := storage.NewOsBlobStore(cfg.File.StoragePath)
	links := link.NewMemoryRegistry()

	a := &app{cfg: cfg, db: db, links: links}

	var opts []fileservice.Option
	if cfg.Mirror.Enabled {
		provider, err := newMirrorProvider(cfg.Mirror)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to create mirror provider: %w", err)
		}
		checkCtx, cancel := context.WithTimeout(ctx, mirrorCheckTimeout)
		err = provider.TestConnection(checkCtx)
		cancel()
		if err != nil {
			a.close()
			return nil, fmt.Errorf("mirror connection test failed: %w", err)
		}
		open := func(path string) (io.ReadCloser, error) {
			return blobs.Open(path)
		}
		a.replicator = mirror.NewReplicator(provider, open, cfg.Mirror.Prefix, cfg.Mirror.QueueSize)
		opts = append(opts, fileservice.WithMirror(a.replicator))
		logger.Infof("[启动] 已启用镜像: %s/%s", cfg.Mirror.Provider, cfg.Mirror.Bucket)
	}

	a.files = fileservice.NewFileService(repo, blobs, links, cfg.File, opts...)
	return a, nil
}

func (a *app) close() {
	sqlDB, err := a.db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		logger.Warnf("[启动] 关闭数据库失败: %v", err)
	}
}
