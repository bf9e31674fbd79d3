package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/weiwangfds/linkdrop/config"
	"github.com/weiwangfds/linkdrop/internal/handler"
	"github.com/weiwangfds/linkdrop/internal/logger"
	"github.com/weiwangfds/linkdrop/internal/metrics"
	"github.com/weiwangfds/linkdrop/internal/router"
	"github.com/weiwangfds/linkdrop/internal/service/cleanup"
	"golang.org/x/net/http2"
)

// shutdownTimeout 优雅关闭等待在途请求的时间
const shutdownTimeout = 30 * time.Second

// NewServeCommand 启动HTTP服务、回收调度和镜像复制
func NewServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	metrics.RegisterActiveLinks(a.links.Len)

	if a.replicator != nil {
		if err := a.replicator.Start(ctx); err != nil {
			return err
		}
		defer a.replicator.Stop()
	}

	if cfg.Retention.Enabled {
		scheduler := cleanup.NewScheduler(a.files, cfg.Retention)
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	gin.SetMode(gin.ReleaseMode)
	fileHandler := handler.NewFileHandler(a.files, handler.Options{
		MaxUploadBytes:  cfg.File.MaxUploadBytes(),
		CountOnTransfer: cfg.Download.CountOnTransfer,
	})
	r := router.NewRouter(fileHandler, a.db, cfg)

	srv, err := newServer(cfg.Server, r.GetEngine())
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.Server.EnableHTTPS {
			logger.Infof("[启动] HTTPS服务器启动在端口 %d (HTTP/2: %v)", cfg.Server.Port, cfg.Server.EnableHTTP2)
			errCh <- srv.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
			return
		}
		logger.Infof("[启动] HTTP服务器启动在端口 %d", cfg.Server.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("[启动] 正在关闭服务器...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("[启动] 服务器已退出")
	return nil
}

// newServer 创建HTTP服务器，启用HTTPS时按配置开启HTTP/2
func newServer(cfg config.ServerConfig, h http.Handler) (*http.Server, error) {
	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      h,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}

	if cfg.EnableHTTPS {
		srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
		if cfg.EnableHTTP2 {
			if err := http2.ConfigureServer(srv, &http2.Server{}); err != nil {
				return nil, err
			}
		} else {
			srv.TLSNextProto = make(map[string]func(*http.Server, *tls.Conn, http.Handler))
		}
	}
	return srv, nil
}
