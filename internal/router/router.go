package router

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weiwangfds/linkdrop/config"
	"github.com/weiwangfds/linkdrop/internal/handler"
	"github.com/weiwangfds/linkdrop/internal/middleware"
	"gorm.io/gorm"
)

// Router 路由配置
type Router struct {
	engine *gin.Engine
}

// NewRouter 创建路由实例
func NewRouter(fileHandler *handler.FileHandler, db *gorm.DB, cfg *config.Config) *Router {
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.RequestLogger("/health", "/metrics"))
	engine.Use(middleware.Metrics())
	engine.Use(cors.New(corsConfig(cfg.CORS)))

	// 健康检查
	engine.GET("/health", func(c *gin.Context) {
		if err := ping(db); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"error":  "database ping failed",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Service is running",
		})
	})

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api/v1")
	{
		files := api.Group("/files")
		{
			files.GET("", fileHandler.ListFiles)
			files.POST("/upload", fileHandler.UploadFile)
			files.POST("/get-url", fileHandler.GetDownloadURL)
			files.GET("/download/:token", fileHandler.DownloadFile)
			files.POST("/update-download-count", fileHandler.UpdateDownloadCount)
		}
	}

	return &Router{engine: engine}
}

// GetEngine 获取gin引擎
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// corsConfig 下载接口需要暴露 Content-Disposition 给浏览器读取文件名
func corsConfig(cfg config.CORSConfig) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition", middleware.RequestIDHeader},
		MaxAge:        86400,
	}

	for _, origin := range cfg.AllowOrigins {
		if origin == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	if len(cfg.AllowOrigins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = cfg.AllowOrigins
	c.AllowCredentials = true
	return c
}

func ping(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
