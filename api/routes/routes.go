package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/feichai0017/document-monitor/api/handlers"
	"github.com/feichai0017/document-monitor/api/middleware"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, allowOrigins []string, log logger.Logger) {
	// 全局中间件
	r.Use(middleware.CORS(allowOrigins))
	r.Use(middleware.Metrics())
	r.Use(middleware.RequestLogger(log))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/health", h.System.Health)
	v1.GET("/stats", h.System.Stats)
	v1.POST("/upload", h.Document.Upload)
	v1.POST("/config/import", h.Document.Import)

	docs := v1.Group("/documents")
	{
		docs.GET("", h.Document.List)
		docs.POST("", h.Document.Create)
		docs.GET("/:id", h.Document.Get)
		docs.PUT("/:id", h.Document.Update)
		docs.DELETE("/:id", h.Document.Delete)
		docs.GET("/:id/versions", h.Document.Versions)
	}

	execs := v1.Group("/executions")
	{
		execs.POST("/run", h.Execution.Run)
		execs.GET("", h.Execution.List)
		execs.GET("/:id", h.Execution.Get)
	}

	versions := v1.Group("/versions")
	{
		versions.GET("/:id/content", h.Document.Content)
		versions.GET("/:id/matches", h.Document.Matches)
	}
}
