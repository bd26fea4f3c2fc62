package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/docformat/api/handlers"
	"github.com/feichai0017/docformat/api/middleware"
	"github.com/feichai0017/docformat/pkg/logger"
)

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, allowOrigins []string, log logger.Logger) {
	// 全局中间件
	r.Use(middleware.CORS(allowOrigins))
	r.Use(middleware.RequestLogger(log))

	r.GET("/health", h.Health.Health)

	v1 := r.Group("/api/v1")

	// 排版路由组
	f := v1.Group("/format")
	{
		f.POST("/jobs", h.Format.SubmitJob)
		f.POST("/sync", h.Format.FormatSync)
		f.GET("/jobs/:jobId", h.Format.GetStatus)
		f.GET("/jobs/:jobId/preview", h.Format.GetPreview)
		f.GET("/jobs/:jobId/preview/export", h.Format.ExportPreview)
		f.GET("/jobs/:jobId/download", h.Format.Download)
		f.DELETE("/jobs/:jobId", h.Format.Cancel)
		f.GET("/history", h.Format.History)
		f.GET("/presets", h.Format.Presets)
	}

	v1.POST("/namelist/compare", h.NameList.Compare)
	v1.POST("/assistant/chat", h.Assistant.Chat)
}
