package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/heartsound/report-backend-go/internal/handler"
	"github.com/heartsound/report-backend-go/internal/middleware"
	"github.com/heartsound/report-backend-go/internal/service"
	"github.com/heartsound/report-backend-go/internal/storage"
)

// Dependencies 路由依赖
type Dependencies struct {
	Reports     *service.ReportService
	LocalFiles  *storage.LocalStore // 仅本地存储时提供下载
	JWTSecret   string
	RateLimiter *middleware.RateLimiter
	Logger      *slog.Logger
}

// SetupRouter 设置路由
func SetupRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(deps.Logger))

	// CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Report Backend API is running",
		})
	})

	reportHandler := handler.NewReportHandler(deps.Reports)
	auth := middleware.Auth(deps.JWTSecret)
	adminRoles := middleware.RequireRole(middleware.RoleAdmin, middleware.RoleSuperAdmin)

	// 报表接口
	reports := r.Group("/api/v1/reports", auth, adminRoles)
	{
		reports.POST("", middleware.RateLimit(deps.RateLimiter), reportHandler.Submit)
		reports.GET("", reportHandler.ListHistory)
		reports.GET("/types", reportHandler.ReportTypes)
		reports.GET("/types/:type/formats", reportHandler.ExportFormats)
		reports.GET("/:id", reportHandler.GetStatus)
		reports.POST("/cleanup", middleware.RequireRole(middleware.RoleSuperAdmin), reportHandler.Cleanup)
	}

	// 内部生成接口（service 角色）
	internal := r.Group("/internal/reports", auth, middleware.RequireRole(middleware.RoleService))
	{
		internal.POST("/generate", reportHandler.Generate)
	}

	// 本地文件签名下载
	if deps.LocalFiles != nil {
		downloadHandler := handler.NewDownloadHandler(deps.LocalFiles)
		r.GET("/files/download", downloadHandler.Download)
	}

	return r
}
