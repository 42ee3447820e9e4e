package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/dispatch-gin/internal/auth"
	"github.com/mautops/dispatch-gin/internal/config"
	"github.com/mautops/dispatch-gin/internal/metrics"
	"github.com/mautops/dispatch-gin/internal/repository"
	"github.com/mautops/dispatch-gin/internal/service"
	"github.com/mautops/dispatch-gin/internal/websocket"
	"gorm.io/gorm"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	Config     *config.Config
	DB         *gorm.DB
	Tasks      repository.TaskRepository
	Tokens     *auth.TokenManager
	Hub        *websocket.Hub
	Devices    DeviceProviders
	Health     *HealthController
	Task       service.TaskService
	Presence   service.PresenceService
	Export     service.ExportService
	Users      service.UserService
	Statistics service.StatisticsService
}

// SetupRoutes 配置路由
func SetupRoutes(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}

	router := gin.New()

	// 中间件
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	if cfg.Tracing.Enabled {
		router.Use(TracingMiddleware())
	}
	router.Use(RequestLogMiddleware())
	router.Use(SLAMonitorMiddleware(DefaultSLAConfig(cfg.Geofence.AcquireTimeout)))
	router.Use(CORSMiddleware(cfg.CORS))
	router.Use(SecurityHeadersMiddleware(config.IsProduction(cfg)))
	if cfg.RateLimit.RPS > 0 {
		router.Use(RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	router.Use(I18nMiddleware())
	router.Use(ErrorHandlerMiddleware())

	// 健康检查
	health := deps.Health
	if health == nil {
		health = NewHealthController(deps.DB)
	}
	router.GET("/health", health.Check)

	// Prometheus 指标端点
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// WebSocket 路由: 进度、任务事件推送与设备定位往返
	if deps.Hub != nil && deps.Tokens != nil {
		router.GET("/ws", websocket.WebSocketHandler(deps.Hub, deps.Tokens))
	}

	// 头像静态文件
	if cfg.Media.PhotoDir != "" && cfg.Media.BaseURL != "" {
		router.Static(cfg.Media.BaseURL, cfg.Media.PhotoDir)
	}

	taskController := NewTaskController(deps.Task, deps.Presence, deps.Export, deps.Devices)
	var presence PresenceChecker
	if deps.Hub != nil {
		presence = deps.Hub
	}
	authController := NewAuthController(deps.Users, presence)
	statisticsController := NewStatisticsController(deps.Statistics)

	// API v1 路由组
	v1 := router.Group("/api/v1")
	{
		public := v1.Group("/auth")
		{
			public.POST("/register", authController.Register)
			public.POST("/login", authController.Login)
		}

		authed := v1.Group("")
		authed.Use(auth.AuthMiddleware(deps.Tokens), RequestContextMiddleware())
		{
			authed.GET("/auth/me", authController.Me)
			authed.POST("/users/me/photo", authController.UploadPhoto)
			authed.GET("/stream/tasks", StreamHandler(deps.Tasks))

			tasks := authed.Group("/tasks")
			{
				tasks.GET("", taskController.List)
				tasks.GET("/:worker/:id", taskController.Get)
				tasks.GET("/:worker/:id/progress", taskController.Progress)
				tasks.POST("/:worker/:id/confirm", taskController.Confirm)
				tasks.POST("/:worker/:id/complete", taskController.Complete)
			}

			admin := authed.Group("")
			admin.Use(auth.RequireRole(auth.RoleAdmin))
			{
				admin.POST("/tasks", taskController.Create)
				admin.GET("/tasks/export", taskController.Export)
				admin.GET("/workers", authController.ListWorkers)
				admin.GET("/geocode/suggest", taskController.Suggest)
				admin.GET("/statistics/workers", statisticsController.ByWorker)
				admin.GET("/statistics/completions", statisticsController.CompletionsByDay)
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		Fail(c, http.StatusNotFound, "error.not_found", c.Request.URL.Path)
	})

	return router
}
