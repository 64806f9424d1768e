package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"expo-engine/backend/config"
	"expo-engine/backend/internal/api/handler"
	"expo-engine/backend/internal/api/middleware"
	"expo-engine/backend/internal/metrics"
	"expo-engine/backend/pkg/jwt"
	"expo-engine/backend/pkg/redis"
)

// 角色
const (
	roleAdmin       = "admin"
	roleCoordinator = "coordinador"
)

// Setup 初始化并返回 Gin 路由引擎；rdb 与 m 均可为 nil
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, m *metrics.Metrics, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger, "/health", "/metrics"))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	if cfg.Server.MaxBodyBytes > 0 {
		r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))
	}

	// Redis 不可用时不限流
	var limiter middleware.RateLimiter
	if rdb != nil {
		limiter = rdb
	}

	// ── 健康检查 / 指标 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtMgr))
	v1.Use(middleware.RateLimit(limiter, cfg.Server.RateLimit, time.Minute))
	{
		manage := middleware.RoleAuth(roleAdmin, roleCoordinator)

		// 展会维度
		events := v1.Group("/events/:id")
		{
			events.POST("/conflicts/detect", manage, h.Conflict.Detect)
			events.GET("/conflicts", h.Conflict.List)
			events.GET("/conflicts/summary", h.Conflict.Summary)

			events.GET("/stand-conflicts/candidates", h.StandConflict.Candidates)
			events.POST("/stand-conflicts", manage, h.StandConflict.Persist)
			events.GET("/stand-conflicts", h.StandConflict.List)

			events.POST("/slots", h.Scheduling.GenerateSlots)
			events.POST("/auto-schedule", manage, h.Scheduling.AutoSchedule)

			events.POST("/priority-scores/refresh", manage, h.Priority.Refresh)

			events.GET("/export/conflicts", h.Export.ExportConflicts)
			events.GET("/export/schedule.ics", h.Export.ExportScheduleICS)
		}

		// 活动冲突
		conflicts := v1.Group("/conflicts")
		{
			conflicts.POST("/sweep", middleware.RoleAuth(roleAdmin), h.Conflict.Sweep)
			conflicts.GET("/:id", h.Conflict.Get)
			conflicts.POST("/:id/transitions", h.Conflict.Transition)
		}

		// 展位冲突
		standConflicts := v1.Group("/stand-conflicts")
		{
			standConflicts.GET("/:id", h.StandConflict.Get)
			standConflicts.POST("/:id/transitions", h.StandConflict.Transition)
			standConflicts.GET("/:id/history", h.StandConflict.History)
		}
		v1.POST("/history/:seq/revert", manage, h.StandConflict.Revert)

		// 企业评分
		v1.GET("/companies/:id/priority-score", h.Priority.GetScore)
	}

	return r
}
