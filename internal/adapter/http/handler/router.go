package handler

import (
	"time"

	"storefront-notifier/internal/adapter/http/middleware"
	"storefront-notifier/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	SchedulerSvc   ports.SchedulerService
	DispatcherSvc  ports.DispatcherService
	QuerySvc       ports.NotificationQueryService
	TokenSvc       ports.TokenService
	RateLimitStore ports.RateLimitStore // nil = rate limiting disabled
	BatchRateLimit middleware.RateLimitRule
	Limits         BatchLimits
	HealthCheckers []ports.HealthChecker
	Mode           string
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Mode != "" {
		gin.SetMode(deps.Mode)
	}
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(64 << 10))

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	rule := deps.BatchRateLimit
	if rule.Limit <= 0 {
		rule = middleware.RateLimitRule{Limit: 30, Window: time.Minute}
	}
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1", middleware.JWTAuth(deps.TokenSvc, deps.Logger), middleware.OperatorAudit(deps.Logger))

	batchHandler := NewBatchHandler(deps.SchedulerSvc, deps.DispatcherSvc, deps.Limits)
	batches := v1.Group("/batches")
	{
		batches.POST("/schedule", rl("batches"), batchHandler.Schedule)
		batches.POST("/deliver", rl("batches"), batchHandler.Deliver)
	}

	notificationHandler := NewNotificationHandler(deps.QuerySvc)
	notifications := v1.Group("/notifications")
	{
		notifications.GET("/:id", notificationHandler.Get)
		notifications.GET("/:id/attempts", notificationHandler.ListAttempts)
	}

	return r
}
