package app

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"bolo/internal/config"
	"bolo/internal/handler"
	"bolo/internal/metrics"
	"bolo/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	PaymentHandler  *handler.PaymentHandler
	WebhookHandler  *handler.WebhookHandler
	DeliveryHandler *handler.DeliveryHandler
	HealthHandler   *handler.HealthHandler
	RedisClient     *redis.Client
	NewRelicApp     *newrelic.Application
	Metrics         *metrics.Metrics
	Logger          *zap.Logger
	Config          *config.Config
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     deps.Config.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}
	router.Use(middleware.RequestLogger(deps.Logger, deps.Metrics))
	if deps.NewRelicApp != nil {
		router.Use(middleware.NewRelicAttributes())
	}

	router.GET("/health", deps.HealthHandler.Live)
	router.GET("/ready", deps.HealthHandler.Ready)
	if deps.Config.Metrics.Enabled {
		router.GET(deps.Config.Metrics.Path, gin.WrapH(deps.Metrics.Handler()))
	}

	// Provider webhooks. Paths are registered with the providers and must not change.
	api := router.Group("/api")
	{
		api.POST("/telebirr/notify",
			middleware.SignatureMiddleware("telebirr", deps.Config.Telebirr.WebhookSecret, deps.Metrics, deps.Logger),
			deps.WebhookHandler.TelebirrNotify)
		api.POST("/cbe/callback",
			middleware.SignatureMiddleware("cbe_birr", deps.Config.CBEBirr.WebhookSecret, deps.Metrics, deps.Logger),
			deps.WebhookHandler.CBEBirrCallback)
	}

	// API v1 routes.
	v1 := router.Group("/v1")
	v1.Use(middleware.IdempotencyMiddleware(deps.RedisClient, deps.Logger))
	{
		payments := v1.Group("/payments")
		{
			payments.POST("/telebirr", deps.PaymentHandler.InitiateTelebirr)
			payments.POST("/cbe-birr", deps.PaymentHandler.InitiateCBEBirr)
			payments.GET("", deps.PaymentHandler.ListPayments)
			payments.GET("/:transactionId", deps.PaymentHandler.GetPayment)
			payments.GET("/:transactionId/status", deps.PaymentHandler.CheckStatus)
			payments.POST("/:transactionId/refund", deps.PaymentHandler.Refund)
		}

		deliveries := v1.Group("/deliveries")
		{
			deliveries.POST("", deps.DeliveryHandler.Schedule)
			deliveries.POST("/bulk", deps.DeliveryHandler.ScheduleBulk)
			deliveries.POST("/fee", deps.DeliveryHandler.CalculateFee)
			deliveries.GET("/statistics", deps.DeliveryHandler.Statistics)
			deliveries.GET("/:trackingNumber", deps.DeliveryHandler.Track)
			deliveries.PUT("/:trackingNumber/status", deps.DeliveryHandler.UpdateStatus)
		}

		postOffices := v1.Group("/post-offices")
		{
			postOffices.GET("", deps.DeliveryHandler.PostOffices)
			postOffices.GET("/near", deps.DeliveryHandler.PostOfficesNear)
		}
	}

	return router
}
