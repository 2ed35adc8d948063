package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"bookpay/internal/handler"
	"bookpay/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	PaymentHandler *handler.PaymentHandler
	WebhookHandler *handler.WebhookHandler
	RedisClient    *redis.Client
	NewRelicApp    *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		// Payment routes. Mutations honor Idempotency-Key so a retried
		// client request cannot double-charge.
		payments := v1.Group("/payments")
		payments.Use(middleware.IdempotencyMiddleware(deps.RedisClient))
		{
			payments.POST("", deps.PaymentHandler.ProcessPayment)
			payments.GET("/:id", deps.PaymentHandler.GetPayment)
			payments.GET("/:id/receipt", deps.PaymentHandler.GetReceipt)
			payments.POST("/:id/refund", deps.PaymentHandler.ProcessRefund)
		}

		// Charge quotes.
		charges := v1.Group("/charges")
		{
			charges.POST("/quote", deps.PaymentHandler.CalculateCharges)
		}

		// User payment history.
		users := v1.Group("/users")
		{
			users.GET("/:id/payments", deps.PaymentHandler.GetUserPayments)
		}

		// Author earnings.
		authors := v1.Group("/authors")
		{
			authors.GET("/:id/earnings", deps.PaymentHandler.GetAuthorEarnings)
		}

		// Webhook routes carry provider signatures; the idempotency
		// middleware must not replay cached responses for them, dedup is
		// done per event id inside the reconciler.
		webhooks := v1.Group("/webhooks")
		{
			webhooks.POST("/:provider", deps.WebhookHandler.HandleWebhook)
		}
	}

	return router
}
