package handler

import (
	"payment-core/config"
	"payment-core/internal/adapter/http/middleware"
	"payment-core/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Sessions       ports.SessionService
	Checkout       ports.CheckoutService
	Ledger         ports.LedgerService
	Reconciler     ports.ReconcilerService
	Registry       ports.GatewayRegistry
	RateLimitStore ports.RateLimitStore // nil = rate limiting disabled
	RateLimitCfg   config.RateLimitConfig
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep: verifies PostgreSQL and Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	rules := middleware.RulesFromConfig(deps.RateLimitCfg)

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rules, deps.Logger)
	}

	// Provider callbacks live outside the API group: providers do not
	// send versioned paths and must never hit the client rate limits.
	webhookHandler := NewWebhookHandler(deps.Reconciler)
	r.POST("/webhooks/:gateway", webhookHandler.HandleWebhook)

	v1 := r.Group("/api/v1")

	checkoutHandler := NewCheckoutHandler(deps.Checkout, deps.Ledger, deps.Registry)
	v1.GET("/gateways", checkoutHandler.ListGateways)

	sessionHandler := NewSessionHandler(deps.Sessions)
	sessions := v1.Group("/sessions")
	{
		sessions.POST("", rl("sessions"), sessionHandler.CreateSession)
		sessions.GET("/:id", rl("sessions"), sessionHandler.GetSession)
		sessions.DELETE("/:id", rl("sessions"), sessionHandler.CancelSession)
	}

	payments := v1.Group("/payments")
	{
		payments.POST("", rl("payments"), checkoutHandler.StartPayment)
		payments.GET("/:id", rl("payments"), checkoutHandler.GetPayment)
		payments.POST("/:id/refunds", rl("refunds"), checkoutHandler.RequestRefund)
		payments.GET("/:id/refunds", rl("refunds"), checkoutHandler.ListRefunds)
	}

	adminHandler := NewAdminHandler(deps.Ledger, deps.Reconciler)
	admin := v1.Group("/admin")
	{
		admin.POST("/bank-transfers/:reference/confirm", adminHandler.ConfirmBankTransfer)
		admin.GET("/orphan-events", adminHandler.ListOrphanEvents)
	}

	return r
}
