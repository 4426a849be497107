package handler

import (
	"marketplace-payments/internal/adapter/http/middleware"
	redisStore "marketplace-payments/internal/adapter/storage/redis"
	"marketplace-payments/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	PaymentSvc     ports.PaymentService
	EscrowSvc      ports.EscrowService
	Ledger         ports.WalletLedger
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Prometheus metrics
	r.GET("/metrics", middleware.PrometheusHandler())

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Gateway webhook (signature-authenticated, never rate limited:
	// throttling the gateway only delays settlements it will redeliver) ---
	webhookHandler := NewWebhookHandler(deps.PaymentSvc, deps.Logger)
	v1.POST("/webhook/gateway", webhookHandler.HandleGatewayWebhook)

	// --- JWT-authenticated routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)

	paymentHandler := NewPaymentHandler(deps.PaymentSvc)
	pay := v1.Group("/pay/cart", jwtAuth)
	{
		pay.POST("/wallet", rl("payments"), paymentHandler.PayWithWallet)
		pay.POST("/card", rl("payments"), paymentHandler.PayWithCard)
		pay.POST("/hybrid", rl("payments"), paymentHandler.PayWithHybrid)
	}

	escrowHandler := NewEscrowHandler(deps.EscrowSvc)
	orders := v1.Group("/orders", jwtAuth)
	{
		orders.GET("/:id/escrow-status", rl("escrow"), escrowHandler.GetEscrowStatus)
		orders.POST("/:id/confirm-quality", rl("escrow"), escrowHandler.ConfirmQuality)
	}

	walletHandler := NewWalletHandler(deps.Ledger)
	wallet := v1.Group("/wallet", jwtAuth)
	{
		wallet.GET("/balance", rl("wallet"), walletHandler.GetBalance)
	}

	return r
}
