package handler

import (
	"net/http"
	"time"

	"secure-withdrawal-gateway/internal/adapter/http/middleware"
	"secure-withdrawal-gateway/internal/core/domain"
	"secure-withdrawal-gateway/internal/core/ports"
	"secure-withdrawal-gateway/pkg/units"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AccountSvc     ports.AccountService
	HistorySvc     ports.HistoryService
	Ledger         ports.LedgerService
	Sessions       ports.SessionManager
	Features       ports.FeatureRepository
	TokenSvc       ports.TokenService
	Presenter      Presenter
	Converter      units.Converter
	RateLimitStore ports.RateLimiter                   // nil = rate limiting disabled
	RateLimitRules map[string]middleware.RateLimitRule // nil = DefaultRateLimitRules
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = audit logging disabled
	Metrics        http.Handler       // nil = /metrics not served
	Heartbeat      time.Duration      // SSE keep-alive interval
	Mode           string             // gin mode; empty = release
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	mode := deps.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	// Health check pings PostgreSQL and Redis
	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	// API documentation
	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	rules := deps.RateLimitRules
	if rules == nil {
		rules = middleware.DefaultRateLimitRules()
	}

	// Groups without a rule, or a missing store, are not limited.
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

	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	accountHandler := NewAccountHandler(deps.AccountSvc, deps.TokenSvc, deps.Presenter)
	v1.POST("/accounts", rl("accounts_register"), accountHandler.Register)

	// --- JWT-authenticated routes ---
	authed := v1.Group("", middleware.JWTAuth(deps.TokenSvc, deps.Logger))

	featureHandler := NewFeatureHandler(deps.Features)
	walletHandler := NewWalletHandler(deps.Ledger, deps.Converter, deps.Presenter)
	historyHandler := NewHistoryHandler(deps.HistorySvc, deps.Presenter)

	authed.GET("/features", rl("read"), featureHandler.List)
	authed.GET("/account", rl("read"), accountHandler.GetProfile)
	authed.GET("/wallet", rl("read"), walletHandler.GetBalance)
	authed.POST("/wallet/fund", rl("wallet_fund"), walletHandler.Fund)
	authed.GET("/withdrawals", rl("read"), historyHandler.ListWithdrawals)
	authed.GET("/withdrawals/stats", rl("read"), historyHandler.GetStats)

	// --- Withdrawal sessions (feature-gated) ---
	sessionHandler := NewSessionHandler(deps.Sessions, deps.Heartbeat, deps.Logger)
	sessions := authed.Group("/withdrawals/sessions",
		middleware.RequireFeature(deps.Features, domain.FeatureWithdrawal, deps.Logger))
	{
		sessions.POST("", rl("sessions"), sessionHandler.Open)
		sessions.GET("/:id", rl("read"), sessionHandler.Get)
		sessions.GET("/:id/events", sessionHandler.Events)
		sessions.PUT("/:id/amount", rl("session_input"), sessionHandler.SetAmount)
		sessions.POST("/:id/quotation", rl("quotations"), sessionHandler.RequestQuotation)
		sessions.POST("/:id/confirm", rl("session_input"), sessionHandler.ConfirmQuotation)
		sessions.POST("/:id/sign", rl("signing"), sessionHandler.Sign)
		sessions.POST("/:id/dismiss", rl("session_input"), sessionHandler.Dismiss)
		sessions.DELETE("/:id", rl("sessions"), sessionHandler.Close)
	}

	return r
}
