package handler

import (
	"bridge-orchestrator/internal/adapter/http/middleware"
	redisStore "bridge-orchestrator/internal/adapter/storage/redis"
	"bridge-orchestrator/internal/core/domain"
	"bridge-orchestrator/internal/core/ports"
	"bridge-orchestrator/internal/resilience"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc        ports.AuthService
	Authorizer     ports.Authorizer
	IntentSvc      ports.IntentService
	Reconciler     ports.Reconciler
	Breakers       *resilience.Registry
	RateLimitStore *redisStore.RateLimitStore          // nil = rate limiting disabled
	RateLimitRules map[string]middleware.RateLimitRule // nil = defaults
	HealthCheckers []ports.HealthChecker
	Metrics        *prometheus.Registry // nil = /metrics disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep, verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{})))
	}

	// Swagger documentation
	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	// Rate limit rules
	rules := deps.RateLimitRules
	if rules == nil {
		rules = middleware.DefaultRateLimitRules()
	}

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

	can := func(action string) gin.HandlerFunc {
		return middleware.RequireCapability(deps.Authorizer, action)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/register", rl("auth_register"), authHandler.Register)
		auth.POST("/login", rl("auth_login"), authHandler.Login)
	}

	// --- Webhook ingress (provider-facing; HMAC verified inside) ---
	webhookHandler := NewWebhookHandler(deps.Reconciler)
	v1.POST("/webhooks/events", rl("webhooks"), webhookHandler.Ingest)

	// --- Key-authenticated routes (client API) ---
	clientAuth := middleware.ClientAuth(deps.AuthSvc, deps.Logger)
	intentHandler := NewIntentHandler(deps.IntentSvc)
	intents := v1.Group("/intents", clientAuth)
	{
		intents.POST("", rl("intents"), can(domain.CapIntentCreate), intentHandler.Create)
		intents.POST("/:id/confirm", rl("intents_confirm"), can(domain.CapIntentConfirm), intentHandler.Confirm)
		intents.GET("/:id", rl("intents"), can(domain.CapIntentRead), intentHandler.Get)
	}

	// --- JWT-authenticated routes (operator console) ---
	jwtAuth := middleware.JWTAuth(deps.AuthSvc, deps.Logger)
	opsHandler := NewOpsHandler(deps.Reconciler, deps.Breakers)
	ops := v1.Group("/ops", jwtAuth)
	{
		ops.POST("/reprocess", rl("ops"), can(domain.CapOpsReprocess), opsHandler.Reprocess)
		ops.GET("/events/unmatched", rl("ops"), can(domain.CapOpsEvents), opsHandler.UnmatchedEvents)
		ops.GET("/breakers", rl("ops"), can(domain.CapOpsBreakers), opsHandler.Breakers)
	}

	return r
}
