package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"bridge-orchestrator/config"
	httpHandler "bridge-orchestrator/internal/adapter/http/handler"
	"bridge-orchestrator/internal/adapter/http/middleware"
	pgStorage "bridge-orchestrator/internal/adapter/storage/postgres"
	redisStorage "bridge-orchestrator/internal/adapter/storage/redis"
	"bridge-orchestrator/internal/core/domain"
	"bridge-orchestrator/internal/core/ports"
	"bridge-orchestrator/internal/provider"
	"bridge-orchestrator/internal/resilience"
	"bridge-orchestrator/internal/service"
	"bridge-orchestrator/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Bridge Orchestrator")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Resilience layer: one breaker per upstream (the three rails and the
	// datastore), shared retry policy, prometheus instrumentation on both.
	metricsRegistry := prometheus.NewRegistry()
	resMetrics := resilience.NewMetrics()
	if err := resMetrics.Register(metricsRegistry); err != nil {
		log.Fatal().Err(err).Msg("Failed to register resilience metrics")
	}

	breakerSettings := func(name string) resilience.Settings {
		return resilience.Settings{
			Name:             name,
			Timeout:          cfg.Breaker.Timeout,
			FailureThreshold: cfg.Breaker.FailureThreshold,
			MinimumCalls:     cfg.Breaker.MinimumCalls,
			Cooldown:         cfg.Breaker.Cooldown,
			Window:           cfg.Breaker.Window,
		}
	}
	breakers := resilience.NewRegistry()
	for _, upstream := range []string{
		resilience.UpstreamRailA,
		resilience.UpstreamRailB,
		resilience.UpstreamRailC,
		resilience.UpstreamDatastore,
	} {
		breakers.Add(resilience.NewBreaker(breakerSettings(upstream)).WithMetrics(resMetrics))
	}

	retryExec := resilience.NewExecutor(resilience.Policy{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Factor:       cfg.Retry.Factor,
		Jitter:       true,
	}).WithMetrics(resMetrics)

	// Initialize repositories over the breaker-guarded pool
	db := pgStorage.NewGuardedPool(pool, breakers.Get(resilience.UpstreamDatastore))
	intentRepo := pgStorage.NewIntentRepo(db)
	paymentRepo := pgStorage.NewExternalPaymentRepo(db)
	walletRepo := pgStorage.NewWalletRepo(db)
	ledgerRepo := pgStorage.NewLedgerRepo(db)
	idempotencyRepo := pgStorage.NewIdempotencyRepo(db)
	eventRepo := pgStorage.NewEventRepo(db)
	clientRepo := pgStorage.NewClientRepo(db)
	transactor := pgStorage.NewTransactor(db)

	// Initialize Redis stores
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	paymentLock := redisStorage.NewPaymentLock(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize core services
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	// Provider gateway over the configured rails
	railClients := map[domain.FundingSource]*provider.Client{
		domain.FundingSourceRailA: provider.NewClient(railConfig(cfg.Rails.RailA), log),
		domain.FundingSourceRailB: provider.NewClient(railConfig(cfg.Rails.RailB), log),
		domain.FundingSourceRailC: provider.NewClient(railConfig(cfg.Rails.RailC), log),
	}
	vocab := provider.DefaultVocabulary().Merge(cfg.Provider.Vocabulary)
	gateway := provider.NewGateway(railClients, breakers, retryExec, vocab, log)

	// Initialize business services
	authSvc := service.NewAuthService(clientRepo, hashSvc, tokenSvc)
	authorizer := service.NewCapabilityAuthorizer()
	planner := service.NewFundingPlanner(walletRepo, encSvc, railOrder(cfg.Funding.RailOrder), domain.FundingSource(cfg.Funding.DefaultRail), log)
	poster := service.NewLedgerPoster(ledgerRepo, walletRepo, encSvc, transactor, log)
	intentSvc := service.NewIntentService(
		intentRepo,
		paymentRepo,
		walletRepo,
		ledgerRepo,
		idempotencyRepo,
		idempotencyCache,
		planner,
		gateway,
		poster,
		transactor,
		paymentLock,
		log,
	)
	reconciler := service.NewReconciler(
		paymentRepo,
		intentRepo,
		eventRepo,
		poster,
		paymentLock,
		vocab,
		cfg.Webhook.Secret,
		log,
	)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        authSvc,
		Authorizer:     authorizer,
		IntentSvc:      intentSvc,
		Reconciler:     reconciler,
		Breakers:       breakers,
		RateLimitStore: rateLimitStore,
		RateLimitRules: middleware.RateLimitRules(cfg.RateLimit.IntentsPerMinute, cfg.RateLimit.WebhooksPerMinute),
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Metrics:        metricsRegistry,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func railConfig(rc config.RailConfig) provider.RailConfig {
	return provider.RailConfig{
		BaseURL:     rc.BaseURL,
		APIKey:      rc.APIKey,
		CallTimeout: rc.CallTimeout,
	}
}

// railOrder filters the configured rail names down to known funding sources.
func railOrder(names []string) []domain.FundingSource {
	var order []domain.FundingSource
	for _, name := range names {
		src := domain.FundingSource(name)
		if domain.KnownFundingSource(src) && src != domain.FundingSourceWallet {
			order = append(order, src)
		}
	}
	return order
}
