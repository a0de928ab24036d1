package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"secure-withdrawal-gateway/config"
	"secure-withdrawal-gateway/internal/adapter/chain"
	httpHandler "secure-withdrawal-gateway/internal/adapter/http/handler"
	"secure-withdrawal-gateway/internal/adapter/http/middleware"
	"secure-withdrawal-gateway/internal/adapter/signer"
	pgStorage "secure-withdrawal-gateway/internal/adapter/storage/postgres"
	redisStorage "secure-withdrawal-gateway/internal/adapter/storage/redis"
	"secure-withdrawal-gateway/internal/core/ports"
	"secure-withdrawal-gateway/internal/service"
	"secure-withdrawal-gateway/pkg/localize"
	"secure-withdrawal-gateway/pkg/logger"
	"secure-withdrawal-gateway/pkg/metrics"
	"secure-withdrawal-gateway/pkg/units"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 15 * time.Second

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
		Str("currency", cfg.Withdrawal.Currency).
		Str("balance_source", cfg.Balance.Source).
		Msg("Starting Secure Withdrawal Gateway")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	if err := pgStorage.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply schema")
	}
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	metrics.MustRegisterMetrics()

	conv := units.NewConverter(cfg.Withdrawal.Decimals)

	// Initialize repositories
	accountRepo := pgStorage.NewAccountRepo(pool)
	walletRepo := pgStorage.NewWalletRepo(pool)
	withdrawalRepo := pgStorage.NewWithdrawalRepo(pool)
	idempotencyRepo := pgStorage.NewIdempotencyRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	webhookRepo := pgStorage.NewWebhookRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	quotationStore := redisStorage.NewQuotationStore(rdb)
	submissionLock := redisStorage.NewSubmissionLock(rdb)
	balanceNotifier := redisStorage.NewBalanceNotifier(rdb, logger.Component(log, "balance_notifier"))
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize core services
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key, "wallet-balance")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	sigSvc := service.NewHMACSignatureService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	features := service.NewFeatureRegistry(cfg.Features)

	ethSigner, err := signer.NewEthereumSigner(cfg.Signer.PrivateKey, logger.Component(log, "signer"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize signer")
	}
	verifier := signer.NewVerifier(ethSigner.Address())

	auditSvc := service.NewAuditService(auditRepo, logger.Component(log, "audit"))
	webhookSvc := service.NewWebhookService(service.WebhookConfig{
		URL:      cfg.Webhook.URL,
		Secret:   cfg.Webhook.Secret,
		Currency: cfg.Withdrawal.Currency,
		Timeout:  cfg.Webhook.Timeout,
	}, webhookRepo, sigSvc, &http.Client{Timeout: cfg.Webhook.Timeout}, logger.Component(log, "webhook"))

	maxAmount := conv.MustParse(cfg.Withdrawal.MaxAmount)
	ledger := service.NewLedgerService(service.LedgerConfig{
		Currency:         cfg.Withdrawal.Currency,
		MaxAmount:        maxAmount,
		QuotationTTL:     cfg.Quotation.TTL,
		FeeUnit:          conv.MustParse(cfg.Quotation.FeeUnit),
		FeeMinMultiplier: cfg.Quotation.FeeMinMultiplier,
		FeeMaxMultiplier: cfg.Quotation.FeeMaxMultiplier,
	}, service.LedgerDeps{
		Wallets:     walletRepo,
		Withdrawals: withdrawalRepo,
		IdempRepo:   idempotencyRepo,
		IdempCache:  idempotencyCache,
		Quotations:  quotationStore,
		Locks:       submissionLock,
		Verifier:    verifier,
		Encryption:  encSvc,
		Transactor:  transactor,
		Features:    features,
		Notifier:    balanceNotifier,
		Audit:       auditSvc,
		Webhooks:    webhookSvc,
	}, logger.Component(log, "ledger"))

	accountSvc := service.NewAccountService(accountRepo, ledger, conv.MustParse(cfg.Balance.InitialFunding), logger.Component(log, "account"))
	historySvc := service.NewHistoryService(withdrawalRepo)

	// Balance feed: the ledger itself, or the chain for on-chain wallets
	var feed ports.BalanceFeed
	switch cfg.Balance.Source {
	case "evm":
		client, err := chain.Dial(ctx, cfg.EVM.RPCURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to EVM node")
		}
		defer client.Close()
		feed = chain.NewBalanceFeed(client, accountRepo, chain.Config{
			PollInterval: cfg.Balance.PollInterval,
			RateLimit:    cfg.EVM.RateLimit,
			Burst:        cfg.EVM.Burst,
			CallTimeout:  cfg.EVM.CallTimeout,
		}, logger.Component(log, "balance_feed"))
	default:
		feed = service.NewLedgerBalanceFeed(ledger, balanceNotifier, cfg.Balance.PollInterval, logger.Component(log, "balance_feed"))
	}

	// Localization
	locales := localize.NewRegistry(cfg.Withdrawal.DefaultLocale)
	money := localize.NewMoneyFormatter(conv, locales)
	clock := localize.NewDateTimeFormatter(locales, time.UTC)

	sessionManager := service.NewSessionManager(service.SessionManagerConfig{
		Currency:      cfg.Withdrawal.Currency,
		MaxWithdrawal: maxAmount,
		IdleTTL:       cfg.Withdrawal.SessionIdleTTL,
		SubmitTimeout: cfg.Withdrawal.SubmitTimeout,
	}, service.SessionManagerDeps{
		Accounts:   accountRepo,
		Features:   features,
		Quotations: ledger,
		Submitter:  ledger,
		Signer:     ethSigner,
		Feed:       feed,
		Locales:    locales,
		Money:      money,
		Clock:      clock,
		Converter:  conv,
		Audit:      auditSvc,
	}, logger.Component(log, "sessions"))

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	overrides := make(map[string]middleware.RateLimitRule, len(cfg.RateLimits))
	for group, rl := range cfg.RateLimits {
		overrides[group] = middleware.RateLimitRule{Limit: rl.Limit, Window: rl.Window}
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AccountSvc: accountSvc,
		HistorySvc: historySvc,
		Ledger:     ledger,
		Sessions:   sessionManager,
		Features:   features,
		TokenSvc:   tokenSvc,
		Presenter: httpHandler.Presenter{
			Money:    money,
			Clock:    clock,
			Locales:  locales,
			Currency: cfg.Withdrawal.Currency,
		},
		Converter:      conv,
		RateLimitStore: rateLimitStore,
		RateLimitRules: middleware.MergeRateLimitRules(overrides),
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		AuditSvc:       auditSvc,
		Metrics:        promhttp.Handler(),
		Mode:           cfg.Server.Mode,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Sessions first: in-flight submissions finish, then event streams end
	// and the server can drain.
	if err := sessionManager.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Sessions did not close in time")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := auditSvc.Wait(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Audit writes still pending")
	}
	if err := webhookSvc.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Webhook deliveries still pending")
	}

	log.Info().Msg("Server exited")
}
