package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payment-core/config"
	"payment-core/internal/adapter/gateway"
	httpHandler "payment-core/internal/adapter/http/handler"
	pgStorage "payment-core/internal/adapter/storage/postgres"
	redisStorage "payment-core/internal/adapter/storage/redis"
	"payment-core/internal/core/ports"
	"payment-core/internal/service"
	"payment-core/pkg/logger"
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
		Msg("Starting Payment Core")

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

	// Initialize repositories
	txRepo := pgStorage.NewTransactionRepo(pool)
	invoiceRepo := pgStorage.NewInvoiceRepo(pool)
	refundRepo := pgStorage.NewRefundRepo(pool)
	eventRepo := pgStorage.NewEventRepo(pool)
	fraudRepo := pgStorage.NewFraudRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	sessionStore := redisStorage.NewSessionStore(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize gateway adapters
	registry := gateway.NewRegistry(
		gateway.NewCardGateway(cfg.Gateways.Card, log),
		gateway.NewWalletGateway(cfg.Gateways.Wallet, log),
		gateway.NewBankTransferGateway(cfg.Gateways.BankTransfer),
	)

	// Initialize business services
	notifier := service.NewNotifierService(cfg.Notification, nil, log)
	ledgerSvc := service.NewLedgerService(
		txRepo,
		invoiceRepo,
		refundRepo,
		eventRepo,
		registry,
		transactor,
		notifier,
		cfg.Refund.WindowDays,
		log,
	)
	riskSvc := service.NewRiskService(fraudRepo, cfg.Risk, log)
	sessionSvc := service.NewSessionService(sessionStore, cfg.Session.TTL, log)
	checkoutSvc := service.NewCheckoutService(
		sessionSvc,
		riskSvc,
		ledgerSvc,
		registry,
		cfg.Sweeper.PendingTimeout,
		time.Duration(cfg.Gateways.BankTransfer.ExpiryDays)*24*time.Hour,
		log,
	)
	reconcilerSvc := service.NewReconcilerService(registry, ledgerSvc, eventRepo, log)

	// Background sweeper: expiry + invoice backfill
	sweeperCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	sweeper := service.NewSweeperService(ledgerSvc, cfg.Sweeper.Interval, log)
	go sweeper.Run(sweeperCtx)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Sessions:       sessionSvc,
		Checkout:       checkoutSvc,
		Ledger:         ledgerSvc,
		Reconciler:     reconcilerSvc,
		Registry:       registry,
		RateLimitStore: rateLimitStore,
		RateLimitCfg:   cfg.RateLimit,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
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

	stopSweeper()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
