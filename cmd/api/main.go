package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace-payments/config"
	"marketplace-payments/internal/adapter/events"
	"marketplace-payments/internal/adapter/gateway"
	httpHandler "marketplace-payments/internal/adapter/http/handler"
	"marketplace-payments/internal/adapter/shipping"
	pgStorage "marketplace-payments/internal/adapter/storage/postgres"
	redisStorage "marketplace-payments/internal/adapter/storage/redis"
	"marketplace-payments/internal/core/domain"
	"marketplace-payments/internal/core/ports"
	"marketplace-payments/internal/service"
	"marketplace-payments/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("payments-api", cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Marketplace Payments")

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
	walletRepo := pgStorage.NewWalletRepo(pool)
	intentRepo := pgStorage.NewIntentRepo(pool)
	orderRepo := pgStorage.NewOrderRepo(pool)
	outboxRepo := pgStorage.NewOutboxRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	eventCache := redisStorage.NewEventCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize external boundaries
	gatewayClient := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.SecretKey, cfg.Gateway.CallbackURL, cfg.Gateway.Timeout, log)
	carrierClient := shipping.NewClient(cfg.Shipping.BaseURL, cfg.Shipping.APIKey, cfg.Shipping.Timeout, log)

	// Initialize event publisher (optional)
	var publisher ports.EventPublisher = events.NewNopPublisher()
	if cfg.Kafka.Enabled {
		kafkaPub, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Kafka")
		}
		defer kafkaPub.Close()
		publisher = kafkaPub
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Msg("Kafka connected")
	}

	// Initialize core services
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	ledger := service.NewWalletLedger(walletRepo, log)
	orderFactory := service.NewOrderFactory(orderRepo, outboxRepo, cfg.Escrow.InspectionPeriod, log)

	feePolicy := domain.FeePolicy{
		SelfArrangedBps: cfg.Fees.SelfArrangedBps,
		BasicBps:        cfg.Fees.BasicBps,
		PremiumBps:      cfg.Fees.PremiumBps,
	}

	paymentSvc := service.NewPaymentService(
		intentRepo,
		ledger,
		orderFactory,
		gatewayClient,
		eventCache,
		publisher,
		transactor,
		feePolicy,
		log,
	)
	escrowSvc := service.NewEscrowService(orderRepo, ledger, publisher, transactor, log)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Start the shipment outbox dispatcher
	dispatcherCtx, stopDispatcher := context.WithCancel(ctx)
	defer stopDispatcher()
	dispatcher := shipping.NewDispatcher(outboxRepo, orderRepo, carrierClient, cfg.Shipping.PollInterval, cfg.Shipping.MaxAttempts, log)
	go dispatcher.Run(dispatcherCtx)
	log.Info().Dur("poll_interval", cfg.Shipping.PollInterval).Msg("Shipment dispatcher started")

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		PaymentSvc:     paymentSvc,
		EscrowSvc:      escrowSvc,
		Ledger:         ledger,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
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

	stopDispatcher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
