package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"marketplace-payments/config"
	"marketplace-payments/internal/adapter/events"
	pgStorage "marketplace-payments/internal/adapter/storage/postgres"
	"marketplace-payments/internal/core/ports"
	"marketplace-payments/internal/service"
	"marketplace-payments/pkg/logger"
)

// Releases escrow for all orders past their inspection deadline. Runs once
// and exits; meant to be scheduled (cron or a Kubernetes CronJob).
func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("escrow-sweeper", cfg.Log.Level, cfg.Log.Pretty)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	var publisher ports.EventPublisher = events.NewNopPublisher()
	if cfg.Kafka.Enabled {
		kafkaPub, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Kafka")
		}
		defer kafkaPub.Close()
		publisher = kafkaPub
	}

	orderRepo := pgStorage.NewOrderRepo(pool)
	walletRepo := pgStorage.NewWalletRepo(pool)
	transactor := pgStorage.NewTransactor(pool)
	ledger := service.NewWalletLedger(walletRepo, log)
	escrowSvc := service.NewEscrowService(orderRepo, ledger, publisher, transactor, log)

	// Drain in batches until nothing is due.
	var total int
	for {
		released, err := escrowSvc.ReleaseExpired(ctx, cfg.Escrow.SweepBatchSize)
		if err != nil {
			log.Error().Err(err).Int("released", total).Msg("Escrow sweep failed")
			os.Exit(1)
		}
		total += released
		if released < cfg.Escrow.SweepBatchSize {
			break
		}
	}

	log.Info().Int("released", total).Msg("Escrow sweep complete")
}
