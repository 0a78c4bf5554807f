// Package main implements the paymentd service for payd.
// It runs the settlement pipeline for every enabled chain: round resolution,
// reward allocation and payout commitment.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/poolcore/payd/internal/accounting"
	"github.com/poolcore/payd/internal/config"
	"github.com/poolcore/payd/internal/daemon"
	"github.com/poolcore/payd/internal/database"
	"github.com/poolcore/payd/internal/database/influx"
	"github.com/poolcore/payd/internal/database/postgres"
	"github.com/poolcore/payd/internal/ledger"
	"github.com/poolcore/payd/internal/messaging"
	"github.com/poolcore/payd/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := log.New(cfg.ServiceName, cfg.Version, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting paymentd",
		"version", cfg.Version,
		"pool", cfg.PoolName,
	)

	store, err := ledger.NewClient(&ledger.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logger.WithError(err).Error("failed to connect to ledger store")
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Error("failed to close ledger store")
		}
	}()

	archive, err := database.NewArchive(&database.Config{
		Pool:     cfg.PoolName,
		Postgres: &postgres.Config{URL: cfg.PostgresURL, MaxOpenConns: 10, MaxIdleConns: 5, MaxLifetime: time.Hour},
		Influx:   &influx.Config{URL: cfg.InfluxURL, Token: cfg.InfluxToken, Org: cfg.InfluxOrg, Bucket: cfg.InfluxBucket},
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to connect archive backends")
		os.Exit(1)
	}
	defer func() {
		if err := archive.Close(); err != nil {
			logger.WithError(err).Error("failed to close archive")
		}
	}()

	kafkaClient := messaging.NewKafkaClient(cfg.KafkaBrokers, logger)
	defer func() {
		if err := kafkaClient.Close(); err != nil {
			logger.WithError(err).Error("failed to close Kafka client")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for _, chain := range cfg.Chains() {
		rpc, err := daemon.NewRPCClient(chain.RPCHost, chain.RPCPort, chain.RPCUser, chain.RPCPassword, &chaincfg.MainNetParams)
		if err != nil {
			logger.WithError(err).Error("failed to create daemon client", "chain", chain.Name)
			os.Exit(1)
		}
		defer rpc.Close()

		reporter := &payoutReporter{
			pool:    cfg.PoolName,
			archive: archive,
			kafka:   kafkaClient,
			logger:  logger,
		}
		pipeline := accounting.NewPipeline(store, rpc, cfg, chain, reporter, logger)

		wg.Add(1)
		go func(chain config.Chain) {
			defer wg.Done()
			if err := pipeline.Start(ctx); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("pipeline stopped", "chain", chain.Name)
				cancel()
			}
		}(chain)

		if chain.ZMQAddr != "" {
			watcher, err := daemon.NewBlockWatcher(chain.ZMQAddr, chain.Name, logger, func(string) {
				pipeline.TriggerCheck()
			})
			if err != nil {
				logger.WithError(err).Error("failed to create block watcher", "chain", chain.Name)
				os.Exit(1)
			}

			wg.Add(1)
			go func(chain config.Chain) {
				defer wg.Done()
				defer func() {
					if err := watcher.Close(); err != nil {
						logger.WithError(err).Error("failed to close block watcher", "chain", chain.Name)
					}
				}()
				if err := watcher.Start(ctx); err != nil && ctx.Err() == nil {
					logger.WithError(err).Error("block watcher stopped", "chain", chain.Name)
				}
			}(chain)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()
	wg.Wait()
	logger.Info("paymentd stopped")
}

// payoutReporter forwards pipeline outcomes to the archive tier and
// announces completed payouts on the payout topic.
type payoutReporter struct {
	pool    string
	archive *database.Archive
	kafka   *messaging.KafkaClient
	logger  *log.Logger
}

func (r *payoutReporter) ReportRun(ctx context.Context, chain, mode string, rounds int, duration time.Duration) {
	r.archive.ReportRun(ctx, chain, mode, rounds, duration)
}

func (r *payoutReporter) ReportPayout(ctx context.Context, chain string, result *accounting.CommitResult) {
	r.archive.ReportPayout(ctx, chain, result)

	event := &messaging.PayoutEvent{
		Pool:        r.pool,
		Chain:       chain,
		Transaction: result.Transaction,
		Miners:      result.Miners,
		TotalPaid:   result.TotalPaid,
		PaidAt:      time.Now(),
	}
	if err := r.kafka.PublishJSON(ctx, messaging.TopicPayouts, result.Transaction, event); err != nil {
		r.logger.WithError(err).Error("failed to publish payout event",
			"chain", chain,
			"txid", result.Transaction)
	}
}
