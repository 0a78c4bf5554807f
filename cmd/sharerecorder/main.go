// Package main implements the sharerecorder service for payd.
// It consumes share events from the stratum tier and maintains the current
// round accounting in the ledger store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/poolcore/payd/internal/accounting"
	"github.com/poolcore/payd/internal/config"
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
	logger.Info("starting sharerecorder",
		"version", cfg.Version,
		"pool", cfg.PoolName,
		"worker_pool_size", cfg.WorkerPoolSize,
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

	service := NewRecorderService(cfg, logger, store, kafkaClient, archive)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := service.Start(ctx); err != nil {
			logger.WithError(err).Error("share recorder failed")
			cancel()
		}
	}()

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()
	service.Shutdown()
	logger.Info("sharerecorder stopped")
}

// RecorderService consumes share events and records them with a small
// worker pool. Ordering within one worker's events is not load-bearing:
// every write is an increment or rename in one transaction.
type RecorderService struct {
	cfg       *config.Config
	logger    *log.Logger
	store     *ledger.Client
	kafka     *messaging.KafkaClient
	archive   *database.Archive
	recorders map[string]*accounting.Recorder

	queue chan *messaging.ShareEvent
	done  chan struct{}
}

// NewRecorderService creates the service with one recorder per enabled chain
func NewRecorderService(cfg *config.Config, logger *log.Logger, store *ledger.Client, kafka *messaging.KafkaClient, archive *database.Archive) *RecorderService {
	recorders := make(map[string]*accounting.Recorder)
	for _, chain := range cfg.Chains() {
		recorders[chain.Name] = accounting.NewRecorder(store, cfg, chain, logger)
	}

	return &RecorderService{
		cfg:       cfg,
		logger:    logger.WithComponent("sharerecorder"),
		store:     store,
		kafka:     kafka,
		archive:   archive,
		recorders: recorders,
		queue:     make(chan *messaging.ShareEvent, cfg.WorkerPoolSize*10),
		done:      make(chan struct{}),
	}
}

// Start runs the worker pool and the Kafka consumer until the context is
// cancelled.
func (s *RecorderService) Start(ctx context.Context) error {
	s.logger.Info("share recorder starting")

	for i := 0; i < s.cfg.WorkerPoolSize; i++ {
		go s.worker(ctx, i)
	}

	return s.kafka.StartShareConsumer(ctx, s.cfg.KafkaGroupID, s)
}

// Shutdown stops the worker pool
func (s *RecorderService) Shutdown() {
	s.logger.Info("shutting down share recorder")
	close(s.done)
}

// HandleShare enqueues one decoded share event. A full queue drops the
// share: recording is at most once and backpressure on the stratum tier is
// not acceptable.
func (s *RecorderService) HandleShare(_ context.Context, _ string, event *messaging.ShareEvent) error {
	select {
	case s.queue <- event:
		return nil
	default:
		s.logger.Error("share queue full, dropping share",
			"chain", event.Chain,
			"worker", event.Worker)
		return nil
	}
}

func (s *RecorderService) worker(ctx context.Context, workerID int) {
	logger := s.logger.WithFields("worker_id", workerID)
	logger.Info("worker started")
	defer logger.Info("worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case event := <-s.queue:
			s.processEvent(ctx, event)
		}
	}
}

// processEvent records one share and, on block discovery, announces the
// promoted block downstream.
func (s *RecorderService) processEvent(ctx context.Context, event *messaging.ShareEvent) {
	recorder, ok := s.recorders[event.Chain]
	if !ok {
		s.logger.Warn("dropping share for unknown chain", "chain", event.Chain)
		return
	}

	now := time.Now()
	batch, block, err := recorder.RecordShare(ctx, event, now)
	if err != nil {
		s.logger.WithError(err).Error("failed to build share record",
			"chain", event.Chain,
			"worker", event.Worker)
		return
	}

	if err := s.store.Exec(ctx, batch); err != nil {
		s.logger.WithError(err).Error("failed to commit share record",
			"chain", event.Chain,
			"worker", event.Worker)
		return
	}

	s.archive.ArchiveShare(event.Chain, event, s.cfg.IsSoloPort(event.Port))

	if block == nil {
		return
	}

	s.archive.ArchiveBlock(ctx, event.Chain, *block, accounting.CategoryPending, 0)

	found := &messaging.BlockFoundEvent{
		Pool:    s.cfg.PoolName,
		Chain:   event.Chain,
		Height:  block.Height,
		Hash:    block.Hash,
		Worker:  block.Worker,
		Solo:    block.Solo,
		Luck:    block.Luck,
		FoundAt: now,
	}
	if err := s.kafka.PublishJSON(ctx, messaging.TopicBlocksFound, block.Hash, found); err != nil {
		s.logger.WithError(err).Error("failed to publish block found event",
			"chain", event.Chain,
			"height", block.Height)
	}
}
