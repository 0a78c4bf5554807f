// Package database provides the best-effort archive tier for payd,
// coordinating the PostgreSQL history and InfluxDB metrics. The ledger store
// stays authoritative; nothing here may fail a settlement run.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/poolcore/payd/internal/accounting"
	"github.com/poolcore/payd/internal/database/influx"
	"github.com/poolcore/payd/internal/database/postgres"
	"github.com/poolcore/payd/internal/ledger"
	"github.com/poolcore/payd/internal/messaging"
	"github.com/poolcore/payd/pkg/log"
	"github.com/poolcore/payd/pkg/retry"
)

// Archive coordinates the relational history and metrics stores. Either
// client may be nil when the corresponding backend is not configured.
type Archive struct {
	pool     string
	postgres *postgres.Client
	influx   *influx.Client
	blocks   *postgres.BlockRepository
	payouts  *postgres.PayoutRepository

	retryConfig *retry.Config
	logger      *log.Logger
}

// Config holds configuration for the archive backends
type Config struct {
	Pool     string
	Postgres *postgres.Config
	Influx   *influx.Config
}

// NewArchive connects the configured archive backends. A backend with an
// empty configuration is skipped.
func NewArchive(cfg *Config, logger *log.Logger) (*Archive, error) {
	a := &Archive{
		pool:        cfg.Pool,
		retryConfig: retry.DefaultConfig(),
		logger:      logger.WithComponent("archive"),
	}

	if cfg.Postgres != nil && cfg.Postgres.URL != "" {
		client, err := postgres.NewClient(cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		a.postgres = client
		a.blocks = postgres.NewBlockRepository(client.DB())
		a.payouts = postgres.NewPayoutRepository(client.DB())
	}

	if cfg.Influx != nil && cfg.Influx.URL != "" {
		client, err := influx.NewClient(cfg.Influx)
		if err != nil {
			if a.postgres != nil {
				if closeErr := a.postgres.Close(); closeErr != nil {
					logger.WithError(closeErr).Error("failed to close PostgreSQL during cleanup")
				}
			}
			return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
		}
		a.influx = client
	}

	return a, nil
}

// Close closes all archive connections
func (a *Archive) Close() error {
	var errs []error

	if a.postgres != nil {
		if err := a.postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("PostgreSQL close error: %w", err))
		}
	}
	if a.influx != nil {
		a.influx.Close()
	}

	if len(errs) > 0 {
		return fmt.Errorf("archive close errors: %v", errs)
	}
	return nil
}

// Health checks all configured archive backends
func (a *Archive) Health(ctx context.Context) error {
	if a.postgres != nil {
		if err := a.postgres.Health(ctx); err != nil {
			return fmt.Errorf("PostgreSQL health check failed: %w", err)
		}
	}
	if a.influx != nil {
		if err := a.influx.Health(ctx); err != nil {
			return fmt.Errorf("InfluxDB health check failed: %w", err)
		}
	}
	return nil
}

// ArchiveShare records one share metric
func (a *Archive) ArchiveShare(chain string, event *messaging.ShareEvent, solo bool) {
	if a.influx == nil {
		return
	}
	a.influx.WriteShareMetric(a.pool, chain, event.Worker, event.Kind, event.Work, solo)
}

// ArchiveBlock records a promoted or resolved block. The relational write is
// retried briefly and then dropped with a log line.
func (a *Archive) ArchiveBlock(ctx context.Context, chain string, block ledger.Block, category string, confirmations int64) {
	if a.influx != nil {
		a.influx.WriteBlockMetric(a.pool, chain, block.Height, category, block.Reward, block.Luck)
	}

	if a.blocks == nil {
		return
	}

	record := &postgres.BlockArchive{
		Pool:          a.pool,
		Chain:         chain,
		Height:        block.Height,
		Hash:          block.Hash,
		Category:      category,
		Reward:        block.Reward,
		Luck:          block.Luck,
		Worker:        block.Worker,
		Solo:          block.Solo,
		Confirmations: confirmations,
		FoundAt:       time.Unix(block.Time, 0),
	}
	if category != accounting.CategoryPending {
		record.ResolvedAt = sql.NullTime{Time: time.Now(), Valid: true}
	}

	err := retry.Do(ctx, a.retryConfig, func() error {
		return a.blocks.UpsertBlock(ctx, record)
	})
	if err != nil {
		a.logger.WithError(err).Warn("failed to archive block",
			"chain", chain,
			"height", block.Height)
	}
}

// ReportRun records one pipeline run metric
func (a *Archive) ReportRun(_ context.Context, chain, mode string, rounds int, duration time.Duration) {
	if a.influx == nil {
		return
	}
	a.influx.WritePipelineRunMetric(a.pool, chain, mode, rounds, duration)
}

// ReportPayout archives one completed payout
func (a *Archive) ReportPayout(ctx context.Context, chain string, result *accounting.CommitResult) {
	if a.influx != nil {
		a.influx.WritePayoutMetric(a.pool, chain, result.Miners, result.TotalPaid)
	}

	if a.payouts == nil {
		return
	}

	payout := &postgres.Payout{
		Pool:        a.pool,
		Chain:       chain,
		Transaction: result.Transaction,
		Miners:      result.Miners,
		TotalPaid:   result.TotalPaid,
		PaidAt:      time.Now(),
	}

	err := retry.Do(ctx, a.retryConfig, func() error {
		return a.payouts.CreatePayout(ctx, payout)
	})
	if err != nil {
		a.logger.WithError(err).Warn("failed to archive payout",
			"chain", chain,
			"txid", result.Transaction)
	}
}

// Compile-time interface compliance check
var _ accounting.Reporter = (*Archive)(nil)
