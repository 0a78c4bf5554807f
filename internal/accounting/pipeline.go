package accounting

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/poolcore/payd/internal/config"
	"github.com/poolcore/payd/internal/daemon"
	"github.com/poolcore/payd/internal/ledger"
	"github.com/poolcore/payd/pkg/errors"
	"github.com/poolcore/payd/pkg/log"
)

// Reporter receives pipeline outcomes for archival and metrics. All methods
// are best effort; failures never affect the pipeline.
type Reporter interface {
	ReportRun(ctx context.Context, chain, mode string, rounds int, duration time.Duration)
	ReportPayout(ctx context.Context, chain string, result *CommitResult)
}

// Pipeline drives the per-chain settlement cycle: resolve pending rounds,
// allocate rewards, commit the ledger transaction. A checks run refreshes
// balances and round state; a payment run additionally pays workers above
// threshold.
type Pipeline struct {
	store    Store
	rpc      daemon.RPCInterface
	cfg      *config.Config
	chain    config.Chain
	reporter Reporter
	logger   *log.Logger

	// A run in flight makes concurrent invocations no-ops; a timer firing
	// during a slow run is skipped rather than queued.
	mu sync.Mutex

	halted    atomic.Bool
	magnitude atomic.Int64

	kick chan struct{}
}

// NewPipeline creates the settlement pipeline for one chain
func NewPipeline(store Store, rpc daemon.RPCInterface, cfg *config.Config, chain config.Chain, reporter Reporter, logger *log.Logger) *Pipeline {
	p := &Pipeline{
		store:    store,
		rpc:      rpc,
		cfg:      cfg,
		chain:    chain,
		reporter: reporter,
		logger:   logger.WithChain(cfg.PoolName, chain.Name),
		kick:     make(chan struct{}, 1),
	}
	p.magnitude.Store(chain.Magnitude)
	return p
}

// TriggerCheck requests an early checks run, typically on a block
// notification. Non-blocking; at most one trigger is queued.
func (p *Pipeline) TriggerCheck() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Halted reports whether automatic payments have been stopped after a
// catastrophic commit failure.
func (p *Pipeline) Halted() bool {
	return p.halted.Load()
}

// Start runs the checks and payments timers until the context is cancelled.
// One checks run executes immediately at startup.
func (p *Pipeline) Start(ctx context.Context) error {
	checkTicker := time.NewTicker(p.chain.CheckInterval)
	defer checkTicker.Stop()
	paymentTicker := time.NewTicker(p.chain.PaymentInterval)
	defer paymentTicker.Stop()

	if err := p.Run(ctx, false); err != nil {
		p.logger.WithError(err).Error("startup run failed")
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping")
			return ctx.Err()

		case <-checkTicker.C:
			if err := p.Run(ctx, false); err != nil {
				p.logger.WithError(err).Error("checks run failed")
			}

		case <-p.kick:
			if err := p.Run(ctx, false); err != nil {
				p.logger.WithError(err).Error("triggered checks run failed")
			}

		case <-paymentTicker.C:
			if p.halted.Load() {
				p.logger.Error("automatic payments halted, skipping payment run")
				continue
			}
			if err := p.Run(ctx, true); err != nil {
				p.logger.WithError(err).Error("payment run failed")
			}
		}
	}
}

// Run executes one full pipeline cycle. If a cycle is already in flight the
// call returns immediately without running.
func (p *Pipeline) Run(ctx context.Context, payment bool) error {
	if !p.mu.TryLock() {
		p.logger.Warn("pipeline run already in flight, skipping")
		return nil
	}
	defer p.mu.Unlock()

	mode := "checks"
	if payment {
		mode = "payments"
	}
	start := time.Now()

	magnitude, err := p.ensureMagnitude(ctx)
	if err != nil {
		return err
	}

	resolver := NewResolver(p.store, p.rpc, p.cfg, p.chain, magnitude, p.logger)
	rounds, err := resolver.LoadRounds(ctx)
	if err != nil {
		return err
	}

	allocator := NewAllocator(p.chain, magnitude, p.logger)
	alloc := NewAllocation()

	kept := rounds[:0]
	for _, round := range rounds {
		if round.Category != CategoryImmature && round.Category != CategoryGenerate {
			kept = append(kept, round)
			continue
		}
		if err := allocator.AllocateRound(round, alloc); err != nil {
			if stderrors.Is(err, ErrNoShares) {
				if handleErr := p.handleZeroShares(ctx, round, payment); handleErr != nil {
					return handleErr
				}
				continue
			}
			return err
		}
		kept = append(kept, round)
	}
	rounds = kept

	committer := NewCommitter(p.store, p.rpc, p.cfg, p.chain, magnitude, p.logger)
	result, err := committer.Commit(ctx, rounds, alloc, payment)
	if err != nil {
		if errors.IsHalting(err) {
			p.halted.Store(true)
		}
		return err
	}

	duration := time.Since(start)
	p.logger.LogPipelineRun(mode, len(rounds), float64(duration.Milliseconds()))

	if p.reporter != nil {
		p.reporter.ReportRun(ctx, p.chain.Name, mode, len(rounds), duration)
		if result.Transaction != "" {
			p.reporter.ReportPayout(ctx, p.chain.Name, result)
		}
	}
	return nil
}

// handleZeroShares parks a zero-contributor block. A reward that cannot be
// attributed cannot be settled automatically: on a payment run the block
// moves to the manual set and the cycle aborts.
func (p *Pipeline) handleZeroShares(ctx context.Context, round *Round, payment bool) error {
	if !payment {
		p.logger.Warn("round has no attributable shares",
			"height", round.Height(),
			"hash", round.Block.Hash)
		return nil
	}

	pendingKey := ledger.BlocksKey(p.cfg.PoolName, p.chain.Name, ledger.BlocksPending)
	manualKey := ledger.BlocksKey(p.cfg.PoolName, p.chain.Name, ledger.BlocksManual)

	moves := ledger.NewBatch()
	moves.SMove(pendingKey, manualKey, round.Serialized)
	if err := p.store.Exec(ctx, moves); err != nil {
		return errors.Wrap(err, errors.ErrorTypeLedger, "handle_zero_shares",
			"failed to park zero-share block").
			WithContext("height", round.Height())
	}

	return errors.New(errors.ErrorTypePayout, "handle_zero_shares",
		"block with no attributable shares moved to manual review").
		WithContext("height", round.Height()).
		WithContext("hash", round.Block.Hash)
}

// ensureMagnitude resolves the chain's smallest-unit subdivision. Configured
// values win; otherwise the first successful balance query fixes it, which
// doubles as a wallet liveness check before any settlement work.
func (p *Pipeline) ensureMagnitude(ctx context.Context) (int64, error) {
	if m := p.magnitude.Load(); m > 0 {
		return m, nil
	}

	if _, err := p.rpc.GetBalance(ctx); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeDaemon, "ensure_magnitude",
			"failed to query wallet balance")
	}

	// rpcclient parses wallet amounts at eight decimal places
	p.magnitude.Store(DefaultMagnitude)
	p.logger.Info("discovered chain magnitude", "magnitude", DefaultMagnitude)
	return DefaultMagnitude, nil
}
