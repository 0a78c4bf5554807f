package accounting

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/poolcore/payd/internal/config"
	"github.com/poolcore/payd/internal/ledger"
	"github.com/poolcore/payd/internal/messaging"
	"github.com/poolcore/payd/pkg/errors"
	"github.com/poolcore/payd/pkg/log"
)

// sessionTimeout is the silence gap after which a worker's session is
// considered broken. Idle time beyond it is not credited as mining time.
const sessionTimeout = 900.0

// Recorder turns accepted share events into round accumulation writes and,
// on block discovery, promotes the current round into a frozen snapshot plus
// a pending block.
type Recorder struct {
	store  Store
	cfg    *config.Config
	chain  config.Chain
	logger *log.Logger
}

// NewRecorder creates a share recorder for one chain
func NewRecorder(store Store, cfg *config.Config, chain config.Chain, logger *log.Logger) *Recorder {
	return &Recorder{
		store:  store,
		cfg:    cfg,
		chain:  chain,
		logger: logger.WithChain(cfg.PoolName, chain.Name),
	}
}

// RecordShare builds the store operations for one share event. The returned
// block is non-nil when the event promoted the round. The caller executes
// the batch as a single transaction; on failure the share is dropped, not
// re-queued, so recording is at most once.
func (r *Recorder) RecordShare(ctx context.Context, event *messaging.ShareEvent, now time.Time) (*ledger.CommandBatch, *ledger.Block, error) {
	switch event.Kind {
	case messaging.ShareValid, messaging.ShareInvalid, messaging.ShareStale:
	default:
		return nil, nil, errors.New(errors.ErrorTypeValidation, "record_share",
			"unknown share kind").
			WithContext("kind", event.Kind).
			WithContext("worker", event.Worker)
	}

	pool := r.cfg.PoolName
	chain := r.chain.Name
	solo := r.cfg.IsSoloPort(event.Port)

	sharesKey := ledger.CurrentRoundKey(pool, chain, solo, ledger.LeafShares)
	timesKey := ledger.CurrentRoundKey(pool, chain, solo, ledger.LeafTimes)
	countsKey := ledger.CurrentRoundKey(pool, chain, solo, ledger.LeafCounts)
	subsKey := ledger.CurrentRoundKey(pool, chain, solo, ledger.LeafSubmissions)

	batch := ledger.NewBatch()
	batch.HIncrBy(countsKey, event.Kind, 1)

	if event.Kind == messaging.ShareValid {
		nowSec := RoundTo(float64(now.UnixMilli())/1000, 4)

		lastSeen, seen, err := r.store.HGetFloat(ctx, subsKey, event.Worker)
		if err != nil {
			return nil, nil, errors.Wrap(err, errors.ErrorTypeLedger, "record_share",
				"failed to read worker submission time").
				WithContext("worker", event.Worker)
		}
		if seen {
			timeChange := RoundTo(nowSec-lastSeen, 4)
			if timeChange >= 0 && timeChange < sessionTimeout {
				batch.HIncrByFloat(timesKey, event.Worker, timeChange)
			}
		}
		if !event.BlockFound {
			batch.HSet(subsKey, event.Worker, strconv.FormatFloat(nowSec, 'f', 4, 64))
		}
	}

	// Stale shares are counted but carry no weight. Invalid shares are
	// recorded as a negative marker for diagnostics, never for reward.
	work := event.Work
	if event.Kind == messaging.ShareInvalid {
		work = -math.Abs(work)
	}
	if event.Kind != messaging.ShareStale {
		record := ledger.Share{
			Time:   now.Unix(),
			Worker: event.Worker,
			Solo:   solo,
		}
		batch.HIncrByFloat(sharesKey, record.Encode(), work)
	}

	var promoted *ledger.Block
	if event.BlockFound && event.Kind == messaging.ShareValid {
		block, err := r.promoteRound(ctx, batch, event, now, solo)
		if err != nil {
			return nil, nil, err
		}
		promoted = block
	}

	return batch, promoted, nil
}

// promoteRound appends the block promotion operations: freeze the current
// round under round-{height}, reset the submissions map, and enqueue the
// pending block. The promoting share's own write precedes the renames in the
// batch, so the snapshot includes it.
func (r *Recorder) promoteRound(ctx context.Context, batch *ledger.CommandBatch, event *messaging.ShareEvent, now time.Time, solo bool) (*ledger.Block, error) {
	pool := r.cfg.PoolName
	chain := r.chain.Name

	sharesKey := ledger.CurrentRoundKey(pool, chain, solo, ledger.LeafShares)
	timesKey := ledger.CurrentRoundKey(pool, chain, solo, ledger.LeafTimes)
	countsKey := ledger.CurrentRoundKey(pool, chain, solo, ledger.LeafCounts)
	subsKey := ledger.CurrentRoundKey(pool, chain, solo, ledger.LeafSubmissions)

	roundWork, err := r.store.SumHashFloats(ctx, sharesKey)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeLedger, "promote_round",
			"failed to sum round shares for luck").
			WithContext("height", event.BlockHeight)
	}

	var luck float64
	if event.NetworkDiff > 0 {
		luck = RoundTo((roundWork+event.Work)/event.NetworkDiff*100, 2)
	}

	block := ledger.Block{
		Time:        now.Unix(),
		Height:      event.BlockHeight,
		Hash:        event.BlockHash,
		Reward:      event.BlockReward,
		Transaction: event.Transaction,
		Difficulty:  event.NetworkDiff,
		Worker:      event.Worker,
		Solo:        solo,
		Luck:        luck,
	}

	// Rename requires the source key to exist; the zero-delta increment
	// guarantees it for a round whose first valid share found the block.
	batch.HIncrByFloat(timesKey, event.Worker, 0)

	batch.Del(subsKey)
	batch.Rename(sharesKey, ledger.RoundSnapshotKey(pool, chain, event.BlockHeight, ledger.LeafShares))
	batch.Rename(timesKey, ledger.RoundSnapshotKey(pool, chain, event.BlockHeight, ledger.LeafTimes))
	batch.Rename(countsKey, ledger.RoundSnapshotKey(pool, chain, event.BlockHeight, ledger.LeafCounts))
	batch.SAdd(ledger.BlocksKey(pool, chain, ledger.BlocksPending), block.Encode())

	kind := "shared"
	if solo {
		kind = "solo"
	}
	batch.HIncrBy(ledger.BlockCountsKey(pool, chain), kind, 1)

	r.logger.LogBlockPromoted(event.BlockHeight, event.BlockHash, event.Worker, luck)
	return &block, nil
}
