package accounting

import (
	"context"
	"strings"

	"github.com/btcsuite/btcd/btcjson"

	"github.com/poolcore/payd/internal/config"
	"github.com/poolcore/payd/internal/daemon"
	"github.com/poolcore/payd/internal/ledger"
	"github.com/poolcore/payd/pkg/errors"
	"github.com/poolcore/payd/pkg/log"
)

// Resolver reconciles pending blocks against daemon state: it resolves
// duplicate height claims, classifies each block's wallet transaction, and
// loads the frozen share data the allocator needs.
type Resolver struct {
	store     Store
	rpc       daemon.RPCInterface
	cfg       *config.Config
	chain     config.Chain
	magnitude int64
	logger    *log.Logger
}

// NewResolver creates a resolver for one chain
func NewResolver(store Store, rpc daemon.RPCInterface, cfg *config.Config, chain config.Chain, magnitude int64, logger *log.Logger) *Resolver {
	return &Resolver{
		store:     store,
		rpc:       rpc,
		cfg:       cfg,
		chain:     chain,
		magnitude: magnitude,
		logger:    logger.WithChain(cfg.PoolName, chain.Name),
	}
}

// LoadRounds loads the chain's pending blocks, resolves duplicates, and
// classifies the survivors. Blocks whose classification is ambiguous this
// run are left in the pending set and omitted from the result.
func (r *Resolver) LoadRounds(ctx context.Context) ([]*Round, error) {
	pendingKey := ledger.BlocksKey(r.cfg.PoolName, r.chain.Name, ledger.BlocksPending)
	blocks, err := r.store.GetBlocks(ctx, pendingKey)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeLedger, "load_rounds",
			"failed to load pending blocks")
	}
	if len(blocks) == 0 {
		return nil, nil
	}

	rounds := make([]*Round, 0, len(blocks))
	for _, block := range blocks {
		rounds = append(rounds, &Round{
			Block:      block,
			Serialized: block.Encode(),
			Category:   CategoryPending,
		})
	}

	rounds, err = r.resolveDuplicates(ctx, rounds)
	if err != nil {
		return nil, err
	}

	rounds, err = r.classify(ctx, rounds)
	if err != nil {
		return nil, err
	}

	if err := r.loadShareData(ctx, rounds); err != nil {
		return nil, err
	}

	for _, round := range rounds {
		if round.dead() {
			round.OrphanShares = round.SharedShares
			round.OrphanTimes = round.Times
			round.Delete = checkShares(rounds, round)
		}
	}

	return rounds, nil
}

// resolveDuplicates enforces at most one pending block per height. Blocks the
// daemon reports with negative confirmations are dead; among the remaining
// claims at a height the first-seen record survives. Moves to the duplicate
// set are committed before classification continues.
func (r *Resolver) resolveDuplicates(ctx context.Context, rounds []*Round) ([]*Round, error) {
	byHeight := make(map[int64][]*Round)
	for _, round := range rounds {
		byHeight[round.Height()] = append(byHeight[round.Height()], round)
	}

	var duplicated []*Round
	for _, group := range byHeight {
		if len(group) > 1 {
			duplicated = append(duplicated, group...)
		}
	}
	if len(duplicated) == 0 {
		return rounds, nil
	}

	hashes := make([]string, len(duplicated))
	for i, round := range duplicated {
		hashes[i] = round.Block.Hash
	}

	results, err := r.rpc.GetBlocks(ctx, hashes)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDaemon, "resolve_duplicates",
			"batched block query failed")
	}

	confirmations := make(map[string]int64, len(results))
	for _, result := range results {
		if result.Err != nil {
			return nil, errors.Wrap(result.Err, errors.ErrorTypeDaemon, "resolve_duplicates",
				"failed to query duplicate block").
				WithContext("hash", result.Hash)
		}
		confirmations[result.Hash] = result.Block.Confirmations
	}

	pendingKey := ledger.BlocksKey(r.cfg.PoolName, r.chain.Name, ledger.BlocksPending)
	duplicateKey := ledger.BlocksKey(r.cfg.PoolName, r.chain.Name, ledger.BlocksDuplicate)

	moves := ledger.NewBatch()
	removed := make(map[string]bool)
	for height, group := range byHeight {
		if len(group) < 2 {
			continue
		}

		var survivor *Round
		for _, round := range group {
			if confirmations[round.Block.Hash] < 0 {
				continue
			}
			if survivor == nil || round.Block.Time < survivor.Block.Time ||
				(round.Block.Time == survivor.Block.Time && round.Block.Hash < survivor.Block.Hash) {
				survivor = round
			}
		}

		for _, round := range group {
			if round == survivor {
				continue
			}
			moves.SMove(pendingKey, duplicateKey, round.Serialized)
			removed[round.Serialized] = true
			r.logger.Warn("moved duplicate block",
				"height", height,
				"hash", round.Block.Hash)
		}
	}

	if moves.Len() > 0 {
		if err := r.store.Exec(ctx, moves); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeLedger, "resolve_duplicates",
				"failed to commit duplicate moves")
		}
	}

	survivors := rounds[:0]
	for _, round := range rounds {
		if !removed[round.Serialized] {
			survivors = append(survivors, round)
		}
	}
	return survivors, nil
}

// classify fetches each surviving block's wallet transaction and derives its
// category, reward and confirmation count. A block whose query fails for any
// reason other than an unknown transaction is skipped until the next run.
func (r *Resolver) classify(ctx context.Context, rounds []*Round) ([]*Round, error) {
	if len(rounds) == 0 {
		return rounds, nil
	}

	txids := make([]string, len(rounds))
	for i, round := range rounds {
		txids[i] = round.Block.Transaction
	}

	results, err := r.rpc.GetTransactions(ctx, txids)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDaemon, "classify",
			"batched transaction query failed")
	}

	classified := rounds[:0]
	for i, round := range rounds {
		result := results[i]

		if result.Err != nil {
			if code, ok := daemon.RPCErrorCode(result.Err); ok && code == btcjson.ErrRPCInvalidAddressOrKey {
				// The wallet no longer knows the transaction
				round.Category = CategoryKicked
				classified = append(classified, round)
				continue
			}
			r.logger.WithError(result.Err).Warn("skipping block with unresolved transaction",
				"height", round.Height(),
				"txid", round.Block.Transaction)
			continue
		}

		if result.Tx == nil || len(result.Tx.Details) == 0 {
			round.Category = CategoryKicked
			classified = append(classified, round)
			continue
		}

		detail := r.selectDetail(result.Tx.Details)
		if detail == nil {
			r.logger.Warn("skipping block with no attributable transaction detail",
				"height", round.Height(),
				"txid", round.Block.Transaction)
			continue
		}

		category := detail.Category
		switch category {
		case CategoryGenerate, CategoryImmature, CategoryOrphan:
		default:
			r.logger.Warn("skipping block with unexpected transaction category",
				"height", round.Height(),
				"category", category)
			continue
		}

		round.Category = category
		round.Reward = RoundTo(detail.Amount, coinPrecision(r.magnitude))
		round.Confirmations = result.Tx.Confirmations
		classified = append(classified, round)

		r.logger.LogRoundResolved(round.Height(), round.Block.Hash, category, round.Confirmations)
	}

	return classified, nil
}

// selectDetail picks the generation detail for the pool's own address. Some
// daemons prefix addresses with an account or asset label before a colon.
func (r *Resolver) selectDetail(details []btcjson.GetTransactionDetailsResult) *btcjson.GetTransactionDetailsResult {
	for i := range details {
		address := details[i].Address
		if idx := strings.Index(address, ":"); idx >= 0 {
			address = address[idx+1:]
		}
		if address == r.chain.PoolAddress {
			return &details[i]
		}
	}

	if len(details) == 1 {
		return &details[0]
	}

	var lowest *btcjson.GetTransactionDetailsResult
	for i := range details {
		if lowest == nil || details[i].Vout < lowest.Vout {
			lowest = &details[i]
		}
	}
	return lowest
}

// loadShareData populates each round's frozen share and time maps from its
// height snapshot.
func (r *Resolver) loadShareData(ctx context.Context, rounds []*Round) error {
	for _, round := range rounds {
		sharesKey := ledger.RoundSnapshotKey(r.cfg.PoolName, r.chain.Name, round.Height(), ledger.LeafShares)
		timesKey := ledger.RoundSnapshotKey(r.cfg.PoolName, r.chain.Name, round.Height(), ledger.LeafTimes)

		solo, shared, err := r.store.GetRoundShares(ctx, sharesKey)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeLedger, "load_share_data",
				"failed to load round shares").
				WithContext("height", round.Height())
		}

		times, err := r.store.HGetAllFloat(ctx, timesKey)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeLedger, "load_share_data",
				"failed to load round times").
				WithContext("height", round.Height())
		}

		round.SoloShares = solo
		round.SharedShares = shared
		round.Times = times
	}
	return nil
}
