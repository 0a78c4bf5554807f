package accounting

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"

	"github.com/poolcore/payd/internal/config"
	"github.com/poolcore/payd/internal/daemon"
	"github.com/poolcore/payd/internal/ledger"
	"github.com/poolcore/payd/pkg/errors"
	"github.com/poolcore/payd/pkg/log"
)

// Committer turns a run's allocation into one atomic ledger transaction,
// issuing the payout send beforehand when a payment run has workers above
// threshold.
type Committer struct {
	store       Store
	rpc         daemon.RPCInterface
	cfg         *config.Config
	chain       config.Chain
	magnitude   int64
	recoveryDir string
	logger      *log.Logger
}

// NewCommitter creates a committer for one chain
func NewCommitter(store Store, rpc daemon.RPCInterface, cfg *config.Config, chain config.Chain, magnitude int64, logger *log.Logger) *Committer {
	return &Committer{
		store:       store,
		rpc:         rpc,
		cfg:         cfg,
		chain:       chain,
		magnitude:   magnitude,
		recoveryDir: cfg.RecoveryDir,
		logger:      logger.WithChain(cfg.PoolName, chain.Name),
	}
}

// CommitResult summarizes a completed commit
type CommitResult struct {
	Miners      int
	TotalPaid   float64
	Transaction string
}

// Commit settles one pipeline run. On a payment run it selects workers above
// the minimum-payment threshold, issues a single send-many call for them, and
// then writes payment records, worker balances and round state transitions as
// one transaction. A checks run writes balances and transitions only.
func (c *Committer) Commit(ctx context.Context, rounds []*Round, alloc *Allocation, payment bool) (*CommitResult, error) {
	balances, err := c.loadBalances(ctx)
	if err != nil {
		return nil, err
	}

	c.reportOwed(ctx, rounds, balances, payment)

	sent := make(map[string]int64)
	change := make(map[string]int64)
	if payment {
		minPayment := CoinsToUnits(c.chain.MinPayment, c.magnitude)
		for _, worker := range unionWorkers(balances, alloc.Generate) {
			amount := balances[worker] + alloc.Generate[worker]
			if amount <= 0 {
				continue
			}
			if amount >= minPayment {
				sent[worker] = amount
			} else {
				change[worker] = amount
			}
		}
	}

	var txid string
	var totalSent int64
	if len(sent) > 0 {
		txid, totalSent, err = c.sendPayout(ctx, sent)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now()
	batch := ledger.NewBatch()
	c.appendPaymentRecord(batch, now, txid, totalSent, len(sent), payment)
	c.appendBalanceWrites(batch, alloc, sent, change, payment)
	c.appendRoundTransitions(batch, rounds, now, payment)

	if err := c.store.Exec(ctx, batch); err != nil {
		if txid != "" {
			return nil, c.catastrophic(batch, txid, err)
		}
		return nil, errors.Wrap(err, errors.ErrorTypeLedger, "commit",
			"failed to commit ledger transaction")
	}

	result := &CommitResult{
		Miners:      len(sent),
		TotalPaid:   c.formatUnits(totalSent),
		Transaction: txid,
	}
	if txid != "" {
		c.logger.LogPayout(txid, result.Miners, result.TotalPaid)
	}
	return result, nil
}

// loadBalances reads confirmed-but-unpaid worker balances, in smallest units
func (c *Committer) loadBalances(ctx context.Context) (map[string]int64, error) {
	key := ledger.PaymentsKey(c.cfg.PoolName, c.chain.Name, ledger.PaymentsBalances)
	coins, err := c.store.HGetAllFloat(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeLedger, "load_balances",
			"failed to load worker balances")
	}

	balances := make(map[string]int64, len(coins))
	for worker, amount := range coins {
		balances[worker] = CoinsToUnits(amount, c.magnitude)
	}
	return balances, nil
}

// reportOwed compares what the wallet holds against what the pool owes. The
// comparison is advisory: payouts are gated per worker by threshold, so a
// shortfall only warns.
func (c *Committer) reportOwed(ctx context.Context, rounds []*Round, balances map[string]int64, payment bool) {
	feeUnits := CoinsToUnits(c.chain.Fee, c.magnitude)

	var totalOwed int64
	for _, round := range rounds {
		if round.Category != CategoryGenerate {
			continue
		}
		owed := CoinsToUnits(round.Reward, c.magnitude) - feeUnits
		if owed > 0 {
			totalOwed += owed
		}
	}
	for _, balance := range balances {
		totalOwed += balance
	}
	if totalOwed <= 0 {
		return
	}

	unspent, err := c.rpc.ListUnspent(ctx, c.chain.MinConfirmations)
	if err != nil {
		c.logger.WithError(err).Warn("failed to query unspent outputs for owed check")
		return
	}

	var available int64
	for _, output := range unspent {
		available += CoinsToUnits(output.Amount, c.magnitude)
	}

	if available < totalOwed {
		if payment {
			c.logger.Warn("wallet balance below total owed",
				"available", c.formatUnits(available),
				"owed", c.formatUnits(totalOwed))
		} else {
			c.logger.Info("wallet balance below total owed",
				"available", c.formatUnits(available),
				"owed", c.formatUnits(totalOwed))
		}
	}
}

// sendPayout issues the single send-many call for the payout batch. It runs
// exactly once; every failure class aborts the cycle before any ledger write.
func (c *Committer) sendPayout(ctx context.Context, sent map[string]int64) (string, int64, error) {
	amounts := make(map[string]btcutil.Amount, len(sent))
	var total int64
	for worker, units := range sent {
		valid, err := c.rpc.ValidateAddress(ctx, worker)
		if err != nil {
			return "", 0, errors.Wrap(err, errors.ErrorTypeDaemon, "send_payout",
				"failed to validate payout address").
				WithContext("worker", worker)
		}
		if !valid {
			return "", 0, errors.New(errors.ErrorTypePayout, "send_payout",
				"payout batch contains an invalid address").
				WithContext("worker", worker)
		}

		amount, err := btcutil.NewAmount(c.formatUnits(units))
		if err != nil {
			return "", 0, errors.Wrap(err, errors.ErrorTypeValidation, "send_payout",
				"unrepresentable payout amount").
				WithContext("worker", worker)
		}
		amounts[worker] = amount
		total += units
	}

	txid, err := c.rpc.SendMany(ctx, amounts)
	if err != nil {
		if stderrors.Is(err, daemon.ErrMissingTxID) {
			// The send may have gone through; paying again could double pay,
			// so automatic payments stop here.
			return "", 0, errors.Wrap(err, errors.ErrorTypePayout, "send_payout",
				"daemon did not return a transaction id").Halting()
		}

		if code, ok := daemon.RPCErrorCode(err); ok {
			switch code {
			case btcjson.ErrRPCWalletInsufficientFunds:
				return "", 0, errors.Wrap(err, errors.ErrorTypePayout, "send_payout",
					"wallet has insufficient funds for payout")
			case btcjson.ErrRPCInvalidAddressOrKey:
				return "", 0, errors.Wrap(err, errors.ErrorTypePayout, "send_payout",
					"payout batch contains an invalid address")
			}
		}
		return "", 0, errors.Wrap(err, errors.ErrorTypePayout, "send_payout",
			"send-many call failed")
	}

	return txid, total, nil
}

// appendPaymentRecord appends the payout history entry and schedule metadata.
// The last and next timestamps track payment runs only, so a checks run never
// rewrites the payout schedule.
func (c *Committer) appendPaymentRecord(batch *ledger.CommandBatch, now time.Time, txid string, totalSent int64, miners int, payment bool) {
	countsKey := ledger.PaymentsKey(c.cfg.PoolName, c.chain.Name, ledger.PaymentsCounts)

	if txid != "" {
		record := ledger.PaymentRecord{
			Time:        now.Unix(),
			Paid:        c.formatUnits(totalSent),
			Miners:      miners,
			Transaction: txid,
		}
		recordsKey := ledger.PaymentsKey(c.cfg.PoolName, c.chain.Name, ledger.PaymentsRecords)
		batch.ZAdd(recordsKey, float64(now.Unix()), record.Encode())
		batch.HIncrByFloat(countsKey, "total", c.formatUnits(totalSent))
	}

	if payment {
		batch.HSet(countsKey, "last", strconv.FormatInt(now.Unix(), 10))
		batch.HSet(countsKey, "next", strconv.FormatInt(now.Add(c.chain.PaymentInterval).Unix(), 10))
	}
}

// appendBalanceWrites writes per-worker payment hashes. Immature and generate
// are recomputed from still-pending rounds every run and written absolutely;
// balances carry over sub-threshold change; paid accumulates.
func (c *Committer) appendBalanceWrites(batch *ledger.CommandBatch, alloc *Allocation, sent, change map[string]int64, payment bool) {
	pool, chain := c.cfg.PoolName, c.chain.Name
	balancesKey := ledger.PaymentsKey(pool, chain, ledger.PaymentsBalances)
	generateKey := ledger.PaymentsKey(pool, chain, ledger.PaymentsGenerate)
	immatureKey := ledger.PaymentsKey(pool, chain, ledger.PaymentsImmature)
	paidKey := ledger.PaymentsKey(pool, chain, ledger.PaymentsPaid)

	for worker, units := range alloc.Immature {
		batch.HSet(immatureKey, worker, c.formatCoins(units))
	}

	if !payment {
		for worker, units := range alloc.Generate {
			batch.HSet(generateKey, worker, c.formatCoins(units))
			if _, ok := alloc.Immature[worker]; !ok {
				batch.HSet(immatureKey, worker, "0")
			}
		}
		return
	}

	for worker, units := range sent {
		batch.HIncrByFloat(paidKey, worker, c.formatUnits(units))
		batch.HSet(balancesKey, worker, "0")
		batch.HSet(generateKey, worker, "0")
		if _, ok := alloc.Immature[worker]; !ok {
			batch.HSet(immatureKey, worker, "0")
		}
	}
	for worker, units := range change {
		batch.HSet(balancesKey, worker, c.formatCoins(units))
		batch.HSet(generateKey, worker, "0")
		if _, ok := alloc.Immature[worker]; !ok {
			batch.HSet(immatureKey, worker, "0")
		}
	}
}

// appendRoundTransitions applies block lifecycle moves. Dead rounds move to
// the kicked set, folding their shares into the current round when no live
// sibling still needs them. Matured rounds move to confirmed on payment runs
// only; immature rounds stay pending untouched.
func (c *Committer) appendRoundTransitions(batch *ledger.CommandBatch, rounds []*Round, now time.Time, payment bool) {
	pool, chain := c.cfg.PoolName, c.chain.Name
	pendingKey := ledger.BlocksKey(pool, chain, ledger.BlocksPending)
	confirmedKey := ledger.BlocksKey(pool, chain, ledger.BlocksConfirmed)
	kickedKey := ledger.BlocksKey(pool, chain, ledger.BlocksKicked)

	currentShares := ledger.CurrentRoundKey(pool, chain, false, ledger.LeafShares)
	currentTimes := ledger.CurrentRoundKey(pool, chain, false, ledger.LeafTimes)

	for _, round := range rounds {
		switch {
		case round.dead():
			batch.SMove(pendingKey, kickedKey, round.Serialized)
			if round.Delete {
				for worker, work := range round.OrphanShares {
					record := ledger.Share{Time: now.Unix(), Worker: worker, Solo: false}
					batch.HIncrByFloat(currentShares, record.Encode(), work)
				}
				for worker, seconds := range round.OrphanTimes {
					batch.HIncrByFloat(currentTimes, worker, seconds)
				}
				c.deleteRoundKeys(batch, round.Height())
			}

		case round.Category == CategoryGenerate && payment:
			batch.SMove(pendingKey, confirmedKey, round.Serialized)
			c.deleteRoundKeys(batch, round.Height())
		}
	}
}

func (c *Committer) deleteRoundKeys(batch *ledger.CommandBatch, height int64) {
	pool, chain := c.cfg.PoolName, c.chain.Name
	batch.Del(
		ledger.RoundSnapshotKey(pool, chain, height, ledger.LeafShares),
		ledger.RoundSnapshotKey(pool, chain, height, ledger.LeafTimes),
		ledger.RoundSnapshotKey(pool, chain, height, ledger.LeafCounts),
	)
}

// catastrophic handles a ledger commit failure after a payout left the
// wallet. The pending command list is persisted for manual replay and the
// chain's automatic payments halt.
func (c *Committer) catastrophic(batch *ledger.CommandBatch, txid string, cause error) error {
	path := filepath.Join(c.recoveryDir,
		fmt.Sprintf("%s_%s_commands.txt", c.cfg.PoolName, c.chain.Name))

	if writeErr := os.WriteFile(path, batch.Serialize(), 0o600); writeErr != nil {
		c.logger.WithError(writeErr).Error("failed to write recovery file",
			"path", path)
	} else {
		c.logger.Error("wrote recovery command file for manual replay",
			"path", path,
			"txid", txid)
	}

	return errors.Wrap(cause, errors.ErrorTypeLedger, "commit",
		"ledger commit failed after payout was sent").
		WithContext("txid", txid).
		WithContext("recovery_file", path).
		Halting()
}

func (c *Committer) formatUnits(units int64) float64 {
	return RoundTo(UnitsToCoins(units, c.magnitude), coinPrecision(c.magnitude))
}

func (c *Committer) formatCoins(units int64) string {
	return strconv.FormatFloat(c.formatUnits(units), 'f', -1, 64)
}

func unionWorkers(a, b map[string]int64) []string {
	seen := make(map[string]bool, len(a)+len(b))
	workers := make([]string, 0, len(a)+len(b))
	for worker := range a {
		if !seen[worker] {
			seen[worker] = true
			workers = append(workers, worker)
		}
	}
	for worker := range b {
		if !seen[worker] {
			seen[worker] = true
			workers = append(workers, worker)
		}
	}
	return workers
}
