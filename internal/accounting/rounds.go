package accounting

import (
	"github.com/poolcore/payd/internal/ledger"
)

// Block categories assigned during classification. Immature and generate
// rounds proceed to reward allocation; orphan and kicked rounds carry their
// shares forward into the next round instead.
const (
	CategoryPending  = "pending"
	CategoryImmature = "immature"
	CategoryGenerate = "generate"
	CategoryOrphan   = "orphan"
	CategoryKicked   = "kicked"
)

// Round is one pending block and its frozen share data moving through a
// pipeline run. It exists only for the duration of the run; the ledger is
// re-read on every run.
type Round struct {
	Block         ledger.Block
	Serialized    string // exact record as stored in the pending set
	Category      string
	Confirmations int64

	// Reward as classified from the wallet transaction, in coin units
	Reward float64

	// Frozen share and time data for the round's namespace
	SoloShares   map[string]float64
	SharedShares map[string]float64
	Times        map[string]float64

	// Set on orphan/kicked rounds whose share data may be reclaimed
	Delete bool

	// Carried forward into the next round when the block died
	OrphanShares map[string]float64
	OrphanTimes  map[string]float64
}

// Height returns the round's block height
func (r *Round) Height() int64 {
	return r.Block.Height
}

// dead reports whether the round's block did not make it on chain
func (r *Round) dead() bool {
	return r.Category == CategoryOrphan || r.Category == CategoryKicked
}

// checkShares reports whether a dead round's share keys are safe to delete.
// They are not while any other live round at the same height exists: after a
// transient fork two rounds can reference the same underlying share data, and
// deleting it would strand the surviving sibling.
func checkShares(rounds []*Round, round *Round) bool {
	for _, sibling := range rounds {
		if sibling.Serialized == round.Serialized {
			continue
		}
		if sibling.Height() == round.Height() && !sibling.dead() {
			return false
		}
	}
	return true
}
