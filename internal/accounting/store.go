package accounting

import (
	"context"

	"github.com/poolcore/payd/internal/ledger"
)

// Store is the subset of ledger operations the accounting engine consumes.
// This interface allows for easy mocking and testing of the pipeline stages.
type Store interface {
	// Exec applies a command batch as one atomic transaction.
	Exec(ctx context.Context, batch *ledger.CommandBatch) error

	// HGetFloat reads one hash field as a float; the bool reports presence.
	HGetFloat(ctx context.Context, key, field string) (float64, bool, error)

	// HGetAllFloat reads a whole hash of float values.
	HGetAllFloat(ctx context.Context, key string) (map[string]float64, error)

	// SumHashFloats sums every float value in a hash.
	SumHashFloats(ctx context.Context, key string) (float64, error)

	// GetBlocks decodes a set of serialized block records, sorted by height.
	GetBlocks(ctx context.Context, key string) ([]ledger.Block, error)

	// GetRoundShares splits a round's share hash into per-worker solo and
	// shared work totals.
	GetRoundShares(ctx context.Context, key string) (solo, shared map[string]float64, err error)
}

// Compile-time interface compliance check
var _ Store = (*ledger.Client)(nil)
