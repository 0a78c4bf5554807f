package ledger

import "fmt"

// Round key leaves
const (
	LeafShares      = "shares"
	LeafTimes       = "times"
	LeafCounts      = "counts"
	LeafSubmissions = "submissions"
)

// Block set states
const (
	BlocksPending   = "pending"
	BlocksConfirmed = "confirmed"
	BlocksKicked    = "kicked"
	BlocksDuplicate = "duplicate"
	BlocksManual    = "manual"
)

// Payment key leaves
const (
	PaymentsBalances = "balances"
	PaymentsGenerate = "generate"
	PaymentsImmature = "immature"
	PaymentsPaid     = "paid"
	PaymentsRecords  = "records"
	PaymentsCounts   = "counts"
)

// roundKind returns the namespace segment for a round
func roundKind(solo bool) string {
	if solo {
		return "solo"
	}
	return "shared"
}

// CurrentRoundKey builds a key for the live round of a chain:
// {pool}:rounds:{chain}:current:{shared|solo}:{leaf}
func CurrentRoundKey(pool, chain string, solo bool, leaf string) string {
	return fmt.Sprintf("%s:rounds:%s:current:%s:%s", pool, chain, roundKind(solo), leaf)
}

// RoundSnapshotKey builds a key for a frozen round snapshot:
// {pool}:rounds:{chain}:round-{height}:{leaf}
func RoundSnapshotKey(pool, chain string, height int64, leaf string) string {
	return fmt.Sprintf("%s:rounds:%s:round-%d:%s", pool, chain, height, leaf)
}

// BlocksKey builds a key for a block state set:
// {pool}:blocks:{chain}:{state}
func BlocksKey(pool, chain, state string) string {
	return fmt.Sprintf("%s:blocks:%s:%s", pool, chain, state)
}

// BlockCountsKey builds the key for the chain's block counters:
// {pool}:blocks:{chain}:counts
func BlockCountsKey(pool, chain string) string {
	return fmt.Sprintf("%s:blocks:%s:counts", pool, chain)
}

// PaymentsKey builds a key for a payment hash or set:
// {pool}:payments:{chain}:{leaf}
func PaymentsKey(pool, chain, leaf string) string {
	return fmt.Sprintf("%s:payments:%s:%s", pool, chain, leaf)
}
