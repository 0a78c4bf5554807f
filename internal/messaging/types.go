package messaging

import "time"

// ShareEvent is one accepted share from the stratum tier. Work is the
// share's difficulty credit; Port routes it to the solo or shared namespace.
type ShareEvent struct {
	Pool        string    `json:"pool"`
	Chain       string    `json:"chain"`
	Worker      string    `json:"worker"`
	Work        float64   `json:"work"`
	Kind        string    `json:"kind"` // "valid", "invalid" or "stale"
	Port        int       `json:"port"`
	BlockFound  bool      `json:"block_found"`
	BlockHash   string    `json:"block_hash,omitempty"`
	BlockHeight int64     `json:"block_height,omitempty"`
	BlockReward float64   `json:"block_reward,omitempty"`
	Transaction string    `json:"transaction,omitempty"` // coinbase txid when a block was found
	NetworkDiff float64   `json:"network_diff,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Share kinds accepted on the share topic
const (
	ShareValid   = "valid"
	ShareInvalid = "invalid"
	ShareStale   = "stale"
)

// BlockFoundEvent announces a promoted round to downstream consumers
type BlockFoundEvent struct {
	Pool    string    `json:"pool"`
	Chain   string    `json:"chain"`
	Height  int64     `json:"height"`
	Hash    string    `json:"hash"`
	Worker  string    `json:"worker"`
	Solo    bool      `json:"solo"`
	Luck    float64   `json:"luck"`
	FoundAt time.Time `json:"found_at"`
}

// PayoutEvent announces a completed send-many payout
type PayoutEvent struct {
	Pool        string    `json:"pool"`
	Chain       string    `json:"chain"`
	Transaction string    `json:"transaction"`
	Miners      int       `json:"miners"`
	TotalPaid   float64   `json:"total_paid"`
	PaidAt      time.Time `json:"paid_at"`
}
