// Package ledger provides the durable accounting record for the pool.
// A Redis instance is the single source of truth for rounds, shares, times,
// blocks, and balances; every mutation is expressed as a CommandBatch and
// applied atomically. The serialized record layouts below are the wire
// format against the store and must stay compatible with existing data.
package ledger

import (
	"encoding/json"
	"sort"
)

// Share identifies one share record inside a round's shares hash. The hash
// field carries only time, worker and solo; the work total lives in the hash
// value so repeated submissions by the same worker fold into one entry, and
// session times accumulate in the separate times hash keyed by worker.
// Putting work or times inside the field would make every submission a
// distinct record and break that accumulation.
type Share struct {
	Time   int64  `json:"time"`
	Worker string `json:"worker"`
	Solo   bool   `json:"solo"`
}

// Encode serializes the share record for use as a hash field
func (s Share) Encode() string {
	data, _ := json.Marshal(s)
	return string(data)
}

// DecodeShare parses a serialized share hash field
func DecodeShare(data string) (Share, error) {
	var s Share
	err := json.Unmarshal([]byte(data), &s)
	return s, err
}

// Block is a candidate or resolved block record. Members of the per-state
// block sets are the serialized form, so field order and names are fixed.
type Block struct {
	Time        int64   `json:"time"`
	Height      int64   `json:"height"`
	Hash        string  `json:"hash"`
	Reward      float64 `json:"reward"`
	Transaction string  `json:"transaction"`
	Difficulty  float64 `json:"difficulty"`
	Worker      string  `json:"worker"`
	Solo        bool    `json:"solo"`
	Luck        float64 `json:"luck"`
}

// Encode serializes the block record for set membership
func (b Block) Encode() string {
	data, _ := json.Marshal(b)
	return string(data)
}

// DecodeBlock parses a serialized block set member
func DecodeBlock(data string) (Block, error) {
	var b Block
	err := json.Unmarshal([]byte(data), &b)
	return b, err
}

// PaymentRecord is one entry in the append-only payout history, scored by
// time in a sorted set.
type PaymentRecord struct {
	Time        int64   `json:"time"`
	Paid        float64 `json:"paid"`
	Miners      int     `json:"miners"`
	Transaction string  `json:"transaction"`
}

// Encode serializes the payment record for sorted-set membership
func (p PaymentRecord) Encode() string {
	data, _ := json.Marshal(p)
	return string(data)
}

// SortBlocksByHeight orders blocks by ascending height, preserving the
// relative order of blocks at equal height (first-seen wins duplicate
// resolution depends on this).
func SortBlocksByHeight(blocks []Block) {
	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].Height < blocks[j].Height
	})
}
