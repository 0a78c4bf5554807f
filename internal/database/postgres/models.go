package postgres

import (
	"database/sql"
	"time"
)

// BlockArchive is one resolved block's archived record
type BlockArchive struct {
	ID            int64
	Pool          string
	Chain         string
	Height        int64
	Hash          string
	Category      string
	Reward        float64
	Luck          float64
	Worker        string
	Solo          bool
	Confirmations int64
	FoundAt       time.Time
	ResolvedAt    sql.NullTime
}

// Payout is one completed send-many transaction's archived record
type Payout struct {
	ID          int64
	Pool        string
	Chain       string
	Transaction string
	Miners      int
	TotalPaid   float64
	PaidAt      time.Time
}
