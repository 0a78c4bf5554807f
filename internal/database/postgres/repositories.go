package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BlockRepository handles block archive operations
type BlockRepository struct {
	db *sql.DB
}

// NewBlockRepository creates a new block repository
func NewBlockRepository(db *sql.DB) *BlockRepository {
	return &BlockRepository{db: db}
}

// UpsertBlock inserts a block record or refreshes its resolution state.
// Re-archiving the same (pool, chain, hash) is expected: a block is archived
// when found and updated on every reclassification.
func (r *BlockRepository) UpsertBlock(ctx context.Context, block *BlockArchive) error {
	query := `
		INSERT INTO blocks (pool, chain, height, hash, category, reward, luck, worker, solo, confirmations, found_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (pool, chain, hash) DO UPDATE
		SET category = EXCLUDED.category,
		    reward = EXCLUDED.reward,
		    confirmations = EXCLUDED.confirmations,
		    resolved_at = EXCLUDED.resolved_at
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		block.Pool, block.Chain, block.Height, block.Hash, block.Category,
		block.Reward, block.Luck, block.Worker, block.Solo,
		block.Confirmations, block.FoundAt, block.ResolvedAt,
	).Scan(&block.ID)

	if err != nil {
		return fmt.Errorf("failed to upsert block: %w", err)
	}

	return nil
}

// GetRecentBlocks retrieves recent blocks for a chain with pagination
func (r *BlockRepository) GetRecentBlocks(ctx context.Context, pool, chain string, limit, offset int) ([]*BlockArchive, error) {
	query := `
		SELECT id, pool, chain, height, hash, category, reward, luck, worker, solo, confirmations, found_at, resolved_at
		FROM blocks
		WHERE pool = $1 AND chain = $2
		ORDER BY found_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := r.db.QueryContext(ctx, query, pool, chain, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var blocks []*BlockArchive
	for rows.Next() {
		block := &BlockArchive{}
		err := rows.Scan(
			&block.ID, &block.Pool, &block.Chain, &block.Height, &block.Hash,
			&block.Category, &block.Reward, &block.Luck, &block.Worker,
			&block.Solo, &block.Confirmations, &block.FoundAt, &block.ResolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		blocks = append(blocks, block)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating blocks: %w", err)
	}

	return blocks, nil
}

// PayoutRepository handles payout archive operations
type PayoutRepository struct {
	db *sql.DB
}

// NewPayoutRepository creates a new payout repository
func NewPayoutRepository(db *sql.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

// CreatePayout archives one completed send-many transaction
func (r *PayoutRepository) CreatePayout(ctx context.Context, payout *Payout) error {
	query := `
		INSERT INTO payouts (pool, chain, txid, miners, total_paid, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		payout.Pool, payout.Chain, payout.Transaction,
		payout.Miners, payout.TotalPaid, payout.PaidAt,
	).Scan(&payout.ID)

	if err != nil {
		return fmt.Errorf("failed to create payout: %w", err)
	}

	return nil
}

// GetPayoutsSince retrieves payouts for a chain newer than the cutoff
func (r *PayoutRepository) GetPayoutsSince(ctx context.Context, pool, chain string, since time.Time) ([]*Payout, error) {
	query := `
		SELECT id, pool, chain, txid, miners, total_paid, paid_at
		FROM payouts
		WHERE pool = $1 AND chain = $2 AND paid_at >= $3
		ORDER BY paid_at DESC`

	rows, err := r.db.QueryContext(ctx, query, pool, chain, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query payouts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var payouts []*Payout
	for rows.Next() {
		payout := &Payout{}
		err := rows.Scan(
			&payout.ID, &payout.Pool, &payout.Chain, &payout.Transaction,
			&payout.Miners, &payout.TotalPaid, &payout.PaidAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout: %w", err)
		}
		payouts = append(payouts, payout)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payouts: %w", err)
	}

	return payouts, nil
}
