package daemon

import (
	"context"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
)

// RPCInterface defines the contract for daemon RPC operations.
// This interface allows for easy mocking and testing of components that
// depend on the daemon.
type RPCInterface interface {
	// Wallet Operations

	// GetBalance returns the wallet's balance across all accounts.
	GetBalance(ctx context.Context) (btcutil.Amount, error)

	// ListUnspent returns unspent outputs with at least minConf confirmations.
	ListUnspent(ctx context.Context, minConf int) ([]btcjson.ListUnspentResult, error)

	// SendMany issues one payout transaction covering the whole batch.
	// Implementations must attempt it exactly once.
	SendMany(ctx context.Context, amounts map[string]btcutil.Amount) (string, error)

	// Chain Queries

	// GetBlocks fetches multiple blocks by hash in one batched round trip.
	GetBlocks(ctx context.Context, hashes []string) ([]BlockResult, error)

	// GetTransactions fetches multiple wallet transactions in one batched round trip.
	GetTransactions(ctx context.Context, txids []string) ([]TxResult, error)

	// ValidateAddress checks if an address is valid on this chain.
	ValidateAddress(ctx context.Context, address string) (bool, error)

	// Connection Management

	// Ping tests connectivity to the daemon.
	Ping(ctx context.Context) error

	// Close gracefully shuts down the RPC client.
	Close()
}

// Compile-time interface compliance check
var _ RPCInterface = (*RPCClient)(nil)
