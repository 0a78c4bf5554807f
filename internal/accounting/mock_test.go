package accounting

import (
	"context"
	"errors"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"

	"github.com/poolcore/payd/internal/config"
	"github.com/poolcore/payd/internal/daemon"
	"github.com/poolcore/payd/internal/ledger"
	"github.com/poolcore/payd/pkg/log"
)

// MockStore provides a mock implementation of Store for testing.
type MockStore struct {
	// Control mock behavior
	ShouldError bool
	ErrorMsg    string
	ExecError   error

	// Mock data
	HashFloats  map[string]map[string]float64
	Blocks      map[string][]ledger.Block
	SoloShares  map[string]map[string]float64
	SharedWork  map[string]map[string]float64

	// Recorded calls
	Executed []*ledger.CommandBatch
}

// NewMockStore creates a new mock store for testing.
func NewMockStore() *MockStore {
	return &MockStore{
		HashFloats: make(map[string]map[string]float64),
		Blocks:     make(map[string][]ledger.Block),
		SoloShares: make(map[string]map[string]float64),
		SharedWork: make(map[string]map[string]float64),
	}
}

// Exec records the batch.
func (m *MockStore) Exec(_ context.Context, batch *ledger.CommandBatch) error {
	if m.ShouldError {
		return errors.New(m.ErrorMsg)
	}
	if m.ExecError != nil {
		return m.ExecError
	}
	m.Executed = append(m.Executed, batch)
	return nil
}

// HGetFloat returns a mock hash field.
func (m *MockStore) HGetFloat(_ context.Context, key, field string) (float64, bool, error) {
	if m.ShouldError {
		return 0, false, errors.New(m.ErrorMsg)
	}
	fields, ok := m.HashFloats[key]
	if !ok {
		return 0, false, nil
	}
	value, ok := fields[field]
	return value, ok, nil
}

// HGetAllFloat returns a mock hash.
func (m *MockStore) HGetAllFloat(_ context.Context, key string) (map[string]float64, error) {
	if m.ShouldError {
		return nil, errors.New(m.ErrorMsg)
	}
	out := make(map[string]float64, len(m.HashFloats[key]))
	for field, value := range m.HashFloats[key] {
		out[field] = value
	}
	return out, nil
}

// SumHashFloats sums a mock hash.
func (m *MockStore) SumHashFloats(_ context.Context, key string) (float64, error) {
	if m.ShouldError {
		return 0, errors.New(m.ErrorMsg)
	}
	var sum float64
	for _, value := range m.HashFloats[key] {
		sum += value
	}
	return sum, nil
}

// GetBlocks returns mock block records.
func (m *MockStore) GetBlocks(_ context.Context, key string) ([]ledger.Block, error) {
	if m.ShouldError {
		return nil, errors.New(m.ErrorMsg)
	}
	blocks := append([]ledger.Block(nil), m.Blocks[key]...)
	ledger.SortBlocksByHeight(blocks)
	return blocks, nil
}

// GetRoundShares returns mock per-worker work split by namespace.
func (m *MockStore) GetRoundShares(_ context.Context, key string) (map[string]float64, map[string]float64, error) {
	if m.ShouldError {
		return nil, nil, errors.New(m.ErrorMsg)
	}
	solo := make(map[string]float64, len(m.SoloShares[key]))
	for worker, work := range m.SoloShares[key] {
		solo[worker] = work
	}
	shared := make(map[string]float64, len(m.SharedWork[key]))
	for worker, work := range m.SharedWork[key] {
		shared[worker] = work
	}
	return solo, shared, nil
}

// AllCommands flattens every executed batch into one command list.
func (m *MockStore) AllCommands() []ledger.Command {
	var commands []ledger.Command
	for _, batch := range m.Executed {
		commands = append(commands, batch.Commands...)
	}
	return commands
}

// Compile-time interface compliance check
var _ Store = (*MockStore)(nil)

// MockRPC provides a mock implementation of daemon.RPCInterface for testing.
type MockRPC struct {
	// Control mock behavior
	ShouldError bool
	ErrorMsg    string

	// Mock data
	Balance       btcutil.Amount
	BalanceError  error
	Unspent       []btcjson.ListUnspentResult
	BlockResults  map[string]daemon.BlockResult
	TxResults     map[string]daemon.TxResult
	SendManyTxID  string
	SendManyError error

	// Addresses reported invalid by ValidateAddress
	InvalidAddresses map[string]bool

	// Recorded calls
	SendManyCalls []map[string]btcutil.Amount
	ValidateCalls []string
}

// NewMockRPC creates a new mock RPC client for testing.
func NewMockRPC() *MockRPC {
	return &MockRPC{
		Balance:          btcutil.Amount(100e8),
		SendManyTxID:     "aaaa000000000000000000000000000000000000000000000000000000000000",
		BlockResults:     make(map[string]daemon.BlockResult),
		TxResults:        make(map[string]daemon.TxResult),
		InvalidAddresses: make(map[string]bool),
	}
}

// GetBalance returns the mock wallet balance.
func (m *MockRPC) GetBalance(_ context.Context) (btcutil.Amount, error) {
	if m.ShouldError {
		return 0, errors.New(m.ErrorMsg)
	}
	if m.BalanceError != nil {
		return 0, m.BalanceError
	}
	return m.Balance, nil
}

// ListUnspent returns mock unspent outputs.
func (m *MockRPC) ListUnspent(_ context.Context, _ int) ([]btcjson.ListUnspentResult, error) {
	if m.ShouldError {
		return nil, errors.New(m.ErrorMsg)
	}
	return m.Unspent, nil
}

// SendMany records the call and returns the configured txid.
func (m *MockRPC) SendMany(_ context.Context, amounts map[string]btcutil.Amount) (string, error) {
	m.SendManyCalls = append(m.SendManyCalls, amounts)
	if m.ShouldError {
		return "", errors.New(m.ErrorMsg)
	}
	if m.SendManyError != nil {
		return "", m.SendManyError
	}
	return m.SendManyTxID, nil
}

// GetBlocks returns mock per-hash block results.
func (m *MockRPC) GetBlocks(_ context.Context, hashes []string) ([]daemon.BlockResult, error) {
	if m.ShouldError {
		return nil, errors.New(m.ErrorMsg)
	}
	results := make([]daemon.BlockResult, len(hashes))
	for i, hash := range hashes {
		if result, ok := m.BlockResults[hash]; ok {
			results[i] = result
			continue
		}
		results[i] = daemon.BlockResult{
			Hash:  hash,
			Block: &btcjson.GetBlockVerboseResult{Hash: hash, Confirmations: 1},
		}
	}
	return results, nil
}

// GetTransactions returns mock per-txid transaction results.
func (m *MockRPC) GetTransactions(_ context.Context, txids []string) ([]daemon.TxResult, error) {
	if m.ShouldError {
		return nil, errors.New(m.ErrorMsg)
	}
	results := make([]daemon.TxResult, len(txids))
	for i, txid := range txids {
		if result, ok := m.TxResults[txid]; ok {
			results[i] = result
			continue
		}
		results[i] = daemon.TxResult{
			TxID: txid,
			Tx:   &btcjson.GetTransactionResult{TxID: txid},
		}
	}
	return results, nil
}

// ValidateAddress simulates address validation.
func (m *MockRPC) ValidateAddress(_ context.Context, address string) (bool, error) {
	m.ValidateCalls = append(m.ValidateCalls, address)
	if m.ShouldError {
		return false, errors.New(m.ErrorMsg)
	}
	return !m.InvalidAddresses[address], nil
}

// Ping simulates connection test.
func (m *MockRPC) Ping(_ context.Context) error {
	if m.ShouldError {
		return errors.New(m.ErrorMsg)
	}
	return nil
}

// Close simulates client shutdown.
func (m *MockRPC) Close() {
	// Nothing to do for mock
}

// Compile-time interface compliance check
var _ daemon.RPCInterface = (*MockRPC)(nil)

func testConfig() *config.Config {
	return &config.Config{
		ServiceName: "payd-test",
		Version:     "test",
		PoolName:    "testpool",
		SoloPorts:   []int{3334},
		RecoveryDir: "/tmp",
	}
}

func testChain() config.Chain {
	return config.Chain{
		Name:             "bitcoin",
		Enabled:          true,
		PoolAddress:      "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
		Fee:              0.0004,
		MinPayment:       0.01,
		MinConfirmations: 6,
		Magnitude:        1e8,
		CheckInterval:    time.Minute,
		PaymentInterval:  time.Hour,
	}
}

func testLogger() *log.Logger {
	return log.New("payd-test", "test", "error", "json")
}
