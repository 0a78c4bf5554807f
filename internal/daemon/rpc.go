// Package daemon provides the blockchain daemon client for payd. It wraps
// btcd's RPC client with the wallet and chain queries the payment pipeline
// consumes, and a ZMQ listener for block notifications.
package daemon

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"

	"github.com/poolcore/payd/pkg/circuit"
	"github.com/poolcore/payd/pkg/errors"
	"github.com/poolcore/payd/pkg/retry"
)

// ErrMissingTxID is returned when the daemon reports a successful send but
// the reply carries no transaction id. The payment pipeline treats this as
// fatal for automatic payments: the daemon's state is ambiguous and paying
// again could double pay.
var ErrMissingTxID = stderrors.New("daemon returned success without a transaction id")

// RPCClient provides a high-level interface to one blockchain daemon's
// JSON-RPC API. Read queries run behind the circuit breaker with retries;
// SendMany runs exactly once with neither.
type RPCClient struct {
	client         *rpcclient.Client
	chainParams    *chaincfg.Params
	circuitBreaker *circuit.Breaker
	retryConfig    *retry.Config
}

// NewRPCClient creates a daemon RPC client for HTTP POST mode with TLS
// disabled, which is typical for local daemon deployments.
func NewRPCClient(host string, port int, username, password string, params *chaincfg.Params) (*RPCClient, error) {
	if params == nil {
		params = &chaincfg.MainNetParams
	}

	connCfg := &rpcclient.ConnConfig{
		Host:         fmt.Sprintf("%s:%d", host, port),
		User:         username,
		Pass:         password,
		HTTPPostMode: true,
		DisableTLS:   true,
	}

	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDaemon, "rpc_client_creation",
			"failed to create daemon RPC client").
			WithContext("host", host).
			WithContext("port", port)
	}

	cbConfig := &circuit.Config{
		MaxFailures:     3,
		SuccessRequired: 2,
		Timeout:         10 * time.Second,
		ResetTimeout:    30 * time.Second,
	}

	return &RPCClient{
		client:         client,
		chainParams:    params,
		circuitBreaker: circuit.New(cbConfig),
		retryConfig:    retry.DaemonConfig(),
	}, nil
}

// Close gracefully shuts down the RPC client
func (c *RPCClient) Close() {
	c.client.Shutdown()
}

// Ping tests the connection to the daemon
func (c *RPCClient) Ping(ctx context.Context) error {
	return c.circuitBreaker.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			err := c.client.PingAsync().Receive()
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeNetwork, "ping",
					"daemon connectivity check failed")
			}
			return nil
		})
	})
}

// ValidateAddress validates an address on this chain. Wallets that dropped
// the validateaddress call are queried through getaddressinfo instead, where
// an unknown-address error stands in for an invalid verdict.
func (c *RPCClient) ValidateAddress(ctx context.Context, address string) (bool, error) {
	addr, err := btcutil.DecodeAddress(address, c.chainParams)
	if err != nil {
		// Undecodable means invalid, not an error
		return false, nil
	}

	return circuit.ExecuteWithResult(ctx, c.circuitBreaker, func() (bool, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() (bool, error) {
			result, err := c.client.ValidateAddressAsync(addr).Receive()
			if err == nil {
				return result.IsValid, nil
			}

			if _, infoErr := c.client.GetAddressInfoAsync(address).Receive(); infoErr != nil {
				if code, ok := RPCErrorCode(infoErr); ok && code == btcjson.ErrRPCInvalidAddressOrKey {
					return false, nil
				}
				return false, errors.Wrap(err, errors.ErrorTypeDaemon, "validate_address",
					"failed to validate address").
					WithContext("address", address)
			}
			return true, nil
		})
	})
}

// GetBalance returns the daemon wallet's balance across all accounts. The
// reply is the pipeline's one source for the chain's reward magnitude.
func (c *RPCClient) GetBalance(ctx context.Context) (btcutil.Amount, error) {
	return circuit.ExecuteWithResult(ctx, c.circuitBreaker, func() (btcutil.Amount, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() (btcutil.Amount, error) {
			balance, err := c.client.GetBalanceAsync("*").Receive()
			if err != nil {
				return 0, errors.Wrap(err, errors.ErrorTypeDaemon, "get_balance",
					"failed to retrieve wallet balance")
			}
			return balance, nil
		})
	})
}

// ListUnspent returns the wallet's unspent outputs with at least minConf
// confirmations.
func (c *RPCClient) ListUnspent(ctx context.Context, minConf int) ([]btcjson.ListUnspentResult, error) {
	return circuit.ExecuteWithResult(ctx, c.circuitBreaker, func() ([]btcjson.ListUnspentResult, error) {
		return retry.DoWithResult(ctx, c.retryConfig, func() ([]btcjson.ListUnspentResult, error) {
			unspent, err := c.client.ListUnspentMinAsync(minConf).Receive()
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeDaemon, "list_unspent",
					"failed to list unspent outputs").
					WithContext("min_conf", minConf)
			}
			return unspent, nil
		})
	})
}

// BlockResult is the per-hash outcome of a batched block query
type BlockResult struct {
	Hash  string
	Block *btcjson.GetBlockVerboseResult
	Err   error
}

// GetBlocks fetches multiple blocks by hash in one batched round trip: all
// requests are issued before any reply is received. Per-hash outcomes are
// reported individually so callers can distinguish a dead block from a
// failed query.
func (c *RPCClient) GetBlocks(ctx context.Context, hashes []string) ([]BlockResult, error) {
	results := make([]BlockResult, len(hashes))
	futures := make([]rpcclient.FutureGetBlockVerboseResult, len(hashes))

	for i, hash := range hashes {
		results[i].Hash = hash
		blockHash, err := chainhash.NewHashFromStr(hash)
		if err != nil {
			results[i].Err = errors.Wrap(err, errors.ErrorTypeValidation, "hash_parsing",
				"failed to parse block hash").WithContext("hash", hash)
			continue
		}
		futures[i] = c.client.GetBlockVerboseAsync(blockHash)
	}

	for i := range hashes {
		if results[i].Err != nil {
			continue
		}
		block, err := futures[i].Receive()
		if err != nil {
			results[i].Err = err
			continue
		}
		results[i].Block = block
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "get_blocks",
			"batched block query cancelled")
	}

	return results, nil
}

// TxResult is the per-txid outcome of a batched transaction query
type TxResult struct {
	TxID string
	Tx   *btcjson.GetTransactionResult
	Err  error
}

// GetTransactions fetches multiple wallet transactions in one batched
// round trip, reporting per-txid outcomes.
func (c *RPCClient) GetTransactions(ctx context.Context, txids []string) ([]TxResult, error) {
	results := make([]TxResult, len(txids))
	futures := make([]rpcclient.FutureGetTransactionResult, len(txids))

	for i, txid := range txids {
		results[i].TxID = txid
		txHash, err := chainhash.NewHashFromStr(txid)
		if err != nil {
			results[i].Err = errors.Wrap(err, errors.ErrorTypeValidation, "hash_parsing",
				"failed to parse transaction id").WithContext("txid", txid)
			continue
		}
		futures[i] = c.client.GetTransactionAsync(txHash)
	}

	for i := range txids {
		if results[i].Err != nil || futures[i] == nil {
			continue
		}
		tx, err := futures[i].Receive()
		if err != nil {
			results[i].Err = err
			continue
		}
		results[i].Tx = tx
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "get_transactions",
			"batched transaction query cancelled")
	}

	return results, nil
}

// SendMany issues one send-many payout covering the whole address->amount
// batch. It runs exactly once: no retry, no circuit breaker. A retried send
// could pay twice, and an open breaker must never mask a send that may have
// gone through.
func (c *RPCClient) SendMany(ctx context.Context, amounts map[string]btcutil.Amount) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeTimeout, "send_many", "payout cancelled before send")
	}

	decoded := make(map[btcutil.Address]btcutil.Amount, len(amounts))
	for address, amount := range amounts {
		addr, err := btcutil.DecodeAddress(address, c.chainParams)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrorTypeValidation, "send_many",
				"payout batch contains an undecodable address").
				WithContext("address", address)
		}
		decoded[addr] = amount
	}

	txHash, err := c.client.SendManyAsync("", decoded).Receive()
	if err != nil {
		return "", err
	}
	if txHash == nil {
		return "", ErrMissingTxID
	}

	return txHash.String(), nil
}

// RPCErrorCode extracts the JSON-RPC error code from a daemon error. The
// second return is false when the error did not originate from the daemon's
// RPC layer (transport failures, parse errors).
func RPCErrorCode(err error) (btcjson.RPCErrorCode, bool) {
	var rpcErr *btcjson.RPCError
	if stderrors.As(err, &rpcErr) {
		return rpcErr.Code, true
	}
	return 0, false
}
