package daemon

import (
	"errors"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcjson"
)

func TestRPCErrorCodeExtraction(t *testing.T) {
	rpcErr := &btcjson.RPCError{
		Code:    btcjson.ErrRPCInvalidAddressOrKey,
		Message: "Invalid or non-wallet transaction id",
	}

	code, ok := RPCErrorCode(rpcErr)
	if !ok {
		t.Fatal("Expected the RPC code extracted")
	}
	if code != btcjson.ErrRPCInvalidAddressOrKey {
		t.Errorf("Expected code %d, got %d", btcjson.ErrRPCInvalidAddressOrKey, code)
	}
}

func TestRPCErrorCodeThroughWrapping(t *testing.T) {
	rpcErr := &btcjson.RPCError{Code: btcjson.ErrRPCWalletInsufficientFunds}
	wrapped := fmt.Errorf("send failed: %w", rpcErr)

	code, ok := RPCErrorCode(wrapped)
	if !ok || code != btcjson.ErrRPCWalletInsufficientFunds {
		t.Errorf("Expected the code found through the wrap chain, got %d, %v", code, ok)
	}
}

func TestRPCErrorCodeTransportError(t *testing.T) {
	if _, ok := RPCErrorCode(errors.New("connection refused")); ok {
		t.Error("Expected no code for a transport error")
	}
}
