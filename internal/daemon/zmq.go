package daemon

import (
	"context"
	"fmt"
	"syscall"
	"time"

	zmq "github.com/pebbe/zmq4"

	"github.com/poolcore/payd/pkg/log"
)

// BlockWatcher subscribes to a daemon's ZMQ hashblock feed. Each notification
// nudges the payment pipeline into an early check run instead of waiting for
// the next timer tick.
type BlockWatcher struct {
	socket   *zmq.Socket
	endpoint string
	chain    string
	logger   *log.Logger
	onBlock  func(blockHash string)
}

// NewBlockWatcher creates a watcher for one chain's ZMQ endpoint
func NewBlockWatcher(endpoint, chain string, logger *log.Logger, onBlock func(blockHash string)) (*BlockWatcher, error) {
	socket, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create ZMQ socket: %w", err)
	}

	return &BlockWatcher{
		socket:   socket,
		endpoint: endpoint,
		chain:    chain,
		logger:   logger,
		onBlock:  onBlock,
	}, nil
}

// Start connects, subscribes to hashblock, and blocks until the context is
// cancelled.
func (w *BlockWatcher) Start(ctx context.Context) error {
	if err := w.socket.SetSubscribe("hashblock"); err != nil {
		return fmt.Errorf("failed to subscribe to hashblock: %w", err)
	}
	if err := w.socket.SetRcvtimeo(time.Second); err != nil {
		return fmt.Errorf("failed to set ZMQ receive timeout: %w", err)
	}
	if err := w.socket.Connect(w.endpoint); err != nil {
		return fmt.Errorf("failed to connect to ZMQ endpoint %s: %w", w.endpoint, err)
	}

	w.logger.Info("watching for block notifications",
		"chain", w.chain,
		"endpoint", w.endpoint)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("block watcher stopping", "chain", w.chain)
			return ctx.Err()
		default:
		}

		msg, err := w.socket.RecvMessageBytes(0)
		if err != nil {
			// Receive timeout, loop back to check the context
			if zmq.AsErrno(err) == zmq.Errno(syscall.EAGAIN) {
				continue
			}
			w.logger.Error("failed to receive ZMQ message", "chain", w.chain, "error", err)
			continue
		}

		if len(msg) < 2 || string(msg[0]) != "hashblock" {
			continue
		}
		if len(msg[1]) != 32 {
			w.logger.Warn("malformed hashblock payload", "chain", w.chain, "size", len(msg[1]))
			continue
		}

		// Hash bytes arrive little-endian on the wire
		blockHash := reverseHex(msg[1])
		w.logger.Info("new block notification", "chain", w.chain, "hash", blockHash)

		if w.onBlock != nil {
			w.onBlock(blockHash)
		}
	}
}

// Close closes the ZMQ socket
func (w *BlockWatcher) Close() error {
	if w.socket != nil {
		return w.socket.Close()
	}
	return nil
}

func reverseHex(data []byte) string {
	reversed := make([]byte, len(data))
	for i := 0; i < len(data); i++ {
		reversed[i] = data[len(data)-1-i]
	}
	return fmt.Sprintf("%x", reversed)
}
