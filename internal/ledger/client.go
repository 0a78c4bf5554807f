package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/poolcore/payd/pkg/errors"
)

// Client wraps the Redis connection backing the ledger store
type Client struct {
	rdb *redis.Client
}

// Config holds ledger store connection configuration
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewClient creates a new ledger store client
func NewClient(cfg *Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping ledger store: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the store connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks store connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Exec applies a command batch as one MULTI/EXEC transaction. Either the
// whole batch is submitted atomically or the error is returned with nothing
// guaranteed applied; callers must not assume partial effects.
func (c *Client) Exec(ctx context.Context, batch *CommandBatch) error {
	if batch == nil || batch.Len() == 0 {
		return nil
	}

	pipe := c.rdb.TxPipeline()

	for _, cmd := range batch.Commands {
		switch cmd.Op {
		case OpHSet:
			pipe.HSet(ctx, cmd.Key, cmd.Args[0], cmd.Args[1])
		case OpHIncrBy:
			delta, err := strconv.ParseInt(cmd.Args[1], 10, 64)
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeValidation, "batch_exec",
					"malformed hincrby delta").WithContext("key", cmd.Key)
			}
			pipe.HIncrBy(ctx, cmd.Key, cmd.Args[0], delta)
		case OpHIncrByFloat:
			delta, err := strconv.ParseFloat(cmd.Args[1], 64)
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeValidation, "batch_exec",
					"malformed hincrbyfloat delta").WithContext("key", cmd.Key)
			}
			pipe.HIncrByFloat(ctx, cmd.Key, cmd.Args[0], delta)
		case OpHDel:
			pipe.HDel(ctx, cmd.Key, cmd.Args...)
		case OpSAdd:
			pipe.SAdd(ctx, cmd.Key, cmd.Args[0])
		case OpSRem:
			pipe.SRem(ctx, cmd.Key, cmd.Args[0])
		case OpSMove:
			pipe.SMove(ctx, cmd.Key, cmd.Args[0], cmd.Args[1])
		case OpZAdd:
			pipe.ZAdd(ctx, cmd.Key, redis.Z{Score: cmd.Score, Member: cmd.Args[0]})
		case OpDel:
			pipe.Del(ctx, cmd.Key)
		case OpRename:
			pipe.Rename(ctx, cmd.Key, cmd.Args[0])
		default:
			return errors.New(errors.ErrorTypeValidation, "batch_exec",
				"unknown batch command").WithContext("op", cmd.Op)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return errors.Wrap(err, errors.ErrorTypeLedger, "batch_exec",
			"failed to apply command batch").
			WithContext("commands", batch.Len())
	}

	return nil
}

// HGetAll returns every field of a hash
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	data, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeLedger, "hgetall",
			"failed to read hash").WithContext("key", key)
	}
	return data, nil
}

// HGetAllFloat returns every field of a hash with values parsed as floats.
// Unparseable values are skipped.
func (c *Client) HGetAllFloat(ctx context.Context, key string) (map[string]float64, error) {
	data, err := c.HGetAll(ctx, key)
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(data))
	for field, value := range data {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			out[field] = parsed
		}
	}
	return out, nil
}

// SumHashFloats returns the sum of a hash's values parsed as floats
func (c *Client) SumHashFloats(ctx context.Context, key string) (float64, error) {
	values, err := c.HGetAllFloat(ctx, key)
	if err != nil {
		return 0, err
	}

	var total float64
	for _, v := range values {
		total += v
	}
	return total, nil
}

// HGetFloat reads one hash field as a float. The second return is false if
// the field is absent.
func (c *Client) HGetFloat(ctx context.Context, key, field string) (float64, bool, error) {
	value, err := c.rdb.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, errors.ErrorTypeLedger, "hget",
			"failed to read hash field").WithContext("key", key).WithContext("field", field)
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false, errors.Wrap(err, errors.ErrorTypeValidation, "hget",
			"hash field is not numeric").WithContext("key", key).WithContext("field", field)
	}
	return parsed, true, nil
}

// SMembers returns every member of a set
func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := c.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeLedger, "smembers",
			"failed to read set").WithContext("key", key)
	}
	return members, nil
}

// GetBlocks reads and decodes a block state set, sorted by ascending height.
// Malformed members are skipped; the store is shared with older writers and
// a bad record must not wedge the pipeline.
func (c *Client) GetBlocks(ctx context.Context, key string) ([]Block, error) {
	members, err := c.SMembers(ctx, key)
	if err != nil {
		return nil, err
	}

	blocks := make([]Block, 0, len(members))
	for _, member := range members {
		block, err := DecodeBlock(member)
		if err != nil {
			continue
		}
		blocks = append(blocks, block)
	}

	SortBlocksByHeight(blocks)
	return blocks, nil
}

// GetRoundShares reads a round's shares hash and aggregates accumulated
// work per worker, split into solo and shared maps by each record's flag.
func (c *Client) GetRoundShares(ctx context.Context, key string) (solo, shared map[string]float64, err error) {
	data, err := c.HGetAll(ctx, key)
	if err != nil {
		return nil, nil, err
	}

	solo = make(map[string]float64)
	shared = make(map[string]float64)

	for field, value := range data {
		record, err := DecodeShare(field)
		if err != nil {
			continue
		}
		work, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		if record.Solo {
			solo[record.Worker] += work
		} else {
			shared[record.Worker] += work
		}
	}

	return solo, shared, nil
}
