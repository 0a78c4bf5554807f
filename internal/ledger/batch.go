package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Command op names. These mirror the underlying store commands so a
// serialized batch can be replayed by hand from a recovery artifact.
const (
	OpHSet         = "hset"
	OpHIncrBy      = "hincrby"
	OpHIncrByFloat = "hincrbyfloat"
	OpHDel         = "hdel"
	OpSAdd         = "sadd"
	OpSRem         = "srem"
	OpSMove        = "smove"
	OpZAdd         = "zadd"
	OpDel          = "del"
	OpRename       = "rename"
)

// Command is a single store operation inside a batch
type Command struct {
	Op    string   `json:"op"`
	Key   string   `json:"key"`
	Args  []string `json:"args,omitempty"`
	Score float64  `json:"score,omitempty"`
}

// CommandBatch is an ordered list of store operations that must apply
// atomically: either every command in the batch takes effect or none do.
// Components build batches; the caller executes them through Client.Exec.
type CommandBatch struct {
	Commands []Command
}

// NewBatch creates an empty command batch
func NewBatch() *CommandBatch {
	return &CommandBatch{}
}

// Len returns the number of commands in the batch
func (b *CommandBatch) Len() int {
	return len(b.Commands)
}

// Append adds all commands from another batch
func (b *CommandBatch) Append(other *CommandBatch) {
	b.Commands = append(b.Commands, other.Commands...)
}

// HSet queues a hash field write
func (b *CommandBatch) HSet(key, field, value string) {
	b.Commands = append(b.Commands, Command{Op: OpHSet, Key: key, Args: []string{field, value}})
}

// HIncrBy queues an integer hash field increment
func (b *CommandBatch) HIncrBy(key, field string, delta int64) {
	b.Commands = append(b.Commands, Command{Op: OpHIncrBy, Key: key, Args: []string{field, fmt.Sprintf("%d", delta)}})
}

// HIncrByFloat queues a float hash field increment
func (b *CommandBatch) HIncrByFloat(key, field string, delta float64) {
	b.Commands = append(b.Commands, Command{Op: OpHIncrByFloat, Key: key, Args: []string{field, formatFloat(delta)}})
}

// HDel queues a hash field delete
func (b *CommandBatch) HDel(key string, fields ...string) {
	b.Commands = append(b.Commands, Command{Op: OpHDel, Key: key, Args: fields})
}

// SAdd queues a set insert
func (b *CommandBatch) SAdd(key, member string) {
	b.Commands = append(b.Commands, Command{Op: OpSAdd, Key: key, Args: []string{member}})
}

// SRem queues a set remove
func (b *CommandBatch) SRem(key, member string) {
	b.Commands = append(b.Commands, Command{Op: OpSRem, Key: key, Args: []string{member}})
}

// SMove queues moving a member between sets
func (b *CommandBatch) SMove(src, dst, member string) {
	b.Commands = append(b.Commands, Command{Op: OpSMove, Key: src, Args: []string{dst, member}})
}

// ZAdd queues a sorted-set insert
func (b *CommandBatch) ZAdd(key string, score float64, member string) {
	b.Commands = append(b.Commands, Command{Op: OpZAdd, Key: key, Score: score, Args: []string{member}})
}

// Del queues a key delete
func (b *CommandBatch) Del(keys ...string) {
	for _, key := range keys {
		b.Commands = append(b.Commands, Command{Op: OpDel, Key: key})
	}
}

// Rename queues a key rename
func (b *CommandBatch) Rename(src, dst string) {
	b.Commands = append(b.Commands, Command{Op: OpRename, Key: src, Args: []string{dst}})
}

// Serialize renders the batch as newline-delimited JSON, one command per
// line. This is the recovery artifact format for manual replay.
func (b *CommandBatch) Serialize() []byte {
	var buf bytes.Buffer
	for _, cmd := range b.Commands {
		line, _ := json.Marshal(cmd)
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}
