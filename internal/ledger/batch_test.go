package ledger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestBatchOrderPreserved(t *testing.T) {
	batch := NewBatch()
	batch.HSet("key-a", "field", "1")
	batch.HIncrBy("key-b", "field", 2)
	batch.HIncrByFloat("key-c", "field", 2.5)
	batch.SAdd("key-d", "member")
	batch.Rename("key-e", "key-f")

	if batch.Len() != 5 {
		t.Fatalf("Expected 5 commands, got %d", batch.Len())
	}

	expected := []string{OpHSet, OpHIncrBy, OpHIncrByFloat, OpSAdd, OpRename}
	for i, op := range expected {
		if batch.Commands[i].Op != op {
			t.Errorf("Expected op %s at position %d, got %s", op, i, batch.Commands[i].Op)
		}
	}
}

func TestDelExpandsKeys(t *testing.T) {
	batch := NewBatch()
	batch.Del("key-a", "key-b", "key-c")

	if batch.Len() != 3 {
		t.Fatalf("Expected one command per key, got %d", batch.Len())
	}
	for i, key := range []string{"key-a", "key-b", "key-c"} {
		if batch.Commands[i].Op != OpDel || batch.Commands[i].Key != key {
			t.Errorf("Expected del of %s, got %+v", key, batch.Commands[i])
		}
	}
}

func TestSMoveArguments(t *testing.T) {
	batch := NewBatch()
	batch.SMove("src", "dst", "member")

	cmd := batch.Commands[0]
	if cmd.Key != "src" || cmd.Args[0] != "dst" || cmd.Args[1] != "member" {
		t.Errorf("Expected smove src->dst of member, got %+v", cmd)
	}
}

func TestZAddCarriesScore(t *testing.T) {
	batch := NewBatch()
	batch.ZAdd("records", 1700000000, "payload")

	cmd := batch.Commands[0]
	if cmd.Op != OpZAdd || cmd.Score != 1700000000 || cmd.Args[0] != "payload" {
		t.Errorf("Expected scored insert, got %+v", cmd)
	}
}

func TestAppendMergesBatches(t *testing.T) {
	first := NewBatch()
	first.HSet("key-a", "field", "1")

	second := NewBatch()
	second.HSet("key-b", "field", "2")
	second.Del("key-c")

	first.Append(second)
	if first.Len() != 3 {
		t.Errorf("Expected 3 commands after append, got %d", first.Len())
	}
}

func TestSerializeIsReplayable(t *testing.T) {
	batch := NewBatch()
	batch.HSet("key-a", "field", "1")
	batch.HIncrByFloat("key-b", "worker", 4.5)
	batch.ZAdd("records", 1700000000, "payload")

	lines := bytes.Split(bytes.TrimSpace(batch.Serialize()), []byte("\n"))
	if len(lines) != 3 {
		t.Fatalf("Expected one line per command, got %d", len(lines))
	}

	for i, line := range lines {
		var cmd Command
		if err := json.Unmarshal(line, &cmd); err != nil {
			t.Fatalf("Expected replayable JSON on line %d, got %v", i, err)
		}
		if cmd.Op != batch.Commands[i].Op || cmd.Key != batch.Commands[i].Key {
			t.Errorf("Expected line %d to round-trip, got %+v", i, cmd)
		}
	}
}

func TestFloatIncrementFormatting(t *testing.T) {
	batch := NewBatch()
	batch.HIncrByFloat("key", "worker", 60)
	batch.HIncrByFloat("key", "worker", -4.5)

	if batch.Commands[0].Args[1] != "60" {
		t.Errorf("Expected whole floats without a trailing point, got %s", batch.Commands[0].Args[1])
	}
	if batch.Commands[1].Args[1] != "-4.5" {
		t.Errorf("Expected negative increments preserved, got %s", batch.Commands[1].Args[1])
	}
}
