package ledger

import "testing"

func TestShareEncodeIsStable(t *testing.T) {
	share := Share{Time: 1700000000, Worker: "alice", Solo: false}

	first := share.Encode()
	second := share.Encode()
	if first != second {
		t.Error("Expected identical records to encode identically")
	}

	decoded, err := DecodeShare(first)
	if err != nil {
		t.Fatalf("Expected share to decode, got %v", err)
	}
	if decoded != share {
		t.Errorf("Expected %+v, got %+v", share, decoded)
	}
}

func TestDistinctSharesEncodeDistinctly(t *testing.T) {
	base := Share{Time: 1700000000, Worker: "alice"}
	differentTime := Share{Time: 1700000001, Worker: "alice"}
	soloVariant := Share{Time: 1700000000, Worker: "alice", Solo: true}

	if base.Encode() == differentTime.Encode() {
		t.Error("Expected records with different times to stay distinct")
	}
	if base.Encode() == soloVariant.Encode() {
		t.Error("Expected solo and shared records to stay distinct")
	}
}

func TestBlockRoundTrip(t *testing.T) {
	block := Block{
		Time:        1700000000,
		Height:      815000,
		Hash:        "hash-a",
		Reward:      6.25,
		Transaction: "tx-a",
		Difficulty:  1000,
		Worker:      "alice",
		Solo:        true,
		Luck:        104.5,
	}

	decoded, err := DecodeBlock(block.Encode())
	if err != nil {
		t.Fatalf("Expected block to decode, got %v", err)
	}
	if decoded != block {
		t.Errorf("Expected %+v, got %+v", block, decoded)
	}
}

func TestDecodeBlockRejectsGarbage(t *testing.T) {
	if _, err := DecodeBlock("not json"); err == nil {
		t.Error("Expected an error for a malformed record")
	}
}

func TestSortBlocksByHeightIsStable(t *testing.T) {
	blocks := []Block{
		{Height: 300, Hash: "c"},
		{Height: 100, Hash: "a1"},
		{Height: 100, Hash: "a2"},
		{Height: 200, Hash: "b"},
	}

	SortBlocksByHeight(blocks)

	heights := []int64{100, 100, 200, 300}
	for i, height := range heights {
		if blocks[i].Height != height {
			t.Errorf("Expected height %d at position %d, got %d", height, i, blocks[i].Height)
		}
	}
	if blocks[0].Hash != "a1" || blocks[1].Hash != "a2" {
		t.Error("Expected equal heights to keep first-seen order")
	}
}
