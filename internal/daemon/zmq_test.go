package daemon

import "testing"

func TestReverseHex(t *testing.T) {
	// ZMQ delivers block hashes little-endian; the RPC layer expects them
	// big-endian.
	payload := []byte{
		0xef, 0xbe, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}

	got := reverseHex(payload)
	expected := "000000000000000000000000000000000000000000000000000000000000beef"
	if got != expected {
		t.Errorf("Expected %s, got %s", expected, got)
	}
	if len(got) != 64 {
		t.Errorf("Expected a 64-character hash, got %d", len(got))
	}
}

func TestReverseHexEmpty(t *testing.T) {
	if got := reverseHex(nil); got != "" {
		t.Errorf("Expected empty string, got %q", got)
	}
}
