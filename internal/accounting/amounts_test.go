package accounting

import "testing"

func TestCoinsToUnits(t *testing.T) {
	tests := []struct {
		coins     float64
		magnitude int64
		expected  int64
	}{
		{1.0, 1e8, 100000000},
		{0.00000001, 1e8, 1},
		{6.25, 1e8, 625000000},
		{0.1, 1e8, 10000000},
		{12.5, 1e6, 12500000},
		{0, 1e8, 0},
	}

	for _, tt := range tests {
		if got := CoinsToUnits(tt.coins, tt.magnitude); got != tt.expected {
			t.Errorf("Expected %d units for %v coins, got %d", tt.expected, tt.coins, got)
		}
	}
}

func TestUnitsRoundTrip(t *testing.T) {
	for _, units := range []int64{0, 1, 546, 100000000, 625000000} {
		coins := UnitsToCoins(units, DefaultMagnitude)
		if got := CoinsToUnits(coins, DefaultMagnitude); got != units {
			t.Errorf("Expected %d units to survive the round trip, got %d", units, got)
		}
	}
}

func TestRepeatedAdditionHasNoDrift(t *testing.T) {
	// 0.1 is not representable in binary floating point; summing in integer
	// units must still land exactly.
	var total int64
	for i := 0; i < 1000; i++ {
		total += CoinsToUnits(0.1, DefaultMagnitude)
	}
	if total != CoinsToUnits(100.0, DefaultMagnitude) {
		t.Errorf("Expected exactly 100 coins worth of units, got %d", total)
	}
}

func TestRoundTo(t *testing.T) {
	tests := []struct {
		value    float64
		decimals int
		expected float64
	}{
		{3.14159, 2, 3.14},
		{3.145, 2, 3.15},
		{0.41, 2, 0.41},
		{100.5, 0, 101},
		{1700000060.12345, 4, 1700000060.1235},
	}

	for _, tt := range tests {
		if got := RoundTo(tt.value, tt.decimals); got != tt.expected {
			t.Errorf("Expected %v rounded to %d places to be %v, got %v", tt.value, tt.decimals, tt.expected, got)
		}
	}
}

func TestCoinPrecision(t *testing.T) {
	tests := []struct {
		magnitude int64
		expected  int
	}{
		{1e8, 8},
		{1e6, 6},
		{1, 0},
	}

	for _, tt := range tests {
		if got := coinPrecision(tt.magnitude); got != tt.expected {
			t.Errorf("Expected precision %d for magnitude %d, got %d", tt.expected, tt.magnitude, got)
		}
	}
}
