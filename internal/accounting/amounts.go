// Package accounting implements the round and payment accounting engine:
// share recording, round resolution against the daemon, time-weighted reward
// allocation, and the atomic ledger commit that finalizes payouts.
package accounting

import (
	"math"
)

// DefaultMagnitude is the smallest-unit subdivision assumed until the chain's
// magnitude has been discovered from the daemon.
const DefaultMagnitude = int64(1e8)

// Reward arithmetic runs on integer smallest units. Coin-denominated floats
// appear only at the store and daemon boundaries, so repeated additions never
// accumulate rounding drift.

// CoinsToUnits converts a coin amount to integer smallest units
func CoinsToUnits(coins float64, magnitude int64) int64 {
	return int64(math.Round(coins * float64(magnitude)))
}

// UnitsToCoins converts integer smallest units back to a coin amount
func UnitsToCoins(units int64, magnitude int64) float64 {
	return float64(units) / float64(magnitude)
}

// RoundTo rounds a value to the given number of decimal places
func RoundTo(value float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(value*scale) / scale
}

// coinPrecision returns the decimal precision implied by a magnitude,
// e.g. 1e8 -> 8.
func coinPrecision(magnitude int64) int {
	precision := 0
	for m := magnitude; m > 1; m /= 10 {
		precision++
	}
	return precision
}
