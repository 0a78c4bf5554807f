package accounting

import (
	stderrors "errors"
	"math"

	"github.com/poolcore/payd/internal/config"
	"github.com/poolcore/payd/pkg/log"
)

// ErrNoShares reports a round with zero attributable contributors. During a
// payment run the block is parked in the manual set for operator review,
// since a reward with no one to split it over cannot be settled.
var ErrNoShares = stderrors.New("round has no attributable shares")

// timeFractionFloor is the fraction of the round's longest active time below
// which a worker's weight is linearly penalized.
const timeFractionFloor = 0.51

// Allocation accumulates per-worker reward credit across all rounds of one
// pipeline run, in integer smallest units.
type Allocation struct {
	Immature map[string]int64
	Generate map[string]int64

	// Weight credited this run and cumulative weight, per worker. Cumulative
	// weight accumulates on matured rounds only.
	RoundShares map[string]float64
	TotalShares map[string]float64
}

// NewAllocation creates an empty allocation
func NewAllocation() *Allocation {
	return &Allocation{
		Immature:    make(map[string]int64),
		Generate:    make(map[string]int64),
		RoundShares: make(map[string]float64),
		TotalShares: make(map[string]float64),
	}
}

// Allocator computes the time-weighted reward split for resolved rounds
type Allocator struct {
	chain     config.Chain
	magnitude int64
	logger    *log.Logger
}

// NewAllocator creates an allocator for one chain
func NewAllocator(chain config.Chain, magnitude int64, logger *log.Logger) *Allocator {
	return &Allocator{
		chain:     chain,
		magnitude: magnitude,
		logger:    logger,
	}
}

// AllocateRound splits one immature or generate round's net reward across
// its contributors and accumulates the result into alloc.
func (a *Allocator) AllocateRound(round *Round, alloc *Allocation) error {
	feeUnits := CoinsToUnits(a.chain.Fee, a.magnitude)
	netReward := CoinsToUnits(round.Reward, a.magnitude) - feeUnits
	if netReward < 0 {
		netReward = 0
	}

	target := alloc.Immature
	if round.Category == CategoryGenerate {
		target = alloc.Generate
	}

	if round.Block.Solo {
		worker := round.Block.Worker
		sharesRound := round.SoloShares[worker]
		if sharesRound <= 0 {
			sharesRound = 1
		}

		target[worker] += netReward
		alloc.RoundShares[worker] += sharesRound
		if round.Category == CategoryGenerate {
			alloc.TotalShares[worker] += sharesRound
		}
		return nil
	}

	weights, totalWeight := a.adjustedWeights(round)
	if totalWeight <= 0 {
		return ErrNoShares
	}

	for worker, weight := range weights {
		payout := int64(math.Round(float64(netReward) * weight / totalWeight))
		target[worker] += payout
		alloc.RoundShares[worker] += weight
		if round.Category == CategoryGenerate {
			alloc.TotalShares[worker] += weight
		}
	}
	return nil
}

// adjustedWeights applies the time penalty to every shared contributor.
// A worker active for less than timeFractionFloor of the round's longest
// active time loses weight linearly; at or above the floor, or with no
// recorded time, the raw weight stands.
func (a *Allocator) adjustedWeights(round *Round) (map[string]float64, float64) {
	var maxTime float64
	for worker := range round.SharedShares {
		if t := round.Times[worker]; t > maxTime {
			maxTime = t
		}
	}

	weights := make(map[string]float64, len(round.SharedShares))
	var totalWeight float64
	for worker, work := range round.SharedShares {
		if work <= 0 {
			continue
		}

		weight := work
		if t, ok := round.Times[worker]; ok && t > 0 && maxTime > 0 {
			timeFraction := RoundTo(t/maxTime, 2)
			if timeFraction > 0 && timeFraction < timeFractionFloor {
				weight = RoundTo(math.Max(weight-weight*(1-timeFraction), 0), 2)
			}
		}

		weights[worker] = weight
		totalWeight += weight
	}
	return weights, totalWeight
}
