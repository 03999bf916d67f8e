// Package los computes the Liquidity Opportunity Score and the target
// allocation vector it projects onto, per §4.6.
package los

import (
	"math"
	"sort"

	"crossliquid/internal/metrics"
)

// excludedScore is the sentinel raw score assigned to a policy-excluded
// chain — large enough that its softmax weight is negligible against any
// realistic score, and used to detect the "every chain excluded" edge case
// without comparing floats for exact equality to -Inf.
const excludedScore = -1000.0

// Components breaks a chain's raw score into its three inputs, kept on the
// result for observability even though only Score/TargetAllocation feed
// the Action Definitions' gates.
type Components struct {
	FeeYieldRate float64
	Volatility   float64
	GasFactor    float64
}

// Score is the per-chain LOS result.
type Score struct {
	ChainID          int64
	RawScore         float64
	Components       Components
	TargetAllocation float64 // percentage points, 0 or >= 5
}

// Allocate turns per-chain metrics into a target-allocation vector.
// chainMetrics may be missing an entry for a chain with no observations
// yet; such chains score 0 on the fee/volatility components and rely on
// gasFactor alone. Chains are always iterated in ascending numeric id
// order (§9's determinism note).
func Allocate(chainMetrics map[int64]*metrics.ChainMetrics, gasScores map[int64]float64, excluded map[int64]bool) []Score {
	chainIDs := make([]int64, 0, len(gasScores))
	for id := range gasScores {
		chainIDs = append(chainIDs, id)
	}
	sort.Slice(chainIDs, func(i, j int) bool { return chainIDs[i] < chainIDs[j] })

	scores := make([]Score, len(chainIDs))
	for i, id := range chainIDs {
		gasFactor := gasScores[id]
		if excluded[id] {
			scores[i] = Score{ChainID: id, RawScore: excludedScore, Components: Components{GasFactor: gasFactor}}
			continue
		}
		feeApr := pickFeeApr(chainMetrics[id])
		volatility := pickVolatility(chainMetrics[id])
		raw := 100*feeApr*0.7 + 500*volatility*0.2 + gasFactor*0.1
		scores[i] = Score{
			ChainID:  id,
			RawScore: raw,
			Components: Components{
				FeeYieldRate: feeApr,
				Volatility:   volatility,
				GasFactor:    gasFactor,
			},
		}
	}

	applyAllocation(scores)
	return scores
}

func pickFeeApr(m *metrics.ChainMetrics) float64 {
	if m == nil {
		return 0
	}
	if m.Apr4Hr != nil {
		return m.Apr4Hr.FeeApr
	}
	if m.Apr30Min != nil {
		return m.Apr30Min.FeeApr
	}
	if m.Apr1Day != nil {
		return m.Apr1Day.FeeApr
	}
	return 0
}

func pickVolatility(m *metrics.ChainMetrics) float64 {
	if m == nil {
		return 0
	}
	if m.Vol4Hr != nil {
		return m.Vol4Hr.PriceVolatility
	}
	if m.Vol30Min != nil {
		return m.Vol30Min.PriceVolatility
	}
	if m.Vol1Day != nil {
		return m.Vol1Day.PriceVolatility
	}
	return 0
}

// applyAllocation runs softmax, then the 5% floor, then re-normalizes the
// survivors, writing TargetAllocation back onto each score in place.
func applyAllocation(scores []Score) {
	if len(scores) == 0 {
		return
	}

	allExcluded := true
	for _, s := range scores {
		if s.RawScore != excludedScore {
			allExcluded = false
			break
		}
	}
	if allExcluded {
		return // every TargetAllocation stays at its zero value
	}

	max := scores[0].RawScore
	for _, s := range scores[1:] {
		if s.RawScore > max {
			max = s.RawScore
		}
	}

	weights := make([]float64, len(scores))
	var total float64
	for i, s := range scores {
		weights[i] = math.Exp(s.RawScore - max)
		total += weights[i]
	}

	for i := range scores {
		pct := weights[i] / total * 100
		if pct < 5 {
			pct = 0
		}
		scores[i].TargetAllocation = pct
	}

	var survivorTotal float64
	for _, s := range scores {
		survivorTotal += s.TargetAllocation
	}
	if survivorTotal == 0 {
		return
	}
	for i := range scores {
		scores[i].TargetAllocation = scores[i].TargetAllocation / survivorTotal * 100
	}
}
