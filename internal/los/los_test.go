package los

import (
	"testing"

	"github.com/stretchr/testify/require"

	"crossliquid/internal/metrics"
)

func chainMetricsWithApr(apr float64) *metrics.ChainMetrics {
	return &metrics.ChainMetrics{Apr4Hr: &metrics.FeeAprWindow{FeeApr: apr}}
}

// TestAllocateConservation checks the allocation vector always sums to
// either 0 (every chain excluded) or 100.
func TestAllocateConservation(t *testing.T) {
	gasScores := map[int64]float64{8453: 9.0, 10: 8.5, 1: 2.0, 130: 9.0}
	chainMetrics := map[int64]*metrics.ChainMetrics{
		8453: chainMetricsWithApr(0.18),
		10:   chainMetricsWithApr(0.15),
		130:  chainMetricsWithApr(0.01),
	}
	excluded := map[int64]bool{1: true}

	scores := Allocate(chainMetrics, gasScores, excluded)

	var total float64
	for _, s := range scores {
		total += s.TargetAllocation
		if s.ChainID == 1 {
			require.Zero(t, s.TargetAllocation, "excluded chain must not receive allocation")
		}
	}
	require.InDelta(t, 100.0, total, 1e-9)
}

// TestAllocateAllExcludedYieldsZero covers the edge case where every chain
// is policy-excluded: the allocation vector must be all zero rather than
// an even softmax split, since there is no candidate left to fund.
func TestAllocateAllExcludedYieldsZero(t *testing.T) {
	gasScores := map[int64]float64{1: 2.0, 56: 3.0}
	excluded := map[int64]bool{1: true, 56: true}

	scores := Allocate(nil, gasScores, excluded)

	var total float64
	for _, s := range scores {
		total += s.TargetAllocation
	}
	require.Zero(t, total)
}

// TestAllocateFloorDropsTinyShares reproduces scenario 6 of §8: a chain
// whose softmax share falls under 5% is zeroed and the survivor(s)
// re-normalize to fill the full 100%.
func TestAllocateFloorDropsTinyShares(t *testing.T) {
	gasScores := map[int64]float64{8453: 100.0, 10: 1.0}
	chainMetrics := map[int64]*metrics.ChainMetrics{}
	scores := Allocate(chainMetrics, gasScores, nil)

	var dominant, minor Score
	for _, s := range scores {
		if s.ChainID == 8453 {
			dominant = s
		} else {
			minor = s
		}
	}
	require.Zero(t, minor.TargetAllocation)
	require.InDelta(t, 100.0, dominant.TargetAllocation, 1e-6)
}

// TestAllocateOrdering reproduces the relative ordering of scenario 5 of
// §8 (exact percentages there are illustrative, not exact): a higher raw
// score must always yield a strictly higher allocation among survivors.
func TestAllocateOrdering(t *testing.T) {
	gasScores := map[int64]float64{8453: 9.0, 10: 8.5, 1: 2.0, 130: 0.3}
	chainMetrics := map[int64]*metrics.ChainMetrics{
		8453: chainMetricsWithApr(0.04),
		10:   chainMetricsWithApr(0.035),
		130:  chainMetricsWithApr(0.003),
	}
	excluded := map[int64]bool{1: true}

	scores := Allocate(chainMetrics, gasScores, excluded)
	byChain := map[int64]Score{}
	for _, s := range scores {
		byChain[s.ChainID] = s
	}

	require.Greater(t, byChain[8453].RawScore, byChain[10].RawScore)
	require.Greater(t, byChain[8453].TargetAllocation, byChain[10].TargetAllocation)
	require.Zero(t, byChain[1].TargetAllocation)
}

// TestAllocateAscendingChainOrder verifies the result is always sorted by
// chain id, matching the determinism note in §9.
func TestAllocateAscendingChainOrder(t *testing.T) {
	gasScores := map[int64]float64{130: 1, 1: 1, 8453: 1, 10: 1}
	scores := Allocate(nil, gasScores, nil)
	require.Len(t, scores, 4)
	for i := 1; i < len(scores); i++ {
		require.Less(t, scores[i-1].ChainID, scores[i].ChainID)
	}
}
