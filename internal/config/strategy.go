package config

import "time"

// StrategyConfig collects the tunable knobs the action definitions and the
// LOS allocator read, generalized from a single-pool, single-chain set of
// knobs to a set shared across chains, plus the two new knobs introduced by
// resolving the Open Questions (RangeWidth, RebalanceThresholdPct).
type StrategyConfig struct {
	// AddLiquidity
	RangeWidth  int // tick-spacing multiples either side of center, default 5 (Open Question #1)
	SlippagePct int // default 1

	// VaultSync
	IntendedVaultReserve string // decimal big.Int string, default "0" (Open Question #3)

	// RemoveLiquidity: a tracked position is a candidate once its current
	// tick falls outside [lowerFrac, upperFrac] of its range.
	RemoveLiquidityLowerFrac float64 // default 0.15
	RemoveLiquidityUpperFrac float64 // default 0.85

	// SwapForBalance / AddLiquidity gates, in USD.
	MinBothSideValueUsd   float64 // default 10
	MinSwapTotalValueUsd  float64 // default 20
	MaxSideImbalanceRatio float64 // default 2.0
	MaxTickDivergence     int32   // default 200, AddLiquidity's sanity check against the query pool

	// CrossChainTransfer (Open Question #2)
	RebalanceThresholdPct float64 // percentage points, default 10

	// Action loop / tick bounds.
	ActionLoopInterval time.Duration // default 5m
	TickDeadline       time.Duration // default 30s
	TxTimeout          time.Duration // default 3m; not read: txlifecycle.Advance always uses txlifecycle.DefaultTimeout
}

// DefaultStrategyConfig mirrors a single-pool agent's own defaults,
// extended with the two new fields the Open Question resolutions
// introduced.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		RangeWidth:               5,
		SlippagePct:              1,
		IntendedVaultReserve:     "0",
		RemoveLiquidityLowerFrac: 0.15,
		RemoveLiquidityUpperFrac: 0.85,
		MinBothSideValueUsd:      10,
		MinSwapTotalValueUsd:     20,
		MaxSideImbalanceRatio:    2.0,
		MaxTickDivergence:        200,
		RebalanceThresholdPct:    10,
		ActionLoopInterval:       5 * time.Minute,
		TickDeadline:             30 * time.Second,
		TxTimeout:                3 * time.Minute,
	}
}

// GasScores is the static per-chain gas-cost factor table the LOS
// allocator reads (§4.6), 0-10, higher is cheaper.
var GasScores = map[int64]float64{
	8453: 9.0, // Base
	10:   8.5, // Optimism
	1:    2.0, // Ethereum mainnet
	130:  9.0, // Unichain
}

// ExcludedChains lists chains that should never receive LOS allocation
// regardless of score (the "coarse but sufficient policy knob" of §4.6),
// e.g. mainnet is excluded by policy in the concrete scenario of §8.
var ExcludedChains = map[int64]bool{
	1: true,
}
