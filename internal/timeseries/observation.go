// Package timeseries is the append-only log of per-chain pool observations
// and exchange-rate samples that feeds the Metrics Engine.
//
// Follows the same gorm+asset-snapshot persistence pattern (big.Int
// fields persisted as strings, AutoMigrate on open) as the Task Store,
// with the driver set to gorm.io/driver/sqlite for the single-file/WAL
// requirement both stores need.
package timeseries

import "time"

// PoolObservation is one append-only row of on-chain pool state.
type PoolObservation struct {
	Timestamp        time.Time
	ChainID          int64
	PoolAddress      string
	SqrtPriceX96     string // decimal big.Int
	Tick             int32
	Liquidity        string // decimal big.Int (uint128)
	Fee              int32  // ppm
	FeeGrowthGlobal0 string // decimal big.Int (uint256)
	FeeGrowthGlobal1 string // decimal big.Int (uint256)
}

// ExchangeRateSample is a simulated swap-quote sanity signal, same
// lifecycle as PoolObservation.
type ExchangeRateSample struct {
	Timestamp  time.Time
	ChainID    int64
	UsdcOutput string // decimal big.Int
}
