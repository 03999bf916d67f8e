// Package allocation bridges the LOS Allocator's target allocations and
// the agent's observed current allocations into the
// actions.AllocationSource shape CrossChainTransfer reads from.
//
// No teacher precedent exists for cross-chain allocation tracking (the
// teacher is single-chain); this package follows the same "quote once,
// cache for the tick, serve reads from the cache" shape
// internal/runner uses for its active-task snapshot, applied here to a
// value refreshed once per action-loop tick instead of once per RPC call.
package allocation

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"crossliquid/internal/bigutil"
	"crossliquid/internal/chainadapter"
	"crossliquid/internal/los"
	"crossliquid/internal/metrics"
)

// ChainSource is one chain's valuation inputs: the pool whose two legs are
// summed for that chain's USD exposure, plus the vault balance when this
// chain carries one (parent chain only, per §4.3.1).
type ChainSource struct {
	ChainID        int64
	Adapter        chainadapter.Adapter
	PoolKey        chainadapter.PoolKey
	ManagerAddress common.Address
	Decimals1      int
	HasVault       bool
}

// Cache computes and serves per-chain current/target allocation
// percentages. Refresh must be called once per action-loop tick, before
// the Action Runner's start phase, so CrossChainTransfer's gate reads a
// tick-consistent snapshot.
type Cache struct {
	Metrics   *metrics.Engine
	GasScores map[int64]float64
	Excluded  map[int64]bool
	Sources   []ChainSource

	mu      sync.RWMutex
	current map[int64]float64
	target  map[int64]float64
}

// Refresh recomputes both maps. Per-chain valuation or metrics failures
// are logged and that chain is simply left out of the USD total, mirroring
// the Stats Collector's per-chain failure isolation (§5).
func (c *Cache) Refresh(ctx context.Context, now time.Time) {
	chainMetrics := make(map[int64]*metrics.ChainMetrics, len(c.Sources))
	usd := make(map[int64]float64, len(c.Sources))
	var total float64

	for _, src := range c.Sources {
		m, err := c.Metrics.Compute(ctx, src.ChainID, now)
		if err != nil {
			log.Warn().Err(err).Int64("chain", src.ChainID).Msg("allocation: compute metrics failed")
		} else {
			chainMetrics[src.ChainID] = m
		}

		v, err := chainUsdValue(ctx, src)
		if err != nil {
			log.Warn().Err(err).Int64("chain", src.ChainID).Msg("allocation: chain USD valuation failed")
			continue
		}
		usd[src.ChainID] = v
		total += v
	}

	scores := los.Allocate(chainMetrics, c.GasScores, c.Excluded)
	target := make(map[int64]float64, len(scores))
	for _, s := range scores {
		target[s.ChainID] = s.TargetAllocation
	}

	current := make(map[int64]float64, len(usd))
	if total > 0 {
		for id, v := range usd {
			current[id] = v / total * 100
		}
	}

	c.mu.Lock()
	c.current = current
	c.target = target
	c.mu.Unlock()
}

// CurrentAllocationPct implements actions.AllocationSource.
func (c *Cache) CurrentAllocationPct(ctx context.Context, chainID int64) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current[chainID], nil
}

// TargetAllocationPct implements actions.AllocationSource.
func (c *Cache) TargetAllocationPct(ctx context.Context, chainID int64) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.target[chainID], nil
}

// chainUsdValue sums a chain's pool-held legs (token1 assumed USD-stable,
// token0 valued off the pool's own sqrtPriceX96 ratio, same simplification
// internal/actions uses) plus its vault balance when it carries one; the
// vault balance is in wei of the token0 asset and is valued like token0.
func chainUsdValue(ctx context.Context, src ChainSource) (float64, error) {
	balance0, err := src.Adapter.BalanceERC20(ctx, src.PoolKey.Token0, src.ManagerAddress)
	if err != nil {
		return 0, fmt.Errorf("balance0: %w", err)
	}
	balance1, err := src.Adapter.BalanceERC20(ctx, src.PoolKey.Token1, src.ManagerAddress)
	if err != nil {
		return 0, fmt.Errorf("balance1: %w", err)
	}
	slot0, err := src.Adapter.Slot0(ctx, src.PoolKey)
	if err != nil {
		return 0, fmt.Errorf("slot0: %w", err)
	}
	if slot0.SqrtPriceX96 == nil {
		return 0, fmt.Errorf("slot0: missing sqrtPriceX96")
	}
	price, _ := bigutil.SqrtPriceToPrice(slot0.SqrtPriceX96).Float64()

	scale := new(big.Float).SetFloat64(pow10(src.Decimals1))
	b0f, _ := new(big.Float).SetInt(balance0).Float64()
	b1f, _ := new(big.Float).SetInt(balance1).Float64()
	scaleF, _ := scale.Float64()
	if scaleF == 0 {
		scaleF = 1
	}

	total := (b0f*price + b1f) / scaleF

	if src.HasVault {
		vault, err := src.Adapter.VaultBalance(ctx)
		if err != nil {
			return 0, fmt.Errorf("vaultBalance: %w", err)
		}
		vf, _ := new(big.Float).SetInt(vault).Float64()
		total += vf * price / scaleF
	}
	return total, nil
}

func pow10(n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= 10
	}
	return result
}
