// Package stats implements the Stats Collector of §2 item 10 / §5: a
// periodic, chain-sequential loop that reads pool state off the Chain
// Adapter and appends it to the Time-Series Store.
//
// Generalized from a one-shot read of a pool's slot0/liquidity/fee-growth
// state across one hardcoded pool to one pool per configured chain, kept
// sequential (non-concurrent) across chains — the Stats loop has no
// analogue to the Action Runner's parallel update phase, per §5.
package stats

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"crossliquid/internal/chainadapter"
	"crossliquid/internal/timeseries"
)

// ChainSource is one chain's Adapter plus the pool it should be observed
// against, and an optional probe pool used to synthesize an exchange-rate
// sanity sample.
type ChainSource struct {
	Adapter  chainadapter.Adapter
	PoolKey  chainadapter.PoolKey
	ProbeFor ExchangeRateProbe // zero value skips the exchange-rate sample for this chain
}

// ExchangeRateProbe describes a small fixed-size swap quote used purely as
// a sanity signal, not an action input.
type ExchangeRateProbe struct {
	ZeroForOne bool
	AmountIn   *string // decimal string; nil skips the probe
}

// Collector runs one tick of the Stats loop across every configured
// chain, in registration order, per §5's "sequential across chains".
type Collector struct {
	Store   timeseries.Store
	Sources []ChainSource

	running atomic.Bool
}

// Tick collects and appends one observation per configured chain. If a
// previous Tick is still in flight, this call is a no-op (§5: "no overlap
// with itself: if a previous run has not finished, the next tick is
// skipped"). Per-chain failures are logged and isolated; they never abort
// the remaining chains or the overall call.
func (c *Collector) Tick(ctx context.Context) {
	if !c.running.CompareAndSwap(false, true) {
		log.Warn().Msg("stats: previous tick still running, skipping")
		return
	}
	defer c.running.Store(false)

	now := time.Now().UTC()
	for _, src := range c.Sources {
		if err := ctx.Err(); err != nil {
			return
		}
		if err := c.collectOne(ctx, src, now); err != nil {
			log.Error().Err(err).Int64("chain", src.Adapter.ChainID()).Msg("stats: collect pool observation failed")
		}
	}
}

func (c *Collector) collectOne(ctx context.Context, src ChainSource, ts time.Time) error {
	slot0, err := src.Adapter.Slot0(ctx, src.PoolKey)
	if err != nil {
		return err
	}
	liquidity, err := src.Adapter.Liquidity(ctx, src.PoolKey)
	if err != nil {
		return err
	}
	g0, g1, err := src.Adapter.FeeGrowthGlobals(ctx, src.PoolKey)
	if err != nil {
		return err
	}

	obs := timeseries.PoolObservation{
		Timestamp:        ts,
		ChainID:          src.Adapter.ChainID(),
		PoolAddress:      src.PoolKey.Address.Hex(),
		SqrtPriceX96:     slot0.SqrtPriceX96.String(),
		Tick:             slot0.Tick,
		Liquidity:        liquidity.String(),
		Fee:              int32(slot0.LPFee),
		FeeGrowthGlobal0: g0.String(),
		FeeGrowthGlobal1: g1.String(),
	}
	if err := c.Store.InsertPoolPrice(ctx, obs); err != nil {
		return err
	}

	if src.ProbeFor.AmountIn == nil {
		return nil
	}
	return c.collectExchangeRate(ctx, src, ts)
}

func (c *Collector) collectExchangeRate(ctx context.Context, src ChainSource, ts time.Time) error {
	amountIn, ok := new(big.Int).SetString(*src.ProbeFor.AmountIn, 10)
	if !ok {
		return fmt.Errorf("stats: invalid probe amount %q for chain %d", *src.ProbeFor.AmountIn, src.Adapter.ChainID())
	}
	quote, err := src.Adapter.QuoteSwap(ctx, chainadapter.SwapQuoteRequest{
		PoolKey:    src.PoolKey,
		ZeroForOne: src.ProbeFor.ZeroForOne,
		AmountIn:   amountIn,
	})
	if err != nil {
		return err
	}
	sample := timeseries.ExchangeRateSample{
		Timestamp:  ts,
		ChainID:    src.Adapter.ChainID(),
		UsdcOutput: quote.AmountOut.String(),
	}
	return c.Store.InsertExchangeRate(ctx, sample)
}
