// Package bigutil holds the arbitrary-precision AMM math shared by the
// action definitions and the metrics engine: tick/sqrtPrice conversions,
// concentrated-liquidity amount math, and rebalance-amount calculations.
//
// Generalized from a single WAVAX/USDC Algebra pool's fixed math to an
// arbitrary (token0, token1, tickSpacing) pool, since this agent runs the
// same math across several chains and pools instead of one.
package bigutil

import (
	"errors"
	"math/big"
)

const floatPrec = 256

// Q96Int is 2^96, the fixed-point scale of sqrtPriceX96.
var Q96Int = new(big.Int).Lsh(big.NewInt(1), 96)

func toFloat(x *big.Int) *big.Float {
	return new(big.Float).SetPrec(floatPrec).SetInt(x)
}

func q96Float() *big.Float {
	return new(big.Float).SetPrec(floatPrec).SetInt(Q96Int)
}

// sqrtRatio returns sqrtPriceX96 as an unscaled real ratio (token1/token0)^0.5.
func sqrtRatio(sqrtPriceX96 *big.Int) *big.Float {
	return new(big.Float).SetPrec(floatPrec).Quo(toFloat(sqrtPriceX96), q96Float())
}

// powBigFloat computes base^exp for an integer (possibly negative) exponent
// by squaring, at the precision of base.
func powBigFloat(base *big.Float, exp int) *big.Float {
	result := new(big.Float).SetPrec(base.Prec()).SetFloat64(1)
	b := new(big.Float).Copy(base)
	e := exp
	neg := e < 0
	if neg {
		e = -e
	}
	for e > 0 {
		if e&1 == 1 {
			result.Mul(result, b)
		}
		b.Mul(b, b)
		e >>= 1
	}
	if neg {
		one := new(big.Float).SetPrec(base.Prec()).SetFloat64(1)
		result.Quo(one, result)
	}
	return result
}

// TickToSqrtPriceX96 converts a tick to its sqrtPriceX96 fixed-point
// representation: sqrt(1.0001^tick) * 2^96.
func TickToSqrtPriceX96(tick int) *big.Int {
	base := new(big.Float).SetPrec(floatPrec).SetFloat64(1.0001)
	ratio := powBigFloat(base, tick)
	sqrt := new(big.Float).SetPrec(floatPrec).Sqrt(ratio)
	scaled := new(big.Float).SetPrec(floatPrec).Mul(sqrt, q96Float())
	result, _ := scaled.Int(nil)
	return result
}

// SqrtPriceToPrice returns (sqrtPriceX96 / 2^96)^2 as token1-per-token0, in
// raw (smallest-unit) terms.
func SqrtPriceToPrice(sqrtPriceX96 *big.Int) *big.Float {
	r := sqrtRatio(sqrtPriceX96)
	return new(big.Float).SetPrec(floatPrec).Mul(r, r)
}

// floorToSpacing rounds tick down to the nearest multiple of spacing
// (floor, not truncate-toward-zero, matching Uniswap's tick rounding).
func floorToSpacing(tick, spacing int) int {
	q := tick / spacing
	if tick%spacing != 0 && tick < 0 {
		q--
	}
	return q * spacing
}

// CalculateTickBounds rounds currentTick down to the pool's tick spacing and
// extends it by ±(rangeWidth * tickSpacing) ticks.
func CalculateTickBounds(currentTick int32, rangeWidth, tickSpacing int) (int32, int32, error) {
	if tickSpacing <= 0 {
		return 0, 0, errors.New("tickSpacing must be positive")
	}
	if rangeWidth <= 0 {
		return 0, 0, errors.New("rangeWidth must be positive")
	}
	rounded := floorToSpacing(int(currentTick), tickSpacing)
	width := rangeWidth * tickSpacing
	return int32(rounded - width), int32(rounded + width), nil
}

// ComputeAmounts computes the deposit amounts and resulting liquidity for a
// concentrated-liquidity position given a current price, a tick range, and
// the caller's maximum available amounts of token0 and token1.
func ComputeAmounts(sqrtPriceX96 *big.Int, tick, tickLower, tickUpper int, amount0Max, amount1Max *big.Int) (*big.Int, *big.Int, *big.Int) {
	sqrtP := sqrtRatio(sqrtPriceX96)
	sqrtA := sqrtRatio(TickToSqrtPriceX96(tickLower))
	sqrtB := sqrtRatio(TickToSqrtPriceX96(tickUpper))
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}

	a0 := toFloat(amount0Max)
	a1 := toFloat(amount1Max)

	var liquidity, amount0, amount1 *big.Float

	switch {
	case tick < tickLower:
		// Entirely token0.
		num := new(big.Float).SetPrec(floatPrec).Mul(sqrtA, sqrtB)
		den := new(big.Float).SetPrec(floatPrec).Sub(sqrtB, sqrtA)
		liquidity = new(big.Float).SetPrec(floatPrec).Mul(a0, new(big.Float).SetPrec(floatPrec).Quo(num, den))
		amount0 = new(big.Float).Copy(a0)
		amount1 = new(big.Float).SetPrec(floatPrec)
	case tick >= tickUpper:
		// Entirely token1.
		den := new(big.Float).SetPrec(floatPrec).Sub(sqrtB, sqrtA)
		liquidity = new(big.Float).SetPrec(floatPrec).Quo(a1, den)
		amount0 = new(big.Float).SetPrec(floatPrec)
		amount1 = new(big.Float).Copy(a1)
	default:
		denB := new(big.Float).SetPrec(floatPrec).Sub(sqrtB, sqrtP)
		num0 := new(big.Float).SetPrec(floatPrec).Mul(a0, new(big.Float).SetPrec(floatPrec).Mul(sqrtP, sqrtB))
		l0 := new(big.Float).SetPrec(floatPrec).Quo(num0, denB)

		denA := new(big.Float).SetPrec(floatPrec).Sub(sqrtP, sqrtA)
		l1 := new(big.Float).SetPrec(floatPrec).Quo(a1, denA)

		if l0.Cmp(l1) < 0 {
			liquidity = l0
		} else {
			liquidity = l1
		}

		amount0 = new(big.Float).SetPrec(floatPrec).Quo(
			new(big.Float).SetPrec(floatPrec).Mul(liquidity, denB),
			new(big.Float).SetPrec(floatPrec).Mul(sqrtP, sqrtB),
		)
		amount1 = new(big.Float).SetPrec(floatPrec).Mul(liquidity, denA)
	}

	a0i, _ := amount0.Int(nil)
	a1i, _ := amount1.Int(nil)
	li, _ := liquidity.Int(nil)
	return a0i, a1i, li
}

// CalculateTokenAmountsFromLiquidity returns the token0/token1 amounts
// represented by a given liquidity amount over a tick range at the current
// price.
func CalculateTokenAmountsFromLiquidity(liquidity *big.Int, sqrtPriceX96 *big.Int, tickLower, tickUpper int32) (*big.Int, *big.Int, error) {
	if liquidity == nil || liquidity.Sign() == 0 {
		return big.NewInt(0), big.NewInt(0), nil
	}
	sqrtP := sqrtRatio(sqrtPriceX96)
	sqrtA := sqrtRatio(TickToSqrtPriceX96(int(tickLower)))
	sqrtB := sqrtRatio(TickToSqrtPriceX96(int(tickUpper)))
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	l := toFloat(liquidity)

	var amount0, amount1 *big.Float
	switch {
	case sqrtP.Cmp(sqrtA) <= 0:
		num := new(big.Float).SetPrec(floatPrec).Sub(sqrtB, sqrtA)
		den := new(big.Float).SetPrec(floatPrec).Mul(sqrtA, sqrtB)
		amount0 = new(big.Float).SetPrec(floatPrec).Mul(l, new(big.Float).SetPrec(floatPrec).Quo(num, den))
		amount1 = new(big.Float).SetPrec(floatPrec)
	case sqrtP.Cmp(sqrtB) >= 0:
		amount0 = new(big.Float).SetPrec(floatPrec)
		amount1 = new(big.Float).SetPrec(floatPrec).Mul(l, new(big.Float).SetPrec(floatPrec).Sub(sqrtB, sqrtA))
	default:
		num := new(big.Float).SetPrec(floatPrec).Sub(sqrtB, sqrtP)
		den := new(big.Float).SetPrec(floatPrec).Mul(sqrtP, sqrtB)
		amount0 = new(big.Float).SetPrec(floatPrec).Mul(l, new(big.Float).SetPrec(floatPrec).Quo(num, den))
		amount1 = new(big.Float).SetPrec(floatPrec).Mul(l, new(big.Float).SetPrec(floatPrec).Sub(sqrtP, sqrtA))
	}
	a0, _ := amount0.Int(nil)
	a1, _ := amount1.Int(nil)
	return a0, a1, nil
}

// CalculateMinAmount applies a slippage tolerance percentage to a desired
// amount, rounding down.
func CalculateMinAmount(desired *big.Int, slippagePct int) *big.Int {
	if desired == nil || desired.Sign() == 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(desired, big.NewInt(int64(100-slippagePct)))
	return num.Div(num, big.NewInt(100))
}

// CalculateRebalanceAmounts decides which side of a two-sided position is
// "heavier" in USD terms and how much of it must be swapped to bring the
// position back to balance, given raw token balances and the pool's current
// sqrtPriceX96 (token1-per-token0).
//
// Returns tokenToSwap (0 = token0 is heavier and should be sold, 1 = token1
// is heavier) and the input amount of that token to swap.
func CalculateRebalanceAmounts(balance0, balance1 *big.Int, sqrtPriceX96 *big.Int) (int, *big.Int, error) {
	if balance0 == nil || balance1 == nil || sqrtPriceX96 == nil {
		return 0, nil, errors.New("nil input to CalculateRebalanceAmounts")
	}
	price := SqrtPriceToPrice(sqrtPriceX96) // token1 per token0

	value1InToken0 := new(big.Float).SetPrec(floatPrec).Quo(toFloat(balance1), price)
	value0 := toFloat(balance0)

	total := new(big.Float).SetPrec(floatPrec).Add(value0, value1InToken0)
	half := new(big.Float).SetPrec(floatPrec).Quo(total, big.NewFloat(2))

	if value0.Cmp(value1InToken0) > 0 {
		excess := new(big.Float).SetPrec(floatPrec).Sub(value0, half)
		amt, _ := excess.Int(nil)
		return 0, amt, nil
	}
	excessInToken0 := new(big.Float).SetPrec(floatPrec).Sub(value1InToken0, half)
	excessInToken1 := new(big.Float).SetPrec(floatPrec).Mul(excessInToken0, price)
	amt, _ := excessInToken1.Int(nil)
	return 1, amt, nil
}
