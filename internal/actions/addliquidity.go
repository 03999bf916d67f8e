package actions

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"crossliquid/internal/bigutil"
	"crossliquid/internal/chainadapter"
	"crossliquid/internal/taskstore"
	"crossliquid/internal/txlifecycle"
)

// AddLiquidityTaskData is AddLiquidity's pre-start snapshot plus the
// shared submitted-transaction tail.
type AddLiquidityTaskData struct {
	taskstore.TxTaskData
	PoolKey    chainadapter.PoolKey
	TickLower  int32
	TickUpper  int32
	Amount0Max string // decimal big.Int string
	Amount1Max string
}

// AddLiquidity deposits a two-sided position around the current tick,
// following a mint flow (balance validation, deposit-params construction,
// deposit-event decoding for the success message) generalized from one
// hardcoded tick range to a configurable RangeWidth-derived range per
// §4.3.2.
type AddLiquidity struct {
	ChainID        int64
	Adapter        chainadapter.Adapter
	PoolKey        chainadapter.PoolKey
	QueryPoolKey   *chainadapter.PoolKey // sibling pool used for the tick-divergence sanity check, nil if none configured
	ManagerAddress common.Address        // balance-holding address checked for deposit headroom

	RangeWidth        int
	SlippagePct       int
	MinBothSideUsd    float64
	MaxImbalanceRatio float64
	MaxTickDivergence int32
	Decimals1         int // token1's decimals; token1 is assumed USD-stable
}

func (a *AddLiquidity) Name() string { return fmt.Sprintf("add-liquidity-%d", a.ChainID) }

func (a *AddLiquidity) LockResources() []string {
	return []string{fmt.Sprintf("chain:%d:liquidity", a.ChainID)}
}

func (a *AddLiquidity) ShouldStart(ctx context.Context, active []taskstore.Task) (bool, error) {
	if a.PoolKey.Address == (common.Address{}) {
		return false, nil
	}

	balance0, balance1, err := a.managerBalances(ctx)
	if err != nil {
		return false, err
	}

	slot0, err := a.Adapter.Slot0(ctx, a.PoolKey)
	if err != nil {
		return false, fmt.Errorf("addliquidity %s: %w", a.Name(), err)
	}
	price, _ := bigutil.SqrtPriceToPrice(slot0.SqrtPriceX96).Float64()

	value0, value1 := usdValues(balance0, balance1, price, a.Decimals1)
	if value0 < a.MinBothSideUsd || value1 < a.MinBothSideUsd {
		return false, nil
	}
	ratio := imbalanceRatio(value0, value1)
	return ratio <= a.MaxImbalanceRatio, nil
}

func (a *AddLiquidity) Start(ctx context.Context, active []taskstore.Task, force bool) (*taskstore.Task, string, error) {
	if !force {
		ok, err := a.ShouldStart(ctx, active)
		if err != nil {
			return nil, "", err
		}
		if !ok {
			return nil, "gate not satisfied", nil
		}
	}

	slot0, err := a.Adapter.Slot0(ctx, a.PoolKey)
	if err != nil {
		return nil, "", fmt.Errorf("addliquidity %s: slot0: %w", a.Name(), err)
	}

	if a.QueryPoolKey != nil {
		queryTick, err := a.Adapter.CurrentTick(ctx, *a.QueryPoolKey)
		if err != nil {
			return nil, "", fmt.Errorf("addliquidity %s: query tick: %w", a.Name(), err)
		}
		if queryTick != nil && absInt32(slot0.Tick-*queryTick) > a.MaxTickDivergence {
			return nil, "Current tick is too far from other tick", nil
		}
	}

	tickLower, tickUpper, err := bigutil.CalculateTickBounds(slot0.Tick, a.RangeWidth, a.PoolKey.TickSpacing)
	if err != nil {
		return nil, "", fmt.Errorf("addliquidity %s: tick bounds: %w", a.Name(), err)
	}

	balance0, balance1, err := a.managerBalances(ctx)
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UnixMilli()
	task := &taskstore.Task{
		DefinitionName: a.Name(),
		StartedAt:      now,
		LastUpdatedAt:  now,
		Status:         taskstore.StatusPreStart,
		ResourcesTaken: a.LockResources(),
	}
	data := AddLiquidityTaskData{
		PoolKey:    a.PoolKey,
		TickLower:  tickLower,
		TickUpper:  tickUpper,
		Amount0Max: balance0.String(),
		Amount1Max: balance1.String(),
	}
	if err := task.EncodeTaskData(data); err != nil {
		return nil, "", fmt.Errorf("addliquidity %s: encode task data: %w", a.Name(), err)
	}
	return task, "", nil
}

func (a *AddLiquidity) Update(ctx context.Context, task *taskstore.Task) (*taskstore.Task, error) {
	var data AddLiquidityTaskData
	if err := task.DecodeTaskData(&data); err != nil {
		return nil, fmt.Errorf("addliquidity %s: decode task data: %w", a.Name(), err)
	}

	if task.Status == taskstore.StatusPreStart {
		amount0Max, _ := new(big.Int).SetString(data.Amount0Max, 10)
		amount1Max, _ := new(big.Int).SetString(data.Amount1Max, 10)

		slot0, err := a.Adapter.Slot0(ctx, data.PoolKey)
		if err != nil {
			return nil, fmt.Errorf("addliquidity %s: slot0: %w", a.Name(), err)
		}
		amount0, amount1, _ := bigutil.ComputeAmounts(slot0.SqrtPriceX96, int(slot0.Tick), int(data.TickLower), int(data.TickUpper), amount0Max, amount1Max)

		hash, err := a.Adapter.SubmitDeposit(ctx, chainadapter.DepositRequest{
			PoolKey:    data.PoolKey,
			TickLower:  data.TickLower,
			TickUpper:  data.TickUpper,
			Amount0Max: amount0,
			Amount1Max: amount1,
			Amount0Min: bigutil.CalculateMinAmount(amount0, a.SlippagePct),
			Amount1Min: bigutil.CalculateMinAmount(amount1, a.SlippagePct),
		})
		if err != nil {
			return nil, fmt.Errorf("addliquidity %s: submit deposit: %w", a.Name(), err)
		}
		data.Hash = hash.Hex()
		if err := task.EncodeTaskData(data); err != nil {
			return nil, fmt.Errorf("addliquidity %s: encode task data: %w", a.Name(), err)
		}
		task.Status = taskstore.StatusRunning
		task.LastUpdatedAt = time.Now().UnixMilli()
		return task, nil
	}

	return txlifecycle.Advance(ctx, a.Adapter, task, data.Hash, task.StartedAt, time.Now(), func(r *chainadapter.Receipt) string {
		for _, ev := range r.Events {
			if ev.Name == "Deposit" || ev.Name == "IncreaseLiquidity" {
				return fmt.Sprintf("deposited liquidity into %s (%s %v)", data.PoolKey.Address.Hex(), ev.Name, ev.Args)
			}
		}
		return fmt.Sprintf("deposited liquidity into %s", data.PoolKey.Address.Hex())
	}), nil
}

func (a *AddLiquidity) Stop(ctx context.Context, task *taskstore.Task) error { return nil }

func (a *AddLiquidity) managerBalances(ctx context.Context) (*big.Int, *big.Int, error) {
	balance0, err := a.Adapter.BalanceERC20(ctx, a.PoolKey.Token0, a.ManagerAddress)
	if err != nil {
		return nil, nil, fmt.Errorf("addliquidity %s: token0 balance: %w", a.Name(), err)
	}
	balance1, err := a.Adapter.BalanceERC20(ctx, a.PoolKey.Token1, a.ManagerAddress)
	if err != nil {
		return nil, nil, fmt.Errorf("addliquidity %s: token1 balance: %w", a.Name(), err)
	}
	return balance0, balance1, nil
}

// usdValues converts raw token0/token1 balances to USD, treating token1 as
// a USD-stable asset (the same WAVAX/USDC-style assumption a single pool
// is built on, generalized to any (token0, token1) pair whose token1 leg
// is a stablecoin).
func usdValues(balance0, balance1 *big.Int, price float64, decimals1 int) (value0, value1 float64) {
	b0, _ := new(big.Float).SetInt(balance0).Float64()
	b1, _ := new(big.Float).SetInt(balance1).Float64()
	scale := math.Pow10(decimals1)
	value0 = b0 * price / scale
	value1 = b1 / scale
	return value0, value1
}

func imbalanceRatio(value0, value1 float64) float64 {
	if value0 == 0 || value1 == 0 {
		return math.Inf(1)
	}
	if value0 > value1 {
		return value0 / value1
	}
	return value1 / value0
}

func absInt32(x int32) int32 {
	if x < 0 {
		return -x
	}
	return x
}
