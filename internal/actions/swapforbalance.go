package actions

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"crossliquid/internal/bigutil"
	"crossliquid/internal/chainadapter"
	"crossliquid/internal/taskstore"
	"crossliquid/internal/txlifecycle"
)

// SwapForBalanceTaskData is SwapForBalance's pre-start snapshot plus the
// shared submitted-transaction tail.
type SwapForBalanceTaskData struct {
	taskstore.TxTaskData
	PoolKey    chainadapter.PoolKey
	ZeroForOne bool
	AmountIn   string // decimal big.Int string
}

// SwapForBalance swaps the heavier side down to re-equalize USD value
// between a pool's two legs, generalized from a manual swap invocation to
// an automatic direction/amount computation driven by
// CalculateRebalanceAmounts, per §4.3.4.
type SwapForBalance struct {
	ChainID        int64
	Adapter        chainadapter.Adapter
	PoolKey        chainadapter.PoolKey
	ManagerAddress common.Address

	SlippagePct       int
	MinTotalUsd       float64
	MaxImbalanceRatio float64
	Decimals1         int
	NativeToken0      bool // true if token0 is the chain's native asset
}

func (s *SwapForBalance) Name() string { return fmt.Sprintf("swap-for-balance-%d", s.ChainID) }

func (s *SwapForBalance) LockResources() []string {
	return []string{fmt.Sprintf("chain:%d:liquidity", s.ChainID)}
}

func (s *SwapForBalance) gateValues(ctx context.Context) (value0, value1 float64, slot0 chainadapter.Slot0, err error) {
	balance0, err := s.Adapter.BalanceERC20(ctx, s.PoolKey.Token0, s.ManagerAddress)
	if err != nil {
		return 0, 0, slot0, fmt.Errorf("swapforbalance %s: token0 balance: %w", s.Name(), err)
	}
	balance1, err := s.Adapter.BalanceERC20(ctx, s.PoolKey.Token1, s.ManagerAddress)
	if err != nil {
		return 0, 0, slot0, fmt.Errorf("swapforbalance %s: token1 balance: %w", s.Name(), err)
	}
	slot0, err = s.Adapter.Slot0(ctx, s.PoolKey)
	if err != nil {
		return 0, 0, slot0, fmt.Errorf("swapforbalance %s: slot0: %w", s.Name(), err)
	}
	price, _ := bigutil.SqrtPriceToPrice(slot0.SqrtPriceX96).Float64()
	value0, value1 = usdValues(balance0, balance1, price, s.Decimals1)
	return value0, value1, slot0, nil
}

func (s *SwapForBalance) ShouldStart(ctx context.Context, active []taskstore.Task) (bool, error) {
	value0, value1, _, err := s.gateValues(ctx)
	if err != nil {
		return false, err
	}
	if value0+value1 < s.MinTotalUsd {
		return false, nil
	}
	return imbalanceRatio(value0, value1) > s.MaxImbalanceRatio, nil
}

func (s *SwapForBalance) Start(ctx context.Context, active []taskstore.Task, force bool) (*taskstore.Task, string, error) {
	if !force {
		ok, err := s.ShouldStart(ctx, active)
		if err != nil {
			return nil, "", err
		}
		if !ok {
			return nil, "gate not satisfied", nil
		}
	}

	balance0, err := s.Adapter.BalanceERC20(ctx, s.PoolKey.Token0, s.ManagerAddress)
	if err != nil {
		return nil, "", fmt.Errorf("swapforbalance %s: token0 balance: %w", s.Name(), err)
	}
	balance1, err := s.Adapter.BalanceERC20(ctx, s.PoolKey.Token1, s.ManagerAddress)
	if err != nil {
		return nil, "", fmt.Errorf("swapforbalance %s: token1 balance: %w", s.Name(), err)
	}
	slot0, err := s.Adapter.Slot0(ctx, s.PoolKey)
	if err != nil {
		return nil, "", fmt.Errorf("swapforbalance %s: slot0: %w", s.Name(), err)
	}

	tokenToSwap, amountIn, err := bigutil.CalculateRebalanceAmounts(balance0, balance1, slot0.SqrtPriceX96)
	if err != nil {
		return nil, "", fmt.Errorf("swapforbalance %s: %w", s.Name(), err)
	}

	now := time.Now().UnixMilli()
	task := &taskstore.Task{
		DefinitionName: s.Name(),
		StartedAt:      now,
		LastUpdatedAt:  now,
		Status:         taskstore.StatusPreStart,
		ResourcesTaken: s.LockResources(),
	}
	data := SwapForBalanceTaskData{
		PoolKey:    s.PoolKey,
		ZeroForOne: tokenToSwap == 0,
		AmountIn:   amountIn.String(),
	}
	if err := task.EncodeTaskData(data); err != nil {
		return nil, "", fmt.Errorf("swapforbalance %s: encode task data: %w", s.Name(), err)
	}
	return task, "", nil
}

func (s *SwapForBalance) Update(ctx context.Context, task *taskstore.Task) (*taskstore.Task, error) {
	var data SwapForBalanceTaskData
	if err := task.DecodeTaskData(&data); err != nil {
		return nil, fmt.Errorf("swapforbalance %s: decode task data: %w", s.Name(), err)
	}

	if task.Status == taskstore.StatusPreStart {
		amountIn, ok := new(big.Int).SetString(data.AmountIn, 10)
		if !ok {
			return nil, fmt.Errorf("swapforbalance %s: corrupt amountIn %q", s.Name(), data.AmountIn)
		}
		quote, err := s.Adapter.QuoteSwap(ctx, chainadapter.SwapQuoteRequest{
			PoolKey:    data.PoolKey,
			ZeroForOne: data.ZeroForOne,
			AmountIn:   amountIn,
		})
		if err != nil {
			return nil, fmt.Errorf("swapforbalance %s: quote: %w", s.Name(), err)
		}
		nativeIn := s.NativeToken0 && data.ZeroForOne
		hash, err := s.Adapter.SubmitSwap(ctx, chainadapter.SwapRequest{
			PoolKey:      data.PoolKey,
			ZeroForOne:   data.ZeroForOne,
			AmountIn:     amountIn,
			MinAmountOut: bigutil.CalculateMinAmount(quote.AmountOut, s.SlippagePct),
			NativeIn:     nativeIn,
		})
		if err != nil {
			return nil, fmt.Errorf("swapforbalance %s: submit swap: %w", s.Name(), err)
		}
		data.Hash = hash.Hex()
		if err := task.EncodeTaskData(data); err != nil {
			return nil, fmt.Errorf("swapforbalance %s: encode task data: %w", s.Name(), err)
		}
		task.Status = taskstore.StatusRunning
		task.LastUpdatedAt = time.Now().UnixMilli()
		return task, nil
	}

	return txlifecycle.Advance(ctx, s.Adapter, task, data.Hash, task.StartedAt, time.Now(), func(r *chainadapter.Receipt) string {
		return fmt.Sprintf("swapped to rebalance %s", data.PoolKey.Address.Hex())
	}), nil
}

func (s *SwapForBalance) Stop(ctx context.Context, task *taskstore.Task) error { return nil }
