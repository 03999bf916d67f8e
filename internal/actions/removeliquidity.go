package actions

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"crossliquid/internal/chainadapter"
	"crossliquid/internal/taskstore"
	"crossliquid/internal/txlifecycle"
)

// RemoveLiquidityTaskData is RemoveLiquidity's pre-start snapshot plus the
// shared submitted-transaction tail.
type RemoveLiquidityTaskData struct {
	taskstore.TxTaskData
	PoolKey   chainadapter.PoolKey
	TickLower int32
	TickUpper int32
	Liquidity string // decimal big.Int string
}

// RemoveLiquidity withdraws a position once the current tick has drifted
// out of the middle band of its range, following an unstake-and-withdraw
// flow generalized from one hardcoded position to any tracked position of
// the manager, per §4.3.3.
type RemoveLiquidity struct {
	ChainID    int64
	Adapter    chainadapter.Adapter
	LowerFrac  float64 // default 0.15
	UpperFrac  float64 // default 0.85
}

func (r *RemoveLiquidity) Name() string { return fmt.Sprintf("remove-liquidity-%d", r.ChainID) }

func (r *RemoveLiquidity) LockResources() []string {
	return []string{fmt.Sprintf("chain:%d:liquidity", r.ChainID)}
}

// candidate returns the first tracked position out of the middle band, or
// nil if none qualifies.
func (r *RemoveLiquidity) candidate(ctx context.Context) (*chainadapter.Position, int32, error) {
	positions, err := r.Adapter.PositionsOfManager(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("removeliquidity %s: %w", r.Name(), err)
	}
	for i := range positions {
		p := positions[i]
		if p.Liquidity == nil || p.Liquidity.Sign() == 0 {
			continue
		}
		if p.TickUpper == p.TickLower {
			continue
		}
		currentTick, err := r.Adapter.CurrentTick(ctx, p.PoolKey)
		if err != nil || currentTick == nil {
			continue
		}
		frac := float64(*currentTick-p.TickLower) / float64(p.TickUpper-p.TickLower)
		if frac < r.LowerFrac || frac > r.UpperFrac {
			return &p, *currentTick, nil
		}
	}
	return nil, 0, nil
}

func (r *RemoveLiquidity) ShouldStart(ctx context.Context, active []taskstore.Task) (bool, error) {
	p, _, err := r.candidate(ctx)
	if err != nil {
		return false, err
	}
	return p != nil, nil
}

func (r *RemoveLiquidity) Start(ctx context.Context, active []taskstore.Task, force bool) (*taskstore.Task, string, error) {
	p, _, err := r.candidate(ctx)
	if err != nil {
		return nil, "", err
	}
	if p == nil {
		if !force {
			return nil, "no position out of the middle band", nil
		}
		return nil, "no candidate position to remove", nil
	}

	now := time.Now().UnixMilli()
	task := &taskstore.Task{
		DefinitionName: r.Name(),
		StartedAt:      now,
		LastUpdatedAt:  now,
		Status:         taskstore.StatusPreStart,
		ResourcesTaken: r.LockResources(),
	}
	data := RemoveLiquidityTaskData{
		PoolKey:   p.PoolKey,
		TickLower: p.TickLower,
		TickUpper: p.TickUpper,
		Liquidity: p.Liquidity.String(),
	}
	if err := task.EncodeTaskData(data); err != nil {
		return nil, "", fmt.Errorf("removeliquidity %s: encode task data: %w", r.Name(), err)
	}
	return task, "", nil
}

func (r *RemoveLiquidity) Update(ctx context.Context, task *taskstore.Task) (*taskstore.Task, error) {
	var data RemoveLiquidityTaskData
	if err := task.DecodeTaskData(&data); err != nil {
		return nil, fmt.Errorf("removeliquidity %s: decode task data: %w", r.Name(), err)
	}

	if task.Status == taskstore.StatusPreStart {
		liquidity, ok := new(big.Int).SetString(data.Liquidity, 10)
		if !ok {
			return nil, fmt.Errorf("removeliquidity %s: corrupt liquidity %q", r.Name(), data.Liquidity)
		}
		hash, err := r.Adapter.SubmitWithdraw(ctx, chainadapter.WithdrawRequest{
			PoolKey:   data.PoolKey,
			TickLower: data.TickLower,
			TickUpper: data.TickUpper,
			Liquidity: liquidity,
		})
		if err != nil {
			return nil, fmt.Errorf("removeliquidity %s: submit withdraw: %w", r.Name(), err)
		}
		data.Hash = hash.Hex()
		if err := task.EncodeTaskData(data); err != nil {
			return nil, fmt.Errorf("removeliquidity %s: encode task data: %w", r.Name(), err)
		}
		task.Status = taskstore.StatusRunning
		task.LastUpdatedAt = time.Now().UnixMilli()
		return task, nil
	}

	return txlifecycle.Advance(ctx, r.Adapter, task, data.Hash, task.StartedAt, time.Now(), func(rec *chainadapter.Receipt) string {
		return fmt.Sprintf("removed liquidity from %s", data.PoolKey.Address.Hex())
	}), nil
}

func (r *RemoveLiquidity) Stop(ctx context.Context, task *taskstore.Task) error { return nil }
