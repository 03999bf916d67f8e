package actions

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"crossliquid/internal/chainadapter"
	"crossliquid/internal/taskstore"
)

func TestRemoveLiquidityShouldStartOutOfBand(t *testing.T) {
	poolKey := testPoolKey()
	// Range [-300, 300]; currentTick 290 sits at (290-(-300))/600 = 0.983, outside [0.15, 0.85].
	position := chainadapter.Position{PoolKey: poolKey, TickLower: -300, TickUpper: 300, Liquidity: big.NewInt(100)}
	adapter := &fakeAdapter{
		chainID:   8453,
		slot0:     map[common.Address]chainadapter.Slot0{poolKey.Address: {Tick: 290}},
		positions: []chainadapter.Position{position},
	}
	def := &RemoveLiquidity{ChainID: 8453, Adapter: adapter, LowerFrac: 0.15, UpperFrac: 0.85}

	ok, err := def.ShouldStart(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRemoveLiquidityShouldStartFalseInBand(t *testing.T) {
	poolKey := testPoolKey()
	// currentTick 0 -> frac = (0-(-300))/600 = 0.5, well inside the band.
	position := chainadapter.Position{PoolKey: poolKey, TickLower: -300, TickUpper: 300, Liquidity: big.NewInt(100)}
	adapter := &fakeAdapter{
		chainID:   8453,
		slot0:     map[common.Address]chainadapter.Slot0{poolKey.Address: {Tick: 0}},
		positions: []chainadapter.Position{position},
	}
	def := &RemoveLiquidity{ChainID: 8453, Adapter: adapter, LowerFrac: 0.15, UpperFrac: 0.85}

	ok, err := def.ShouldStart(context.Background(), nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRemoveLiquidityIgnoresZeroLiquidityPositions(t *testing.T) {
	poolKey := testPoolKey()
	position := chainadapter.Position{PoolKey: poolKey, TickLower: -300, TickUpper: 300, Liquidity: big.NewInt(0)}
	adapter := &fakeAdapter{
		chainID:   8453,
		slot0:     map[common.Address]chainadapter.Slot0{poolKey.Address: {Tick: 290}},
		positions: []chainadapter.Position{position},
	}
	def := &RemoveLiquidity{ChainID: 8453, Adapter: adapter, LowerFrac: 0.15, UpperFrac: 0.85}

	ok, err := def.ShouldStart(context.Background(), nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRemoveLiquidityStartAndUpdate(t *testing.T) {
	poolKey := testPoolKey()
	position := chainadapter.Position{PoolKey: poolKey, TickLower: -300, TickUpper: 300, Liquidity: big.NewInt(100)}
	adapter := &fakeAdapter{
		chainID:   8453,
		slot0:     map[common.Address]chainadapter.Slot0{poolKey.Address: {Tick: 290}},
		positions: []chainadapter.Position{position},
	}
	def := &RemoveLiquidity{ChainID: 8453, Adapter: adapter, LowerFrac: 0.15, UpperFrac: 0.85}

	task, reason, err := def.Start(context.Background(), nil, false)
	require.NoError(t, err)
	require.Empty(t, reason)

	var data RemoveLiquidityTaskData
	require.NoError(t, task.DecodeTaskData(&data))
	require.Equal(t, "100", data.Liquidity)

	task, err = def.Update(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, taskstore.StatusRunning, task.Status)
	require.Equal(t, 1, adapter.submittedCount)
}
