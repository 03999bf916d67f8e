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

func testPoolKey() chainadapter.PoolKey {
	return chainadapter.PoolKey{
		ChainID:     8453,
		Address:     common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Token0:      common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Token1:      common.HexToAddress("0x3333333333333333333333333333333333333333"),
		TickSpacing: 60,
	}
}

func TestAddLiquidityShouldStartGates(t *testing.T) {
	poolKey := testPoolKey()
	adapter := &fakeAdapter{
		chainID: 8453,
		slot0:   map[common.Address]chainadapter.Slot0{poolKey.Address: {SqrtPriceX96: sqrtPriceX96FromPrice(1), Tick: 120}},
		erc20Balances: map[common.Address]*big.Int{
			poolKey.Token0: big.NewInt(15),
			poolKey.Token1: big.NewInt(15),
		},
	}
	def := &AddLiquidity{
		ChainID:           8453,
		Adapter:           adapter,
		PoolKey:           poolKey,
		RangeWidth:        5,
		SlippagePct:       1,
		MinBothSideUsd:    10,
		MaxImbalanceRatio: 2.0,
		MaxTickDivergence: 200,
	}

	ok, err := def.ShouldStart(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAddLiquidityShouldStartFalseBelowMinValue(t *testing.T) {
	poolKey := testPoolKey()
	adapter := &fakeAdapter{
		chainID: 8453,
		slot0:   map[common.Address]chainadapter.Slot0{poolKey.Address: {SqrtPriceX96: sqrtPriceX96FromPrice(1), Tick: 120}},
		erc20Balances: map[common.Address]*big.Int{
			poolKey.Token0: big.NewInt(3),
			poolKey.Token1: big.NewInt(3),
		},
	}
	def := &AddLiquidity{
		ChainID: 8453, Adapter: adapter, PoolKey: poolKey,
		RangeWidth: 5, MinBothSideUsd: 10, MaxImbalanceRatio: 2.0,
	}

	ok, err := def.ShouldStart(context.Background(), nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAddLiquidityStartComputesTickBounds(t *testing.T) {
	poolKey := testPoolKey()
	adapter := &fakeAdapter{
		chainID: 8453,
		slot0:   map[common.Address]chainadapter.Slot0{poolKey.Address: {SqrtPriceX96: sqrtPriceX96FromPrice(1), Tick: 120}},
		erc20Balances: map[common.Address]*big.Int{
			poolKey.Token0: big.NewInt(15),
			poolKey.Token1: big.NewInt(15),
		},
	}
	def := &AddLiquidity{
		ChainID: 8453, Adapter: adapter, PoolKey: poolKey,
		RangeWidth: 5, SlippagePct: 1, MinBothSideUsd: 10, MaxImbalanceRatio: 2.0, MaxTickDivergence: 200,
	}

	task, reason, err := def.Start(context.Background(), nil, false)
	require.NoError(t, err)
	require.Empty(t, reason)
	require.Equal(t, taskstore.StatusPreStart, task.Status)

	var data AddLiquidityTaskData
	require.NoError(t, task.DecodeTaskData(&data))
	require.Equal(t, int32(-180), data.TickLower)
	require.Equal(t, int32(420), data.TickUpper)
}

func TestAddLiquidityStartDeclinesOnTickDivergence(t *testing.T) {
	poolKey := testPoolKey()
	queryKey := testPoolKey()
	queryKey.Address = common.HexToAddress("0x4444444444444444444444444444444444444444")

	adapter := &fakeAdapter{
		chainID: 8453,
		slot0: map[common.Address]chainadapter.Slot0{
			poolKey.Address:  {SqrtPriceX96: sqrtPriceX96FromPrice(1), Tick: 120},
			queryKey.Address: {SqrtPriceX96: sqrtPriceX96FromPrice(1), Tick: 1000},
		},
		erc20Balances: map[common.Address]*big.Int{
			poolKey.Token0: big.NewInt(15),
			poolKey.Token1: big.NewInt(15),
		},
	}
	def := &AddLiquidity{
		ChainID: 8453, Adapter: adapter, PoolKey: poolKey, QueryPoolKey: &queryKey,
		RangeWidth: 5, MinBothSideUsd: 10, MaxImbalanceRatio: 2.0, MaxTickDivergence: 200,
	}

	task, reason, err := def.Start(context.Background(), nil, true)
	require.NoError(t, err)
	require.Nil(t, task)
	require.Contains(t, reason, "too far")
}

func TestAddLiquidityUpdateSubmitsDeposit(t *testing.T) {
	poolKey := testPoolKey()
	adapter := &fakeAdapter{
		chainID: 8453,
		slot0:   map[common.Address]chainadapter.Slot0{poolKey.Address: {SqrtPriceX96: sqrtPriceX96FromPrice(1), Tick: 120}},
		erc20Balances: map[common.Address]*big.Int{
			poolKey.Token0: big.NewInt(15),
			poolKey.Token1: big.NewInt(15),
		},
	}
	def := &AddLiquidity{
		ChainID: 8453, Adapter: adapter, PoolKey: poolKey,
		RangeWidth: 5, SlippagePct: 1, MinBothSideUsd: 10, MaxImbalanceRatio: 2.0, MaxTickDivergence: 200,
	}

	task, _, err := def.Start(context.Background(), nil, false)
	require.NoError(t, err)

	task, err = def.Update(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, taskstore.StatusRunning, task.Status)
	require.Equal(t, 1, adapter.submittedCount)
}
