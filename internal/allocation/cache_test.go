package allocation

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"crossliquid/internal/chainadapter"
	"crossliquid/internal/metrics"
	"crossliquid/internal/timeseries"
)

// emptyTimeseriesStore always reports no observations, so metrics.Compute
// degenerates to zero-valued windows without needing a real database.
type emptyTimeseriesStore struct{}

func (emptyTimeseriesStore) InsertPoolPrice(ctx context.Context, obs timeseries.PoolObservation) error {
	return nil
}
func (emptyTimeseriesStore) InsertExchangeRate(ctx context.Context, rate timeseries.ExchangeRateSample) error {
	return nil
}
func (emptyTimeseriesStore) GetPoolPricesForChain(ctx context.Context, chainID int64, minTs time.Time, maxTs *time.Time) ([]timeseries.PoolObservation, error) {
	return nil, nil
}
func (emptyTimeseriesStore) GetRecentPoolPrices(ctx context.Context, limit int) ([]timeseries.PoolObservation, error) {
	return nil, nil
}
func (emptyTimeseriesStore) GetRecentRates(ctx context.Context, chainID *int64, limit int) ([]timeseries.ExchangeRateSample, error) {
	return nil, nil
}

type fakeCacheAdapter struct {
	chainID      int64
	slot0        chainadapter.Slot0
	balances     map[common.Address]*big.Int
	vaultBalance *big.Int
}

func (f *fakeCacheAdapter) ChainID() int64 { return f.chainID }
func (f *fakeCacheAdapter) CurrentTick(ctx context.Context, poolKey chainadapter.PoolKey) (*int32, error) {
	return nil, nil
}
func (f *fakeCacheAdapter) Slot0(ctx context.Context, poolKey chainadapter.PoolKey) (chainadapter.Slot0, error) {
	return f.slot0, nil
}
func (f *fakeCacheAdapter) Liquidity(ctx context.Context, poolKey chainadapter.PoolKey) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (f *fakeCacheAdapter) FeeGrowthGlobals(ctx context.Context, poolKey chainadapter.PoolKey) (*big.Int, *big.Int, error) {
	return big.NewInt(0), big.NewInt(0), nil
}
func (f *fakeCacheAdapter) BalanceNative(ctx context.Context, addr common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (f *fakeCacheAdapter) BalanceERC20(ctx context.Context, token, addr common.Address) (*big.Int, error) {
	if b, ok := f.balances[token]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}
func (f *fakeCacheAdapter) VaultBalance(ctx context.Context) (*big.Int, error) {
	if f.vaultBalance == nil {
		return big.NewInt(0), nil
	}
	return f.vaultBalance, nil
}
func (f *fakeCacheAdapter) PositionsOfManager(ctx context.Context) ([]chainadapter.Position, error) {
	return nil, nil
}
func (f *fakeCacheAdapter) SubmitDeposit(ctx context.Context, req chainadapter.DepositRequest) (common.Hash, error) {
	return common.Hash{}, nil
}
func (f *fakeCacheAdapter) SubmitWithdraw(ctx context.Context, req chainadapter.WithdrawRequest) (common.Hash, error) {
	return common.Hash{}, nil
}
func (f *fakeCacheAdapter) SubmitSwap(ctx context.Context, req chainadapter.SwapRequest) (common.Hash, error) {
	return common.Hash{}, nil
}
func (f *fakeCacheAdapter) SubmitBridge(ctx context.Context, req chainadapter.BridgeRequest) (common.Hash, error) {
	return common.Hash{}, nil
}
func (f *fakeCacheAdapter) GetReceipt(ctx context.Context, hash common.Hash) (*chainadapter.Receipt, error) {
	return nil, nil
}
func (f *fakeCacheAdapter) QuoteSwap(ctx context.Context, req chainadapter.SwapQuoteRequest) (chainadapter.SwapQuote, error) {
	return chainadapter.SwapQuote{}, nil
}
func (f *fakeCacheAdapter) QuoteCrossChain(ctx context.Context, req chainadapter.CrossChainQuoteRequest) (chainadapter.CrossChainQuote, error) {
	return chainadapter.CrossChainQuote{}, nil
}

func TestRefreshComputesCurrentAllocationProportionalToUsd(t *testing.T) {
	token0 := common.HexToAddress("0x1111111111111111111111111111111111111111")
	token1 := common.HexToAddress("0x2222222222222222222222222222222222222222")
	manager := common.HexToAddress("0x3333333333333333333333333333333333333333")
	poolKey := chainadapter.PoolKey{Token0: token0, Token1: token1}

	heavy := &fakeCacheAdapter{chainID: 8453, slot0: chainadapter.Slot0{SqrtPriceX96: big.NewInt(0).Lsh(big.NewInt(1), 96)}, balances: map[common.Address]*big.Int{token1: big.NewInt(900)}}
	light := &fakeCacheAdapter{chainID: 10, slot0: chainadapter.Slot0{SqrtPriceX96: big.NewInt(0).Lsh(big.NewInt(1), 96)}, balances: map[common.Address]*big.Int{token1: big.NewInt(100)}}

	cache := &Cache{
		Metrics:   metrics.NewEngine(emptyTimeseriesStore{}),
		GasScores: map[int64]float64{8453: 9.0, 10: 8.5},
		Excluded:  map[int64]bool{},
		Sources: []ChainSource{
			{ChainID: 8453, Adapter: heavy, PoolKey: poolKey, ManagerAddress: manager},
			{ChainID: 10, Adapter: light, PoolKey: poolKey, ManagerAddress: manager},
		},
	}

	cache.Refresh(context.Background(), time.Now())

	c8453, err := cache.CurrentAllocationPct(context.Background(), 8453)
	require.NoError(t, err)
	c10, err := cache.CurrentAllocationPct(context.Background(), 10)
	require.NoError(t, err)

	require.InDelta(t, 90.0, c8453, 0.1)
	require.InDelta(t, 10.0, c10, 0.1)
}

func TestRefreshTargetSumsToHundred(t *testing.T) {
	token1 := common.HexToAddress("0x2222222222222222222222222222222222222222")
	manager := common.HexToAddress("0x3333333333333333333333333333333333333333")
	poolKey := chainadapter.PoolKey{Token1: token1}

	a := &fakeCacheAdapter{chainID: 8453, balances: map[common.Address]*big.Int{token1: big.NewInt(100)}}
	b := &fakeCacheAdapter{chainID: 10, balances: map[common.Address]*big.Int{token1: big.NewInt(100)}}

	cache := &Cache{
		Metrics:   metrics.NewEngine(emptyTimeseriesStore{}),
		GasScores: map[int64]float64{8453: 9.0, 10: 8.5},
		Excluded:  map[int64]bool{},
		Sources: []ChainSource{
			{ChainID: 8453, Adapter: a, PoolKey: poolKey, ManagerAddress: manager},
			{ChainID: 10, Adapter: b, PoolKey: poolKey, ManagerAddress: manager},
		},
	}
	cache.Refresh(context.Background(), time.Now())

	t8453, _ := cache.TargetAllocationPct(context.Background(), 8453)
	t10, _ := cache.TargetAllocationPct(context.Background(), 10)
	require.InDelta(t, 100.0, t8453+t10, 1e-6)
}
