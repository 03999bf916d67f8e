package stats

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"crossliquid/internal/chainadapter"
	"crossliquid/internal/timeseries"
)

// memTimeseriesStore is a minimal in-memory timeseries.Store for collector
// tests.
type memTimeseriesStore struct {
	mu     sync.Mutex
	prices []timeseries.PoolObservation
	rates  []timeseries.ExchangeRateSample
}

func (m *memTimeseriesStore) InsertPoolPrice(ctx context.Context, obs timeseries.PoolObservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices = append(m.prices, obs)
	return nil
}

func (m *memTimeseriesStore) InsertExchangeRate(ctx context.Context, rate timeseries.ExchangeRateSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates = append(m.rates, rate)
	return nil
}

func (m *memTimeseriesStore) GetPoolPricesForChain(ctx context.Context, chainID int64, minTs time.Time, maxTs *time.Time) ([]timeseries.PoolObservation, error) {
	return nil, nil
}

func (m *memTimeseriesStore) GetRecentPoolPrices(ctx context.Context, limit int) ([]timeseries.PoolObservation, error) {
	return nil, nil
}

func (m *memTimeseriesStore) GetRecentRates(ctx context.Context, chainID *int64, limit int) ([]timeseries.ExchangeRateSample, error) {
	return nil, nil
}

// fakeStatsAdapter is a minimal chainadapter.Adapter stand-in exercising
// only the read paths the Stats Collector calls.
type fakeStatsAdapter struct {
	chainID   int64
	slot0     chainadapter.Slot0
	liquidity *big.Int
	g0, g1    *big.Int
	swapQuote chainadapter.SwapQuote
	failSlot0 bool
}

func (f *fakeStatsAdapter) ChainID() int64 { return f.chainID }
func (f *fakeStatsAdapter) CurrentTick(ctx context.Context, poolKey chainadapter.PoolKey) (*int32, error) {
	return nil, nil
}
func (f *fakeStatsAdapter) Slot0(ctx context.Context, poolKey chainadapter.PoolKey) (chainadapter.Slot0, error) {
	if f.failSlot0 {
		return chainadapter.Slot0{}, errors.New("rpc down")
	}
	return f.slot0, nil
}
func (f *fakeStatsAdapter) Liquidity(ctx context.Context, poolKey chainadapter.PoolKey) (*big.Int, error) {
	return f.liquidity, nil
}
func (f *fakeStatsAdapter) FeeGrowthGlobals(ctx context.Context, poolKey chainadapter.PoolKey) (*big.Int, *big.Int, error) {
	return f.g0, f.g1, nil
}
func (f *fakeStatsAdapter) BalanceNative(ctx context.Context, addr common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (f *fakeStatsAdapter) BalanceERC20(ctx context.Context, token, addr common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (f *fakeStatsAdapter) VaultBalance(ctx context.Context) (*big.Int, error) { return big.NewInt(0), nil }
func (f *fakeStatsAdapter) PositionsOfManager(ctx context.Context) ([]chainadapter.Position, error) {
	return nil, nil
}
func (f *fakeStatsAdapter) SubmitDeposit(ctx context.Context, req chainadapter.DepositRequest) (common.Hash, error) {
	return common.Hash{}, nil
}
func (f *fakeStatsAdapter) SubmitWithdraw(ctx context.Context, req chainadapter.WithdrawRequest) (common.Hash, error) {
	return common.Hash{}, nil
}
func (f *fakeStatsAdapter) SubmitSwap(ctx context.Context, req chainadapter.SwapRequest) (common.Hash, error) {
	return common.Hash{}, nil
}
func (f *fakeStatsAdapter) SubmitBridge(ctx context.Context, req chainadapter.BridgeRequest) (common.Hash, error) {
	return common.Hash{}, nil
}
func (f *fakeStatsAdapter) GetReceipt(ctx context.Context, hash common.Hash) (*chainadapter.Receipt, error) {
	return nil, nil
}
func (f *fakeStatsAdapter) QuoteSwap(ctx context.Context, req chainadapter.SwapQuoteRequest) (chainadapter.SwapQuote, error) {
	return f.swapQuote, nil
}
func (f *fakeStatsAdapter) QuoteCrossChain(ctx context.Context, req chainadapter.CrossChainQuoteRequest) (chainadapter.CrossChainQuote, error) {
	return chainadapter.CrossChainQuote{}, nil
}

func TestTickAppendsOneObservationPerChain(t *testing.T) {
	store := &memTimeseriesStore{}
	pool := chainadapter.PoolKey{Address: common.HexToAddress("0x1111111111111111111111111111111111111111")}
	a := &fakeStatsAdapter{chainID: 8453, slot0: chainadapter.Slot0{SqrtPriceX96: big.NewInt(100), Tick: 5}, liquidity: big.NewInt(1000), g0: big.NewInt(1), g1: big.NewInt(2)}
	b := &fakeStatsAdapter{chainID: 10, slot0: chainadapter.Slot0{SqrtPriceX96: big.NewInt(200), Tick: -5}, liquidity: big.NewInt(2000), g0: big.NewInt(3), g1: big.NewInt(4)}

	c := &Collector{Store: store, Sources: []ChainSource{
		{Adapter: a, PoolKey: pool},
		{Adapter: b, PoolKey: pool},
	}}
	c.Tick(context.Background())

	require.Len(t, store.prices, 2)
	require.Equal(t, int64(8453), store.prices[0].ChainID)
	require.Equal(t, int64(10), store.prices[1].ChainID)
}

func TestTickIsolatesPerChainFailure(t *testing.T) {
	store := &memTimeseriesStore{}
	pool := chainadapter.PoolKey{Address: common.HexToAddress("0x1111111111111111111111111111111111111111")}
	failing := &fakeStatsAdapter{chainID: 8453, failSlot0: true}
	healthy := &fakeStatsAdapter{chainID: 10, slot0: chainadapter.Slot0{SqrtPriceX96: big.NewInt(200)}, liquidity: big.NewInt(1), g0: big.NewInt(1), g1: big.NewInt(1)}

	c := &Collector{Store: store, Sources: []ChainSource{
		{Adapter: failing, PoolKey: pool},
		{Adapter: healthy, PoolKey: pool},
	}}
	c.Tick(context.Background())

	require.Len(t, store.prices, 1, "the failing chain must not block the healthy chain's observation")
	require.Equal(t, int64(10), store.prices[0].ChainID)
}

func TestTickSkipsOverlappingRun(t *testing.T) {
	store := &memTimeseriesStore{}
	c := &Collector{Store: store}
	c.running.Store(true)

	c.Tick(context.Background())
	require.Empty(t, store.prices)
}

func TestTickCollectsExchangeRateProbeWhenConfigured(t *testing.T) {
	store := &memTimeseriesStore{}
	pool := chainadapter.PoolKey{Address: common.HexToAddress("0x1111111111111111111111111111111111111111")}
	amount := "1000000"
	a := &fakeStatsAdapter{
		chainID:   8453,
		slot0:     chainadapter.Slot0{SqrtPriceX96: big.NewInt(100)},
		liquidity: big.NewInt(1),
		g0:        big.NewInt(1),
		g1:        big.NewInt(1),
		swapQuote: chainadapter.SwapQuote{AmountOut: big.NewInt(999)},
	}

	c := &Collector{Store: store, Sources: []ChainSource{
		{Adapter: a, PoolKey: pool, ProbeFor: ExchangeRateProbe{ZeroForOne: true, AmountIn: &amount}},
	}}
	c.Tick(context.Background())

	require.Len(t, store.rates, 1)
	require.Equal(t, "999", store.rates[0].UsdcOutput)
}
