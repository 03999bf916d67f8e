package actions

import (
	"context"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"crossliquid/internal/chainadapter"
)

// sqrtPriceX96FromPrice builds a sqrtPriceX96 fixed-point value for a given
// token1/token0 price, used only to construct test fixtures.
func sqrtPriceX96FromPrice(price float64) *big.Int {
	sqrtP := math.Sqrt(price)
	q96 := new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))
	scaled := new(big.Float).SetPrec(200).Mul(big.NewFloat(sqrtP), q96)
	result, _ := scaled.Int(nil)
	return result
}

// fakeAdapter is a configurable chainadapter.Adapter stand-in shared by
// this package's tests. Only the methods each test actually exercises are
// given real behavior; the rest return zero values.
type fakeAdapter struct {
	chainID int64

	slot0          map[common.Address]chainadapter.Slot0
	erc20Balances  map[common.Address]*big.Int // keyed by token address
	vaultBalance   *big.Int
	positions      []chainadapter.Position
	swapQuote      chainadapter.SwapQuote
	crossQuote     chainadapter.CrossChainQuote
	receipt        *chainadapter.Receipt
	submittedCount int
}

func (f *fakeAdapter) ChainID() int64 { return f.chainID }

func (f *fakeAdapter) CurrentTick(ctx context.Context, poolKey chainadapter.PoolKey) (*int32, error) {
	s, ok := f.slot0[poolKey.Address]
	if !ok {
		return nil, nil
	}
	tick := s.Tick
	return &tick, nil
}

func (f *fakeAdapter) Slot0(ctx context.Context, poolKey chainadapter.PoolKey) (chainadapter.Slot0, error) {
	return f.slot0[poolKey.Address], nil
}

func (f *fakeAdapter) Liquidity(ctx context.Context, poolKey chainadapter.PoolKey) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeAdapter) FeeGrowthGlobals(ctx context.Context, poolKey chainadapter.PoolKey) (*big.Int, *big.Int, error) {
	return big.NewInt(0), big.NewInt(0), nil
}

func (f *fakeAdapter) BalanceNative(ctx context.Context, addr common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeAdapter) BalanceERC20(ctx context.Context, token, addr common.Address) (*big.Int, error) {
	if b, ok := f.erc20Balances[token]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeAdapter) VaultBalance(ctx context.Context) (*big.Int, error) {
	if f.vaultBalance == nil {
		return big.NewInt(0), nil
	}
	return f.vaultBalance, nil
}

func (f *fakeAdapter) PositionsOfManager(ctx context.Context) ([]chainadapter.Position, error) {
	return f.positions, nil
}

func (f *fakeAdapter) SubmitDeposit(ctx context.Context, req chainadapter.DepositRequest) (common.Hash, error) {
	f.submittedCount++
	return common.HexToHash("0x01"), nil
}

func (f *fakeAdapter) SubmitWithdraw(ctx context.Context, req chainadapter.WithdrawRequest) (common.Hash, error) {
	f.submittedCount++
	return common.HexToHash("0x02"), nil
}

func (f *fakeAdapter) SubmitSwap(ctx context.Context, req chainadapter.SwapRequest) (common.Hash, error) {
	f.submittedCount++
	return common.HexToHash("0x03"), nil
}

func (f *fakeAdapter) SubmitBridge(ctx context.Context, req chainadapter.BridgeRequest) (common.Hash, error) {
	f.submittedCount++
	return common.HexToHash("0x04"), nil
}

func (f *fakeAdapter) GetReceipt(ctx context.Context, hash common.Hash) (*chainadapter.Receipt, error) {
	return f.receipt, nil
}

func (f *fakeAdapter) QuoteSwap(ctx context.Context, req chainadapter.SwapQuoteRequest) (chainadapter.SwapQuote, error) {
	return f.swapQuote, nil
}

func (f *fakeAdapter) QuoteCrossChain(ctx context.Context, req chainadapter.CrossChainQuoteRequest) (chainadapter.CrossChainQuote, error) {
	return f.crossQuote, nil
}
