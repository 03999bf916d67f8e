// Package chainadapter is the concrete, in-repo stand-in for the
// externally-specified Chain Adapter (§6.2): one ethclient.Client and one
// ContractClient per known contract, per chain — the same per-contract
// client map shape generalized from one chain to many.
package chainadapter

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"crossliquid/internal/retry"
)

// Adapter is the interface consumed by the core, per §6.2. It never
// exposes raw ABI types: every method returns a plain Go value the rest of
// the core can work with directly.
type Adapter interface {
	ChainID() int64

	CurrentTick(ctx context.Context, poolKey PoolKey) (*int32, error)
	Slot0(ctx context.Context, poolKey PoolKey) (Slot0, error)
	Liquidity(ctx context.Context, poolKey PoolKey) (*big.Int, error)
	FeeGrowthGlobals(ctx context.Context, poolKey PoolKey) (g0, g1 *big.Int, err error)

	BalanceNative(ctx context.Context, addr common.Address) (*big.Int, error)
	BalanceERC20(ctx context.Context, token, addr common.Address) (*big.Int, error)
	VaultBalance(ctx context.Context) (*big.Int, error)
	PositionsOfManager(ctx context.Context) ([]Position, error)

	SubmitDeposit(ctx context.Context, req DepositRequest) (common.Hash, error)
	SubmitWithdraw(ctx context.Context, req WithdrawRequest) (common.Hash, error)
	SubmitSwap(ctx context.Context, req SwapRequest) (common.Hash, error)
	SubmitBridge(ctx context.Context, req BridgeRequest) (common.Hash, error)

	// GetReceipt returns (nil, nil) when the transaction is not yet mined
	// ("pending" in §6.2's terms) and (receipt, nil) once mined. EthAdapter
	// also reports a failed receipt fetch as (nil, nil); txlifecycle.Advance
	// treats a non-nil error the same way as pending.
	GetReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)

	QuoteSwap(ctx context.Context, req SwapQuoteRequest) (SwapQuote, error)
	QuoteCrossChain(ctx context.Context, req CrossChainQuoteRequest) (CrossChainQuote, error)
}

// EthAdapter is the go-ethereum-backed Adapter implementation for one
// chain. It holds one ContractClient per known contract address.
type EthAdapter struct {
	chainID    int64
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	myAddr     common.Address

	manager   *ContractClient // pool-manager entrypoint (deposit/withdraw/swap)
	router    *ContractClient // universal-router entrypoint (generic/bridge calls); nil falls back to manager
	stateView *ContractClient // read-only pool state
	quoter    *ContractClient // swap/bridge quote source
	vault     *ContractClient // vault contract (parent chain only)
	tokens    map[common.Address]*ContractClient
}

// SetRouter attaches the universal-router contract client used by
// SubmitBridge. Left unset, SubmitBridge falls back to the pool-manager
// client, its single default entrypoint.
func (a *EthAdapter) SetRouter(router *ContractClient) {
	a.router = router
}

// NewEthAdapter wires one EthAdapter from its already-constructed contract
// clients — config/wiring decisions (which ABI, which address) live in
// internal/config and cmd/agent, not here.
func NewEthAdapter(chainID int64, client *ethclient.Client, privateKey *ecdsa.PrivateKey, manager, stateView, quoter, vault *ContractClient, tokens map[common.Address]*ContractClient) *EthAdapter {
	return &EthAdapter{
		chainID:    chainID,
		client:     client,
		privateKey: privateKey,
		myAddr:     SenderAddress(privateKey),
		manager:    manager,
		stateView:  stateView,
		quoter:     quoter,
		vault:      vault,
		tokens:     tokens,
	}
}

func (a *EthAdapter) ChainID() int64 { return a.chainID }

func (a *EthAdapter) CurrentTick(ctx context.Context, poolKey PoolKey) (*int32, error) {
	slot0, err := a.Slot0(ctx, poolKey)
	if err != nil {
		return nil, err
	}
	tick := slot0.Tick
	return &tick, nil
}

func (a *EthAdapter) Slot0(ctx context.Context, poolKey PoolKey) (Slot0, error) {
	out, err := a.stateView.Call(ctx, nil, "getSlot0", poolKey.Address)
	if err != nil {
		return Slot0{}, fmt.Errorf("slot0: %w", err)
	}
	if len(out) < 4 {
		return Slot0{}, fmt.Errorf("slot0: unexpected return shape (%d values)", len(out))
	}
	sqrtPriceX96, _ := out[0].(*big.Int)
	tick, _ := out[1].(*big.Int)
	protocolFee, _ := out[2].(*big.Int)
	lpFee, _ := out[3].(*big.Int)
	return Slot0{
		SqrtPriceX96: sqrtPriceX96,
		Tick:         int32(tick.Int64()),
		ProtocolFee:  uint32(protocolFee.Uint64()),
		LPFee:        uint32(lpFee.Uint64()),
	}, nil
}

func (a *EthAdapter) Liquidity(ctx context.Context, poolKey PoolKey) (*big.Int, error) {
	out, err := a.stateView.Call(ctx, nil, "getLiquidity", poolKey.Address)
	if err != nil {
		return nil, fmt.Errorf("liquidity: %w", err)
	}
	liquidity, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("liquidity: unexpected return type")
	}
	return liquidity, nil
}

func (a *EthAdapter) FeeGrowthGlobals(ctx context.Context, poolKey PoolKey) (*big.Int, *big.Int, error) {
	out, err := a.stateView.Call(ctx, nil, "getFeeGrowthGlobals", poolKey.Address)
	if err != nil {
		return nil, nil, fmt.Errorf("feeGrowthGlobals: %w", err)
	}
	if len(out) < 2 {
		return nil, nil, fmt.Errorf("feeGrowthGlobals: unexpected return shape")
	}
	g0, _ := out[0].(*big.Int)
	g1, _ := out[1].(*big.Int)
	return g0, g1, nil
}

func (a *EthAdapter) BalanceNative(ctx context.Context, addr common.Address) (*big.Int, error) {
	return retry.Do(ctx, "balanceNative", func(ctx context.Context) (*big.Int, error) {
		return a.client.BalanceAt(ctx, addr, nil)
	})
}

func (a *EthAdapter) BalanceERC20(ctx context.Context, token, addr common.Address) (*big.Int, error) {
	tokenClient, ok := a.tokens[token]
	if !ok {
		return nil, fmt.Errorf("balanceErc20: no client for token %s", token.Hex())
	}
	out, err := tokenClient.Call(ctx, &addr, "balanceOf", addr)
	if err != nil {
		return nil, fmt.Errorf("balanceErc20: %w", err)
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceErc20: unexpected return type")
	}
	return balance, nil
}

func (a *EthAdapter) VaultBalance(ctx context.Context) (*big.Int, error) {
	if a.vault == nil {
		return nil, fmt.Errorf("vaultBalance: no vault configured on chain %d", a.chainID)
	}
	out, err := a.vault.Call(ctx, &a.myAddr, "totalAssets")
	if err != nil {
		return nil, fmt.Errorf("vaultBalance: %w", err)
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("vaultBalance: unexpected return type")
	}
	return balance, nil
}

func (a *EthAdapter) PositionsOfManager(ctx context.Context) ([]Position, error) {
	out, err := a.manager.Call(ctx, &a.myAddr, "getPositions", a.myAddr)
	if err != nil {
		return nil, fmt.Errorf("positionsOfManager: %w", err)
	}
	raw, ok := out[0].([]struct {
		Pool      common.Address
		TickLower *big.Int
		TickUpper *big.Int
		Liquidity *big.Int
		TokenId   *big.Int
	})
	if !ok {
		return nil, fmt.Errorf("positionsOfManager: unexpected return shape")
	}
	positions := make([]Position, 0, len(raw))
	for _, p := range raw {
		positions = append(positions, Position{
			PoolKey:   PoolKey{ChainID: a.chainID, Address: p.Pool},
			TickLower: int32(p.TickLower.Int64()),
			TickUpper: int32(p.TickUpper.Int64()),
			Liquidity: p.Liquidity,
			TokenID:   p.TokenId,
		})
	}
	return positions, nil
}

func (a *EthAdapter) SubmitDeposit(ctx context.Context, req DepositRequest) (common.Hash, error) {
	return a.manager.Send(ctx, nil, &a.myAddr, a.privateKey, "deposit",
		req.PoolKey.Address, req.TickLower, req.TickUpper,
		req.Amount0Max, req.Amount1Max, req.Amount0Min, req.Amount1Min)
}

func (a *EthAdapter) SubmitWithdraw(ctx context.Context, req WithdrawRequest) (common.Hash, error) {
	if req.Liquidity != nil {
		return a.manager.Send(ctx, nil, &a.myAddr, a.privateKey, "withdraw",
			req.PoolKey.Address, req.TickLower, req.TickUpper, req.Liquidity)
	}
	if a.vault == nil {
		return common.Hash{}, fmt.Errorf("submitWithdraw: no vault configured on chain %d", a.chainID)
	}
	return a.vault.Send(ctx, nil, &a.myAddr, a.privateKey, "withdraw", req.Amount)
}

func (a *EthAdapter) SubmitSwap(ctx context.Context, req SwapRequest) (common.Hash, error) {
	return a.manager.Send(ctx, nil, &a.myAddr, a.privateKey, "swap",
		req.PoolKey.Address, req.ZeroForOne, req.AmountIn, req.MinAmountOut)
}

func (a *EthAdapter) SubmitBridge(ctx context.Context, req BridgeRequest) (common.Hash, error) {
	entrypoint := a.manager
	if a.router != nil {
		entrypoint = a.router
	}
	return entrypoint.Send(ctx, nil, &a.myAddr, a.privateKey, "genericCall",
		req.Token, req.Amount, req.Calldata, req.Value)
}

func (a *EthAdapter) GetReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	receipt, err := a.client.TransactionReceipt(ctx, hash)
	if err != nil {
		if err.Error() == "not found" {
			return nil, nil
		}
		return nil, nil // treat any fetch failure as "still pending" — the caller times out via startedAt, not this error
	}
	status := ReceiptReverted
	if receipt.Status == types.ReceiptStatusSuccessful {
		status = ReceiptSuccess
	}
	events, _ := a.manager.ParseReceipt(receipt)
	return &Receipt{Status: status, Events: events}, nil
}

func (a *EthAdapter) QuoteSwap(ctx context.Context, req SwapQuoteRequest) (SwapQuote, error) {
	out, err := a.quoter.Call(ctx, &a.myAddr, "quoteExactInputSingle", req.PoolKey.Address, req.ZeroForOne, req.AmountIn)
	if err != nil {
		return SwapQuote{}, fmt.Errorf("quoteSwap: %w", err)
	}
	amountOut, ok := out[0].(*big.Int)
	if !ok {
		return SwapQuote{}, fmt.Errorf("quoteSwap: unexpected return type")
	}
	calldata, err := a.manager.abi.Pack("swap", req.PoolKey.Address, req.ZeroForOne, req.AmountIn, amountOut)
	if err != nil {
		return SwapQuote{}, fmt.Errorf("quoteSwap: pack execution calldata: %w", err)
	}
	return SwapQuote{AmountOut: amountOut, Calldata: calldata}, nil
}

func (a *EthAdapter) QuoteCrossChain(ctx context.Context, req CrossChainQuoteRequest) (CrossChainQuote, error) {
	out, err := a.quoter.Call(ctx, &a.myAddr, "quoteBridge", req.ToChainID, req.Token, req.Amount)
	if err != nil {
		return CrossChainQuote{}, fmt.Errorf("quoteCrossChain: %w", err)
	}
	if len(out) < 3 {
		return CrossChainQuote{}, fmt.Errorf("quoteCrossChain: unexpected return shape")
	}
	minReceive, _ := out[0].(*big.Int)
	value, _ := out[1].(*big.Int)
	calldata, _ := out[2].([]byte)
	return CrossChainQuote{MinReceive: minReceive, Value: value, Calldata: calldata}, nil
}
