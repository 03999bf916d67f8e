package chainadapter

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PoolKey identifies one concentrated-liquidity pool on one chain, the
// generalization of a single hardcoded WAVAX/USDC pool constant to an
// arbitrary configured pool.
type PoolKey struct {
	ChainID     int64
	Address     common.Address
	Token0      common.Address
	Token1      common.Address
	TickSpacing int
}

// Slot0 is the pool's current price/tick/fee snapshot, per §6.2.
type Slot0 struct {
	SqrtPriceX96 *big.Int
	Tick         int32
	ProtocolFee  uint32
	LPFee        uint32
}

// Position is one tracked liquidity position of the manager contract.
type Position struct {
	PoolKey    PoolKey
	TickLower  int32
	TickUpper  int32
	Liquidity  *big.Int
	TokenID    *big.Int
}

// ReceiptStatus mirrors go-ethereum's receipt status values in a
// package-independent form.
type ReceiptStatus int

const (
	ReceiptReverted ReceiptStatus = 0
	ReceiptSuccess  ReceiptStatus = 1
)

// Receipt is the mined outcome of a submitted transaction.
type Receipt struct {
	Status ReceiptStatus
	Events []DecodedEvent
}

// DepositRequest captures the parameters for AddLiquidity's deposit call.
type DepositRequest struct {
	PoolKey      PoolKey
	TickLower    int32
	TickUpper    int32
	Amount0Max   *big.Int
	Amount1Max   *big.Int
	Amount0Min   *big.Int
	Amount1Min   *big.Int
}

// WithdrawRequest captures the parameters for RemoveLiquidity's withdrawal
// call and for VaultSync's vault-withdrawal call (PoolKey left zero for the
// vault case).
type WithdrawRequest struct {
	PoolKey   PoolKey
	TickLower int32
	TickUpper int32
	Liquidity *big.Int
	Amount    *big.Int // used for vault withdrawals, where there is no position
}

// SwapRequest captures the parameters for SwapForBalance's execution call.
type SwapRequest struct {
	PoolKey      PoolKey
	ZeroForOne   bool
	AmountIn     *big.Int
	MinAmountOut *big.Int
	NativeIn     bool
}

// BridgeRequest captures the parameters for CrossChainTransfer's submit
// call via the generic-call entrypoint (the router when one is configured,
// otherwise the manager).
type BridgeRequest struct {
	FromChainID int64
	ToChainID   int64
	Token       common.Address
	Amount      *big.Int
	Calldata    []byte
	Value       *big.Int
}

// SwapQuoteRequest/SwapQuote describe an off-chain routing-quote
// round-trip (§6.2 quoteSwap).
type SwapQuoteRequest struct {
	PoolKey    PoolKey
	ZeroForOne bool
	AmountIn   *big.Int
}

type SwapQuote struct {
	AmountOut *big.Int
	Calldata  []byte
}

// CrossChainQuoteRequest/CrossChainQuote describe a bridge-quote
// round-trip (§6.2 quoteCrossChain).
type CrossChainQuoteRequest struct {
	FromChainID int64
	ToChainID   int64
	Token       common.Address
	Amount      *big.Int
}

type CrossChainQuote struct {
	MinReceive *big.Int
	Value      *big.Int
	Calldata   []byte
}
