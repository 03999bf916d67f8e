package chainadapter

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"crossliquid/internal/retry"
)

// ContractClient wraps one deployed contract's ABI and address over one
// ethclient connection. Its shape — `NewContractClient(client, chainID,
// addr, abi)`, `.Call`, `.Send`, `.Abi()` — is recovered from a contract-client
// test fixture whose implementation was never checked in anywhere; the
// test file is the only surviving record of the intended behavior.
//
// This package (ContractClient, plus EthAdapter.QuoteSwap's own packing
// of quote calldata) is the ONLY place in the repo that packs or unpacks
// ABI calldata, satisfying §6.2's "the core never reaches into ABI encoders directly".
type ContractClient struct {
	client  *ethclient.Client
	address common.Address
	abi     abi.ABI
	chainID *big.Int
}

// NewContractClient builds a client bound to one contract address.
func NewContractClient(client *ethclient.Client, chainID *big.Int, addr common.Address, contractABI abi.ABI) *ContractClient {
	return &ContractClient{client: client, address: addr, abi: contractABI, chainID: chainID}
}

// ContractAddress returns the bound contract address.
func (c *ContractClient) ContractAddress() common.Address {
	return c.address
}

// Abi exposes the underlying parsed ABI. Nothing in the repo calls it;
// receipt events reach callers already decoded by ParseReceipt.
func (c *ContractClient) Abi() abi.ABI {
	return c.abi
}

// Call performs a read-only contract call, wrapped through the RPC
// Retryer (§4.1/§6.2's read<T> operation).
func (c *ContractClient) Call(ctx context.Context, caller *common.Address, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	var from common.Address
	if caller != nil {
		from = *caller
	}
	msg := ethereum.CallMsg{From: from, To: &c.address, Data: data}

	label := fmt.Sprintf("call:%s:%s", c.address.Hex(), method)
	out, err := retry.Do(ctx, label, func(ctx context.Context) ([]byte, error) {
		return c.client.CallContract(ctx, msg, nil)
	})
	if err != nil {
		return nil, err
	}

	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// Send signs and submits a state-changing transaction, returning its hash
// once accepted by the node (not once mined — that is the Transaction
// Lifecycle Helper's job).
func (c *ContractClient) Send(ctx context.Context, gasLimit *uint64, from *common.Address, pk *ecdsa.PrivateKey, method string, args ...any) (common.Hash, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s: %w", method, err)
	}

	nonce, err := retry.Do(ctx, "pendingNonce", func(ctx context.Context) (uint64, error) {
		return c.client.PendingNonceAt(ctx, *from)
	})
	if err != nil {
		return common.Hash{}, err
	}

	gasPrice, err := retry.Do(ctx, "suggestGasPrice", func(ctx context.Context) (*big.Int, error) {
		return c.client.SuggestGasPrice(ctx)
	})
	if err != nil {
		return common.Hash{}, err
	}

	limit := uint64(500_000)
	if gasLimit != nil {
		limit = *gasLimit
	} else {
		estimated, err := retry.Do(ctx, "estimateGas", func(ctx context.Context) (uint64, error) {
			return c.client.EstimateGas(ctx, ethereum.CallMsg{From: *from, To: &c.address, Data: data})
		})
		if err == nil {
			limit = estimated
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.address,
		Value:    big.NewInt(0),
		Gas:      limit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), pk)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}

	if err := retry.Do(ctx, "sendTx", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.client.SendTransaction(ctx, signed)
	}); err != nil {
		return common.Hash{}, err
	}

	return signed.Hash(), nil
}

// ParseReceipt decodes every log in receipt that matches this contract's
// ABI into event name/argument maps; AddLiquidity's success message
// renders the decoded deposit event from these.
func (c *ContractClient) ParseReceipt(receipt *types.Receipt) ([]DecodedEvent, error) {
	var events []DecodedEvent
	for _, l := range receipt.Logs {
		if len(l.Topics) == 0 {
			continue
		}
		ev, err := c.abi.EventByID(l.Topics[0])
		if err != nil {
			continue // not one of ours
		}
		args := make(map[string]any)
		if len(l.Data) > 0 {
			if err := c.abi.UnpackIntoMap(args, ev.Name, l.Data); err != nil {
				continue
			}
		}
		events = append(events, DecodedEvent{Name: ev.Name, Args: args})
	}
	return events, nil
}

// DecodedEvent is one ABI-decoded log entry from a transaction receipt.
type DecodedEvent struct {
	Name string
	Args map[string]any
}

// SenderAddress recovers the public address that signs for pk. Used by
// callers that only hold a key and need the "from" address for Call/Send.
func SenderAddress(pk *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(pk.PublicKey)
}
