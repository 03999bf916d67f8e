package actions

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"crossliquid/internal/chainadapter"
	"crossliquid/internal/taskstore"
	"crossliquid/internal/txlifecycle"
)

// AllocationSource exposes the LOS allocator's current-vs-target view to
// CrossChainTransfer. Implemented by internal/allocation.Cache (refreshed
// by cmd/agent once per action loop tick from internal/los), kept as a small
// interface here so the action definition stays independently testable.
type AllocationSource interface {
	CurrentAllocationPct(ctx context.Context, chainID int64) (float64, error)
	TargetAllocationPct(ctx context.Context, chainID int64) (float64, error)
}

// CrossChainTransferTaskData is CrossChainTransfer's pre-start snapshot
// plus the shared submitted-transaction tail.
type CrossChainTransferTaskData struct {
	taskstore.TxTaskData
	Token    common.Address
	Amount   string
	Value    string
	Calldata []byte
}

// CrossChainTransfer bridges idle capital from an over-allocated chain to
// an under-allocated one, per the Open Question #2 resolution (rebalance
// threshold in percentage points) and §4.3.5. This is the one action with
// no single-chain precedent to generalize from; the submit shape follows
// the other actions' "quote, sanity-check, submit, tx-lifecycle" pattern.
type CrossChainTransfer struct {
	FromChainID    int64
	ToChainID      int64
	FromAdapter    chainadapter.Adapter
	ManagerAddress common.Address
	Token          common.Address

	Allocations       AllocationSource
	RebalanceThreshold float64 // percentage points (Open Question #2)
	TransferFraction   float64 // fraction of the bridge token's idle balance to move per trigger, default 0.25
}

func (c *CrossChainTransfer) Name() string {
	return fmt.Sprintf("cross-chain-transfer-%d-%d", c.FromChainID, c.ToChainID)
}

func (c *CrossChainTransfer) LockResources() []string {
	return []string{
		fmt.Sprintf("chain:%d:bridge", c.FromChainID),
		fmt.Sprintf("chain:%d:bridge", c.ToChainID),
	}
}

func (c *CrossChainTransfer) deltas(ctx context.Context) (fromDelta, toDelta float64, err error) {
	fromCurrent, err := c.Allocations.CurrentAllocationPct(ctx, c.FromChainID)
	if err != nil {
		return 0, 0, fmt.Errorf("crosschaintransfer %s: %w", c.Name(), err)
	}
	fromTarget, err := c.Allocations.TargetAllocationPct(ctx, c.FromChainID)
	if err != nil {
		return 0, 0, fmt.Errorf("crosschaintransfer %s: %w", c.Name(), err)
	}
	toCurrent, err := c.Allocations.CurrentAllocationPct(ctx, c.ToChainID)
	if err != nil {
		return 0, 0, fmt.Errorf("crosschaintransfer %s: %w", c.Name(), err)
	}
	toTarget, err := c.Allocations.TargetAllocationPct(ctx, c.ToChainID)
	if err != nil {
		return 0, 0, fmt.Errorf("crosschaintransfer %s: %w", c.Name(), err)
	}
	return fromCurrent - fromTarget, toCurrent - toTarget, nil
}

func (c *CrossChainTransfer) ShouldStart(ctx context.Context, active []taskstore.Task) (bool, error) {
	fromDelta, toDelta, err := c.deltas(ctx)
	if err != nil {
		return false, err
	}
	// Only fires in the direction that actually relieves the imbalance: the
	// source chain is over-allocated and the destination is under-allocated.
	return fromDelta > c.RebalanceThreshold && -toDelta > c.RebalanceThreshold, nil
}

func (c *CrossChainTransfer) Start(ctx context.Context, active []taskstore.Task, force bool) (*taskstore.Task, string, error) {
	if !force {
		ok, err := c.ShouldStart(ctx, active)
		if err != nil {
			return nil, "", err
		}
		if !ok {
			return nil, "allocation delta below rebalance threshold", nil
		}
	}

	balance, err := c.FromAdapter.BalanceERC20(ctx, c.Token, c.ManagerAddress)
	if err != nil {
		return nil, "", fmt.Errorf("crosschaintransfer %s: balance: %w", c.Name(), err)
	}
	amount := fractionOf(balance, c.TransferFraction)
	if amount.Sign() <= 0 {
		return nil, "no idle balance to bridge", nil
	}

	quote, err := c.FromAdapter.QuoteCrossChain(ctx, chainadapter.CrossChainQuoteRequest{
		FromChainID: c.FromChainID,
		ToChainID:   c.ToChainID,
		Token:       c.Token,
		Amount:      amount,
	})
	if err != nil {
		return nil, "", fmt.Errorf("crosschaintransfer %s: quote: %w", c.Name(), err)
	}

	minAcceptable := fractionOf(amount, 0.99)
	if quote.MinReceive == nil || quote.MinReceive.Cmp(minAcceptable) < 0 {
		return nil, "bridge quote minReceive below sanity floor", nil
	}
	if quote.Value == nil || quote.Value.Cmp(amount) > 0 {
		return nil, "bridge quote value exceeds amount", nil
	}

	now := time.Now().UnixMilli()
	task := &taskstore.Task{
		DefinitionName: c.Name(),
		StartedAt:      now,
		LastUpdatedAt:  now,
		Status:         taskstore.StatusPreStart,
		ResourcesTaken: c.LockResources(),
	}
	data := CrossChainTransferTaskData{
		Token:    c.Token,
		Amount:   amount.String(),
		Value:    quote.Value.String(),
		Calldata: quote.Calldata,
	}
	if err := task.EncodeTaskData(data); err != nil {
		return nil, "", fmt.Errorf("crosschaintransfer %s: encode task data: %w", c.Name(), err)
	}
	return task, "", nil
}

func (c *CrossChainTransfer) Update(ctx context.Context, task *taskstore.Task) (*taskstore.Task, error) {
	var data CrossChainTransferTaskData
	if err := task.DecodeTaskData(&data); err != nil {
		return nil, fmt.Errorf("crosschaintransfer %s: decode task data: %w", c.Name(), err)
	}

	if task.Status == taskstore.StatusPreStart {
		amount, _ := new(big.Int).SetString(data.Amount, 10)
		value, _ := new(big.Int).SetString(data.Value, 10)
		hash, err := c.FromAdapter.SubmitBridge(ctx, chainadapter.BridgeRequest{
			FromChainID: c.FromChainID,
			ToChainID:   c.ToChainID,
			Token:       data.Token,
			Amount:      amount,
			Calldata:    data.Calldata,
			Value:       value,
		})
		if err != nil {
			return nil, fmt.Errorf("crosschaintransfer %s: submit bridge: %w", c.Name(), err)
		}
		data.Hash = hash.Hex()
		if err := task.EncodeTaskData(data); err != nil {
			return nil, fmt.Errorf("crosschaintransfer %s: encode task data: %w", c.Name(), err)
		}
		task.Status = taskstore.StatusRunning
		task.LastUpdatedAt = time.Now().UnixMilli()
		return task, nil
	}

	return txlifecycle.Advance(ctx, c.FromAdapter, task, data.Hash, task.StartedAt, time.Now(), func(r *chainadapter.Receipt) string {
		return fmt.Sprintf("bridged %s from chain %d to chain %d", data.Amount, c.FromChainID, c.ToChainID)
	}), nil
}

func (c *CrossChainTransfer) Stop(ctx context.Context, task *taskstore.Task) error { return nil }

func fractionOf(amount *big.Int, fraction float64) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	scaled := new(big.Float).Mul(new(big.Float).SetInt(amount), big.NewFloat(fraction))
	result, _ := scaled.Int(nil)
	return result
}
