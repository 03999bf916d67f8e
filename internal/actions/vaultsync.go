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

// VaultSyncTaskData is VaultSync's pre-start snapshot plus the shared
// submitted-transaction tail.
type VaultSyncTaskData struct {
	taskstore.TxTaskData
	VaultBalance string // decimal big.Int string, snapshotted at Start
}

// VaultSync withdraws the vault's idle balance into the manager so it can
// be deployed by the other actions, following an unstake/withdrawal flow
// generalized to a parent-chain-only vault sweep.
type VaultSync struct {
	ChainID         int64
	Adapter         chainadapter.Adapter
	IntendedReserve *big.Int // Open Question #3: configurable, may be zero
}

func (v *VaultSync) Name() string { return fmt.Sprintf("vault-sync-%d", v.ChainID) }

func (v *VaultSync) LockResources() []string {
	return []string{fmt.Sprintf("chain:%d:manager", v.ChainID)}
}

func (v *VaultSync) ShouldStart(ctx context.Context, active []taskstore.Task) (bool, error) {
	balance, err := v.Adapter.VaultBalance(ctx)
	if err != nil {
		return false, fmt.Errorf("vaultsync %s: %w", v.Name(), err)
	}
	return balance.Cmp(v.IntendedReserve) > 0, nil
}

func (v *VaultSync) Start(ctx context.Context, active []taskstore.Task, force bool) (*taskstore.Task, string, error) {
	if !force {
		ok, err := v.ShouldStart(ctx, active)
		if err != nil {
			return nil, "", err
		}
		if !ok {
			return nil, "vault balance at or below intended reserve", nil
		}
	}

	balance, err := v.Adapter.VaultBalance(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("vaultsync %s: snapshot balance: %w", v.Name(), err)
	}

	now := time.Now().UnixMilli()
	task := &taskstore.Task{
		DefinitionName: v.Name(),
		StartedAt:      now,
		LastUpdatedAt:  now,
		Status:         taskstore.StatusPreStart,
		ResourcesTaken: v.LockResources(),
	}
	if err := task.EncodeTaskData(VaultSyncTaskData{VaultBalance: balance.String()}); err != nil {
		return nil, "", fmt.Errorf("vaultsync %s: encode task data: %w", v.Name(), err)
	}
	return task, "", nil
}

func (v *VaultSync) Update(ctx context.Context, task *taskstore.Task) (*taskstore.Task, error) {
	var data VaultSyncTaskData
	if err := task.DecodeTaskData(&data); err != nil {
		return nil, fmt.Errorf("vaultsync %s: decode task data: %w", v.Name(), err)
	}

	if task.Status == taskstore.StatusPreStart {
		amount, ok := new(big.Int).SetString(data.VaultBalance, 10)
		if !ok {
			return nil, fmt.Errorf("vaultsync %s: corrupt vault balance %q", v.Name(), data.VaultBalance)
		}
		hash, err := v.Adapter.SubmitWithdraw(ctx, chainadapter.WithdrawRequest{Amount: amount})
		if err != nil {
			return nil, fmt.Errorf("vaultsync %s: submit withdraw: %w", v.Name(), err)
		}
		data.Hash = hash.Hex()
		if err := task.EncodeTaskData(data); err != nil {
			return nil, fmt.Errorf("vaultsync %s: encode task data: %w", v.Name(), err)
		}
		task.Status = taskstore.StatusRunning
		task.LastUpdatedAt = time.Now().UnixMilli()
		return task, nil
	}

	return txlifecycle.Advance(ctx, v.Adapter, task, data.Hash, task.StartedAt, time.Now(), func(r *chainadapter.Receipt) string {
		amount, _ := new(big.Int).SetString(data.VaultBalance, 10)
		return fmt.Sprintf("withdrew %s ETH from vault", weiToEtherString(amount))
	}), nil
}

func (v *VaultSync) Stop(ctx context.Context, task *taskstore.Task) error { return nil }

// weiToEtherString renders a wei amount as an ether-denominated decimal
// string for the success message.
func weiToEtherString(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	ether := new(big.Float).SetInt(wei)
	ether.Quo(ether, big.NewFloat(1e18))
	return ether.Text('f', 6)
}
