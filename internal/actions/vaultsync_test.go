package actions

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"crossliquid/internal/taskstore"
)

func TestVaultSyncShouldStart(t *testing.T) {
	adapter := &fakeAdapter{chainID: 8453, vaultBalance: big.NewInt(5_000_000_000_000_000_000)}
	v := &VaultSync{ChainID: 8453, Adapter: adapter, IntendedReserve: big.NewInt(0)}

	ok, err := v.ShouldStart(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVaultSyncShouldStartFalseAtReserve(t *testing.T) {
	adapter := &fakeAdapter{chainID: 8453, vaultBalance: big.NewInt(100)}
	v := &VaultSync{ChainID: 8453, Adapter: adapter, IntendedReserve: big.NewInt(100)}

	ok, err := v.ShouldStart(context.Background(), nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVaultSyncStartSnapshotsBalance(t *testing.T) {
	adapter := &fakeAdapter{chainID: 8453, vaultBalance: big.NewInt(42)}
	v := &VaultSync{ChainID: 8453, Adapter: adapter, IntendedReserve: big.NewInt(0)}

	task, reason, err := v.Start(context.Background(), nil, false)
	require.NoError(t, err)
	require.Empty(t, reason)
	require.Equal(t, taskstore.StatusPreStart, task.Status)

	var data VaultSyncTaskData
	require.NoError(t, task.DecodeTaskData(&data))
	require.Equal(t, "42", data.VaultBalance)
}

func TestVaultSyncUpdateSubmitsThenAdvances(t *testing.T) {
	adapter := &fakeAdapter{chainID: 8453, vaultBalance: big.NewInt(1_000_000_000_000_000_000)}
	v := &VaultSync{ChainID: 8453, Adapter: adapter, IntendedReserve: big.NewInt(0)}

	task, _, err := v.Start(context.Background(), nil, false)
	require.NoError(t, err)

	task, err = v.Update(context.Background(), task)
	require.NoError(t, err)
	require.Equal(t, taskstore.StatusRunning, task.Status)
	require.Equal(t, 1, adapter.submittedCount)

	var data VaultSyncTaskData
	require.NoError(t, task.DecodeTaskData(&data))
	require.NotEmpty(t, data.Hash)
}
