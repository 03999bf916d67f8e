// Package actions implements the five Action Definition variants of §4.3:
// VaultSync, AddLiquidity, RemoveLiquidity, SwapForBalance and
// CrossChainTransfer. Each variant is a small struct holding its chain id,
// chain adapter, and static strategy config, grounded on the shape of the
// teacher's own per-operation methods on Blackhole (Mint, Stake, Unstake,
// Swap) but split into the shouldStart/start/update/stop lifecycle the
// runner drives.
package actions

import (
	"context"

	"crossliquid/internal/taskstore"
)

// Definition is the polymorphic action contract of §4.3.
type Definition interface {
	// Name is a stable identifier, unique per instance, e.g. "add-liquidity-8453".
	Name() string

	// LockResources returns the static set of resource tags this action
	// consumes, e.g. "chain:8453:liquidity". Pure.
	LockResources() []string

	// ShouldStart is a cheap, side-effect-free gate. May read chain state.
	ShouldStart(ctx context.Context, active []taskstore.Task) (bool, error)

	// Start snapshots current state into a new pre-start task if force is
	// true or ShouldStart holds. It must never submit a transaction. The
	// second return value explains a decline when the returned task is nil.
	Start(ctx context.Context, active []taskstore.Task, force bool) (*taskstore.Task, string, error)

	// Update advances a task by one step: on pre-start it submits the
	// on-chain transaction and moves to running; afterwards it delegates to
	// the transaction lifecycle helper.
	Update(ctx context.Context, task *taskstore.Task) (*taskstore.Task, error)

	// Stop is a best-effort teardown; may be a no-op.
	Stop(ctx context.Context, task *taskstore.Task) error
}
