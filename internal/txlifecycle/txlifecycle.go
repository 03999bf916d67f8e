// Package txlifecycle advances a task from `running` toward a terminal
// status by polling a single receipt fetch per call, per §4.2.
//
// Follows a tx-listener's poll-with-timeout contract
// (NewTxListener(client, WithPollInterval, WithTimeout),
// WaitForTransaction(hash)), and vocdoni-davinci-node's
// txmanager.WaitTxByHash for the "one fetch, compare elapsed, decide"
// shape — except here there is no internal ticker: Advance is a pure
// function of one receipt-fetch attempt, called once per runner tick, so
// retries of the fetch itself belong to the chain adapter's RPC Retryer,
// not to this package.
package txlifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"crossliquid/internal/chainadapter"
	"crossliquid/internal/taskstore"
)

// DefaultTimeout is the hard ceiling on how long a task may wait for a
// receipt before being marked a timeout error, per §4.2.
const DefaultTimeout = 3 * time.Minute

// SuccessFormatter renders a human-readable success message from a mined,
// successful receipt — one per action definition (e.g. "withdrew 1.5 ETH").
type SuccessFormatter func(*chainadapter.Receipt) string

// Advance implements the transition table of §4.2 for one task whose
// taskData embeds a TxTaskData tail. startedAt is epoch ms, matching
// Task.StartedAt. now is injected so tests can drive deterministic elapsed
// times.
func Advance(ctx context.Context, adapter chainadapter.Adapter, task *taskstore.Task, hash string, startedAt int64, now time.Time, onSuccess SuccessFormatter) *taskstore.Task {
	if hash == "" {
		return terminal(task, taskstore.StatusError, "No tx hash", now)
	}

	receipt, err := adapter.GetReceipt(ctx, common.HexToHash(hash))
	if err != nil || receipt == nil {
		elapsed := now.Sub(time.UnixMilli(startedAt))
		if elapsed > DefaultTimeout {
			return terminal(task, taskstore.StatusError, "Transaction timed out", now)
		}
		task.LastUpdatedAt = now.UnixMilli()
		return task
	}

	if receipt.Status == chainadapter.ReceiptSuccess {
		message := hash
		if onSuccess != nil {
			message = onSuccess(receipt)
		}
		return terminal(task, taskstore.StatusCompleted, message, now)
	}

	return terminal(task, taskstore.StatusError, fmt.Sprintf("transaction %s reverted", hash), now)
}

func terminal(task *taskstore.Task, status taskstore.Status, message string, now time.Time) *taskstore.Task {
	task.Status = status
	task.StatusMessage = message
	ts := now.UnixMilli()
	task.LastUpdatedAt = ts
	task.FinishedAt = &ts
	return task
}
