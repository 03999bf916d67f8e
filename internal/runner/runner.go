// Package runner implements the Action Runner of §4.4: one tick of the
// scheduler, driving the task store and the action registry.
//
// Follows a monitoring loop's own shape, where the caller owns the ticker
// and this package only does the work of a single tick, and a sequential
// per-action invocation style, generalized into the two-phase
// parallel-update/sequential-start algorithm §4.4 specifies.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"crossliquid/internal/actions"
	"crossliquid/internal/retry"
	"crossliquid/internal/taskstore"
)

// Runner holds everything one Tick needs: the durable store and the
// registered action definitions, in registration order (registration
// order is what makes step 4's sequential resource-locking deterministic).
type Runner struct {
	Store        taskstore.Store
	Definitions  []actions.Definition
	TickDeadline time.Duration // bounds the whole tick (update phase and start phase), default 30s
}

func (r *Runner) definitionByName(name string) actions.Definition {
	for _, d := range r.Definitions {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

// Tick runs one full scheduler pass: update every active task in
// parallel, then sequentially try to start new ones against whatever
// resources remain free. Returns an error when the task store cannot be
// read, or when the tick's deadline (or ctx) expires before the start phase
// finishes; individual task failures never surface here.
func (r *Runner) Tick(ctx context.Context) error {
	tickCtx, cancel := context.WithTimeout(ctx, r.TickDeadline)
	defer cancel()

	active, err := r.Store.GetActiveTasks(tickCtx)
	if err != nil {
		return fmt.Errorf("runner: load active tasks: %w", err)
	}

	if err := r.updatePhase(tickCtx, active); err != nil {
		return fmt.Errorf("runner: update phase: %w", err)
	}

	if err := tickCtx.Err(); err != nil {
		return err
	}

	remaining, err := r.Store.GetActiveTasks(tickCtx)
	if err != nil {
		return fmt.Errorf("runner: reload active tasks: %w", err)
	}
	return r.startPhase(tickCtx, remaining)
}

// updatePhase advances every active task concurrently. Updates on disjoint
// active tasks never interact, so they run in parallel bounded by the tick
// deadline; a single task's error or panic is converted to an `error`
// status transition instead of being propagated, so it can never abort its
// siblings via errgroup's fail-fast cancellation — that cancellation is
// reserved for the deadline alone.
func (r *Runner) updatePhase(ctx context.Context, active []taskstore.Task) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := range active {
		task := active[i]
		g.Go(func() error {
			r.updateOne(gctx, task)
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) updateOne(ctx context.Context, task taskstore.Task) {
	defer func() {
		if rec := recover(); rec != nil {
			r.markError(ctx, &task, fmt.Sprintf("panic: %v", rec))
		}
	}()

	def := r.definitionByName(task.DefinitionName)
	if def == nil {
		r.markError(ctx, &task, fmt.Sprintf("unknown action definition %q", task.DefinitionName))
		return
	}

	updated, err := def.Update(ctx, &task)
	if err != nil {
		if isTickCancelled(ctx, err) {
			log.Warn().Str("task", task.ID).Str("definition", task.DefinitionName).Msg("update cancelled by tick deadline, task left in prior status")
			return
		}
		r.markError(ctx, &task, err.Error())
		return
	}
	if err := r.Store.UpdateTask(ctx, updated); err != nil {
		log.Error().Err(err).Str("task", task.ID).Str("definition", task.DefinitionName).Msg("persist updated task")
	}
}

// startPhase iterates the definitions in registration order, starting (and
// immediately first-updating) any whose resources are still free and whose
// gate holds. Newly-acquired resources block later candidates within the
// same tick.
func (r *Runner) startPhase(ctx context.Context, active []taskstore.Task) error {
	held := map[string]struct{}{}
	for _, t := range active {
		for _, res := range t.ResourcesTaken {
			held[res] = struct{}{}
		}
	}

	for _, def := range r.Definitions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !disjoint(def.LockResources(), held) {
			continue
		}

		ok, err := def.ShouldStart(ctx, active)
		if err != nil {
			log.Warn().Err(err).Str("definition", def.Name()).Msg("shouldStart failed")
			continue
		}
		if !ok {
			continue
		}

		task, reason, err := def.Start(ctx, active, false)
		if err != nil {
			log.Warn().Err(err).Str("definition", def.Name()).Msg("start failed")
			continue
		}
		if task == nil {
			log.Debug().Str("definition", def.Name()).Str("reason", reason).Msg("start declined")
			continue
		}

		task.ID = uuid.NewString()
		if err := r.Store.AddTask(ctx, task); err != nil {
			log.Error().Err(err).Str("definition", def.Name()).Msg("persist new task")
			continue
		}
		for _, res := range task.ResourcesTaken {
			held[res] = struct{}{}
		}
		active = append(active, *task)

		log.Info().Str("definition", def.Name()).Str("task", task.ID).Msg("action started")
		r.runFirstUpdate(ctx, def, task)
	}
	return nil
}

// runFirstUpdate submits the new task's transaction on the same tick it
// started, per §4.3's "update on first call submits the transaction"
// contract.
func (r *Runner) runFirstUpdate(ctx context.Context, def actions.Definition, task *taskstore.Task) {
	defer func() {
		if rec := recover(); rec != nil {
			r.markError(ctx, task, fmt.Sprintf("panic: %v", rec))
		}
	}()

	updated, err := def.Update(ctx, task)
	if err != nil {
		if isTickCancelled(ctx, err) {
			log.Warn().Str("task", task.ID).Str("definition", task.DefinitionName).Msg("first update cancelled by tick deadline, task left in prior status")
			return
		}
		r.markError(ctx, task, err.Error())
		return
	}
	if err := r.Store.UpdateTask(ctx, updated); err != nil {
		log.Error().Err(err).Str("task", task.ID).Str("definition", task.DefinitionName).Msg("persist first update")
	}
}

func (r *Runner) markError(ctx context.Context, task *taskstore.Task, message string) {
	now := time.Now().UnixMilli()
	task.Status = taskstore.StatusError
	task.StatusMessage = message
	task.LastUpdatedAt = now
	task.FinishedAt = &now
	if err := r.Store.UpdateTask(ctx, task); err != nil {
		log.Error().Err(err).Str("task", task.ID).Msg("persist error task")
	}
}

// isTickCancelled reports whether err reflects the tick's own deadline (or
// process shutdown) firing mid-call, rather than a genuine action failure.
// A task whose update was aborted this way must be left untouched, not
// routed to markError — the deadline is not the action's fault and must
// not corrupt its status.
func isTickCancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, retry.ErrCancelled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func disjoint(want []string, held map[string]struct{}) bool {
	for _, w := range want {
		if _, ok := held[w]; ok {
			return false
		}
	}
	return true
}
