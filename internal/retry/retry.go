// Package retry wraps read calls with bounded exponential backoff and
// structured failure reporting, honoring caller cancellation above all
// else.
//
// Hand-rolled rather than built on a generic retry-with-backoff library:
// the exact policy (min(base*2^(i-1), max), no jitter, cancellation takes
// priority over the last failure) is a precise domain policy straight out
// of spec §4.1, not a generic use case — see DESIGN.md.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	maxAttempts = 3
	baseDelay   = 1 * time.Second
	maxDelay    = 10 * time.Second
)

// ErrCancelled is returned when the caller's context is cancelled before
// the retryer exhausts its attempts or succeeds.
var ErrCancelled = errors.New("retry: cancelled")

// Do invokes fn up to maxAttempts times, backing off between attempts.
// If ctx is cancelled at any point, Do returns immediately with
// ErrCancelled rather than the last observed failure.
func Do[T any](ctx context.Context, label string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, ErrCancelled
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, ErrCancelled
		}

		log.Warn().Str("label", label).Int("attempt", attempt).Err(err).Msg("rpc call failed")

		if attempt == maxAttempts {
			break
		}

		delay := backoffDelay(attempt)
		select {
		case <-ctx.Done():
			return zero, ErrCancelled
		case <-time.After(delay):
		}
	}

	return zero, fmt.Errorf("retry: %s failed after %d attempts: %w", label, maxAttempts, lastErr)
}

// backoffDelay returns the delay between attempt i and i+1: min(base*2^(i-1), max).
func backoffDelay(attempt int) time.Duration {
	delay := baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return delay
}
