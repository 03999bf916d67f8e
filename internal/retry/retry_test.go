package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), "test", func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, result)
	require.Equal(t, 1, calls)
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), "test", func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("transient")
		}
		return 7, nil
	})
	require.NoError(t, err)
	require.Equal(t, 7, result)
	require.Equal(t, 2, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), "test", func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	})
	require.Error(t, err)
	require.Equal(t, maxAttempts, calls)
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := Do(ctx, "test", func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("always fails")
	})
	require.ErrorIs(t, err, ErrCancelled)
}

func TestBackoffDelay(t *testing.T) {
	require.Equal(t, 1*time.Second, backoffDelay(1))
	require.Equal(t, 2*time.Second, backoffDelay(2))
	require.Equal(t, 4*time.Second, backoffDelay(3))
	require.Equal(t, 8*time.Second, backoffDelay(4))
	require.Equal(t, maxDelay, backoffDelay(5))
}
