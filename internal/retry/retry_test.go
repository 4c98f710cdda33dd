package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	p := Policy{MaxAttempts: 3, Delay: time.Millisecond}

	var calls []int
	got, err := Do(context.Background(), p, func(_ context.Context, attempt int) (string, error) {
		calls = append(calls, attempt)
		if attempt < 3 {
			return "", errTransient
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, []int{1, 2, 3}, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 3, Delay: time.Millisecond}

	calls := 0
	got, err := Do(context.Background(), p, func(context.Context, int) (int, error) {
		calls++
		return 42, errTransient
	})

	require.ErrorIs(t, err, errTransient)
	assert.Zero(t, got, "failed runs must return the zero value")
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	errFatal := errors.New("fatal")
	p := Policy{
		MaxAttempts: 5,
		Delay:       time.Millisecond,
		Retryable:   func(err error) bool { return !errors.Is(err, errFatal) },
	}

	calls := 0
	_, err := Do(context.Background(), p, func(context.Context, int) (struct{}, error) {
		calls++
		return struct{}{}, errFatal
	})

	require.ErrorIs(t, err, errFatal)
	assert.Equal(t, 1, calls)
}

func TestDoHonoursContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 10, Delay: time.Hour}

	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, p, func(context.Context, int) (int, error) {
			calls++
			return 0, errTransient
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		require.Error(t, err)
		assert.LessOrEqual(t, calls, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestDoRetriesAttemptDeadline(t *testing.T) {
	p := Policy{MaxAttempts: 3, Delay: time.Millisecond}

	calls := 0
	got, err := Do(context.Background(), p, func(ctx context.Context, attempt int) (string, error) {
		calls++
		if attempt == 1 {
			attemptCtx, cancel := context.WithTimeout(ctx, time.Millisecond)
			defer cancel()
			<-attemptCtx.Done()
			return "", attemptCtx.Err()
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
}

func TestDoStopsWhenCallerDeadlinePasses(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	p := Policy{MaxAttempts: 5, Delay: time.Millisecond}

	calls := 0
	_, err := Do(ctx, p, func(ctx context.Context, _ int) (int, error) {
		calls++
		<-ctx.Done()
		return 0, ctx.Err()
	})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)
}

func TestPolicyAttemptsFloor(t *testing.T) {
	assert.Equal(t, uint(1), Policy{}.attempts())
	assert.Equal(t, uint(1), Policy{MaxAttempts: -2}.attempts())
	assert.Equal(t, uint(3), DefaultPolicy().attempts())
}
