package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func TestRetrierAlwaysFailingReturnsLastError(t *testing.T) {
	var delays []time.Duration
	r := NewRetrier(2, time.Second, 30*time.Second)
	r.Sleep = recordingSleep(&delays)

	calls := 0
	var last error
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		last = fmt.Errorf("attempt %d failed", calls)
		return last
	})

	require.Equal(t, 3, calls)
	require.Same(t, last, err)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestRetrierSucceedsAfterFailures(t *testing.T) {
	var delays []time.Duration
	r := NewRetrier(3, 10*time.Millisecond, time.Second)
	r.Sleep = recordingSleep(&delays)

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Len(t, delays, 2)
}

func TestRetrierBackoffIsCapped(t *testing.T) {
	r := NewRetrier(10, time.Second, 30*time.Second)

	expected := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}
	for attempt, want := range expected {
		assert.Equal(t, want, r.Backoff(attempt), "attempt %d", attempt)
	}
	assert.Equal(t, 30*time.Second, r.Backoff(200))
}

func TestRetrierNonRetryableStopsEarly(t *testing.T) {
	permanent := errors.New("permanent")
	r := NewRetrier(5, time.Millisecond, time.Millisecond)
	r.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	r.Retryable = func(err error) bool { return !errors.Is(err, permanent) }

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return permanent
	})

	require.ErrorIs(t, err, permanent)
	require.Equal(t, 1, calls)
}

func TestRetrierStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	failure := errors.New("boom")

	r := NewRetrier(5, time.Hour, time.Hour)
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- r.Do(ctx, func(ctx context.Context) error {
			calls++
			return failure
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		require.ErrorIs(t, err, failure)
		require.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("retrier did not observe cancellation")
	}
}

func TestRetrierOnRetryHook(t *testing.T) {
	r := NewRetrier(2, time.Millisecond, time.Millisecond)
	r.Sleep = func(ctx context.Context, d time.Duration) error { return nil }

	var attempts []int
	r.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}

	_ = r.Do(context.Background(), func(ctx context.Context) error { return errors.New("x") })
	require.Equal(t, []int{1, 2}, attempts)
}

func TestNewRetrierDefaults(t *testing.T) {
	r := NewRetrier(-1, 0, 0)
	require.Equal(t, DefaultMaxRetries, r.MaxRetries)
	require.Equal(t, DefaultBaseDelay, r.BaseDelay)
	require.Equal(t, DefaultMaxDelay, r.MaxDelay)
}
