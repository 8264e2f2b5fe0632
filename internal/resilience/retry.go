package resilience

import (
	"context"
	"errors"
	"time"
)

// Retry defaults.
const (
	DefaultMaxRetries = 2
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 30 * time.Second
)

// Retrier runs an operation up to MaxRetries+1 times with pure exponential
// backoff between attempts. It knows nothing about circuit breakers.
type Retrier struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// Retryable reports whether a failed attempt may be retried. Nil retries every error.
	Retryable func(error) bool
	// OnRetry is called before each backoff sleep with the 1-based attempt that failed.
	OnRetry func(attempt int, err error, delay time.Duration)
	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a retrier. Negative retries and non-positive delays fall back to defaults.
func NewRetrier(maxRetries int, baseDelay, maxDelay time.Duration) *Retrier {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	return &Retrier{MaxRetries: maxRetries, BaseDelay: baseDelay, MaxDelay: maxDelay}
}

// Backoff returns the delay after the given 0-based attempt:
// min(BaseDelay * 2^attempt, MaxDelay).
func (r *Retrier) Backoff(attempt int) time.Duration {
	delay := r.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= r.MaxDelay || delay <= 0 {
			return r.MaxDelay
		}
	}
	if delay > r.MaxDelay {
		return r.MaxDelay
	}
	return delay
}

// Do runs op until it succeeds or attempts are exhausted, returning the last
// attempt's error unchanged. If ctx ends first, the context error is joined
// with the last attempt's error.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	attempts := r.MaxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(err, lastErr)
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		if r.Retryable != nil && !r.Retryable(lastErr) {
			break
		}

		delay := r.Backoff(attempt)
		if r.OnRetry != nil {
			r.OnRetry(attempt+1, lastErr, delay)
		}
		if err := r.sleep(ctx, delay); err != nil {
			return errors.Join(err, lastErr)
		}
	}

	return lastErr
}

func (r *Retrier) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
