package worker

import (
	"context"
	"fmt"
	"time"
)

// Sleeper waits for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the real Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy is a fixed-delay retry: Attempts tries in total, Delay between two of them,
// no delay after the last one.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	Sleep    Sleeper
	// Retryable filters errors worth another attempt; nil retries everything.
	Retryable func(error) bool
	// OnFailure observes every failed attempt, starting at 1.
	OnFailure func(attempt int, err error)
}

// Retry runs op until it succeeds, the attempts are exhausted, or ctx ends.
func Retry[T any](ctx context.Context, p RetryPolicy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var (
		zero    T
		lastErr error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := op(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if p.OnFailure != nil {
			p.OnFailure(attempt, err)
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, p.Delay); err != nil {
			return zero, fmt.Errorf("retry interrupted after attempt %d: %w", attempt, err)
		}
	}
	return zero, fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}
