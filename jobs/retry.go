package jobs

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy configures bounded exponential backoff for transient
// transport failures.
type RetryPolicy struct {
	MaxRetries int           // retry attempts after the initial call
	BaseDelay  time.Duration // delay before the first retry
	MaxDelay   time.Duration // cap on the backoff delay
	Multiplier float64       // exponential growth factor
	Jitter     bool          // randomize delays to avoid thundering herds
	OnRetry    func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns the default policy: three total attempts, one
// second base delay doubling up to thirty seconds, with jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Delay calculates the backoff delay for attempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	delay = math.Min(delay, float64(p.MaxDelay))
	if p.Jitter {
		// +/- 50% jitter
		delay = delay * (0.5 + rand.Float64())
	}
	return time.Duration(delay)
}

// retryTransient runs fn, retrying transient failures per the policy.
// Non-transient errors and context cancellation surface immediately. The
// returned attempt count includes the initial call.
func retryTransient[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, int, error) {
	var zero T
	result, err := fn(ctx)
	attempts := 1
	if err == nil {
		return result, attempts, nil
	}

	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		if !IsTransient(err) {
			return zero, attempts, err
		}

		delay := policy.Delay(attempt)
		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		select {
		case <-ctx.Done():
			return zero, attempts, ctx.Err()
		case <-time.After(delay):
		}

		result, err = fn(ctx)
		attempts++
		if err == nil {
			return result, attempts, nil
		}
	}

	return zero, attempts, err
}
