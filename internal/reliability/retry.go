package reliability

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy decides whether a failed stage operation should be attempted
// again and how long to wait before doing so.
type RetryPolicy interface {
	// ShouldRetry determines if a retry should be attempted after the given
	// zero-based attempt failed with err
	ShouldRetry(attempt int, err error) (bool, time.Duration)
	// MaxRetries returns the maximum number of retries
	MaxRetries() int
}

// FixedDelay retries up to MaxAttempts times with a constant delay.
type FixedDelay struct {
	Delay       time.Duration
	MaxAttempts int
}

// NewFixedDelay creates a fixed delay policy
func NewFixedDelay(delay time.Duration, maxRetries int) *FixedDelay {
	return &FixedDelay{
		Delay:       delay,
		MaxAttempts: maxRetries,
	}
}

// ShouldRetry implements RetryPolicy
func (f *FixedDelay) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if attempt >= f.MaxAttempts {
		return false, 0
	}
	if !isTransientError(err) {
		return false, 0
	}
	return true, f.Delay
}

// MaxRetries implements RetryPolicy
func (f *FixedDelay) MaxRetries() int {
	return f.MaxAttempts
}

// ExponentialBackoff multiplies the delay between attempts, with an upper
// bound and optional jitter.
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int
	Jitter          bool
}

// NewExponentialBackoff creates an exponential backoff policy
func NewExponentialBackoff(initial, max time.Duration, multiplier float64, maxRetries int) *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialInterval: initial,
		MaxInterval:     max,
		Multiplier:      multiplier,
		MaxAttempts:     maxRetries,
	}
}

// ShouldRetry implements RetryPolicy
func (e *ExponentialBackoff) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if attempt >= e.MaxAttempts {
		return false, 0
	}
	if !isTransientError(err) {
		return false, 0
	}
	return true, e.nextDelay(attempt)
}

// MaxRetries implements RetryPolicy
func (e *ExponentialBackoff) MaxRetries() int {
	return e.MaxAttempts
}

func (e *ExponentialBackoff) nextDelay(attempt int) time.Duration {
	delay := float64(e.InitialInterval) * math.Pow(e.Multiplier, float64(attempt))
	if delay > float64(e.MaxInterval) {
		delay = float64(e.MaxInterval)
	}
	if e.Jitter {
		jitter := rand.Float64() * 0.3 * delay // ±15% jitter
		delay = delay + jitter - (0.15 * delay)
	}
	return time.Duration(delay)
}

// Retry executes fn, retrying per policy. It returns the number of attempts
// made (at least 1 once fn has run) and the last error, nil on success. A
// nil policy means a single attempt. The delay between attempts respects
// context cancellation.
func Retry(ctx context.Context, policy RetryPolicy, fn func() error) (int, error) {
	var lastErr error

	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return attempt + 1, nil
		}
		lastErr = err

		if policy == nil {
			return attempt + 1, lastErr
		}
		shouldRetry, delay := policy.ShouldRetry(attempt, err)
		if !shouldRetry {
			return attempt + 1, lastErr
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return attempt + 1, ctx.Err()
		}
	}
}

// isTransientError determines if an error is worth retrying. Errors may opt
// out by implementing IsTransient; unknown errors default to transient so
// flaky adapters get their retries.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	type transient interface {
		IsTransient() bool
	}

	if t, ok := err.(transient); ok {
		return t.IsTransient()
	}
	return true
}

// TransientError wraps an error with an explicit transient/permanent marker.
type TransientError struct {
	Err       error
	Transient bool
}

// Error implements error interface
func (t TransientError) Error() string {
	return t.Err.Error()
}

// IsTransient reports whether the error should be retried
func (t TransientError) IsTransient() bool {
	return t.Transient
}

// Unwrap returns the wrapped error
func (t TransientError) Unwrap() error {
	return t.Err
}

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return TransientError{Err: err, Transient: false}
}
