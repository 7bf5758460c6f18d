// Package retry provides an exponential backoff policy with an injectable clock.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrRetriesExhausted is wrapped by the terminal error of a failed Do.
var ErrRetriesExhausted = errors.New("retries exhausted")

// NonRetryableError wraps errors that should not be retried
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable wraps an error to indicate it should not be retried
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable checks if an error is marked as non-retryable
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Policy retries an operation up to MaxAttempts times, sleeping
// BackoffFactor^n seconds after the n-th failure (n starting at 0). No sleep
// follows the final attempt.
type Policy struct {
	MaxAttempts   int
	BackoffFactor float64

	clock   clockwork.Clock
	logger  *slog.Logger
	onRetry func(attempt int, delay time.Duration, err error)
}

// NewPolicy creates a policy using the real clock.
func NewPolicy(maxAttempts int, backoffFactor float64) *Policy {
	return &Policy{
		MaxAttempts:   maxAttempts,
		BackoffFactor: backoffFactor,
		clock:         clockwork.NewRealClock(),
		logger:        slog.Default(),
	}
}

// WithClock sets the clock used for backoff sleeps.
func (p *Policy) WithClock(clock clockwork.Clock) *Policy {
	p.clock = clock
	return p
}

// WithLogger sets a custom logger for the policy.
func (p *Policy) WithLogger(logger *slog.Logger) *Policy {
	p.logger = logger
	return p
}

// OnRetry registers a hook called before every backoff sleep.
func (p *Policy) OnRetry(fn func(attempt int, delay time.Duration, err error)) *Policy {
	p.onRetry = fn
	return p
}

// Delay returns the sleep after the failure of the given zero-based attempt.
func (p *Policy) Delay(attempt int) time.Duration {
	factor := p.BackoffFactor
	if factor <= 0 {
		factor = 1
	}
	seconds := math.Pow(factor, float64(attempt))
	if seconds > float64(math.MaxInt64/int64(time.Second)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(seconds * float64(time.Second))
}

// Do runs fn until it succeeds, returns a non-retryable error, the context is
// cancelled, or the attempts run out. op describes the operation in logs and
// in the terminal error.
func (p *Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	clock := p.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := p.logger
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsNonRetryable(err) {
			return err
		}

		if ctx.Err() != nil {
			return fmt.Errorf("%s cancelled: %w", op, ctx.Err())
		}

		if attempt == attempts-1 {
			break
		}

		delay := p.Delay(attempt)
		logger.WarnContext(ctx, "operation failed, retrying",
			"operation", op,
			"attempt", attempt+1,
			"max_attempts", attempts,
			"delay", delay,
			"error", err,
		)
		if p.onRetry != nil {
			p.onRetry(attempt, delay, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s cancelled during backoff: %w", op, ctx.Err())
		case <-clock.After(delay):
		}
	}

	return fmt.Errorf("%w: %s after %d attempts: %w", ErrRetriesExhausted, op, attempts, lastErr)
}

// DoWithResult executes fn with retry and returns both result and error
func DoWithResult[T any](ctx context.Context, p *Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := p.Do(ctx, op, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = fn(ctx)
		return innerErr
	})
	return result, err
}
