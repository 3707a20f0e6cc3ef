package deribit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy is the one retry loop shared by every upstream read: a maximum
// retry count, a backoff schedule, and a per-attempt deadline that aborts the
// in-flight call.
type RetryPolicy struct {
	MaxRetries     int
	Backoff        func(attempt int) time.Duration
	AttemptTimeout time.Duration
}

// LinearBackoff waits attempt * unit before each retry.
func LinearBackoff(unit time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * unit
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error as not worth retrying (e.g. an application-level
// error payload from the venue).
func Permanent(err error) error {
	return &permanentError{err: err}
}

// Do runs fn until it succeeds, returns a permanent error, or retries are
// exhausted. Each attempt gets its own deadline; a timeout cancels the
// in-flight call and counts as a failed attempt.
func (p RetryPolicy) Do(ctx context.Context, logger *zap.Logger, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.Backoff(attempt)
			logger.Debug("retrying request",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		attemptCtx := ctx
		cancel := func() {}
		if p.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		}
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
