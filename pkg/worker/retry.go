package worker

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"gorm.io/gorm"

	"github.com/jdziat/delayed/pkg/core"
)

// RetryConfig controls how a worker retries a failing storage call. It only
// covers the worker's own bookkeeping queries; job failures are governed by
// Backoff and the attempt limit.
type RetryConfig struct {
	// MaxAttempts counts the first call. 1 disables retrying.
	MaxAttempts int

	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64

	// JitterFraction randomizes each delay by up to ±fraction of itself.
	JitterFraction float64
}

// DefaultRetryConfig is used for the writes that record a job's outcome.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
	}
}

// reserveRetryConfig is the default for reservation queries. An idle worker
// polls again soon anyway, so it gives up sooner than storage writes.
func reserveRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.2,
	}
}

// delay is the pause after the given failed attempt (1-based). r returns a
// value in [0, 1) and is only consulted when jitter is configured.
func (c RetryConfig) delay(attempt int, r func() float64) time.Duration {
	d := float64(c.InitialBackoff)
	for i := 1; i < attempt; i++ {
		d *= c.BackoffMultiplier
		if c.MaxBackoff > 0 && d >= float64(c.MaxBackoff) {
			d = float64(c.MaxBackoff)
			break
		}
	}
	if c.JitterFraction > 0 {
		d += d * c.JitterFraction * (r()*2 - 1)
	}
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

// withRetry calls fn until it succeeds, fails with an error IsRetryableError
// rejects, or cfg.MaxAttempts is used up. The last error is returned.
func (w *Worker) withRetry(ctx context.Context, cfg RetryConfig, op string, fn func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil || !IsRetryableError(err) || attempt >= cfg.MaxAttempts {
			return err
		}

		wait := cfg.delay(attempt, rand.Float64)
		w.logger.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("storage call failed, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// IsRetryableError reports whether a storage error may clear up on its own.
// Connection drops, busy databases and deadlocks are retried. Cancellation,
// lost locks, missing rows and constraint violations are not.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, core.ErrJobNotOwned), errors.Is(err, core.ErrJobNotFound):
		return false
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, gorm.ErrMissingWhereClause):
		return false
	}

	var violation *core.ConstraintViolation
	if errors.As(err, &violation) {
		return false
	}
	var decode *core.DeserializationError
	return !errors.As(err, &decode)
}
