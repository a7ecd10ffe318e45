package reliability

import (
	"context"
	goerrors "errors"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"weatherdash.app/config"
	"weatherdash.app/errors"
)

// Retrier re-runs failed operations with exponential backoff and jitter.
// Only retryable error types are retried; a rate-limit error's Retry-After
// hint overrides the computed delay when it is longer.
type Retrier struct {
	cfg config.RetryConfig
}

func NewRetrier(cfg config.RetryConfig) *Retrier {
	return &Retrier{cfg: cfg}
}

// Do runs op up to MaxAttempts times. It stops early on success, on a
// non-retryable error, on an open circuit breaker, or when ctx is done.
func (r *Retrier) Do(ctx context.Context, operation string, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := r.Delay(attempt - 1)
			if hint, ok := errors.RetryAfter(lastErr); ok && hint > delay {
				delay = hint
			}
			slog.Debug("retrying operation",
				"operation", operation,
				"attempt", attempt+1,
				"max_attempts", r.cfg.MaxAttempts,
				"delay", delay,
				"error", lastErr,
			)
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !errors.IsRetryable(lastErr) {
			return lastErr
		}
		if goerrors.Is(lastErr, ErrCircuitOpen) {
			// The breaker will reject every remaining attempt too.
			return lastErr
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}

	return lastErr
}

// Delay computes the backoff before retry number attempt (zero-based):
// base * expBase^attempt, capped at MaxDelay, with ±25% jitter applied
// when enabled.
func (r *Retrier) Delay(attempt int) time.Duration {
	backoff := float64(r.cfg.BaseDelay) * math.Pow(r.cfg.ExponentialBase, float64(attempt))
	if backoff > float64(r.cfg.MaxDelay) {
		backoff = float64(r.cfg.MaxDelay)
	}
	if r.cfg.Jitter {
		backoff *= 0.75 + rand.Float64()*0.5
	}
	return time.Duration(backoff)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
