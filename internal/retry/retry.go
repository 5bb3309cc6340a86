// internal/retry/retry.go
// Package retry re-runs a whole action, acquisition included, with a linearly growing delay
// between attempts. Handles from a failed attempt are never reused: the action closure is
// expected to acquire everything it needs on each call.
package retry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/kwdriver/internal/config"
	"github.com/xkilldash9x/kwdriver/internal/fault"
	"github.com/xkilldash9x/kwdriver/internal/metrics"
)

// Policy bounds a retried action.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// PolicyFrom converts the retry configuration section.
func PolicyFrom(cfg config.RetryConfig) Policy {
	return Policy{MaxAttempts: cfg.MaxAttempts, BaseDelay: cfg.BaseDelay()}
}

// Validate rejects policies that cannot run a single attempt.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fault.Validation("retry max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay < 0 {
		return fault.Validation("retry base delay must not be negative, got %v", p.BaseDelay)
	}
	return nil
}

// Delay is the pause before the 1-indexed attempt: zero for the first, BaseDelay*(attempt-1)
// after that.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return p.BaseDelay * time.Duration(attempt-1)
}

// TotalDelay is the cumulative pause when every attempt fails.
func (p Policy) TotalDelay() time.Duration {
	var total time.Duration
	for i := 2; i <= p.MaxAttempts; i++ {
		total += p.Delay(i)
	}
	return total
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Retrier runs retried actions. It holds no per-call state.
type Retrier struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	sleep   SleepFunc
}

// New creates a Retrier. logger and m may be nil.
func New(logger *zap.Logger, m *metrics.Metrics) *Retrier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{logger: logger.Named("retry"), metrics: m, sleep: Sleep}
}

// WithSleep returns a copy of r that pauses with fn.
func (r *Retrier) WithSleep(fn SleepFunc) *Retrier {
	c := *r
	c.sleep = fn
	return &c
}

var defaultRetrier = New(nil, nil)

// Do runs action until it succeeds or policy.MaxAttempts attempts have failed. A validation
// error from an attempt is returned at once. Cancellation of ctx while waiting between
// attempts is fatal. The terminal error wraps the last attempt's cause and keeps its kind.
func Do[T any](ctx context.Context, r *Retrier, policy Policy, action func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	if r == nil {
		r = defaultRetrier
	}
	if err := policy.Validate(); err != nil {
		return zero, err
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := r.sleep(ctx, policy.Delay(attempt)); err != nil {
				return zero, fault.Wrap(fault.KindFatal, err,
					"retry interrupted before attempt %d of %d (last error: %v)", attempt, policy.MaxAttempts, lastErr)
			}
		}

		v, err := action(ctx, attempt)
		if err == nil {
			r.metrics.ObserveAttempt("success")
			return v, nil
		}
		r.metrics.ObserveAttempt("failure")
		lastErr = err

		if fault.IsValidation(err) {
			return zero, err
		}
		r.logger.Debug("Attempt failed.",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", policy.MaxAttempts),
			zap.Duration("next_delay", policy.Delay(attempt+1)),
			zap.Error(err))
	}
	return zero, fault.Normalize(lastErr, "failed after %d attempts", policy.MaxAttempts)
}

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
