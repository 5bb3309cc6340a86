// internal/wait/engine.go
// Package wait implements the polling primitive every keyword synchronizes on. A condition is
// evaluated immediately and then once per interval until it reports success, returns an error
// that is not ignored, or the deadline passes.
package wait

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/kwdriver/internal/fault"
	"github.com/xkilldash9x/kwdriver/internal/metrics"
)

// Condition is evaluated on every poll. It returns the observed value, whether that value
// satisfies the wait, and an error.
type Condition[T any] func(ctx context.Context) (T, bool, error)

// Truthy adapts a value-producing function into a Condition. Zero values, nil, and empty
// strings, slices and maps are falsy.
func Truthy[T any](fn func(ctx context.Context) (T, error)) Condition[T] {
	return func(ctx context.Context) (T, bool, error) {
		v, err := fn(ctx)
		if err != nil {
			return v, false, err
		}
		return v, isTruthy(v), nil
	}
}

// Predicate adapts a boolean check into a Condition.
func Predicate(fn func(ctx context.Context) (bool, error)) Condition[bool] {
	return func(ctx context.Context) (bool, bool, error) {
		ok, err := fn(ctx)
		return ok, ok && err == nil, err
	}
}

func isTruthy(v any) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return false
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.String, reflect.Array, reflect.Chan:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface, reflect.Func:
		return !rv.IsNil()
	default:
		return !rv.IsZero()
	}
}

// TimeoutError is returned when the deadline passes without a successful poll. It keeps the
// last observed value and the last ignored error for diagnostics.
type TimeoutError struct {
	Timeout   time.Duration
	Elapsed   time.Duration
	Polls     int
	LastValue any
	// LastErr is the error of the final poll, nil if the final poll returned a falsy value.
	LastErr error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("condition not met within %v (%d polls)", e.Timeout, e.Polls)
	if e.LastErr != nil {
		return fmt.Sprintf("%s: last error: %v", msg, e.LastErr)
	}
	if isTruthy(e.LastValue) {
		return fmt.Sprintf("%s: last value: %v", msg, e.LastValue)
	}
	return msg
}

// Unwrap exposes the last ignored error, so errors.Is(err, session.ErrNoSuchElement) tells
// "never found" apart from "found but never ready".
func (e *TimeoutError) Unwrap() error { return e.LastErr }

// FaultKind classifies the error as a timeout.
func (e *TimeoutError) FaultKind() fault.Kind { return fault.KindTimeout }

// Engine runs waits. It holds no state between calls, so identical conditions and specs
// always take the same branch regardless of what ran before.
type Engine struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewEngine creates an Engine. logger and m may be nil.
func NewEngine(logger *zap.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger.Named("wait"), metrics: m, now: time.Now}
}

var nopEngine = NewEngine(nil, nil)

// Until polls cond until it succeeds or spec.Timeout elapses. Errors not ignored by spec
// abort the wait immediately and are returned unchanged. A nil engine is allowed.
func Until[T any](ctx context.Context, e *Engine, spec Spec, cond Condition[T]) (T, error) {
	var zero T
	if e == nil {
		e = nopEngine
	}
	if err := spec.Validate(); err != nil {
		return zero, err
	}

	interval := spec.interval()
	start := e.now()
	deadline := start.Add(spec.Timeout)

	// Bound individual polls so a hung call cannot outlive the wait by more than one interval.
	pollCtx, cancel := context.WithDeadline(ctx, deadline.Add(interval))
	defer cancel()

	timer := time.NewTimer(interval)
	timer.Stop()
	defer timer.Stop()

	var (
		lastValue T
		lastErr   error
		polls     int
	)
	for {
		if err := ctx.Err(); err != nil {
			e.finish("interrupted", start, polls)
			return zero, fault.Wrap(fault.KindFatal, err, "wait interrupted after %d polls", polls)
		}

		polls++
		v, ok, err := cond(pollCtx)
		switch {
		case err == nil && ok:
			e.finish("success", start, polls)
			return v, nil
		case err == nil:
			lastValue, lastErr = v, nil
		case spec.ignores(err):
			lastErr = err
		case pollCtx.Err() != nil && ctx.Err() == nil:
			// The poll itself ran into the wait's own deadline.
			lastErr = err
			return zero, e.timeout(spec, start, polls, lastValue, lastErr)
		default:
			e.finish("error", start, polls)
			e.logger.Debug("Wait aborted by unexpected error.", zap.Int("polls", polls), zap.Error(err))
			return zero, err
		}

		now := e.now()
		if !now.Before(deadline) {
			return zero, e.timeout(spec, start, polls, lastValue, lastErr)
		}
		pause := interval
		if remaining := deadline.Sub(now); remaining < pause {
			pause = remaining
		}
		timer.Reset(pause)
		select {
		case <-ctx.Done():
			e.finish("interrupted", start, polls)
			return zero, fault.Wrap(fault.KindFatal, ctx.Err(), "wait interrupted after %d polls", polls)
		case <-timer.C:
		}
	}
}

func (e *Engine) timeout(spec Spec, start time.Time, polls int, lastValue any, lastErr error) error {
	elapsed := e.finish("timeout", start, polls)
	e.logger.Debug("Wait timed out.",
		zap.Duration("timeout", spec.Timeout),
		zap.Duration("elapsed", elapsed),
		zap.Int("polls", polls),
		zap.NamedError("last_error", lastErr))
	return &TimeoutError{
		Timeout:   spec.Timeout,
		Elapsed:   elapsed,
		Polls:     polls,
		LastValue: lastValue,
		LastErr:   lastErr,
	}
}

func (e *Engine) finish(result string, start time.Time, polls int) time.Duration {
	elapsed := e.now().Sub(start)
	e.metrics.ObserveWait(result, elapsed, polls)
	return elapsed
}
