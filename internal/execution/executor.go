// internal/execution/executor.go
// Package execution turns any fallible operation into one of three observable behaviors
// (hard, soft or silent) so keywords share one dispatcher instead of hand-written variants.
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xkilldash9x/kwdriver/internal/fault"
	"github.com/xkilldash9x/kwdriver/internal/metrics"
)

const tracerName = "github.com/xkilldash9x/kwdriver/internal/execution"

// Outcome is the result of one action. Reason holds the failure message when Succeeded is
// false; Value holds whatever the operation produced, which may be the zero value.
type Outcome[T any] struct {
	Succeeded bool
	Value     T
	Reason    string
}

// Executor dispatches actions to their failure channel.
type Executor struct {
	reporter Reporter
	logger   *zap.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	now      func() time.Time
	newID    func() string
}

// Option configures an Executor.
type Option func(*Executor)

// WithMetrics counts actions per channel and result.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Executor) { e.metrics = m } }

// WithTracer records each action as a span. The default is the global otel tracer.
func WithTracer(t trace.Tracer) Option { return func(e *Executor) { e.tracer = t } }

// NewExecutor creates an Executor reporting to reporter. reporter and logger may be nil.
func NewExecutor(reporter Reporter, logger *zap.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		reporter: reporter,
		logger:   logger.Named("execution"),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var nopExecutor = NewExecutor(nil, nil)

func (d Diagnostics) String() string {
	if d.Target == "" {
		return d.Description
	}
	return fmt.Sprintf("%s (%s)", d.Description, d.Target)
}

// Do runs op on the given channel.
//
//   - Hard emits start, then success or failure; failures return a *fault.Error.
//   - Soft emits start, then success; a failure is reported as a negative success-shaped
//     event and returned as an unsuccessful Outcome with a nil error. Validation errors
//     still return an error.
//   - Silent emits nothing; failures return a *fault.Error.
func Do[T any](ctx context.Context, ex *Executor, ch Channel, diag Diagnostics, op func(ctx context.Context) (T, error)) (Outcome[T], error) {
	if ex == nil {
		ex = nopExecutor
	}
	id := ex.newID()
	ctx, span := ex.tracer.Start(ctx, "action "+diag.Description, trace.WithAttributes(
		attribute.String("kwdriver.action.id", id),
		attribute.String("kwdriver.action.channel", ch.String()),
		attribute.String("kwdriver.action.target", diag.Target),
	))
	defer span.End()

	start := ex.now()
	ex.emit(ch, Event{ActionID: id, Phase: PhaseStart, Channel: ch, Description: diag.Description, Target: diag.Target, Time: start})

	v, err := op(ctx)
	end := ex.now()
	done := Event{ActionID: id, Channel: ch, Description: diag.Description, Target: diag.Target, Elapsed: end.Sub(start), Time: end}

	if err == nil {
		span.SetStatus(codes.Ok, "")
		ex.metrics.ObserveAction(ch.String(), "success")
		done.Phase = PhaseSuccess
		ex.emit(ch, done)
		return Outcome[T]{Succeeded: true, Value: v}, nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("kwdriver.error.kind", fault.KindOf(err).String()))
	out := Outcome[T]{Value: v, Reason: err.Error()}
	done.Reason = out.Reason

	if ch == Soft && !fault.IsValidation(err) {
		ex.metrics.ObserveAction(ch.String(), "negative")
		done.Phase = PhaseSuccess
		done.Negative = true
		ex.emit(ch, done)
		return out, nil
	}

	ex.metrics.ObserveAction(ch.String(), "failure")
	ex.logger.Debug("Action failed.",
		zap.String("action_id", id),
		zap.Stringer("channel", ch),
		zap.Stringer("kind", fault.KindOf(err)),
		zap.Error(err))
	done.Phase = PhaseFailure
	ex.emit(ch, done)
	return out, fault.Normalize(err, "%s failed", diag)
}

// Check runs an operation that produces no value and reports whether it succeeded.
func Check(ctx context.Context, ex *Executor, ch Channel, diag Diagnostics, op func(ctx context.Context) error) (bool, error) {
	out, err := Do(ctx, ex, ch, diag, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return out.Succeeded, err
}

func (ex *Executor) emit(ch Channel, e Event) {
	if ch == Silent || ex.reporter == nil {
		return
	}
	ex.reporter.Report(e)
}
