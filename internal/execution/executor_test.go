// internal/execution/executor_test.go
package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/kwdriver/internal/fault"
	"github.com/xkilldash9x/kwdriver/internal/metrics"
	"github.com/xkilldash9x/kwdriver/internal/session"
	"github.com/xkilldash9x/kwdriver/internal/wait"
)

var clickGo = Diagnostics{Description: "click", Target: "#go"}

func newTestExecutor(t *testing.T, opts ...Option) (*Executor, *Recorder) {
	t.Helper()
	rec := &Recorder{}
	ex := NewExecutor(rec, zaptest.NewLogger(t), opts...)
	ex.newID = func() string { return "action-1" }
	return ex, rec
}

func phases(events []Event) []Phase {
	out := make([]Phase, 0, len(events))
	for _, e := range events {
		out = append(out, e.Phase)
	}
	return out
}

func succeed(context.Context) (string, error) { return "ok", nil }

func TestDo_Hard(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ex, rec := newTestExecutor(t)
		out, err := Do(context.Background(), ex, Hard, clickGo, succeed)

		require.NoError(t, err)
		assert.Equal(t, Outcome[string]{Succeeded: true, Value: "ok"}, out)

		want := []Event{
			{ActionID: "action-1", Phase: PhaseStart, Channel: Hard, Description: "click", Target: "#go"},
			{ActionID: "action-1", Phase: PhaseSuccess, Channel: Hard, Description: "click", Target: "#go"},
		}
		if diff := cmp.Diff(want, rec.Events(), cmpopts.IgnoreFields(Event{}, "Time", "Elapsed")); diff != "" {
			t.Errorf("events mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("failure", func(t *testing.T) {
		ex, rec := newTestExecutor(t)
		cause := &wait.TimeoutError{Timeout: 2 * time.Second, Polls: 5}
		_, err := Do(context.Background(), ex, Hard, clickGo, func(context.Context) (string, error) { return "", cause })

		var fe *fault.Error
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, fault.KindTimeout, fe.Kind)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "click (#go) failed", fe.Message)

		events := rec.Events()
		assert.Equal(t, []Phase{PhaseStart, PhaseFailure}, phases(events))
		assert.Equal(t, cause.Error(), events[1].Reason)
		assert.False(t, events[1].Negative)
	})
}

func TestDo_Soft(t *testing.T) {
	t.Run("success returns the value", func(t *testing.T) {
		ex, rec := newTestExecutor(t)
		out, err := Do(context.Background(), ex, Soft, clickGo, succeed)
		require.NoError(t, err)
		assert.True(t, out.Succeeded)
		assert.Equal(t, "ok", out.Value)
		assert.Equal(t, []Phase{PhaseStart, PhaseSuccess}, phases(rec.Events()))
	})

	failures := map[string]error{
		"ordinary":  errors.New("boom"),
		"transient": session.ErrNoSuchElement,
		"timeout":   &wait.TimeoutError{Timeout: time.Second},
		"fatal":     fault.New(fault.KindFatal, "target crashed"),
		"canceled":  context.Canceled,
	}
	for name, cause := range failures {
		t.Run("never raises on "+name, func(t *testing.T) {
			ex, rec := newTestExecutor(t)
			ok, err := Check(context.Background(), ex, Soft, clickGo, func(context.Context) error { return cause })

			require.NoError(t, err)
			assert.False(t, ok)
			events := rec.Events()
			require.Len(t, events, 2)
			assert.Equal(t, PhaseSuccess, events[1].Phase, "failures are reported success-shaped")
			assert.True(t, events[1].Negative)
			assert.Equal(t, cause.Error(), events[1].Reason)
		})
	}

	t.Run("validation still raises", func(t *testing.T) {
		ex, rec := newTestExecutor(t)
		ok, err := Check(context.Background(), ex, Soft, clickGo, func(context.Context) error {
			return fault.RequireNonEmpty("locator", "")
		})
		assert.False(t, ok)
		assert.True(t, fault.IsValidation(err))
		assert.Equal(t, []Phase{PhaseStart, PhaseFailure}, phases(rec.Events()))
	})
}

func TestDo_Silent(t *testing.T) {
	ex, rec := newTestExecutor(t)

	out, err := Do(context.Background(), ex, Silent, clickGo, succeed)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Value)

	cause := errors.New("boom")
	_, err = Do(context.Background(), ex, Silent, clickGo, func(context.Context) (string, error) { return "", cause })
	var fe *fault.Error
	require.ErrorAs(t, err, &fe)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, fault.KindFatal, fe.Kind)

	assert.Empty(t, rec.Events(), "silent emits no events")
}

func TestDo_SameOperationAcrossChannels(t *testing.T) {
	calls := 0
	op := func(context.Context) error {
		calls++
		return nil
	}
	for _, ch := range []Channel{Hard, Soft, Silent} {
		ok, err := Check(context.Background(), nil, ch, clickGo, op)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 3, calls)
}

func TestDo_TracingAndMetrics(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	m := metrics.New(prometheus.NewRegistry())
	ex, _ := newTestExecutor(t, WithTracer(tp.Tracer("test")), WithMetrics(m))

	_, _ = Check(context.Background(), ex, Hard, clickGo, func(context.Context) error { return nil })
	_, _ = Check(context.Background(), ex, Soft, clickGo, func(context.Context) error { return errors.New("boom") })

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "action click", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Actions.WithLabelValues("hard", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Actions.WithLabelValues("soft", "negative")))
}

func TestMultiReporter(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	var seen []Phase
	MultiReporter{a, nil, b, ReporterFunc(func(e Event) { seen = append(seen, e.Phase) })}.Report(Event{Phase: PhaseStart})

	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
	assert.Equal(t, []Phase{PhaseStart}, seen)
}

func TestParseChannel(t *testing.T) {
	for in, want := range map[string]Channel{"": Hard, "HARD": Hard, " soft ": Soft, "silent": Silent} {
		got, err := ParseChannel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseChannel("loud")
	assert.True(t, fault.IsValidation(err))

	var c Channel
	require.NoError(t, c.UnmarshalText([]byte("soft")))
	assert.Equal(t, Soft, c)
	b, _ := Silent.MarshalText()
	assert.Equal(t, "silent", string(b))
}
