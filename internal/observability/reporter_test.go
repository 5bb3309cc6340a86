// File: internal/observability/reporter_test.go
package observability

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/kwdriver/internal/execution"
)

func TestEventReporter(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := NewEventReporter(zap.New(core))

	base := execution.Event{ActionID: "a1", Channel: execution.Soft, Description: "verify visible", Target: "#banner"}
	start, ok, negative, failed := base, base, base, base
	start.Phase = execution.PhaseStart
	ok.Phase, ok.Elapsed = execution.PhaseSuccess, 120*time.Millisecond
	negative.Phase, negative.Negative, negative.Reason = execution.PhaseSuccess, true, "not visible"
	failed.Phase, failed.Reason = execution.PhaseFailure, "timeout"

	for _, e := range []execution.Event{start, ok, negative, failed} {
		r.Report(e)
	}

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)
	assert.Equal(t, "verify visible started", entries[0].Message)
	assert.Equal(t, "verify visible succeeded", entries[1].Message)
	assert.Equal(t, "verify visible returned a negative result", entries[2].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[2].Level)
	assert.Equal(t, "verify visible failed", entries[3].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[3].Level)
	assert.Equal(t, "report", entries[3].LoggerName)
	assert.Equal(t, "timeout", entries[3].ContextMap()["reason"])
	assert.Equal(t, "soft", entries[3].ContextMap()["channel"])
}

func TestInitTracing(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	var buf bytes.Buffer
	shutdown, err := InitTracing(&buf, "kwdriver-test", "dev")
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "action click")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), `"Name":"action click"`)
	assert.Contains(t, buf.String(), "kwdriver-test")
}
