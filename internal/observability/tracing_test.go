// File: internal/observability/tracing_test.go
package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracing_ExportsOnShutdown(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	var buf bytes.Buffer
	shutdown, err := InitTracing(&buf, "kwdriver-test", "1.2.3")
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "action click")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name":"action click"`)
	assert.Contains(t, buf.String(), "kwdriver-test")
}
