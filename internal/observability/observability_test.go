package observability_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/hookgate/hookgate/internal/observability"
)

func TestLoggers(t *testing.T) {
	t.Run("ServerFallsBackToNop", func(t *testing.T) {
		original := observability.ServerLogger
		observability.ServerLogger = nil
		t.Cleanup(func() { observability.ServerLogger = original })

		logger := observability.Server()
		require.NotNil(t, logger)
		logger.Info("dropped", zap.String("k", "v"))
	})

	t.Run("StructuredServerLogger", func(t *testing.T) {
		original := observability.ServerLogger
		t.Cleanup(func() { observability.ServerLogger = original })

		observability.InitServerLogger("hookgate-test", "debug", "test", "hookgate")
		require.NotNil(t, observability.ServerLogger)
		observability.Server().Info("structured log line",
			zap.String("component", "test"),
			zap.Int("attempt", 1))
	})

	t.Run("CLILogger", func(t *testing.T) {
		observability.InitCLILogger("hookgate-test", true)
		require.NotNil(t, observability.CLILogger)
		observability.CLILogger.Debug("verbose line", zap.String("mode", "verbose"))
	})
}

func TestInitMetricsServesHTTPCollectors(t *testing.T) {
	originalRegistry, originalHTTP := observability.Registry, observability.HTTP
	t.Cleanup(func() {
		observability.Registry = originalRegistry
		observability.HTTP = originalHTTP
	})

	require.NoError(t, observability.InitMetrics())
	require.NotNil(t, observability.HTTP)

	observability.HTTP.RequestsTotal.WithLabelValues("POST", "/api/integrations/github", "202").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	observability.MetricsHandler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "hookgate_http_requests_total")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestRegisterToleratesDuplicates(t *testing.T) {
	reg := observability.NewHTTPCollectors()
	registry := prometheus.NewRegistry()
	require.NoError(t, observability.Register(registry, reg.Collectors()...))
	require.NoError(t, observability.Register(registry, reg.Collectors()...))
}

func TestTraceIDWithoutSpan(t *testing.T) {
	assert.Empty(t, observability.TraceID(context.Background()))

	ctx, span := observability.Tracer().Start(context.Background(), "noop")
	defer span.End()
	assert.Empty(t, observability.TraceID(ctx), "global no-op provider yields no trace id")
}

func restoreNoopTracing(t *testing.T) {
	t.Helper()
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })
}

func TestInitTracingExportsSpans(t *testing.T) {
	restoreNoopTracing(t)

	var buf bytes.Buffer
	shutdown, err := observability.InitTracing(observability.TracingOptions{
		ServiceName: "hookgate-test",
		Version:     "1.2.3",
		Exporter:    "stdout",
		SampleRatio: 1,
		Writer:      &buf,
	})
	require.NoError(t, err)

	ctx, span := observability.Tracer().Start(context.Background(), "integration.webhook")
	span.SetAttributes(attribute.String("integration.type", "github"))
	traceID := observability.TraceID(ctx)
	span.End()

	assert.Len(t, traceID, 32)
	require.NoError(t, shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "integration.webhook")
	assert.Contains(t, out, traceID)
	assert.Contains(t, out, "hookgate-test")
	assert.Contains(t, out, "github")
}

func TestTracingSampleRatioZeroExportsNothing(t *testing.T) {
	restoreNoopTracing(t)

	var buf bytes.Buffer
	shutdown, err := observability.InitTracing(observability.TracingOptions{ServiceName: "hookgate-test", Writer: &buf})
	require.NoError(t, err)

	ctx, span := observability.Tracer().Start(context.Background(), "dropped")
	assert.NotEmpty(t, observability.TraceID(ctx), "unsampled spans still carry a trace id")
	assert.False(t, span.SpanContext().IsSampled())
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Empty(t, buf.String())
}

func TestNewTracerProviderExporters(t *testing.T) {
	tp, err := observability.NewTracerProvider(observability.TracingOptions{Exporter: "none", SampleRatio: 1})
	require.NoError(t, err)
	require.NoError(t, tp.Shutdown(context.Background()))

	_, err = observability.NewTracerProvider(observability.TracingOptions{Exporter: "zipkin"})
	assert.Error(t, err)
}
