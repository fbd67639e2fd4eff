package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRecorderSuccessRate(t *testing.T) {
	r := NewRecorder()
	r.Logger = zap.NewNop()

	r.RecordWebhookReceived("github", "int-1", true, 10, "")
	r.RecordWebhookReceived("github", "int-1", true, 10, "")
	r.RecordWebhookReceived("github", "int-1", true, 10, "")
	r.RecordWebhookReceived("github", "int-1", false, 10, "INVALID_SIGNATURE")

	s := Serialize(r.ByIntegration("int-1"))
	assert.Equal(t, int64(4), s.TotalReceived)
	assert.Equal(t, int64(3), s.TotalSuccess)
	assert.Equal(t, int64(1), s.TotalErrors)
	assert.InDelta(t, 75.0, s.SuccessRate, 1e-9)
}

func TestZeroValueRecorder(t *testing.T) {
	var r Recorder
	r.Logger = zap.NewNop()

	assert.Equal(t, IntegrationMetrics{}, r.ByType("github"))
	require.NotPanics(t, func() {
		r.RecordWebhookReceived("github", "int-1", true, 5, "")
		r.RecordWebhookReceived("github", "int-1", false, 5, "UNAUTHORIZED")
	})
	assert.Equal(t, int64(2), r.ByIntegration("int-1").TotalReceived)
	assert.Equal(t, int64(1), r.ByType("github").TotalErrors)
	assert.Equal(t, 1, r.Summary().Integrations)

	r.Reset()
	require.NotPanics(t, func() { r.RecordWebhookReceived("gitlab", "int-2", true, 1, "") })
	assert.Equal(t, int64(1), r.Global().TotalReceived)
	assert.Len(t, r.AllByType(), 1)
}

func TestRecorderAverageLatency(t *testing.T) {
	r := NewRecorder()
	r.Logger = zap.NewNop()

	for _, latency := range []float64{100, 200, 300} {
		r.RecordWebhookReceived("grafana", "int-2", true, latency, "")
	}

	assert.InDelta(t, 200.0, r.ByIntegration("int-2").AverageLatencyMs, 1e-9)
	assert.InDelta(t, 200.0, r.ByType("grafana").AverageLatencyMs, 1e-9)
	assert.InDelta(t, 200.0, r.Global().AverageLatencyMs, 1e-9)
	assert.Equal(t, int64(3), r.Global().LatencySamples)
}

func TestRecorderScopesAreIndependent(t *testing.T) {
	r := NewRecorder()
	r.Logger = zap.NewNop()

	r.RecordWebhookReceived("github", "a", true, 1, "")
	r.RecordWebhookReceived("github", "b", false, 1, "RATE_LIMITED")
	r.RecordWebhookReceived("sentry", "c", true, 1, "")

	assert.Equal(t, int64(2), r.ByType("github").TotalReceived)
	assert.Equal(t, int64(1), r.ByType("sentry").TotalReceived)
	assert.Equal(t, int64(1), r.ByIntegration("b").TotalErrors)
	assert.Equal(t, int64(3), r.Global().TotalReceived)
	assert.Len(t, r.AllByType(), 2)
	assert.Zero(t, r.ByType("datadog").TotalReceived)
}

func TestRecorderSummaryHealth(t *testing.T) {
	tests := []struct {
		name      string
		successes int
		failures  int
		want      Health
		rate      float64
	}{
		{name: "no traffic", want: HealthHealthy},
		{name: "ten percent", successes: 9, failures: 1, want: HealthHealthy, rate: 10},
		{name: "degraded", successes: 8, failures: 2, want: HealthDegraded, rate: 20},
		{name: "twenty five percent", successes: 3, failures: 1, want: HealthDegraded, rate: 25},
		{name: "unhealthy", successes: 2, failures: 1, want: HealthUnhealthy, rate: 33.33},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecorder()
			r.Logger = zap.NewNop()
			for i := 0; i < tt.successes; i++ {
				r.RecordWebhookReceived("webhook", "id", true, 1, "")
			}
			for i := 0; i < tt.failures; i++ {
				r.RecordWebhookReceived("webhook", "id", false, 1, "INTERNAL_ERROR")
			}

			summary := r.Summary()
			assert.Equal(t, tt.want, summary.Health)
			assert.InDelta(t, tt.rate, summary.ErrorRate, 1e-9)
		})
	}
}

func TestSerializeEmptyAndTimestamps(t *testing.T) {
	empty := Serialize(IntegrationMetrics{})
	assert.Equal(t, 100.0, empty.SuccessRate)
	assert.Nil(t, empty.LastReceived)
	assert.Nil(t, empty.LastError)

	at := time.Date(2025, 3, 4, 5, 6, 7, 891_000_000, time.UTC)
	r := NewRecorder()
	r.Logger = zap.NewNop()
	r.Clock = fixedClock(at)
	r.RecordWebhookReceived("github", "x", true, 12.3456, "")

	s := Serialize(r.ByIntegration("x"))
	require.NotNil(t, s.LastReceived)
	assert.Equal(t, "2025-03-04T05:06:07.891Z", *s.LastReceived)
	assert.Equal(t, *s.LastReceived, *s.LastSuccess)
	assert.Nil(t, s.LastError)
	assert.Equal(t, 12.35, s.AverageLatencyMs)

	view := r.Summary().View()
	assert.Equal(t, int64(1), view.ByType["github"].TotalReceived)
	assert.Equal(t, 1, view.Integrations)
}

func TestRecorderResetAndSweep(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	r := NewRecorder()
	r.Logger = zap.NewNop()
	r.Clock = func() time.Time { return now }

	r.RecordWebhookReceived("github", "stale", true, 1, "")
	now = start.Add(23 * time.Hour)
	r.RecordWebhookReceived("github", "fresh", true, 1, "")
	now = start.Add(25 * time.Hour)

	assert.Equal(t, 1, r.Sweep())
	assert.Zero(t, r.ByIntegration("stale").TotalReceived)
	assert.Equal(t, int64(1), r.ByIntegration("fresh").TotalReceived)
	assert.Equal(t, int64(2), r.ByType("github").TotalReceived, "type scope outlives the sweep")

	r.ResetIntegration("fresh")
	assert.Zero(t, r.ByIntegration("fresh").TotalReceived)
	assert.Equal(t, int64(2), r.Global().TotalReceived)

	r.Reset()
	assert.Zero(t, r.Global().TotalReceived)
	assert.Empty(t, r.AllByType())
}

func TestRecorderConcurrentReadersSeeConsistentScopes(t *testing.T) {
	r := NewRecorder()
	r.Logger = zap.NewNop()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.RecordWebhookReceived("github", "int-1", true, 5, "")
		}()
		go func() {
			defer wg.Done()
			s := r.Summary()
			total := int64(0)
			for _, m := range s.ByType {
				total += m.TotalReceived
			}
			assert.Equal(t, s.Global.TotalReceived, total)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), r.Global().TotalReceived)
}

func TestRecorderLogsAndMirrorsToPrometheus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := NewRecorder()
	r.Logger = zap.New(core)
	r.Prom = NewCollectors()

	reg := prometheus.NewRegistry()
	for _, c := range r.Prom.Collectors() {
		require.NoError(t, reg.Register(c))
	}

	r.RecordWebhookReceived("github", "int-1", true, 42, "")
	r.RecordWebhookReceived("github", "int-1", false, 8, "UNAUTHORIZED")
	r.RecordRateLimited("github")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Prom.WebhooksReceived.WithLabelValues("github", "success", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Prom.WebhooksReceived.WithLabelValues("github", "error", "UNAUTHORIZED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Prom.RateLimited.WithLabelValues("github")))

	entries := logs.FilterMessage("integration.webhook_received").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "int-1", entries[0].ContextMap()["integration_id"])
	assert.Equal(t, "UNAUTHORIZED", entries[1].ContextMap()["error_code"])
}

func TestRecorderLifecycle(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := start

	r := NewRecorder()
	r.Logger = zap.NewNop()
	r.SweepInterval = 5 * time.Millisecond
	r.Clock = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	r.RecordWebhookReceived("github", "old", true, 1, "")
	mu.Lock()
	now = start.Add(48 * time.Hour)
	mu.Unlock()

	r.Init(context.Background())
	r.Init(context.Background())
	require.Eventually(t, func() bool {
		return r.Summary().Integrations == 0
	}, time.Second, 5*time.Millisecond)

	r.Shutdown()
	r.Shutdown()
}

func TestAppCollectorsRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	for _, c := range AppCollectors() {
		require.NoError(t, reg.Register(c))
	}

	before := testutil.ToFloat64(panicsTotal)
	RecordPanic()
	RecordError("NOT_FOUND", 404)
	RecordErrorByEndpoint("/api/integrations/{provider}", "NOT_FOUND")
	RecordHealthCheck("store", true, 2*time.Millisecond)
	SetServerStartTime(1700000000)

	assert.Equal(t, before+1, testutil.ToFloat64(panicsTotal))
	assert.GreaterOrEqual(t, testutil.ToFloat64(errorsTotal.WithLabelValues("NOT_FOUND", "404")), 1.0)
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(serverStartTime))
}
