package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hookgate/hookgate/internal/observability"
)

// Application-level metrics following Prometheus conventions
var (
	// Health check metrics
	healthCheckTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: observability.MetricsNamespace,
		Name:      "health_check_total",
		Help:      "Health check executions by check and status.",
	}, []string{"check", "status"})

	healthCheckDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: observability.MetricsNamespace,
		Name:      "health_check_duration_ms",
		Help:      "Health check duration in milliseconds.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500},
	}, []string{"check"})

	// Server lifecycle metrics
	serverStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: observability.MetricsNamespace,
		Name:      "server_start_time_seconds",
		Help:      "Unix time the HTTP server started.",
	})
)

// AppCollectors lists the package-level collectors for registration.
func AppCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		errorsTotal,
		panicsTotal,
		errorsByEndpoint,
		healthCheckTotal,
		healthCheckDuration,
		serverStartTime,
	}
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	healthCheckTotal.WithLabelValues(checkName, status).Inc()
	healthCheckDuration.WithLabelValues(checkName).Observe(float64(duration) / float64(time.Millisecond))
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	serverStartTime.Set(float64(timestamp))
}
