package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "hookgate"

var (
	// Registry is the process metrics registry served on /metrics.
	Registry *prometheus.Registry

	// HTTP holds the request-level collectors used by the server middleware.
	HTTP *HTTPCollectors
)

// HTTPCollectors are the per-request HTTP metrics.
type HTTPCollectors struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec
	ErrorsTotal     *prometheus.CounterVec
}

// NewHTTPCollectors builds unregistered HTTP collectors.
func NewHTTPCollectors() *HTTPCollectors {
	sizeBuckets := prometheus.ExponentialBuckets(128, 4, 8)
	return &HTTPCollectors{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, endpoint and status.",
		}, []string{"method", "endpoint", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "HTTP request duration in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"method", "endpoint", "status"}),
		RequestSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: "http",
			Name:      "request_size_bytes",
			Help:      "HTTP request body size.",
			Buckets:   sizeBuckets,
		}, []string{"method", "endpoint"}),
		ResponseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "HTTP response body size.",
			Buckets:   sizeBuckets,
		}, []string{"method", "endpoint"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "HTTP responses with status >= 400.",
		}, []string{"method", "endpoint", "status", "error_type"}),
	}
}

// Collectors lists the HTTP collectors for registration.
func (c *HTTPCollectors) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.RequestsTotal,
		c.RequestDuration,
		c.RequestSize,
		c.ResponseSize,
		c.ErrorsTotal,
	}
}

// Register registers collectors, ignoring ones that are already registered.
func Register(registerer prometheus.Registerer, cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

// InitMetrics creates the process registry with runtime collectors, the HTTP
// collectors and any extra collectors supplied by the caller.
func InitMetrics(extra ...prometheus.Collector) error {
	reg := prometheus.NewRegistry()
	httpCollectors := NewHTTPCollectors()

	base := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: MetricsNamespace}),
	}
	base = append(base, httpCollectors.Collectors()...)
	base = append(base, extra...)

	if err := Register(reg, base...); err != nil {
		return err
	}

	Registry = reg
	HTTP = httpCollectors
	return nil
}

// MetricsHandler serves the registry in the Prometheus exposition format.
func MetricsHandler() http.Handler {
	if Registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
