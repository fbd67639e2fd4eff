package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hookgate/hookgate/internal/observability"
)

// Collectors mirror the recorder into Prometheus. A nil *Collectors is valid
// and records nothing.
type Collectors struct {
	WebhooksReceived *prometheus.CounterVec
	WebhookLatency   *prometheus.HistogramVec
	RateLimited      *prometheus.CounterVec
}

// NewCollectors builds unregistered webhook collectors.
func NewCollectors() *Collectors {
	return &Collectors{
		WebhooksReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: observability.MetricsNamespace,
			Name:      "webhooks_received_total",
			Help:      "Webhooks received by integration type and outcome.",
		}, []string{"type", "outcome", "error_code"}),
		WebhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: observability.MetricsNamespace,
			Name:      "webhook_latency_ms",
			Help:      "Webhook pipeline latency in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"type"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: observability.MetricsNamespace,
			Name:      "rate_limited_total",
			Help:      "Webhooks denied by the rate limiter.",
		}, []string{"type"}),
	}
}

// Collectors lists the collectors for registration.
func (c *Collectors) Collectors() []prometheus.Collector {
	if c == nil {
		return nil
	}
	return []prometheus.Collector{c.WebhooksReceived, c.WebhookLatency, c.RateLimited}
}

func (c *Collectors) observeWebhook(integrationType string, success bool, latencyMs float64, errorCode string) {
	if c == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "error"
	}
	c.WebhooksReceived.WithLabelValues(integrationType, outcome, errorCode).Inc()
	c.WebhookLatency.WithLabelValues(integrationType).Observe(latencyMs)
}

func (c *Collectors) observeRateLimited(integrationType string) {
	if c == nil {
		return
	}
	c.RateLimited.WithLabelValues(integrationType).Inc()
}
