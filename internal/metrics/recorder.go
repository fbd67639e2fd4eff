package metrics

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hookgate/hookgate/internal/observability"
)

const (
	// DefaultIntegrationTTL is how long a per-integration scope survives without events.
	DefaultIntegrationTTL = 24 * time.Hour
	// DefaultSweepInterval is how often idle per-integration scopes are purged.
	DefaultSweepInterval = time.Hour
)

// Health classifies the global error rate.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
)

// IntegrationMetrics are the counters of one scope.
type IntegrationMetrics struct {
	TotalReceived    int64
	TotalSuccess     int64
	TotalErrors      int64
	LastReceived     *time.Time
	LastSuccess      *time.Time
	LastError        *time.Time
	AverageLatencyMs float64
	LatencySamples   int64
}

func (m *IntegrationMetrics) record(success bool, latencyMs float64, now time.Time) {
	m.TotalReceived++
	m.LastReceived = &now

	n := float64(m.LatencySamples)
	m.AverageLatencyMs = (m.AverageLatencyMs*n + latencyMs) / (n + 1)
	m.LatencySamples++

	if success {
		m.TotalSuccess++
		m.LastSuccess = &now
	} else {
		m.TotalErrors++
		m.LastError = &now
	}
}

// Summary is a consistent view over every scope.
type Summary struct {
	Global       IntegrationMetrics
	ByType       map[string]IntegrationMetrics
	ErrorRate    float64
	Health       Health
	Integrations int
}

// Recorder tracks webhook outcomes by integration type, by integration id and
// globally. One event updates all three scopes under a single lock.
type Recorder struct {
	Clock  func() time.Time
	Logger observability.Logger
	Prom   *Collectors

	SweepInterval  time.Duration
	IntegrationTTL time.Duration

	mu            sync.RWMutex
	byType        map[string]*IntegrationMetrics
	byIntegration map[string]*IntegrationMetrics
	global        IntegrationMetrics

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewRecorder returns an empty recorder. The zero value is also usable.
func NewRecorder() *Recorder {
	return &Recorder{
		SweepInterval:  DefaultSweepInterval,
		IntegrationTTL: DefaultIntegrationTTL,
	}
}

// RecordWebhookReceived records one terminal webhook outcome.
func (r *Recorder) RecordWebhookReceived(integrationType, integrationID string, success bool, latencyMs float64, errorCode string) {
	now := r.now()

	r.mu.Lock()
	if r.byType == nil {
		r.byType = make(map[string]*IntegrationMetrics)
	}
	if r.byIntegration == nil {
		r.byIntegration = make(map[string]*IntegrationMetrics)
	}
	typeScope, ok := r.byType[integrationType]
	if !ok {
		typeScope = &IntegrationMetrics{}
		r.byType[integrationType] = typeScope
	}
	idScope, ok := r.byIntegration[integrationID]
	if !ok {
		idScope = &IntegrationMetrics{}
		r.byIntegration[integrationID] = idScope
	}
	typeScope.record(success, latencyMs, now)
	idScope.record(success, latencyMs, now)
	r.global.record(success, latencyMs, now)
	r.mu.Unlock()

	r.Prom.observeWebhook(integrationType, success, latencyMs, errorCode)

	r.logger().Info("integration.webhook_received",
		zap.String("integration_type", integrationType),
		zap.String("integration_id", integrationID),
		zap.Bool("success", success),
		zap.Float64("latency_ms", round2(latencyMs)),
		zap.String("error_code", errorCode))
}

// RecordRateLimited counts a request denied by the rate limiter.
func (r *Recorder) RecordRateLimited(integrationType string) {
	r.Prom.observeRateLimited(integrationType)
}

// ByType returns the scope for an integration type, zero when unseen.
func (r *Recorder) ByType(integrationType string) IntegrationMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.byType[integrationType]; ok {
		return *m
	}
	return IntegrationMetrics{}
}

// ByIntegration returns the scope for an integration id, zero when unseen.
func (r *Recorder) ByIntegration(integrationID string) IntegrationMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.byIntegration[integrationID]; ok {
		return *m
	}
	return IntegrationMetrics{}
}

// AllByType copies every type scope.
func (r *Recorder) AllByType() map[string]IntegrationMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyScopes(r.byType)
}

// Global returns the global scope.
func (r *Recorder) Global() IntegrationMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.global
}

// Summary computes the error rate and health over the global scope.
func (r *Recorder) Summary() Summary {
	r.mu.RLock()
	global := r.global
	byType := copyScopes(r.byType)
	integrations := len(r.byIntegration)
	r.mu.RUnlock()

	var errorRate float64
	if global.TotalReceived > 0 {
		errorRate = float64(global.TotalErrors) * 100 / float64(global.TotalReceived)
	}

	return Summary{
		Global:       global,
		ByType:       byType,
		ErrorRate:    round2(errorRate),
		Health:       classify(errorRate),
		Integrations: integrations,
	}
}

// Reset clears every scope.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType = nil
	r.byIntegration = nil
	r.global = IntegrationMetrics{}
}

// ResetIntegration clears the scope of one integration id.
func (r *Recorder) ResetIntegration(integrationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byIntegration, integrationID)
}

// Sweep purges per-integration scopes with no events within IntegrationTTL.
func (r *Recorder) Sweep() int {
	ttl := r.IntegrationTTL
	if ttl <= 0 {
		ttl = DefaultIntegrationTTL
	}
	cutoff := r.now().Add(-ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, m := range r.byIntegration {
		if m.LastReceived == nil || m.LastReceived.Before(cutoff) {
			delete(r.byIntegration, id)
			removed++
		}
	}
	return removed
}

// Init starts the hourly sweep. Calling it again while running is a no-op.
func (r *Recorder) Init(ctx context.Context) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	if r.cancel != nil {
		return
	}

	interval := r.SweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel, r.done = cancel, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if removed := r.Sweep(); removed > 0 {
					r.logger().Debug("integration.metrics_sweep", zap.Int("removed", removed))
				}
			}
		}
	}()
}

// Shutdown stops the sweep and waits for it to exit.
func (r *Recorder) Shutdown() {
	r.lifecycle.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.lifecycle.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func classify(errorRate float64) Health {
	switch {
	case errorRate > 25:
		return HealthUnhealthy
	case errorRate > 10:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}

func copyScopes(in map[string]*IntegrationMetrics) map[string]IntegrationMetrics {
	out := make(map[string]IntegrationMetrics, len(in))
	for k, v := range in {
		out[k] = *v
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (r *Recorder) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}

func (r *Recorder) logger() observability.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return observability.Server()
}
