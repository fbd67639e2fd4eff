// Package ratelimit implements per-integration token bucket admission control.
package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hookgate/hookgate/internal/observability"
)

const (
	// DefaultSweepInterval is how often idle buckets are purged.
	DefaultSweepInterval = 5 * time.Minute
	// DefaultIdleTTL is how long a bucket may go unused before it is purged.
	DefaultIdleTTL = 10 * time.Minute
)

// Config is the token bucket shape shared by every integration.
type Config struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
	BurstLimit  int           `mapstructure:"burst_limit"`
}

// DefaultConfig refills 100 tokens per minute with a burst of 20.
func DefaultConfig() Config {
	return Config{MaxRequests: 100, Window: time.Minute, BurstLimit: 20}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.MaxRequests <= 0 {
		c.MaxRequests = d.MaxRequests
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.BurstLimit <= 0 {
		c.BurstLimit = d.BurstLimit
	}
	return c
}

// ratePerMs is the refill rate in tokens per millisecond.
func (c Config) ratePerMs() float64 {
	return float64(c.MaxRequests) / float64(c.Window.Milliseconds())
}

// Result is the admission decision for one request.
type Result struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"resetAt"`
	RetryAfter int       `json:"retryAfter,omitempty"`
}

// Limiter applies the token bucket to ids held in a Store.
type Limiter struct {
	Store  Store
	Config Config
	Clock  func() time.Time
	Logger observability.Logger

	SweepInterval time.Duration
	IdleTTL       time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool

	fallbackOnce sync.Once
	fallback     Store
}

// NewLimiter returns a limiter over store. A nil store gets a MemoryStore.
func NewLimiter(store Store, cfg Config) *Limiter {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Limiter{
		Store:         store,
		Config:        cfg.normalized(),
		SweepInterval: DefaultSweepInterval,
		IdleTTL:       DefaultIdleTTL,
	}
}

// Check refills the bucket for id and consumes one token when available.
func (l *Limiter) Check(ctx context.Context, id string) (Result, error) {
	cfg := l.Config.normalized()
	now := l.now()
	var result Result

	entry, err := l.store().Update(ctx, id, func(entry Entry, found bool) Entry {
		if !found {
			entry = Entry{Tokens: float64(cfg.BurstLimit), LastRefill: now, WindowStart: now}
		}
		entry = refill(entry, cfg, now)

		if now.Sub(entry.WindowStart) >= cfg.Window {
			entry.WindowStart = now
			entry.RequestCount = 0
		}

		result = Result{Limit: cfg.MaxRequests, ResetAt: entry.WindowStart.Add(cfg.Window)}
		if entry.Tokens >= 1 {
			entry.Tokens--
			entry.RequestCount++
			result.Allowed = true
			result.Remaining = int(math.Floor(entry.Tokens))
			return entry
		}

		retryAfterMs := (1 - entry.Tokens) / cfg.ratePerMs()
		result.RetryAfter = int(math.Ceil(retryAfterMs / 1000))
		return entry
	})
	if err != nil {
		return Result{}, err
	}

	if !result.Allowed {
		l.logger().Warn("integration.rate_limited",
			zap.String("integration_id", id),
			zap.Int("request_count", entry.RequestCount),
			zap.Int("remaining", 0),
			zap.Int("retry_after", result.RetryAfter))
	}
	return result, nil
}

// Status reports the bucket for id without consuming a token.
func (l *Limiter) Status(ctx context.Context, id string) (Result, error) {
	cfg := l.Config.normalized()
	now := l.now()

	entry, found, err := l.store().Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return Result{
			Allowed:   true,
			Limit:     cfg.MaxRequests,
			Remaining: cfg.BurstLimit,
			ResetAt:   now.Add(cfg.Window),
		}, nil
	}

	entry = refill(entry, cfg, now)
	return Result{
		Allowed:   entry.Tokens >= 1,
		Limit:     cfg.MaxRequests,
		Remaining: int(math.Floor(entry.Tokens)),
		ResetAt:   entry.WindowStart.Add(cfg.Window),
	}, nil
}

// Reset forgets the bucket for id.
func (l *Limiter) Reset(ctx context.Context, id string) error {
	return l.store().Delete(ctx, id)
}

// ResetAll forgets every bucket.
func (l *Limiter) ResetAll(ctx context.Context) error {
	return l.store().Clear(ctx)
}

// Snapshot copies every bucket currently tracked.
func (l *Limiter) Snapshot(ctx context.Context) (map[string]Entry, error) {
	out := make(map[string]Entry)
	err := l.store().Range(ctx, func(id string, entry Entry) bool {
		out[id] = entry
		return true
	})
	return out, err
}

// Sweep purges buckets idle longer than IdleTTL.
func (l *Limiter) Sweep(ctx context.Context) (int, error) {
	ttl := l.IdleTTL
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	return l.store().Sweep(ctx, l.now().Add(-ttl))
}

// Init starts the background sweep. It is a no-op when already running.
func (l *Limiter) Init(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return
	}

	interval := l.SweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	l.started = true

	go l.sweepLoop(sweepCtx, interval, l.done)
}

// Shutdown stops the background sweep and waits for it to exit.
func (l *Limiter) Shutdown() {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return
	}
	cancel, done := l.cancel, l.done
	l.started = false
	l.mu.Unlock()

	cancel()
	<-done
}

func (l *Limiter) sweepLoop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := l.Sweep(ctx)
			if err != nil {
				l.logger().Warn("integration.rate_limit_sweep_failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				l.logger().Debug("integration.rate_limit_sweep", zap.Int("removed", removed))
			}
		}
	}
}

// Headers renders rate limit response headers for result.
func Headers(result Result) http.Header {
	h := http.Header{}
	if result.Limit > 0 {
		h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	}
	h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(ceilUnix(result.ResetAt), 10))
	if !result.Allowed && result.RetryAfter > 0 {
		h.Set("Retry-After", strconv.Itoa(result.RetryAfter))
	}
	return h
}

func ceilUnix(t time.Time) int64 {
	ms := t.UnixMilli()
	secs := ms / 1000
	if ms%1000 != 0 {
		secs++
	}
	return secs
}

func refill(entry Entry, cfg Config, now time.Time) Entry {
	elapsedMs := float64(now.Sub(entry.LastRefill)) / float64(time.Millisecond)
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	entry.Tokens = math.Min(float64(cfg.BurstLimit), entry.Tokens+elapsedMs*cfg.ratePerMs())
	if entry.Tokens < 0 {
		entry.Tokens = 0
	}
	entry.LastRefill = now
	return entry
}

// store falls back to a private MemoryStore when Store is unset, so the
// zero Limiter works.
func (l *Limiter) store() Store {
	if l.Store != nil {
		return l.Store
	}
	l.fallbackOnce.Do(func() { l.fallback = NewMemoryStore() })
	return l.fallback
}

func (l *Limiter) now() time.Time {
	if l != nil && l.Clock != nil {
		return l.Clock()
	}
	return time.Now().UTC()
}

func (l *Limiter) logger() observability.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return zap.NewNop()
}
