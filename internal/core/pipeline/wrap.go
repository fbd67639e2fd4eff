package pipeline

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hookgate/hookgate/internal/core"
	"github.com/hookgate/hookgate/internal/core/ratelimit"
	ierrors "github.com/hookgate/hookgate/internal/errors"
	"github.com/hookgate/hookgate/internal/observability"
)

// unknownIntegration keys requests that arrive without an integrationId.
const unknownIntegration = "unknown"

// WithMiddleware applies only rate limiting and metrics around an existing
// handler. Routes with their own parsing, like SNS deliveries, use it instead
// of NewHandler.
func WithMiddleware(deps Deps, integrationType core.IntegrationType, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		typ := string(integrationType)
		id := strings.TrimSpace(r.URL.Query().Get(QueryIntegrationID))
		if id == "" {
			id = unknownIntegration
		}

		record := func(success bool, code string) {
			if deps.Metrics == nil {
				return
			}
			latencyMs := float64(time.Since(start)) / float64(time.Millisecond)
			deps.Metrics.RecordWebhookReceived(typ, id, success, latencyMs, code)
		}

		if deps.Settings.RateLimitEnabled && deps.Limiter != nil {
			result, err := deps.Limiter.Check(r.Context(), id)
			if err != nil {
				depsLogger(deps).Warn("integration.rate_limit_check_failed",
					zap.String("integration_id", id),
					zap.Error(err))
			} else if !result.Allowed {
				if deps.Metrics != nil {
					deps.Metrics.RecordRateLimited(typ)
				}
				record(false, string(ierrors.CodeRateLimited))
				for key, values := range ratelimit.Headers(result) {
					w.Header()[key] = values
				}
				ierrors.WriteIntegrationError(w, ierrors.NewRateLimited(result.RetryAfter))
				return
			}
		}

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if p := recover(); p != nil {
				record(false, "ERROR")
				panic(p)
			}
		}()

		next.ServeHTTP(sw, r)
		record(sw.status < http.StatusBadRequest, "")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func depsLogger(deps Deps) observability.Logger {
	if deps.Logger != nil {
		return deps.Logger
	}
	return observability.Server()
}
