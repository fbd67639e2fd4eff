package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookgate/hookgate/internal/observability"
)

func setupCollectors(t *testing.T) *observability.HTTPCollectors {
	t.Helper()

	collectors := observability.NewHTTPCollectors()
	original := observability.HTTP
	observability.HTTP = collectors

	t.Cleanup(func() {
		observability.HTTP = original
	})

	return collectors
}

func TestRequestMetrics_BasicFunctionality(t *testing.T) {
	collectors := setupCollectors(t)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("test response"))
	})

	middleware := RequestMetrics(handler)

	req := httptest.NewRequest("GET", "/version", nil)
	rec := httptest.NewRecorder()

	middleware.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test response", rec.Body.String())

	assert.Equal(t, 1.0, testutil.ToFloat64(collectors.RequestsTotal.WithLabelValues("GET", "/version", "200")))
	assert.Equal(t, 1, testutil.CollectAndCount(collectors.RequestDuration))
	assert.Equal(t, 0, testutil.CollectAndCount(collectors.ErrorsTotal))
}

func TestRequestMetrics_WithCollectorsDisabled(t *testing.T) {
	original := observability.HTTP
	observability.HTTP = nil
	defer func() {
		observability.HTTP = original
	}()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	middleware := RequestMetrics(handler)

	req := httptest.NewRequest("GET", "/test", nil)
	rec := httptest.NewRecorder()

	// Should not panic and should work normally
	middleware.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestMetrics_WithErrorStatus(t *testing.T) {
	collectors := setupCollectors(t)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	middleware := RequestMetrics(handler)

	req := httptest.NewRequest("GET", "/test", nil)
	rec := httptest.NewRecorder()

	middleware.ServeHTTP(rec, req)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		collectors.ErrorsTotal.WithLabelValues("GET", "/unknown", "500", "server_error")))
}

func TestRequestMetrics_ClientErrorType(t *testing.T) {
	collectors := setupCollectors(t)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	req := httptest.NewRequest("POST", "/api/integrations/github", nil)
	RequestMetrics(handler).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		collectors.ErrorsTotal.WithLabelValues("POST", "/api/integrations/*", "429", "client_error")))
}

func TestRequestMetrics_WithRequestAndResponseSize(t *testing.T) {
	collectors := setupCollectors(t)

	responseBody := "test response with some content"
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(responseBody))
	})

	middleware := RequestMetrics(handler)

	req := httptest.NewRequest("POST", "/test", nil)
	req.Header.Set("Content-Length", "1024")
	rec := httptest.NewRecorder()

	middleware.ServeHTTP(rec, req)

	assert.Equal(t, 1, testutil.CollectAndCount(collectors.RequestSize))
	assert.Equal(t, 1, testutil.CollectAndCount(collectors.ResponseSize))
}

func TestEndpointPattern_StandardPaths(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/health", "/health/*"},
		{"/health/live", "/health/*"},
		{"/health/ready", "/health/*"},
		{"/health/startup", "/health/*"},
		{"/version", "/version"},
		{"/metrics", "/metrics"},
		{"/api/integrations/github", "/api/integrations/*"},
		{"/api/users/123", "/unknown"},
		{"/", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			pattern := EndpointPattern(req)
			assert.Equal(t, tt.expected, pattern, "Path %s should map to pattern %s", tt.path, tt.expected)
		})
	}
}

func TestEndpointPattern_ChiRoute(t *testing.T) {
	collectors := setupCollectors(t)

	r := chi.NewRouter()
	r.Use(RequestMetrics)
	r.Post("/api/integrations/{provider}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	req := httptest.NewRequest("POST", "/api/integrations/sentry?integrationId=abc", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		collectors.RequestsTotal.WithLabelValues("POST", "/api/integrations/{provider}", "202")))
}

func TestRequestMetrics_WithRequestID(t *testing.T) {
	collectors := setupCollectors(t)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-request-id", GetRequestID(r.Context()))
		w.WriteHeader(http.StatusOK)
	})

	middleware := RequestID(RequestMetrics(handler))

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", "test-request-id")
	rec := httptest.NewRecorder()

	middleware.ServeHTTP(rec, req)

	assert.Equal(t, "test-request-id", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, 1, testutil.CollectAndCount(collectors.RequestsTotal))
}

func TestRequestID_Generated(t *testing.T) {
	var seen string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	})

	rec := httptest.NewRecorder()
	RequestID(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}

func TestRequestID_ReplacesUnsafeInbound(t *testing.T) {
	for name, inbound := range map[string]string{
		"newline":  "abc\ninjected",
		"spaces":   "has spaces",
		"too long": strings.Repeat("a", 129),
	} {
		t.Run(name, func(t *testing.T) {
			var seen string
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
			})

			req := httptest.NewRequest("GET", "/", nil)
			req.Header[RequestIDHeader] = []string{inbound}
			rec := httptest.NewRecorder()
			RequestID(handler).ServeHTTP(rec, req)

			assert.NotEqual(t, inbound, seen)
			_, err := uuid.Parse(seen)
			assert.NoError(t, err)
		})
	}
}

func TestRequestID_SharedWithChi(t *testing.T) {
	var chiID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chiID = chimw.GetReqID(r.Context())
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "svc-1:req.42")
	RequestID(handler).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "svc-1:req.42", chiID)
}

func TestRequestMetrics_DurationMeasurement(t *testing.T) {
	collectors := setupCollectors(t)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(10 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})

	middleware := RequestMetrics(handler)

	req := httptest.NewRequest("GET", "/test", nil)
	rec := httptest.NewRecorder()

	start := time.Now()
	middleware.ServeHTTP(rec, req)
	elapsed := time.Since(start)

	assert.True(t, elapsed >= 10*time.Millisecond, "Should have waited at least 10ms")
	assert.Equal(t, 1, testutil.CollectAndCount(collectors.RequestDuration))
}

func TestRecovery_WritesFlatErrorBody(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	Recovery(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INTERNAL_ERROR", body.Error)
	assert.NotContains(t, rec.Body.String(), "boom")
}
