package integrations

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hookgate/hookgate/internal/core"
	"github.com/hookgate/hookgate/internal/core/events"
	"github.com/hookgate/hookgate/internal/core/pipeline"
	"github.com/hookgate/hookgate/internal/core/ratelimit"
	"github.com/hookgate/hookgate/internal/core/signature"
	"github.com/hookgate/hookgate/internal/jsoncodec"
	"github.com/hookgate/hookgate/internal/metrics"
)

type memoryFinder struct {
	mu           sync.Mutex
	integrations map[string]core.Integration
}

func (f *memoryFinder) FindIntegration(_ context.Context, id string) (*core.Integration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	integration, ok := f.integrations[id]
	if !ok {
		return nil, nil
	}
	return &integration, nil
}

func testDeps(integrations ...core.Integration) Deps {
	finder := &memoryFinder{integrations: map[string]core.Integration{}}
	for _, i := range integrations {
		finder.integrations[i.ID] = i
	}

	recorder := metrics.NewRecorder()
	recorder.Logger = zap.NewNop()
	limiter := ratelimit.NewLimiter(nil, ratelimit.DefaultConfig())
	limiter.Logger = zap.NewNop()
	processor := events.NewIncidentProcessor(nil, nil)
	processor.Logger = zap.NewNop()

	return Deps{
		Deps: pipeline.Deps{
			Integrations: finder,
			Limiter:      limiter,
			Verifier:     signature.NewVerifier(),
			Metrics:      recorder,
			Logger:       zap.NewNop(),
			Settings:     pipeline.DefaultSettings(),
		},
		Events: processor,
	}
}

func testRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	Register(r, deps)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type accepted struct {
	Status string             `json:"status"`
	Result core.ProcessResult `json:"result"`
}

func TestGitHubRouteEndToEnd(t *testing.T) {
	deps := testDeps(core.Integration{
		ID: "gh-1", Type: core.IntegrationGitHub, Key: "gh-key", ServiceID: "svc-api", Enabled: true, SignatureSecret: "gh-secret",
	})
	router := testRouter(deps)

	body := `{"action":"completed","repository":{"name":"api","full_name":"acme/api","html_url":"https://github.com/acme/api"},` +
		`"workflow_run":{"id":77,"name":"ci","status":"completed","conclusion":"failure","html_url":"https://github.com/acme/api/actions/runs/77"}}`
	headers := map[string]string{
		"Authorization":       "Bearer gh-key",
		"X-Hub-Signature-256": "sha256=" + signature.ComputeHMAC([]byte(body), "gh-secret", signature.SHA256),
	}

	rec := do(t, router, http.MethodPost, "/api/integrations/github?integrationId=gh-1", body, headers)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp accepted
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, events.ActionTriggered, resp.Result.Action)
	require.NotNil(t, resp.Result.Incident)
	assert.Equal(t, "github-77", resp.Result.Incident.DedupKey)
	assert.Equal(t, "svc-api", resp.Result.Incident.ServiceID)
	assert.Equal(t, "HIGH", resp.Result.Incident.Urgency)

	rec = do(t, router, http.MethodPost, "/api/integrations/github?integrationId=gh-1", body, headers)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, events.ActionDeduplicated, resp.Result.Action)

	assert.Equal(t, int64(2), deps.Metrics.ByIntegration("gh-1").TotalSuccess)
	assert.Equal(t, int64(2), deps.Metrics.ByType("github").TotalReceived)
}

func TestPagerDutyRouteLifecycle(t *testing.T) {
	deps := testDeps(core.Integration{ID: "pd-1", Type: core.IntegrationPagerDuty, Key: "pd-key", ServiceID: "svc-pay", Enabled: true})
	router := testRouter(deps)
	headers := map[string]string{"x-integration-key": "pd-key"}

	post := func(eventType, status string) accepted {
		t.Helper()
		body := `{"event":{"event_type":"` + eventType + `","incident":{"id":"PXYZ","incident_number":4,"title":"Checkout errors",` +
			`"status":"` + status + `","urgency":"high","created_at":"2025-01-01T00:00:00Z"}}}`
		rec := do(t, router, http.MethodPost, "/api/integrations/pagerduty?integrationId=pd-1", body, headers)
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		var resp accepted
		require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &resp))
		return resp
	}

	assert.Equal(t, events.ActionTriggered, post("incident.triggered", "triggered").Result.Action)
	assert.Equal(t, events.ActionAcknowledged, post("incident.acknowledged", "acknowledged").Result.Action)
	assert.Equal(t, events.ActionResolved, post("incident.resolved", "resolved").Result.Action)

	rec := do(t, router, http.MethodPost, "/api/integrations/pagerduty?integrationId=pd-1", `{"unknown":true}`, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int64(3), deps.Metrics.ByType("pagerduty").TotalSuccess)
}

func TestRouteRejectsSchemaViolations(t *testing.T) {
	deps := testDeps(core.Integration{ID: "prom-1", Type: core.IntegrationPrometheus, Key: "k", Enabled: true})
	router := testRouter(deps)

	rec := do(t, router, http.MethodPost, "/api/integrations/prometheus?integrationId=prom-1",
		`{"status":"firing","alerts":[]}`, map[string]string{"x-integration-key": "k"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Error   string `json:"error"`
		Details []struct {
			Path    string `json:"path"`
			Message string `json:"message"`
		} `json:"details"`
	}
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "VALIDATION_ERROR", body.Error)
	assert.NotEmpty(t, body.Details)
}

func TestWebhookRouteWithoutProcessor(t *testing.T) {
	deps := testDeps(core.Integration{ID: "wh-1", Type: core.IntegrationWebhook, Key: "k", Enabled: true})
	deps.Events = nil
	router := testRouter(deps)

	rec := do(t, router, http.MethodPost, "/api/integrations/webhook?integrationId=wh-1", `{"title":"x"}`,
		map[string]string{"x-api-key": "k"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, int64(1), deps.Metrics.ByIntegration("wh-1").TotalErrors)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestCloudWatchDirectAndSNS(t *testing.T) {
	deps := testDeps(core.Integration{ID: "cw-1", Type: core.IntegrationCloudWatch, Key: "cw-key", ServiceID: "svc-aws", Enabled: true})
	router := testRouter(deps)
	target := "/api/integrations/cloudwatch?integrationId=cw-1&key=cw-key"

	alarm := `{"AlarmName":"api-5xx","NewStateValue":"ALARM","NewStateReason":"Threshold crossed","StateChangeTime":"2025-01-01T00:00:00.000+0000","Region":"us-east-1"}`
	rec := do(t, router, http.MethodPost, target, alarm, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp accepted
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, events.ActionTriggered, resp.Result.Action)

	message, err := jsoncodec.Marshal(map[string]any{
		"Type":    "Notification",
		"Message": strings.Replace(alarm, `"ALARM"`, `"OK"`, 1),
	})
	require.NoError(t, err)
	rec = do(t, router, http.MethodPost, target, string(message), nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, events.ActionResolved, resp.Result.Action)

	rec = do(t, router, http.MethodPost, target, `{"hello":"world"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/integrations/cloudwatch?integrationId=cw-1", alarm, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	m := deps.Metrics.ByIntegration("cw-1")
	assert.Equal(t, int64(4), m.TotalReceived)
	assert.Equal(t, int64(2), m.TotalSuccess)
}

func TestCloudWatchSubscriptionConfirmation(t *testing.T) {
	deps := testDeps(core.Integration{ID: "cw-1", Type: core.IntegrationCloudWatch, Key: "cw-key", Enabled: true})

	var mu sync.Mutex
	var confirmed []string
	deps.HTTPClient = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		mu.Lock()
		confirmed = append(confirmed, r.URL.String())
		mu.Unlock()
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("<ok/>")), Header: http.Header{}}, nil
	})}
	router := testRouter(deps)
	target := "/api/integrations/cloudwatch?integrationId=cw-1&key=cw-key"

	confirm := `{"Type":"SubscriptionConfirmation","TopicArn":"arn:aws:sns:us-east-1:1:alarms",` +
		`"SubscribeURL":"https://sns.us-east-1.amazonaws.com/?Action=ConfirmSubscription&Token=abc"}`
	rec := do(t, router, http.MethodPost, target, confirm, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"subscription_confirmed"}`, rec.Body.String())

	mu.Lock()
	require.Len(t, confirmed, 1)
	assert.Equal(t, "https://sns.us-east-1.amazonaws.com/?Action=ConfirmSubscription&Token=abc", confirmed[0])
	mu.Unlock()

	evil := strings.Replace(confirm, "sns.us-east-1.amazonaws.com", "sns.us-east-1.amazonaws.com.evil.io", 1)
	rec = do(t, router, http.MethodPost, target, evil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	mu.Lock()
	assert.Len(t, confirmed, 1)
	mu.Unlock()
}

func TestValidateSubscribeURL(t *testing.T) {
	valid := []string{
		"https://sns.us-east-1.amazonaws.com/?Action=ConfirmSubscription",
		"https://SNS.cn-north-1.amazonaws.com.cn/path",
	}
	for _, raw := range valid {
		_, err := ValidateSubscribeURL(raw)
		assert.NoError(t, err, raw)
	}

	invalid := []string{
		"http://sns.us-east-1.amazonaws.com/",
		"https://sns.us-east-1.amazonaws.com.attacker.net/",
		"https://attacker.net/?sns.us-east-1.amazonaws.com",
		"https://user@sns.us-east-1.amazonaws.com/",
		"https://sns.us-east-1.amazonaws.com:8443/",
		"://bad",
	}
	for _, raw := range invalid {
		_, err := ValidateSubscribeURL(raw)
		assert.Error(t, err, raw)
	}
}

func TestCloudWatchRateLimitedByMiddleware(t *testing.T) {
	deps := testDeps(core.Integration{ID: "cw-1", Type: core.IntegrationCloudWatch, Key: "cw-key", Enabled: true})
	deps.Limiter = ratelimit.NewLimiter(nil, ratelimit.Config{MaxRequests: 1, Window: time.Minute, BurstLimit: 1})
	deps.Limiter.Logger = zap.NewNop()
	router := testRouter(deps)

	target := "/api/integrations/cloudwatch?integrationId=cw-1&key=cw-key"
	do(t, router, http.MethodPost, target, `{}`, nil)
	rec := do(t, router, http.MethodPost, target, `{}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}
