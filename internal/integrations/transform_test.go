package integrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookgate/hookgate/internal/core"
)

func TestTransformGitHub(t *testing.T) {
	repo := &GitHubRepository{Name: "api", FullName: "acme/api", HTMLURL: "https://github.com/acme/api"}

	tests := []struct {
		name     string
		event    GitHubEvent
		action   core.EventAction
		severity core.Severity
		dedupKey string
		summary  string
	}{
		{
			name:     "workflow failure",
			event:    GitHubEvent{Repository: repo, WorkflowRun: &GitHubRun{ID: 42, Name: "ci", Status: "completed", Conclusion: "failure"}},
			action:   core.EventTrigger,
			severity: core.SeverityCritical,
			dedupKey: "github-42",
			summary:  "Workflow failed: ci",
		},
		{
			name:     "workflow success resolves",
			event:    GitHubEvent{WorkflowRun: &GitHubRun{ID: 42, Name: "ci", Status: "completed", Conclusion: "success"}},
			action:   core.EventResolve,
			severity: core.SeverityInfo,
			dedupKey: "github-42",
		},
		{
			name:     "check in progress acknowledges",
			event:    GitHubEvent{CheckRun: &GitHubRun{ID: 7, Name: "lint", Status: "in_progress"}},
			action:   core.EventAcknowledge,
			severity: core.SeverityInfo,
			dedupKey: "github-7",
			summary:  "Check in progress: lint",
		},
		{
			name:     "deployment error",
			event:    GitHubEvent{DeploymentStatus: &GitHubDeploymentStatus{ID: 3, State: "error", Environment: "prod"}},
			action:   core.EventTrigger,
			severity: core.SeverityCritical,
			dedupKey: "github-deployment-3",
			summary:  "Deployment error: prod",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TransformGitHub(tt.event)
			assert.Equal(t, tt.action, got.EventAction)
			assert.Equal(t, tt.severity, got.Payload.Severity)
			assert.Equal(t, tt.dedupKey, got.DedupKey)
			if tt.summary != "" {
				assert.Equal(t, tt.summary, got.Payload.Summary)
			}
		})
	}

	assert.Equal(t, "GitHub - acme/api", TransformGitHub(tests[0].event).Payload.Source)

	unknown := TransformGitHub(GitHubEvent{Action: "opened"})
	assert.Equal(t, core.EventAcknowledge, unknown.EventAction)
	assert.Contains(t, unknown.DedupKey, "github-unknown-")
	assert.Equal(t, "GitHub event received: opened", unknown.Payload.Summary)
}

func TestTransformGitLab(t *testing.T) {
	failed := TransformGitLab(GitLabEvent{
		ObjectKind:       "pipeline",
		ObjectAttributes: &GitLabPipeline{ID: 9, Status: "failed", Ref: "main"},
		Project:          &GitLabProject{Name: "api", PathWithNamespace: "acme/api"},
	})
	assert.Equal(t, core.EventTrigger, failed.EventAction)
	assert.Equal(t, core.SeverityError, failed.Payload.Severity)
	assert.Equal(t, "gitlab-acme/api-main", failed.DedupKey)
	assert.Equal(t, "Pipeline failed: main", failed.Payload.Summary)

	build := TransformGitLab(GitLabEvent{ObjectKind: "build", BuildStatus: "success", Ref: "main"})
	assert.Equal(t, core.EventResolve, build.EventAction)
	assert.Equal(t, "gitlab-main", build.DedupKey)

	running := TransformGitLab(GitLabEvent{ObjectKind: "build", BuildStatus: "running"})
	assert.Equal(t, core.EventAcknowledge, running.EventAction)
	assert.NotEqual(t, "gitlab-", running.DedupKey)
}

func TestTransformPrometheus(t *testing.T) {
	event := PrometheusEvent{
		GroupKey:          `{}:{alertname="HighLatency"}`,
		Status:            "firing",
		Receiver:          "oncall",
		CommonLabels:      map[string]string{"alertname": "HighLatency", "severity": "warning"},
		CommonAnnotations: map[string]string{"summary": "p99 above 2s"},
		Alerts:            []AlertmanagerAlert{{Status: "firing", StartsAt: "2025-01-01T00:00:00Z", Fingerprint: "abc"}},
	}

	got := TransformPrometheus(event)
	assert.Equal(t, core.EventTrigger, got.EventAction)
	assert.Equal(t, `prometheus-{}:{alertname="HighLatency"}`, got.DedupKey)
	assert.Equal(t, "p99 above 2s", got.Payload.Summary)
	assert.Equal(t, "Prometheus - oncall", got.Payload.Source)
	assert.Equal(t, core.SeverityWarning, got.Payload.Severity)
	assert.Equal(t, "2025-01-01T00:00:00Z", got.Payload.Timestamp)

	event.Status = "resolved"
	assert.Equal(t, core.EventResolve, TransformPrometheus(event).EventAction)
}

func TestTransformGrafana(t *testing.T) {
	legacy := GrafanaEvent{Title: "[Alerting] CPU", RuleID: 12, RuleName: "CPU", State: "alerting"}
	got := TransformGrafana(legacy)
	assert.Equal(t, core.EventTrigger, got.EventAction)
	assert.Equal(t, "grafana-12", got.DedupKey)
	assert.Equal(t, core.SeverityCritical, got.Payload.Severity)

	legacy.State = "ok"
	assert.Equal(t, core.EventResolve, TransformGrafana(legacy).EventAction)
	legacy.State = "no_data"
	assert.Equal(t, core.SeverityWarning, TransformGrafana(legacy).Payload.Severity)

	unified := GrafanaEvent{
		Status:       "resolved",
		GroupKey:     "grp",
		CommonLabels: map[string]string{"alertname": "Disk"},
		Alerts:       []AlertmanagerAlert{{Status: "resolved"}},
	}
	got = TransformGrafana(unified)
	assert.Equal(t, core.EventResolve, got.EventAction)
	assert.Equal(t, "grafana-grp", got.DedupKey)
	assert.Equal(t, "Disk", got.Payload.Summary)
}

func TestTransformSentryAndDatadog(t *testing.T) {
	sentry := TransformSentry(SentryEvent{
		Action: "created",
		Issue:  &SentryIssue{ID: "100", Title: "TypeError", Level: "fatal", Status: "unresolved"},
	})
	assert.Equal(t, core.EventTrigger, sentry.EventAction)
	assert.Equal(t, "sentry-100", sentry.DedupKey)
	assert.Equal(t, core.SeverityCritical, sentry.Payload.Severity)

	resolved := TransformSentry(SentryEvent{Action: "resolved", Issue: &SentryIssue{ID: "100"}})
	assert.Equal(t, core.EventResolve, resolved.EventAction)

	dd := TransformDatadog(DatadogEvent{Title: "CPU high", AlertType: "error", AggregationKey: "cpu", Host: "web-1"})
	assert.Equal(t, core.EventTrigger, dd.EventAction)
	assert.Equal(t, "datadog-cpu", dd.DedupKey)
	assert.Equal(t, core.SeverityError, dd.Payload.Severity)
	assert.Equal(t, "Datadog - web-1", dd.Payload.Source)

	recovered := TransformDatadog(DatadogEvent{AlertType: "success", AggregationKey: "cpu"})
	assert.Equal(t, core.EventResolve, recovered.EventAction)
}

func TestTransformWebhook(t *testing.T) {
	got := TransformWebhook(WebhookEvent{
		"title":    "Queue backlog",
		"priority": "P1",
		"id":       float64(1234),
		"system":   "billing",
		"extra":    true,
	})
	assert.Equal(t, core.EventTrigger, got.EventAction)
	assert.Equal(t, "webhook-1234", got.DedupKey)
	assert.Equal(t, "Queue backlog", got.Payload.Summary)
	assert.Equal(t, "billing", got.Payload.Source)
	assert.Equal(t, core.SeverityCritical, got.Payload.Severity)
	assert.Equal(t, true, got.Payload.CustomDetails["extra"])

	explicit := TransformWebhook(WebhookEvent{"dedup_key": "k1", "status": "resolved"})
	assert.Equal(t, "k1", explicit.DedupKey)
	assert.Equal(t, core.EventResolve, explicit.EventAction)

	bare := TransformWebhook(WebhookEvent{})
	assert.Empty(t, bare.DedupKey)
	assert.Equal(t, "Webhook event", bare.Payload.Summary)
	assert.Equal(t, core.SeverityWarning, bare.Payload.Severity)
}

func TestTransformCloudWatch(t *testing.T) {
	alarm := CloudWatchAlarm{AlarmName: "api-5xx", NewStateValue: "ALARM", Region: "us-east-1", StateChangeTime: "2025-01-01T00:00:00Z"}
	got := TransformCloudWatch(alarm)
	assert.Equal(t, core.EventTrigger, got.EventAction)
	assert.Equal(t, "cloudwatch-us-east-1-api-5xx", got.DedupKey)
	assert.Equal(t, core.SeverityCritical, got.Payload.Severity)

	alarm.NewStateValue = "OK"
	assert.Equal(t, core.EventResolve, TransformCloudWatch(alarm).EventAction)
	alarm.NewStateValue = "INSUFFICIENT_DATA"
	assert.Equal(t, core.SeverityWarning, TransformCloudWatch(alarm).Payload.Severity)
}

func TestCatalogSchemas(t *testing.T) {
	seen := map[core.IntegrationType]bool{}
	for _, rt := range Catalog() {
		require.False(t, seen[rt.Type], "duplicate route %s", rt.Type)
		seen[rt.Type] = true
		_, ok := SchemaFor(rt.Type)
		assert.True(t, ok, "schema for %s", rt.Type)
		assert.Equal(t, "/api/integrations/"+string(rt.Type), rt.Path())
	}
	assert.Len(t, seen, 12)
}

func TestNormalizeSeverity(t *testing.T) {
	assert.Equal(t, core.SeverityCritical, normalizeSeverity(" Fatal ", core.SeverityInfo))
	assert.Equal(t, core.SeverityError, normalizeSeverity("P2", core.SeverityInfo))
	assert.Equal(t, core.SeverityWarning, normalizeSeverity("warn", core.SeverityInfo))
	assert.Equal(t, core.SeverityInfo, normalizeSeverity("debug", core.SeverityCritical))
	assert.Equal(t, core.SeverityError, normalizeSeverity("", core.SeverityError))
}
