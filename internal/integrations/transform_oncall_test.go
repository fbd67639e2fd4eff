package integrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookgate/hookgate/internal/core"
	"github.com/hookgate/hookgate/internal/jsoncodec"
)

func decodeInto[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, jsoncodec.Unmarshal([]byte(body), &v))
	return v
}

func TestTransformPagerDuty(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		action   core.EventAction
		severity core.Severity
		dedupKey string
		summary  string
		source   string
	}{
		{
			name: "v3 triggered high urgency",
			body: `{"event":{"event_type":"incident.triggered","incident":{"id":"PABC","incident_number":12,"title":"DB down","status":"triggered","urgency":"high","created_at":"2025-01-01T00:00:00Z","service":{"id":"S1","name":"payments"}}}}`,
			action:   core.EventTrigger,
			severity: core.SeverityCritical,
			dedupKey: "pagerduty-PABC",
			summary:  "DB down",
			source:   "PagerDuty - payments",
		},
		{
			name: "v3 acknowledged low urgency",
			body: `{"event":{"event_type":"incident.acknowledged","incident":{"id":"PABC","incident_number":12,"title":"DB down","status":"acknowledged","urgency":"low","created_at":"2025-01-01T00:00:00Z"}}}`,
			action:   core.EventAcknowledge,
			severity: core.SeverityWarning,
			dedupKey: "pagerduty-PABC",
			summary:  "DB down",
			source:   "PagerDuty",
		},
		{
			name:     "v3 resolved",
			body:     `{"event":{"event_type":"incident.resolved","incident":{"id":"PABC","title":"DB down","urgency":"high"}}}`,
			action:   core.EventResolve,
			severity: core.SeverityCritical,
			dedupKey: "pagerduty-PABC",
			summary:  "DB down",
			source:   "PagerDuty",
		},
		{
			name: "legacy trigger",
			body: `{"messages":[{"event":"incident.trigger","incident":{"incident_key":"disk-1","incident_number":7,"created_on":"2015-01-01T00:00:00Z","status":"triggered","html_url":"https://acme.pagerduty.com/incidents/7","service":{"name":"storage"},"trigger_summary_data":{"subject":"Disk full"}}}]}`,
			action:   core.EventTrigger,
			severity: core.SeverityCritical,
			dedupKey: "pagerduty-disk-1",
			summary:  "Disk full",
			source:   "PagerDuty - storage",
		},
		{
			name:     "legacy resolve by status falls back to incident number",
			body:     `{"messages":[{"event":"incident.custom","incident":{"incident_number":7,"status":"resolved","service":{"name":"storage"}}}]}`,
			action:   core.EventResolve,
			severity: core.SeverityCritical,
			dedupKey: "pagerduty-7",
			summary:  "storage",
			source:   "PagerDuty - storage",
		},
		{
			name:     "legacy acknowledge by event",
			body:     `{"messages":[{"event":"incident.acknowledge","incident":{"incident_key":"k","service":{"name":"storage"},"trigger_summary_data":{"description":"Latency"}}}]}`,
			action:   core.EventAcknowledge,
			severity: core.SeverityCritical,
			dedupKey: "pagerduty-k",
			summary:  "Latency",
			source:   "PagerDuty - storage",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TransformPagerDuty(decodeInto[PagerDutyEvent](t, tt.body))
			assert.Equal(t, tt.action, got.EventAction)
			assert.Equal(t, tt.severity, got.Payload.Severity)
			assert.Equal(t, tt.dedupKey, got.DedupKey)
			assert.Equal(t, tt.summary, got.Payload.Summary)
			assert.Equal(t, tt.source, got.Payload.Source)
		})
	}

	empty := TransformPagerDuty(PagerDutyEvent{})
	assert.True(t, strings.HasPrefix(empty.DedupKey, "pagerduty-"))
	assert.Equal(t, "PagerDuty Alert", empty.Payload.Summary)
}

func TestTransformNewRelic(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		action   core.EventAction
		severity core.Severity
		dedupKey string
		summary  string
		source   string
	}{
		{
			name:     "incident acknowledged",
			body:     `{"account_id":1,"account_name":"Acme","incident":{"id":"inc-1","title":"Error rate","state":"acknowledged","severity":"critical","created_at":"t","updated_at":"t"}}`,
			action:   core.EventAcknowledge,
			severity: core.SeverityCritical,
			dedupKey: "newrelic-inc-1",
			summary:  "Error rate",
			source:   "New Relic - Acme",
		},
		{
			name:     "incident resolved without account",
			body:     `{"incident":{"id":"inc-1","title":"Error rate","state":"resolved","severity":"info","created_at":"t","updated_at":"t"}}`,
			action:   core.EventResolve,
			severity: core.SeverityInfo,
			dedupKey: "newrelic-inc-1",
			summary:  "Error rate",
			source:   "New Relic",
		},
		{
			name:     "legacy alert closed",
			body:     `{"alert":{"id":"a-9","alert_policy_name":"Web","alert_condition_name":"Apdex low","severity":"CRITICAL","timestamp":1700000000,"state":"closed"}}`,
			action:   core.EventResolve,
			severity: core.SeverityCritical,
			dedupKey: "newrelic-a-9",
			summary:  "Apdex low",
			source:   "New Relic - Web",
		},
		{
			name:     "legacy alert unknown severity",
			body:     `{"alert":{"id":"a-9","alert_policy_name":"Web","alert_condition_name":"","message":"slow","severity":"error","timestamp":1,"state":"open"}}`,
			action:   core.EventTrigger,
			severity: core.SeverityWarning,
			dedupKey: "newrelic-a-9",
			summary:  "slow",
			source:   "New Relic - Web",
		},
		{
			name:     "apm error",
			body:     `{"alertTitle":"Throughput drop","alertType":"violation","alertSeverity":"Error","alertTimestamp":1700000000123}`,
			action:   core.EventTrigger,
			severity: core.SeverityError,
			dedupKey: "newrelic-1700000000123",
			summary:  "Throughput drop",
			source:   "New Relic",
		},
		{
			name:     "apm closed",
			body:     `{"alertType":"Violation Closed","alertTimestamp":5}`,
			action:   core.EventResolve,
			severity: core.SeverityWarning,
			dedupKey: "newrelic-5",
			summary:  "New Relic Alert",
			source:   "New Relic",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TransformNewRelic(decodeInto[NewRelicEvent](t, tt.body))
			assert.Equal(t, tt.action, got.EventAction)
			assert.Equal(t, tt.severity, got.Payload.Severity)
			assert.Equal(t, tt.dedupKey, got.DedupKey)
			assert.Equal(t, tt.summary, got.Payload.Summary)
			assert.Equal(t, tt.source, got.Payload.Source)
		})
	}

	untimed := TransformNewRelic(NewRelicEvent{AlertTitle: "x"})
	assert.True(t, strings.HasPrefix(untimed.DedupKey, "newrelic-"))
	assert.Greater(t, len(untimed.DedupKey), len("newrelic-"))
}

func TestTransformAzureAndOpsgenie(t *testing.T) {
	azure := TransformAzure(decodeInto[AzureEvent](t, `{"schemaId":"azureMonitorCommonAlertSchema","data":{"essentials":{
		"alertId":"/subscriptions/s1/providers/Microsoft.AlertsManagement/alerts/guid-1",
		"alertRule":"cpu > 90","severity":"Sev1","monitorCondition":"Fired","monitorService":"Platform",
		"firedDateTime":"2025-01-01T00:00:00Z"}}}`))
	assert.Equal(t, core.EventTrigger, azure.EventAction)
	assert.Equal(t, "azure-guid-1", azure.DedupKey)
	assert.Equal(t, "cpu > 90", azure.Payload.Summary)
	assert.Equal(t, "Azure Monitor - Platform", azure.Payload.Source)
	assert.Equal(t, core.SeverityError, azure.Payload.Severity)

	resolved := TransformAzure(decodeInto[AzureEvent](t, `{"data":{"essentials":{"alertId":"guid-2","severity":"Sev4","monitorCondition":"Resolved"}}}`))
	assert.Equal(t, core.EventResolve, resolved.EventAction)
	assert.Equal(t, "azure-guid-2", resolved.DedupKey)
	assert.Equal(t, core.SeverityInfo, resolved.Payload.Severity)

	bare := TransformAzure(AzureEvent{})
	assert.Equal(t, "Azure Monitor alert", bare.Payload.Summary)
	assert.True(t, strings.HasPrefix(bare.DedupKey, "azure-"))

	og := decodeInto[OpsgenieEvent](t, `{"action":"Create","alert":{"alertId":"og-1","alias":"db-latency","message":"DB latency","status":"open","acknowledged":false,"isSeen":false,"createdAt":1,"updatedAt":1,"priority":"P1","source":"datadog"}}`)
	created := TransformOpsgenie(og)
	assert.Equal(t, core.EventTrigger, created.EventAction)
	assert.Equal(t, "opsgenie-db-latency", created.DedupKey)
	assert.Equal(t, core.SeverityCritical, created.Payload.Severity)
	assert.Equal(t, "Opsgenie - datadog", created.Payload.Source)

	og.Action = "Acknowledge"
	assert.Equal(t, core.EventAcknowledge, TransformOpsgenie(og).EventAction)
	og.Action, og.Alert.Status = "AddNote", "closed"
	assert.Equal(t, core.EventResolve, TransformOpsgenie(og).EventAction)

	og.Alert.Alias = ""
	assert.Equal(t, "opsgenie-og-1", TransformOpsgenie(og).DedupKey)
}

func TestOnCallSchemas(t *testing.T) {
	tests := []struct {
		name  string
		typ   core.IntegrationType
		body  string
		valid bool
	}{
		{"pagerduty v3", core.IntegrationPagerDuty, `{"event":{"event_type":"incident.triggered","incident":{"id":"P","incident_number":1,"title":"t","status":"triggered","urgency":"high","created_at":"c"}}}`, true},
		{"pagerduty v3 without incident", core.IntegrationPagerDuty, `{"event":{"event_type":"incident.triggered"}}`, false},
		{"pagerduty legacy", core.IntegrationPagerDuty, `{"messages":[{"event":"incident.trigger","incident":{"incident_key":"k","incident_number":1,"created_on":"c","status":"triggered","html_url":"u","service":{"name":"s"}}}]}`, true},
		{"pagerduty legacy without incident", core.IntegrationPagerDuty, `{"messages":[{"event":"incident.trigger"}]}`, false},
		{"pagerduty legacy empty", core.IntegrationPagerDuty, `{"messages":[]}`, false},
		{"pagerduty unknown format", core.IntegrationPagerDuty, `{"incident":{}}`, false},
		{"newrelic incident", core.IntegrationNewRelic, `{"incident":{"id":"i","title":"t","state":"open","severity":"critical","created_at":"c","updated_at":"u"}}`, true},
		{"newrelic bad state", core.IntegrationNewRelic, `{"incident":{"id":"i","title":"t","state":"closed","severity":"critical","created_at":"c","updated_at":"u"}}`, false},
		{"newrelic apm", core.IntegrationNewRelic, `{"alertType":"violation"}`, true},
		{"newrelic unknown format", core.IntegrationNewRelic, `{"account_id":1}`, false},
		{"azure anything", core.IntegrationAzure, `{"data":{"essentials":{"alertRule":"r"}}}`, true},
		{"azure wrong type", core.IntegrationAzure, `{"data":{"essentials":{"severity":2}}}`, false},
		{"opsgenie", core.IntegrationOpsgenie, `{"action":"Close","alert":{"alertId":"a","message":"m","status":"closed","acknowledged":true,"isSeen":true,"createdAt":1,"updatedAt":2,"priority":"P3"}}`, true},
		{"opsgenie missing alert", core.IntegrationOpsgenie, `{"action":"Close"}`, false},
		{"opsgenie bad priority", core.IntegrationOpsgenie, `{"alert":{"alertId":"a","message":"m","status":"open","acknowledged":false,"isSeen":false,"createdAt":1,"updatedAt":2,"priority":"P9"}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema, ok := SchemaFor(tt.typ)
			require.True(t, ok)
			var payload any
			require.NoError(t, jsoncodec.Unmarshal([]byte(tt.body), &payload))
			fields := schema.Validate(payload)
			if tt.valid {
				assert.Empty(t, fields)
			} else {
				assert.NotEmpty(t, fields)
			}
		})
	}
}
