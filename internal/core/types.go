package core

import "time"

// IntegrationType identifies the sending system of a webhook.
type IntegrationType string

const (
	IntegrationGitHub     IntegrationType = "github"
	IntegrationGitLab     IntegrationType = "gitlab"
	IntegrationGrafana    IntegrationType = "grafana"
	IntegrationPrometheus IntegrationType = "prometheus"
	IntegrationSentry     IntegrationType = "sentry"
	IntegrationDatadog    IntegrationType = "datadog"
	IntegrationCloudWatch IntegrationType = "cloudwatch"
	IntegrationWebhook    IntegrationType = "webhook"
	IntegrationPagerDuty  IntegrationType = "pagerduty"
	IntegrationNewRelic   IntegrationType = "newrelic"
	IntegrationAzure      IntegrationType = "azure"
	IntegrationOpsgenie   IntegrationType = "opsgenie"
)

// Integration is the stored descriptor of a configured inbound integration.
type Integration struct {
	ID              string          `json:"id" yaml:"id"`
	Name            string          `json:"name,omitempty" yaml:"name"`
	Type            IntegrationType `json:"type" yaml:"type"`
	Key             string          `json:"-" yaml:"key"`
	ServiceID       string          `json:"service_id" yaml:"service_id"`
	Enabled         bool            `json:"enabled" yaml:"enabled"`
	SignatureSecret string          `json:"-" yaml:"signature_secret"`
	CreatedAt       time.Time       `json:"created_at" yaml:"-"`
	UpdatedAt       time.Time       `json:"updated_at" yaml:"-"`
}

// HasSignatureSecret reports whether payload signatures can be checked.
func (i *Integration) HasSignatureSecret() bool {
	return i != nil && i.SignatureSecret != ""
}

// EventAction is the lifecycle transition requested by an event.
type EventAction string

const (
	EventTrigger     EventAction = "trigger"
	EventResolve     EventAction = "resolve"
	EventAcknowledge EventAction = "acknowledge"
)

// Severity is the normalized urgency of an event.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// EventPayload is the canonical event every provider payload is transformed into.
type EventPayload struct {
	EventAction EventAction  `json:"event_action"`
	DedupKey    string       `json:"dedup_key,omitempty"`
	Payload     EventDetails `json:"payload"`
}

// EventDetails carries the human-facing part of an event.
type EventDetails struct {
	Summary       string         `json:"summary"`
	Source        string         `json:"source"`
	Severity      Severity       `json:"severity"`
	Timestamp     string         `json:"timestamp,omitempty"`
	CustomDetails map[string]any `json:"custom_details,omitempty"`
}

// IncidentStatus is the state of an incident.
type IncidentStatus string

const (
	IncidentOpen         IncidentStatus = "OPEN"
	IncidentAcknowledged IncidentStatus = "ACKNOWLEDGED"
	IncidentResolved     IncidentStatus = "RESOLVED"
)

// Incident is the minimal incident view returned to webhook callers.
type Incident struct {
	ID        string         `json:"id"`
	DedupKey  string         `json:"dedupKey"`
	ServiceID string         `json:"serviceId"`
	Title     string         `json:"title"`
	Status    IncidentStatus `json:"status"`
	Urgency   string         `json:"urgency"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// ProcessResult is what the event processor reports back to the pipeline.
type ProcessResult struct {
	Action   string    `json:"action"`
	Incident *Incident `json:"incident,omitempty"`
}
