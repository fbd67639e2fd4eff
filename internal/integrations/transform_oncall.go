package integrations

import (
	"strconv"
	"strings"

	"github.com/hookgate/hookgate/internal/core"
	"github.com/hookgate/hookgate/internal/core/events"
)

// PagerDutyService names the service an incident belongs to.
type PagerDutyService struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// PagerDutyIncident is the incident of a v3 webhook event.
type PagerDutyIncident struct {
	ID             string            `json:"id"`
	IncidentNumber int64             `json:"incident_number"`
	Title          string            `json:"title"`
	Description    string            `json:"description,omitempty"`
	Status         string            `json:"status"`
	Urgency        string            `json:"urgency"`
	CreatedAt      string            `json:"created_at"`
	Service        *PagerDutyService `json:"service,omitempty"`
}

type PagerDutyLegacyIncident struct {
	IncidentKey        string           `json:"incident_key"`
	IncidentNumber     int64            `json:"incident_number"`
	CreatedOn          string           `json:"created_on"`
	Status             string           `json:"status"`
	HTMLURL            string           `json:"html_url"`
	Service            PagerDutyService `json:"service"`
	TriggerSummaryData *struct {
		Subject     string `json:"subject,omitempty"`
		Description string `json:"description,omitempty"`
	} `json:"trigger_summary_data,omitempty"`
}

type PagerDutyMessage struct {
	Event    string                   `json:"event"`
	Incident *PagerDutyLegacyIncident `json:"incident,omitempty"`
}

// PagerDutyEvent is either a v3 webhook (Event) or a legacy v1/v2 batch
// (Messages). Only the first legacy message is used.
type PagerDutyEvent struct {
	Event *struct {
		EventType string             `json:"event_type"`
		Incident  *PagerDutyIncident `json:"incident,omitempty"`
	} `json:"event,omitempty"`
	Messages []PagerDutyMessage `json:"messages,omitempty"`
}

func TransformPagerDuty(e PagerDutyEvent) core.EventPayload {
	if e.Event != nil && e.Event.Incident != nil {
		return transformPagerDutyV3(e.Event.EventType, e.Event.Incident)
	}
	if len(e.Messages) > 0 && e.Messages[0].Incident != nil {
		return transformPagerDutyLegacy(e.Messages[0])
	}

	// The schema rejects both shapes above when the incident is missing.
	return core.EventPayload{
		EventAction: core.EventTrigger,
		DedupKey:    "pagerduty-" + events.NewID(),
		Payload: core.EventDetails{
			Summary:  "PagerDuty Alert",
			Source:   "PagerDuty",
			Severity: core.SeverityCritical,
		},
	}
}

func transformPagerDutyV3(eventType string, incident *PagerDutyIncident) core.EventPayload {
	action := core.EventTrigger
	switch eventType {
	case "incident.resolved":
		action = core.EventResolve
	case "incident.acknowledged":
		action = core.EventAcknowledge
	}

	severity := core.SeverityWarning
	if incident.Urgency == "high" {
		severity = core.SeverityCritical
	}

	source := "PagerDuty"
	if incident.Service != nil {
		source = sourceWith("PagerDuty", incident.Service.Name)
	}

	return core.EventPayload{
		EventAction: action,
		DedupKey:    "pagerduty-" + incident.ID,
		Payload: core.EventDetails{
			Summary:   incident.Title,
			Source:    source,
			Severity:  severity,
			Timestamp: incident.CreatedAt,
			CustomDetails: map[string]any{
				"incident_id":     incident.ID,
				"incident_number": incident.IncidentNumber,
				"description":     incident.Description,
				"status":          incident.Status,
				"urgency":         incident.Urgency,
				"created_at":      incident.CreatedAt,
				"service":         incident.Service,
			},
		},
	}
}

func transformPagerDutyLegacy(msg PagerDutyMessage) core.EventPayload {
	incident := msg.Incident

	action := core.EventTrigger
	switch {
	case strings.Contains(msg.Event, "resolve") || incident.Status == "resolved":
		action = core.EventResolve
	case strings.Contains(msg.Event, "acknowledge") || incident.Status == "acknowledged":
		action = core.EventAcknowledge
	}

	var subject, description string
	if incident.TriggerSummaryData != nil {
		subject, description = incident.TriggerSummaryData.Subject, incident.TriggerSummaryData.Description
	}

	key := incident.IncidentKey
	if key == "" {
		key = strconv.FormatInt(incident.IncidentNumber, 10)
	}

	return core.EventPayload{
		EventAction: action,
		DedupKey:    "pagerduty-" + key,
		Payload: core.EventDetails{
			Summary:  firstNonEmpty(subject, description, incident.Service.Name, "PagerDuty Alert"),
			Source:   sourceWith("PagerDuty", incident.Service.Name),
			Severity: core.SeverityCritical,
			CustomDetails: map[string]any{
				"incident_key":         incident.IncidentKey,
				"incident_number":      incident.IncidentNumber,
				"status":               incident.Status,
				"created_on":           incident.CreatedOn,
				"html_url":             incident.HTMLURL,
				"service":              incident.Service,
				"trigger_summary_data": incident.TriggerSummaryData,
			},
		},
	}
}

type NewRelicIncident struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	State         string `json:"state"`
	Severity      string `json:"severity"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
	ConditionName string `json:"condition_name,omitempty"`
	ConditionID   int64  `json:"condition_id,omitempty"`
	PolicyName    string `json:"policy_name,omitempty"`
	PolicyID      int64  `json:"policy_id,omitempty"`
}

type NewRelicAlert struct {
	ID                 string  `json:"id"`
	AlertPolicyName    string  `json:"alert_policy_name"`
	AlertConditionName string  `json:"alert_condition_name"`
	Severity           string  `json:"severity"`
	Timestamp          float64 `json:"timestamp"`
	State              string  `json:"state"`
	Message            string  `json:"message,omitempty"`
}

// NewRelicEvent covers the workflow incident, legacy alert and APM
// notification bodies. The first present shape wins.
type NewRelicEvent struct {
	AccountID      int64             `json:"account_id,omitempty"`
	AccountName    string            `json:"account_name,omitempty"`
	EventType      string            `json:"event_type,omitempty"`
	Incident       *NewRelicIncident `json:"incident,omitempty"`
	Alert          *NewRelicAlert    `json:"alert,omitempty"`
	AlertType      string            `json:"alertType,omitempty"`
	AlertSeverity  string            `json:"alertSeverity,omitempty"`
	AlertTitle     string            `json:"alertTitle,omitempty"`
	AlertMessage   string            `json:"alertMessage,omitempty"`
	AlertTimestamp float64           `json:"alertTimestamp,omitempty"`
}

// newRelicSeverity only maps the levels New Relic emits; anything else is a
// warning.
func newRelicSeverity(level string, allowError bool) core.Severity {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "critical":
		return core.SeverityCritical
	case "error":
		if allowError {
			return core.SeverityError
		}
	case "info":
		return core.SeverityInfo
	}
	return core.SeverityWarning
}

func TransformNewRelic(e NewRelicEvent) core.EventPayload {
	switch {
	case e.Incident != nil:
		incident := e.Incident
		action := core.EventTrigger
		switch incident.State {
		case "resolved":
			action = core.EventResolve
		case "acknowledged":
			action = core.EventAcknowledge
		}
		return core.EventPayload{
			EventAction: action,
			DedupKey:    "newrelic-" + incident.ID,
			Payload: core.EventDetails{
				Summary:   incident.Title,
				Source:    sourceWith("New Relic", e.AccountName),
				Severity:  newRelicSeverity(incident.Severity, false),
				Timestamp: incident.CreatedAt,
				CustomDetails: map[string]any{
					"account_id":   e.AccountID,
					"account_name": e.AccountName,
					"event_type":   e.EventType,
					"incident":     incident,
				},
			},
		}

	case e.Alert != nil:
		alert := e.Alert
		action := core.EventTrigger
		if alert.State == "closed" {
			action = core.EventResolve
		}
		return core.EventPayload{
			EventAction: action,
			DedupKey:    "newrelic-" + alert.ID,
			Payload: core.EventDetails{
				Summary:  firstNonEmpty(alert.AlertConditionName, alert.Message, "New Relic Alert"),
				Source:   sourceWith("New Relic", alert.AlertPolicyName),
				Severity: newRelicSeverity(alert.Severity, false),
				CustomDetails: map[string]any{
					"alert_id":             alert.ID,
					"alert_policy_name":    alert.AlertPolicyName,
					"alert_condition_name": alert.AlertConditionName,
					"severity":             alert.Severity,
					"timestamp":            alert.Timestamp,
					"state":                alert.State,
					"message":              alert.Message,
				},
			},
		}
	}

	alertType := strings.ToLower(e.AlertType)
	action := core.EventTrigger
	if strings.Contains(alertType, "resolved") || strings.Contains(alertType, "closed") {
		action = core.EventResolve
	}

	key := events.NewID()
	if e.AlertTimestamp != 0 {
		key = strconv.FormatFloat(e.AlertTimestamp, 'f', -1, 64)
	}

	return core.EventPayload{
		EventAction: action,
		DedupKey:    "newrelic-" + key,
		Payload: core.EventDetails{
			Summary:  firstNonEmpty(e.AlertTitle, "New Relic Alert"),
			Source:   "New Relic",
			Severity: newRelicSeverity(e.AlertSeverity, true),
			CustomDetails: map[string]any{
				"alertType":      e.AlertType,
				"alertSeverity":  e.AlertSeverity,
				"alertTitle":     e.AlertTitle,
				"alertMessage":   e.AlertMessage,
				"alertTimestamp": e.AlertTimestamp,
				"account_id":     e.AccountID,
				"account_name":   e.AccountName,
			},
		},
	}
}

// AzureEssentials is the essentials block of the Azure Monitor common alert
// schema.
type AzureEssentials struct {
	AlertID          string `json:"alertId,omitempty"`
	AlertRule        string `json:"alertRule,omitempty"`
	Severity         string `json:"severity,omitempty"`
	SignalType       string `json:"signalType,omitempty"`
	MonitorCondition string `json:"monitorCondition,omitempty"`
	MonitorService   string `json:"monitorService,omitempty"`
	FiredDateTime    string `json:"firedDateTime,omitempty"`
	Description      string `json:"description,omitempty"`
}

// AzureEvent is an Azure Monitor action group notification.
type AzureEvent struct {
	SchemaID string `json:"schemaId,omitempty"`
	Data     *struct {
		Essentials   *AzureEssentials `json:"essentials,omitempty"`
		AlertContext map[string]any   `json:"alertContext,omitempty"`
	} `json:"data,omitempty"`
}

func azureSeverity(level string) core.Severity {
	switch strings.ToLower(level) {
	case "sev0":
		return core.SeverityCritical
	case "sev1":
		return core.SeverityError
	case "sev2":
		return core.SeverityWarning
	case "sev3", "sev4":
		return core.SeverityInfo
	}
	return core.SeverityWarning
}

func TransformAzure(e AzureEvent) core.EventPayload {
	var essentials AzureEssentials
	var alertContext map[string]any
	if e.Data != nil {
		if e.Data.Essentials != nil {
			essentials = *e.Data.Essentials
		}
		alertContext = e.Data.AlertContext
	}

	action := core.EventTrigger
	if strings.EqualFold(essentials.MonitorCondition, "Resolved") {
		action = core.EventResolve
	}

	// Alert ids are resource paths; the last segment is the stable guid.
	id := essentials.AlertID
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	if id == "" {
		id = events.NewID()
	}

	return core.EventPayload{
		EventAction: action,
		DedupKey:    "azure-" + id,
		Payload: core.EventDetails{
			Summary:   firstNonEmpty(essentials.AlertRule, essentials.Description, "Azure Monitor alert"),
			Source:    sourceWith("Azure Monitor", essentials.MonitorService),
			Severity:  azureSeverity(essentials.Severity),
			Timestamp: essentials.FiredDateTime,
			CustomDetails: map[string]any{
				"schema_id":         e.SchemaID,
				"signal_type":       essentials.SignalType,
				"monitor_condition": essentials.MonitorCondition,
				"description":       essentials.Description,
				"alert_context":     alertContext,
			},
		},
	}
}

type OpsgenieAlert struct {
	AlertID      string   `json:"alertId"`
	Alias        string   `json:"alias,omitempty"`
	Message      string   `json:"message"`
	Description  string   `json:"description,omitempty"`
	Status       string   `json:"status"`
	Acknowledged bool     `json:"acknowledged"`
	Tags         []string `json:"tags,omitempty"`
	CreatedAt    int64    `json:"createdAt"`
	Source       string   `json:"source,omitempty"`
	Priority     string   `json:"priority,omitempty"`
	Owner        string   `json:"owner,omitempty"`
}

// OpsgenieEvent is an Opsgenie outgoing webhook.
type OpsgenieEvent struct {
	Action string        `json:"action,omitempty"`
	Alert  OpsgenieAlert `json:"alert"`
}

// TransformOpsgenie keys on the alias so Opsgenie deduplication carries over.
func TransformOpsgenie(e OpsgenieEvent) core.EventPayload {
	action := core.EventTrigger
	switch {
	case e.Action == "Close" || e.Alert.Status == "closed":
		action = core.EventResolve
	case e.Action == "Acknowledge" || e.Alert.Acknowledged:
		action = core.EventAcknowledge
	}

	return core.EventPayload{
		EventAction: action,
		DedupKey:    "opsgenie-" + firstNonEmpty(e.Alert.Alias, e.Alert.AlertID),
		Payload: core.EventDetails{
			Summary:  e.Alert.Message,
			Source:   sourceWith("Opsgenie", e.Alert.Source),
			Severity: normalizeSeverity(e.Alert.Priority, core.SeverityWarning),
			CustomDetails: map[string]any{
				"action":      e.Action,
				"alert_id":    e.Alert.AlertID,
				"description": e.Alert.Description,
				"status":      e.Alert.Status,
				"tags":        e.Alert.Tags,
				"owner":       e.Alert.Owner,
			},
		},
	}
}
