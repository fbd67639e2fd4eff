package integrations

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hookgate/hookgate/internal/core"
	"github.com/hookgate/hookgate/internal/core/events"
)

// normalizeSeverity maps provider levels and priorities onto the four
// canonical severities.
func normalizeSeverity(level string, fallback core.Severity) core.Severity {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "critical", "fatal", "high", "p1", "sev1", "disaster":
		return core.SeverityCritical
	case "error", "err", "p2", "sev2", "major":
		return core.SeverityError
	case "warning", "warn", "medium", "p3", "sev3", "minor", "average":
		return core.SeverityWarning
	case "info", "information", "low", "p4", "p5", "debug", "success", "ok":
		return core.SeverityInfo
	default:
		return fallback
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func sourceWith(provider, detail string) string {
	if detail == "" {
		return provider
	}
	return provider + " - " + detail
}

// GitHubRepository identifies the repository of a GitHub event.
type GitHubRepository struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	HTMLURL  string `json:"html_url"`
}

// GitHubRun is the shared shape of workflow_run and check_run.
type GitHubRun struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion,omitempty"`
	HTMLURL    string `json:"html_url"`
}

type GitHubDeploymentStatus struct {
	ID          int64  `json:"id"`
	State       string `json:"state"`
	Environment string `json:"environment,omitempty"`
}

// GitHubEvent covers workflow_run, check_run and deployment_status deliveries.
type GitHubEvent struct {
	Action           string                  `json:"action,omitempty"`
	Repository       *GitHubRepository       `json:"repository,omitempty"`
	WorkflowRun      *GitHubRun              `json:"workflow_run,omitempty"`
	CheckRun         *GitHubRun              `json:"check_run,omitempty"`
	DeploymentStatus *GitHubDeploymentStatus `json:"deployment_status,omitempty"`
}

func (e GitHubEvent) source() string {
	if e.Repository == nil {
		return "GitHub"
	}
	return sourceWith("GitHub", e.Repository.FullName)
}

func failedConclusion(conclusion string) bool {
	switch conclusion {
	case "failure", "cancelled", "timed_out", "action_required", "stale":
		return true
	}
	return false
}

// TransformGitHub turns failed runs into triggers, successful runs into
// resolves and in-flight runs into acknowledges.
func TransformGitHub(e GitHubEvent) core.EventPayload {
	run, kind := e.WorkflowRun, "Workflow"
	if run == nil {
		run, kind = e.CheckRun, "Check"
	}

	if run != nil {
		details := map[string]any{"action": e.Action, "repository": e.Repository, strings.ToLower(kind) + "_run": run}
		dedupKey := "github-" + strconv.FormatInt(run.ID, 10)
		failed := failedConclusion(run.Conclusion)

		if run.Status != "completed" && !failed {
			return core.EventPayload{
				EventAction: core.EventAcknowledge,
				DedupKey:    dedupKey,
				Payload: core.EventDetails{
					Summary:       kind + " in progress: " + run.Name,
					Source:        e.source(),
					Severity:      core.SeverityInfo,
					CustomDetails: details,
				},
			}
		}

		action, severity := core.EventResolve, core.SeverityInfo
		if failed {
			action, severity = core.EventTrigger, core.SeverityCritical
		}
		return core.EventPayload{
			EventAction: action,
			DedupKey:    dedupKey,
			Payload: core.EventDetails{
				Summary:       kind + " failed: " + run.Name,
				Source:        e.source(),
				Severity:      severity,
				CustomDetails: details,
			},
		}
	}

	if d := e.DeploymentStatus; d != nil {
		dedupKey := "github-deployment-" + strconv.FormatInt(d.ID, 10)
		details := map[string]any{"action": e.Action, "repository": e.Repository, "deployment_status": d}
		event := core.EventPayload{
			DedupKey: dedupKey,
			Payload: core.EventDetails{
				Summary:       fmt.Sprintf("Deployment %s: %s", d.State, d.Environment),
				Source:        e.source(),
				Severity:      core.SeverityInfo,
				CustomDetails: details,
			},
		}
		switch d.State {
		case "failure", "error":
			event.EventAction = core.EventTrigger
			event.Payload.Severity = core.SeverityCritical
		case "success", "inactive":
			event.EventAction = core.EventResolve
		default:
			event.EventAction = core.EventAcknowledge
		}
		return event
	}

	return core.EventPayload{
		EventAction: core.EventAcknowledge,
		DedupKey:    "github-unknown-" + events.NewID(),
		Payload: core.EventDetails{
			Summary:  "GitHub event received: " + firstNonEmpty(e.Action, "unknown"),
			Source:   e.source(),
			Severity: core.SeverityInfo,
		},
	}
}

type GitLabProject struct {
	Name              string `json:"name"`
	PathWithNamespace string `json:"path_with_namespace"`
	WebURL            string `json:"web_url"`
}

type GitLabPipeline struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	Ref    string `json:"ref,omitempty"`
	URL    string `json:"url,omitempty"`
}

// GitLabEvent covers pipeline and build (job) hooks.
type GitLabEvent struct {
	ObjectKind       string          `json:"object_kind"`
	Ref              string          `json:"ref,omitempty"`
	BuildStatus      string          `json:"build_status,omitempty"`
	Status           string          `json:"status,omitempty"`
	ObjectAttributes *GitLabPipeline `json:"object_attributes,omitempty"`
	Project          *GitLabProject  `json:"project,omitempty"`
	Commit           *struct {
		Message string `json:"message"`
	} `json:"commit,omitempty"`
}

// TransformGitLab maps failed pipelines and jobs to triggers and successful
// ones to resolves. Anything in between acknowledges.
func TransformGitLab(e GitLabEvent) core.EventPayload {
	status := firstNonEmpty(e.BuildStatus, e.Status)
	ref := e.Ref
	id := ""
	if e.ObjectAttributes != nil {
		status = firstNonEmpty(e.ObjectAttributes.Status, status)
		ref = firstNonEmpty(e.ObjectAttributes.Ref, ref)
		id = strconv.FormatInt(e.ObjectAttributes.ID, 10)
	}

	source := "GitLab"
	project := ""
	if e.Project != nil {
		source = sourceWith("GitLab", e.Project.PathWithNamespace)
		project = e.Project.PathWithNamespace
	}

	var keyParts []string
	for _, part := range []string{project, ref} {
		if part != "" {
			keyParts = append(keyParts, part)
		}
	}
	key := firstNonEmpty(strings.Join(keyParts, "-"), id)
	if key == "" {
		key = events.NewID()
	}
	dedupKey := "gitlab-" + key

	kind := "Build"
	if e.ObjectKind == "pipeline" {
		kind = "Pipeline"
	}

	event := core.EventPayload{
		DedupKey: dedupKey,
		Payload: core.EventDetails{
			Summary:  fmt.Sprintf("%s %s: %s", kind, firstNonEmpty(status, "unknown"), firstNonEmpty(ref, "unknown")),
			Source:   source,
			Severity: core.SeverityInfo,
			CustomDetails: map[string]any{
				"object_kind":       e.ObjectKind,
				"project":           e.Project,
				"status":            status,
				"ref":               ref,
				"object_attributes": e.ObjectAttributes,
				"commit":            e.Commit,
			},
		},
	}
	switch status {
	case "failed":
		event.EventAction = core.EventTrigger
		event.Payload.Severity = core.SeverityError
	case "success":
		event.EventAction = core.EventResolve
	default:
		event.EventAction = core.EventAcknowledge
	}
	return event
}

// AlertmanagerAlert is one alert of an Alertmanager or Grafana unified
// alerting notification.
type AlertmanagerAlert struct {
	Status       string            `json:"status"`
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations,omitempty"`
	StartsAt     string            `json:"startsAt"`
	EndsAt       string            `json:"endsAt,omitempty"`
	GeneratorURL string            `json:"generatorURL,omitempty"`
	Fingerprint  string            `json:"fingerprint,omitempty"`
}

// PrometheusEvent is an Alertmanager webhook notification.
type PrometheusEvent struct {
	Version           string              `json:"version"`
	GroupKey          string              `json:"groupKey"`
	Status            string              `json:"status"`
	Receiver          string              `json:"receiver"`
	GroupLabels       map[string]string   `json:"groupLabels"`
	CommonLabels      map[string]string   `json:"commonLabels"`
	CommonAnnotations map[string]string   `json:"commonAnnotations"`
	ExternalURL       string              `json:"externalURL"`
	Alerts            []AlertmanagerAlert `json:"alerts"`
}

// TransformPrometheus deduplicates by the Alertmanager group key.
func TransformPrometheus(e PrometheusEvent) core.EventPayload {
	action := core.EventTrigger
	if e.Status == "resolved" {
		action = core.EventResolve
	}

	summary := firstNonEmpty(e.CommonAnnotations["summary"], e.CommonAnnotations["description"], e.CommonLabels["alertname"])
	if summary == "" && len(e.Alerts) > 0 {
		summary = firstNonEmpty(e.Alerts[0].Annotations["summary"], e.Alerts[0].Labels["alertname"])
	}

	fingerprints := make([]string, 0, len(e.Alerts))
	for _, a := range e.Alerts {
		fingerprints = append(fingerprints, a.Fingerprint)
	}

	return core.EventPayload{
		EventAction: action,
		DedupKey:    "prometheus-" + e.GroupKey,
		Payload: core.EventDetails{
			Summary:   firstNonEmpty(summary, "Prometheus alert"),
			Source:    sourceWith("Prometheus", e.Receiver),
			Severity:  normalizeSeverity(e.CommonLabels["severity"], core.SeverityCritical),
			Timestamp: firstAlertStart(e.Alerts),
			CustomDetails: map[string]any{
				"externalURL":  e.ExternalURL,
				"groupLabels":  e.GroupLabels,
				"commonLabels": e.CommonLabels,
				"alertCount":   len(e.Alerts),
				"fingerprints": fingerprints,
			},
		},
	}
}

func firstAlertStart(alerts []AlertmanagerAlert) string {
	if len(alerts) == 0 {
		return ""
	}
	return alerts[0].StartsAt
}

type GrafanaEvalMatch struct {
	Metric string            `json:"metric"`
	Value  float64           `json:"value"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// GrafanaEvent accepts both legacy dashboard alerts and unified alerting
// notifications.
type GrafanaEvent struct {
	Title             string              `json:"title,omitempty"`
	Message           string              `json:"message,omitempty"`
	State             string              `json:"state,omitempty"`
	RuleID            int64               `json:"ruleId,omitempty"`
	RuleName          string              `json:"ruleName,omitempty"`
	RuleURL           string              `json:"ruleUrl,omitempty"`
	EvalMatches       []GrafanaEvalMatch  `json:"evalMatches,omitempty"`
	Tags              map[string]string   `json:"tags,omitempty"`
	Alerts            []AlertmanagerAlert `json:"alerts,omitempty"`
	Status            string              `json:"status,omitempty"`
	GroupKey          string              `json:"groupKey,omitempty"`
	CommonLabels      map[string]string   `json:"commonLabels,omitempty"`
	CommonAnnotations map[string]string   `json:"commonAnnotations,omitempty"`
}

func TransformGrafana(e GrafanaEvent) core.EventPayload {
	if len(e.Alerts) > 0 {
		action := core.EventTrigger
		if e.Status == "resolved" {
			action = core.EventResolve
		}
		key := firstNonEmpty(e.GroupKey, e.CommonLabels["alertname"], e.Title)
		return core.EventPayload{
			EventAction: action,
			DedupKey:    "grafana-" + key,
			Payload: core.EventDetails{
				Summary:   firstNonEmpty(e.Title, e.CommonAnnotations["summary"], e.CommonLabels["alertname"], "Grafana alert"),
				Source:    "Grafana",
				Severity:  normalizeSeverity(e.CommonLabels["severity"], core.SeverityCritical),
				Timestamp: firstAlertStart(e.Alerts),
				CustomDetails: map[string]any{
					"message":      e.Message,
					"commonLabels": e.CommonLabels,
					"alertCount":   len(e.Alerts),
				},
			},
		}
	}

	key := firstNonEmpty(e.RuleName, e.Title)
	if e.RuleID != 0 {
		key = strconv.FormatInt(e.RuleID, 10)
	}
	event := core.EventPayload{
		DedupKey: "grafana-" + key,
		Payload: core.EventDetails{
			Summary:  firstNonEmpty(e.Title, e.RuleName, "Grafana alert"),
			Source:   sourceWith("Grafana", e.RuleName),
			Severity: normalizeSeverity(e.Tags["severity"], core.SeverityCritical),
			CustomDetails: map[string]any{
				"message":     e.Message,
				"ruleUrl":     e.RuleURL,
				"evalMatches": e.EvalMatches,
				"tags":        e.Tags,
			},
		},
	}
	switch e.State {
	case "ok":
		event.EventAction = core.EventResolve
	case "no_data":
		event.EventAction = core.EventTrigger
		event.Payload.Severity = core.SeverityWarning
	case "pending", "paused":
		event.EventAction = core.EventAcknowledge
		event.Payload.Severity = core.SeverityInfo
	default:
		event.EventAction = core.EventTrigger
	}
	return event
}

type SentryIssue struct {
	ID        string `json:"id"`
	ShortID   string `json:"shortId"`
	Title     string `json:"title"`
	Culprit   string `json:"culprit"`
	Level     string `json:"level"`
	Status    string `json:"status"`
	Permalink string `json:"permalink,omitempty"`
}

type SentryErrorEvent struct {
	EventID   string            `json:"event_id"`
	Message   string            `json:"message,omitempty"`
	Level     string            `json:"level"`
	Timestamp float64           `json:"timestamp"`
	Platform  string            `json:"platform"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// SentryEvent is an issue alert or issue webhook.
type SentryEvent struct {
	Action  string            `json:"action,omitempty"`
	Issue   *SentryIssue      `json:"issue,omitempty"`
	Event   *SentryErrorEvent `json:"event,omitempty"`
	Project *struct {
		Name string `json:"name"`
		Slug string `json:"slug"`
	} `json:"project,omitempty"`
}

func TransformSentry(e SentryEvent) core.EventPayload {
	var id, summary, level, status string
	if e.Issue != nil {
		id, summary, level, status = e.Issue.ID, e.Issue.Title, e.Issue.Level, e.Issue.Status
	}
	if e.Event != nil {
		id = firstNonEmpty(id, e.Event.EventID)
		summary = firstNonEmpty(summary, e.Event.Message)
		level = firstNonEmpty(level, e.Event.Level)
	}
	if id == "" {
		id = events.NewID()
	}

	action := core.EventTrigger
	switch {
	case e.Action == "resolved" || status == "resolved":
		action = core.EventResolve
	case e.Action == "ignored" || e.Action == "archived" || e.Action == "assigned" || status == "ignored":
		action = core.EventAcknowledge
	}

	source := "Sentry"
	if e.Project != nil {
		source = sourceWith("Sentry", e.Project.Slug)
	}

	return core.EventPayload{
		EventAction: action,
		DedupKey:    "sentry-" + id,
		Payload: core.EventDetails{
			Summary:  firstNonEmpty(summary, "Sentry issue"),
			Source:   source,
			Severity: normalizeSeverity(level, core.SeverityError),
			CustomDetails: map[string]any{
				"action": e.Action,
				"issue":  e.Issue,
			},
		},
	}
}

// DatadogEvent is the default Datadog webhook body.
type DatadogEvent struct {
	EventType      string   `json:"event_type,omitempty"`
	Title          string   `json:"title,omitempty"`
	Text           string   `json:"text,omitempty"`
	AlertType      string   `json:"alert_type,omitempty"`
	DateHappened   float64  `json:"date_happened,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Host           string   `json:"host,omitempty"`
	AggregationKey string   `json:"aggregation_key,omitempty"`
	SourceTypeName string   `json:"source_type_name,omitempty"`
	Alert          *struct {
		ID       string `json:"id,omitempty"`
		Title    string `json:"title,omitempty"`
		Message  string `json:"message,omitempty"`
		Status   string `json:"status,omitempty"`
		Severity string `json:"severity,omitempty"`
	} `json:"alert,omitempty"`
	Monitor *struct {
		ID      int64  `json:"id,omitempty"`
		Name    string `json:"name,omitempty"`
		Status  string `json:"status,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"monitor,omitempty"`
}

func recoveredStatus(status string) bool {
	switch strings.ToLower(status) {
	case "ok", "recovered", "resolved", "success":
		return true
	}
	return false
}

func TransformDatadog(e DatadogEvent) core.EventPayload {
	var alertID, alertTitle, alertStatus, alertSeverity, monitorID, monitorName, monitorStatus string
	if e.Alert != nil {
		alertID, alertTitle, alertStatus, alertSeverity = e.Alert.ID, e.Alert.Title, e.Alert.Status, e.Alert.Severity
	}
	if e.Monitor != nil {
		if e.Monitor.ID != 0 {
			monitorID = strconv.FormatInt(e.Monitor.ID, 10)
		}
		monitorName, monitorStatus = e.Monitor.Name, e.Monitor.Status
	}

	action := core.EventTrigger
	if e.AlertType == "success" || recoveredStatus(alertStatus) || recoveredStatus(monitorStatus) {
		action = core.EventResolve
	}

	key := firstNonEmpty(e.AggregationKey, alertID, monitorID)
	if key == "" {
		key = events.NewID()
	}

	return core.EventPayload{
		EventAction: action,
		DedupKey:    "datadog-" + key,
		Payload: core.EventDetails{
			Summary:  firstNonEmpty(e.Title, alertTitle, monitorName, "Datadog alert"),
			Source:   sourceWith("Datadog", e.Host),
			Severity: normalizeSeverity(firstNonEmpty(alertSeverity, e.AlertType), core.SeverityWarning),
			CustomDetails: map[string]any{
				"event_type": e.EventType,
				"text":       e.Text,
				"tags":       e.Tags,
				"monitor":    e.Monitor,
			},
		},
	}
}

// WebhookEvent is an arbitrary JSON object posted by a generic sender.
type WebhookEvent map[string]any

func (e WebhookEvent) str(keys ...string) string {
	for _, k := range keys {
		switch v := e[k].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// TransformWebhook reads the common field aliases and keeps the whole body
// as custom details. A missing dedup key lets the processor assign one.
func TransformWebhook(e WebhookEvent) core.EventPayload {
	action := core.EventTrigger
	switch strings.ToLower(e.str("action", "status", "state")) {
	case "resolve", "resolved", "ok", "closed", "recovered":
		action = core.EventResolve
	case "ack", "acknowledge", "acknowledged":
		action = core.EventAcknowledge
	}

	dedupKey := e.str("dedup_key", "alert_id", "id")
	if dedupKey != "" && e.str("dedup_key") == "" {
		dedupKey = "webhook-" + dedupKey
	}

	return core.EventPayload{
		EventAction: action,
		DedupKey:    dedupKey,
		Payload: core.EventDetails{
			Summary:       firstNonEmpty(e.str("summary", "title", "message", "name"), "Webhook event"),
			Source:        firstNonEmpty(e.str("source", "origin", "system"), "Webhook"),
			Severity:      normalizeSeverity(e.str("severity", "level", "priority"), core.SeverityWarning),
			CustomDetails: map[string]any(e),
		},
	}
}

// CloudWatchAlarm is the alarm state change message delivered through SNS.
type CloudWatchAlarm struct {
	AlarmName        string `json:"AlarmName"`
	AlarmDescription string `json:"AlarmDescription,omitempty"`
	NewStateValue    string `json:"NewStateValue"`
	NewStateReason   string `json:"NewStateReason"`
	StateChangeTime  string `json:"StateChangeTime"`
	Region           string `json:"Region"`
	Trigger          *struct {
		MetricName string  `json:"MetricName,omitempty"`
		Namespace  string  `json:"Namespace,omitempty"`
		Statistic  string  `json:"Statistic,omitempty"`
		Threshold  float64 `json:"Threshold,omitempty"`
	} `json:"Trigger,omitempty"`
}

func TransformCloudWatch(a CloudWatchAlarm) core.EventPayload {
	event := core.EventPayload{
		DedupKey: "cloudwatch-" + a.Region + "-" + a.AlarmName,
		Payload: core.EventDetails{
			Summary:   firstNonEmpty(a.AlarmDescription, a.AlarmName),
			Source:    sourceWith("CloudWatch", a.Region),
			Severity:  core.SeverityCritical,
			Timestamp: a.StateChangeTime,
			CustomDetails: map[string]any{
				"alarm_name": a.AlarmName,
				"state":      a.NewStateValue,
				"reason":     a.NewStateReason,
				"trigger":    a.Trigger,
			},
		},
	}
	switch a.NewStateValue {
	case "OK":
		event.EventAction = core.EventResolve
		event.Payload.Severity = core.SeverityInfo
	case "INSUFFICIENT_DATA":
		event.EventAction = core.EventTrigger
		event.Payload.Severity = core.SeverityWarning
	default:
		event.EventAction = core.EventTrigger
	}
	return event
}
