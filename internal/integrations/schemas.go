package integrations

import (
	"github.com/hookgate/hookgate/internal/core"
	"github.com/hookgate/hookgate/internal/core/pipeline"
)

const stringMap = `{"type": "object", "additionalProperties": {"type": "string"}}`

const gitHubSchema = `{
	"type": "object",
	"properties": {
		"action": {"type": "string"},
		"repository": {
			"type": "object",
			"required": ["name", "full_name", "html_url"],
			"properties": {
				"name": {"type": "string"},
				"full_name": {"type": "string"},
				"html_url": {"type": "string"}
			}
		},
		"workflow_run": {
			"type": "object",
			"required": ["id", "name", "status", "html_url"],
			"properties": {
				"id": {"type": "integer"},
				"name": {"type": "string"},
				"status": {"enum": ["queued", "in_progress", "completed", "requested", "waiting", "pending"]},
				"conclusion": {"enum": ["success", "failure", "cancelled", "timed_out", "neutral", "skipped", "stale", "action_required", null]},
				"html_url": {"type": "string"}
			}
		},
		"check_run": {
			"type": "object",
			"required": ["id", "name", "status", "html_url"],
			"properties": {
				"id": {"type": "integer"},
				"name": {"type": "string"},
				"status": {"enum": ["queued", "in_progress", "completed", "waiting", "requested", "pending"]},
				"conclusion": {"enum": ["success", "failure", "cancelled", "timed_out", "neutral", "skipped", "stale", "action_required", null]},
				"html_url": {"type": "string"}
			}
		},
		"deployment_status": {
			"type": "object",
			"required": ["id", "state"],
			"properties": {
				"id": {"type": "integer"},
				"state": {"enum": ["pending", "queued", "in_progress", "success", "failure", "error", "inactive"]},
				"environment": {"type": "string"}
			}
		}
	}
}`

const gitLabSchema = `{
	"type": "object",
	"required": ["object_kind"],
	"properties": {
		"object_kind": {"type": "string"},
		"ref": {"type": "string"},
		"build_status": {"type": "string"},
		"status": {"type": "string"},
		"object_attributes": {
			"type": "object",
			"required": ["id", "status"],
			"properties": {
				"id": {"type": "integer"},
				"status": {"type": "string"},
				"ref": {"type": "string"},
				"url": {"type": "string"}
			}
		},
		"project": {
			"type": "object",
			"required": ["name", "path_with_namespace", "web_url"],
			"properties": {
				"name": {"type": "string"},
				"path_with_namespace": {"type": "string"},
				"web_url": {"type": "string"}
			}
		},
		"commit": {
			"type": "object",
			"properties": {"message": {"type": "string"}}
		}
	}
}`

const grafanaSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"message": {"type": "string"},
		"state": {"enum": ["alerting", "ok", "no_data", "pending", "paused"]},
		"ruleId": {"type": "integer"},
		"ruleName": {"type": "string"},
		"ruleUrl": {"type": "string"},
		"evalMatches": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["metric", "value"],
				"properties": {
					"metric": {"type": "string"},
					"value": {"type": "number"},
					"tags": ` + stringMap + `
				}
			}
		},
		"tags": ` + stringMap + `,
		"dashboardId": {"type": "integer"},
		"panelId": {"type": "integer"},
		"orgId": {"type": "integer"},
		"alerts": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["status", "labels", "startsAt"],
				"properties": {
					"status": {"type": "string"},
					"labels": ` + stringMap + `,
					"annotations": ` + stringMap + `,
					"startsAt": {"type": "string"},
					"endsAt": {"type": "string"},
					"fingerprint": {"type": "string"}
				}
			}
		},
		"status": {"type": "string"},
		"groupKey": {"type": "string"},
		"groupLabels": ` + stringMap + `,
		"commonLabels": ` + stringMap + `,
		"commonAnnotations": ` + stringMap + `
	}
}`

const prometheusSchema = `{
	"type": "object",
	"required": ["version", "groupKey", "status", "receiver", "groupLabels", "commonLabels", "commonAnnotations", "externalURL", "alerts"],
	"properties": {
		"version": {"type": "string"},
		"groupKey": {"type": "string"},
		"status": {"enum": ["firing", "resolved"]},
		"receiver": {"type": "string"},
		"groupLabels": ` + stringMap + `,
		"commonLabels": ` + stringMap + `,
		"commonAnnotations": ` + stringMap + `,
		"externalURL": {"type": "string"},
		"alerts": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["status", "labels", "annotations", "startsAt", "generatorURL", "fingerprint"],
				"properties": {
					"status": {"enum": ["firing", "resolved"]},
					"labels": ` + stringMap + `,
					"annotations": ` + stringMap + `,
					"startsAt": {"type": "string"},
					"endsAt": {"type": "string"},
					"generatorURL": {"type": "string"},
					"fingerprint": {"type": "string"}
				}
			}
		}
	}
}`

const sentrySchema = `{
	"type": "object",
	"properties": {
		"action": {"enum": ["created", "resolved", "assigned", "unassigned", "ignored", "archived"]},
		"issue": {
			"type": "object",
			"required": ["id", "shortId", "title", "culprit", "level", "status", "permalink"],
			"properties": {
				"id": {"type": "string"},
				"shortId": {"type": "string"},
				"title": {"type": "string"},
				"culprit": {"type": "string"},
				"level": {"enum": ["fatal", "error", "warning", "info", "debug"]},
				"status": {"enum": ["unresolved", "resolved", "ignored"]},
				"permalink": {"type": ["string", "null"]}
			}
		},
		"event": {
			"type": "object",
			"required": ["event_id", "level", "timestamp", "platform"],
			"properties": {
				"event_id": {"type": "string"},
				"message": {"type": "string"},
				"level": {"type": "string"},
				"timestamp": {"type": "number"},
				"platform": {"type": "string"},
				"tags": ` + stringMap + `
			}
		},
		"project": {
			"type": "object",
			"required": ["name", "slug"],
			"properties": {
				"name": {"type": "string"},
				"slug": {"type": "string"}
			}
		}
	}
}`

const datadogSchema = `{
	"type": "object",
	"properties": {
		"event_type": {"type": "string"},
		"title": {"type": "string"},
		"text": {"type": "string"},
		"alert_type": {"enum": ["error", "warning", "info", "success"]},
		"date_happened": {"type": "number"},
		"tags": {"type": "array", "items": {"type": "string"}},
		"host": {"type": "string"},
		"aggregation_key": {"type": "string"},
		"source_type_name": {"type": "string"},
		"alert": {
			"type": "object",
			"properties": {
				"id": {"type": "string"},
				"title": {"type": "string"},
				"message": {"type": "string"},
				"status": {"type": "string"},
				"severity": {"type": "string"}
			}
		},
		"monitor": {
			"type": "object",
			"properties": {
				"id": {"type": "integer"},
				"name": {"type": "string"},
				"status": {"type": "string"},
				"message": {"type": "string"}
			}
		}
	}
}`

const webhookSchema = `{
	"type": "object",
	"properties": {
		"summary": {"type": "string"},
		"title": {"type": "string"},
		"message": {"type": "string"},
		"name": {"type": "string"},
		"severity": {"type": "string"},
		"level": {"type": "string"},
		"priority": {"type": "string"},
		"status": {"type": "string"},
		"action": {"type": "string"},
		"state": {"type": "string"},
		"id": {"type": ["string", "number"]},
		"alert_id": {"type": "string"},
		"dedup_key": {"type": "string"},
		"source": {"type": "string"},
		"origin": {"type": "string"},
		"system": {"type": "string"}
	}
}`

const cloudWatchAlarmSchema = `{
	"type": "object",
	"required": ["AlarmName", "NewStateValue", "NewStateReason", "StateChangeTime", "Region"],
	"properties": {
		"AlarmName": {"type": "string"},
		"AlarmDescription": {"type": ["string", "null"]},
		"NewStateValue": {"enum": ["OK", "ALARM", "INSUFFICIENT_DATA"]},
		"NewStateReason": {"type": "string"},
		"StateChangeTime": {"type": "string"},
		"Region": {"type": "string"},
		"Trigger": {
			"type": "object",
			"properties": {
				"MetricName": {"type": "string"},
				"Namespace": {"type": "string"},
				"Statistic": {"type": "string"},
				"Threshold": {"type": "number"}
			}
		}
	}
}`

const snsNotificationSchema = `{
	"type": "object",
	"required": ["Type", "Message"],
	"properties": {
		"Type": {"const": "Notification"},
		"Message": {"type": "string"},
		"MessageId": {"type": "string"},
		"TopicArn": {"type": "string"},
		"Timestamp": {"type": "string"}
	}
}`

const pagerDutySchema = `{
	"type": "object",
	"anyOf": [
		{"required": ["event"]},
		{"required": ["messages"]}
	],
	"properties": {
		"event": {
			"type": "object",
			"required": ["event_type", "incident"],
			"properties": {
				"event_type": {"enum": ["incident.triggered", "incident.acknowledged", "incident.resolved", "incident.escalated"]},
				"incident": {
					"type": "object",
					"required": ["id", "incident_number", "title", "status", "urgency", "created_at"],
					"properties": {
						"id": {"type": "string"},
						"incident_number": {"type": "integer"},
						"title": {"type": "string"},
						"description": {"type": "string"},
						"status": {"enum": ["triggered", "acknowledged", "resolved"]},
						"urgency": {"enum": ["high", "low"]},
						"created_at": {"type": "string"},
						"service": {
							"type": "object",
							"required": ["id", "name"],
							"properties": {
								"id": {"type": "string"},
								"name": {"type": "string"}
							}
						}
					}
				}
			}
		},
		"messages": {
			"type": "array",
			"minItems": 1,
			"prefixItems": [{"$ref": "#/$defs/message", "required": ["event", "incident"]}],
			"items": {"$ref": "#/$defs/message"}
		}
	},
	"$defs": {
		"message": {
			"type": "object",
			"required": ["event"],
			"properties": {
				"event": {"type": "string"},
				"incident": {
					"type": "object",
					"required": ["incident_key", "incident_number", "created_on", "status", "html_url", "service"],
					"properties": {
						"incident_key": {"type": "string"},
						"incident_number": {"type": "integer"},
						"created_on": {"type": "string"},
						"status": {"type": "string"},
						"html_url": {"type": "string"},
						"service": {
							"type": "object",
							"required": ["name"],
							"properties": {"name": {"type": "string"}}
						},
						"trigger_summary_data": {
							"type": "object",
							"properties": {
								"subject": {"type": "string"},
								"description": {"type": "string"}
							}
						}
					}
				}
			}
		}
	}
}`

const newRelicSchema = `{
	"type": "object",
	"anyOf": [
		{"required": ["incident"]},
		{"required": ["alert"]},
		{"required": ["alertTitle"]},
		{"required": ["alertType"]}
	],
	"properties": {
		"account_id": {"type": "integer"},
		"account_name": {"type": "string"},
		"event_type": {"type": "string"},
		"incident": {
			"type": "object",
			"required": ["id", "title", "state", "severity", "created_at", "updated_at"],
			"properties": {
				"id": {"type": "string"},
				"title": {"type": "string"},
				"state": {"enum": ["open", "acknowledged", "resolved"]},
				"severity": {"enum": ["critical", "warning", "info"]},
				"created_at": {"type": "string"},
				"updated_at": {"type": "string"},
				"condition_name": {"type": "string"},
				"condition_id": {"type": "integer"},
				"policy_name": {"type": "string"},
				"policy_id": {"type": "integer"}
			}
		},
		"alert": {
			"type": "object",
			"required": ["id", "alert_policy_name", "alert_condition_name", "severity", "timestamp", "state"],
			"properties": {
				"id": {"type": "string"},
				"alert_policy_name": {"type": "string"},
				"alert_condition_name": {"type": "string"},
				"severity": {"type": "string"},
				"timestamp": {"type": "number"},
				"state": {"enum": ["open", "closed"]},
				"message": {"type": "string"}
			}
		},
		"alertType": {"type": "string"},
		"alertSeverity": {"type": "string"},
		"alertTitle": {"type": "string"},
		"alertMessage": {"type": "string"},
		"alertTimestamp": {"type": "number"}
	}
}`

const azureSchema = `{
	"type": "object",
	"properties": {
		"schemaId": {"type": "string"},
		"data": {
			"type": "object",
			"properties": {
				"essentials": {
					"type": "object",
					"properties": {
						"alertId": {"type": "string"},
						"alertRule": {"type": "string"},
						"severity": {"type": "string"},
						"signalType": {"type": "string"},
						"monitorCondition": {"type": "string"},
						"monitorService": {"type": "string"},
						"firedDateTime": {"type": "string"},
						"description": {"type": "string"}
					}
				},
				"alertContext": {"type": "object"}
			}
		},
		"properties": {"type": "object"}
	}
}`

const opsgenieSchema = `{
	"type": "object",
	"required": ["alert"],
	"properties": {
		"action": {"enum": ["Create", "Close", "Acknowledge", "AddNote", "Assign"]},
		"alert": {
			"type": "object",
			"required": ["alertId", "message", "status", "acknowledged", "isSeen", "createdAt", "updatedAt"],
			"properties": {
				"alertId": {"type": "string"},
				"alias": {"type": "string"},
				"message": {"type": "string"},
				"description": {"type": "string"},
				"status": {"enum": ["open", "closed", "acknowledged"]},
				"acknowledged": {"type": "boolean"},
				"isSeen": {"type": "boolean"},
				"tags": {"type": "array", "items": {"type": "string"}},
				"createdAt": {"type": "number"},
				"updatedAt": {"type": "number"},
				"source": {"type": "string"},
				"priority": {"enum": ["P1", "P2", "P3", "P4", "P5"]},
				"owner": {"type": "string"},
				"teams": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["id", "name"],
						"properties": {
							"id": {"type": "string"},
							"name": {"type": "string"}
						}
					}
				}
			}
		}
	}
}`

var (
	snsSchema = pipeline.MustCompileSchema("sns-notification", snsNotificationSchema)

	schemas = map[core.IntegrationType]*pipeline.Schema{
		core.IntegrationGitHub:     pipeline.MustCompileSchema("github", gitHubSchema),
		core.IntegrationGitLab:     pipeline.MustCompileSchema("gitlab", gitLabSchema),
		core.IntegrationGrafana:    pipeline.MustCompileSchema("grafana", grafanaSchema),
		core.IntegrationPrometheus: pipeline.MustCompileSchema("prometheus", prometheusSchema),
		core.IntegrationSentry:     pipeline.MustCompileSchema("sentry", sentrySchema),
		core.IntegrationDatadog:    pipeline.MustCompileSchema("datadog", datadogSchema),
		core.IntegrationWebhook:    pipeline.MustCompileSchema("webhook", webhookSchema),
		core.IntegrationCloudWatch: pipeline.MustCompileSchema("cloudwatch", cloudWatchAlarmSchema),
		core.IntegrationPagerDuty:  pipeline.MustCompileSchema("pagerduty", pagerDutySchema),
		core.IntegrationNewRelic:   pipeline.MustCompileSchema("newrelic", newRelicSchema),
		core.IntegrationAzure:      pipeline.MustCompileSchema("azure", azureSchema),
		core.IntegrationOpsgenie:   pipeline.MustCompileSchema("opsgenie", opsgenieSchema),
	}
)

// SchemaFor returns the payload schema of an integration type.
func SchemaFor(t core.IntegrationType) (*pipeline.Schema, bool) {
	s, ok := schemas[t]
	return s, ok
}
