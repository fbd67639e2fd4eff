package integrations

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hookgate/hookgate/internal/core"
	"github.com/hookgate/hookgate/internal/core/auth"
	"github.com/hookgate/hookgate/internal/core/pipeline"
	ierrors "github.com/hookgate/hookgate/internal/errors"
	"github.com/hookgate/hookgate/internal/jsoncodec"
	"github.com/hookgate/hookgate/internal/observability"
)

const (
	snsSubscriptionConfirmation = "SubscriptionConfirmation"
	snsNotification             = "Notification"
)

var snsHostPattern = regexp.MustCompile(`^sns\.[a-z0-9-]+\.amazonaws\.com(\.cn)?$`)

// snsEnvelope is an SNS delivery or a bare CloudWatch alarm posted directly.
type snsEnvelope struct {
	Type         string `json:"Type"`
	SubscribeURL string `json:"SubscribeURL"`
	TopicArn     string `json:"TopicArn"`
	Message      string `json:"Message"`
	AlarmName    string `json:"AlarmName"`
}

// CloudWatchHandler accepts CloudWatch alarms delivered over SNS, confirming
// SNS subscriptions on the way.
type CloudWatchHandler struct {
	deps Deps
}

func NewCloudWatchHandler(deps Deps) *CloudWatchHandler {
	if deps.Settings.MaxBodyBytes <= 0 {
		deps.Settings.MaxBodyBytes = pipeline.DefaultMaxBodyBytes
	}
	return &CloudWatchHandler{deps: deps}
}

func (h *CloudWatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	result, ierr := h.handle(r)
	if ierr != nil {
		if ierr.StatusCode() >= http.StatusInternalServerError {
			h.logger().Error("integration.cloudwatch_error", zap.Error(ierr))
		}
		ierrors.WriteIntegrationError(w, ierr)
		return
	}
	if result.Action == "" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "subscription_confirmed"})
		return
	}
	writeJSON(w, http.StatusAccepted, pipeline.Accepted{Status: "success", Result: result})
}

func (h *CloudWatchHandler) handle(r *http.Request) (core.ProcessResult, *ierrors.IntegrationError) {
	ctx := r.Context()
	id := strings.TrimSpace(r.URL.Query().Get(pipeline.QueryIntegrationID))
	if id == "" {
		return core.ProcessResult{}, ierrors.NewInvalidPayload("integrationId is required")
	}

	if h.deps.Integrations == nil {
		return core.ProcessResult{}, ierrors.NewIntegrationInternal("Integration store is not configured")
	}
	integration, err := h.deps.Integrations.FindIntegration(ctx, id)
	if err != nil {
		return core.ProcessResult{}, ierrors.ToIntegrationError(err)
	}
	if integration == nil || !integration.Enabled {
		return core.ProcessResult{}, ierrors.NewIntegrationNotFound(id)
	}
	if !auth.Authorize(auth.ExtractKey(r), integration.Key) {
		return core.ProcessResult{}, ierrors.NewIntegrationUnauthorized("Invalid integration key")
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, h.deps.Settings.MaxBodyBytes+1))
	if err != nil {
		return core.ProcessResult{}, ierrors.NewInvalidPayload("Unable to read request body").WithCause(err)
	}
	if int64(len(raw)) > h.deps.Settings.MaxBodyBytes {
		return core.ProcessResult{}, ierrors.NewInvalidPayload(fmt.Sprintf("Request body exceeds %d bytes", h.deps.Settings.MaxBodyBytes))
	}

	var body any
	var envelope snsEnvelope
	if err := jsoncodec.Unmarshal(raw, &body); err != nil {
		return core.ProcessResult{}, ierrors.NewInvalidPayload("Invalid JSON in request body")
	}
	if err := jsoncodec.Convert(body, &envelope); err != nil {
		return core.ProcessResult{}, ierrors.NewInvalidPayload("Invalid CloudWatch payload format")
	}

	var alarmDoc any
	switch {
	case envelope.Type == snsSubscriptionConfirmation && envelope.SubscribeURL != "":
		return core.ProcessResult{}, h.confirmSubscription(ctx, integration.ID, envelope)

	case envelope.Type == snsNotification && envelope.Message != "":
		if fields := snsSchema.Validate(body); len(fields) > 0 {
			h.logger().Warn("integration.cloudwatch_sns_validation_failed",
				zap.String("integration_id", integration.ID),
				zap.Any("errors", fields))
		}
		if err := jsoncodec.Unmarshal([]byte(envelope.Message), &alarmDoc); err != nil {
			return core.ProcessResult{}, ierrors.NewInvalidPayload("Invalid CloudWatch message in SNS payload")
		}

	case envelope.AlarmName != "":
		alarmDoc = body

	default:
		return core.ProcessResult{}, ierrors.NewInvalidPayload("Invalid CloudWatch payload format")
	}

	schema, _ := SchemaFor(core.IntegrationCloudWatch)
	if fields := schema.Validate(alarmDoc); len(fields) > 0 {
		return core.ProcessResult{}, ierrors.NewSchemaValidation(fields)
	}
	var alarm CloudWatchAlarm
	if err := jsoncodec.Convert(alarmDoc, &alarm); err != nil {
		return core.ProcessResult{}, ierrors.NewInvalidPayload("Invalid CloudWatch payload format")
	}

	if h.deps.Events == nil {
		return core.ProcessResult{}, ierrors.ToIntegrationError(errNoProcessor)
	}
	result, err := h.deps.Events.ProcessEvent(ctx, TransformCloudWatch(alarm), integration.ServiceID, integration.ID)
	if err != nil {
		return core.ProcessResult{}, ierrors.ToIntegrationError(err)
	}
	if result.Action == "" {
		result.Action = "ignored"
	}
	return result, nil
}

func (h *CloudWatchHandler) confirmSubscription(ctx context.Context, integrationID string, envelope snsEnvelope) *ierrors.IntegrationError {
	h.logger().Info("integration.cloudwatch_subscription_confirmation",
		zap.String("integration_id", integrationID),
		zap.String("topic_arn", envelope.TopicArn))

	target, err := ValidateSubscribeURL(envelope.SubscribeURL)
	if err != nil {
		h.logger().Warn("integration.cloudwatch_subscription_rejected",
			zap.String("integration_id", integrationID),
			zap.Error(err))
		return ierrors.NewInvalidPayload("Invalid SNS subscription URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return ierrors.NewIntegrationInternal("Failed to confirm subscription").WithCause(err)
	}
	resp, err := h.client().Do(req)
	if err != nil {
		return ierrors.NewIntegrationInternal("Failed to confirm subscription").WithCause(err)
	}
	defer resp.Body.Close() // nolint:errcheck // confirmation body is discarded
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ierrors.NewIntegrationInternal("Failed to confirm subscription").
			WithCause(fmt.Errorf("sns responded %d", resp.StatusCode))
	}

	h.logger().Info("integration.cloudwatch_subscription_confirmed",
		zap.String("integration_id", integrationID),
		zap.String("topic_arn", envelope.TopicArn))
	return nil
}

// ValidateSubscribeURL accepts only https URLs on an SNS endpoint host and
// returns the URL rebuilt from its parsed parts.
func ValidateSubscribeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "https" {
		return "", fmt.Errorf("protocol must be https")
	}
	if u.User != nil || u.Port() != "" {
		return "", fmt.Errorf("unexpected userinfo or port")
	}
	host := strings.ToLower(u.Hostname())
	if !snsHostPattern.MatchString(host) {
		return "", fmt.Errorf("invalid sns host %q", host)
	}
	rebuilt := url.URL{Scheme: "https", Host: host, Path: u.Path, RawQuery: u.RawQuery}
	return rebuilt.String(), nil
}

func (h *CloudWatchHandler) client() *http.Client {
	if h.deps.HTTPClient != nil {
		return h.deps.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (h *CloudWatchHandler) logger() observability.Logger {
	if h.deps.Logger != nil {
		return h.deps.Logger
	}
	return observability.Server()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsoncodec.Encode(w, v)
}
