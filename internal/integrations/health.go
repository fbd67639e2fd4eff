package integrations

import (
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hookgate/hookgate/internal/core"
	"github.com/hookgate/hookgate/internal/core/auth"
	"github.com/hookgate/hookgate/internal/core/pipeline"
	ierrors "github.com/hookgate/hookgate/internal/errors"
	"github.com/hookgate/hookgate/internal/jsoncodec"
	"github.com/hookgate/hookgate/internal/metrics"
	"github.com/hookgate/hookgate/internal/observability"
)

const isoLayout = "2006-01-02T15:04:05.000Z"

// HealthHandler serves webhook metrics and payload dry runs.
type HealthHandler struct {
	deps Deps
}

func NewHealthHandler(deps Deps) *HealthHandler {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewRecorder()
	}
	return &HealthHandler{deps: deps}
}

// IntegrationView is the public part of an integration descriptor.
type IntegrationView struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Enabled   bool   `json:"enabled"`
	ServiceID string `json:"serviceId"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// RateLimitView is the bucket state of one integration.
type RateLimitView struct {
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	ResetAt   string `json:"resetAt"`
}

// IntegrationHealth is the per-integration GET response.
type IntegrationHealth struct {
	Status      string             `json:"status"`
	Integration IntegrationView    `json:"integration"`
	Metrics     metrics.Serialized `json:"metrics"`
	RateLimit   *RateLimitView     `json:"rateLimit,omitempty"`
}

// SummaryHealth is the global GET response.
type SummaryHealth struct {
	Status       metrics.Health                `json:"status"`
	Global       metrics.Serialized            `json:"global"`
	ByType       map[string]metrics.Serialized `json:"byType"`
	ErrorRate    float64                       `json:"errorRate"`
	Integrations int                           `json:"integrations"`
}

// ValidateRequest is the dry-run body. Type may be omitted when the query
// names an integration.
type ValidateRequest struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ValidateResponse reports whether a payload would pass schema validation.
type ValidateResponse struct {
	Valid   bool                 `json:"valid"`
	Type    string               `json:"type"`
	Errors  []ierrors.FieldError `json:"errors,omitempty"`
	Message string               `json:"message,omitempty"`
}

// Summary serves GET /api/integrations/health. With ?integrationId= it
// reports that integration and requires its key.
func (h *HealthHandler) Summary(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get(pipeline.QueryIntegrationID))
	if id == "" {
		writeJSON(w, http.StatusOK, h.summary())
		return
	}

	integration, ierr := h.authorized(r, id)
	if ierr != nil {
		ierrors.WriteIntegrationError(w, ierr)
		return
	}

	resp := IntegrationHealth{
		Status:      "ok",
		Integration: viewOf(integration),
		Metrics:     metrics.Serialize(h.recorder().ByIntegration(id)),
	}
	if h.deps.Limiter != nil {
		status, err := h.deps.Limiter.Status(r.Context(), id)
		if err != nil {
			h.logger().Warn("integration.rate_limit_status_failed", zap.String("integration_id", id), zap.Error(err))
		} else {
			resp.RateLimit = &RateLimitView{
				Limit:     status.Limit,
				Remaining: status.Remaining,
				ResetAt:   status.ResetAt.UTC().Format(isoLayout),
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HealthHandler) summary() SummaryHealth {
	view := h.recorder().Summary().View()
	return SummaryHealth{
		Status:       view.Health,
		Global:       view.Global,
		ByType:       view.ByType,
		ErrorRate:    view.ErrorRate,
		Integrations: view.Integrations,
	}
}

// Validate serves POST /api/integrations/health: it validates a sample
// payload against the provider schema without processing it.
func (h *HealthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	maxBytes := h.deps.Settings.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = pipeline.DefaultMaxBodyBytes
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil || int64(len(raw)) > maxBytes {
		ierrors.WriteIntegrationError(w, ierrors.NewInvalidPayload("Unable to read request body"))
		return
	}
	var req ValidateRequest
	if err := jsoncodec.Unmarshal(raw, &req); err != nil {
		ierrors.WriteIntegrationError(w, ierrors.NewInvalidPayload("Invalid JSON in request body"))
		return
	}

	if id := strings.TrimSpace(r.URL.Query().Get(pipeline.QueryIntegrationID)); id != "" {
		integration, ierr := h.authorized(r, id)
		if ierr != nil {
			ierrors.WriteIntegrationError(w, ierr)
			return
		}
		req.Type = string(integration.Type)
	}

	typ := core.IntegrationType(strings.ToLower(strings.TrimSpace(req.Type)))
	if typ == "" {
		ierrors.WriteIntegrationError(w, ierrors.NewInvalidPayload("type is required"))
		return
	}

	schema, ok := SchemaFor(typ)
	if !ok {
		writeJSON(w, http.StatusOK, ValidateResponse{
			Valid:   true,
			Type:    string(typ),
			Message: "No schema validation available for this integration type",
		})
		return
	}

	if fields := schema.Validate(req.Payload); len(fields) > 0 {
		writeJSON(w, http.StatusOK, ValidateResponse{Valid: false, Type: string(typ), Errors: fields})
		return
	}
	writeJSON(w, http.StatusOK, ValidateResponse{Valid: true, Type: string(typ), Message: "Payload validation successful"})
}

func (h *HealthHandler) authorized(r *http.Request, id string) (*core.Integration, *ierrors.IntegrationError) {
	if h.deps.Integrations == nil {
		return nil, ierrors.NewIntegrationInternal("Integration store is not configured")
	}
	integration, err := h.deps.Integrations.FindIntegration(r.Context(), id)
	if err != nil {
		return nil, ierrors.ToIntegrationError(err)
	}
	if integration == nil {
		return nil, ierrors.NewIntegrationNotFound(id)
	}
	if !auth.Authorize(auth.ExtractKey(r), integration.Key) {
		return nil, ierrors.NewIntegrationUnauthorized("Invalid integration key")
	}
	return integration, nil
}

func (h *HealthHandler) recorder() *metrics.Recorder {
	return h.deps.Metrics
}

func (h *HealthHandler) logger() observability.Logger {
	if h.deps.Logger != nil {
		return h.deps.Logger
	}
	return observability.Server()
}

func viewOf(i *core.Integration) IntegrationView {
	v := IntegrationView{ID: i.ID, Type: string(i.Type), Enabled: i.Enabled, ServiceID: i.ServiceID}
	if !i.CreatedAt.IsZero() {
		v.CreatedAt = i.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !i.UpdatedAt.IsZero() {
		v.UpdatedAt = i.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return v
}
