// Package pipeline composes key authentication, rate limiting, signature
// verification, schema validation and metrics into one ordered webhook handler.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hookgate/hookgate/internal/core"
	"github.com/hookgate/hookgate/internal/core/auth"
	"github.com/hookgate/hookgate/internal/core/ratelimit"
	"github.com/hookgate/hookgate/internal/core/signature"
	"github.com/hookgate/hookgate/internal/core/store"
	ierrors "github.com/hookgate/hookgate/internal/errors"
	"github.com/hookgate/hookgate/internal/jsoncodec"
	"github.com/hookgate/hookgate/internal/metrics"
	"github.com/hookgate/hookgate/internal/observability"
	"github.com/hookgate/hookgate/internal/server/middleware"
)

const (
	// DefaultMaxBodyBytes caps the raw webhook body.
	DefaultMaxBodyBytes int64 = 1 << 20
	// DefaultTimeout bounds one request end to end.
	DefaultTimeout = 10 * time.Second

	// QueryIntegrationID names the integration a webhook is addressed to.
	QueryIntegrationID = "integrationId"

	spanName = "integration.webhook"
)

// Settings are the process-wide pipeline toggles.
type Settings struct {
	VerifySignatures bool
	RateLimitEnabled bool
	MaxBodyBytes     int64
	Timeout          time.Duration
}

// DefaultSettings enables every check.
func DefaultSettings() Settings {
	return Settings{
		VerifySignatures: true,
		RateLimitEnabled: true,
		MaxBodyBytes:     DefaultMaxBodyBytes,
		Timeout:          DefaultTimeout,
	}
}

// Deps are the collaborators shared by every integration route.
type Deps struct {
	Integrations store.Finder
	Limiter      *ratelimit.Limiter
	Verifier     *signature.Verifier
	Metrics      *metrics.Recorder
	Logger       observability.Logger
	Settings     Settings
}

// Options describe one provider route.
type Options[T any] struct {
	Type     core.IntegrationType
	Provider signature.Provider
	Schema   *Schema
	// Parser replaces JSON decoding for non-JSON bodies. Its result is
	// validated against Schema like a decoded JSON document.
	Parser        func(body []byte) (any, error)
	SkipRateLimit bool
	SkipSignature bool
	// Timeout overrides Settings.Timeout when positive.
	Timeout time.Duration
}

// Context is what a Processor sees of an accepted webhook.
type Context[T any] struct {
	Integration *core.Integration
	Payload     T
	RawPayload  []byte
	Headers     map[string]string
	StartTime   time.Time
	RequestID   string
}

// Processor applies an accepted webhook. A returned *IntegrationError keeps
// its code; any other error becomes INTERNAL_ERROR.
type Processor[T any] func(ctx context.Context, wc *Context[T]) (core.ProcessResult, error)

// Accepted is the 202 response body.
type Accepted struct {
	Status string             `json:"status"`
	Result core.ProcessResult `json:"result"`
}

type handler[T any] struct {
	opts    Options[T]
	deps    Deps
	process Processor[T]
}

// NewHandler returns the webhook handler for one provider.
func NewHandler[T any](opts Options[T], deps Deps, process Processor[T]) http.Handler {
	if deps.Settings.MaxBodyBytes <= 0 {
		deps.Settings.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if deps.Settings.Timeout <= 0 {
		deps.Settings.Timeout = DefaultTimeout
	}
	if deps.Verifier == nil {
		deps.Verifier = signature.NewVerifier()
	}
	return &handler[T]{opts: opts, deps: deps, process: process}
}

// outcome tracks what the boundary needs to know about a request, whatever
// step it stopped at.
type outcome struct {
	integrationID   string
	integrationType string
	rate            *ratelimit.Result
}

func (h *handler[T]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	out := &outcome{integrationType: string(h.opts.Type)}

	timeout := h.deps.Settings.Timeout
	if h.opts.Timeout > 0 {
		timeout = h.opts.Timeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	ctx, span := observability.Tracer().Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("integration.type", out.integrationType)))
	defer span.End()

	res := h.run(ctx, r.WithContext(ctx), out, start)
	h.finish(w, span, out, start, res)
}

func (h *handler[T]) run(ctx context.Context, r *http.Request, out *outcome, start time.Time) Result[core.ProcessResult] {
	id, ierr := integrationID(r).Get()
	if ierr != nil {
		return Fail[core.ProcessResult](ierr)
	}
	out.integrationID = id

	if ierr := h.admit(ctx, id, out); ierr != nil {
		return Fail[core.ProcessResult](ierr)
	}

	integration, ierr := h.lookup(ctx, id).Get()
	if ierr != nil {
		return Fail[core.ProcessResult](ierr)
	}
	if integration.Type != "" {
		out.integrationType = string(integration.Type)
	}

	if !auth.Authorize(auth.ExtractKey(r), integration.Key) {
		return Fail[core.ProcessResult](ierrors.NewIntegrationUnauthorized("Invalid integration key"))
	}

	raw, ierr := h.readBody(ctx, r).Get()
	if ierr != nil {
		return Fail[core.ProcessResult](ierr)
	}

	headers := collectSignatureHeaders(r.Header)
	if ierr := h.verify(integration, raw, headers); ierr != nil {
		return Fail[core.ProcessResult](ierr)
	}

	payload, ierr := Then(Then(h.parse(raw), h.validate), decode[T]).Get()
	if ierr != nil {
		return Fail[core.ProcessResult](ierr)
	}

	return h.invoke(ctx, &Context[T]{
		Integration: integration,
		Payload:     payload,
		RawPayload:  raw,
		Headers:     headers,
		StartTime:   start,
		RequestID:   middleware.GetRequestID(r.Context()),
	})
}

func integrationID(r *http.Request) Result[string] {
	id := strings.TrimSpace(r.URL.Query().Get(QueryIntegrationID))
	if id == "" {
		return Fail[string](ierrors.NewInvalidPayload("integrationId is required"))
	}
	return Ok(id)
}

func (h *handler[T]) admit(ctx context.Context, id string, out *outcome) *ierrors.IntegrationError {
	if h.opts.SkipRateLimit || !h.deps.Settings.RateLimitEnabled || h.deps.Limiter == nil {
		return nil
	}

	result, err := h.deps.Limiter.Check(ctx, id)
	if err != nil {
		return ierrors.NewIntegrationInternal("Rate limit check failed").WithCause(err)
	}
	if result.Allowed {
		return nil
	}

	out.rate = &result
	if h.deps.Metrics != nil {
		h.deps.Metrics.RecordRateLimited(out.integrationType)
	}
	return ierrors.NewRateLimited(result.RetryAfter)
}

func (h *handler[T]) lookup(ctx context.Context, id string) Result[*core.Integration] {
	if h.deps.Integrations == nil {
		return Fail[*core.Integration](ierrors.NewIntegrationInternal("Integration store is not configured"))
	}

	integration, err := h.deps.Integrations.FindIntegration(ctx, id)
	if err != nil {
		return Fail[*core.Integration](ierrors.ToIntegrationError(err))
	}
	if integration == nil || !integration.Enabled {
		return Fail[*core.Integration](ierrors.NewIntegrationNotFound(id))
	}
	return Ok(integration)
}

func (h *handler[T]) readBody(ctx context.Context, r *http.Request) Result[[]byte] {
	if r.Body == nil {
		return Ok([]byte{})
	}

	limit := h.deps.Settings.MaxBodyBytes
	raw, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		if ctx.Err() != nil {
			return Fail[[]byte](ierrors.ToIntegrationError(ctx.Err()))
		}
		return Fail[[]byte](ierrors.NewInvalidPayload("Unable to read request body").WithCause(err))
	}
	if int64(len(raw)) > limit {
		return Fail[[]byte](ierrors.NewInvalidPayload(fmt.Sprintf("Request body exceeds %d bytes", limit)))
	}
	return Ok(raw)
}

// collectSignatureHeaders keeps the present signature headers, keyed lowercase.
func collectSignatureHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(signature.SignatureHeaders))
	for _, name := range signature.SignatureHeaders {
		if v := header.Get(name); v != "" {
			out[name] = v
		}
	}
	return out
}

func (h *handler[T]) verify(integration *core.Integration, raw []byte, headers map[string]string) *ierrors.IntegrationError {
	if h.opts.SkipSignature || !h.deps.Settings.VerifySignatures || !integration.HasSignatureSecret() {
		return nil
	}

	result := h.deps.Verifier.Verify(h.opts.Provider, raw, headers, integration.SignatureSecret)
	if result.Valid {
		return nil
	}

	h.logger().Warn("integration.signature_verification_failed",
		zap.String("integration_id", integration.ID),
		zap.String("provider", h.opts.Provider.String()),
		zap.String("error", string(result.Error)))

	switch result.Error {
	case signature.FailureExpired:
		maxAge := int(h.deps.Verifier.MaxAge / time.Second)
		if maxAge <= 0 {
			maxAge = int(signature.DefaultMaxAge / time.Second)
		}
		return ierrors.NewExpiredTimestamp(fmt.Sprintf("Request timestamp is older than %d seconds", maxAge))
	case signature.FailureMissing:
		return ierrors.NewMissingSignature("Expected signature header")
	default:
		return ierrors.NewInvalidSignature("Invalid webhook signature")
	}
}

func (h *handler[T]) parse(raw []byte) Result[any] {
	var body any
	var err error
	if h.opts.Parser != nil {
		body, err = h.opts.Parser(raw)
	} else {
		err = jsoncodec.Unmarshal(raw, &body)
	}
	if err != nil {
		return Fail[any](ierrors.NewInvalidPayload("Invalid JSON in request body").WithCause(err))
	}
	return Ok(body)
}

func (h *handler[T]) validate(body any) Result[any] {
	if fields := h.opts.Schema.Validate(body); len(fields) > 0 {
		return Fail[any](ierrors.NewSchemaValidation(fields))
	}
	return Ok(body)
}

func decode[T any](body any) Result[T] {
	if typed, ok := body.(T); ok {
		return Ok(typed)
	}
	var payload T
	if err := jsoncodec.Convert(body, &payload); err != nil {
		return Fail[T](ierrors.NewInvalidPayload("Payload does not match the expected shape").WithCause(err))
	}
	return Ok(payload)
}

type processed struct {
	result core.ProcessResult
	err    error
}

// invoke runs the processor under the request deadline. A processor that
// ignores ctx is abandoned when the deadline passes.
func (h *handler[T]) invoke(ctx context.Context, wc *Context[T]) Result[core.ProcessResult] {
	if h.process == nil {
		return Fail[core.ProcessResult](ierrors.NewIntegrationInternal("No processor configured"))
	}

	done := make(chan processed, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- processed{err: fmt.Errorf("processor panic: %v", p)}
			}
		}()
		result, err := h.process(ctx, wc)
		done <- processed{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		return Fail[core.ProcessResult](ierrors.ToIntegrationError(ctx.Err()))
	case p := <-done:
		if p.err != nil {
			return Fail[core.ProcessResult](ierrors.ToIntegrationError(p.err))
		}
		return Ok(p.result)
	}
}

// finish is the single exit of every request: it logs, records metrics,
// annotates the span and writes the response.
func (h *handler[T]) finish(w http.ResponseWriter, span trace.Span, out *outcome, start time.Time, res Result[core.ProcessResult]) {
	latencyMs := float64(time.Since(start)) / float64(time.Millisecond)
	span.SetAttributes(
		attribute.String("integration.type", out.integrationType),
		attribute.String("integration.id", out.integrationID))

	result, ierr := res.Get()
	if ierr == nil {
		h.record(out, true, latencyMs, "")
		span.SetAttributes(attribute.String("integration.outcome", "success"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = jsoncodec.Encode(w, Accepted{Status: "success", Result: result})
		return
	}

	code := string(ierr.Code())
	if ierr.StatusCode() >= http.StatusInternalServerError {
		h.logger().Error("integration.webhook_unexpected_error",
			zap.String("integration_id", out.integrationID),
			zap.String("integration_type", out.integrationType),
			zap.String("code", code),
			zap.Error(ierr))
		span.SetStatus(codes.Error, ierr.Message())
	} else {
		h.logger().Warn("integration.webhook_error",
			zap.String("integration_id", out.integrationID),
			zap.String("integration_type", out.integrationType),
			zap.String("code", code),
			zap.String("message", ierr.Message()))
	}

	h.record(out, false, latencyMs, code)
	span.SetAttributes(attribute.String("integration.outcome", code))

	if out.rate != nil {
		for key, values := range ratelimit.Headers(*out.rate) {
			w.Header()[key] = values
		}
	}
	ierrors.WriteIntegrationError(w, ierr)
}

func (h *handler[T]) record(out *outcome, success bool, latencyMs float64, code string) {
	if h.deps.Metrics == nil || out.integrationID == "" {
		return
	}
	h.deps.Metrics.RecordWebhookReceived(out.integrationType, out.integrationID, success, latencyMs, code)
}

func (h *handler[T]) logger() observability.Logger {
	return depsLogger(h.deps)
}
