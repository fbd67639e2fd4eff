// Package integrations binds provider payload shapes to the webhook pipeline
// and serves the integration health endpoints.
package integrations

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hookgate/hookgate/internal/core"
	"github.com/hookgate/hookgate/internal/core/events"
	"github.com/hookgate/hookgate/internal/core/pipeline"
	"github.com/hookgate/hookgate/internal/core/signature"
)

var errNoProcessor = errors.New("no event processor configured")

// Deps are the pipeline collaborators plus the event processor every route
// hands canonical events to.
type Deps struct {
	pipeline.Deps
	Events events.Processor
	// HTTPClient confirms SNS subscriptions. Nil uses a client with a 10s timeout.
	HTTPClient *http.Client
}

// RouteOptions tune a provider route. A nil Schema uses the catalog schema
// of the route's type.
type RouteOptions struct {
	Provider      signature.Provider
	Schema        *pipeline.Schema
	Parser        func(body []byte) (any, error)
	SkipRateLimit bool
	SkipSignature bool
	Timeout       time.Duration
}

// CreateRoute binds a payload type and its transform to the pipeline. The
// processor passes the canonical event to deps.Events.
func CreateRoute[T any](deps Deps, integrationType core.IntegrationType, transform func(T) core.EventPayload, opts RouteOptions) http.Handler {
	schema := opts.Schema
	if schema == nil {
		schema, _ = SchemaFor(integrationType)
	}

	process := func(ctx context.Context, wc *pipeline.Context[T]) (core.ProcessResult, error) {
		if deps.Events == nil {
			return core.ProcessResult{}, errNoProcessor
		}
		event := transform(wc.Payload)
		return deps.Events.ProcessEvent(ctx, event, wc.Integration.ServiceID, wc.Integration.ID)
	}

	return pipeline.NewHandler(pipeline.Options[T]{
		Type:          integrationType,
		Provider:      opts.Provider,
		Schema:        schema,
		Parser:        opts.Parser,
		SkipRateLimit: opts.SkipRateLimit,
		SkipSignature: opts.SkipSignature,
		Timeout:       opts.Timeout,
	}, deps.Deps, process)
}

// Route is one entry of the provider catalog.
type Route struct {
	Type      core.IntegrationType
	Signature signature.Provider
	build     func(Deps) http.Handler
}

// Handler builds the route's handler over deps.
func (r Route) Handler(deps Deps) http.Handler { return r.build(deps) }

// Path is where the route is mounted.
func (r Route) Path() string { return "/api/integrations/" + string(r.Type) }

func route[T any](t core.IntegrationType, provider signature.Provider, transform func(T) core.EventPayload) Route {
	return Route{
		Type:      t,
		Signature: provider,
		build: func(deps Deps) http.Handler {
			return CreateRoute(deps, t, transform, RouteOptions{Provider: provider})
		},
	}
}

// Catalog lists every provider route.
func Catalog() []Route {
	return []Route{
		route(core.IntegrationGitHub, signature.ProviderGitHub, TransformGitHub),
		route(core.IntegrationGitLab, signature.ProviderGitLab, TransformGitLab),
		route(core.IntegrationGrafana, signature.ProviderGrafana, TransformGrafana),
		route(core.IntegrationPrometheus, signature.ProviderGeneric, TransformPrometheus),
		route(core.IntegrationSentry, signature.ProviderSentry, TransformSentry),
		route(core.IntegrationDatadog, signature.ProviderGeneric, TransformDatadog),
		route(core.IntegrationWebhook, signature.ProviderGeneric, TransformWebhook),
		route(core.IntegrationPagerDuty, signature.ProviderGeneric, TransformPagerDuty),
		route(core.IntegrationNewRelic, signature.ProviderGeneric, TransformNewRelic),
		route(core.IntegrationAzure, signature.ProviderGeneric, TransformAzure),
		route(core.IntegrationOpsgenie, signature.ProviderGeneric, TransformOpsgenie),
		{
			Type:      core.IntegrationCloudWatch,
			Signature: signature.ProviderGeneric,
			build: func(deps Deps) http.Handler {
				return pipeline.WithMiddleware(deps.Deps, core.IntegrationCloudWatch, NewCloudWatchHandler(deps))
			},
		},
	}
}

// Register mounts the provider routes and the health endpoints on r.
func Register(r chi.Router, deps Deps) {
	for _, rt := range Catalog() {
		r.Post(rt.Path(), rt.Handler(deps).ServeHTTP)
	}

	health := NewHealthHandler(deps)
	r.Get("/api/integrations/health", health.Summary)
	r.Post("/api/integrations/health", health.Validate)
}
