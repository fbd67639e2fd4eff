package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"go.uber.org/zap"

	"github.com/hookgate/hookgate/internal/integrations"
	"github.com/hookgate/hookgate/internal/observability"
	"github.com/hookgate/hookgate/internal/server/handlers"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	health := s.opts.Health
	s.router.Get("/health", health.HealthHandler)
	s.router.Get("/health/live", health.LivenessHandler)
	s.router.Get("/health/ready", health.ReadinessHandler)
	s.router.Get("/health/startup", health.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)

	if s.opts.MetricsEnabled {
		s.router.Get("/metrics", MetricsHandler)
	}

	if s.opts.Integrations.Integrations != nil {
		integrations.Register(s.router, s.opts.Integrations)
	} else {
		observability.Server().Warn("Integration routes disabled: no integration store configured")
	}

	s.registerAdminEndpoint()
}

// registerAdminEndpoint mounts the gofulmen signal endpoint when a token is set.
func (s *Server) registerAdminEndpoint() {
	logger := observability.Server()
	if s.opts.AdminToken == "" {
		logger.Debug("Admin signal endpoint disabled (no admin token set)")
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.opts.AdminToken,
		RateLimit: 10,
		RateBurst: 5,
		Manager:   nil,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	logger.Info("Admin signal endpoint enabled",
		zap.String("path", "/admin/signal"),
		zap.String("rate_limit", "10/min, burst 5"))
	logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
}
