package server

import (
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"

	"github.com/hookgate/hookgate/internal/observability"
)

// MetricsHandler serves the process registry in the Prometheus text format.
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	if observability.Registry == nil {
		HandleError(w, r, errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "Metrics registry not initialized"))
		return
	}
	observability.MetricsHandler().ServeHTTP(w, r)
}
