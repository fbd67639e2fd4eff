package server

import (
	"net/http"

	fulmenerrors "github.com/fulmenhq/gofulmen/errors"

	apperrors "github.com/hookgate/hookgate/internal/errors"
)

// HandleError is the single error responder for routes outside the webhook
// pipeline. Integration errors keep their own status and headers.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

func notFound(w http.ResponseWriter, r *http.Request) {
	envelope := apperrors.NewNotFoundError("The requested resource was not found")
	HandleError(w, r, withRequestContext(envelope, r))
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	envelope := apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource")
	HandleError(w, r, withRequestContext(envelope, r))
}

// withRequestContext records method and path on the envelope. Context is
// logged, never returned to the caller.
func withRequestContext(envelope *fulmenerrors.ErrorEnvelope, r *http.Request) *fulmenerrors.ErrorEnvelope {
	updated, err := envelope.WithContext(map[string]interface{}{
		"method": r.Method,
		"path":   r.URL.Path,
	})
	if err != nil {
		return envelope
	}
	return updated
}
