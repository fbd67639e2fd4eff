package errors

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/fulmenhq/gofulmen/errors"

	"github.com/hookgate/hookgate/internal/jsoncodec"
)

// Code is the stable, machine-readable identifier of a webhook pipeline failure.
type Code string

const (
	CodeInvalidSignature    Code = "INVALID_SIGNATURE"
	CodeMissingSignature    Code = "MISSING_SIGNATURE"
	CodeExpiredTimestamp    Code = "EXPIRED_TIMESTAMP"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeInvalidPayload      Code = "INVALID_PAYLOAD"
	CodeValidationError     Code = "VALIDATION_ERROR"
	CodeIntegrationNotFound Code = "INTEGRATION_NOT_FOUND"
	CodeInternalError       Code = "INTERNAL_ERROR"
)

var codeStatus = map[Code]int{
	CodeInvalidSignature:    http.StatusUnauthorized,
	CodeMissingSignature:    http.StatusUnauthorized,
	CodeExpiredTimestamp:    http.StatusUnauthorized,
	CodeUnauthorized:        http.StatusUnauthorized,
	CodeRateLimited:         http.StatusTooManyRequests,
	CodeInvalidPayload:      http.StatusBadRequest,
	CodeValidationError:     http.StatusBadRequest,
	CodeIntegrationNotFound: http.StatusNotFound,
	CodeInternalError:       http.StatusInternalServerError,
}

// Codes returns every code of the taxonomy.
func Codes() []Code {
	return []Code{
		CodeInvalidSignature,
		CodeMissingSignature,
		CodeExpiredTimestamp,
		CodeUnauthorized,
		CodeRateLimited,
		CodeInvalidPayload,
		CodeValidationError,
		CodeIntegrationNotFound,
		CodeInternalError,
	}
}

// Status returns the default HTTP status for the code.
func (c Code) Status() int {
	if status, ok := codeStatus[c]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Known reports whether c belongs to the taxonomy.
func (c Code) Known() bool {
	_, ok := codeStatus[c]
	return ok
}

// FieldError is a single schema validation failure.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// IntegrationError is an immutable pipeline failure with its HTTP mapping.
// The With* methods return modified copies.
type IntegrationError struct {
	code       Code
	status     int
	message    string
	details    any
	retryAfter int
	cause      error
}

// NewIntegrationError builds an error with the code's default status.
func NewIntegrationError(code Code, message string) *IntegrationError {
	if !code.Known() {
		code = CodeInternalError
	}
	return &IntegrationError{code: code, status: code.Status(), message: message}
}

func NewInvalidSignature(message string) *IntegrationError {
	return NewIntegrationError(CodeInvalidSignature, message)
}

func NewMissingSignature(message string) *IntegrationError {
	return NewIntegrationError(CodeMissingSignature, message)
}

func NewExpiredTimestamp(message string) *IntegrationError {
	return NewIntegrationError(CodeExpiredTimestamp, message)
}

func NewIntegrationUnauthorized(message string) *IntegrationError {
	return NewIntegrationError(CodeUnauthorized, message)
}

// NewRateLimited carries the number of seconds the caller should wait.
func NewRateLimited(retryAfter int) *IntegrationError {
	return NewIntegrationError(CodeRateLimited, "Rate limit exceeded").WithRetryAfter(retryAfter)
}

func NewInvalidPayload(message string) *IntegrationError {
	return NewIntegrationError(CodeInvalidPayload, message)
}

// NewSchemaValidation reports field-level validation failures.
func NewSchemaValidation(fields []FieldError) *IntegrationError {
	return NewIntegrationError(CodeValidationError, "Payload validation failed").WithDetails(fields)
}

func NewIntegrationNotFound(id string) *IntegrationError {
	return NewIntegrationError(CodeIntegrationNotFound, "Integration not found").
		WithDetails(map[string]any{"integrationId": id})
}

func NewIntegrationInternal(message string) *IntegrationError {
	return NewIntegrationError(CodeInternalError, message)
}

func (e *IntegrationError) Error() string {
	if e.cause != nil {
		return string(e.code) + ": " + e.message + ": " + e.cause.Error()
	}
	return string(e.code) + ": " + e.message
}

func (e *IntegrationError) Unwrap() error { return e.cause }

func (e *IntegrationError) Code() Code      { return e.code }
func (e *IntegrationError) StatusCode() int { return e.status }
func (e *IntegrationError) Message() string { return e.message }
func (e *IntegrationError) Details() any    { return e.details }
func (e *IntegrationError) RetryAfter() int { return e.retryAfter }

func (e *IntegrationError) WithDetails(details any) *IntegrationError {
	cp := *e
	cp.details = details
	return &cp
}

func (e *IntegrationError) WithRetryAfter(seconds int) *IntegrationError {
	cp := *e
	if seconds < 0 {
		seconds = 0
	}
	cp.retryAfter = seconds
	return &cp
}

// WithStatus overrides the status. 2xx and 1xx statuses are ignored.
func (e *IntegrationError) WithStatus(status int) *IntegrationError {
	cp := *e
	if status >= 300 && status <= 599 {
		cp.status = status
	}
	return &cp
}

// WithCause records the underlying error for logs. It never reaches the response body.
func (e *IntegrationError) WithCause(err error) *IntegrationError {
	cp := *e
	cp.cause = err
	return &cp
}

// ErrorResponse is the JSON body written for every failed webhook.
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	RetryAfter *int   `json:"retryAfter,omitempty"`
}

func (e *IntegrationError) Response() ErrorResponse {
	resp := ErrorResponse{
		Error:   string(e.code),
		Message: e.message,
		Details: e.details,
	}
	if e.retryAfter > 0 {
		retry := e.retryAfter
		resp.RetryAfter = &retry
	}
	return resp
}

func (e *IntegrationError) MarshalJSON() ([]byte, error) {
	return jsoncodec.Marshal(e.Response())
}

// Headers returns the response headers implied by the error.
func (e *IntegrationError) Headers() http.Header {
	h := http.Header{}
	if e.retryAfter > 0 {
		h.Set("Retry-After", strconv.Itoa(e.retryAfter))
	}
	return h
}

// Envelope converts the error for the shared structured error logging path.
func (e *IntegrationError) Envelope() *errors.ErrorEnvelope {
	env := errors.NewErrorEnvelope(string(e.code), e.message)
	switch {
	case e.status >= 500:
		env, _ = env.WithSeverity(errors.SeverityHigh)
	case e.code == CodeInvalidSignature || e.code == CodeExpiredTimestamp || e.code == CodeUnauthorized:
		env, _ = env.WithSeverity(errors.SeverityMedium)
	}
	if e.cause != nil {
		env = withWrappedError(env, e.cause)
	}
	return env
}

// ToIntegrationError normalizes any error into the taxonomy. Unknown errors
// become INTERNAL_ERROR with a generic message; the cause is kept for logs only.
func ToIntegrationError(err error) *IntegrationError {
	if err == nil {
		return nil
	}

	var ie *IntegrationError
	if stderrors.As(err, &ie) && ie != nil {
		return ie
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return NewIntegrationInternal("Request processing timed out").WithCause(err)
	}

	if envelope, ok := err.(*errors.ErrorEnvelope); ok && envelope != nil {
		if code := Code(envelope.Code); code.Known() {
			return NewIntegrationError(code, envelope.Message)
		}
	}

	return NewIntegrationInternal("An unexpected error occurred").WithCause(err)
}

// WriteIntegrationError writes the mapped status, headers and JSON body.
func WriteIntegrationError(w http.ResponseWriter, ie *IntegrationError) {
	if w == nil || ie == nil {
		return
	}
	h := ie.Headers()
	for key := range h {
		w.Header().Set(key, h.Get(key))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ie.StatusCode())
	_ = jsoncodec.Encode(w, ie.Response())
}
