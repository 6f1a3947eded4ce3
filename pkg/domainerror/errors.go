package domainerror

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Stable error codes shared between the client and the server. The codes are
// part of the wire protocol and must never change once released.
const (
	CodeResourceNotFound   = "RESOURCE_NOT_FOUND"
	CodeResourceExists     = "RESOURCE_EXISTS"
	CodeInvalidState       = "INVALID_STATE"
	CodeValidation         = "VALIDATION"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeAuthentication     = "AUTHENTICATION_FAILED"
	CodeAuthorization      = "AUTHORIZATION_FAILED"
	CodeTimeout            = "TIMEOUT"
	CodeCircuitBreakerOpen = "CIRCUIT_BREAKER_OPEN"
	CodeConfiguration      = "CONFIGURATION"
	CodeMedia              = "MEDIA"
	CodeNetwork            = "NETWORK"
	CodeInternal           = "INTERNAL"
)

var names = map[string]string{
	CodeResourceNotFound:   "ResourceNotFound",
	CodeResourceExists:     "ResourceExists",
	CodeInvalidState:       "InvalidState",
	CodeValidation:         "Validation",
	CodeRateLimitExceeded:  "RateLimitExceeded",
	CodeAuthentication:     "AuthenticationFailed",
	CodeAuthorization:      "AuthorizationFailed",
	CodeTimeout:            "Timeout",
	CodeCircuitBreakerOpen: "CircuitBreakerOpen",
	CodeConfiguration:      "Configuration",
	CodeMedia:              "Media",
	CodeNetwork:            "Network",
	CodeInternal:           "Internal",
}

// Error is a structured domain error: a stable code, a human-readable
// message and optional structured context.
type Error struct {
	Code    string
	Message string
	Context map[string]any
}

func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Name returns the variant name for the error's code, e.g. "ResourceNotFound".
func (e *Error) Name() string {
	if name, ok := names[e.Code]; ok {
		return name
	}
	return "Internal"
}

// WithContext returns the error with the given context entry attached.
// The receiver is mutated and returned for chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// MarshalJSON serializes the error as {name, code, message, context?}.
func (e *Error) MarshalJSON() ([]byte, error) {
	out := struct {
		Name    string         `json:"name"`
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Context map[string]any `json:"context,omitempty"`
	}{e.Name(), e.Code, e.Message, e.Context}

	return json.Marshal(out)
}

func NotFound(resource, id string) *Error {
	return New(CodeResourceNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("id", id)
}

func Exists(resource, id string) *Error {
	return New(CodeResourceExists, fmt.Sprintf("%s already exists", resource)).
		WithContext("resource", resource).
		WithContext("id", id)
}

func InvalidState(message string) *Error {
	return New(CodeInvalidState, message)
}

func Validation(field, message string) *Error {
	return New(CodeValidation, message).WithContext("field", field)
}

// RateLimited carries the time (in milliseconds) after which the caller may retry.
func RateLimited(retryAfterMs int64) *Error {
	return New(CodeRateLimitExceeded, "rate limit exceeded").
		WithContext("retryAfterMs", retryAfterMs)
}

func Timeout(operation string) *Error {
	return New(CodeTimeout, fmt.Sprintf("%s timed out", operation)).
		WithContext("operation", operation)
}

func Media(message string) *Error {
	return New(CodeMedia, message)
}

func Network(message string) *Error {
	return New(CodeNetwork, message)
}

func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// ToDomainError normalizes a foreign error into a domain error. Domain errors
// pass through unchanged; anything else is wrapped as Internal with the
// original error type recorded in the context.
func ToDomainError(err error) *Error {
	if err == nil {
		return nil
	}

	var domain *Error
	if errors.As(err, &domain) {
		return domain
	}

	return Internal(err.Error()).WithContext("cause", fmt.Sprintf("%T", err))
}
