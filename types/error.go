package types

import (
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across the gateway.
type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrForbidden        ErrorCode = "FORBIDDEN"
	ErrNotFound         ErrorCode = "NOT_FOUND"
	ErrRateLimited      ErrorCode = "RATE_LIMITED"
	ErrTimeout          ErrorCode = "TIMEOUT"
	ErrUpstreamError    ErrorCode = "UPSTREAM_ERROR"
	ErrUnavailable      ErrorCode = "UNAVAILABLE"
	ErrInternal         ErrorCode = "INTERNAL"
	ErrHookDenied       ErrorCode = "HOOK_DENIED"
	ErrInvalidProvider  ErrorCode = "INVALID_PROVIDER"
	ErrInvalidMethod    ErrorCode = "INVALID_METHOD"
	ErrMissingParameter ErrorCode = "MISSING_PARAMETER"
)

// StatusHookDenied is the non-standard HTTP status surfaced when an input or
// output hook denies a request.
const StatusHookDenied = 446

// ErrorDetails preserves the original upstream error alongside the
// classification that produced the outward-facing message.
type ErrorDetails struct {
	OriginalError   string `json:"original_error,omitempty"`
	OriginalStatus  int    `json:"original_status,omitempty"`
	ProviderBody    string `json:"provider_body,omitempty"`
	Classification  string `json:"classification,omitempty"`
	SuggestedAction string `json:"suggested_action,omitempty"`
}

// Error is the structured error used across the gateway. It carries the
// canonical code, the HTTP status the gateway will answer with, and the
// provider-reported fields when the error originated upstream.
type Error struct {
	Code       ErrorCode     `json:"code"`
	Message    string        `json:"message"`
	HTTPStatus int           `json:"http_status,omitempty"`
	Retryable  bool          `json:"retryable"`
	Provider   string        `json:"provider,omitempty"`
	Param      string        `json:"param,omitempty"`
	Type       string        `json:"type,omitempty"`
	Details    *ErrorDetails `json:"error_details,omitempty"`

	// HookResults carries the ordered hook log on HOOK_DENIED errors.
	HookResults *HookResults `json:"hook_results,omitempty"`

	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Status returns the HTTP status, defaulting from the code when unset.
func (e *Error) Status() int {
	if e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	switch e.Code {
	case ErrInvalidRequest, ErrMissingParameter:
		return http.StatusUnprocessableEntity
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrForbidden:
		return http.StatusForbidden
	case ErrNotFound, ErrInvalidProvider, ErrInvalidMethod:
		return http.StatusNotFound
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrTimeout:
		return http.StatusRequestTimeout
	case ErrUpstreamError:
		return http.StatusBadGateway
	case ErrUnavailable:
		return http.StatusServiceUnavailable
	case ErrHookDenied:
		return StatusHookDenied
	default:
		return http.StatusInternalServerError
	}
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause attaches a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider tag.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// WithParam sets the offending parameter name.
func (e *Error) WithParam(param string) *Error {
	e.Param = param
	return e
}

// WithHookResults attaches the ordered hook log.
func (e *Error) WithHookResults(results *HookResults) *Error {
	e.HookResults = results
	return e
}

// IsRetryable reports whether err is a retryable gateway error.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the canonical code from an error, or "" when err is
// not a gateway error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// ErrorEnvelope is the JSON shape returned to clients on failure.
type ErrorEnvelope struct {
	Error        ErrorBody     `json:"error"`
	ErrorDetails *ErrorDetails `json:"error_details,omitempty"`
	HookResults  *HookResults  `json:"hook_results,omitempty"`
}

// ErrorBody mirrors the OpenAI error object.
type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

// Envelope renders the error as the client-facing JSON envelope.
func (e *Error) Envelope() ErrorEnvelope {
	typ := e.Type
	if typ == "" {
		typ = string(e.Code)
	}
	return ErrorEnvelope{
		Error: ErrorBody{
			Message: e.Message,
			Type:    typ,
			Code:    string(e.Code),
			Param:   e.Param,
		},
		ErrorDetails: e.Details,
		HookResults:  e.HookResults,
	}
}
