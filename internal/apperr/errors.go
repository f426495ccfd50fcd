// Package apperr defines the error kinds the control plane reports over
// HTTP and between components, with their status-code mapping.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers and for the HTTP surface.
type Kind string

const (
	// Input errors.
	KindValidation    Kind = "validation_error"
	KindLimitExceeded Kind = "limit_exceeded"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"

	// Transient errors.
	KindFetchTimeout  Kind = "fetch_timeout"
	KindLLMTimeout    Kind = "llm_timeout"
	KindLLMRateLimit  Kind = "llm_rate_limited"
	KindDBUnavailable Kind = "db_unavailable"

	// Permanent errors.
	KindFetchHTTP         Kind = "fetch_http_error"
	KindExtractionFailure Kind = "extraction_failure"
	KindInvalidResponse   Kind = "invalid_response"
	KindProviderAuth      Kind = "provider_auth_error"

	// System errors.
	KindBreakerOpen  Kind = "breaker_open"
	KindSystemHalted Kind = "system_halted"
	KindQueueFull    Kind = "queue_full"
	KindInternal     Kind = "internal_error"
)

// Error carries a kind, a human message, and optional structured details.
type Error struct {
	Kind    Kind           `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(err error, kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), wrapped: err}
}

// WithDetails returns a copy of the error with details attached.
func (e *Error) WithDetails(details map[string]any) *Error {
	clone := *e
	clone.Details = details
	return &clone
}

// KindOf extracts the kind from an error chain, defaulting to internal_error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error kind to a response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindLimitExceeded, KindSystemHalted:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindQueueFull:
		return http.StatusTooManyRequests
	case KindDBUnavailable, KindBreakerOpen:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
