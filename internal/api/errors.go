package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies failures surfaced by the edge handlers.
type Kind string

const (
	KindInvalidInput              Kind = "invalid_input"
	KindRateLimited               Kind = "rate_limited"
	KindConfiguration             Kind = "configuration_error"
	KindUpstream                  Kind = "upstream_error"
	KindMalformedUpstreamResponse Kind = "malformed_upstream_response"
	KindUnsupportedAction         Kind = "unsupported_action"
	KindMethodNotAllowed          Kind = "method_not_allowed"
)

// Error is a classified handler failure. Message is safe to show to the
// caller; Err carries the internal cause for logging only.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode maps the error kind to an HTTP status.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindInvalidInput, KindUnsupportedAction:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// IsUpstream reports whether the failure originated at the third-party API.
// Malformed upstream payloads count as upstream failures.
func (e *Error) IsUpstream() bool {
	return e.Kind == KindUpstream || e.Kind == KindMalformedUpstreamResponse
}

// NewError builds a classified error.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// InvalidInput returns a client error with a caller-facing message.
func InvalidInput(message string) *Error {
	return &Error{Kind: KindInvalidInput, Message: message}
}

// RateLimited returns the error used when a caller exhausts its quota.
func RateLimited() *Error {
	return &Error{Kind: KindRateLimited, Message: "Trop de requêtes. Veuillez patienter avant de réessayer."}
}

// ConfigurationError reports a missing secret or setting.
func ConfigurationError(message string) *Error {
	return &Error{Kind: KindConfiguration, Message: message}
}

// UnsupportedAction names the unrecognized scheduling action.
func UnsupportedAction(action string) *Error {
	return &Error{Kind: KindUnsupportedAction, Message: fmt.Sprintf("Action non supportée: %s", action)}
}

// MethodNotAllowed rejects methods other than POST and OPTIONS.
func MethodNotAllowed(method string) *Error {
	return &Error{Kind: KindMethodNotAllowed, Message: fmt.Sprintf("Méthode non autorisée: %s", method)}
}

// AsError extracts a classified error from err. Unclassified errors are
// reported as upstream failures with the given fallback message.
func AsError(err error, fallback string) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &Error{Kind: KindUpstream, Message: fallback, Err: err}
}
