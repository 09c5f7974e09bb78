// Package upstream contains the HTTP clients for the third-party APIs the
// edge proxies forward to.
package upstream

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingAPIKey is returned before any network I/O when a client has no credential.
	ErrMissingAPIKey = errors.New("upstream API key not configured")

	// ErrMalformedResponse is returned when a 2xx payload lacks the expected fields.
	ErrMalformedResponse = errors.New("malformed upstream response")
)

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error: %d - %s", e.Provider, e.StatusCode, e.Body)
}
