package ratelimit

import (
	"net/http"
	"strings"
)

// UnknownCaller is the key used when neither a user id nor a forwarded
// address is available.
const UnknownCaller = "unknown"

// Caller identifies who a request is counted against.
type Caller struct {
	Key           string
	Authenticated bool
}

// CallerFor builds the ledger key for a request. An authenticated user id
// takes precedence over the first X-Forwarded-For hop.
func CallerFor(userID string, r *http.Request) Caller {
	if userID != "" {
		return Caller{Key: "user:" + userID, Authenticated: true}
	}
	return Caller{Key: "ip:" + ClientIP(r)}
}

// ClientIP returns the first hop of X-Forwarded-For, or UnknownCaller.
func ClientIP(r *http.Request) string {
	if r == nil {
		return UnknownCaller
	}
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return UnknownCaller
	}
	first, _, _ := strings.Cut(xff, ",")
	first = strings.TrimSpace(first)
	if first == "" {
		return UnknownCaller
	}
	return first
}
