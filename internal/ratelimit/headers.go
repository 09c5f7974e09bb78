package ratelimit

import (
	"net/http"
	"strconv"
	"time"
)

// SetHeaders writes the X-RateLimit-* headers for d, plus Retry-After when
// the request was denied.
func (d Decision) SetHeaders(h http.Header, now time.Time) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if !d.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
	if !d.Allowed {
		h.Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds(now)))
	}
}
