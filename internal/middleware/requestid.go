package middleware

import (
	"net/http"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/sofatutor/campaign-edge/internal/logging"
)

// RequestID propagates X-Request-ID and X-Correlation-ID into the request
// context and echoes them on the response, generating UUIDs when absent.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := getOrGenerateID(r.Header.Get("X-Request-ID"))
			correlationID := getOrGenerateID(r.Header.Get("X-Correlation-ID"))

			ctx := logging.WithRequestID(r.Context(), requestID)
			ctx = logging.WithCorrelationID(ctx, correlationID)

			w.Header().Set("X-Request-ID", requestID)
			w.Header().Set("X-Correlation-ID", correlationID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// maxIDLength bounds caller-supplied IDs before they reach log lines.
const maxIDLength = 128

// getOrGenerateID returns the trimmed caller ID, or a new UUID when it is
// empty, too long, or contains control characters.
func getOrGenerateID(existingID string) string {
	existingID = strings.TrimSpace(existingID)
	if existingID == "" || len(existingID) > maxIDLength || strings.ContainsFunc(existingID, unicode.IsControl) {
		return uuid.New().String()
	}
	return existingID
}
