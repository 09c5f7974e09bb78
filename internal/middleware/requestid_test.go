package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sofatutor/campaign-edge/internal/logging"
	"github.com/stretchr/testify/assert"
)

const uuidPattern = `^[a-f0-9-]{36}$`

func TestRequestID(t *testing.T) {
	tests := []struct {
		name          string
		requestID     string
		correlationID string
	}{
		{name: "generates both IDs"},
		{name: "keeps request ID", requestID: "req-123"},
		{name: "keeps correlation ID", correlationID: "corr-456"},
		{name: "keeps both", requestID: "req-123", correlationID: "corr-456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotReq, gotCorr string
			handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotReq, _ = logging.GetRequestID(r.Context())
				gotCorr, _ = logging.GetCorrelationID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodPost, "/functions/v1/chat", nil)
			if tt.requestID != "" {
				req.Header.Set("X-Request-ID", tt.requestID)
			}
			if tt.correlationID != "" {
				req.Header.Set("X-Correlation-ID", tt.correlationID)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if tt.requestID != "" {
				assert.Equal(t, tt.requestID, gotReq)
			} else {
				assert.Regexp(t, uuidPattern, gotReq)
			}
			if tt.correlationID != "" {
				assert.Equal(t, tt.correlationID, gotCorr)
			} else {
				assert.Regexp(t, uuidPattern, gotCorr)
			}
			assert.Equal(t, gotReq, rr.Header().Get("X-Request-ID"))
			assert.Equal(t, gotCorr, rr.Header().Get("X-Correlation-ID"))
		})
	}
}

func TestRequestID_RejectsUnusableHeaders(t *testing.T) {
	for name, value := range map[string]string{
		"whitespace":    "   ",
		"too long":      strings.Repeat("a", maxIDLength+1),
		"control chars": "abc\x07def",
	} {
		t.Run(name, func(t *testing.T) {
			var got string
			handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = logging.GetRequestID(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.Header.Set("X-Request-ID", value)
			handler.ServeHTTP(httptest.NewRecorder(), req)
			assert.Regexp(t, uuidPattern, got)
		})
	}
}

func TestRequestID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := logging.GetRequestID(r.Context())
		seen[id] = true
	}))
	for i := 0; i < 10; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	assert.Len(t, seen, 10)
}
