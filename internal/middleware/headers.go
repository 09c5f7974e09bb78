package middleware

import (
	"net/http"
	"strings"

	"github.com/unrolled/secure"
)

// CORSConfig controls the headers sent to browsers calling the endpoints.
type CORSConfig struct {
	AllowedOrigin  string
	AllowedHeaders []string
	AllowedMethods []string
}

// CORS sets the cross-origin headers on every response, preflight included.
// Answering OPTIONS stays with the endpoint handler.
func CORS(cfg CORSConfig) Middleware {
	origin := cfg.AllowedOrigin
	if origin == "" {
		origin = "*"
	}
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	methods := strings.Join(cfg.AllowedMethods, ", ")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			if headers != "" {
				h.Set("Access-Control-Allow-Headers", headers)
			}
			if methods != "" {
				h.Set("Access-Control-Allow-Methods", methods)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Hardened adds the browser hardening headers: nosniff, frame denial, the
// legacy XSS filter and a strict referrer policy.
func Hardened() Middleware {
	sec := secure.New(secure.Options{
		ContentTypeNosniff: true,
		FrameDeny:          true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := sec.Process(w, r); err != nil {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
