package middleware

import (
	"net/http"
	"sync"
	"time"
)

// Metrics holds in-process request counters.
type Metrics struct {
	mu                sync.Mutex
	requestCount      int64
	errorCount        int64
	rateLimitedCount  int64
	totalResponseTime time.Duration
	byPath            map[string]int64
	paths             map[string]struct{}
	startTime         time.Time
}

// OtherPath is the RequestsByPath bucket for paths not passed to NewMetrics.
const OtherPath = "other"

// MetricsSnapshot is the JSON view of Metrics.
type MetricsSnapshot struct {
	UptimeSeconds     float64          `json:"uptime_seconds"`
	RequestCount      int64            `json:"request_count"`
	ErrorCount        int64            `json:"error_count"`
	RateLimitedCount  int64            `json:"rate_limited_count"`
	AvgResponseTimeMS float64          `json:"avg_response_time_ms"`
	RequestsByPath    map[string]int64 `json:"requests_by_path"`
}

// NewMetrics creates an empty counter set. Requests are counted per path
// only for the given routes; every other path lands in OtherPath so that
// scanners cannot grow the map.
func NewMetrics(paths ...string) *Metrics {
	m := &Metrics{
		byPath:    make(map[string]int64),
		paths:     make(map[string]struct{}, len(paths)),
		startTime: time.Now(),
	}
	for _, p := range paths {
		m.paths[p] = struct{}{}
	}
	return m
}

// Middleware records one request per call, counting statuses >= 400 as
// errors and 429 separately.
func (m *Metrics) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newResponseRecorder(w)
			next.ServeHTTP(rec, r)
			m.record(r.URL.Path, rec.statusCode, time.Since(start))
		})
	}
}

func (m *Metrics) record(path string, status int, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount++
	if status >= 400 {
		m.errorCount++
	}
	if status == http.StatusTooManyRequests {
		m.rateLimitedCount++
	}
	m.totalResponseTime += d
	if _, ok := m.paths[path]; !ok {
		path = OtherPath
	}
	m.byPath[path]++
}

// Snapshot returns a consistent copy of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := MetricsSnapshot{
		UptimeSeconds:    time.Since(m.startTime).Seconds(),
		RequestCount:     m.requestCount,
		ErrorCount:       m.errorCount,
		RateLimitedCount: m.rateLimitedCount,
		RequestsByPath:   make(map[string]int64, len(m.byPath)),
	}
	if m.requestCount > 0 {
		s.AvgResponseTimeMS = float64(m.totalResponseTime.Milliseconds()) / float64(m.requestCount)
	}
	for k, v := range m.byPath {
		s.RequestsByPath[k] = v
	}
	return s
}
