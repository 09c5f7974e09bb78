// Package server implements the HTTP server for the campaign edge proxies.
// It wires the chat and scheduling handlers behind the shared middleware
// chain, owns the rate-limit ledger and provides health check endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sofatutor/campaign-edge/internal/api"
	"github.com/sofatutor/campaign-edge/internal/auth"
	"github.com/sofatutor/campaign-edge/internal/chat"
	"github.com/sofatutor/campaign-edge/internal/config"
	"github.com/sofatutor/campaign-edge/internal/logging"
	"github.com/sofatutor/campaign-edge/internal/middleware"
	"github.com/sofatutor/campaign-edge/internal/ratelimit"
	"github.com/sofatutor/campaign-edge/internal/scheduling"
	"github.com/sofatutor/campaign-edge/internal/upstream"
)

// Version is the application version, following semantic versioning.
const Version = "0.1.0"

// Route paths served by the proxy.
const (
	ChatPath     = "/functions/v1/chat"
	CalendlyPath = "/functions/v1/calendly"
)

// Server represents the HTTP server for the edge proxies.
// It encapsulates the underlying http.Server along with application configuration
// and handles request routing and server lifecycle management.
type Server struct {
	server   *http.Server
	config   *config.Config
	logger   *zap.Logger
	metrics  *middleware.Metrics
	ledger   ratelimit.Ledger
	memory   *ratelimit.MemoryStore
	sweeper  *ratelimit.Sweeper
	redis    *redis.Client
	limiters map[string]*ratelimit.Limiter
}

// Option customizes New.
type Option func(*Server)

// WithLogger replaces the logger built from the configuration.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithLedger replaces the store selected by RATE_LIMIT_BACKEND.
func WithLedger(ledger ratelimit.Ledger) Option {
	return func(s *Server) { s.ledger = ledger }
}

// New creates a new HTTP server with the provided configuration.
// It initializes the rate-limit ledger, both proxy handlers and all routes.
// The server is not started until the Start method is called.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		config:  cfg,
		metrics: middleware.NewMetrics(ChatPath, CalendlyPath, "/health", "/ready", "/live", "/metrics"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		logger, err := logging.NewWithOptions(logging.Options{
			Level:      cfg.LogLevel,
			Format:     cfg.LogFormat,
			File:       cfg.LogFile,
			MaxSizeMB:  cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		s.logger = logger
	}

	if err := s.initializeLedger(); err != nil {
		return nil, fmt.Errorf("failed to initialize rate limit ledger: %w", err)
	}
	if err := s.initializeLimiters(); err != nil {
		return nil, fmt.Errorf("failed to initialize rate limits: %w", err)
	}

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  cfg.RequestTimeout * 2,
	}
	return s, nil
}

// initializeLedger selects the primary store and, for Redis, the in-memory
// fallback used while Redis is unreachable.
func (s *Server) initializeLedger() error {
	if s.ledger != nil {
		if mem, ok := s.ledger.(*ratelimit.MemoryStore); ok {
			s.memory = mem
		}
	} else {
		switch s.config.RateLimitBackend {
		case "redis":
			s.redis = redis.NewClient(&redis.Options{
				Addr: s.config.RedisAddr,
				DB:   s.config.RedisDB,
			})
			s.ledger = ratelimit.NewRedisStore(ratelimit.NewRedisGoAdapter(s.redis), ratelimit.RedisStoreConfig{
				KeyPrefix:     s.config.RateLimitPrefix,
				KeyHashSecret: []byte(s.config.RateLimitKeySecret),
			})
		default:
			s.memory = ratelimit.NewMemoryStore()
			s.ledger = s.memory
		}
	}

	if s.memory == nil && s.config.RateLimitFallback {
		s.memory = ratelimit.NewMemoryStore()
	}
	if s.memory == nil {
		return nil
	}
	sweeper, err := ratelimit.NewSweeper(s.memory, s.config.RateLimitSweepEvery, s.logger)
	if err != nil {
		return err
	}
	s.sweeper = sweeper
	return nil
}

func (s *Server) defaultPolicies() map[string]ratelimit.Policy {
	return map[string]ratelimit.Policy{
		chat.Endpoint: {
			Enabled:       true,
			Window:        s.config.RateLimitWindow,
			Anonymous:     s.config.ChatAnonymousMax,
			Authenticated: s.config.ChatAuthenticatedMax,
		},
		scheduling.Endpoint: {
			Enabled:       s.config.CalendlyRateLimit,
			Window:        s.config.RateLimitWindow,
			Anonymous:     s.config.CalendlyAnonymousMax,
			Authenticated: s.config.CalendlyAuthenticated,
		},
	}
}

func (s *Server) initializeLimiters() error {
	policies, err := ratelimit.LoadPolicies(s.config.RateLimitConfigPath, s.defaultPolicies())
	if err != nil {
		return err
	}

	limiterOpts := []ratelimit.Option{ratelimit.WithLogger(s.logger)}
	if s.memory != nil && ratelimit.Store(s.memory) != s.ledger {
		limiterOpts = append(limiterOpts, ratelimit.WithFallback(s.memory))
	}

	s.limiters = make(map[string]*ratelimit.Limiter, len(policies))
	for name, policy := range policies {
		s.limiters[name] = ratelimit.NewLimiter(name, policy, s.ledger, limiterOpts...)
		s.logger.Info("Rate limit policy loaded",
			zap.String("endpoint", name),
			zap.Bool("enabled", policy.Enabled),
			zap.Duration("window", policy.Window),
			zap.Int("anonymous", policy.Anonymous),
			zap.Int("authenticated", policy.Authenticated))
	}
	return nil
}

// resolver builds the identity lookup from whichever Supabase settings are
// present. Local JWT verification is tried before the remote lookup.
func (s *Server) resolver() auth.Resolver {
	var chain auth.ChainResolver
	if s.config.SupabaseJWTSecret != "" {
		chain = append(chain, auth.NewJWTResolver(s.config.SupabaseJWTSecret))
	}
	if s.config.SupabaseURL != "" && s.config.SupabaseAnonKey != "" {
		chain = append(chain, auth.NewSupabaseResolver(s.config.SupabaseURL, s.config.SupabaseAnonKey, 5*time.Second))
	}
	if len(chain) == 0 {
		return nil
	}
	return chain
}

func (s *Server) routes() http.Handler {
	cfg := s.config
	events := logging.NewEventLogger(s.logger)
	resolver := s.resolver()

	var tokens chat.TokenCounter
	if cfg.ChatTokenAccounting {
		tokens = chat.NewTiktokenCounter(cfg.OpenAIModel)
	}

	chatHandler := chat.NewHandler(
		upstream.NewOpenAIClient(cfg.OpenAIAPIURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.MaxCompletionTokens, cfg.RequestTimeout),
		chat.Options{
			ProviderName: cfg.ChatProviderName,
			Resolver:     resolver,
			Limiter:      s.limiters[chat.Endpoint],
			Tokens:       tokens,
			Logger:       s.logger,
			Events:       events,
		})
	schedulingHandler := scheduling.NewHandler(
		upstream.NewCalendlyClient(cfg.CalendlyAPIURL, cfg.CalendlyAPIKey, cfg.RequestTimeout),
		scheduling.Options{
			Resolver: resolver,
			Limiter:  s.limiters[scheduling.Endpoint],
			Logger:   s.logger,
			Events:   events,
		})

	chatCORS := middleware.CORS(middleware.CORSConfig{
		AllowedHeaders: cfg.CORSAllowedHeaders,
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
	})
	calendlyCORS := middleware.CORS(middleware.CORSConfig{
		AllowedHeaders: cfg.CORSAllowedHeaders,
	})

	mux := http.NewServeMux()
	mux.Handle(ChatPath, middleware.Chain(chatHandler, chatCORS, middleware.Hardened()))
	mux.Handle(CalendlyPath, middleware.Chain(schedulingHandler, calendlyCORS))
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/live", s.handleLive)
	mux.HandleFunc("/metrics", s.handleMetrics)

	// Add catch-all handler for unmatched routes to ensure logging
	mux.HandleFunc("/", s.handleNotFound)

	return middleware.Chain(mux,
		middleware.RequestID(),
		middleware.Logging(s.logger),
		middleware.Recover(s.logger),
		s.metrics.Middleware(),
		middleware.Timeout(cfg.RequestTimeout),
		middleware.MaxBytes(cfg.MaxRequestSize),
	)
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Ledger returns the primary rate-limit store.
func (s *Server) Ledger() ratelimit.Ledger {
	return s.ledger
}

// Limiter returns the limiter registered for endpoint, or nil.
func (s *Server) Limiter(endpoint string) *ratelimit.Limiter {
	return s.limiters[endpoint]
}

// Policies returns the loaded policy of every endpoint.
func (s *Server) Policies() map[string]ratelimit.Policy {
	out := make(map[string]ratelimit.Policy, len(s.limiters))
	for name, l := range s.limiters {
		out[name] = l.Policy()
	}
	return out
}

// Reset clears a ledger entry through the limiter whose namespace prefixes
// key, so its fallback store is cleared as well. Keys without a known
// namespace, such as hashed Redis keys, go through any limiter since all of
// them share the ledger.
func (s *Server) Reset(ctx context.Context, key string) (bool, error) {
	names := make([]string, 0, len(s.limiters))
	for name := range s.limiters {
		names = append(names, name)
	}
	if len(names) == 0 {
		return s.ledger.Remove(ctx, key)
	}
	sort.Strings(names)

	l := s.limiters[names[0]]
	for _, name := range names {
		if strings.HasPrefix(key, name+":") {
			l = s.limiters[name]
			break
		}
	}
	return l.Reset(ctx, key)
}

// Logger returns the server's logger.
func (s *Server) Logger() *zap.Logger {
	return s.logger
}

// Start starts the ledger sweeper and the HTTP server.
// This method blocks until the server is shut down or an error occurs.
//
// It returns http.ErrServerClosed after a graceful Shutdown.
func (s *Server) Start() error {
	if s.sweeper != nil {
		s.sweeper.Start()
	}
	s.logger.Info("Server starting",
		zap.String("addr", s.config.ListenAddr),
		zap.String("rate_limit_backend", s.config.RateLimitBackend))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server without interrupting
// active connections, then stops the sweeper and closes Redis.
//
// The context should typically include a timeout to prevent
// the shutdown from blocking indefinitely.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	if s.sweeper != nil {
		if stopErr := s.sweeper.Stop(); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
	}
	if s.redis != nil {
		if closeErr := s.redis.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}
	_ = s.logger.Sync()
	return err
}

// handleHealth responds with the server status and application version.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := api.WriteJSON(w, http.StatusOK, api.HealthResponse{Status: "ok", Version: Version}); err != nil {
		s.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// handleReady answers readiness checks. With the Redis backend it
// reports not ready while Redis does not answer PING.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			logging.FromContext(r.Context(), s.logger).Warn("Readiness check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleLive answers liveness checks.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}

// handleMetrics returns basic runtime metrics in JSON format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if err := api.WriteJSON(w, http.StatusOK, s.metrics.Snapshot()); err != nil {
		s.logger.Error("Failed to encode metrics", zap.Error(err))
	}
}

// handleNotFound is a catch-all handler for unmatched routes
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	logging.FromContext(r.Context(), s.logger).Info("Route not found",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path))
	http.NotFound(w, r)
}
