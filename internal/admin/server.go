// Package admin provides the operator API for the edge proxies.
// It lists and resets rate-limit ledger entries and reports the loaded
// policies, behind the management token.
package admin

import (
	"context"
	"crypto/subtle"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sofatutor/campaign-edge/internal/api"
	"github.com/sofatutor/campaign-edge/internal/config"
	"github.com/sofatutor/campaign-edge/internal/logging"
	"github.com/sofatutor/campaign-edge/internal/ratelimit"
)

// RateLimitEntry is one ledger record as exposed by GET /ratelimits.
type RateLimitEntry struct {
	Key     string    `json:"key"`
	Count   int       `json:"count"`
	ResetAt time.Time `json:"reset_at"`
}

// RateLimitList is the body of GET /ratelimits.
type RateLimitList struct {
	Entries []RateLimitEntry `json:"entries"`
	Count   int              `json:"count"`
}

// PolicyView is a Policy with a human-readable window.
type PolicyView struct {
	Enabled       bool   `json:"enabled"`
	Window        string `json:"window"`
	Anonymous     int    `json:"anonymous"`
	Authenticated int    `json:"authenticated"`
}

// Resetter clears one ledger entry and reports whether it existed. key is
// either a caller key such as chat:ip:203.0.113.7 or a key from GET /ratelimits.
type Resetter interface {
	Reset(ctx context.Context, key string) (bool, error)
}

// ledgerResetter resets entries in the ledger alone.
type ledgerResetter struct {
	ledger ratelimit.Ledger
}

func (r ledgerResetter) Reset(ctx context.Context, key string) (bool, error) {
	return r.ledger.Remove(ctx, key)
}

// Option customizes NewServer.
type Option func(*Server)

// WithResetter routes DELETE /ratelimits through r instead of the ledger,
// so entries held by a fallback store are cleared too.
func WithResetter(r Resetter) Option {
	return func(s *Server) {
		if r != nil {
			s.resetter = r
		}
	}
}

// Server represents the admin API HTTP server.
type Server struct {
	server   *http.Server
	config   *config.Config
	engine   *gin.Engine
	ledger   ratelimit.Ledger
	resetter Resetter
	policies map[string]ratelimit.Policy
	logger   *zap.Logger
	now      func() time.Time
}

// NewServer creates the admin API over ledger. policies is reported as is by
// GET /policies.
func NewServer(cfg *config.Config, ledger ratelimit.Ledger, policies map[string]ratelimit.Policy, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Set Gin mode based on log level
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))
	engine.Use(cors.New(corsConfig(cfg.AdminAllowedOrigin)))

	s := &Server{
		config:   cfg,
		engine:   engine,
		ledger:   ledger,
		resetter: ledgerResetter{ledger: ledger},
		policies: policies,
		logger:   logger,
		now:      time.Now,
		server: &http.Server{
			Addr:         cfg.AdminListenAddr,
			Handler:      engine,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

// requestLogger logs each admin request at info level.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("Admin request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

// Handler returns the gin engine.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start starts the admin server.
// This method blocks until the server is shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("Admin server starting", zap.String("addr", s.config.AdminListenAddr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server without interrupting active connections.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.handleHealth)

	protected := s.engine.Group("/", s.authMiddleware())
	{
		protected.GET("/ratelimits", s.handleListRateLimits)
		protected.DELETE("/ratelimits", s.handleResetRateLimit)
		protected.GET("/policies", s.handlePolicies)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{Status: "ok", Version: "admin"})
}

// authMiddleware requires "Authorization: Bearer <MANAGEMENT_TOKEN>".
func (s *Server) authMiddleware() gin.HandlerFunc {
	expected := []byte(s.config.ManagementToken)
	return func(c *gin.Context) {
		token := api.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{Error: "missing or invalid Authorization header"})
			return
		}
		if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
			s.logger.Warn("Rejected admin request", zap.String("token", api.ObfuscateKey(token)))
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{Error: "invalid management token"})
			return
		}
		c.Next()
	}
}

// GET /ratelimits?prefix=chat:
func (s *Server) handleListRateLimits(c *gin.Context) {
	entries, err := s.ledger.List(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to list rate limit entries", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, api.ErrorResponse{Error: "rate limit store unavailable"})
		return
	}

	prefix := c.Query("prefix")
	includeEnded := c.Query("all") == "true"
	now := s.now()
	out := RateLimitList{Entries: make([]RateLimitEntry, 0, len(entries))}
	for key, e := range entries {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if !includeEnded && !now.Before(e.ResetAt) {
			continue
		}
		out.Entries = append(out.Entries, RateLimitEntry{Key: key, Count: e.Count, ResetAt: e.ResetAt})
	}
	sort.Slice(out.Entries, func(i, j int) bool { return out.Entries[i].Key < out.Entries[j].Key })
	out.Count = len(out.Entries)
	c.JSON(http.StatusOK, out)
}

// DELETE /ratelimits?key=chat:ip:203.0.113.7
func (s *Server) handleResetRateLimit(c *gin.Context) {
	key := strings.TrimSpace(c.Query("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "key is required"})
		return
	}
	removed, err := s.resetter.Reset(c.Request.Context(), key)
	if err != nil {
		s.logger.Error("Failed to reset rate limit entry", zap.String("key", key), zap.Error(err))
		if !removed {
			c.JSON(http.StatusServiceUnavailable, api.ErrorResponse{Error: "rate limit store unavailable"})
			return
		}
	}
	if !removed {
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "no rate limit entry for key"})
		return
	}
	logging.FromContext(c.Request.Context(), s.logger).Info("Rate limit entry reset", zap.String("key", key))
	c.Status(http.StatusNoContent)
}

// GET /policies
func (s *Server) handlePolicies(c *gin.Context) {
	out := make(map[string]PolicyView, len(s.policies))
	for name, p := range s.policies {
		out[name] = PolicyView{
			Enabled:       p.Enabled,
			Window:        p.Window.String(),
			Anonymous:     p.Anonymous,
			Authenticated: p.Authenticated,
		}
	}
	c.JSON(http.StatusOK, out)
}
