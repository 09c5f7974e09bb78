package ratelimit

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Key       string
	Limit     int
	Remaining int
	ResetAt   time.Time
	// Degraded is set when the primary store failed for this decision.
	Degraded bool
}

// RetryAfterSeconds returns the whole seconds left in the window, rounded
// up and never below one.
func (d Decision) RetryAfterSeconds(now time.Time) int {
	secs := int(math.Ceil(d.ResetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithFallback sets the store used when the primary store errors.
func WithFallback(s Store) Option {
	return func(l *Limiter) { l.fallback = s }
}

// WithLogger sets the limiter's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// Limiter enforces a fixed-window Policy for one endpoint.
type Limiter struct {
	name     string
	policy   Policy
	store    Store
	fallback Store
	logger   *zap.Logger
	now      func() time.Time
}

// NewLimiter creates a limiter whose keys are namespaced by name.
func NewLimiter(name string, policy Policy, store Store, opts ...Option) *Limiter {
	l := &Limiter{
		name:   name,
		policy: policy,
		store:  store,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the endpoint namespace.
func (l *Limiter) Name() string { return l.name }

// Policy returns the active policy.
func (l *Limiter) Policy() Policy { return l.policy }

// Enabled reports whether the limiter enforces anything.
func (l *Limiter) Enabled() bool { return l != nil && l.policy.Enabled }

// Now returns the limiter's clock reading.
func (l *Limiter) Now() time.Time { return l.now() }

// Key returns the namespaced ledger key for a caller.
func (l *Limiter) Key(c Caller) string {
	return l.name + ":" + c.Key
}

// Allow records a request from c and reports whether it may proceed.
// Store failures fall back to the fallback store, and fail open without one.
func (l *Limiter) Allow(ctx context.Context, c Caller) Decision {
	limit := l.policy.Limit(c.Authenticated)
	key := l.Key(c)
	if !l.Enabled() {
		return Decision{Allowed: true, Key: key, Limit: limit, Remaining: limit}
	}

	now := l.now()
	d, err := l.check(ctx, l.store, key, limit, now)
	if err == nil {
		return d
	}

	if l.fallback != nil {
		l.logger.Warn("Rate limit store failed, using fallback",
			zap.String("limiter", l.name), zap.Error(err))
		d, ferr := l.check(ctx, l.fallback, key, limit, now)
		if ferr == nil {
			d.Degraded = true
			return d
		}
		err = ferr
	}

	l.logger.Error("Rate limit store failed, allowing request",
		zap.String("limiter", l.name), zap.Error(err))
	return Decision{Allowed: true, Key: key, Limit: limit, Remaining: limit, Degraded: true}
}

func (l *Limiter) check(ctx context.Context, s Store, key string, limit int, now time.Time) (Decision, error) {
	e, ok, err := s.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}

	if !ok || !now.Before(e.ResetAt) {
		resetAt := now.Add(l.policy.Window)
		if err := s.Start(ctx, key, resetAt); err != nil {
			return Decision{}, err
		}
		return Decision{Allowed: true, Key: key, Limit: limit, Remaining: remaining(limit, 1), ResetAt: resetAt}, nil
	}

	if e.Count >= limit {
		return Decision{Allowed: false, Key: key, Limit: limit, Remaining: 0, ResetAt: e.ResetAt}, nil
	}

	n, err := s.Increment(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Allowed: true, Key: key, Limit: limit, Remaining: remaining(limit, n), ResetAt: e.ResetAt}, nil
}

func remaining(limit, count int) int {
	if count >= limit {
		return 0
	}
	return limit - count
}

// Reset removes key from the primary and fallback stores and reports whether
// either held it. key is a ledger key as built by Key or as listed by the
// store. A primary store error is returned even when the fallback entry was
// removed.
func (l *Limiter) Reset(ctx context.Context, key string) (bool, error) {
	removed, err := remove(ctx, l.store, key)
	if l.fallback != nil {
		ok, ferr := remove(ctx, l.fallback, key)
		if ferr != nil {
			l.logger.Warn("Failed to reset fallback rate limit entry",
				zap.String("limiter", l.name), zap.Error(ferr))
		}
		removed = removed || ok
	}
	return removed, err
}

func remove(ctx context.Context, s Store, key string) (bool, error) {
	if r, ok := s.(Remover); ok {
		return r.Remove(ctx, key)
	}
	_, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	return true, s.Delete(ctx, key)
}
