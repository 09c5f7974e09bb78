// Package auth resolves the caller behind a bearer token. Resolution is
// advisory: a caller whose token cannot be resolved is treated as anonymous.
package auth

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sofatutor/campaign-edge/internal/api"
	"github.com/sofatutor/campaign-edge/internal/logging"
)

var (
	// ErrNoToken is returned when a resolver is given an empty token.
	ErrNoToken = errors.New("no bearer token")
	// ErrInvalidToken is returned when the auth service rejects the token.
	ErrInvalidToken = errors.New("invalid bearer token")
	// ErrNotConfigured is returned by a resolver missing its settings.
	ErrNotConfigured = errors.New("auth resolver not configured")
)

// Identity is either Authenticated with a user id or Anonymous.
type Identity struct {
	userID string
}

// Anonymous returns the identity of an unauthenticated caller.
func Anonymous() Identity { return Identity{} }

// Authenticated returns the identity of a resolved user. An empty id yields
// Anonymous.
func Authenticated(userID string) Identity { return Identity{userID: userID} }

// IsAuthenticated reports whether the caller was resolved to a user.
func (i Identity) IsAuthenticated() bool { return i.userID != "" }

// UserID returns the resolved user id, or "" for anonymous callers.
func (i Identity) UserID() string { return i.userID }

func (i Identity) String() string {
	if i.IsAuthenticated() {
		return "user:" + i.userID
	}
	return "anonymous"
}

// Resolver turns a bearer token into a user id.
type Resolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, token string) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}

// ChainResolver tries each resolver in order and returns the first success.
type ChainResolver []Resolver

func (c ChainResolver) Resolve(ctx context.Context, token string) (string, error) {
	var errs []error
	for _, r := range c {
		if r == nil {
			continue
		}
		id, err := r.Resolve(ctx, token)
		if err == nil && id != "" {
			return id, nil
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return "", ErrNotConfigured
	}
	return "", errors.Join(errs...)
}

// Identify resolves the bearer token on r, if any. Resolution failures are
// logged and recorded as auth_fallback events; the caller becomes Anonymous.
func Identify(ctx context.Context, r *http.Request, resolver Resolver, logger *zap.Logger, events *logging.EventLogger) Identity {
	token := api.BearerToken(r.Header.Get("Authorization"))
	if token == "" || resolver == nil {
		return Anonymous()
	}

	id, err := resolver.Resolve(ctx, token)
	if err == nil && id != "" {
		return Authenticated(id)
	}
	if err == nil {
		err = ErrInvalidToken
	}

	logging.FromContext(ctx, logger).Warn("Failed to resolve caller, continuing as anonymous", zap.Error(err))
	if events != nil {
		events.Log(ctx, logging.Event{
			Type:    logging.EventAuthFallback,
			Outcome: logging.OutcomeFailure,
			Reason:  err.Error(),
		})
	}
	return Anonymous()
}
