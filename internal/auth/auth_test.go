package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sofatutor/campaign-edge/internal/logging"
)

func signed(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestIdentity(t *testing.T) {
	assert.False(t, Anonymous().IsAuthenticated())
	assert.Equal(t, "anonymous", Anonymous().String())
	assert.False(t, Authenticated("").IsAuthenticated())

	id := Authenticated("u-1")
	assert.True(t, id.IsAuthenticated())
	assert.Equal(t, "u-1", id.UserID())
	assert.Equal(t, "user:u-1", id.String())
}

func TestSupabaseResolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			_, _ = w.Write([]byte(`{"id":"8f1c","email":"a@b.fr"}`))
		case "Bearer noid":
			_, _ = w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"msg":"invalid JWT"}`))
		}
	}))
	defer srv.Close()

	r := NewSupabaseResolver(srv.URL+"/", "anon-key", time.Second)
	id, err := r.Resolve(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "8f1c", id)

	_, err = r.Resolve(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = r.Resolve(context.Background(), "noid")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = r.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoToken)

	_, err = NewSupabaseResolver("", "", time.Second).Resolve(context.Background(), "good")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestJWTResolver(t *testing.T) {
	r := NewJWTResolver("s3cret")
	ctx := context.Background()

	id, err := r.Resolve(ctx, signed(t, "s3cret", jwt.MapClaims{"sub": "u-42", "exp": time.Now().Add(time.Hour).Unix()}))
	require.NoError(t, err)
	assert.Equal(t, "u-42", id)

	_, err = r.Resolve(ctx, signed(t, "other", jwt.MapClaims{"sub": "u-42"}))
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = r.Resolve(ctx, signed(t, "s3cret", jwt.MapClaims{"sub": "u-42", "exp": time.Now().Add(-time.Hour).Unix()}))
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = r.Resolve(ctx, signed(t, "s3cret", jwt.MapClaims{"role": "anon"}))
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = r.Resolve(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewJWTResolver("").Resolve(ctx, "x")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestChainResolver(t *testing.T) {
	fail := ResolverFunc(func(context.Context, string) (string, error) { return "", errors.New("down") })
	ok := ResolverFunc(func(context.Context, string) (string, error) { return "u-1", nil })

	id, err := ChainResolver{fail, nil, ok}.Resolve(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, "u-1", id)

	_, err = ChainResolver{fail, fail}.Resolve(context.Background(), "t")
	assert.Error(t, err)

	_, err = ChainResolver{}.Resolve(context.Background(), "t")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestIdentify(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	events := logging.NewEventLogger(logger)

	calls := 0
	resolver := ResolverFunc(func(_ context.Context, token string) (string, error) {
		calls++
		if token == "good" {
			return "u-1", nil
		}
		return "", ErrInvalidToken
	})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.Equal(t, Anonymous(), Identify(context.Background(), req, resolver, logger, events))
	assert.Zero(t, calls)

	req.Header.Set("Authorization", "Bearer good")
	assert.Equal(t, Authenticated("u-1"), Identify(context.Background(), req, resolver, logger, events))

	req.Header.Set("Authorization", "bearer bad")
	assert.Equal(t, Anonymous(), Identify(context.Background(), req, resolver, logger, events))
	assert.Equal(t, 2, calls)

	assert.Equal(t, 1, logs.FilterMessage("Failed to resolve caller, continuing as anonymous").Len())
	fallback := logs.FilterField(zap.String(logging.FieldEventType, string(logging.EventAuthFallback)))
	assert.Equal(t, 1, fallback.Len())

	assert.Equal(t, Anonymous(), Identify(context.Background(), req, nil, logger, nil))
}
