package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sofatutor/campaign-edge/internal/admin"
	"github.com/sofatutor/campaign-edge/internal/api"
	"github.com/sofatutor/campaign-edge/internal/config"
	"github.com/sofatutor/campaign-edge/internal/ratelimit"
	"github.com/sofatutor/campaign-edge/internal/server"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "campaign-edge "+server.Version+"\n", out)
}

func TestRootHasSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range newRootCmd().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"server", "chat", "calendly", "ratelimits", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestChatOneShot(t *testing.T) {
	var got api.ChatRequest
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/functions/v1/chat", r.URL.Path)
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = api.WriteJSON(w, http.StatusOK, api.ChatResponse{Response: "Bonjour !", Provider: "openai"})
	}))
	defer ts.Close()

	out, err := execute(t, "chat", "--proxy", ts.URL, "--token", "user-jwt", "--system", "Sois bref", "-m", "Salut")
	require.NoError(t, err)
	assert.Equal(t, "Bonjour !\n", out)
	assert.Equal(t, "Salut", got.Message)
	assert.Equal(t, "Sois bref", got.SystemPrompt)
	assert.Equal(t, "Bearer user-jwt", auth)
}

func TestChatOneShotRateLimited(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "42")
		_ = api.WriteJSON(w, http.StatusTooManyRequests, api.ErrorResponse{Error: "Trop de requêtes. Veuillez patienter avant de réessayer."})
	}))
	defer ts.Close()

	_, err := execute(t, "chat", "--proxy", ts.URL, "-m", "Salut")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "Trop de requêtes")
	assert.Contains(t, err.Error(), "retry after 42s")
}

func TestCalendlyCommand(t *testing.T) {
	var got map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/functions/v1/calendly", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = api.WriteJSON(w, http.StatusOK, api.Envelope{Success: true, Data: json.RawMessage(`{"collection":[]}`)})
	}))
	defer ts.Close()

	out, err := execute(t, "calendly", "--proxy", ts.URL, "getAvailableTimes", "event_type=https://api.calendly.com/event_types/ET1", "start_time=2025-06-02T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"collection\": []\n}\n", out)
	assert.Equal(t, map[string]string{
		"action":     "getAvailableTimes",
		"event_type": "https://api.calendly.com/event_types/ET1",
		"start_time": "2025-06-02T00:00:00Z",
	}, got)
}

func TestCalendlyCommandFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = api.WriteJSON(w, http.StatusBadRequest, api.Envelope{Success: false, Error: "Action non supportée: bogus"})
	}))
	defer ts.Close()

	_, err := execute(t, "calendly", "--proxy", ts.URL, "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Action non supportée: bogus")

	_, err = execute(t, "calendly", "--proxy", ts.URL)
	require.Error(t, err)
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"a=1", "b=x=y", "c="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "x=y", "c": ""}, params)

	for _, bad := range []string{"novalue", "=1"} {
		_, err := parseParams([]string{bad})
		assert.Error(t, err, bad)
	}
}

func newAdminServer(t *testing.T) (*httptest.Server, *ratelimit.MemoryStore) {
	t.Helper()
	store := ratelimit.NewMemoryStore()
	ctx := context.Background()
	resetAt := time.Now().Add(time.Hour)
	require.NoError(t, store.Start(ctx, "chat:ip:203.0.113.7", resetAt))
	require.NoError(t, store.Start(ctx, "calendly:user:u-1", resetAt))

	cfg := &config.Config{
		LogLevel:           "info",
		AdminListenAddr:    "127.0.0.1:0",
		ManagementToken:    "mgmt-token",
		AdminAllowedOrigin: []string{"*"},
	}
	policies := map[string]ratelimit.Policy{
		"chat":     {Enabled: true, Window: time.Minute, Anonymous: 5, Authenticated: 20},
		"calendly": {Enabled: false, Window: time.Minute, Anonymous: 30, Authenticated: 60},
	}
	ts := httptest.NewServer(admin.NewServer(cfg, store, policies, nil).Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func TestRateLimitsList(t *testing.T) {
	ts, _ := newAdminServer(t)

	out, err := execute(t, "ratelimits", "--admin-url", ts.URL, "--management-token", "mgmt-token", "list", "--prefix", "chat:")
	require.NoError(t, err)
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "chat:ip:203.0.113.7")
	assert.NotContains(t, out, "calendly:user:u-1")
	assert.Contains(t, out, "1 entries")
}

func TestRateLimitsReset(t *testing.T) {
	ts, store := newAdminServer(t)

	out, err := execute(t, "ratelimits", "--admin-url", ts.URL, "--management-token", "mgmt-token", "reset", "chat:ip:203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, "Reset chat:ip:203.0.113.7\n", out)

	_, ok, err := store.Get(context.Background(), "chat:ip:203.0.113.7")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRateLimitsPolicies(t *testing.T) {
	ts, _ := newAdminServer(t)

	out, err := execute(t, "ratelimits", "--admin-url", ts.URL, "--management-token", "mgmt-token", "policies")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "calendly"))
	assert.Contains(t, lines[1], "false")
	assert.True(t, strings.HasPrefix(lines[2], "chat"))
	assert.Contains(t, lines[2], "1m0s")
}

func TestRateLimitsAuthErrors(t *testing.T) {
	ts, _ := newAdminServer(t)

	_, err := execute(t, "ratelimits", "--admin-url", ts.URL, "--management-token", "wrong", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API error (401)")

	t.Setenv("MANAGEMENT_TOKEN", "")
	_, err = execute(t, "ratelimits", "--admin-url", ts.URL, "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "management token is required")
}

func TestLoadServerConfigOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("ADMIN_ENABLED", "false")
	t.Setenv("MANAGEMENT_TOKEN", "mgmt-token")
	t.Setenv("RATE_LIMIT_BACKEND", "memory")
	t.Setenv("RATE_LIMIT_CONFIG_PATH", "")

	cfg, err := loadServerConfig(serverFlags{
		envFile:    "does-not-exist.env",
		listenAddr: "127.0.0.1:9999",
		logLevel:   "warn",
		debug:      true,
		withAdmin:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.ListenAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.AdminEnabled)
}

func TestServerShutdownTimeoutFlag(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "")
	flag := newServerCmd().Flags().Lookup("shutdown-timeout")
	require.NotNil(t, flag)
	assert.Equal(t, "30s", flag.DefValue)

	t.Setenv("SHUTDOWN_TIMEOUT", "5s")
	assert.Equal(t, "5s", newServerCmd().Flags().Lookup("shutdown-timeout").DefValue)

	t.Setenv("SHUTDOWN_TIMEOUT", "soon")
	assert.Equal(t, "30s", newServerCmd().Flags().Lookup("shutdown-timeout").DefValue)
}

func TestRunServerShutsDownOnCancel(t *testing.T) {
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("LOG_FILE", "")
	t.Setenv("ADMIN_ENABLED", "false")
	t.Setenv("RATE_LIMIT_BACKEND", "memory")
	t.Setenv("RATE_LIMIT_CONFIG_PATH", "does-not-exist.yaml")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runServer(ctx, serverFlags{envFile: "does-not-exist.env", listenAddr: "127.0.0.1:0", shutdownTimeout: 2 * time.Second})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
