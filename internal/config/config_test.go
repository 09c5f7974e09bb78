package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGetEnvFunctions tests the various getEnv helper functions directly
func TestGetEnvFunctions(t *testing.T) {
	t.Run("getEnvInt", func(t *testing.T) {
		assert.Equal(t, 42, getEnvInt("CE_UNSET_INT", 42))
		t.Setenv("CE_INT", "123")
		assert.Equal(t, 123, getEnvInt("CE_INT", 42))
		t.Setenv("CE_INT", "abc")
		assert.Equal(t, 42, getEnvInt("CE_INT", 42))
	})

	t.Run("getEnvInt64", func(t *testing.T) {
		t.Setenv("CE_INT64", "9000000000")
		assert.Equal(t, int64(9000000000), getEnvInt64("CE_INT64", 1))
	})

	t.Run("getEnvDuration", func(t *testing.T) {
		t.Setenv("CE_DURATION", "2m")
		assert.Equal(t, 2*time.Minute, getEnvDuration("CE_DURATION", time.Second))
		t.Setenv("CE_DURATION", "bogus")
		assert.Equal(t, time.Second, getEnvDuration("CE_DURATION", time.Second))
	})

	t.Run("getEnvStringSlice", func(t *testing.T) {
		t.Setenv("CE_SLICE", " a, ,b ,c")
		assert.Equal(t, []string{"a", "b", "c"}, getEnvStringSlice("CE_SLICE", nil))
		t.Setenv("CE_SLICE", " , ")
		assert.Equal(t, []string{"x"}, getEnvStringSlice("CE_SLICE", []string{"x"}))
	})
}

func TestNew_Defaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "https://api.openai.com", cfg.OpenAIAPIURL)
	assert.Equal(t, "https://api.calendly.com", cfg.CalendlyAPIURL)
	assert.Equal(t, 500, cfg.MaxCompletionTokens)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, 5, cfg.ChatAnonymousMax)
	assert.Equal(t, 20, cfg.ChatAuthenticatedMax)
	assert.False(t, cfg.CalendlyRateLimit)
	assert.Equal(t, "memory", cfg.RateLimitBackend)
	assert.Empty(t, cfg.RateLimitConfigPath)
	assert.Equal(t, []string{"authorization", "x-client-info", "apikey", "content-type"}, cfg.CORSAllowedHeaders)
}

func TestNew_MissingProviderKeysAreNotFatal(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("CALENDLY_API_KEY", "")

	cfg, err := New()
	require.NoError(t, err)
	assert.Empty(t, cfg.OpenAIAPIKey)
	assert.Empty(t, cfg.CalendlyAPIKey)
}

func TestNew_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad log level", map[string]string{"LOG_LEVEL": "verbose"}},
		{"bad backend", map[string]string{"RATE_LIMIT_BACKEND": "memcached"}},
		{"authenticated below anonymous", map[string]string{"CHAT_RATE_LIMIT_ANONYMOUS": "10", "CHAT_RATE_LIMIT_AUTHENTICATED": "3"}},
		{"admin without token", map[string]string{"ADMIN_ENABLED": "true", "MANAGEMENT_TOKEN": ""}},
		{"bad upstream url", map[string]string{"OPENAI_API_URL": "not a url"}},
		{"zero completion tokens", map[string]string{"CHAT_MAX_COMPLETION_TOKENS": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := New()
			assert.Error(t, err)
		})
	}
}

func TestNew_AdminEnabledWithToken(t *testing.T) {
	t.Setenv("ADMIN_ENABLED", "true")
	t.Setenv("MANAGEMENT_TOKEN", "secret-token")

	cfg, err := New()
	require.NoError(t, err)
	assert.True(t, cfg.AdminEnabled)
	assert.Equal(t, ":8081", cfg.AdminListenAddr)
}
