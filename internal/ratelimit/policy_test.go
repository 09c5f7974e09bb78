package ratelimit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultPolicies() map[string]Policy {
	return map[string]Policy{
		"chat":     chatPolicy,
		"calendly": {Enabled: false, Window: time.Minute, Anonymous: 30, Authenticated: 60},
	}
}

func TestLoadPolicies_MissingFileKeepsDefaults(t *testing.T) {
	got, err := LoadPolicies(filepath.Join(t.TempDir(), "absent.yaml"), defaultPolicies())
	require.NoError(t, err)
	assert.Equal(t, defaultPolicies(), got)

	got, err = LoadPolicies("", defaultPolicies())
	require.NoError(t, err)
	assert.Equal(t, defaultPolicies(), got)
}

func TestLoadPolicies_Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rate_limits.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
endpoints:
  calendly:
    enabled: true
    window: 30s
    anonymous: 10
    authenticated: 10
`), 0o600))

	got, err := LoadPolicies(path, defaultPolicies())
	require.NoError(t, err)
	assert.Equal(t, chatPolicy, got["chat"])
	assert.Equal(t, Policy{Enabled: true, Window: 30 * time.Second, Anonymous: 10, Authenticated: 10}, got["calendly"])
}

func TestLoadPolicies_PartialOverlayKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rate_limits.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
endpoints:
  chat:
    window: 30s
  calendly:
    enabled: true
`), 0o600))

	got, err := LoadPolicies(path, defaultPolicies())
	require.NoError(t, err)
	assert.Equal(t, Policy{Enabled: true, Window: 30 * time.Second, Anonymous: 5, Authenticated: 20}, got["chat"])
	assert.Equal(t, Policy{Enabled: true, Window: time.Minute, Anonymous: 30, Authenticated: 60}, got["calendly"])
}

func TestLoadPolicies_Invalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"inverted": "endpoints:\n  chat: {enabled: true, window: 1m, anonymous: 20, authenticated: 5}\n",
		"window":   "endpoints:\n  chat: {enabled: true, window: 0s, anonymous: 1, authenticated: 1}\n",
		"syntax":   "endpoints: [",
		"partial":  "endpoints:\n  chat: {anonymous: 50}\n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name+".yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		_, err := LoadPolicies(path, defaultPolicies())
		assert.Error(t, err, name)
	}
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, chatPolicy.Validate())
	assert.NoError(t, Policy{}.Validate())
	assert.Error(t, Policy{Enabled: true, Window: time.Minute}.Validate())
	assert.Equal(t, 20, chatPolicy.Limit(true))
	assert.Equal(t, 5, chatPolicy.Limit(false))
}
