package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/habedi/gauth/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv(ProviderEnv, "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "browser", cfg.Provider)
	assert.Equal(t, "default", cfg.Name)
	assert.Equal(t, auth.DefaultExpiryMargin, cfg.ExpiryMargin)
	assert.Equal(t, auth.DefaultCallbackTimeout, cfg.Callback.Timeout)
	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Equal(t, auth.DefaultAccessTokenEnv, cfg.AccessTokenEnv)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	t.Setenv(ProviderEnv, "")
	path := writeConfig(t, `
provider: service-account
name: ci
service_account: /etc/gauth/sa.json
scopes:
  - https://www.googleapis.com/auth/cloud-translation
expiry_margin: 2m
callback:
  address: 127.0.0.1:8085
  timeout: 45s
store:
  backend: sqlite
api:
  rate_limit: 5
  user_agent: gauth-ci
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "service-account", cfg.Provider)
	assert.Equal(t, "ci", cfg.Name)
	assert.Equal(t, "/etc/gauth/sa.json", cfg.ServiceAccount)
	assert.Equal(t, []string{"https://www.googleapis.com/auth/cloud-translation"}, cfg.Scopes)
	assert.Equal(t, 2*time.Minute, cfg.ExpiryMargin)
	assert.Equal(t, "127.0.0.1:8085", cfg.Callback.Address)
	assert.Equal(t, 45*time.Second, cfg.Callback.Timeout)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "tokens.db", filepath.Base(cfg.Store.Path))
	assert.Equal(t, 5.0, cfg.API.RateLimit)
	assert.Equal(t, "gauth-ci", cfg.API.UserAgent)
}

func TestLoad_ProviderFromEnvironment(t *testing.T) {
	t.Setenv(ProviderEnv, "default")
	cfg, err := Load(writeConfig(t, "provider: browser\n"))
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.Provider)
}

func TestLoad_ExpandsHome(t *testing.T) {
	t.Setenv(ProviderEnv, "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg, err := Load(writeConfig(t, "client_credentials: ~/secrets/client.json\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "secrets", "client.json"), cfg.ClientCredentials)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv(ProviderEnv, "")
	tests := []struct {
		name string
		body string
	}{
		{"malformed yaml", "provider: [browser\n"},
		{"unknown provider", "provider: magic\n"},
		{"unknown backend", "store:\n  backend: s3\n"},
		{"margin too large", "expiry_margin: 2h\n"},
		{"timeout too short", "callback:\n  timeout: 1s\n"},
		{"negative rate", "api:\n  rate_limit: -1\n"},
		{"empty scope", "scopes: [\"\"]\n"},
		{"service account without file", "provider: service-account\n"},
		{"bad duration", "expiry_margin: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv(ConfigEnv, "/tmp/custom.yaml")
	assert.Equal(t, "/tmp/custom.yaml", DefaultConfigPath())

	t.Setenv(ConfigEnv, "")
	assert.Equal(t, "config.yaml", filepath.Base(DefaultConfigPath()))
}

func TestValidate_KeyringNeedsNoPath(t *testing.T) {
	cfg := Default()
	cfg.Store = StoreConfig{Backend: "keyring"}
	assert.NoError(t, cfg.Validate())
}
