// Package config loads the gauth YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/habedi/gauth/auth"
	"github.com/habedi/gauth/pkg/validation"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigEnv names the variable that overrides the config file location.
	ConfigEnv = "GAUTH_CONFIG"
	// ProviderEnv overrides the provider field.
	ProviderEnv = "GAUTH_PROVIDER"

	configDirName  = "gauth"
	configFileName = "config.yaml"
)

// CallbackConfig controls the loopback listener of the browser flow.
type CallbackConfig struct {
	// Address is the host:port of the loopback listener. Empty uses the
	// client's registered loopback redirect or an ephemeral port.
	Address string        `yaml:"address"`
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig selects the token store backend and its location.
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// APIConfig tunes the Session used by the API commands.
type APIConfig struct {
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	UserAgent string  `yaml:"user_agent"`
}

// Config is the contents of config.yaml.
type Config struct {
	Provider           string         `yaml:"provider"`
	Name               string         `yaml:"name"`
	ClientCredentials  string         `yaml:"client_credentials"`
	ServiceAccount     string         `yaml:"service_account"`
	DefaultCredentials string         `yaml:"default_credentials"`
	AccessTokenEnv     string         `yaml:"access_token_env"`
	Scopes             []string       `yaml:"scopes"`
	ExpiryMargin       time.Duration  `yaml:"expiry_margin"`
	Callback           CallbackConfig `yaml:"callback"`
	Store              StoreConfig    `yaml:"store"`
	API                APIConfig      `yaml:"api"`
}

// Dir returns <user config dir>/gauth.
func Dir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "."+configDirName)
	}
	return filepath.Join(base, configDirName)
}

// DefaultConfigPath returns $GAUTH_CONFIG, else <user config dir>/gauth/config.yaml.
func DefaultConfigPath() string {
	if env := os.Getenv(ConfigEnv); env != "" {
		return env
	}
	return filepath.Join(Dir(), configFileName)
}

// Default returns the configuration used when no file exists.
func Default() Config {
	dir := Dir()
	return Config{
		Provider:           "browser",
		Name:               "default",
		ClientCredentials:  filepath.Join(dir, "client_secret.json"),
		DefaultCredentials: auth.DefaultCredentialsPath(),
		AccessTokenEnv:     auth.DefaultAccessTokenEnv,
		Scopes:             []string{"openid", "profile", "email"},
		ExpiryMargin:       auth.DefaultExpiryMargin,
		Callback: CallbackConfig{
			Timeout: auth.DefaultCallbackTimeout,
		},
		Store: StoreConfig{
			Backend: "file",
			Path:    filepath.Join(dir, "tokens.json"),
		},
		API: APIConfig{
			UserAgent: "gauth",
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Debug().Str("path", path).Msg("No config file found, using defaults")
	case err != nil:
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("error loading config from %s: %w", path, err)
		}
		log.Debug().Str("path", path).Msg("Loaded configuration")
	}

	if v := os.Getenv(ProviderEnv); v != "" {
		cfg.Provider = v
	}
	if cfg.Store.Backend == "sqlite" && cfg.Store.Path == Default().Store.Path {
		cfg.Store.Path = filepath.Join(Dir(), "tokens.db")
	}
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) expandPaths() {
	c.ClientCredentials = expandHome(c.ClientCredentials)
	c.ServiceAccount = expandHome(c.ServiceAccount)
	c.DefaultCredentials = expandHome(c.DefaultCredentials)
	c.Store.Path = expandHome(c.Store.Path)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Validate checks field ranges and the fields the selected provider needs.
func (c Config) Validate() error {
	if err := validation.ValidateProvider(c.Provider); err != nil {
		return err
	}
	if err := validation.ValidateNonEmptyString("name", c.Name); err != nil {
		return err
	}
	if err := validation.ValidateExpiryMargin(c.ExpiryMargin); err != nil {
		return err
	}
	if err := validation.ValidateCallbackTimeout(c.Callback.Timeout); err != nil {
		return err
	}
	if err := validation.ValidateStoreBackend(c.Store.Backend); err != nil {
		return err
	}
	if c.Store.Backend != "keyring" {
		if err := validation.ValidateNonEmptyString("store.path", c.Store.Path); err != nil {
			return err
		}
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit must not be negative, got %v", c.API.RateLimit)
	}
	switch c.Provider {
	case "browser":
		if err := validation.ValidateScopes(c.Scopes); err != nil {
			return err
		}
		return validation.ValidateNonEmptyString("client_credentials", c.ClientCredentials)
	case "service-account":
		if err := validation.ValidateScopes(c.Scopes); err != nil {
			return err
		}
		return validation.ValidateNonEmptyString("service_account", c.ServiceAccount)
	}
	return nil
}
