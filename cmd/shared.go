package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/habedi/gauth/auth"
	"github.com/habedi/gauth/client"
	"github.com/habedi/gauth/config"
	"github.com/habedi/gauth/db"
	"github.com/habedi/gauth/pkg/clierr"
	"github.com/habedi/gauth/pkg/tokenstore"
	"github.com/habedi/gauth/session"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// tokenStore is what every configured backend supports.
type tokenStore interface {
	auth.TokenStorer
	DeleteToken(ctx context.Context, name string) error
}

// tokenLister is implemented by the file and SQLite backends.
type tokenLister interface {
	ListTokens(ctx context.Context) ([]string, error)
}

// loadConfig reads the file named by --config, else the default location,
// and applies the --name override.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, clierr.New(clierr.Validation, err.Error(), err)
	}
	if name, _ := cmd.Flags().GetString("name"); name != "" {
		cfg.Name = name
	}
	return cfg, nil
}

// openStore opens the configured backend. The returned func releases it.
func openStore(cfg config.Config) (tokenStore, func(), error) {
	switch cfg.Store.Backend {
	case "keyring":
		return tokenstore.NewKeyringStore(tokenstore.DefaultKeyringService), func() {}, nil
	case "sqlite":
		db.Path = cfg.Store.Path
		if err := db.InitDB(); err != nil {
			return nil, nil, clierr.New(clierr.Internal, "Failed to open the token database.", err)
		}
		closeFn := func() {
			if err := db.CloseDB(); err != nil {
				log.Error().Err(err).Msg("Failed to close the database.")
			}
		}
		return db.NewTokenRepository(db.GetDB()), closeFn, nil
	default:
		return tokenstore.NewFileStore(cfg.Store.Path), func() {}, nil
	}
}

func providerOptions(cfg config.Config, store auth.TokenStorer, extra ...auth.Option) []auth.Option {
	opts := []auth.Option{
		auth.WithExpiryMargin(cfg.ExpiryMargin),
		auth.WithCallbackTimeout(cfg.Callback.Timeout),
	}
	if store != nil {
		opts = append(opts, auth.WithTokenStore(store, cfg.Name))
	}
	if cfg.Callback.Address != "" {
		opts = append(opts, auth.WithListenAddress(cfg.Callback.Address))
	}
	return append(opts, extra...)
}

// buildProvider constructs the provider selected in the config.
func buildProvider(ctx context.Context, cfg config.Config, store auth.TokenStorer, extra ...auth.Option) (auth.TokenProvider, error) {
	switch cfg.Provider {
	case "service-account":
		return auth.NewServiceAccountTokenProviderFromFile(cfg.ServiceAccount, cfg.Scopes, providerOptions(cfg, nil, extra...)...)
	case "default":
		dc := auth.DefaultConfig{
			AccessTokenEnv:  cfg.AccessTokenEnv,
			CredentialsPath: cfg.DefaultCredentials,
			Scopes:          cfg.Scopes,
		}
		if creds, err := auth.LoadClientCredentials(cfg.ClientCredentials); err == nil {
			dc.Client = creds
		} else {
			log.Debug().Err(err).Msg("No client credentials for refreshing stored tokens")
		}
		return auth.NewDefaultTokenProvider(dc, providerOptions(cfg, store, extra...)...), nil
	default:
		return auth.NewBrowserTokenProviderFromFile(ctx, cfg.ClientCredentials, cfg.Scopes, providerOptions(cfg, store, extra...)...)
	}
}

func newSession(cfg config.Config, provider auth.TokenProvider) *session.Session {
	return session.New(provider,
		session.WithUserAgent(cfg.API.UserAgent),
		session.WithRateLimit(cfg.API.RateLimit, 1),
	)
}

// setup loads the config and opens the store and provider for one command.
func setup(cmd *cobra.Command, extra ...auth.Option) (config.Config, tokenStore, auth.TokenProvider, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return config.Config{}, nil, nil, nil, err
	}
	store, closeFn, err := openStore(cfg)
	if err != nil {
		return config.Config{}, nil, nil, nil, err
	}
	provider, err := buildProvider(cmd.Context(), cfg, store, extra...)
	if err != nil {
		closeFn()
		return config.Config{}, nil, nil, nil, toCLIError(err)
	}
	return cfg, store, provider, closeFn, nil
}

// withRetry retries op with exponential backoff while it fails with a
// transport error. Other errors are returned at once.
func withRetry(ctx context.Context, maxElapsed time.Duration, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxElapsedTime = maxElapsed
	return backoff.RetryNotify(func() error {
		err := op()
		if err == nil || isTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Msg("Transient failure, retrying")
	})
}

func isTransient(err error) bool {
	if errors.Is(err, auth.ErrTransport) {
		return true
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// toCLIError maps library errors onto user-facing CLI errors.
func toCLIError(err error) error {
	if err == nil {
		return nil
	}
	var cliErr *clierr.Error
	if errors.As(err, &cliErr) {
		return err
	}
	if errors.Is(err, auth.ErrTokenNotFound) {
		return clierr.New(clierr.NotFound, err.Error(), err)
	}
	switch auth.KindOf(err) {
	case auth.NoCredentialsFound:
		return clierr.New(clierr.NotFound, "No credentials found. Run 'gauth login' or configure a credential file.", err)
	case auth.InvalidCredentials, auth.GrantDenied, auth.CSRFMismatch:
		return clierr.New(clierr.Auth, err.Error(), err)
	case auth.Transport:
		return clierr.New(clierr.Network, err.Error(), err)
	case auth.Environment:
		return clierr.New(clierr.Internal, err.Error(), err)
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 401 || apiErr.StatusCode == 403 {
			return clierr.New(clierr.Auth, err.Error(), err)
		}
		if apiErr.StatusCode == 404 {
			return clierr.New(clierr.NotFound, err.Error(), err)
		}
	}
	if isTransient(err) {
		return clierr.New(clierr.Network, err.Error(), err)
	}
	return clierr.New(clierr.Internal, fmt.Sprintf("%v", err), err)
}
