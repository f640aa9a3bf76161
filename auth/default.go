package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultAccessTokenEnv names the variable holding a static access token.
	DefaultAccessTokenEnv = "GAUTH_ACCESS_TOKEN"
	// DefaultCredentialsEnv names the variable holding a credential file path.
	DefaultCredentialsEnv = "GAUTH_CREDENTIALS"
)

// DefaultCredentialsPath returns the conventional credential file location:
// $GAUTH_CREDENTIALS, else <user config dir>/gauth/credentials.json.
func DefaultCredentialsPath() string {
	if env := os.Getenv(DefaultCredentialsEnv); env != "" {
		return env
	}
	base, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".gauth", "credentials.json")
	}
	return filepath.Join(base, "gauth", "credentials.json")
}

// DefaultConfig selects where DefaultTokenProvider looks for credentials.
type DefaultConfig struct {
	// AccessTokenEnv is checked first. Empty disables the lookup.
	AccessTokenEnv string
	// CredentialsPath is a service_account or authorized_user JSON file.
	CredentialsPath string
	// Client refreshes expired tokens found in the token store.
	Client *ClientCredentials
	Scopes []string
}

// DefaultTokenProvider discovers a credential without user interaction:
// an environment token, a stored token, or a credential file, in that order.
type DefaultTokenProvider struct {
	cfg   DefaultConfig
	opts  options
	cache *tokenCache

	mu     sync.Mutex
	source func(ctx context.Context) (*Token, error)
}

// NewDefaultTokenProvider returns a provider that discovers its credentials on first use.
func NewDefaultTokenProvider(cfg DefaultConfig, opts ...Option) *DefaultTokenProvider {
	o := applyOptions(opts)
	return &DefaultTokenProvider{
		cfg:   cfg,
		opts:  o,
		cache: newTokenCache(o.margin, o.now),
	}
}

// CurrentToken returns the held token, discovering or refreshing it when needed.
func (p *DefaultTokenProvider) CurrentToken(ctx context.Context) (*Token, error) {
	return p.cache.getOrRefresh(ctx, p.fetch)
}

// RefreshToken obtains a new token from the discovered source.
func (p *DefaultTokenProvider) RefreshToken(ctx context.Context) (*Token, error) {
	return p.cache.refresh(ctx, p.fetch)
}

func (p *DefaultTokenProvider) fetch(ctx context.Context) (*Token, error) {
	p.mu.Lock()
	source := p.source
	p.mu.Unlock()
	if source != nil {
		return source(ctx)
	}
	return p.discover(ctx)
}

func (p *DefaultTokenProvider) remember(source func(ctx context.Context) (*Token, error)) {
	p.mu.Lock()
	p.source = source
	p.mu.Unlock()
}

func (p *DefaultTokenProvider) discover(ctx context.Context) (*Token, error) {
	if p.cfg.AccessTokenEnv != "" {
		if v := strings.TrimSpace(os.Getenv(p.cfg.AccessTokenEnv)); v != "" {
			log.Info().Str("env", p.cfg.AccessTokenEnv).Msg("Using access token from environment")
			p.remember(p.fromEnv)
			return p.fromEnv(ctx)
		}
	}

	if p.opts.store != nil {
		tok, err := p.opts.store.LoadToken(ctx, p.opts.storeName)
		if err != nil {
			return nil, newError(Environment, "failed to read token store", err)
		}
		if tok != nil && tok.AccessToken != "" {
			log.Info().Str("name", p.opts.storeName).Msg("Using stored token")
			p.remember(p.fromStore)
			return p.fromStore(ctx)
		}
	}

	if p.cfg.CredentialsPath != "" {
		src, err := p.fromFile(p.cfg.CredentialsPath)
		if err == nil {
			p.remember(src)
			return src(ctx)
		}
		if !errors.Is(err, ErrNoCredentialsFound) {
			return nil, err
		}
	}

	return nil, newError(NoCredentialsFound, "no access token, stored token, or credential file found", nil)
}

func (p *DefaultTokenProvider) fromEnv(_ context.Context) (*Token, error) {
	v := strings.TrimSpace(os.Getenv(p.cfg.AccessTokenEnv))
	if v == "" {
		return nil, newError(NoCredentialsFound, fmt.Sprintf("%s is no longer set", p.cfg.AccessTokenEnv), nil)
	}
	return &Token{AccessToken: v, TokenType: "Bearer", Scope: append([]string(nil), p.cfg.Scopes...)}, nil
}

// fromStore returns the stored token while it is fresh and refreshes it otherwise.
func (p *DefaultTokenProvider) fromStore(ctx context.Context) (*Token, error) {
	tok, err := p.opts.store.LoadToken(ctx, p.opts.storeName)
	if err != nil {
		return nil, newError(Environment, "failed to read token store", err)
	}
	if tok == nil || tok.AccessToken == "" {
		return nil, newError(NoCredentialsFound, fmt.Sprintf("no stored token named %q", p.opts.storeName), nil)
	}
	// A fresh stored token is used unless it is the one already held, which
	// the caller is asking to replace.
	held := p.cache.load()
	if !tok.ExpiresWithin(p.opts.margin, p.opts.now()) && (held == nil || held.AccessToken != tok.AccessToken) {
		return tok, nil
	}
	if !tok.HasRefreshToken() || p.cfg.Client == nil {
		return nil, newError(InvalidCredentials, fmt.Sprintf("stored token %q needs a refresh but has no refresh token or client configuration", p.opts.storeName), nil)
	}
	refreshed, err := refreshGrant(ctx, p.opts.client, p.cfg.Client, tok, p.cfg.Scopes, p.opts.now)
	if err != nil {
		return nil, err
	}
	if err := p.opts.store.SaveToken(ctx, p.opts.storeName, refreshed); err != nil {
		log.Warn().Err(err).Str("name", p.opts.storeName).Msg("Failed to save refreshed token")
	}
	return refreshed, nil
}

func (p *DefaultTokenProvider) fromFile(path string) (func(ctx context.Context) (*Token, error), error) {
	data, err := readCredentialFile(path)
	if err != nil {
		return nil, err
	}
	kind, err := DetectCredentialType(data)
	if err != nil {
		return nil, err
	}
	switch kind {
	case TypeServiceAccount:
		creds, err := ParseServiceAccountCredentials(data)
		if err != nil {
			return nil, err
		}
		sa, err := NewServiceAccountTokenProvider(creds, p.cfg.Scopes, WithHTTPClient(p.opts.client), WithClock(p.opts.now), WithExpiryMargin(p.opts.margin))
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", path).Str("client_email", creds.ClientEmail).Msg("Using service account credentials")
		return sa.fetch, nil
	case TypeAuthorizedUser:
		user, err := parseAuthorizedUserCredentials(data)
		if err != nil {
			return nil, err
		}
		client := &ClientCredentials{ClientID: user.ClientID, ClientSecret: user.ClientSecret, TokenEndpoint: user.TokenURI}
		if client.TokenEndpoint == "" && p.cfg.Client != nil {
			client.TokenEndpoint = p.cfg.Client.TokenEndpoint
		}
		if client.TokenEndpoint == "" {
			return nil, newError(InvalidCredentials, "authorized_user credentials have no token_uri", nil)
		}
		seed := &Token{RefreshToken: user.RefreshToken}
		log.Info().Str("path", path).Msg("Using authorized user credentials")
		return func(ctx context.Context) (*Token, error) {
			prev := p.cache.load()
			if !prev.HasRefreshToken() {
				prev = seed
			}
			return refreshGrant(ctx, p.opts.client, client, prev, p.cfg.Scopes, p.opts.now)
		}, nil
	default:
		return nil, newError(InvalidCredentials, fmt.Sprintf("credential file %s holds %s credentials, which need an interactive login", path, kind), nil)
	}
}
