package auth

import (
	"context"
	"net/url"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// FlowState is the stage of an interactive sign-in.
type FlowState int32

const (
	StateIdle FlowState = iota
	StateAwaitingRedirect
	StateExchanging
	StateAuthenticated
	StateFailed
)

func (s FlowState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingRedirect:
		return "awaiting_redirect"
	case StateExchanging:
		return "exchanging"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// BrowserTokenProvider runs the authorization code grant through the user's
// browser and a loopback redirect listener.
type BrowserTokenProvider struct {
	creds  *ClientCredentials
	scopes []string
	opts   options
	cache  *tokenCache
	state  atomic.Int32
}

// NewBrowserTokenProvider creates a provider for creds. When a token store is
// configured, a previously saved token is loaded and reused.
func NewBrowserTokenProvider(ctx context.Context, creds *ClientCredentials, scopes []string, opts ...Option) (*BrowserTokenProvider, error) {
	if creds == nil {
		return nil, newError(InvalidCredentials, "client credentials are nil", nil)
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts)
	p := &BrowserTokenProvider{
		creds:  creds,
		scopes: append([]string(nil), scopes...),
		opts:   o,
		cache:  newTokenCache(o.margin, o.now),
	}

	if o.store != nil {
		tok, err := o.store.LoadToken(ctx, o.storeName)
		if err != nil {
			log.Warn().Err(err).Str("name", o.storeName).Msg("Failed to load saved token")
		} else if tok != nil && tok.AccessToken != "" {
			p.cache.store(tok)
			p.setState(StateAuthenticated)
			log.Debug().Str("name", o.storeName).Msg("Loaded saved token")
		}
	}
	return p, nil
}

// NewBrowserTokenProviderFromFile loads client credentials from path.
func NewBrowserTokenProviderFromFile(ctx context.Context, path string, scopes []string, opts ...Option) (*BrowserTokenProvider, error) {
	creds, err := LoadClientCredentials(path)
	if err != nil {
		return nil, err
	}
	return NewBrowserTokenProvider(ctx, creds, scopes, opts...)
}

// State returns the current sign-in stage.
func (p *BrowserTokenProvider) State() FlowState { return FlowState(p.state.Load()) }

func (p *BrowserTokenProvider) setState(s FlowState) { p.state.Store(int32(s)) }

// CurrentToken returns the held token, refreshing or signing in when needed.
func (p *BrowserTokenProvider) CurrentToken(ctx context.Context) (*Token, error) {
	return p.cache.getOrRefresh(ctx, p.fetch)
}

// RefreshToken uses the refresh token when one is held, else signs in again.
func (p *BrowserTokenProvider) RefreshToken(ctx context.Context) (*Token, error) {
	return p.cache.refresh(ctx, p.fetch)
}

// SignIn always runs the interactive flow, discarding any held token.
func (p *BrowserTokenProvider) SignIn(ctx context.Context) (*Token, error) {
	return p.cache.do(ctx, signInKey, p.interactive)
}

// SaveToken persists the held token to the configured store.
func (p *BrowserTokenProvider) SaveToken(ctx context.Context) error {
	if p.opts.store == nil {
		return newError(Environment, "no token store configured", nil)
	}
	tok := p.cache.load()
	if tok == nil {
		return newError(NoCredentialsFound, "no token to save; sign in first", nil)
	}
	return p.opts.store.SaveToken(ctx, p.opts.storeName, tok)
}

func (p *BrowserTokenProvider) fetch(ctx context.Context) (*Token, error) {
	prev := p.cache.load()
	if !prev.HasRefreshToken() {
		return p.interactive(ctx)
	}
	tok, err := refreshGrant(ctx, p.opts.client, p.creds, prev, p.scopes, p.opts.now)
	if err != nil {
		log.Error().Err(err).Msg("Refresh token exchange failed")
		return nil, err
	}
	log.Info().Msg("Access token refreshed")
	p.persist(ctx, tok)
	return tok, nil
}

// listenTarget returns the address to bind and, when the client registered a
// loopback redirect with a fixed port, that redirect.
func (p *BrowserTokenProvider) listenTarget() (string, *url.URL) {
	if p.opts.listenAddress != "" {
		return p.opts.listenAddress, nil
	}
	if u, ok := loopbackRedirect(p.creds.RedirectURI); ok {
		return u.Host, u
	}
	return DefaultListenAddress, nil
}

func (p *BrowserTokenProvider) oauthConfig(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.creds.ClientID,
		ClientSecret: p.creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.creds.AuthorizationEndpoint,
			TokenURL: p.creds.TokenEndpoint,
		},
		RedirectURL: redirectURL,
		Scopes:      p.scopes,
	}
}

func (p *BrowserTokenProvider) interactive(ctx context.Context) (*Token, error) {
	tok, err := p.runFlow(ctx)
	if err != nil {
		p.setState(StateFailed)
		log.Error().Err(err).Msg("Interactive sign-in failed")
		return nil, err
	}
	p.setState(StateAuthenticated)
	p.persist(ctx, tok)
	return tok, nil
}

func (p *BrowserTokenProvider) runFlow(ctx context.Context) (*Token, error) {
	p.setState(StateIdle)
	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	addr, registered := p.listenTarget()
	srv, err := startCallbackServer(addr, DefaultCallbackPath, state, registered)
	if err != nil {
		return nil, err
	}
	defer srv.close()

	redirectURL := srv.redirectURL()
	authURL := p.oauthConfig(redirectURL).AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))

	flowCtx, cancel := context.WithTimeout(ctx, p.opts.callbackTimeout)
	defer cancel()

	p.setState(StateAwaitingRedirect)
	log.Info().Str("redirect_uri", redirectURL).Msg("Waiting for browser sign-in")
	if err := p.opts.opener.Open(flowCtx, authURL); err != nil {
		log.Warn().Err(err).Msg("Could not open the authorization URL automatically")
	}

	res, err := srv.wait(flowCtx)
	if err != nil {
		return nil, err
	}
	if res.Error != "" {
		msg := res.Error
		if res.ErrorDescription != "" {
			msg += ": " + res.ErrorDescription
		}
		return nil, newError(GrantDenied, "authorization denied: "+msg, nil)
	}
	if !res.stateMatches {
		return nil, newError(CSRFMismatch, "redirect state does not match the request", nil)
	}
	if res.Code == "" {
		return nil, newError(GrantDenied, "redirect carried no authorization code", nil)
	}

	p.setState(StateExchanging)
	params := url.Values{
		"code":          {res.Code},
		"client_id":     {p.creds.ClientID},
		"redirect_uri":  {redirectURL},
		"code_verifier": {verifier},
	}
	if p.creds.ClientSecret != "" {
		params.Set("client_secret", p.creds.ClientSecret)
	}
	tok, err := exchange(ctx, p.opts.client, p.creds.TokenEndpoint, GrantRequest{GrantType: GrantAuthorizationCode, Params: params}, p.scopes, p.opts.now)
	if err != nil {
		return nil, err
	}
	log.Info().Bool("refresh_token", tok.HasRefreshToken()).Msg("Signed in")
	return tok, nil
}

func (p *BrowserTokenProvider) persist(ctx context.Context, tok *Token) {
	if p.opts.store == nil {
		return
	}
	if err := p.opts.store.SaveToken(ctx, p.opts.storeName, tok); err != nil {
		log.Warn().Err(err).Str("name", p.opts.storeName).Msg("Failed to save token")
	}
}
