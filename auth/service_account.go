package auth

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/habedi/gauth/pkg/codec"
	"github.com/habedi/gauth/pkg/signer"
	"github.com/rs/zerolog/log"
)

// assertionLifetime is the validity of a signed JWT assertion.
const assertionLifetime = time.Hour

type jwtHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
	Kid string `json:"kid,omitempty"`
}

type jwtClaims struct {
	Iss   string `json:"iss"`
	Scope string `json:"scope"`
	Aud   string `json:"aud"`
	Exp   int64  `json:"exp"`
	Iat   int64  `json:"iat"`
}

// ServiceAccountTokenProvider exchanges a signed JWT assertion for an access token.
// No refresh token is issued; every refresh signs a new assertion.
type ServiceAccountTokenProvider struct {
	creds  *ServiceAccountCredentials
	scopes []string
	signer signer.Signer
	opts   options
	cache  *tokenCache
}

// NewServiceAccountTokenProvider parses the private key up front so that key
// problems surface at construction. scopes override creds.Scopes when non-empty.
func NewServiceAccountTokenProvider(creds *ServiceAccountCredentials, scopes []string, opts ...Option) (*ServiceAccountTokenProvider, error) {
	if creds == nil {
		return nil, newError(InvalidCredentials, "service account credentials are nil", nil)
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	s, err := signer.NewRSASignerFromPEM([]byte(creds.PrivateKey))
	if err != nil {
		return nil, newError(InvalidCredentials, "cannot use service account private key", err)
	}
	if len(scopes) == 0 {
		scopes = creds.Scopes
	}
	o := applyOptions(opts)
	return &ServiceAccountTokenProvider{
		creds:  creds,
		scopes: append([]string(nil), scopes...),
		signer: s,
		opts:   o,
		cache:  newTokenCache(o.margin, o.now),
	}, nil
}

// NewServiceAccountTokenProviderFromFile loads the credential file at path.
func NewServiceAccountTokenProviderFromFile(path string, scopes []string, opts ...Option) (*ServiceAccountTokenProvider, error) {
	creds, err := LoadServiceAccountCredentials(path)
	if err != nil {
		return nil, err
	}
	return NewServiceAccountTokenProvider(creds, scopes, opts...)
}

// ClientEmail returns the service account identity.
func (p *ServiceAccountTokenProvider) ClientEmail() string { return p.creds.ClientEmail }

// CurrentToken returns the held token, exchanging a new assertion when needed.
func (p *ServiceAccountTokenProvider) CurrentToken(ctx context.Context) (*Token, error) {
	return p.cache.getOrRefresh(ctx, p.fetch)
}

// RefreshToken signs a new assertion and exchanges it.
func (p *ServiceAccountTokenProvider) RefreshToken(ctx context.Context) (*Token, error) {
	return p.cache.refresh(ctx, p.fetch)
}

func (p *ServiceAccountTokenProvider) fetch(ctx context.Context) (*Token, error) {
	assertion, err := p.assertion(p.opts.now())
	if err != nil {
		return nil, err
	}
	grant := GrantRequest{
		GrantType: GrantJWTBearer,
		Params:    url.Values{"assertion": {assertion}},
	}
	tok, err := exchange(ctx, p.opts.client, p.creds.TokenURI, grant, p.scopes, p.opts.now)
	if err != nil {
		return nil, err
	}
	log.Info().Str("client_email", p.creds.ClientEmail).Msg("Service account token obtained")
	return tok, nil
}

// assertion builds header.claims.signature for the given issue time.
func (p *ServiceAccountTokenProvider) assertion(now time.Time) (string, error) {
	header, err := json.Marshal(jwtHeader{Alg: p.signer.Algorithm(), Typ: "JWT", Kid: p.creds.PrivateKeyID})
	if err != nil {
		return "", newError(InvalidCredentials, "failed to encode JWT header", err)
	}
	claims, err := json.Marshal(jwtClaims{
		Iss:   p.creds.ClientEmail,
		Scope: joinScopes(p.scopes),
		Aud:   p.creds.TokenURI,
		Exp:   now.Add(assertionLifetime).Unix(),
		Iat:   now.Unix(),
	})
	if err != nil {
		return "", newError(InvalidCredentials, "failed to encode JWT claims", err)
	}

	signingInput := codec.EncodeURL(header) + "." + codec.EncodeURL(claims)
	sig, err := p.signer.Sign([]byte(signingInput))
	if err != nil {
		return "", newError(InvalidCredentials, "failed to sign JWT assertion", err)
	}
	return strings.Join([]string{signingInput, codec.EncodeURL(sig)}, "."), nil
}
