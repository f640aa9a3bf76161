package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Grant types sent in the grant_type parameter.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantJWTBearer         = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

// defaultTokenLifetime applies when a token response omits expires_in.
const defaultTokenLifetime = time.Hour

// GrantRequest describes one exchange against a token endpoint.
type GrantRequest struct {
	GrantType string
	Params    url.Values
}

func (g GrantRequest) form() url.Values {
	form := url.Values{}
	for k, v := range g.Params {
		form[k] = append([]string(nil), v...)
	}
	form.Set("grant_type", g.GrantType)
	return form
}

// expiresIn accepts both a JSON number and a numeric string.
type expiresIn int64

func (e *expiresIn) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*e = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid expires_in %q: %w", s, err)
	}
	*e = expiresIn(n)
	return nil
}

type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    expiresIn `json:"expires_in"`
	RefreshToken string    `json:"refresh_token"`
	Scope        string    `json:"scope"`
}

// exchange posts a form-encoded grant and converts the JSON response into a Token.
// requested is used as the token scope when the response does not name one.
func exchange(ctx context.Context, client *http.Client, endpoint string, grant GrantRequest, requested []string, now Clock) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(grant.form().Encode()))
	if err != nil {
		return nil, newError(InvalidCredentials, "invalid token endpoint", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	log.Debug().Str("grant_type", grant.GrantType).Str("endpoint", endpoint).Msg("Sending token request")
	issuedAt := now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, newError(Transport, "token request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(Transport, "failed to read token response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().Str("grant_type", grant.GrantType).Int("status", resp.StatusCode).Msg("Token endpoint rejected the grant")
		return nil, newError(GrantDenied, fmt.Sprintf("token endpoint returned %d: %s", resp.StatusCode, string(body)), nil)
	}

	var result tokenResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, newError(GrantDenied, fmt.Sprintf("failed to parse token response: %s", string(body)), err)
	}
	if result.AccessToken == "" {
		return nil, newError(GrantDenied, fmt.Sprintf("token response has no access_token: %s", string(body)), nil)
	}

	lifetime := time.Duration(result.ExpiresIn) * time.Second
	if lifetime <= 0 {
		lifetime = defaultTokenLifetime
	}
	scope := parseScope(result.Scope)
	if scope == nil && len(requested) > 0 {
		scope = append([]string(nil), requested...)
	}
	tokenType := result.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	log.Debug().Str("grant_type", grant.GrantType).Dur("lifetime", lifetime).Msg("Token issued")
	return &Token{
		AccessToken:  result.AccessToken,
		TokenType:    tokenType,
		Expiry:       issuedAt.Add(lifetime),
		RefreshToken: result.RefreshToken,
		Scope:        scope,
	}, nil
}

// refreshGrant exchanges a refresh token. The previous refresh token is kept
// when the server does not rotate it.
func refreshGrant(ctx context.Context, client *http.Client, creds *ClientCredentials, prev *Token, requested []string, now Clock) (*Token, error) {
	if !prev.HasRefreshToken() {
		return nil, newError(InvalidCredentials, "no refresh token available", nil)
	}
	params := url.Values{
		"refresh_token": {prev.RefreshToken},
		"client_id":     {creds.ClientID},
	}
	if creds.ClientSecret != "" {
		params.Set("client_secret", creds.ClientSecret)
	}
	if prev.Scope != nil && requested == nil {
		requested = prev.Scope
	}
	tok, err := exchange(ctx, client, creds.TokenEndpoint, GrantRequest{GrantType: GrantRefreshToken, Params: params}, requested, now)
	if err != nil {
		return nil, err
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = prev.RefreshToken
	}
	return tok, nil
}
