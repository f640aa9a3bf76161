package auth

import (
	"strings"
	"time"
)

// DefaultExpiryMargin is how long a token must remain valid for CurrentToken to hand it out.
const DefaultExpiryMargin = 60 * time.Second

// Token is an issued access token. Providers publish a Token once and never
// modify it afterwards; a refresh produces a new value.
type Token struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Scope        []string  `json:"scope,omitempty"`
}

// Type returns the token type to use in an Authorization header, defaulting to Bearer.
func (t *Token) Type() string {
	if t == nil || t.TokenType == "" || strings.EqualFold(t.TokenType, "bearer") {
		return "Bearer"
	}
	return t.TokenType
}

// ExpiresWithin reports whether the token is missing, empty, or expires
// before now+margin. A zero Expiry never expires.
func (t *Token) ExpiresWithin(margin time.Duration, now time.Time) bool {
	if t == nil || t.AccessToken == "" {
		return true
	}
	if t.Expiry.IsZero() {
		return false
	}
	return !now.Add(margin).Before(t.Expiry)
}

// Valid reports whether the token can be used right now.
func (t *Token) Valid(now time.Time) bool {
	return !t.ExpiresWithin(0, now)
}

// HasRefreshToken reports whether t is non-nil and carries a refresh token.
func (t *Token) HasRefreshToken() bool {
	return t != nil && t.RefreshToken != ""
}

// HasScope reports whether scope was granted.
func (t *Token) HasScope(scope string) bool {
	if t == nil {
		return false
	}
	for _, s := range t.Scope {
		if s == scope {
			return true
		}
	}
	return false
}

// parseScope splits a space-delimited scope string into a deduplicated list.
func parseScope(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

func joinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
