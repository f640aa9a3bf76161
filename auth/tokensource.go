package auth

import (
	"context"

	"golang.org/x/oauth2"
)

type providerTokenSource struct {
	ctx      context.Context
	provider TokenProvider
}

// TokenSource adapts a provider to oauth2.TokenSource so it can back an
// oauth2.Transport or any library that accepts a token source.
func TokenSource(ctx context.Context, p TokenProvider) oauth2.TokenSource {
	return &providerTokenSource{ctx: ctx, provider: p}
}

func (s *providerTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.provider.CurrentToken(s.ctx)
	if err != nil {
		return nil, err
	}
	return tok.OAuth2(), nil
}

// OAuth2 converts the token to its golang.org/x/oauth2 form.
func (t *Token) OAuth2() *oauth2.Token {
	out := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.Type(),
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}
	if len(t.Scope) > 0 {
		out = out.WithExtra(map[string]interface{}{"scope": joinScopes(t.Scope)})
	}
	return out
}

// FromOAuth2 converts a golang.org/x/oauth2 token.
func FromOAuth2(t *oauth2.Token) *Token {
	if t == nil {
		return nil
	}
	tok := &Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
		RefreshToken: t.RefreshToken,
	}
	if s, ok := t.Extra("scope").(string); ok {
		tok.Scope = parseScope(s)
	}
	return tok
}
