package auth

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// tokenCache holds the current token of a provider and serializes refreshes.
type tokenCache struct {
	current atomic.Pointer[Token]
	group   singleflight.Group
	margin  time.Duration
	now     Clock
}

func newTokenCache(margin time.Duration, now Clock) *tokenCache {
	return &tokenCache{margin: margin, now: now}
}

func (c *tokenCache) load() *Token { return c.current.Load() }

func (c *tokenCache) store(t *Token) { c.current.Store(t) }

// fresh returns the held token if it is valid beyond the margin.
func (c *tokenCache) fresh() (*Token, bool) {
	tok := c.current.Load()
	if tok.ExpiresWithin(c.margin, c.now()) {
		return nil, false
	}
	return tok, true
}

// getOrRefresh returns the held token, or refreshes through fetch when it is
// missing or inside the margin.
func (c *tokenCache) getOrRefresh(ctx context.Context, fetch func(context.Context) (*Token, error)) (*Token, error) {
	if tok, ok := c.fresh(); ok {
		return tok, nil
	}
	return c.refresh(ctx, fetch)
}

// Singleflight keys. An interactive sign-in never joins a refresh grant in
// flight, and the other way round.
const (
	refreshKey = "refresh"
	signInKey  = "sign-in"
)

// refresh runs fetch at most once at a time. Callers that arrive while a
// fetch is in flight wait for it and share its result. The first caller's
// context governs the fetch.
func (c *tokenCache) refresh(ctx context.Context, fetch func(context.Context) (*Token, error)) (*Token, error) {
	return c.do(ctx, refreshKey, fetch)
}

func (c *tokenCache) do(ctx context.Context, key string, fetch func(context.Context) (*Token, error)) (*Token, error) {
	ch := c.group.DoChan(key, func() (interface{}, error) {
		tok, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if tok.ExpiresWithin(c.margin, c.now()) {
			log.Warn().Time("expiry", tok.Expiry).Msg("Issued token expires within the safety margin")
		}
		c.current.Store(tok)
		return tok, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Token), nil
	case <-ctx.Done():
		return nil, newError(Environment, "refresh cancelled", ctx.Err())
	}
}
