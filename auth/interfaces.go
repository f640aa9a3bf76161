package auth

import (
	"context"
	"errors"
	"time"
)

// ErrTokenNotFound is wrapped by token stores when deleting a name that holds no token.
var ErrTokenNotFound = errors.New("token not found")

// TokenProvider hands out access tokens for one principal.
type TokenProvider interface {
	// CurrentToken returns a token valid for at least the provider's expiry
	// margin, refreshing first when needed.
	CurrentToken(ctx context.Context) (*Token, error)
	// RefreshToken performs a new grant exchange and replaces the held token.
	RefreshToken(ctx context.Context) (*Token, error)
}

// TokenStorer persists tokens under a logical credential name.
// LoadToken returns (nil, nil) when nothing is stored under name.
type TokenStorer interface {
	LoadToken(ctx context.Context, name string) (*Token, error)
	SaveToken(ctx context.Context, name string, token *Token) error
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time
