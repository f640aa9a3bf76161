package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/habedi/gauth/auth"
	"github.com/zalando/go-keyring"
)

// DefaultKeyringService is the keyring service name tokens are saved under.
const DefaultKeyringService = "gauth"

// KeyringStore saves each token as a JSON secret in the OS keyring, with
// the credential name as the keyring user.
type KeyringStore struct {
	service string
}

// NewKeyringStore returns a store under service, DefaultKeyringService when empty.
func NewKeyringStore(service string) *KeyringStore {
	if service == "" {
		service = DefaultKeyringService
	}
	return &KeyringStore{service: service}
}

// LoadToken returns nil when the keyring holds no entry for name.
func (s *KeyringStore) LoadToken(_ context.Context, name string) (*auth.Token, error) {
	secret, err := keyring.Get(s.service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %q from keyring: %w", name, err)
	}
	var tok auth.Token
	if err := json.Unmarshal([]byte(secret), &tok); err != nil {
		return nil, fmt.Errorf("failed to parse keyring entry %q: %w", name, err)
	}
	return &tok, nil
}

// SaveToken stores tok as a JSON secret under name.
func (s *KeyringStore) SaveToken(_ context.Context, name string, tok *auth.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return fmt.Errorf("refusing to save an empty token under %q", name)
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := keyring.Set(s.service, name, string(data)); err != nil {
		return fmt.Errorf("failed to write %q to keyring: %w", name, err)
	}
	return nil
}

// DeleteToken removes the entry for name.
func (s *KeyringStore) DeleteToken(_ context.Context, name string) error {
	err := keyring.Delete(s.service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%q: %w", name, auth.ErrTokenNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to delete %q from keyring: %w", name, err)
	}
	return nil
}
