// Package tokenstore persists tokens in a JSON file or the OS keyring.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/habedi/gauth/auth"
	"github.com/rs/zerolog/log"
)

// tempPattern names the temporary files written next to the token file.
const tempPattern = ".tokens-*"

type fileContents struct {
	Tokens map[string]*auth.Token `json:"tokens"`
}

// FileStore keeps every token in one JSON document, readable only by the owner.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store backed by the JSON file at path. The file is
// created on the first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// LoadToken returns nil when no token is saved under name.
func (s *FileStore) LoadToken(_ context.Context, name string) (*auth.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contents, err := s.read()
	if err != nil {
		return nil, err
	}
	return contents.Tokens[name], nil
}

// SaveToken adds or replaces the token under name.
func (s *FileStore) SaveToken(_ context.Context, name string, tok *auth.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return fmt.Errorf("refusing to save an empty token under %q", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	contents, err := s.read()
	if err != nil {
		return err
	}
	contents.Tokens[name] = tok
	return s.write(contents)
}

// DeleteToken removes the token under name.
func (s *FileStore) DeleteToken(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	contents, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := contents.Tokens[name]; !ok {
		return fmt.Errorf("%q: %w", name, auth.ErrTokenNotFound)
	}
	delete(contents.Tokens, name)
	return s.write(contents)
}

// ListTokens returns the saved names in ascending order.
func (s *FileStore) ListTokens(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contents, err := s.read()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(contents.Tokens))
	for name := range contents.Tokens {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// read returns an empty document when the file does not exist yet.
func (s *FileStore) read() (*fileContents, error) {
	contents := &fileContents{Tokens: map[string]*auth.Token{}}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return contents, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return contents, nil
	}
	if err := json.Unmarshal(data, contents); err != nil {
		return nil, fmt.Errorf("failed to parse token file %s: %w", s.path, err)
	}
	if contents.Tokens == nil {
		contents.Tokens = map[string]*auth.Token{}
	}
	return contents, nil
}

// write replaces the file through a temporary sibling and a rename.
func (s *FileStore) write(contents *fileContents) error {
	data, err := json.MarshalIndent(contents, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode tokens: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create token directory %s: %w", dir, err)
	}
	// A unique name per write, so concurrent processes never share a temp file.
	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("failed to create temporary token file: %w", err)
	}
	tmpName := tmp.Name()
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to set token file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to sync token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close token file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	log.Debug().Str("path", s.path).Int("tokens", len(contents.Tokens)).Msg("Token file written")
	return nil
}
