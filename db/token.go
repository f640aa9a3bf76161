package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/habedi/gauth/auth"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TokenRecord is one saved token, keyed by credential name.
type TokenRecord struct {
	Name         string `gorm:"primaryKey"`
	AccessToken  string `gorm:"not null"`
	TokenType    string
	RefreshToken string
	Scope        string
	ExpiresAt    *time.Time
	UpdatedAt    time.Time
}

func recordFromToken(name string, tok *auth.Token) *TokenRecord {
	rec := &TokenRecord{
		Name:         name,
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Scope:        strings.Join(tok.Scope, " "),
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		rec.ExpiresAt = &exp
	}
	return rec
}

func (r *TokenRecord) token() *auth.Token {
	tok := &auth.Token{
		AccessToken:  r.AccessToken,
		TokenType:    r.TokenType,
		RefreshToken: r.RefreshToken,
		Scope:        strings.Fields(r.Scope),
	}
	if len(tok.Scope) == 0 {
		tok.Scope = nil
	}
	if r.ExpiresAt != nil {
		tok.Expiry = *r.ExpiresAt
	}
	return tok
}

// TokenRepository is a gorm-backed auth.TokenStorer.
type TokenRepository struct{ db *gorm.DB }

// NewTokenRepository wraps an open connection, normally GetDB().
func NewTokenRepository(db *gorm.DB) *TokenRepository { return &TokenRepository{db: db} }

// Migrate creates the token table on the repository's connection.
func (r *TokenRepository) Migrate() error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	return migrateTables(r.db)
}

// LoadToken returns the token saved under name, or nil when there is none.
func (r *TokenRepository) LoadToken(ctx context.Context, name string) (*auth.Token, error) {
	if r.db == nil {
		return nil, fmt.Errorf("repository not initialized")
	}
	var rec TokenRecord
	err := r.db.WithContext(ctx).First(&rec, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		log.Error().Err(err).Str("name", name).Msg("Failed to read token record")
		return nil, err
	}
	return rec.token(), nil
}

// SaveToken inserts or replaces the record for name.
func (r *TokenRepository) SaveToken(ctx context.Context, name string, tok *auth.Token) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	if tok == nil || tok.AccessToken == "" {
		return fmt.Errorf("refusing to save an empty token under %q", name)
	}
	rec := recordFromToken(name, tok)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "token_type", "refresh_token", "scope", "expires_at", "updated_at"}),
	}).Create(rec).Error
	if err != nil {
		log.Error().Err(err).Str("name", name).Msg("Failed to save token record")
		return err
	}
	log.Debug().Str("name", name).Msg("Token record saved")
	return nil
}

// DeleteToken removes the token saved under name.
func (r *TokenRepository) DeleteToken(ctx context.Context, name string) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	res := r.db.WithContext(ctx).Delete(&TokenRecord{}, "name = ?", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%q: %w", name, auth.ErrTokenNotFound)
	}
	return nil
}

// ListTokens returns the saved names in ascending order.
func (r *TokenRepository) ListTokens(ctx context.Context) ([]string, error) {
	if r.db == nil {
		return nil, fmt.Errorf("repository not initialized")
	}
	var names []string
	if err := r.db.WithContext(ctx).Model(&TokenRecord{}).Order("name").Pluck("name", &names).Error; err != nil {
		return nil, err
	}
	return names, nil
}
