package validation

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	MinCallbackTimeout = 5 * time.Second
	MaxCallbackTimeout = 30 * time.Minute
	MaxExpiryMargin    = 30 * time.Minute
)

// ValidateNonEmptyString rejects empty and whitespace-only values.
func ValidateNonEmptyString(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}

// ValidateURL requires an absolute http or https URL.
func ValidateURL(fieldName, value string) error {
	if err := ValidateNonEmptyString(fieldName, value); err != nil {
		return err
	}
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", fieldName, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", fieldName, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", fieldName)
	}
	return nil
}

// ValidateScopes rejects empty scopes and scopes containing whitespace.
func ValidateScopes(scopes []string) error {
	for i, s := range scopes {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("scope at index %d is empty", i)
		}
		if strings.ContainsAny(s, " \t\n") {
			return fmt.Errorf("scope %q must not contain whitespace", s)
		}
	}
	return nil
}

// ValidateCallbackTimeout bounds the browser flow timeout.
func ValidateCallbackTimeout(d time.Duration) error {
	if d < MinCallbackTimeout || d > MaxCallbackTimeout {
		return fmt.Errorf("callback timeout must be between %s and %s, got %s", MinCallbackTimeout, MaxCallbackTimeout, d)
	}
	return nil
}

// ValidateExpiryMargin requires 0 <= d <= MaxExpiryMargin.
func ValidateExpiryMargin(d time.Duration) error {
	if d < 0 || d > MaxExpiryMargin {
		return fmt.Errorf("expiry margin must be between 0 and %s, got %s", MaxExpiryMargin, d)
	}
	return nil
}

// ValidateStoreBackend accepts file, sqlite and keyring.
func ValidateStoreBackend(backend string) error {
	valid := map[string]bool{
		"file":    true,
		"sqlite":  true,
		"keyring": true,
	}
	if !valid[backend] {
		return fmt.Errorf("invalid token store backend: %s (must be one of: file, sqlite, keyring)", backend)
	}
	return nil
}

// ValidateProvider accepts browser, default and service-account.
func ValidateProvider(provider string) error {
	valid := map[string]bool{
		"browser":         true,
		"default":         true,
		"service-account": true,
	}
	if !valid[provider] {
		return fmt.Errorf("invalid provider: %s (must be one of: browser, default, service-account)", provider)
	}
	return nil
}
