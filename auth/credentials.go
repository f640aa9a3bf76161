package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/habedi/gauth/pkg/validation"
)

// Credential file types recognised by DetectCredentialType.
const (
	TypeServiceAccount = "service_account"
	TypeAuthorizedUser = "authorized_user"
	TypeClient         = "client"
)

// ClientCredentials identify an OAuth client for the authorization code flow.
type ClientCredentials struct {
	ClientID              string
	ClientSecret          string
	AuthorizationEndpoint string
	TokenEndpoint         string
	RedirectURI           string
}

type clientCredentialsFile struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	AuthURI      string   `json:"auth_uri"`
	TokenURI     string   `json:"token_uri"`
	RedirectURIs []string `json:"redirect_uris"`
}

// ParseClientCredentials reads {client_id, client_secret, auth_uri, token_uri, redirect_uris},
// either at the top level or nested under "installed" or "web".
func ParseClientCredentials(data []byte) (*ClientCredentials, error) {
	var wrapped struct {
		Installed *clientCredentialsFile `json:"installed"`
		Web       *clientCredentialsFile `json:"web"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, newError(InvalidCredentials, "malformed client credentials", err)
	}
	raw := wrapped.Installed
	if raw == nil {
		raw = wrapped.Web
	}
	if raw == nil {
		raw = &clientCredentialsFile{}
		if err := json.Unmarshal(data, raw); err != nil {
			return nil, newError(InvalidCredentials, "malformed client credentials", err)
		}
	}

	creds := &ClientCredentials{
		ClientID:              raw.ClientID,
		ClientSecret:          raw.ClientSecret,
		AuthorizationEndpoint: raw.AuthURI,
		TokenEndpoint:         raw.TokenURI,
	}
	if len(raw.RedirectURIs) > 0 {
		creds.RedirectURI = raw.RedirectURIs[0]
		for _, u := range raw.RedirectURIs {
			if _, ok := loopbackRedirect(u); ok {
				creds.RedirectURI = u
				break
			}
		}
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return creds, nil
}

// Validate checks the fields the browser flow needs.
func (c *ClientCredentials) Validate() error {
	if err := validation.ValidateNonEmptyString("client_id", c.ClientID); err != nil {
		return newError(InvalidCredentials, "", err)
	}
	if err := validation.ValidateURL("auth_uri", c.AuthorizationEndpoint); err != nil {
		return newError(InvalidCredentials, "", err)
	}
	if err := validation.ValidateURL("token_uri", c.TokenEndpoint); err != nil {
		return newError(InvalidCredentials, "", err)
	}
	return nil
}

// LoadClientCredentials reads client credentials from a JSON file.
func LoadClientCredentials(path string) (*ClientCredentials, error) {
	data, err := readCredentialFile(path)
	if err != nil {
		return nil, err
	}
	return ParseClientCredentials(data)
}

// ServiceAccountCredentials identify a non-interactive principal.
type ServiceAccountCredentials struct {
	Type         string   `json:"type"`
	ClientEmail  string   `json:"client_email"`
	PrivateKey   string   `json:"private_key"`
	PrivateKeyID string   `json:"private_key_id,omitempty"`
	TokenURI     string   `json:"token_uri"`
	Scopes       []string `json:"scopes,omitempty"`
}

// ParseServiceAccountCredentials reads {type, client_email, private_key, token_uri}.
func ParseServiceAccountCredentials(data []byte) (*ServiceAccountCredentials, error) {
	var creds ServiceAccountCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, newError(InvalidCredentials, "malformed service account credentials", err)
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return &creds, nil
}

// Validate checks the type, email, key and token URI fields.
func (c *ServiceAccountCredentials) Validate() error {
	if c.Type != "" && c.Type != TypeServiceAccount {
		return newError(InvalidCredentials, fmt.Sprintf("credential type is %q, want %q", c.Type, TypeServiceAccount), nil)
	}
	if err := validation.ValidateNonEmptyString("client_email", c.ClientEmail); err != nil {
		return newError(InvalidCredentials, "", err)
	}
	if err := validation.ValidateNonEmptyString("private_key", c.PrivateKey); err != nil {
		return newError(InvalidCredentials, "", err)
	}
	if err := validation.ValidateURL("token_uri", c.TokenURI); err != nil {
		return newError(InvalidCredentials, "", err)
	}
	return nil
}

// LoadServiceAccountCredentials reads service account credentials from a JSON file.
func LoadServiceAccountCredentials(path string) (*ServiceAccountCredentials, error) {
	data, err := readCredentialFile(path)
	if err != nil {
		return nil, err
	}
	return ParseServiceAccountCredentials(data)
}

// AuthorizedUserCredentials hold a previously granted refresh token.
type AuthorizedUserCredentials struct {
	Type         string `json:"type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
	TokenURI     string `json:"token_uri,omitempty"`
}

func parseAuthorizedUserCredentials(data []byte) (*AuthorizedUserCredentials, error) {
	var creds AuthorizedUserCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, newError(InvalidCredentials, "malformed authorized user credentials", err)
	}
	if err := validation.ValidateNonEmptyString("client_id", creds.ClientID); err != nil {
		return nil, newError(InvalidCredentials, "", err)
	}
	if err := validation.ValidateNonEmptyString("refresh_token", creds.RefreshToken); err != nil {
		return nil, newError(InvalidCredentials, "", err)
	}
	return &creds, nil
}

// DetectCredentialType inspects the "type" field of a credential file. Files
// without a type that carry client_id and auth_uri, or an installed/web
// wrapper, are client credentials.
func DetectCredentialType(data []byte) (string, error) {
	var probe struct {
		Type      string          `json:"type"`
		ClientID  string          `json:"client_id"`
		AuthURI   string          `json:"auth_uri"`
		Installed json.RawMessage `json:"installed"`
		Web       json.RawMessage `json:"web"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return "", newError(InvalidCredentials, "malformed credential file", err)
	}
	switch {
	case probe.Type == TypeServiceAccount || probe.Type == TypeAuthorizedUser:
		return probe.Type, nil
	case probe.Type != "":
		return "", newError(InvalidCredentials, fmt.Sprintf("unsupported credential type %q", probe.Type), nil)
	case probe.Installed != nil || probe.Web != nil || (probe.ClientID != "" && probe.AuthURI != ""):
		return TypeClient, nil
	default:
		return "", newError(InvalidCredentials, "cannot determine credential type", nil)
	}
}

func readCredentialFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, newError(NoCredentialsFound, fmt.Sprintf("credential file %s does not exist", path), err)
		}
		return nil, newError(InvalidCredentials, fmt.Sprintf("failed to read credential file %s", path), err)
	}
	return data, nil
}
