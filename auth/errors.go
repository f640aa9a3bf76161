package auth

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an AuthError.
type ErrorKind string

const (
	// InvalidCredentials means key material or a credential file is malformed or missing fields.
	InvalidCredentials ErrorKind = "invalid_credentials"
	// GrantDenied means the authorization server rejected an exchange.
	GrantDenied ErrorKind = "grant_denied"
	// Transport means the exchange failed below HTTP: DNS, TLS, connection errors.
	Transport ErrorKind = "transport"
	// CSRFMismatch means a redirect carried a state that does not match the one sent.
	CSRFMismatch ErrorKind = "csrf_mismatch"
	// Environment covers local failures such as binding the loopback listener or timing out.
	Environment ErrorKind = "environment"
	// NoCredentialsFound means no discovery path produced a credential.
	NoCredentialsFound ErrorKind = "no_credentials_found"
)

// Sentinels for errors.Is. Any AuthError matches the sentinel of its kind.
var (
	ErrInvalidCredentials = &AuthError{Kind: InvalidCredentials}
	ErrGrantDenied        = &AuthError{Kind: GrantDenied}
	ErrTransport          = &AuthError{Kind: Transport}
	ErrCSRFMismatch       = &AuthError{Kind: CSRFMismatch}
	ErrEnvironment        = &AuthError{Kind: Environment}
	ErrNoCredentialsFound = &AuthError{Kind: NoCredentialsFound}
)

// AuthError is returned by every TokenProvider operation.
type AuthError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches any AuthError of the same kind.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Kind == e.Kind
}

func newError(kind ErrorKind, msg string, err error) *AuthError {
	return &AuthError{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the first AuthError in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}
