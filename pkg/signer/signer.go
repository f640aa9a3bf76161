package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalidKey is returned when key material cannot be used for signing.
var ErrInvalidKey = errors.New("invalid private key")

// Signer produces a signature over an arbitrary byte sequence.
type Signer interface {
	// Algorithm returns the JWS algorithm name, for example "RS256".
	Algorithm() string
	Sign(data []byte) ([]byte, error)
}

// RSASigner signs with RSASSA-PKCS1-v1_5 over SHA-256.
type RSASigner struct {
	key *rsa.PrivateKey
}

// NewRSASigner wraps an already parsed key.
func NewRSASigner(key *rsa.PrivateKey) (*RSASigner, error) {
	if key == nil {
		return nil, ErrInvalidKey
	}
	return &RSASigner{key: key}, nil
}

// NewRSASignerFromPEM parses a PEM encoded PKCS#1 or PKCS#8 RSA private key,
// the format found in the private_key field of service account files.
func NewRSASignerFromPEM(pemData []byte) (*RSASigner, error) {
	if len(pemData) == 0 {
		return nil, fmt.Errorf("%w: key is empty", ErrInvalidKey)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return NewRSASigner(key)
}

func (s *RSASigner) Algorithm() string { return "RS256" }

// Sign returns the PKCS#1 v1.5 signature of the SHA-256 digest of data.
func (s *RSASigner) Sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return sig, nil
}

// PublicKey returns the public half of the signing key.
func (s *RSASigner) PublicKey() *rsa.PublicKey {
	return &s.key.PublicKey
}
