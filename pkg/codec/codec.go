package codec

import (
	"encoding/base64"
	"strings"
)

// EncodeURL encodes data with the URL-safe alphabet and no padding, the form used by JWT segments.
func EncodeURL(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// EncodeURLString is EncodeURL for string input.
func EncodeURLString(s string) string {
	return EncodeURL([]byte(s))
}

// DecodeURL decodes URL-safe Base64, with or without trailing padding.
func DecodeURL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// DecodeURLString is DecodeURL returning a string.
func DecodeURLString(s string) (string, error) {
	b, err := DecodeURL(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
