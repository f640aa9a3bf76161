package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/habedi/gauth/session"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPeopleURL    = "https://people.googleapis.com"
	DefaultTranslateURL = "https://translation.googleapis.com"
)

// APIError is a non-2xx response from an API call.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("unexpected HTTP status: %d %s. Body: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Client calls Google APIs through a Session.
type Client struct {
	session      *session.Session
	peopleURL    string
	translateURL string
}

// Option configures a Client.
type Option func(*Client)

// WithPeopleURL overrides the People API base URL.
func WithPeopleURL(u string) Option { return func(c *Client) { c.peopleURL = u } }

// WithTranslateURL overrides the Cloud Translation API base URL.
func WithTranslateURL(u string) Option { return func(c *Client) { c.translateURL = u } }

// New returns a Client that sends its requests through s.
func New(s *session.Session, opts ...Option) *Client {
	c := &Client{session: s, peopleURL: DefaultPeopleURL, translateURL: DefaultTranslateURL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// getJSON sends a GET and decodes the response into out.
func (c *Client) getJSON(ctx context.Context, base, path string, query url.Values, out interface{}) error {
	u := base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

// postJSON sends in as a JSON body and decodes the response into out.
func (c *Client) postJSON(ctx context.Context, base, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.session.Execute(req)
	if err != nil {
		return err
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().Str("method", req.Method).Str("url", req.URL.Redacted()).Int("status", resp.StatusCode).Msg("API request returned non-OK status")
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		log.Error().Err(err).Str("body_preview", string(body[:min(len(body), 200)])).Msg("Failed to parse API response")
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// readResponseBody reads and closes the response body.
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
