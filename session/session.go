// Package session attaches provider tokens to outbound HTTP requests.
package session

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/habedi/gauth/auth"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// DefaultUserAgent is sent when no other User-Agent is configured.
const DefaultUserAgent = "gauth"

// Session authorizes requests with tokens from a single provider. It holds
// no token state of its own.
type Session struct {
	provider  auth.TokenProvider
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// Option configures a Session.
type Option func(*Session)

// WithHTTPClient sets the client used to send requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) {
		if c != nil {
			s.client = c
		}
	}
}

// WithRateLimiter waits on l before every send, the retry included.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(s *Session) { s.limiter = l }
}

// WithRateLimit allows perSecond requests with the given burst. A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Session) {
		if perSecond <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithUserAgent sets the User-Agent header for requests that do not carry one.
func WithUserAgent(ua string) Option {
	return func(s *Session) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// New returns a Session over provider with a 30s HTTP client unless
// WithHTTPClient says otherwise.
func New(provider auth.TokenProvider, opts ...Option) *Session {
	s := &Session{
		provider:  provider,
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Provider returns the provider backing the session.
func (s *Session) Provider() auth.TokenProvider { return s.provider }

// Authorize returns a copy of req carrying "Authorization: <type> <token>".
// The token comes from CurrentToken, which refreshes when needed.
func (s *Session) Authorize(req *http.Request) (*http.Request, error) {
	tok, err := s.provider.CurrentToken(req.Context())
	if err != nil {
		return nil, err
	}
	return s.withToken(req, tok)
}

// withToken clones req with the token applied and a fresh body from GetBody.
func (s *Session) withToken(req *http.Request, tok *auth.Token) (*http.Request, error) {
	out := req.Clone(req.Context())
	out.Header.Set("Authorization", tok.Type()+" "+tok.AccessToken)
	if out.Header.Get("User-Agent") == "" {
		out.Header.Set("User-Agent", s.userAgent)
	}
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		out.Body = body
	}
	return out, nil
}

// Execute authorizes and sends req. A 401 response triggers exactly one
// RefreshToken and one retry with the new token; the retry's response is
// returned whatever its status. The caller closes the returned body.
func (s *Session) Execute(req *http.Request) (*http.Response, error) {
	if err := bufferBody(req); err != nil {
		return nil, err
	}

	authorized, err := s.Authorize(req)
	if err != nil {
		return nil, err
	}
	resp, err := s.send(authorized)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	log.Info().Str("method", req.Method).Str("url", req.URL.Redacted()).Msg("Request unauthorized, refreshing token and retrying once")

	tok, err := s.provider.RefreshToken(req.Context())
	if err != nil {
		return nil, err
	}
	retry, err := s.withToken(req, tok)
	if err != nil {
		return nil, err
	}
	return s.send(retry)
}

func (s *Session) send(req *http.Request) (*http.Response, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}
	log.Debug().Str("method", req.Method).Str("url", req.URL.Redacted()).Msg("Sending HTTP request")
	resp, err := s.client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("method", req.Method).Str("url", req.URL.Redacted()).Msg("HTTP request failed")
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Redacted(), err)
	}
	log.Debug().Str("method", req.Method).Str("url", req.URL.Redacted()).Int("status", resp.StatusCode).Msg("HTTP response received")
	return resp, nil
}

// bufferBody makes the request body replayable through GetBody.
func bufferBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to buffer request body: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.Body, _ = req.GetBody()
	req.ContentLength = int64(len(data))
	return nil
}
