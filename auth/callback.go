package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const callbackSuccessPage = `<!DOCTYPE html>
<html><head><title>Signed in</title></head>
<body><p>Authentication complete. You can close this window.</p></body></html>`

const callbackFailurePage = `<!DOCTYPE html>
<html><head><title>Sign-in failed</title></head>
<body><p>Authentication failed. Return to the terminal for details.</p></body></html>`

// callbackResult is what the single accepted redirect carried.
type callbackResult struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
	stateMatches     bool
}

// callbackServer accepts exactly one redirect on path and hands it to the
// waiting flow through a buffered channel.
type callbackServer struct {
	listener   net.Listener
	server     *http.Server
	path       string
	state      string
	registered *url.URL // sent verbatim as redirect_uri when set
	once       sync.Once
	resultCh   chan callbackResult
	errCh      chan error
}

// startCallbackServer binds addr and serves until close is called. When
// registered is non-nil its path is served and it is used as redirect_uri.
func startCallbackServer(addr, path, state string, registered *url.URL) (*callbackServer, error) {
	if registered != nil {
		path = registered.Path
		if path == "" {
			path = "/"
		}
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, newError(Environment, fmt.Sprintf("failed to start callback listener on %s", addr), err)
	}
	s := &callbackServer{
		listener:   listener,
		path:       path,
		state:      state,
		registered: registered,
		resultCh:   make(chan callbackResult, 1),
		errCh:      make(chan error, 1),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case s.errCh <- err:
			default:
			}
		}
	}()
	log.Debug().Str("address", listener.Addr().String()).Msg("Callback listener started")
	return s, nil
}

// redirectURL is the value sent as redirect_uri. A registered URI is kept
// as is so that servers matching it exactly accept it; otherwise the URL is
// built from the bound ephemeral address.
func (s *callbackServer) redirectURL() string {
	if s.registered != nil {
		return s.registered.String()
	}
	return (&url.URL{Scheme: "http", Host: s.listener.Addr().String(), Path: s.path}).String()
}

func (s *callbackServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != s.path {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	handled := false
	s.once.Do(func() {
		handled = true
		s.process(w, r)
	})
	if !handled {
		http.Error(w, "callback already processed", http.StatusBadRequest)
	}
}

func (s *callbackServer) process(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	q := r.URL.Query()
	result := callbackResult{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}
	result.stateMatches = subtle.ConstantTimeCompare([]byte(result.State), []byte(s.state)) == 1

	if result.Error != "" || !result.stateMatches || result.Code == "" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = fmt.Fprint(w, callbackFailurePage)
	} else {
		_, _ = fmt.Fprint(w, callbackSuccessPage)
	}
	s.resultCh <- result
}

// wait blocks until the redirect arrives, the server fails, or ctx ends.
func (s *callbackServer) wait(ctx context.Context) (callbackResult, error) {
	select {
	case res := <-s.resultCh:
		return res, nil
	case err := <-s.errCh:
		return callbackResult{}, newError(Environment, "callback listener failed", err)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return callbackResult{}, newError(Environment, "timed out waiting for the browser redirect", ctx.Err())
		}
		return callbackResult{}, newError(Environment, "sign-in cancelled", ctx.Err())
	}
}

func (s *callbackServer) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.server.Shutdown(ctx)
	_ = s.listener.Close()
}

// loopbackRedirect parses raw and reports whether it is an http URL on a
// loopback host with an explicit port.
func loopbackRedirect(raw string) (*url.URL, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "http" || u.Port() == "" {
		return nil, false
	}
	host := u.Hostname()
	if host != "localhost" {
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			return nil, false
		}
	}
	return u, true
}
