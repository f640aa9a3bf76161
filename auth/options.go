package auth

import (
	"net/http"
	"time"
)

const (
	// DefaultCallbackTimeout bounds the wait for the browser redirect.
	DefaultCallbackTimeout = 120 * time.Second
	// DefaultListenAddress binds the loopback listener on an ephemeral port.
	DefaultListenAddress = "127.0.0.1:0"
	// DefaultCallbackPath is the path of the loopback redirect URI.
	DefaultCallbackPath = "/callback"
)

type options struct {
	client          *http.Client
	margin          time.Duration
	now             Clock
	store           TokenStorer
	storeName       string
	opener          URLOpener
	callbackTimeout time.Duration
	listenAddress   string
}

func defaultOptions() options {
	return options{
		client:          &http.Client{Timeout: 30 * time.Second},
		margin:          DefaultExpiryMargin,
		now:             time.Now,
		opener:          SystemBrowser{},
		callbackTimeout: DefaultCallbackTimeout,
	}
}

// Option configures a provider. Options that do not apply to a provider are ignored.
type Option func(*options)

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithHTTPClient sets the client used for token exchanges.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.client = c
		}
	}
}

// WithExpiryMargin sets how long before expiry a token is considered stale.
func WithExpiryMargin(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.margin = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now Clock) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithTokenStore persists and loads tokens under name.
func WithTokenStore(store TokenStorer, name string) Option {
	return func(o *options) {
		o.store = store
		o.storeName = name
	}
}

// WithURLOpener sets how the authorization URL is presented to the user.
func WithURLOpener(opener URLOpener) Option {
	return func(o *options) {
		if opener != nil {
			o.opener = opener
		}
	}
}

// WithCallbackTimeout bounds the wait for the loopback redirect.
func WithCallbackTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.callbackTimeout = d
		}
	}
}

// WithListenAddress sets the host:port of the loopback listener.
func WithListenAddress(addr string) Option {
	return func(o *options) {
		o.listenAddress = addr
	}
}
