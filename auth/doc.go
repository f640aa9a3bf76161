// Package auth obtains and refreshes OAuth2 access tokens.
//
// Three providers implement TokenProvider: BrowserTokenProvider runs the
// authorization code grant through a loopback redirect, ServiceAccountTokenProvider
// exchanges a signed JWT assertion, and DefaultTokenProvider discovers an
// existing credential from the environment, a token store, or a credential file.
// Providers may be shared between goroutines; concurrent refreshes collapse
// into a single exchange.
package auth
