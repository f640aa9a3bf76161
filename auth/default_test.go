package auth

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTokenEnv = "GAUTH_TEST_ACCESS_TOKEN"

func writeCredentialFile(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestDefault_NoCredentialsFound(t *testing.T) {
	t.Setenv(testTokenEnv, "")
	p := NewDefaultTokenProvider(DefaultConfig{
		AccessTokenEnv:  testTokenEnv,
		CredentialsPath: filepath.Join(t.TempDir(), "missing.json"),
	}, WithTokenStore(newMemStore(), "default"))

	_, err := p.CurrentToken(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentialsFound)
}

func TestDefault_EnvironmentToken(t *testing.T) {
	t.Setenv(testTokenEnv, " env-token \n")
	store := newMemStore()
	store.tokens["default"] = &Token{AccessToken: "stored", Expiry: time.Now().Add(time.Hour)}
	p := NewDefaultTokenProvider(DefaultConfig{AccessTokenEnv: testTokenEnv, Scopes: []string{"profile"}},
		WithTokenStore(store, "default"))

	tok, err := p.CurrentToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "env-token", tok.AccessToken, "environment wins over the store")
	assert.True(t, tok.Expiry.IsZero())
	assert.Equal(t, []string{"profile"}, tok.Scope)

	again, err := p.CurrentToken(context.Background())
	require.NoError(t, err)
	assert.Same(t, tok, again)

	t.Setenv(testTokenEnv, "rotated")
	tok, err = p.RefreshToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rotated", tok.AccessToken)
}

func TestDefault_FreshStoredToken(t *testing.T) {
	clock := newTestClock()
	store := newMemStore()
	store.tokens["default"] = &Token{AccessToken: "stored", RefreshToken: "r1", Expiry: clock.Now().Add(time.Hour)}
	ts := newTokenServer(t, okToken("refreshed", 3600))
	p := NewDefaultTokenProvider(DefaultConfig{Client: testClientCredentials(ts.URL)},
		WithTokenStore(store, "default"), WithClock(clock.Now), WithHTTPClient(ts.Client()))

	tok, err := p.CurrentToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stored", tok.AccessToken)
	assert.EqualValues(t, 0, ts.calls.Load())

	tok, err = p.RefreshToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refreshed", tok.AccessToken, "an explicit refresh replaces the held stored token")
	assert.EqualValues(t, 1, ts.calls.Load())
	assert.Equal(t, "refreshed", store.get("default").AccessToken)
}

func TestDefault_ExpiredStoredTokenIsRefreshed(t *testing.T) {
	clock := newTestClock()
	store := newMemStore()
	store.tokens["default"] = &Token{AccessToken: "stale", RefreshToken: "r1", Expiry: clock.Now().Add(-time.Minute)}
	ts := newTokenServer(t, okToken("refreshed", 3600))
	p := NewDefaultTokenProvider(DefaultConfig{Client: testClientCredentials(ts.URL)},
		WithTokenStore(store, "default"), WithClock(clock.Now), WithHTTPClient(ts.Client()))

	tok, err := p.CurrentToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refreshed", tok.AccessToken)
	assert.Equal(t, "r1", tok.RefreshToken)
	assert.Equal(t, "r1", ts.form()["refresh_token"])
	assert.Equal(t, 1, store.saves)
}

func TestDefault_ExpiredStoredTokenWithoutRefresh(t *testing.T) {
	clock := newTestClock()
	store := newMemStore()
	store.tokens["default"] = &Token{AccessToken: "stale", Expiry: clock.Now().Add(-time.Minute)}
	p := NewDefaultTokenProvider(DefaultConfig{}, WithTokenStore(store, "default"), WithClock(clock.Now))

	_, err := p.CurrentToken(context.Background())
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestDefault_StoreReadFailure(t *testing.T) {
	store := newMemStore()
	store.loadErr = assert.AnError
	p := NewDefaultTokenProvider(DefaultConfig{}, WithTokenStore(store, "default"))

	_, err := p.CurrentToken(context.Background())
	assert.ErrorIs(t, err, ErrEnvironment)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestDefault_ServiceAccountFile(t *testing.T) {
	ts := newTokenServer(t, okToken("sa-token", 3600))
	path := writeCredentialFile(t, map[string]string{
		"type":         TypeServiceAccount,
		"client_email": "svc@x.iam",
		"private_key":  rsaKeyPEM(t),
		"token_uri":    ts.URL,
	})
	p := NewDefaultTokenProvider(DefaultConfig{CredentialsPath: path, Scopes: []string{"scope.a"}}, WithHTTPClient(ts.Client()))

	tok, err := p.CurrentToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sa-token", tok.AccessToken)
	assert.Equal(t, GrantJWTBearer, ts.form()["grant_type"])

	_, err = p.RefreshToken(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, ts.calls.Load())
}

func TestDefault_AuthorizedUserFile(t *testing.T) {
	ts := newTokenServer(t, okToken("user-token", 3600))
	path := writeCredentialFile(t, map[string]string{
		"type":          TypeAuthorizedUser,
		"client_id":     "client-123",
		"client_secret": "shh",
		"refresh_token": "file-refresh",
		"token_uri":     ts.URL,
	})
	p := NewDefaultTokenProvider(DefaultConfig{CredentialsPath: path}, WithHTTPClient(ts.Client()))

	tok, err := p.CurrentToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-token", tok.AccessToken)
	assert.Equal(t, "file-refresh", tok.RefreshToken)

	form := ts.form()
	assert.Equal(t, GrantRefreshToken, form["grant_type"])
	assert.Equal(t, "file-refresh", form["refresh_token"])
	assert.Equal(t, "client-123", form["client_id"])
}

func TestDefault_ClientCredentialFileNeedsLogin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.json")
	require.NoError(t, os.WriteFile(path, []byte(clientJSON), 0o600))
	p := NewDefaultTokenProvider(DefaultConfig{CredentialsPath: path})

	_, err := p.CurrentToken(context.Background())
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestDefaultCredentialsPath(t *testing.T) {
	t.Setenv(DefaultCredentialsEnv, "/tmp/creds.json")
	assert.Equal(t, "/tmp/creds.json", DefaultCredentialsPath())

	t.Setenv(DefaultCredentialsEnv, "")
	assert.Equal(t, "credentials.json", filepath.Base(DefaultCredentialsPath()))
}
