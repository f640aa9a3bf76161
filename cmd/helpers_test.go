package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/habedi/gauth/auth"
	"github.com/habedi/gauth/pkg/tokenstore"
	"github.com/stretchr/testify/require"
)

const testTokenEnv = "GAUTH_CMD_TEST_TOKEN"

// testEnv is a config file with a file token store, both in a temp dir.
type testEnv struct {
	dir        string
	configPath string
	storePath  string
	clientPath string
}

func newTestEnv(t *testing.T, provider string) *testEnv {
	t.Helper()
	t.Setenv("GAUTH_PROVIDER", "")
	t.Setenv(testTokenEnv, "")
	dir := t.TempDir()
	env := &testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		storePath:  filepath.Join(dir, "tokens.json"),
		clientPath: filepath.Join(dir, "client_secret.json"),
	}
	body := "provider: " + provider + "\n" +
		"access_token_env: " + testTokenEnv + "\n" +
		"default_credentials: " + filepath.Join(dir, "missing-credentials.json") + "\n" +
		"client_credentials: " + filepath.Join(dir, "client_secret.json") + "\n" +
		"store:\n  backend: file\n  path: " + env.storePath + "\n"
	require.NoError(t, os.WriteFile(env.configPath, []byte(body), 0o600))
	return env
}

func (e *testEnv) save(t *testing.T, name string, tok *auth.Token) {
	t.Helper()
	require.NoError(t, tokenstore.NewFileStore(e.storePath).SaveToken(context.Background(), name, tok))
}

// run executes the root command with args and returns stdout and stderr.
func (e *testEnv) run(args ...string) (string, string, error) {
	root := createRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := root.Execute()
	return out.String(), errOut.String(), err
}

// writeClient writes an installed-app client file whose token endpoint is tokenURL.
func (e *testEnv) writeClient(t *testing.T, tokenURL string) {
	t.Helper()
	body := `{"installed":{"client_id":"cli","client_secret":"shh",` +
		`"auth_uri":"https://accounts.example.com/o/oauth2/auth",` +
		`"token_uri":"` + tokenURL + `","redirect_uris":["http://localhost"]}}`
	require.NoError(t, os.WriteFile(e.clientPath, []byte(body), 0o600))
}
