package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func buildTestBinary(t *testing.T) string {
	binName := "gauth_it_bin"
	if runtime.GOOS == "windows" {
		binName += ".exe"
	}
	bin := filepath.Join(t.TempDir(), binName)
	cmd := exec.Command("go", "build", "-o", bin, ".")
	cmd.Env = os.Environ()
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to build binary: %v\n%s", err, string(out))
	}
	return bin
}

// TestTokenPrintExitCode checks that a missing credential maps to the not-found exit status.
func TestTokenPrintExitCode(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the binary")
	}
	bin := buildTestBinary(t)
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	body := "provider: default\n" +
		"access_token_env: GAUTH_IT_UNSET_TOKEN\n" +
		"default_credentials: " + filepath.Join(dir, "none.json") + "\n" +
		"store:\n  backend: file\n  path: " + filepath.Join(dir, "tokens.json") + "\n"
	if err := os.WriteFile(configPath, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := exec.Command(bin, "--config", configPath, "token", "print")
	cmd.Env = append(os.Environ(), "GAUTH_IT_UNSET_TOKEN=", "GAUTH_PROVIDER=")
	err := cmd.Run()
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		t.Fatalf("expected exit error, got %v", err)
	}
	if exitErr.ExitCode() != 3 {
		t.Fatalf("expected exit code 3, got %d", exitErr.ExitCode())
	}
}

// TestGracefulInterrupt starts a browser login that waits for a redirect and
// sends SIGINT, expecting the process to exit promptly.
func TestGracefulInterrupt(t *testing.T) {
	if testing.Short() || runtime.GOOS == "windows" {
		t.Skip("needs a built binary and POSIX signals")
	}
	bin := buildTestBinary(t)
	dir := t.TempDir()
	clientPath := filepath.Join(dir, "client.json")
	if err := os.WriteFile(clientPath, []byte(`{"installed":{"client_id":"id","auth_uri":"https://accounts.example.com/auth","token_uri":"https://oauth2.example.com/token"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(dir, "config.yaml")
	body := "client_credentials: " + clientPath + "\n" +
		"store:\n  backend: file\n  path: " + filepath.Join(dir, "tokens.json") + "\n"
	if err := os.WriteFile(configPath, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := exec.Command(bin, "--config", configPath, "login", "--no-browser")
	cmd.Env = append(os.Environ(), "GAUTH_PROVIDER=")
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start binary: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		t.Fatalf("failed to send interrupt: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("process did not exit within 3s after SIGINT")
	}
}
