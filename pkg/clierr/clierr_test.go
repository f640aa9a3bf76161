package clierr

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *Error
		wantMsg string
	}{
		{
			name:    "simple error message",
			err:     New(Validation, "invalid scope", nil),
			wantMsg: "invalid scope",
		},
		{
			name:    "error with underlying error",
			err:     New(Network, "token endpoint unreachable", errors.New("dial tcp: timeout")),
			wantMsg: "token endpoint unreachable",
		},
		{
			name:    "empty message",
			err:     New(Internal, "", nil),
			wantMsg: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", got, tt.wantMsg)
			}
		})
	}
}

func TestError_UnwrapChain(t *testing.T) {
	root := errors.New("wrapped: root cause")
	cliErr := New(Auth, "login failed", root)

	if !errors.Is(cliErr, root) {
		t.Error("errors.Is should find wrapped error")
	}

	var target *Error
	if !errors.As(fmt.Errorf("outer: %w", cliErr), &target) {
		t.Fatal("errors.As should find Error type")
	}
	if target.Type != Auth {
		t.Errorf("errors.As Type = %v, want %v", target.Type, Auth)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain error", errors.New("boom"), 1},
		{"validation", New(Validation, "bad", nil), 2},
		{"not found", New(NotFound, "missing", nil), 3},
		{"auth", New(Auth, "denied", nil), 4},
		{"network", New(Network, "offline", nil), 5},
		{"internal", New(Internal, "bug", nil), 1},
		{"wrapped", fmt.Errorf("ctx: %w", New(Auth, "denied", nil)), 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
