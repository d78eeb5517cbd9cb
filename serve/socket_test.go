package main

import (
	"fmt"
	"os"
	"testing"
)

func TestResolveSocketPath(t *testing.T) {
	tests := []struct {
		name     string
		envSetup func(t *testing.T)
		expected string
	}{
		{
			name: "GHOSTLINE_SOCKET",
			envSetup: func(t *testing.T) {
				t.Setenv("GHOSTLINE_SOCKET", "/custom/ghostline.sock")
			},
			expected: "/custom/ghostline.sock",
		},
		{
			name: "XDG_RUNTIME_DIR",
			envSetup: func(t *testing.T) {
				t.Setenv("GHOSTLINE_SOCKET", "")
				t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
			},
			expected: "/run/user/1000/ghostline.sock",
		},
		{
			name: "fallback",
			envSetup: func(t *testing.T) {
				t.Setenv("GHOSTLINE_SOCKET", "")
				t.Setenv("XDG_RUNTIME_DIR", "")
			},
			expected: fmt.Sprintf("/tmp/ghostline-%d.sock", os.Getuid()),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.envSetup(t)
			got := resolveSocketPath()
			if got != tt.expected {
				t.Errorf("resolveSocketPath() = %s, expected %s", got, tt.expected)
			}
		})
	}
}

func TestNewServerRemovesStaleSocket(t *testing.T) {
	sockPath := fmt.Sprintf("/tmp/ghostline-stale-%d.sock", os.Getpid())
	if err := os.WriteFile(sockPath, []byte("stale"), 0o600); err != nil {
		t.Fatal(err)
	}
	srv, err := NewServerWithFactory(sockPath, stubFactory(newStub()))
	if err != nil {
		t.Fatalf("expected stale socket to be replaced, got %v", err)
	}
	srv.Close()
	if _, err := os.Stat(sockPath); !os.IsNotExist(err) {
		t.Errorf("expected socket file removed on close, stat err = %v", err)
	}
}
