//go:build !windows

package ipc

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSocketPathOverride(t *testing.T) {
	t.Setenv("CLIPWATCH_SOCKET", "/tmp/custom.sock")
	if got := SocketPath(); got != "/tmp/custom.sock" {
		t.Fatalf("SocketPath() = %q", got)
	}
}

func TestListenDialAndStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clipwatch.sock")
	if IsRunning(path) {
		t.Fatal("nothing should be listening yet")
	}

	// A leftover file from a crashed daemon must not block Listen.
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	ln, err := Listen(path)
	if err != nil {
		t.Fatalf("Listen over stale socket: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("socket mode = %v, want 0600", info.Mode().Perm())
	}
	if !IsRunning(path) {
		t.Fatal("IsRunning = false with a live listener")
	}
	if _, err := Listen(path); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Listen: got %v, want ErrAlreadyRunning", err)
	}
}
