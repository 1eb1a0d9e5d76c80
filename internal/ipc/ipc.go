// Package ipc locates and opens the local channel the clipwatch daemon
// serves its control API on: a Unix socket, or a named pipe on Windows.
package ipc

import (
	"context"
	"errors"
	"net"
	"os"
	"time"
)

// ErrAlreadyRunning is returned by Listen when another daemon answers on the
// socket.
var ErrAlreadyRunning = errors.New("ipc: a clipwatch daemon is already listening")

// SocketPath returns the IPC endpoint, honouring $CLIPWATCH_SOCKET.
//
//   - Linux / BSD: $XDG_RUNTIME_DIR/clipwatch.sock, else $TMPDIR/clipwatch-<uid>.sock
//   - macOS:       $TMPDIR/clipwatch-<uid>.sock
//   - Windows:     \\.\pipe\clipwatch
func SocketPath() string {
	if s := os.Getenv("CLIPWATCH_SOCKET"); s != "" {
		return s
	}
	return socketPath()
}

// Dial connects to the daemon at path.
func Dial(ctx context.Context, path string) (net.Conn, error) {
	return dialIPC(ctx, path)
}

// IsRunning reports whether a daemon appears to be listening on path. It does
// a dial-and-close; no data is exchanged.
func IsRunning(path string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := Dial(ctx, path)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// Listen opens the IPC endpoint at path. A stale socket left by a crashed
// daemon is replaced; a live one yields ErrAlreadyRunning.
func Listen(path string) (net.Listener, error) {
	if IsRunning(path) {
		return nil, ErrAlreadyRunning
	}
	return listenIPC(path)
}
