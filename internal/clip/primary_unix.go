//go:build linux || freebsd || openbsd || netbsd || dragonfly

package clip

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

const toolTimeout = 2 * time.Second

// selectionTool is a command-line utility able to print the PRIMARY selection.
type selectionTool struct {
	name string
	args []string
	// wayland tools are preferred when WAYLAND_DISPLAY is set.
	wayland bool
}

var primaryTools = []selectionTool{
	{name: "wl-paste", args: []string{"--primary", "--no-newline"}, wayland: true},
	{name: "xclip", args: []string{"-out", "-selection", "primary"}},
	{name: "xsel", args: []string{"--output", "--primary"}},
}

// pickTool returns the first installed tool, trying Wayland tools first only
// under a Wayland session.
func pickTool(lookPath func(string) (string, error), wayland bool) (selectionTool, error) {
	for _, pass := range []bool{wayland, !wayland} {
		for _, tool := range primaryTools {
			if tool.wayland != pass {
				continue
			}
			if _, err := lookPath(tool.name); err == nil {
				return tool, nil
			}
		}
	}
	return selectionTool{}, errors.New("no primary selection tool found (install wl-clipboard, xclip or xsel)")
}

type primaryBackend struct {
	tool     selectionTool
	interval time.Duration

	mu     sync.Mutex
	last   string
	closed chan struct{}
	once   sync.Once
}

func newPrimary() (Backend, error) {
	if os.Getenv("WAYLAND_DISPLAY") == "" && os.Getenv("DISPLAY") == "" {
		return nil, errors.New("no display server for primary selection")
	}
	tool, err := pickTool(exec.LookPath, os.Getenv("WAYLAND_DISPLAY") != "")
	if err != nil {
		return nil, err
	}
	b := &primaryBackend{
		tool:     tool,
		interval: DefaultPollInterval,
		closed:   make(chan struct{}),
	}
	if text, err := b.read(); err == nil {
		b.last = text
	}
	return b, nil
}

func (b *primaryBackend) Name() string { return "primary (" + b.tool.name + ")" }

func (b *primaryBackend) read() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), toolTimeout)
	defer cancel()
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, b.tool.name, b.tool.args...)
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		// Most tools exit 1 for an empty selection.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", nil
		}
		return "", fmt.Errorf("%s: %w", b.tool.name, err)
	}
	return out.String(), nil
}

func (b *primaryBackend) Load() (string, error) {
	text, err := b.read()
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	b.last = text
	b.mu.Unlock()
	return text, nil
}

func (b *primaryBackend) LoadWait(ctx context.Context) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-b.closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	b.mu.Lock()
	last := b.last
	b.mu.Unlock()

	text, err := pollWait(ctx, b.interval, &last, b.read)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	b.last = text
	b.mu.Unlock()
	return text, nil
}

func (b *primaryBackend) Close() { b.once.Do(func() { close(b.closed) }) }
