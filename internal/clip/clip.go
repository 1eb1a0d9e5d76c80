// Package clip provides handles on the host selection buffers. Each handle can
// read the current text synchronously and block until the text changes.
// Build constraints and runtime probing select the implementation:
//
//	design.go          CLIPBOARD via golang.design/x/clipboard (cgo, native change watch)
//	atotto.go          CLIPBOARD via github.com/atotto/clipboard (command-line tools, polling)
//	primary_unix.go    PRIMARY via wl-paste / xclip / xsel, polling only
//	primary_other.go   PRIMARY unsupported stub
package clip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.klb.dev/clipwatch/internal/selection"
)

// DefaultPollInterval is used by backends without native change notification.
const DefaultPollInterval = 250 * time.Millisecond

// ErrUnsupported is returned by factories for selections the platform lacks.
var ErrUnsupported = errors.New("selection not supported on this platform")

// Backend is a live handle on one selection buffer.
type Backend interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// Load returns the current text of the selection. An empty selection
	// yields "", nil.
	Load() (string, error)

	// LoadWait blocks until the selection holds text different from the last
	// value this handle observed, then returns it. It returns ctx.Err() when
	// ctx ends first. Any other error means the handle is unusable and should
	// be recreated through its Factory.
	LoadWait(ctx context.Context) (string, error)

	// Close releases any resources held by the backend and unblocks LoadWait.
	Close()
}

// Factory builds a fresh Backend. Watchers keep their Factory so a failed
// handle can be rebuilt.
type Factory func() (Backend, error)

// New returns the platform Factory for kind.
func New(kind selection.Kind) Factory {
	switch kind {
	case selection.Clipboard:
		return newClipboard
	case selection.Primary:
		return newPrimary
	default:
		return func() (Backend, error) {
			return nil, fmt.Errorf("%s: %w", kind, ErrUnsupported)
		}
	}
}

// newClipboard prefers the native backend and falls back to the command-line
// one when the native library cannot initialise (no cgo, no display).
func newClipboard() (Backend, error) {
	b, err := newDesignBackend()
	if err == nil {
		return b, nil
	}
	fb, ferr := newAtottoBackend(DefaultPollInterval)
	if ferr != nil {
		return nil, errors.Join(err, ferr)
	}
	return fb, nil
}

// pollWait reads the selection every interval until the text differs from
// *last, then stores and returns it.
func pollWait(ctx context.Context, interval time.Duration, last *string, read func() (string, error)) (string, error) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
			text, err := read()
			if err != nil {
				return "", err
			}
			if text != *last {
				*last = text
				return text, nil
			}
		}
	}
}
