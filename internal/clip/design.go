package clip

import (
	"context"
	"errors"
	"fmt"

	"golang.design/x/clipboard"
)

var errWatchStopped = errors.New("clipboard watch stopped")

// designBackend uses golang.design/x/clipboard, whose Watch delivers every
// text change on a channel.
type designBackend struct {
	changes <-chan []byte
	cancel  context.CancelFunc
}

// newDesignBackend calls clipboard.Init here rather than in init() so CLI
// sub-commands that never watch a selection don't touch the display.
func newDesignBackend() (Backend, error) {
	if err := clipboard.Init(); err != nil {
		return nil, fmt.Errorf("clipboard init: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &designBackend{
		changes: clipboard.Watch(ctx, clipboard.FmtText),
		cancel:  cancel,
	}, nil
}

func (b *designBackend) Name() string { return "native clipboard" }

func (b *designBackend) Load() (string, error) {
	return string(clipboard.Read(clipboard.FmtText)), nil
}

func (b *designBackend) LoadWait(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case data, ok := <-b.changes:
		if !ok {
			return "", errWatchStopped
		}
		return string(data), nil
	}
}

func (b *designBackend) Close() { b.cancel() }
