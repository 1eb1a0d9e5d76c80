package clip

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/atotto/clipboard"
)

// atottoBackend shells out to xclip/xsel/wl-clipboard (or the OS API on
// macOS and Windows) through github.com/atotto/clipboard and polls for changes.
type atottoBackend struct {
	interval time.Duration

	mu     sync.Mutex
	last   string
	closed chan struct{}
	once   sync.Once
}

func newAtottoBackend(interval time.Duration) (Backend, error) {
	if clipboard.Unsupported {
		return nil, errors.New("no clipboard utility found (install xclip, xsel or wl-clipboard)")
	}
	b := &atottoBackend{interval: interval, closed: make(chan struct{})}
	if text, err := clipboard.ReadAll(); err == nil {
		b.last = text
	}
	return b, nil
}

func (b *atottoBackend) Name() string { return "clipboard (command)" }

func (b *atottoBackend) Load() (string, error) {
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	b.last = text
	b.mu.Unlock()
	return text, nil
}

func (b *atottoBackend) LoadWait(ctx context.Context) (string, error) {
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

	text, err := pollWait(ctx, b.interval, &last, clipboard.ReadAll)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	b.last = text
	b.mu.Unlock()
	return text, nil
}

func (b *atottoBackend) Close() { b.once.Do(func() { close(b.closed) }) }
