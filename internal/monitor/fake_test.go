package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.klb.dev/clipwatch/internal/clip"
	"go.klb.dev/clipwatch/internal/eventbus"
	"go.klb.dev/clipwatch/internal/selection"
)

const testTimeout = 2 * time.Second

var errBuild = errors.New("display unavailable")

// change is one result handed to a blocked LoadWait. processed is closed when
// the watcher comes back for the next change, i.e. once this one has been
// fully handled.
type change struct {
	text      string
	err       error
	processed chan struct{}
}

// fakeSelection is the host-side state shared by every backend handle a
// factory builds, so reconnects keep seeing the same selection.
type fakeSelection struct {
	mu      sync.Mutex
	current string
	pending chan struct{}

	changes    chan change
	waiting    atomic.Bool
	builds     atomic.Int32
	failBuilds atomic.Int32
	closes     atomic.Int32
}

func newFakeSelection(current string) *fakeSelection {
	return &fakeSelection{current: current, changes: make(chan change)}
}

func (f *fakeSelection) factory() (clip.Backend, error) {
	f.builds.Add(1)
	if f.failBuilds.Load() > 0 {
		f.failBuilds.Add(-1)
		return nil, errBuild
	}
	return &fakeBackend{sel: f}, nil
}

func (f *fakeSelection) markProcessed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending != nil {
		close(f.pending)
		f.pending = nil
	}
}

// send hands c to the watcher without waiting for it to be handled.
func (f *fakeSelection) send(t *testing.T, c change) {
	t.Helper()
	select {
	case f.changes <- c:
	case <-time.After(testTimeout):
		t.Fatal("watcher never waited for a change")
	}
}

// deliver sets the selection to text and waits until the watcher is done
// with it.
func (f *fakeSelection) deliver(t *testing.T, text string) {
	t.Helper()
	f.deliverChange(t, change{text: text})
}

func (f *fakeSelection) fail(t *testing.T, err error) {
	t.Helper()
	f.deliverChange(t, change{err: err})
}

func (f *fakeSelection) deliverChange(t *testing.T, c change) {
	t.Helper()
	c.processed = make(chan struct{})
	f.send(t, c)
	select {
	case <-c.processed:
	case <-time.After(testTimeout):
		t.Fatal("watcher did not finish handling the change")
	}
}

type fakeBackend struct {
	sel *fakeSelection
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Load() (string, error) {
	b.sel.mu.Lock()
	defer b.sel.mu.Unlock()
	return b.sel.current, nil
}

func (b *fakeBackend) LoadWait(ctx context.Context) (string, error) {
	b.sel.waiting.Store(true)
	b.sel.markProcessed()
	select {
	case c := <-b.sel.changes:
		b.sel.mu.Lock()
		b.sel.pending = c.processed
		if c.err == nil {
			b.sel.current = c.text
		}
		b.sel.mu.Unlock()
		return c.text, c.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (b *fakeBackend) Close() { b.sel.closes.Add(1) }

func clipboardOnly(sel *fakeSelection, minSize int) Options {
	return Options{
		EnableClipboard:   true,
		FilterMinSize:     minSize,
		Factories:         map[selection.Kind]clip.Factory{selection.Clipboard: sel.factory},
		ReconnectAttempts: 3,
		ReconnectBackoff:  time.Millisecond,
	}
}

// build returns a controller that is not started yet.
func build(t *testing.T, opts Options) *Controller {
	t.Helper()
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func start(t *testing.T, opts Options) *Controller {
	t.Helper()
	c := build(t, opts)
	c.Start()
	return c
}

func expectEvent(t *testing.T, rx *eventbus.Receiver[Event], want Event) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	got, err := rx.Recv(ctx)
	if err != nil {
		t.Fatalf("waiting for %+v: %v", want, err)
	}
	if got != want {
		t.Fatalf("got event %+v, want %+v", got, want)
	}
}

func expectNoEvent(t *testing.T, rx *eventbus.Receiver[Event]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if got, err := rx.Recv(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected no event, got %+v (err %v)", got, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
