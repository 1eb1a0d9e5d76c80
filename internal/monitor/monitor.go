// Package monitor watches the host selections and republishes every content
// change on a broadcast bus. One goroutine per enabled selection blocks on its
// backend; a shared switch suppresses publishing without stopping them.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.klb.dev/clipwatch/internal/clip"
	"go.klb.dev/clipwatch/internal/eventbus"
	"go.klb.dev/clipwatch/internal/selection"
)

const (
	defaultReconnectAttempts = 3
	defaultReconnectBackoff  = time.Second
	maxReconnectBackoff      = 30 * time.Second
)

// State is the read-only view of the enable switch.
type State int

const (
	Enabled State = iota
	Disabled
)

func (s State) String() string {
	if s == Enabled {
		return "enabled"
	}
	return "disabled"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Event is a content change observed on one selection.
type Event struct {
	Selection selection.Kind `json:"selection"`
	Content   string         `json:"content"`
}

// Options configures a Controller.
type Options struct {
	// LoadCurrent publishes each selection's current content at startup.
	LoadCurrent bool
	// EnableClipboard and EnablePrimary choose which selections are watched.
	EnableClipboard bool
	EnablePrimary   bool
	// FilterMinSize is the byte length content must exceed to be published.
	FilterMinSize int

	// Factories overrides the backend factory per selection. Missing
	// entries use clip.New.
	Factories map[selection.Kind]clip.Factory
	// ReconnectAttempts bounds consecutive backend rebuild attempts after a
	// read failure before the watcher gives up and reports on Errors.
	ReconnectAttempts int
	// ReconnectBackoff is the initial delay between rebuild attempts; it
	// doubles up to 30s.
	ReconnectBackoff time.Duration
	// StopWhenUnsubscribed stops a watcher when it publishes while nobody
	// is subscribed. When false such changes are dropped and watching
	// continues.
	StopWhenUnsubscribed bool
	// Capacity is the per-subscriber queue length (default 16).
	Capacity int
}

// DefaultOptions watches both selections and loads their current content.
func DefaultOptions() Options {
	return Options{
		LoadCurrent:       true,
		EnableClipboard:   true,
		EnablePrimary:     true,
		ReconnectAttempts: defaultReconnectAttempts,
		ReconnectBackoff:  defaultReconnectBackoff,
		Capacity:          eventbus.DefaultCapacity,

		StopWhenUnsubscribed: true,
	}
}

func (o Options) factory(kind selection.Kind) clip.Factory {
	if f, ok := o.Factories[kind]; ok && f != nil {
		return f
	}
	return clip.New(kind)
}

func (o Options) enabled(kind selection.Kind) bool {
	switch kind {
	case selection.Clipboard:
		return o.EnableClipboard
	case selection.Primary:
		return o.EnablePrimary
	}
	return false
}

// Controller owns the watchers, the enable switch and the event bus.
type Controller struct {
	running atomic.Bool
	bus     *eventbus.Bus[Event]
	errs    chan error

	watchers map[selection.Kind]*watcher
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	once     sync.Once

	mu      sync.Mutex
	started bool
	closed  bool
}

// New builds a backend for every enabled selection. It fails with
// *BackendInitError if any requested backend cannot be built; every backend
// already built is closed in that case. No watcher runs until Start.
func New(opts Options) (*Controller, error) {
	if opts.ReconnectAttempts <= 0 {
		opts.ReconnectAttempts = 1
	}
	if opts.ReconnectBackoff <= 0 {
		opts.ReconnectBackoff = defaultReconnectBackoff
	}

	c := &Controller{
		bus:      eventbus.New[Event](opts.Capacity),
		errs:     make(chan error, len(selection.Kinds)),
		watchers: make(map[selection.Kind]*watcher),
	}
	c.running.Store(true)

	for _, kind := range selection.Kinds {
		if !opts.enabled(kind) {
			continue
		}
		factory := opts.factory(kind)
		backend, err := factory()
		if err != nil {
			for _, w := range c.watchers {
				w.backend.Close()
			}
			return nil, &BackendInitError{Selection: kind, Err: err}
		}
		c.watchers[kind] = &watcher{
			kind:    kind,
			factory: factory,
			backend: backend,
			opts:    opts,
			running: &c.running,
			bus:     c.bus,
			errs:    c.errs,
			log:     slog.With("selection", kind.String()),
		}
	}

	if len(c.watchers) == 0 {
		slog.Warn("neither clipboard nor primary selection is monitored")
	}
	return c, nil
}

// Start launches one watcher goroutine per backend. Receivers subscribed
// before Start see the startup content published with LoadCurrent. Start is a
// no-op when called twice or after Close.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.closed {
		return
	}
	c.started = true

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	for _, w := range c.watchers {
		w.alive.Store(true)
		c.wg.Add(1)
		go func(w *watcher) {
			defer c.wg.Done()
			w.run(ctx)
		}(w)
	}
}

// Subscribe returns a receiver for events published after this call.
func (c *Controller) Subscribe() *eventbus.Receiver[Event] { return c.bus.Subscribe() }

// Enable resumes publishing.
func (c *Controller) Enable() {
	c.running.Store(true)
	slog.Info("selection monitor enabled")
}

// Disable suppresses publishing. Watchers keep running.
func (c *Controller) Disable() {
	c.running.Store(false)
	slog.Info("selection monitor disabled")
}

// Toggle flips the enable switch.
func (c *Controller) Toggle() {
	for {
		cur := c.running.Load()
		if c.running.CompareAndSwap(cur, !cur) {
			slog.Info("selection monitor toggled", "state", stateOf(!cur))
			return
		}
	}
}

// IsRunning reports whether publishing is enabled.
func (c *Controller) IsRunning() bool { return c.running.Load() }

// State returns the current enable state.
func (c *Controller) State() State { return stateOf(c.running.Load()) }

func stateOf(running bool) State {
	if running {
		return Enabled
	}
	return Disabled
}

// Errors delivers a *BackendInitError for every watcher that stopped because
// its backend could not be rebuilt. The channel is closed by Close.
func (c *Controller) Errors() <-chan error { return c.errs }

// Watching reports whether a watcher for kind is alive.
func (c *Controller) Watching(kind selection.Kind) bool {
	w, ok := c.watchers[kind]
	return ok && w.alive.Load()
}

// Active returns the number of live watchers.
func (c *Controller) Active() int {
	n := 0
	for _, w := range c.watchers {
		if w.alive.Load() {
			n++
		}
	}
	return n
}

// Close stops every watcher, waits for them to exit and closes the bus.
// Backends of a controller that was never started are closed directly.
func (c *Controller) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		started := c.started
		c.mu.Unlock()

		if started {
			c.cancel()
			c.wg.Wait()
		} else {
			for _, w := range c.watchers {
				w.backend.Close()
			}
		}
		c.bus.Close()
		close(c.errs)
	})
}
