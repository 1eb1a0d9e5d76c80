package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"go.klb.dev/clipwatch/internal/clip"
	"go.klb.dev/clipwatch/internal/eventbus"
	"go.klb.dev/clipwatch/internal/selection"
)

// watcher follows one selection. Everything except alive is owned by the
// goroutine running run.
type watcher struct {
	kind    selection.Kind
	factory clip.Factory
	backend clip.Backend
	opts    Options
	running *atomic.Bool
	bus     *eventbus.Bus[Event]
	errs    chan<- error
	log     *slog.Logger

	alive atomic.Bool
	last  string
}

func (w *watcher) run(ctx context.Context) {
	defer w.alive.Store(false)
	defer func() {
		if w.backend != nil {
			w.backend.Close()
		}
	}()

	w.log.Info("watching selection", "backend", w.backend.Name())

	if w.opts.LoadCurrent && !w.loadCurrent() {
		return
	}

	for {
		curr, err := w.backend.LoadWait(ctx)
		if ctx.Err() != nil {
			w.log.Debug("watcher stopped")
			return
		}
		if err != nil {
			w.log.Error("selection read failed, restarting backend",
				"err", &BackendReadError{Selection: w.kind, Err: err})
			w.backend.Close()
			w.backend = nil
			if !w.reconnect(ctx) {
				return
			}
			continue
		}
		if !w.observe(curr) {
			return
		}
	}
}

// loadCurrent publishes the selection's present content, which becomes the
// tracked value once a receiver has it.
func (w *watcher) loadCurrent() bool {
	text, err := w.backend.Load()
	if err != nil {
		w.log.Warn("could not load current selection", "err", err)
		return true
	}
	if len(text) <= w.opts.FilterMinSize {
		return true
	}
	return w.publish(text)
}

// observe applies the change filter to content returned by LoadWait. It
// returns false when the watcher should stop.
func (w *watcher) observe(curr string) bool {
	if !w.running.Load() {
		w.log.Debug("monitor disabled, change ignored")
		return true
	}
	if len(curr) <= w.opts.FilterMinSize || curr == w.last {
		return true
	}
	return w.publish(curr)
}

// publish broadcasts content. Only delivered content becomes last, so a
// change nobody received is published again when it reappears.
func (w *watcher) publish(content string) bool {
	ev := Event{Selection: w.kind, Content: content}
	n, err := w.bus.Publish(ev)
	switch {
	case err == nil:
		w.last = content
		logEvent(w.log, ev, n)
		return true
	case errors.Is(err, eventbus.ErrNoSubscribers) && !w.opts.StopWhenUnsubscribed:
		w.log.Debug("no subscribers, change dropped")
		return true
	default:
		w.log.Info("event bus unavailable, stopping watcher", "err", err)
		return false
	}
}

// reconnect rebuilds the backend with exponential back-off. After
// ReconnectAttempts consecutive failures it reports a *BackendInitError on the
// controller's error channel and returns false.
func (w *watcher) reconnect(ctx context.Context) bool {
	delay := w.opts.ReconnectBackoff
	var lastErr error
	for attempt := 1; attempt <= w.opts.ReconnectAttempts; attempt++ {
		b, err := w.factory()
		if err == nil {
			w.backend = b
			w.log.Info("selection backend restarted", "backend", b.Name(), "attempt", attempt)
			return true
		}
		lastErr = err
		if attempt == w.opts.ReconnectAttempts {
			break
		}
		w.log.Warn("selection backend restart failed", "err", err, "attempt", attempt, "retry_in", delay)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		if delay < maxReconnectBackoff {
			delay *= 2
		}
	}

	initErr := &BackendInitError{Selection: w.kind, Err: lastErr}
	w.log.Error("giving up on selection", "err", initErr)
	select {
	case w.errs <- initErr:
	default:
	}
	return false
}
