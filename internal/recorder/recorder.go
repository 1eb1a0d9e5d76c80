// Package recorder persists monitor events into a history store.
package recorder

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.klb.dev/clipwatch/internal/eventbus"
	"go.klb.dev/clipwatch/internal/history"
	"go.klb.dev/clipwatch/internal/monitor"
	"go.klb.dev/clipwatch/internal/selection"
)

// Entry is one captured selection change.
type Entry struct {
	ID         uuid.UUID      `json:"id"`
	Selection  selection.Kind `json:"selection"`
	Content    string         `json:"content"`
	CapturedAt time.Time      `json:"captured_at"`
}

// Recorder owns a history store and serializes every call to it.
type Recorder struct {
	mu    sync.Mutex
	store history.Store[Entry]
	max   int
	now   func() time.Time
}

// New returns a recorder that keeps at most max entries. max <= 0 keeps
// everything.
func New(store history.Store[Entry], max int) *Recorder {
	return &Recorder{store: store, max: max, now: time.Now}
}

// Run records every event from rx until ctx is done or the bus closes.
// Storage failures are logged and recording continues with the next event.
func (r *Recorder) Run(ctx context.Context, rx *eventbus.Receiver[monitor.Event]) error {
	defer rx.Close()
	for {
		ev, err := rx.Recv(ctx)
		var lagged *eventbus.LaggedError
		switch {
		case errors.As(err, &lagged):
			slog.Warn("history recorder fell behind", "missed", lagged.Missed)
			continue
		case errors.Is(err, eventbus.ErrClosed), ctx.Err() != nil:
			return nil
		case err != nil:
			return err
		}
		if _, err := r.Record(ctx, ev); err != nil {
			slog.Error("recording selection change failed", "selection", ev.Selection.String(), "err", err)
		}
	}
}

// Record stores ev as a new entry and trims the history to the configured
// maximum.
func (r *Recorder) Record(ctx context.Context, ev monitor.Event) (Entry, error) {
	e := Entry{
		ID:         uuid.New(),
		Selection:  ev.Selection,
		Content:    ev.Content,
		CapturedAt: r.now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.Put(ctx, e); err != nil {
		return Entry{}, err
	}
	if r.max > 0 {
		if err := r.store.ShrinkTo(ctx, r.max); err != nil {
			return e, err
		}
	}
	slog.Debug("selection change recorded", "id", e.ID.String(), "size_bytes", len(e.Content))
	return e, nil
}

// List returns the newest limit entries, oldest first. limit <= 0 returns
// everything.
func (r *Recorder) List(ctx context.Context, limit int) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries, err := r.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		entries = history.Shrink(entries, limit)
	}
	return entries, nil
}

// Clear removes every entry.
func (r *Recorder) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.Clear(ctx); err != nil {
		return err
	}
	slog.Info("history cleared")
	return nil
}

// SetMax changes the retention limit and trims the history right away.
func (r *Recorder) SetMax(ctx context.Context, max int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.max = max
	if max <= 0 {
		return nil
	}
	return r.store.ShrinkTo(ctx, max)
}

// Max returns the retention limit.
func (r *Recorder) Max() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.max
}

// Close closes the underlying store.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Close()
}
