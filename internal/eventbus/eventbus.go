// Package eventbus implements a bounded broadcast channel. Every receiver
// owns an independent queue of fixed capacity; publishers never block, and a
// receiver that falls behind loses its oldest undelivered values and is told
// how many on its next Recv.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultCapacity is the per-receiver queue length used by the monitor.
const DefaultCapacity = 16

var (
	// ErrClosed is returned by Publish after Close, and by Recv once the bus
	// or the receiver is closed and nothing is left to deliver.
	ErrClosed = errors.New("eventbus: closed")
	// ErrNoSubscribers is returned by Publish when no receiver exists. The
	// value is discarded.
	ErrNoSubscribers = errors.New("eventbus: no subscribers")
)

// LaggedError reports values dropped from a receiver's queue because it fell
// more than the bus capacity behind. Recv continues with the oldest value
// still queued.
type LaggedError struct {
	Missed uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("eventbus: receiver lagged, %d values dropped", e.Missed)
}

// Bus fans values out to all current receivers.
type Bus[T any] struct {
	capacity int

	mu     sync.RWMutex
	subs   map[uint64]*Receiver[T]
	nextID uint64
	closed bool
}

// New returns a Bus whose receivers queue at most capacity values.
func New[T any](capacity int) *Bus[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus[T]{
		capacity: capacity,
		subs:     make(map[uint64]*Receiver[T]),
	}
}

// Subscribe returns a receiver that sees every value published after this
// call. Subscribing to a closed bus yields a closed receiver.
func (b *Bus[T]) Subscribe() *Receiver[T] {
	r := &Receiver[T]{
		bus:    b,
		queue:  make([]T, 0, b.capacity),
		notify: make(chan struct{}, 1),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		r.closed = true
		return r
	}
	b.nextID++
	r.id = b.nextID
	b.subs[r.id] = r
	return r
}

// Publish delivers v to every receiver without blocking and returns how many
// receivers were reached.
func (b *Bus[T]) Publish(v T) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, ErrClosed
	}
	if len(b.subs) == 0 {
		return 0, ErrNoSubscribers
	}
	for _, r := range b.subs {
		r.push(v, b.capacity)
	}
	return len(b.subs), nil
}

// Receivers returns the number of live receivers.
func (b *Bus[T]) Receivers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close stops the bus. Receivers drain what they already hold, then get
// ErrClosed. Close is idempotent.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, r := range b.subs {
		r.shutdown()
		delete(b.subs, id)
	}
}

func (b *Bus[T]) unsubscribe(id uint64) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Receiver is one subscriber's queue. A Receiver must be used by a single
// goroutine.
type Receiver[T any] struct {
	bus *Bus[T]
	id  uint64

	mu     sync.Mutex
	queue  []T
	missed uint64
	closed bool
	notify chan struct{}
}

func (r *Receiver[T]) push(v T, capacity int) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if len(r.queue) >= capacity {
		copy(r.queue, r.queue[1:])
		r.queue = r.queue[:len(r.queue)-1]
		r.missed++
	}
	r.queue = append(r.queue, v)
	r.mu.Unlock()
	r.wake()
}

func (r *Receiver[T]) wake() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *Receiver[T]) shutdown() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.wake()
}

// Recv returns the next value. After an overflow it first returns a
// *LaggedError; the following call resumes with the oldest retained value.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	for {
		r.mu.Lock()
		if r.missed > 0 {
			n := r.missed
			r.missed = 0
			r.mu.Unlock()
			return zero, &LaggedError{Missed: n}
		}
		if len(r.queue) > 0 {
			v := r.queue[0]
			copy(r.queue, r.queue[1:])
			r.queue[len(r.queue)-1] = zero
			r.queue = r.queue[:len(r.queue)-1]
			r.mu.Unlock()
			return v, nil
		}
		if r.closed {
			r.mu.Unlock()
			return zero, ErrClosed
		}
		r.mu.Unlock()

		select {
		case <-r.notify:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close unsubscribes the receiver and discards anything queued.
func (r *Receiver[T]) Close() {
	r.bus.unsubscribe(r.id)
	r.mu.Lock()
	r.closed = true
	r.queue = r.queue[:0]
	r.missed = 0
	r.mu.Unlock()
	r.wake()
}
