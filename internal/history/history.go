// Package history persists an ordered log of captured records, oldest first.
//
// Records are opaque to the store: anything encoding/json can round-trip
// works. Stores are not safe for concurrent use; one owner must serialize
// calls.
package history

import (
	"context"
	"errors"
	"fmt"
)

// Store is the persistence contract shared by every history backend.
type Store[T any] interface {
	// Load returns every record in insertion order. A store that has never
	// been written to yields an empty slice.
	Load(ctx context.Context) ([]T, error)
	// Save appends records, in order, to the existing sequence.
	Save(ctx context.Context, records []T) error
	// Put appends a single record.
	Put(ctx context.Context, record T) error
	// Clear removes every record.
	Clear(ctx context.Context) error
	// ShrinkTo drops the oldest records until at most n remain.
	ShrinkTo(ctx context.Context, n int) error
	Close() error
}

var (
	// ErrBadMagic means the file is not a clipwatch history file.
	ErrBadMagic = errors.New("history: not a history file")
	// ErrUnsupportedVersion means the file was written by a newer format.
	ErrUnsupportedVersion = errors.New("history: unsupported format version")
	// ErrSealed means the file is encrypted and no passphrase was configured.
	ErrSealed = errors.New("history: file is sealed, passphrase required")
)

// IOError is a failure reading or writing the backing resource. The
// resource is left as it was before the failed operation.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("history: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// SerializationError is a failure encoding or decoding the record container.
type SerializationError struct {
	Op  string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("history: %s: %v", e.Op, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// Shrink returns the newest n records of records.
func Shrink[T any](records []T, n int) []T {
	if n < 0 {
		n = 0
	}
	if len(records) <= n {
		return records
	}
	return records[len(records)-n:]
}
