package monitor

import (
	"fmt"

	"go.klb.dev/clipwatch/internal/selection"
)

// BackendInitError means a selection backend could not be constructed, either
// when the Controller starts or when a watcher gives up reconnecting.
type BackendInitError struct {
	Selection selection.Kind
	Err       error
}

func (e *BackendInitError) Error() string {
	return fmt.Sprintf("initialize %s backend: %v", e.Selection, e.Err)
}

func (e *BackendInitError) Unwrap() error { return e.Err }

// BackendReadError is a failure reading or waiting on a live backend. The
// watcher recovers from it by rebuilding the backend; it is only logged.
type BackendReadError struct {
	Selection selection.Kind
	Err       error
}

func (e *BackendReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Selection, e.Err)
}

func (e *BackendReadError) Unwrap() error { return e.Err }
