package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested record doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrUnknownBackend is returned by Open for an unsupported backend kind
	ErrUnknownBackend = errors.New("unknown store backend")
)

// CorruptionError reports a durable copy that could not be read.
// The store recovers by starting empty; the error is surfaced as a warning.
type CorruptionError struct {
	Path          string
	QuarantinedTo string // Where the unreadable copy was moved, if anywhere
	Cause         error
}

func (e *CorruptionError) Error() string {
	if e.QuarantinedTo != "" {
		return fmt.Sprintf("record store %s is corrupt (moved to %s): %v", e.Path, e.QuarantinedTo, e.Cause)
	}
	return fmt.Sprintf("record store %s is corrupt: %v", e.Path, e.Cause)
}

func (e *CorruptionError) Unwrap() error {
	return e.Cause
}
