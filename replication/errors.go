package replication

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyStarted is returned when registering on, or running, a
	// session that has already started
	ErrAlreadyStarted = errors.New("session already started")

	// ErrSessionClosed is returned by Run on a session closed before it ran
	ErrSessionClosed = errors.New("session closed")

	// ErrEOFMarkMismatch is returned when a diskless snapshot is not
	// followed by the announced delimiter
	ErrEOFMarkMismatch = errors.New("diskless snapshot EOF mark mismatch")
)

// SessionError is a fatal session failure with the phase it happened in
type SessionError struct {
	Phase Phase
	Err   error
}

// Error implements the error interface
func (e *SessionError) Error() string {
	return fmt.Sprintf("replication failed while %s: %v", e.Phase, e.Err)
}

// Unwrap returns the wrapped error
func (e *SessionError) Unwrap() error {
	return e.Err
}
