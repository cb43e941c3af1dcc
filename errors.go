package replicator

import (
	"errors"
	"fmt"

	"github.com/raniellyferreira/redis-replicator/replication"
)

// Error types for specific failure scenarios
var (
	// ErrInvalidConfig indicates invalid configuration options
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrClosed indicates the replicator has been closed
	ErrClosed = errors.New("replicator is closed")

	// ErrAlreadyStarted indicates registration or Run after Run was called
	ErrAlreadyStarted = replication.ErrAlreadyStarted
)

// SyncError represents a replication failure with the phase it ended in
type SyncError struct {
	Phase string // "connecting", "receiving-snapshot", "streaming-operations"
	Err   error
}

// Error implements the error interface
func (e *SyncError) Error() string {
	return fmt.Sprintf("sync error in phase %s: %v", e.Phase, e.Err)
}

// Unwrap returns the wrapped error
func (e *SyncError) Unwrap() error {
	return e.Err
}

// ConnectionError represents a connection-related error
type ConnectionError struct {
	Addr string
	Err  error
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error to %s: %v", e.Addr, e.Err)
}

// Unwrap returns the wrapped error
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ProtocolError represents a malformed operation stream
type ProtocolError struct {
	Message string
	Offset  int64 // replication offset of the last complete operation
	Err     error
}

// Error implements the error interface
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error at offset %d: %s", e.Offset, e.Message)
}

// Unwrap returns the wrapped error
func (e *ProtocolError) Unwrap() error {
	return e.Err
}
