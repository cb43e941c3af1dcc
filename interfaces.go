package replicator

import (
	"github.com/raniellyferreira/redis-replicator/replication"
)

// Field represents a structured log field
type Field struct {
	Key   string
	Value interface{}
}

// Logger interface for custom logging implementations
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// MetricsCollector receives replication metrics. See metrics.Collector for
// a Prometheus implementation.
type MetricsCollector = replication.MetricsCollector

// Observer receives decoded entities and operations
type Observer = replication.Observer

// NopObserver implements Observer with no-ops; embed it to override only
// some methods
type NopObserver = replication.NopObserver

// ReplicationStats provides replication statistics
type ReplicationStats struct {
	Source     string
	Phase      replication.Phase
	Entities   int64
	Filtered   int64
	Operations int64
	Offset     int64
	BytesRead  int64

	// Snapshot is set once the snapshot phase has completed
	Snapshot replication.SnapshotSummary
}
