package replication

import "time"

// Logger interface for replication logging
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// MetricsCollector interface for replication metrics
type MetricsCollector interface {
	// RecordSyncDuration records the time taken to receive the snapshot
	RecordSyncDuration(duration time.Duration)

	// RecordEntity records a dispatched snapshot entity of the given kind
	RecordEntity(kind string)

	// RecordCommandProcessed records a dispatched operation with the time
	// observers took to handle it
	RecordCommandProcessed(cmd string, duration time.Duration)

	// RecordNetworkBytes records bytes read from the source
	RecordNetworkBytes(bytes int64)

	// RecordReconnection records a successful master connection
	RecordReconnection()

	// RecordError records a session failure by phase
	RecordError(errorType string)
}

// nopLogger discards everything
type nopLogger struct{}

func (nopLogger) Debug(msg string, fields ...interface{}) {}
func (nopLogger) Info(msg string, fields ...interface{})  {}
func (nopLogger) Error(msg string, fields ...interface{}) {}

// nopMetrics discards everything
type nopMetrics struct{}

func (nopMetrics) RecordSyncDuration(time.Duration)             {}
func (nopMetrics) RecordEntity(string)                          {}
func (nopMetrics) RecordCommandProcessed(string, time.Duration) {}
func (nopMetrics) RecordNetworkBytes(int64)                     {}
func (nopMetrics) RecordReconnection()                          {}
func (nopMetrics) RecordError(string)                           {}
