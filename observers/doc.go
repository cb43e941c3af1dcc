// Package observers provides ready-made replication observers: a Recorder
// that keeps everything it sees, LoadStats for batched snapshot progress
// logs, Digest for an order-independent keyspace digest and JSONWriter for
// one JSON document per entity or operation.
package observers
