// Package replication runs Redis replication sessions.
//
// A session reads a snapshot from a Source, dispatches every decoded entity
// to the registered observers, then decodes the stream of write operations
// that follows it. Sources include snapshot files, AOF files with an RDB
// preamble and live master connections:
//
//	d := replication.NewDialer("localhost:6379")
//	s := replication.NewDialSession(d.Open)
//	s.AddObserver(myObserver)
//	s.AddFilter(replication.KindFilter(rdb.KindString))
//	err := s.Run(ctx)
//
// Sessions move through the phases Connecting, ReceivingSnapshot and
// StreamingOperations, and end Closed or Failed. Decoding happens on the
// goroutine calling Run; Close and context cancellation unblock it by
// closing the source. Close hooks fire exactly once when a session ends,
// after the fault hooks of a failed session.
//
// The session supports:
//   - Authentication and TLS
//   - Diskless (EOF-delimited) and sized snapshot payloads
//   - Entity and operation filtering
//   - REPLCONF ACK heartbeats and GETACK replies
//   - Configurable checksum verification
package replication
