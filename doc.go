// Package replicator mirrors a Redis dataset as a stream of typed events.
//
// A Replicator attaches to a snapshot file (optionally an AOF with an RDB
// preamble, optionally gzip or zstd compressed) or to a live master. It
// decodes the RDB snapshot, verifies its checksum, then keeps decoding the
// write operations that follow it. Every key and operation is handed to the
// registered observers; nothing is stored.
//
// Basic usage:
//
//	r, err := replicator.New(
//		replicator.WithMaster("localhost:6379"),
//		replicator.WithDatabases([]int{0}),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer r.Close()
//
//	rec := observers.NewRecorder()
//	r.AddObserver(rec)
//	r.OnClose(func() { log.Println("replication ended") })
//
//	if err := r.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// The library supports:
//
//   - RDB versions 1 to 12, with every value encoding
//   - Diskless and disk-backed full resynchronization
//   - Entity filters by database, type, key prefix, glob or Lua script
//   - Operation filters by command and database
//   - Configurable checksum verification
//   - Structured logging with logrus and Prometheus metrics
//
// For the command line tool, see cmd/rdb-replicator.
package replicator
