package replication

import (
	"strconv"

	"github.com/raniellyferreira/redis-replicator/rdb"
)

// Observer receives everything a session decodes. Calls are made from the
// session's single worker goroutine, in on-disk and arrival order. An error
// returned by any method aborts the session.
//
// Embed NopObserver to implement only the methods you need.
type Observer interface {
	// PreSnapshot is called once the snapshot header is valid, before the
	// first entity
	PreSnapshot(version int) error

	// Entity is called for every entity accepted by all filters
	Entity(e *rdb.Entity) error

	// Aux is called for snapshot metadata records
	Aux(aux rdb.Aux) error

	// PostSnapshot is called after the snapshot footer
	PostSnapshot(summary SnapshotSummary) error

	// Operation is called for each write operation accepted by all
	// operation filters
	Operation(op *Operation) error
}

// NopObserver implements Observer with no-ops
type NopObserver struct{}

func (NopObserver) PreSnapshot(int) error              { return nil }
func (NopObserver) Entity(*rdb.Entity) error           { return nil }
func (NopObserver) Aux(rdb.Aux) error                  { return nil }
func (NopObserver) PostSnapshot(SnapshotSummary) error { return nil }
func (NopObserver) Operation(*Operation) error         { return nil }

// SnapshotSummary describes a completed snapshot phase
type SnapshotSummary struct {
	Version int
	// Checksum is the trailing checksum as stored, 0 if absent or disabled
	Checksum uint64
	// Computed is the checksum of the bytes read
	Computed uint64
	// Mismatch is set when the stored checksum was compared and differed
	Mismatch bool
	// Entities counts dispatched entities, Filtered the ones dropped
	Entities int
	Filtered int
	// Bytes is the size of the snapshot
	Bytes int64
}

// Verified reports whether the stored checksum was present and matched
func (s SnapshotSummary) Verified() bool {
	return s.Checksum != 0 && !s.Mismatch && s.Checksum == s.Computed
}

// Operation is a write command decoded from the operation stream
type Operation struct {
	Name string   // upper-cased command name
	Args [][]byte // arguments after the name
	DB   int      // database selected when the command arrived
	// Offset is the replication offset just after this operation
	Offset int64
}

// Key returns the first argument, which is the key for most commands
func (op *Operation) Key() []byte {
	if len(op.Args) == 0 {
		return nil
	}
	return op.Args[0]
}

// String returns a string representation of the operation
func (op *Operation) String() string {
	s := "db" + strconv.Itoa(op.DB) + " " + op.Name
	for _, a := range op.Args {
		s += " " + strconv.Quote(string(a))
	}
	return s
}
