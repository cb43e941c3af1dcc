package observers

import (
	"sync"

	"github.com/raniellyferreira/redis-replicator/rdb"
	"github.com/raniellyferreira/redis-replicator/replication"
)

// Recorder keeps every event it receives. It is safe to read while a
// session is running.
type Recorder struct {
	mu         sync.Mutex
	version    int
	entities   []*rdb.Entity
	aux        []rdb.Aux
	summary    *replication.SnapshotSummary
	operations []*replication.Operation
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) PreSnapshot(version int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.version = version
	return nil
}

func (r *Recorder) Entity(e *rdb.Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities = append(r.entities, e)
	return nil
}

func (r *Recorder) Aux(aux rdb.Aux) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aux = append(r.aux, aux)
	return nil
}

func (r *Recorder) PostSnapshot(s replication.SnapshotSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary = &s
	return nil
}

func (r *Recorder) Operation(op *replication.Operation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations = append(r.operations, op)
	return nil
}

// Version returns the snapshot format version, 0 before the header
func (r *Recorder) Version() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

// Entities returns the entities received so far
func (r *Recorder) Entities() []*rdb.Entity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*rdb.Entity(nil), r.entities...)
}

// Keys returns the keys of the entities received so far, in order
func (r *Recorder) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, len(r.entities))
	for i, e := range r.entities {
		keys[i] = string(e.Key)
	}
	return keys
}

// AuxRecords returns the metadata records received so far
func (r *Recorder) AuxRecords() []rdb.Aux {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]rdb.Aux(nil), r.aux...)
}

// Summary returns the snapshot summary, false before the snapshot ended
func (r *Recorder) Summary() (replication.SnapshotSummary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.summary == nil {
		return replication.SnapshotSummary{}, false
	}
	return *r.summary, true
}

// Operations returns the operations received so far
func (r *Recorder) Operations() []*replication.Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*replication.Operation(nil), r.operations...)
}
