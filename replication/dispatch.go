package replication

import (
	"time"

	"go.uber.org/atomic"

	"github.com/raniellyferreira/redis-replicator/rdb"
)

// dispatcher fans decoded records out to the registered observers. It
// implements rdb.Handler for the snapshot phase.
type dispatcher struct {
	observers []Observer
	filters   []Filter
	opFilters []OperationFilter
	logger    Logger
	metrics   MetricsCollector

	cur   *rdb.Cursor
	start int64 // cursor offset of the snapshot header

	// Counters are read concurrently by Session.Stats
	entities atomic.Int64
	filtered atomic.Int64
	ops      atomic.Int64
	summary  SnapshotSummary
}

func (d *dispatcher) OnHeader(version int) error {
	for _, o := range d.observers {
		if err := o.PreSnapshot(version); err != nil {
			return err
		}
	}
	return nil
}

func (d *dispatcher) OnDatabase(index int) error {
	d.logger.Debug("Snapshot database", "db", index)
	return nil
}

func (d *dispatcher) OnAux(aux rdb.Aux) error {
	for _, o := range d.observers {
		if err := o.Aux(aux); err != nil {
			return err
		}
	}
	return nil
}

func (d *dispatcher) OnEntity(e *rdb.Entity) error {
	for _, f := range d.filters {
		if !f.Accept(e) {
			d.filtered.Inc()
			return nil
		}
	}
	d.entities.Inc()
	d.metrics.RecordEntity(e.Kind().String())
	for _, o := range d.observers {
		if err := o.Entity(e); err != nil {
			return err
		}
	}
	return nil
}

func (d *dispatcher) OnEnd(res rdb.Result) error {
	d.summary.Version = res.Version
	d.summary.Checksum = res.Checksum
	d.summary.Computed = res.Computed
	d.summary.Mismatch = res.Mismatch
	d.summary.Entities = int(d.entities.Load())
	d.summary.Filtered = int(d.filtered.Load())
	if d.cur != nil {
		d.summary.Bytes = d.cur.Offset() - d.start
	}
	for _, o := range d.observers {
		if err := o.PostSnapshot(d.summary); err != nil {
			return err
		}
	}
	return nil
}

// operation dispatches one decoded operation. It returns false when a
// filter dropped it.
func (d *dispatcher) operation(op *Operation) (bool, error) {
	for _, f := range d.opFilters {
		if !f.AcceptOperation(op) {
			return false, nil
		}
	}
	start := time.Now()
	for _, o := range d.observers {
		if err := o.Operation(op); err != nil {
			return true, err
		}
	}
	d.ops.Inc()
	d.metrics.RecordCommandProcessed(op.Name, time.Since(start))
	return true, nil
}
