package observers

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/samber/lo"
	"go.uber.org/atomic"

	"github.com/raniellyferreira/redis-replicator/rdb"
	"github.com/raniellyferreira/redis-replicator/replication"
)

const (
	// DefaultBatchSize is the number of keys between progress logs
	DefaultBatchSize = 10000

	// DefaultLogInterval is the longest time between progress logs
	DefaultLogInterval = 5 * time.Second
)

// DatabaseStats counts the keys of one database
type DatabaseStats struct {
	Keys       int64
	Expires    int64 // keys carrying an expiry
	TypeCounts map[string]int64
}

// LoadStats counts snapshot keys per database and type, and logs progress
// every BatchSize keys or LogInterval, whichever comes first
type LoadStats struct {
	replication.NopObserver

	BatchSize   int
	LogInterval time.Duration

	logger    replication.Logger
	processed atomic.Int64

	mu        sync.Mutex
	databases map[int]*DatabaseStats
	started   time.Time
	lastLog   time.Time
	sinceLog  int
}

// NewLoadStats creates LoadStats logging to logger
func NewLoadStats(logger replication.Logger) *LoadStats {
	if logger == nil {
		logger = replication.NewLogrusLogger(nil)
	}
	now := time.Now()
	return &LoadStats{
		BatchSize:   DefaultBatchSize,
		LogInterval: DefaultLogInterval,
		logger:      logger,
		databases:   make(map[int]*DatabaseStats),
		started:     now,
		lastLog:     now,
	}
}

func (s *LoadStats) PreSnapshot(version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = time.Now()
	s.lastLog = s.started
	s.logger.Info("Snapshot load started", "version", version)
	return nil
}

func (s *LoadStats) Entity(e *rdb.Entity) error {
	s.RecordKey(e.DB, e.Kind().String())
	if e.Expiry != nil {
		s.mu.Lock()
		s.databases[e.DB].Expires++
		s.mu.Unlock()
	}
	return nil
}

func (s *LoadStats) PostSnapshot(summary replication.SnapshotSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Info("Snapshot load completed",
		"keys", s.processed.Load(),
		"filtered", summary.Filtered,
		"databases", len(s.databases),
		"size", datasize.ByteSize(summary.Bytes).HumanReadable(),
		"verified", summary.Verified(),
		"duration", time.Since(s.started).Round(time.Millisecond))
	return nil
}

// RecordKey counts one key of the given kind in db
func (s *LoadStats) RecordKey(db int, kind string) {
	s.processed.Inc()

	s.mu.Lock()
	defer s.mu.Unlock()

	ds := s.databases[db]
	if ds == nil {
		ds = &DatabaseStats{TypeCounts: make(map[string]int64)}
		s.databases[db] = ds
	}
	ds.Keys++
	ds.TypeCounts[kind]++
	s.sinceLog++

	if s.sinceLog >= s.BatchSize || time.Since(s.lastLog) >= s.LogInterval {
		s.logger.Info("Snapshot load progress",
			"db", db,
			"keys", ds.Keys,
			"types", formatTypeCounts(ds.TypeCounts),
			"total", s.processed.Load())
		s.sinceLog = 0
		s.lastLog = time.Now()
	}
}

// Processed returns the number of keys counted
func (s *LoadStats) Processed() int64 {
	return s.processed.Load()
}

// Database returns a copy of the counts of db
func (s *LoadStats) Database(db int) (DatabaseStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.databases[db]
	if !ok {
		return DatabaseStats{}, false
	}
	return DatabaseStats{Keys: ds.Keys, Expires: ds.Expires, TypeCounts: lo.Assign(ds.TypeCounts)}, true
}

// Databases returns the indexes of the databases seen, sorted
func (s *LoadStats) Databases() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	dbs := lo.Keys(s.databases)
	sort.Ints(dbs)
	return dbs
}

// formatTypeCounts renders counts as "hash:1,string:3", sorted by type
func formatTypeCounts(counts map[string]int64) string {
	types := lo.Keys(counts)
	sort.Strings(types)
	parts := lo.Map(types, func(t string, _ int) string {
		return fmt.Sprintf("%s:%d", t, counts[t])
	})
	return strings.Join(parts, ",")
}
