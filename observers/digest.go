package observers

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/raniellyferreira/redis-replicator/rdb"
	"github.com/raniellyferreira/redis-replicator/replication"
)

// Digest computes a keyspace digest over snapshot entities. The digest does
// not depend on key order, nor on the member order of sets, sorted sets and
// hashes, so two snapshots of the same dataset written with different
// encodings digest the same. Expiry times are included; eviction metadata
// is not.
type Digest struct {
	replication.NopObserver

	mu    sync.Mutex
	sum   uint64
	count int64
}

// NewDigest creates an empty Digest
func NewDigest() *Digest {
	return &Digest{}
}

func (d *Digest) Entity(e *rdb.Entity) error {
	h := EntityDigest(e)
	d.mu.Lock()
	d.sum += h
	d.count++
	d.mu.Unlock()
	return nil
}

// Sum returns the digest of the entities seen so far
func (d *Digest) Sum() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sum
}

// Count returns the number of entities digested
func (d *Digest) Count() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// EntityDigest hashes one entity: database, key, kind, expiry and value
func EntityDigest(e *rdb.Entity) uint64 {
	h := xxhash.New()
	var buf [binary.MaxVarintLen64]byte

	writeInt := func(v int64) {
		n := binary.PutVarint(buf[:], v)
		_, _ = h.Write(buf[:n])
	}
	writeBytes := func(p []byte) {
		writeInt(int64(len(p)))
		_, _ = h.Write(p)
	}

	writeInt(int64(e.DB))
	writeBytes(e.Key)
	writeInt(int64(e.Kind()))
	if e.Expiry != nil {
		writeInt(e.Expiry.UnixMilli())
	} else {
		writeInt(-1)
	}
	writeInt(int64(valueDigest(e.Value)))
	return h.Sum64()
}

func valueDigest(v rdb.Value) uint64 {
	switch val := v.(type) {
	case rdb.StringValue:
		return xxhash.Sum64(val.Data)

	case rdb.ListValue:
		h := xxhash.New()
		for _, el := range val.Elements {
			writeLenPrefixed(h, el)
		}
		return h.Sum64()

	case rdb.SetValue:
		var sum uint64
		for _, m := range val.Members {
			sum += xxhash.Sum64(m)
		}
		return sum

	case rdb.SortedSetValue:
		var sum uint64
		for _, m := range val.Members {
			h := xxhash.New()
			writeLenPrefixed(h, m.Member)
			var score [8]byte
			binary.LittleEndian.PutUint64(score[:], math.Float64bits(m.Score))
			_, _ = h.Write(score[:])
			sum += h.Sum64()
		}
		return sum

	case rdb.HashValue:
		var sum uint64
		for _, f := range val.Fields {
			h := xxhash.New()
			writeLenPrefixed(h, f.Field)
			writeLenPrefixed(h, f.Value)
			if f.Expiry != nil {
				var exp [8]byte
				binary.LittleEndian.PutUint64(exp[:], uint64(f.Expiry.UnixMilli()))
				_, _ = h.Write(exp[:])
			}
			sum += h.Sum64()
		}
		return sum

	case *rdb.StreamValue:
		h := xxhash.New()
		for _, entry := range val.Entries {
			var id [16]byte
			binary.BigEndian.PutUint64(id[:8], entry.ID.Ms)
			binary.BigEndian.PutUint64(id[8:], entry.ID.Seq)
			_, _ = h.Write(id[:])
			for _, f := range entry.Fields {
				writeLenPrefixed(h, f.Field)
				writeLenPrefixed(h, f.Value)
			}
		}
		return h.Sum64()

	case *rdb.ModuleValue:
		h := xxhash.New()
		var id [8]byte
		binary.BigEndian.PutUint64(id[:], val.ID)
		_, _ = h.Write(id[:])
		for _, f := range val.Fields {
			var word [8]byte
			binary.BigEndian.PutUint64(word[:], f.Int^math.Float64bits(f.Float))
			_, _ = h.Write([]byte{byte(f.Kind)})
			_, _ = h.Write(word[:])
			writeLenPrefixed(h, f.String)
		}
		return h.Sum64()
	}
	return 0
}

func writeLenPrefixed(h *xxhash.Digest, p []byte) {
	var n [binary.MaxVarintLen64]byte
	_, _ = h.Write(n[:binary.PutUvarint(n[:], uint64(len(p)))])
	_, _ = h.Write(p)
}
