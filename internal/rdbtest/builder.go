// Package rdbtest writes RDB snapshots and RESP frames for tests.
package rdbtest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc64"
	"math"
	"strconv"
	"time"
)

var jones = crc64.MakeTable(0x95ac9329ac4bc9b5)

// CRC64 returns the Redis CRC-64 of p
func CRC64(p []byte) uint64 {
	return ^crc64.Update(^uint64(0), jones, p)
}

// Pair is a field/value or member/score pair
type Pair struct {
	Key   string
	Value string
}

// ZMember is a sorted set member
type ZMember struct {
	Member string
	Score  float64
}

// Builder accumulates a snapshot body. Methods append and return the
// builder so calls can be chained.
type Builder struct {
	buf     bytes.Buffer
	version int
	keys    int
}

// New starts a snapshot with the given format version
func New(version int) *Builder {
	b := &Builder{version: version}
	fmt.Fprintf(&b.buf, "REDIS%04d", version)
	return b
}

// Keys returns the number of entities written so far
func (b *Builder) Keys() int {
	return b.keys
}

// Len returns the number of bytes written so far
func (b *Builder) Len() int {
	return b.buf.Len()
}

// Raw appends bytes verbatim
func (b *Builder) Raw(p []byte) *Builder {
	b.buf.Write(p)
	return b
}

// Aux appends an AUX field
func (b *Builder) Aux(key, value string) *Builder {
	b.buf.WriteByte(0xFA)
	b.str(key)
	b.str(value)
	return b
}

// SelectDB appends a SELECTDB opcode
func (b *Builder) SelectDB(db int) *Builder {
	b.buf.WriteByte(0xFE)
	b.length(uint64(db))
	return b
}

// ResizeDB appends a RESIZEDB hint
func (b *Builder) ResizeDB(size, expires uint64) *Builder {
	b.buf.WriteByte(0xFB)
	b.length(size)
	b.length(expires)
	return b
}

// ExpireMs sets a millisecond expiry on the next key
func (b *Builder) ExpireMs(t time.Time) *Builder {
	b.buf.WriteByte(0xFC)
	b.u64(uint64(t.UnixMilli()))
	return b
}

// Expire sets a second resolution expiry on the next key
func (b *Builder) Expire(t time.Time) *Builder {
	b.buf.WriteByte(0xFD)
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(t.Unix()))
	b.buf.Write(tmp[:])
	return b
}

// Idle sets the LRU idle time of the next key
func (b *Builder) Idle(secs uint64) *Builder {
	b.buf.WriteByte(0xF8)
	b.length(secs)
	return b
}

// Freq sets the LFU counter of the next key
func (b *Builder) Freq(f byte) *Builder {
	b.buf.WriteByte(0xF9)
	b.buf.WriteByte(f)
	return b
}

// Function appends a FUNCTION2 library payload
func (b *Builder) Function(code string) *Builder {
	b.buf.WriteByte(0xF5)
	b.str(code)
	return b
}

// SlotInfo appends a SLOT_INFO record
func (b *Builder) SlotInfo(slot, size, expires uint64) *Builder {
	b.buf.WriteByte(0xF4)
	b.length(slot)
	b.length(size)
	b.length(expires)
	return b
}

// ModuleAux appends a MODULE_AUX record with one unsigned field
func (b *Builder) ModuleAux(id uint64, v uint64) *Builder {
	b.buf.WriteByte(0xF7)
	b.length(id)
	b.length(2) // when opcode
	b.length(2) // when
	b.length(2)
	b.length(v)
	b.length(0)
	return b
}

// String appends a raw string key
func (b *Builder) String(key, value string) *Builder {
	b.entity(0, key)
	b.str(value)
	return b
}

// IntString appends a string key whose value is stored integer encoded.
// v must fit in 32 bits.
func (b *Builder) IntString(key string, v int64) *Builder {
	b.entity(0, key)
	b.intStr(v)
	return b
}

// LZFString appends a string key whose value is stored LZF compressed
func (b *Builder) LZFString(key, value string) *Builder {
	b.entity(0, key)
	c := LZFCompress([]byte(value))
	b.buf.WriteByte(0xC3)
	b.length(uint64(len(c)))
	b.length(uint64(len(value)))
	b.buf.Write(c)
	return b
}

// List appends a plain list
func (b *Builder) List(key string, elems ...string) *Builder {
	b.entity(1, key)
	b.length(uint64(len(elems)))
	for _, e := range elems {
		b.str(e)
	}
	return b
}

// Set appends a plain set
func (b *Builder) Set(key string, members ...string) *Builder {
	b.entity(2, key)
	b.length(uint64(len(members)))
	for _, m := range members {
		b.str(m)
	}
	return b
}

// ZSet appends a sorted set with text scores
func (b *Builder) ZSet(key string, members ...ZMember) *Builder {
	b.entity(3, key)
	b.length(uint64(len(members)))
	for _, m := range members {
		b.str(m.Member)
		switch {
		case math.IsNaN(m.Score):
			b.buf.WriteByte(253)
		case math.IsInf(m.Score, 1):
			b.buf.WriteByte(254)
		case math.IsInf(m.Score, -1):
			b.buf.WriteByte(255)
		default:
			s := strconv.FormatFloat(m.Score, 'g', 17, 64)
			b.buf.WriteByte(byte(len(s)))
			b.buf.WriteString(s)
		}
	}
	return b
}

// ZSet2 appends a sorted set with binary scores
func (b *Builder) ZSet2(key string, members ...ZMember) *Builder {
	b.entity(5, key)
	b.length(uint64(len(members)))
	for _, m := range members {
		b.str(m.Member)
		b.u64(math.Float64bits(m.Score))
	}
	return b
}

// Hash appends a plain hash
func (b *Builder) Hash(key string, fields ...Pair) *Builder {
	b.entity(4, key)
	b.length(uint64(len(fields)))
	for _, f := range fields {
		b.str(f.Key)
		b.str(f.Value)
	}
	return b
}

// Module appends a module2 value with the given unsigned and string fields
func (b *Builder) Module(key string, id uint64, num uint64, s string) *Builder {
	b.entity(7, key)
	b.length(id)
	b.length(2)
	b.length(num)
	b.length(5)
	b.str(s)
	b.length(4)
	b.u64(math.Float64bits(1.5))
	b.length(0)
	return b
}

// HashZipmap appends a hash stored as a zipmap
func (b *Builder) HashZipmap(key string, fields ...Pair) *Builder {
	b.entity(9, key)
	b.blob(Zipmap(fields...))
	return b
}

// ListZiplist appends a list stored as a ziplist
func (b *Builder) ListZiplist(key string, elems ...string) *Builder {
	b.entity(10, key)
	b.blob(Ziplist(elems...))
	return b
}

// IntSet appends a set stored as an intset
func (b *Builder) IntSet(key string, width int, members ...int64) *Builder {
	b.entity(11, key)
	b.blob(Intset(width, members...))
	return b
}

// ZSetZiplist appends a sorted set stored as a ziplist
func (b *Builder) ZSetZiplist(key string, members ...ZMember) *Builder {
	b.entity(12, key)
	b.blob(Ziplist(zflat(members)...))
	return b
}

// HashZiplist appends a hash stored as a ziplist
func (b *Builder) HashZiplist(key string, fields ...Pair) *Builder {
	b.entity(13, key)
	b.blob(Ziplist(flat(fields)...))
	return b
}

// Quicklist appends a list stored as a quicklist of ziplists, one node
// per group
func (b *Builder) Quicklist(key string, nodes ...[]string) *Builder {
	b.entity(14, key)
	b.length(uint64(len(nodes)))
	for _, n := range nodes {
		b.blob(Ziplist(n...))
	}
	return b
}

// HashListpack appends a hash stored as a listpack
func (b *Builder) HashListpack(key string, fields ...Pair) *Builder {
	b.entity(16, key)
	b.blob(Listpack(flat(fields)...))
	return b
}

// ZSetListpack appends a sorted set stored as a listpack
func (b *Builder) ZSetListpack(key string, members ...ZMember) *Builder {
	b.entity(17, key)
	b.blob(Listpack(zflat(members)...))
	return b
}

// Quicklist2 appends a list stored as a quicklist of listpack nodes. A
// node holding a single element longer than 32 bytes is stored plain.
func (b *Builder) Quicklist2(key string, nodes ...[]string) *Builder {
	b.entity(18, key)
	b.length(uint64(len(nodes)))
	for _, n := range nodes {
		if len(n) == 1 && len(n[0]) > 32 {
			b.length(1)
			b.str(n[0])
			continue
		}
		b.length(2)
		b.blob(Listpack(n...))
	}
	return b
}

// SetListpack appends a set stored as a listpack
func (b *Builder) SetListpack(key string, members ...string) *Builder {
	b.entity(20, key)
	b.blob(Listpack(members...))
	return b
}

// ExpiringField is a hash field with an absolute expiration time in unix
// milliseconds, 0 for none
type ExpiringField struct {
	Key, Value string
	ExpireMs   uint64
}

// noFieldExpiry is the minimum expiration written when no field expires
const noFieldExpiry = 1 << 48

// HashMetadata appends a hash with field expiration stored as a hashtable.
// Field TTLs are written relative to the minimum expiration.
func (b *Builder) HashMetadata(key string, fields ...ExpiringField) *Builder {
	b.entity(24, key)
	minExpire := minFieldExpiry(fields)
	b.u64(minExpire)
	b.length(uint64(len(fields)))
	for _, f := range fields {
		var ttl uint64
		if f.ExpireMs != 0 {
			ttl = f.ExpireMs - minExpire + 1
		}
		b.length(ttl)
		b.str(f.Key)
		b.str(f.Value)
	}
	return b
}

// HashListpackEx appends a hash with field expiration stored as a listpack
// of field, value, ttl triples
func (b *Builder) HashListpackEx(key string, fields ...ExpiringField) *Builder {
	b.entity(25, key)
	b.u64(minFieldExpiry(fields))
	items := make([]string, 0, 3*len(fields))
	for _, f := range fields {
		items = append(items, f.Key, f.Value, strconv.FormatUint(f.ExpireMs, 10))
	}
	b.blob(Listpack(items...))
	return b
}

func minFieldExpiry(fields []ExpiringField) uint64 {
	m := uint64(noFieldExpiry)
	for _, f := range fields {
		if f.ExpireMs != 0 && f.ExpireMs < m {
			m = f.ExpireMs
		}
	}
	return m
}

// StreamEntry is an entry written by Stream. Deleted entries stay in the
// node with the deleted flag set and are not counted in the stream length.
type StreamEntry struct {
	Ms, Seq uint64
	Fields  []Pair
	Deleted bool
}

// Stream appends a stream (encoding 3) in a single node using the first
// entry as master, with one consumer group "g" that has every live entry
// pending for consumer "c"
func (b *Builder) Stream(key string, entries ...StreamEntry) *Builder {
	return b.stream(21, key, entries)
}

// StreamV2 appends a stream in encoding 2, which has no consumer active time
func (b *Builder) StreamV2(key string, entries ...StreamEntry) *Builder {
	return b.stream(19, key, entries)
}

// StreamV1 appends a stream in encoding 1, which has neither the first and
// max deleted IDs nor the group entries-read counter
func (b *Builder) StreamV1(key string, entries ...StreamEntry) *Builder {
	return b.stream(15, key, entries)
}

func (b *Builder) stream(tag byte, key string, entries []StreamEntry) *Builder {
	b.entity(tag, key)
	if len(entries) == 0 {
		b.length(0)
	} else {
		b.length(1)
		b.rawIDString(entries[0].Ms, entries[0].Seq)
		b.blob(Listpack(streamNodeItems(entries)...))
	}

	var live []StreamEntry
	for _, e := range entries {
		if !e.Deleted {
			live = append(live, e)
		}
	}
	var last, first StreamEntry
	if len(entries) > 0 {
		last = entries[len(entries)-1]
	}
	if len(live) > 0 {
		first = live[0]
	}
	b.length(uint64(len(live)))
	b.length(last.Ms)
	b.length(last.Seq)
	if tag >= 19 {
		b.length(first.Ms)
		b.length(first.Seq)
		var maxDeleted StreamEntry
		for _, e := range entries {
			if e.Deleted {
				maxDeleted = e
			}
		}
		b.length(maxDeleted.Ms)
		b.length(maxDeleted.Seq)
		b.length(uint64(len(entries)))
	}

	b.length(1)
	b.str("g")
	b.length(last.Ms)
	b.length(last.Seq)
	if tag >= 19 {
		b.length(uint64(len(entries))) // entries read
	}
	b.length(uint64(len(live)))
	for _, e := range live {
		b.rawID(e.Ms, e.Seq)
		b.u64(1700000000000)
		b.length(1)
	}
	b.length(1)
	b.str("c")
	b.u64(1700000000000)
	if tag >= 21 {
		b.u64(1700000000001)
	}
	b.length(uint64(len(live)))
	for _, e := range live {
		b.rawID(e.Ms, e.Seq)
	}
	return b
}

func streamNodeItems(entries []StreamEntry) []string {
	master := entries[0]
	deleted := 0
	for _, e := range entries {
		if e.Deleted {
			deleted++
		}
	}
	items := []string{
		strconv.Itoa(len(entries) - deleted), strconv.Itoa(deleted), strconv.Itoa(len(master.Fields)),
	}
	for _, f := range master.Fields {
		items = append(items, f.Key)
	}
	items = append(items, "0")

	for _, e := range entries {
		same := len(e.Fields) == len(master.Fields)
		for i := 0; same && i < len(e.Fields); i++ {
			same = e.Fields[i].Key == master.Fields[i].Key
		}
		flags := 0
		if same {
			flags |= 2
		}
		if e.Deleted {
			flags |= 1
		}
		n := 0
		items = append(items,
			strconv.Itoa(flags),
			strconv.FormatUint(e.Ms-master.Ms, 10),
			strconv.FormatUint(e.Seq-master.Seq, 10))
		n += 3
		if same {
			for _, f := range e.Fields {
				items = append(items, f.Value)
			}
			n += len(e.Fields)
		} else {
			items = append(items, strconv.Itoa(len(e.Fields)))
			for _, f := range e.Fields {
				items = append(items, f.Key, f.Value)
			}
			n += 1 + 2*len(e.Fields)
		}
		items = append(items, strconv.Itoa(n))
	}
	return items
}

// Body returns the bytes written so far without the EOF opcode
func (b *Builder) Body() []byte {
	return append([]byte(nil), b.buf.Bytes()...)
}

// Bytes terminates the snapshot with EOF and, for versions with a
// checksum, the correct trailing CRC-64
func (b *Builder) Bytes() []byte {
	out := append(b.Body(), 0xFF)
	if b.version >= 5 {
		out = binary.LittleEndian.AppendUint64(out, CRC64(out))
	}
	return out
}

// BytesWithChecksum terminates the snapshot with EOF and the given trailer
func (b *Builder) BytesWithChecksum(sum uint64) []byte {
	out := append(b.Body(), 0xFF)
	return binary.LittleEndian.AppendUint64(out, sum)
}

func (b *Builder) entity(t byte, key string) {
	b.keys++
	b.buf.WriteByte(t)
	b.str(key)
}

func (b *Builder) length(n uint64) {
	switch {
	case n < 1<<6:
		b.buf.WriteByte(byte(n))
	case n < 1<<14:
		b.buf.WriteByte(0x40 | byte(n>>8))
		b.buf.WriteByte(byte(n))
	case n <= math.MaxUint32:
		b.buf.WriteByte(0x80)
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], uint32(n))
		b.buf.Write(tmp[:])
	default:
		b.buf.WriteByte(0x81)
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], n)
		b.buf.Write(tmp[:])
	}
}

func (b *Builder) str(s string) {
	b.length(uint64(len(s)))
	b.buf.WriteString(s)
}

func (b *Builder) blob(p []byte) {
	b.length(uint64(len(p)))
	b.buf.Write(p)
}

func (b *Builder) intStr(v int64) {
	switch {
	case v >= math.MinInt8 && v <= math.MaxInt8:
		b.buf.WriteByte(0xC0)
		b.buf.WriteByte(byte(int8(v)))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		b.buf.WriteByte(0xC1)
		var tmp [2]byte
		binary.LittleEndian.PutUint16(tmp[:], uint16(int16(v)))
		b.buf.Write(tmp[:])
	default:
		b.buf.WriteByte(0xC2)
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(int32(v)))
		b.buf.Write(tmp[:])
	}
}

func (b *Builder) u64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.buf.Write(tmp[:])
}

func (b *Builder) rawIDString(ms, seq uint64) {
	var id [16]byte
	binary.BigEndian.PutUint64(id[0:8], ms)
	binary.BigEndian.PutUint64(id[8:16], seq)
	b.blob(id[:])
}

func (b *Builder) rawID(ms, seq uint64) {
	var id [16]byte
	binary.BigEndian.PutUint64(id[0:8], ms)
	binary.BigEndian.PutUint64(id[8:16], seq)
	b.buf.Write(id[:])
}

func flat(fields []Pair) []string {
	out := make([]string, 0, 2*len(fields))
	for _, f := range fields {
		out = append(out, f.Key, f.Value)
	}
	return out
}

func zflat(members []ZMember) []string {
	out := make([]string, 0, 2*len(members))
	for _, m := range members {
		out = append(out, m.Member, strconv.FormatFloat(m.Score, 'g', -1, 64))
	}
	return out
}
