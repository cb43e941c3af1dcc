package observers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raniellyferreira/redis-replicator/internal/rdbtest"
	"github.com/raniellyferreira/redis-replicator/rdb"
	"github.com/raniellyferreira/redis-replicator/replication"
)

func run(t *testing.T, data []byte, observers ...replication.Observer) {
	t.Helper()
	s := replication.NewSession(replication.NewReaderSource("test", bytes.NewReader(data)))
	for _, o := range observers {
		require.NoError(t, s.AddObserver(o))
	}
	require.NoError(t, s.Run(context.Background()))
}

func sampleSnapshot() []byte {
	return rdbtest.New(11).
		Aux("redis-ver", "7.0.11").
		SelectDB(0).
		ResizeDB(3, 1).
		ExpireMs(time.UnixMilli(1893456000000)).String("session", "abc").
		List("queue", "a", "b").
		Hash("user:1", rdbtest.Pair{Key: "name", Value: "ann"}).
		SelectDB(2).
		ZSet2("board", rdbtest.ZMember{Member: "p1", Score: 10}).
		Bytes()
}

func TestRecorder(t *testing.T) {
	rec := NewRecorder()
	ops := rdbtest.Command("SET", "k", "v")
	run(t, append(sampleSnapshot(), ops...), rec)

	assert.Equal(t, 11, rec.Version())
	assert.Equal(t, []string{"session", "queue", "user:1", "board"}, rec.Keys())
	assert.Len(t, rec.AuxRecords(), 2)

	summary, ok := rec.Summary()
	require.True(t, ok)
	assert.Equal(t, 4, summary.Entities)
	assert.True(t, summary.Verified())

	require.Len(t, rec.Operations(), 1)
	assert.Equal(t, "SET", rec.Operations()[0].Name)
	assert.Equal(t, 2, rec.Entities()[3].DB)
}

func newTestLogger() (replication.Logger, *test.Hook) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	return replication.NewLogrusLogger(logrus.NewEntry(base)), hook
}

func progressEntries(hook *test.Hook) []*logrus.Entry {
	var out []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "Snapshot load progress" {
			out = append(out, e)
		}
	}
	return out
}

func TestLoadStats(t *testing.T) {
	logger, _ := newTestLogger()
	stats := NewLoadStats(logger)

	stats.RecordKey(0, "string")
	stats.RecordKey(0, "string")
	stats.RecordKey(0, "hash")
	stats.RecordKey(1, "list")

	assert.Equal(t, int64(4), stats.Processed())
	assert.Equal(t, []int{0, 1}, stats.Databases())

	db0, ok := stats.Database(0)
	require.True(t, ok)
	assert.Equal(t, int64(3), db0.Keys)
	assert.Equal(t, int64(2), db0.TypeCounts["string"])
	assert.Equal(t, int64(1), db0.TypeCounts["hash"])

	db1, ok := stats.Database(1)
	require.True(t, ok)
	assert.Equal(t, int64(1), db1.TypeCounts["list"])

	_, ok = stats.Database(7)
	assert.False(t, ok)
}

func TestLoadStatsBatchedLogging(t *testing.T) {
	logger, hook := newTestLogger()
	stats := NewLoadStats(logger)
	stats.BatchSize = 3
	stats.LogInterval = time.Hour

	stats.RecordKey(0, "string")
	stats.RecordKey(0, "string")
	assert.Empty(t, progressEntries(hook), "should not log before the batch is full")

	stats.RecordKey(0, "string")
	entries := progressEntries(hook)
	require.Len(t, entries, 1)
	assert.Equal(t, 0, entries[0].Data["db"])
	assert.Equal(t, int64(3), entries[0].Data["keys"])
	assert.Equal(t, "string:3", entries[0].Data["types"])
}

func TestLoadStatsTimeBasedLogging(t *testing.T) {
	logger, hook := newTestLogger()
	stats := NewLoadStats(logger)
	stats.BatchSize = 100
	stats.LogInterval = 50 * time.Millisecond

	stats.RecordKey(0, "string")
	assert.Empty(t, progressEntries(hook))

	time.Sleep(60 * time.Millisecond)
	stats.RecordKey(0, "hash")
	entries := progressEntries(hook)
	require.Len(t, entries, 1)
	assert.Equal(t, "hash:1,string:1", entries[0].Data["types"])
}

func TestLoadStatsSession(t *testing.T) {
	logger, hook := newTestLogger()
	stats := NewLoadStats(logger)
	run(t, sampleSnapshot(), stats)

	assert.Equal(t, int64(4), stats.Processed())
	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, "Snapshot load completed", last.Message)
	assert.Equal(t, true, last.Data["verified"])
	assert.Equal(t, 2, last.Data["databases"])

	db0, ok := stats.Database(0)
	require.True(t, ok)
	assert.Equal(t, int64(3), db0.Keys)
	assert.Equal(t, int64(1), db0.Expires)
	db2, ok := stats.Database(2)
	require.True(t, ok)
	assert.Equal(t, int64(0), db2.Expires)
}

func TestDigestIsOrderAndEncodingIndependent(t *testing.T) {
	a := rdbtest.New(11).SelectDB(0).
		String("s", "v").
		Set("set", "x", "y", "z").
		Hash("h", rdbtest.Pair{Key: "a", Value: "1"}, rdbtest.Pair{Key: "b", Value: "2"}).
		ZSet2("z", rdbtest.ZMember{Member: "m1", Score: 1}, rdbtest.ZMember{Member: "m2", Score: 2}).
		List("l", "1", "2").
		Bytes()
	b := rdbtest.New(11).SelectDB(0).
		ListZiplist("l", "1", "2").
		ZSetListpack("z", rdbtest.ZMember{Member: "m2", Score: 2}, rdbtest.ZMember{Member: "m1", Score: 1}).
		HashListpack("h", rdbtest.Pair{Key: "b", Value: "2"}, rdbtest.Pair{Key: "a", Value: "1"}).
		SetListpack("set", "z", "y", "x").
		String("s", "v").
		Bytes()

	da, db := NewDigest(), NewDigest()
	run(t, a, da)
	run(t, b, db)
	assert.Equal(t, int64(5), da.Count())
	assert.Equal(t, da.Sum(), db.Sum())

	c := rdbtest.New(11).SelectDB(0).String("s", "other").Bytes()
	dc := NewDigest()
	run(t, c, dc)
	assert.NotEqual(t, da.Sum(), dc.Sum())
}

func TestDigestIncludesDatabaseAndExpiry(t *testing.T) {
	base := &rdb.Entity{Key: []byte("k"), Value: rdb.StringValue{Data: []byte("v")}}
	moved := &rdb.Entity{DB: 1, Key: []byte("k"), Value: rdb.StringValue{Data: []byte("v")}}
	at := time.UnixMilli(1893456000000)
	expiring := &rdb.Entity{Key: []byte("k"), Value: rdb.StringValue{Data: []byte("v")}, Expiry: &at}

	assert.NotEqual(t, EntityDigest(base), EntityDigest(moved))
	assert.NotEqual(t, EntityDigest(base), EntityDigest(expiring))
	assert.Equal(t, EntityDigest(base), EntityDigest(&rdb.Entity{Key: []byte("k"), Value: rdb.StringValue{Data: []byte("v")}}))
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf)
	run(t, append(sampleSnapshot(), rdbtest.Command("DEL", "queue")...), w)
	require.NoError(t, w.Flush())

	var docs []map[string]interface{}
	sc := bufio.NewScanner(strings.NewReader(buf.String()))
	for sc.Scan() {
		var doc map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &doc), sc.Text())
		docs = append(docs, doc)
	}
	require.NoError(t, sc.Err())

	types := make([]string, len(docs))
	for i, d := range docs {
		types[i] = d["type"].(string)
	}
	assert.Equal(t, []string{
		"aux", "resizedb",
		"entity", "entity", "entity", "entity",
		"summary", "operation",
	}, types)

	session := docs[2]
	assert.Equal(t, "session", session["key"])
	assert.Equal(t, "string", session["kind"])
	assert.Equal(t, "abc", session["value"])
	assert.NotEmpty(t, session["expiry"])

	user := docs[4]
	assert.Equal(t, map[string]interface{}{"name": "ann"}, user["value"])

	board := docs[5]
	assert.Equal(t, float64(2), board["db"])

	op := docs[7]
	assert.Equal(t, "DEL", op["name"])
	assert.Equal(t, []interface{}{"queue"}, op["args"])
	assert.Equal(t, true, docs[6]["verified"])
}

func TestDigestHashFieldExpiry(t *testing.T) {
	fields := []rdbtest.ExpiringField{
		{Key: "a", Value: "1", ExpireMs: 1893456000000},
		{Key: "b", Value: "2"},
	}
	table := NewDigest()
	run(t, rdbtest.New(12).SelectDB(0).HashMetadata("h", fields...).Bytes(), table)
	packed := NewDigest()
	run(t, rdbtest.New(12).SelectDB(0).HashListpackEx("h", fields...).Bytes(), packed)
	plain := NewDigest()
	run(t, rdbtest.New(12).SelectDB(0).
		Hash("h", rdbtest.Pair{Key: "a", Value: "1"}, rdbtest.Pair{Key: "b", Value: "2"}).Bytes(), plain)

	assert.Equal(t, table.Sum(), packed.Sum())
	assert.NotEqual(t, table.Sum(), plain.Sum())
}

func TestJSONWriterHashFieldExpiry(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf)
	w.SkipAux = true
	run(t, rdbtest.New(12).SelectDB(0).
		HashListpackEx("h",
			rdbtest.ExpiringField{Key: "a", Value: "1", ExpireMs: 1893456000000},
			rdbtest.ExpiringField{Key: "b", Value: "2"}).
		Bytes(), w)
	require.NoError(t, w.Flush())

	line, _, _ := strings.Cut(buf.String(), "\n")
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &doc))
	assert.Equal(t, "listpackex", doc["encoding"])
	assert.Equal(t, map[string]interface{}{"a": "1", "b": "2"}, doc["value"])
	expiry, ok := doc["field_expiry"].(map[string]interface{})
	require.True(t, ok, "field_expiry missing: %s", line)
	assert.Len(t, expiry, 1)
	assert.Contains(t, expiry, "a")
}
