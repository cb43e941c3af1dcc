package observers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/raniellyferreira/redis-replicator/rdb"
	"github.com/raniellyferreira/redis-replicator/replication"
)

// JSONWriter writes one JSON document per line for every event. Binary
// strings are written as JSON strings; invalid UTF-8 is replaced.
type JSONWriter struct {
	mu  sync.Mutex
	bw  *bufio.Writer
	enc *json.Encoder

	// SkipAux omits metadata records
	SkipAux bool
}

// NewJSONWriter creates a JSONWriter writing to w. Call Flush when done.
func NewJSONWriter(w io.Writer) *JSONWriter {
	bw := bufio.NewWriter(w)
	return &JSONWriter{bw: bw, enc: json.NewEncoder(bw)}
}

type jsonEntity struct {
	Type        string               `json:"type"`
	DB          int                  `json:"db"`
	Key         string               `json:"key"`
	Kind        string               `json:"kind"`
	Encoding    string               `json:"encoding"`
	Expiry      *time.Time           `json:"expiry,omitempty"`
	Idle        *int64               `json:"idle,omitempty"`
	Freq        *int                 `json:"freq,omitempty"`
	Value       interface{}          `json:"value"`
	FieldExpiry map[string]time.Time `json:"field_expiry,omitempty"`
}

type jsonAux struct {
	Type    string `json:"type"`
	Key     string `json:"key,omitempty"`
	Value   string `json:"value,omitempty"`
	DB      *int   `json:"db,omitempty"`
	Size    uint64 `json:"size,omitempty"`
	Expires uint64 `json:"expires,omitempty"`
}

type jsonSummary struct {
	Type     string `json:"type"`
	Version  int    `json:"version"`
	Checksum string `json:"checksum"`
	Verified bool   `json:"verified"`
	Entities int    `json:"entities"`
	Filtered int    `json:"filtered"`
	Bytes    int64  `json:"bytes"`
}

type jsonOperation struct {
	Type   string   `json:"type"`
	DB     int      `json:"db"`
	Offset int64    `json:"offset"`
	Name   string   `json:"name"`
	Args   []string `json:"args"`
}

type jsonMember struct {
	Member string  `json:"member"`
	Score  float64 `json:"score"`
}

type jsonStreamEntry struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

func (w *JSONWriter) write(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return errors.Wrap(w.enc.Encode(v), "write json")
}

func (w *JSONWriter) PreSnapshot(int) error {
	return nil
}

func (w *JSONWriter) Entity(e *rdb.Entity) error {
	doc := jsonEntity{
		Type:     "entity",
		DB:       e.DB,
		Key:      string(e.Key),
		Kind:     e.Kind().String(),
		Encoding: e.Type.String(),
		Expiry:   e.Expiry,
		Value:    jsonValue(e.Value),
	}
	if h, ok := e.Value.(rdb.HashValue); ok {
		for _, f := range h.Fields {
			if f.Expiry == nil {
				continue
			}
			if doc.FieldExpiry == nil {
				doc.FieldExpiry = make(map[string]time.Time)
			}
			doc.FieldExpiry[string(f.Field)] = *f.Expiry
		}
	}
	if e.LRUIdle >= 0 {
		idle := e.LRUIdle
		doc.Idle = &idle
	}
	if e.LFUFreq >= 0 {
		freq := e.LFUFreq
		doc.Freq = &freq
	}
	return w.write(doc)
}

func (w *JSONWriter) Aux(aux rdb.Aux) error {
	if w.SkipAux {
		return nil
	}
	switch aux.Kind {
	case rdb.AuxResizeDB:
		db := aux.DB
		return w.write(jsonAux{Type: "resizedb", DB: &db, Size: aux.DBSize, Expires: aux.ExpiresSize})
	case rdb.AuxFunction:
		return w.write(jsonAux{Type: "function", Value: string(aux.Value)})
	default:
		return w.write(jsonAux{Type: "aux", Key: string(aux.Key), Value: string(aux.Value)})
	}
}

func (w *JSONWriter) PostSnapshot(s replication.SnapshotSummary) error {
	return w.write(jsonSummary{
		Type:     "summary",
		Version:  s.Version,
		Checksum: formatChecksum(s.Checksum),
		Verified: s.Verified(),
		Entities: s.Entities,
		Filtered: s.Filtered,
		Bytes:    s.Bytes,
	})
}

func (w *JSONWriter) Operation(op *replication.Operation) error {
	args := make([]string, len(op.Args))
	for i, a := range op.Args {
		args[i] = string(a)
	}
	return w.write(jsonOperation{
		Type:   "operation",
		DB:     op.DB,
		Offset: op.Offset,
		Name:   op.Name,
		Args:   args,
	})
}

// Flush writes buffered documents to the underlying writer
func (w *JSONWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bw.Flush()
}

func jsonValue(v rdb.Value) interface{} {
	switch val := v.(type) {
	case rdb.StringValue:
		return string(val.Data)
	case rdb.ListValue:
		return stringsOf(val.Elements)
	case rdb.SetValue:
		return stringsOf(val.Members)
	case rdb.SortedSetValue:
		out := make([]jsonMember, len(val.Members))
		for i, m := range val.Members {
			out[i] = jsonMember{Member: string(m.Member), Score: m.Score}
		}
		return out
	case rdb.HashValue:
		out := make(map[string]string, len(val.Fields))
		for _, f := range val.Fields {
			out[string(f.Field)] = string(f.Value)
		}
		return out
	case *rdb.StreamValue:
		out := make([]jsonStreamEntry, len(val.Entries))
		for i, e := range val.Entries {
			fields := make(map[string]string, len(e.Fields))
			for _, f := range e.Fields {
				fields[string(f.Field)] = string(f.Value)
			}
			out[i] = jsonStreamEntry{ID: e.ID.String(), Fields: fields}
		}
		return out
	case *rdb.ModuleValue:
		return map[string]interface{}{
			"module": val.Name,
			"encver": val.EncVer,
			"fields": len(val.Fields),
		}
	}
	return nil
}

func formatChecksum(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}

func stringsOf(elems [][]byte) []string {
	out := make([]string, len(elems))
	for i, e := range elems {
		out[i] = string(e)
	}
	return out
}
