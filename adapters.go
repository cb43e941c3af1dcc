package replicator

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/raniellyferreira/redis-replicator/replication"
)

// loggerAdapter exposes a Logger as a replication.Logger, whose fields are
// alternating keys and values
type loggerAdapter struct {
	logger Logger
	base   []Field
}

var _ replication.Logger = (*loggerAdapter)(nil)

// newLoggerAdapter adapts l, prefixing every entry with base
func newLoggerAdapter(l Logger, base ...Field) *loggerAdapter {
	return &loggerAdapter{logger: l, base: base}
}

func (la *loggerAdapter) Debug(msg string, kv ...interface{}) {
	la.logger.Debug(msg, la.fields(kv)...)
}

func (la *loggerAdapter) Info(msg string, kv ...interface{}) {
	la.logger.Info(msg, la.fields(kv)...)
}

func (la *loggerAdapter) Error(msg string, kv ...interface{}) {
	la.logger.Error(msg, la.fields(kv)...)
}

// fields converts kv pairs. A trailing key without value is kept with a
// "(MISSING)" value.
func (la *loggerAdapter) fields(kv []interface{}) []Field {
	out := make([]Field, 0, len(la.base)+(len(kv)+1)/2)
	out = append(out, la.base...)
	for _, pair := range lo.Chunk(kv, 2) {
		f := Field{Key: fmt.Sprint(pair[0]), Value: "(MISSING)"}
		if len(pair) == 2 {
			f.Value = pair[1]
		}
		out = append(out, f)
	}
	return out
}
