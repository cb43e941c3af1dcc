package replication

import (
	"bytes"
	"strings"

	"github.com/samber/lo"

	"github.com/raniellyferreira/redis-replicator/rdb"
)

// Filter decides whether an entity is dispatched. A rejected entity is
// dropped silently; its bytes still count towards the checksum.
type Filter interface {
	Accept(e *rdb.Entity) bool
}

// FilterFunc adapts a function to a Filter
type FilterFunc func(e *rdb.Entity) bool

// Accept calls f(e)
func (f FilterFunc) Accept(e *rdb.Entity) bool {
	return f(e)
}

// OperationFilter decides whether an operation is dispatched
type OperationFilter interface {
	AcceptOperation(op *Operation) bool
}

// OperationFilterFunc adapts a function to an OperationFilter
type OperationFilterFunc func(op *Operation) bool

// AcceptOperation calls f(op)
func (f OperationFilterFunc) AcceptOperation(op *Operation) bool {
	return f(op)
}

// KindFilter accepts entities whose value is one of kinds
func KindFilter(kinds ...rdb.Kind) Filter {
	return FilterFunc(func(e *rdb.Entity) bool {
		return lo.Contains(kinds, e.Kind())
	})
}

// DatabaseFilter accepts entities stored in one of dbs
func DatabaseFilter(dbs ...int) Filter {
	return FilterFunc(func(e *rdb.Entity) bool {
		return lo.Contains(dbs, e.DB)
	})
}

// KeyPrefixFilter accepts entities whose key starts with one of prefixes
func KeyPrefixFilter(prefixes ...string) Filter {
	return FilterFunc(func(e *rdb.Entity) bool {
		return lo.SomeBy(prefixes, func(p string) bool {
			return bytes.HasPrefix(e.Key, []byte(p))
		})
	})
}

// CommandFilter accepts operations whose name is one of names, compared
// case-insensitively
func CommandFilter(names ...string) OperationFilter {
	allowed := lo.SliceToMap(names, func(n string) (string, struct{}) {
		return strings.ToUpper(n), struct{}{}
	})
	return OperationFilterFunc(func(op *Operation) bool {
		_, ok := allowed[op.Name]
		return ok
	})
}

// OperationDatabaseFilter accepts operations applied to one of dbs
func OperationDatabaseFilter(dbs ...int) OperationFilter {
	return OperationFilterFunc(func(op *Operation) bool {
		return lo.Contains(dbs, op.DB)
	})
}
