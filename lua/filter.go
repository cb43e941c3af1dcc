package lua

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	lua "github.com/yuin/gopher-lua"

	"github.com/raniellyferreira/redis-replicator/rdb"
	"github.com/raniellyferreira/redis-replicator/replication"
)

const (
	acceptFunc          = "accept"
	acceptOperationFunc = "accept_operation"
)

// ErrNoPredicate is returned for a script that defines neither accept nor
// accept_operation
var ErrNoPredicate = errors.New("lua: script defines neither accept nor accept_operation")

// Filter runs a Lua predicate for each entity and operation. It implements
// both replication.Filter and replication.OperationFilter.
type Filter struct {
	mu       sync.Mutex
	L        *lua.LState
	accept   *lua.LFunction
	acceptOp *lua.LFunction

	failures int
	err      error
}

var (
	_ replication.Filter          = (*Filter)(nil)
	_ replication.OperationFilter = (*Filter)(nil)
)

// NewFilter compiles script and looks up its predicates
func NewFilter(script string) (*Filter, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	if err := openSandbox(L); err != nil {
		L.Close()
		return nil, err
	}

	if err := L.DoString(script); err != nil {
		L.Close()
		return nil, errors.Wrap(err, "lua: load script")
	}

	f := &Filter{L: L}
	if fn, ok := L.GetGlobal(acceptFunc).(*lua.LFunction); ok {
		f.accept = fn
	}
	if fn, ok := L.GetGlobal(acceptOperationFunc).(*lua.LFunction); ok {
		f.acceptOp = fn
	}
	if f.accept == nil && f.acceptOp == nil {
		L.Close()
		return nil, ErrNoPredicate
	}
	return f, nil
}

// LoadFilter reads a filter script from path
func LoadFilter(path string) (*Filter, error) {
	script, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "lua: read script")
	}
	return NewFilter(string(script))
}

// openSandbox opens the libraries available to filter scripts
func openSandbox(L *lua.LState) error {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			return errors.Wrapf(err, "lua: open %s", lib.name)
		}
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, lua.LNil)
	}
	return nil
}

// HasEntityPredicate reports whether the script defines accept
func (f *Filter) HasEntityPredicate() bool {
	return f.accept != nil
}

// HasOperationPredicate reports whether the script defines accept_operation
func (f *Filter) HasOperationPredicate() bool {
	return f.acceptOp != nil
}

// Accept calls accept(entity). Without an accept function every entity is
// accepted.
func (f *Filter) Accept(e *rdb.Entity) bool {
	if f.accept == nil {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.call(f.accept, f.entityTable(e))
}

// AcceptOperation calls accept_operation(op). Without an accept_operation
// function every operation is accepted.
func (f *Filter) AcceptOperation(op *replication.Operation) bool {
	if f.acceptOp == nil {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.call(f.acceptOp, f.operationTable(op))
}

func (f *Filter) call(fn *lua.LFunction, arg lua.LValue) bool {
	if err := f.L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, arg); err != nil {
		f.failures++
		f.err = errors.Wrap(err, "lua: predicate")
		return false
	}
	ret := f.L.Get(-1)
	f.L.Pop(1)
	return lua.LVAsBool(ret)
}

// Err returns the last script error
func (f *Filter) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Failures returns how many calls raised an error
func (f *Filter) Failures() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures
}

// Close releases the Lua state
func (f *Filter) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.L.Close()
}

func (f *Filter) entityTable(e *rdb.Entity) *lua.LTable {
	L := f.L
	t := L.NewTable()
	t.RawSetString("db", lua.LNumber(e.DB))
	t.RawSetString("key", lua.LString(e.Key))
	t.RawSetString("kind", lua.LString(e.Kind().String()))
	t.RawSetString("encoding", lua.LString(e.Type.String()))
	if e.Expiry != nil {
		t.RawSetString("expires_at", lua.LNumber(e.Expiry.UnixMilli()))
	}

	switch v := e.Value.(type) {
	case rdb.StringValue:
		t.RawSetString("value", lua.LString(v.Data))
		t.RawSetString("len", lua.LNumber(len(v.Data)))
	case rdb.ListValue:
		t.RawSetString("value", bytesArray(L, v.Elements))
		t.RawSetString("len", lua.LNumber(len(v.Elements)))
	case rdb.SetValue:
		t.RawSetString("value", bytesArray(L, v.Members))
		t.RawSetString("len", lua.LNumber(len(v.Members)))
	case rdb.SortedSetValue:
		zt := L.NewTable()
		for _, m := range v.Members {
			zt.RawSetString(string(m.Member), lua.LNumber(m.Score))
		}
		t.RawSetString("value", zt)
		t.RawSetString("len", lua.LNumber(len(v.Members)))
	case rdb.HashValue:
		ht := L.NewTable()
		for _, fv := range v.Fields {
			ht.RawSetString(string(fv.Field), lua.LString(fv.Value))
		}
		t.RawSetString("value", ht)
		t.RawSetString("len", lua.LNumber(len(v.Fields)))
	case *rdb.StreamValue:
		t.RawSetString("len", lua.LNumber(v.Length))
	case *rdb.ModuleValue:
		t.RawSetString("module", lua.LString(v.Name))
	}
	return t
}

func (f *Filter) operationTable(op *replication.Operation) *lua.LTable {
	t := f.L.NewTable()
	t.RawSetString("name", lua.LString(op.Name))
	t.RawSetString("args", bytesArray(f.L, op.Args))
	t.RawSetString("db", lua.LNumber(op.DB))
	t.RawSetString("offset", lua.LNumber(op.Offset))
	if key := op.Key(); key != nil {
		t.RawSetString("key", lua.LString(key))
	}
	return t
}

// bytesArray converts to a 1-indexed Lua array
func bytesArray(L *lua.LState, items [][]byte) *lua.LTable {
	t := L.CreateTable(len(items), 0)
	for i, item := range items {
		t.RawSetInt(i+1, lua.LString(item))
	}
	return t
}
