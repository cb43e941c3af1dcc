package replication

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raniellyferreira/redis-replicator/internal/rdbtest"
	"github.com/raniellyferreira/redis-replicator/rdb"
)

// knownChecksum is the trailer of keysSnapshot(132)
const knownChecksum = 0x0c403a767d75d822

// recorder is an Observer that keeps everything it is given
type recorder struct {
	mu           sync.Mutex
	pre          int
	preEntities  int
	entities     []*rdb.Entity
	aux          []rdb.Aux
	summaries    []SnapshotSummary
	ops          []*Operation
	onPost       func()
	failOnEntity int
}

var errStop = errors.New("stop")

func (r *recorder) PreSnapshot(version int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pre++
	r.preEntities = len(r.entities)
	return nil
}

func (r *recorder) Entity(e *rdb.Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOnEntity > 0 && len(r.entities)+1 == r.failOnEntity {
		return errStop
	}
	r.entities = append(r.entities, e)
	return nil
}

func (r *recorder) Aux(aux rdb.Aux) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aux = append(r.aux, aux)
	return nil
}

func (r *recorder) PostSnapshot(s SnapshotSummary) error {
	r.mu.Lock()
	r.summaries = append(r.summaries, s)
	fn := r.onPost
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

func (r *recorder) Operation(op *Operation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
	return nil
}

func (r *recorder) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entities))
	for i, e := range r.entities {
		out[i] = string(e.Key)
	}
	return out
}

// testSource lets tests control the framing info and record ACKs
type testSource struct {
	io.Reader
	info SourceInfo

	mu     sync.Mutex
	acks   []int64
	closed int
}

func (s *testSource) Info() SourceInfo { return s.info }

func (s *testSource) Ack(offset int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acks = append(s.acks, offset)
	return nil
}

func (s *testSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	if c, ok := s.Reader.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// mixedSnapshot holds 19 entities, 13 of them strings
func mixedSnapshot() *rdbtest.Builder {
	b := rdbtest.New(11).Aux("redis-ver", "7.0.11").SelectDB(0)
	for i := 0; i < 10; i++ {
		b.String(fmt.Sprintf("str:%d", i), fmt.Sprintf("v%d", i))
	}
	b.IntString("counter", 12345)
	b.LZFString("compressed", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	b.List("list", "a", "b", "c")
	b.Set("set", "x", "y")
	b.ZSet2("zset", rdbtest.ZMember{Member: "m", Score: 1.5})
	b.Hash("hash", rdbtest.Pair{Key: "f", Value: "v"})
	b.SelectDB(1)
	b.String("str:db1", "v")
	b.SetListpack("set:lp", "p", "q")
	b.HashListpack("hash:lp", rdbtest.Pair{Key: "a", Value: "1"})
	return b
}

func keysSnapshot(n int) *rdbtest.Builder {
	b := rdbtest.New(9).Aux("redis-ver", "7.2.0").SelectDB(0).ResizeDB(uint64(n), 0)
	for i := 0; i < n; i++ {
		b.String(fmt.Sprintf("key:%03d", i), fmt.Sprintf("value:%03d", i))
	}
	return b
}

func runBytes(t *testing.T, data []byte, setup func(s *Session)) (*recorder, error) {
	t.Helper()
	rec := &recorder{}
	s := NewSession(NewReaderSource("test", bytes.NewReader(data)))
	require.NoError(t, s.AddObserver(rec))
	if setup != nil {
		setup(s)
	}
	return rec, s.Run(context.Background())
}

func TestSessionStringFilter(t *testing.T) {
	b := mixedSnapshot()
	require.Equal(t, 19, b.Keys())

	rec, err := runBytes(t, b.Bytes(), func(s *Session) {
		require.NoError(t, s.AddFilter(KindFilter(rdb.KindString)))
	})
	require.NoError(t, err)

	assert.Equal(t, 1, rec.pre)
	assert.Equal(t, 0, rec.preEntities)
	assert.Len(t, rec.entities, 13)
	for _, e := range rec.entities {
		assert.Equal(t, rdb.KindString, e.Kind())
	}
	require.Len(t, rec.summaries, 1)
	assert.Equal(t, 13, rec.summaries[0].Entities)
	assert.Equal(t, 6, rec.summaries[0].Filtered)
	assert.True(t, rec.summaries[0].Verified())
}

func TestSessionKnownChecksum(t *testing.T) {
	rec, err := runBytes(t, keysSnapshot(132).Bytes(), nil)
	require.NoError(t, err)

	assert.Len(t, rec.entities, 132)
	require.Len(t, rec.summaries, 1)
	assert.Equal(t, uint64(knownChecksum), rec.summaries[0].Checksum)
	assert.Equal(t, uint64(knownChecksum), rec.summaries[0].Computed)
	assert.Equal(t, 9, rec.summaries[0].Version)
}

func TestSessionDispatchCountEqualsOpcodes(t *testing.T) {
	b := mixedSnapshot()
	rec, err := runBytes(t, b.Bytes(), nil)
	require.NoError(t, err)
	assert.Len(t, rec.entities, b.Keys())
	assert.Equal(t, 0, rec.summaries[0].Filtered)
	assert.Equal(t, int64(len(b.Bytes())), rec.summaries[0].Bytes)
}

func TestSessionDatabaseAndPrefixFilters(t *testing.T) {
	rec, err := runBytes(t, mixedSnapshot().Bytes(), func(s *Session) {
		require.NoError(t, s.AddFilter(KeyPrefixFilter("str:", "set")))
		require.NoError(t, s.AddFilter(DatabaseFilter(1)))
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"str:db1", "set:lp"}, rec.keys())
	assert.Equal(t, 17, rec.summaries[0].Filtered)
}

func streamTail() ([]byte, []int64) {
	frames := [][]byte{
		rdbtest.Command("SELECT", "2"),
		rdbtest.Command("SET", "a", "1"),
		rdbtest.Command("REPLCONF", "GETACK", "*"),
		rdbtest.Command("del", "a"),
	}
	var tail []byte
	var offsets []int64
	for _, f := range frames {
		tail = append(tail, f...)
		offsets = append(offsets, int64(len(tail)))
	}
	return tail, offsets
}

func TestSessionOperations(t *testing.T) {
	tail, offsets := streamTail()
	data := append(keysSnapshot(3).Bytes(), tail...)

	src := &testSource{
		Reader: bytes.NewReader(data),
		info:   SourceInfo{Name: "aof", BaseOffset: 1000, PayloadLength: -1},
	}
	rec := &recorder{}
	s := NewSession(src)
	require.NoError(t, s.AddObserver(rec))
	require.NoError(t, s.Run(context.Background()))

	require.Len(t, rec.ops, 3)
	assert.Equal(t, "SELECT", rec.ops[0].Name)
	assert.Equal(t, 2, rec.ops[0].DB)
	assert.Equal(t, 1000+offsets[0], rec.ops[0].Offset)

	assert.Equal(t, "SET", rec.ops[1].Name)
	assert.Equal(t, []byte("a"), rec.ops[1].Key())
	assert.Equal(t, 2, rec.ops[1].DB)
	assert.Equal(t, 1000+offsets[1], rec.ops[1].Offset)

	assert.Equal(t, "DEL", rec.ops[2].Name)
	assert.Equal(t, 1000+offsets[3], rec.ops[2].Offset)

	assert.Equal(t, []int64{1000 + offsets[2]}, src.acks)
	assert.Equal(t, 1000+offsets[3], s.Offset())
	assert.Equal(t, int64(3), s.Stats().Operations)
	assert.Equal(t, int64(len(data)), s.Stats().BytesRead)
}

func TestSessionOperationFilters(t *testing.T) {
	tail, _ := streamTail()
	rec, err := runBytes(t, append(keysSnapshot(1).Bytes(), tail...), func(s *Session) {
		require.NoError(t, s.AddOperationFilter(CommandFilter("set", "del")))
	})
	require.NoError(t, err)
	require.Len(t, rec.ops, 2)
	assert.Equal(t, "SET", rec.ops[0].Name)
	assert.Equal(t, "DEL", rec.ops[1].Name)
}

func TestSessionDeterministic(t *testing.T) {
	tail, _ := streamTail()
	data := append(mixedSnapshot().Bytes(), tail...)

	first, err := runBytes(t, data, nil)
	require.NoError(t, err)
	second, err := runBytes(t, data, nil)
	require.NoError(t, err)

	assert.Equal(t, first.keys(), second.keys())
	assert.Equal(t, first.entities, second.entities)
	assert.Equal(t, first.ops, second.ops)
	assert.Equal(t, first.summaries, second.summaries)
}

func TestSessionTruncatedOperation(t *testing.T) {
	data := keysSnapshot(2).Bytes()
	data = append(data, rdbtest.Command("SET", "a", "1")...)
	data = append(data, "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n"...)

	rec := &recorder{}
	s := NewSession(NewReaderSource("test", bytes.NewReader(data)))
	require.NoError(t, s.AddObserver(rec))

	var events []string
	var faults []error
	require.NoError(t, s.OnFault(func(err error) {
		events = append(events, "fault")
		faults = append(faults, err)
	}))
	require.NoError(t, s.OnClose(func() { events = append(events, "close") }))

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, rdb.ErrTruncatedInput))

	require.Len(t, rec.ops, 1)
	assert.Equal(t, "SET", rec.ops[0].Name)

	assert.Equal(t, []string{"fault", "close"}, events)
	var serr *SessionError
	require.True(t, errors.As(faults[0], &serr))
	assert.Equal(t, PhaseStreamingOperations, serr.Phase)
	assert.Equal(t, PhaseFailed, s.Phase())
	assert.Equal(t, err, s.Err())
}

func TestSessionTruncatedSnapshot(t *testing.T) {
	data := keysSnapshot(5).Bytes()
	rec, err := runBytes(t, data[:len(data)-20], nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, rdb.ErrTruncatedInput))
	assert.Empty(t, rec.summaries)

	var serr *SessionError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, PhaseReceivingSnapshot, serr.Phase)
}

func TestSessionChecksumPolicies(t *testing.T) {
	data := keysSnapshot(4).Bytes()
	idx := bytes.Index(data, []byte("value:002"))
	require.Positive(t, idx)
	corrupt := append([]byte(nil), data...)
	corrupt[idx] = 'V'

	tests := []struct {
		name     string
		policy   rdb.ChecksumPolicy
		wantErr  bool
		mismatch bool
	}{
		{"report", rdb.ChecksumReport, false, true},
		{"ignore", rdb.ChecksumIgnore, false, false},
		{"strict", rdb.ChecksumStrict, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := runBytes(t, corrupt, func(s *Session) {
				s.SetChecksumPolicy(tt.policy)
			})
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, rdb.ErrChecksumMismatch))
				assert.Empty(t, rec.summaries)
				return
			}
			require.NoError(t, err)
			require.Len(t, rec.summaries, 1)
			assert.Equal(t, tt.mismatch, rec.summaries[0].Mismatch)
			assert.False(t, rec.summaries[0].Verified())
		})
	}
}

func TestSessionObserverErrorAborts(t *testing.T) {
	rec := &recorder{failOnEntity: 3}
	s := NewSession(NewReaderSource("test", bytes.NewReader(keysSnapshot(10).Bytes())))
	require.NoError(t, s.AddObserver(rec))

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errStop))
	assert.Len(t, rec.entities, 2)
	assert.Equal(t, PhaseFailed, s.Phase())
}

func TestSessionObserverOrder(t *testing.T) {
	var order []string
	s := NewSession(NewReaderSource("test", bytes.NewReader(keysSnapshot(2).Bytes())))
	for _, name := range []string{"first", "second"} {
		name := name
		require.NoError(t, s.AddObserver(&funcObserver{entity: func(e *rdb.Entity) {
			order = append(order, name+":"+string(e.Key))
		}}))
	}
	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{
		"first:key:000", "second:key:000",
		"first:key:001", "second:key:001",
	}, order)
}

type funcObserver struct {
	NopObserver
	entity func(e *rdb.Entity)
}

func (o *funcObserver) Entity(e *rdb.Entity) error {
	o.entity(e)
	return nil
}

func TestSessionPayloadFraming(t *testing.T) {
	snap := keysSnapshot(2).Bytes()
	mark := bytes.Repeat([]byte("m"), 40)
	op := rdbtest.Command("PING")

	tests := []struct {
		name    string
		data    []byte
		info    SourceInfo
		wantErr error
		fails   bool
		ops     int
	}{
		{
			name: "sized",
			data: append(append([]byte(nil), snap...), op...),
			info: SourceInfo{PayloadLength: int64(len(snap))},
			ops:  1,
		},
		{
			name:  "overrun",
			data:  snap,
			info:  SourceInfo{PayloadLength: int64(len(snap) - 1)},
			fails: true,
		},
		{
			name: "eof mark",
			data: append(append(append([]byte(nil), snap...), mark...), op...),
			info: SourceInfo{PayloadLength: -1, EOFMark: mark},
			ops:  1,
		},
		{
			name:    "wrong eof mark",
			data:    append(append([]byte(nil), snap...), bytes.Repeat([]byte("x"), 40)...),
			info:    SourceInfo{PayloadLength: -1, EOFMark: mark},
			wantErr: ErrEOFMarkMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			s := NewSession(&testSource{Reader: bytes.NewReader(tt.data), info: tt.info})
			require.NoError(t, s.AddObserver(rec))
			err := s.Run(context.Background())

			switch {
			case tt.fails:
				require.Error(t, err)
			case tt.wantErr != nil:
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			default:
				require.NoError(t, err)
				assert.Len(t, rec.ops, tt.ops)
			}
		})
	}
}

// pipeSession starts a session over a pipe that stays open after the
// snapshot, and waits until the snapshot has been dispatched
func pipeSession(t *testing.T, ctx context.Context, setup func(s *Session)) (*Session, *io.PipeWriter, chan error) {
	t.Helper()
	pr, pw := io.Pipe()
	posted := make(chan struct{})
	rec := &recorder{onPost: func() { close(posted) }}

	s := NewSession(NewReaderSource("pipe", pr))
	require.NoError(t, s.AddObserver(rec))
	if setup != nil {
		setup(s)
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	go func() { _, _ = pw.Write(keysSnapshot(3).Bytes()) }()

	select {
	case <-posted:
	case <-time.After(5 * time.Second):
		t.Fatal("snapshot was not dispatched")
	}
	return s, pw, done
}

func TestSessionConcurrentClose(t *testing.T) {
	var closes, faults int
	var mu sync.Mutex
	s, pw, done := pipeSession(t, context.Background(), func(s *Session) {
		require.NoError(t, s.OnClose(func() { mu.Lock(); closes++; mu.Unlock() }))
		require.NoError(t, s.OnFault(func(error) { mu.Lock(); faults++; mu.Unlock() }))
	})
	defer pw.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Close()
		}()
	}
	wg.Wait()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not unblock the session")
	}
	require.NoError(t, s.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, closes)
	assert.Equal(t, 0, faults)
	assert.Equal(t, PhaseClosed, s.Phase())
}

func TestSessionContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, pw, done := pipeSession(t, ctx, nil)
	defer pw.Close()

	assert.Equal(t, PhaseStreamingOperations, s.Phase())
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("cancel did not unblock the session")
	}
	assert.Equal(t, PhaseClosed, s.Phase())
	assert.NoError(t, s.Err())
}

func TestSessionCloseBeforeRun(t *testing.T) {
	src := &testSource{Reader: bytes.NewReader(keysSnapshot(1).Bytes())}
	s := NewSession(src)
	closes := 0
	require.NoError(t, s.OnClose(func() { closes++ }))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Run(context.Background()), ErrSessionClosed)
	assert.Equal(t, 1, closes)
	assert.Equal(t, PhaseClosed, s.Phase())
}

func TestSessionAlreadyStarted(t *testing.T) {
	s := NewSession(NewReaderSource("test", bytes.NewReader(keysSnapshot(1).Bytes())))
	require.NoError(t, s.Run(context.Background()))

	assert.ErrorIs(t, s.Run(context.Background()), ErrAlreadyStarted)
	assert.ErrorIs(t, s.AddObserver(NopObserver{}), ErrAlreadyStarted)
	assert.ErrorIs(t, s.AddFilter(KindFilter(rdb.KindHash)), ErrAlreadyStarted)
	assert.ErrorIs(t, s.AddOperationFilter(CommandFilter("SET")), ErrAlreadyStarted)
	assert.ErrorIs(t, s.OnClose(func() {}), ErrAlreadyStarted)
	assert.ErrorIs(t, s.OnFault(func(error) {}), ErrAlreadyStarted)
}

func TestSessionOpenerError(t *testing.T) {
	boom := errors.New("connection refused")
	s := NewDialSession(func(context.Context) (Source, error) { return nil, boom })

	var fault error
	require.NoError(t, s.OnFault(func(err error) { fault = err }))
	err := s.Run(context.Background())
	assert.ErrorIs(t, err, boom)

	var serr *SessionError
	require.True(t, errors.As(fault, &serr))
	assert.Equal(t, PhaseConnecting, serr.Phase)
}

func TestSessionHeartbeat(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	src := &testSource{Reader: pr, info: SourceInfo{Live: true, BaseOffset: 77, PayloadLength: -1}}

	s := NewSession(src)
	s.SetHeartbeatInterval(10 * time.Millisecond)
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	go func() { _, _ = pw.Write(keysSnapshot(1).Bytes()) }()

	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return len(src.acks) >= 2
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Close())
	require.NoError(t, <-done)

	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Equal(t, int64(77), src.acks[0])
}
