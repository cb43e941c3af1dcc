package replication

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/raniellyferreira/redis-replicator/protocol"
	"github.com/raniellyferreira/redis-replicator/rdb"
)

const (
	// DefaultBufferSize is the read buffer of the session cursor
	DefaultBufferSize = 64 * 1024

	// DefaultHeartbeatInterval is how often a live session sends
	// REPLCONF ACK
	DefaultHeartbeatInterval = time.Second
)

// Opener opens the source of a session. It is called once by Run.
type Opener func(ctx context.Context) (Source, error)

// Stats is a point-in-time view of a session
type Stats struct {
	Phase      Phase
	Entities   int64
	Filtered   int64
	Operations int64
	Offset     int64
	BytesRead  int64
	Snapshot   SnapshotSummary
}

// Session runs one replication session: it decodes a snapshot from a
// source, then the operation stream that follows it, dispatching both to
// the registered observers.
//
// Observers, filters and hooks must be registered before Run. Close may be
// called from any goroutine, any number of times.
type Session struct {
	open Opener

	logger     Logger
	metrics    MetricsCollector
	policy     rdb.ChecksumPolicy
	allowNewer bool
	bufferSize int
	heartbeat  time.Duration

	closeHooks []func()
	faultHooks []func(error)

	mu      sync.Mutex // guards src, cancel and closing
	src     Source
	cancel  context.CancelFunc
	closing bool

	// Owned by the Run goroutine
	info     SourceInfo
	cur      *rdb.Cursor
	dispatch *dispatcher
	db       int

	phase   atomic.Int32
	started atomic.Bool
	offset  atomic.Int64
	read    atomic.Int64

	finishOnce sync.Once
	done       chan struct{}
	err        error
}

// NewSession creates a session reading from src
func NewSession(src Source) *Session {
	s := newSession()
	s.open = func(context.Context) (Source, error) { return src, nil }
	return s
}

// NewDialSession creates a session whose source is opened by Run, such as
// a master connection
func NewDialSession(open Opener) *Session {
	s := newSession()
	s.open = open
	return s
}

func newSession() *Session {
	s := &Session{
		logger:     &nopLogger{},
		metrics:    &nopMetrics{},
		bufferSize: DefaultBufferSize,
		heartbeat:  DefaultHeartbeatInterval,
		done:       make(chan struct{}),
	}
	s.dispatch = &dispatcher{logger: s.logger, metrics: s.metrics}
	s.phase.Store(int32(PhaseConnecting))
	return s
}

// SetLogger sets the logger
func (s *Session) SetLogger(logger Logger) {
	if logger == nil {
		logger = &nopLogger{}
	}
	s.logger = logger
	s.dispatch.logger = logger
}

// SetMetrics sets the metrics collector
func (s *Session) SetMetrics(metrics MetricsCollector) {
	if metrics == nil {
		metrics = &nopMetrics{}
	}
	s.metrics = metrics
	s.dispatch.metrics = metrics
}

// SetChecksumPolicy sets how a snapshot checksum mismatch is handled
func (s *Session) SetChecksumPolicy(policy rdb.ChecksumPolicy) {
	s.policy = policy
}

// SetAllowNewerVersions accepts snapshots newer than the decoder knows
func (s *Session) SetAllowNewerVersions(allow bool) {
	s.allowNewer = allow
}

// SetBufferSize sets the read buffer size
func (s *Session) SetBufferSize(size int) {
	if size > 0 {
		s.bufferSize = size
	}
}

// SetHeartbeatInterval sets the ACK interval of live sessions, 0 disables
// the heartbeat
func (s *Session) SetHeartbeatInterval(d time.Duration) {
	s.heartbeat = d
}

// AddObserver registers an observer. Observers are called in registration
// order.
func (s *Session) AddObserver(o Observer) error {
	if s.started.Load() {
		return ErrAlreadyStarted
	}
	s.dispatch.observers = append(s.dispatch.observers, o)
	return nil
}

// AddFilter registers a snapshot entity filter
func (s *Session) AddFilter(f Filter) error {
	if s.started.Load() {
		return ErrAlreadyStarted
	}
	s.dispatch.filters = append(s.dispatch.filters, f)
	return nil
}

// AddOperationFilter registers an operation filter
func (s *Session) AddOperationFilter(f OperationFilter) error {
	if s.started.Load() {
		return ErrAlreadyStarted
	}
	s.dispatch.opFilters = append(s.dispatch.opFilters, f)
	return nil
}

// OnClose registers a hook called once when the session ends, after any
// fault hook
func (s *Session) OnClose(fn func()) error {
	if s.started.Load() {
		return ErrAlreadyStarted
	}
	s.closeHooks = append(s.closeHooks, fn)
	return nil
}

// OnFault registers a hook called once with the *SessionError that ended
// the session
func (s *Session) OnFault(fn func(error)) error {
	if s.started.Load() {
		return ErrAlreadyStarted
	}
	s.faultHooks = append(s.faultHooks, fn)
	return nil
}

// Phase returns the current phase
func (s *Session) Phase() Phase {
	return Phase(s.phase.Load())
}

// Offset returns the replication offset of the last decoded operation
func (s *Session) Offset() int64 {
	return s.offset.Load()
}

// Done is closed once the session has ended
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the session, nil for a clean end
func (s *Session) Err() error {
	<-s.done
	return s.err
}

// Stats returns session statistics
func (s *Session) Stats() Stats {
	st := Stats{
		Phase:      s.Phase(),
		Entities:   s.dispatch.entities.Load(),
		Filtered:   s.dispatch.filtered.Load(),
		Operations: s.dispatch.ops.Load(),
		Offset:     s.offset.Load(),
		BytesRead:  s.read.Load(),
	}
	if st.Phase != PhaseConnecting && st.Phase != PhaseReceivingSnapshot {
		st.Snapshot = s.dispatch.summary
	}
	return st
}

// Run runs the session until the source ends, Close is called, ctx is
// canceled or an error occurs. It returns nil for a clean end or an
// intentional close.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		s.finish(nil)
		return ErrSessionClosed
	}
	s.cancel = cancel
	s.mu.Unlock()

	stop := context.AfterFunc(runCtx, func() { _ = s.Close() })
	defer stop()

	err := s.run(runCtx)
	if err != nil && s.isClosing() {
		s.logger.Debug("Session closed", "phase", s.Phase(), "reason", err)
		err = nil
	}
	s.finish(err)

	if err == nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return s.err
}

// Close ends the session. It unblocks a pending read and is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	src, cancel := s.src, s.cancel
	s.mu.Unlock()

	var err error
	if src != nil {
		err = src.Close()
	}
	if cancel != nil {
		cancel()
	}
	if !s.started.Load() {
		s.finish(nil)
	}
	return err
}

func (s *Session) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Session) setPhase(p Phase) {
	s.phase.Store(int32(p))
	s.logger.Debug("Session phase", "phase", p)
}

// finish moves the session to its terminal phase and runs the hooks
func (s *Session) finish(err error) {
	s.finishOnce.Do(func() {
		if err != nil {
			serr := &SessionError{Phase: s.Phase(), Err: err}
			s.err = serr
			s.setPhase(PhaseFailed)
			s.metrics.RecordError(serr.Phase.String())
			s.logger.Error("Session failed", "phase", serr.Phase, "error", err)
			for _, fn := range s.faultHooks {
				fn(serr)
			}
		} else {
			s.setPhase(PhaseClosed)
		}

		s.mu.Lock()
		src := s.src
		s.mu.Unlock()
		if src != nil {
			_ = src.Close()
		}

		for _, fn := range s.closeHooks {
			fn()
		}
		close(s.done)
	})
}

func (s *Session) run(ctx context.Context) error {
	src, err := s.open(ctx)
	if err != nil {
		return errors.Wrap(err, "open source")
	}

	s.mu.Lock()
	s.src = src
	closing := s.closing
	s.mu.Unlock()
	if closing {
		return src.Close()
	}

	s.info = src.Info()
	s.offset.Store(s.info.BaseOffset)
	s.logger.Info("Session source opened", "source", s.info.Name, "live", s.info.Live)

	s.cur = rdb.NewCursor(&countingReader{r: src, n: &s.read, metrics: s.metrics}, s.bufferSize)
	if err := s.receiveSnapshot(); err != nil {
		return err
	}

	s.setPhase(PhaseStreamingOperations)
	if a, ok := src.(Acker); ok && s.info.Live && s.heartbeat > 0 {
		hbCtx, stop := context.WithCancel(ctx)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runHeartbeat(hbCtx, a)
		}()
		defer func() {
			stop()
			wg.Wait()
		}()
	}
	return s.streamOperations()
}

// receiveSnapshot decodes the snapshot and the framing that follows it
func (s *Session) receiveSnapshot() error {
	s.setPhase(PhaseReceivingSnapshot)
	started := time.Now()

	s.dispatch.cur = s.cur
	s.dispatch.start = s.cur.Offset()

	p := rdb.NewParser(s.cur, s.dispatch)
	p.SetLogger(s.logger)
	p.SetChecksumPolicy(s.policy)
	p.SetAllowNewerVersions(s.allowNewer)

	if _, err := p.Parse(); err != nil {
		return err
	}

	size := s.cur.Offset() - s.dispatch.start
	if n := s.info.PayloadLength; n >= 0 {
		if size > n {
			return errors.Errorf("snapshot of %d bytes overran the announced %d", size, n)
		}
		if size < n {
			if err := s.cur.Discard(int(n - size)); err != nil {
				return errors.Wrap(err, "discard snapshot padding")
			}
		}
	}
	if len(s.info.EOFMark) > 0 {
		mark, err := s.cur.ReadFull(protocol.EOFMarkSize)
		if err != nil {
			return errors.Wrap(err, "read EOF mark")
		}
		if !bytes.Equal(mark, s.info.EOFMark) {
			return ErrEOFMarkMismatch
		}
	}

	duration := time.Since(started)
	s.metrics.RecordSyncDuration(duration)
	s.logger.Info("Snapshot received",
		"entities", s.dispatch.entities.Load(),
		"filtered", s.dispatch.filtered.Load(),
		"bytes", size,
		"duration", duration)
	return nil
}

func (s *Session) runHeartbeat(ctx context.Context, a Acker) {
	t := time.NewTicker(s.heartbeat)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := a.Ack(s.offset.Load()); err != nil {
				s.logger.Debug("Heartbeat failed", "error", err)
			}
		}
	}
}

// countingReader tracks bytes read from the source
type countingReader struct {
	r       io.Reader
	n       *atomic.Int64
	metrics MetricsCollector
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.n.Add(int64(n))
		c.metrics.RecordNetworkBytes(int64(n))
	}
	return n, err
}
