package replicator

import (
	"context"

	"github.com/pkg/errors"

	"github.com/raniellyferreira/redis-replicator/protocol"
	"github.com/raniellyferreira/redis-replicator/replication"
)

// Replicator mirrors a Redis dataset from a snapshot file or a master into
// the registered observers
type Replicator struct {
	config  *config
	source  string
	session *replication.Session
}

// New creates a new Replicator with the given options
//
// The replicator is created but not started. Use Run to begin replication.
//
// Example:
//
//	r, err := replicator.New(
//		replicator.WithMaster("localhost:6379"),
//		replicator.WithTypes(rdb.KindString),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	r.AddObserver(myObserver)
//	err = r.Run(ctx)
func New(opts ...Option) (*Replicator, error) {
	cfg := defaultConfig()

	// Apply options
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	r := &Replicator{config: cfg}
	logger := newLoggerAdapter(cfg.logger)

	var session *replication.Session
	if cfg.file != "" {
		r.source = cfg.file
		path := cfg.file
		session = replication.NewDialSession(func(context.Context) (replication.Source, error) {
			return replication.OpenFile(path)
		})
	} else {
		r.source = cfg.masterAddr
		d := replication.NewDialer(cfg.masterAddr)
		if cfg.masterPassword != "" {
			d.SetAuth(cfg.masterUser, cfg.masterPassword)
		}
		if cfg.masterTLS != nil {
			d.SetTLS(cfg.masterTLS)
		}
		d.SetListeningPort(cfg.listeningPort)
		d.SetConnectTimeout(cfg.connectTimeout)
		d.SetReadTimeout(cfg.readTimeout)
		d.SetWriteTimeout(cfg.writeTimeout)
		d.SetLogger(logger)
		if cfg.metrics != nil {
			d.SetMetrics(cfg.metrics)
		}
		addr := cfg.masterAddr
		session = replication.NewDialSession(func(ctx context.Context) (replication.Source, error) {
			src, err := d.Dial(ctx)
			if err != nil {
				return nil, &ConnectionError{Addr: addr, Err: err}
			}
			return src, nil
		})
	}

	session.SetLogger(logger)
	if cfg.metrics != nil {
		session.SetMetrics(cfg.metrics)
	}
	session.SetChecksumPolicy(cfg.checksumPolicy)
	session.SetAllowNewerVersions(cfg.allowNewer)
	session.SetBufferSize(cfg.bufferSize)
	session.SetHeartbeatInterval(cfg.heartbeatInterval)

	for _, f := range r.filters() {
		if err := session.AddFilter(f); err != nil {
			return nil, err
		}
	}
	for _, f := range r.operationFilters() {
		if err := session.AddOperationFilter(f); err != nil {
			return nil, err
		}
	}

	r.session = session
	return r, nil
}

func (r *Replicator) filters() []replication.Filter {
	var out []replication.Filter
	if len(r.config.databases) > 0 {
		out = append(out, replication.DatabaseFilter(r.config.databases...))
	}
	if len(r.config.types) > 0 {
		out = append(out, replication.KindFilter(r.config.types...))
	}
	return append(out, r.config.filters...)
}

func (r *Replicator) operationFilters() []replication.OperationFilter {
	var out []replication.OperationFilter
	if len(r.config.databases) > 0 {
		out = append(out, replication.OperationDatabaseFilter(r.config.databases...))
	}
	if len(r.config.commandFilters) > 0 {
		out = append(out, replication.CommandFilter(r.config.commandFilters...))
	}
	return append(out, r.config.opFilters...)
}

// AddObserver registers an observer. It must be called before Run.
func (r *Replicator) AddObserver(o Observer) error {
	return r.session.AddObserver(o)
}

// OnClose registers a function called exactly once when replication ends
func (r *Replicator) OnClose(fn func()) error {
	return r.session.OnClose(fn)
}

// OnFault registers a function called once with the error that ended
// replication, before the close functions
func (r *Replicator) OnFault(fn func(error)) error {
	return r.session.OnFault(func(err error) {
		fn(r.convertError(err))
	})
}

// Run replicates until the source ends, ctx is canceled or Close is
// called. A snapshot file without a trailing operation stream ends as soon
// as the snapshot is dispatched.
func (r *Replicator) Run(ctx context.Context) error {
	r.config.logger.Info("Starting replication", Field{Key: "source", Value: r.source})
	err := r.session.Run(ctx)
	if errors.Is(err, replication.ErrSessionClosed) {
		return ErrClosed
	}
	return r.convertError(err)
}

// Close stops replication. It is safe to call any number of times, from any
// goroutine.
func (r *Replicator) Close() error {
	return r.session.Close()
}

// Done is closed once replication has ended
func (r *Replicator) Done() <-chan struct{} {
	return r.session.Done()
}

// Phase returns the current replication phase
func (r *Replicator) Phase() replication.Phase {
	return r.session.Phase()
}

// Stats returns replication statistics
func (r *Replicator) Stats() ReplicationStats {
	st := r.session.Stats()
	return ReplicationStats{
		Source:     r.source,
		Phase:      st.Phase,
		Entities:   st.Entities,
		Filtered:   st.Filtered,
		Operations: st.Operations,
		Offset:     st.Offset,
		BytesRead:  st.BytesRead,
		Snapshot:   st.Snapshot,
	}
}

// convertError maps a session failure to SyncError, ProtocolError or
// ConnectionError
func (r *Replicator) convertError(err error) error {
	var serr *replication.SessionError
	if !errors.As(err, &serr) {
		return err
	}

	var cerr *ConnectionError
	if errors.As(serr.Err, &cerr) {
		return cerr
	}
	if errors.Is(serr.Err, protocol.ErrProtocolFraming) {
		return &ProtocolError{
			Message: serr.Err.Error(),
			Offset:  r.session.Offset(),
			Err:     serr,
		}
	}
	return &SyncError{Phase: serr.Phase.String(), Err: serr}
}
