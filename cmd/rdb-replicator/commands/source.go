package commands

import (
	"crypto/tls"

	"github.com/sirupsen/logrus"

	replicator "github.com/raniellyferreira/redis-replicator"
	"github.com/raniellyferreira/redis-replicator/config"
	"github.com/raniellyferreira/redis-replicator/lua"
	"github.com/raniellyferreira/redis-replicator/replication"
)

// sourceName returns the file or master the config points at
func sourceName(c config.Config) string {
	if c.Source.File != "" {
		return c.Source.File
	}
	return c.Source.Master
}

// options converts the config into replicator options. The returned
// function releases the Lua filter, if any.
func options(c config.Config) ([]replicator.Option, func(), error) {
	l := logrus.WithField("source", sourceName(c))
	opts := []replicator.Option{
		replicator.WithLogger(replicator.NewLogrusLogger(l)),
		replicator.WithChecksumPolicy(c.ChecksumPolicy()),
		replicator.WithAllowNewerVersions(c.Decode.AllowNewerVersions),
		replicator.WithBufferSize(int(c.Decode.BufferSize.Bytes())),
		replicator.WithConnectTimeout(c.Timeouts.Connect),
		replicator.WithReadTimeout(c.Timeouts.Read),
		replicator.WithWriteTimeout(c.Timeouts.Write),
		replicator.WithHeartbeatInterval(c.Timeouts.Heartbeat),
	}

	if c.Source.File != "" {
		opts = append(opts, replicator.WithFile(c.Source.File))
	} else {
		opts = append(opts,
			replicator.WithMaster(c.Source.Master),
			replicator.WithListeningPort(c.Source.ListeningPort),
		)
		if c.Source.Password != "" {
			opts = append(opts, replicator.WithMasterAuth(c.Source.Username, c.Source.Password))
		}
		if c.Source.TLS.Enabled {
			opts = append(opts, replicator.WithTLS(&tls.Config{
				ServerName:         c.Source.TLS.ServerName,
				InsecureSkipVerify: c.Source.TLS.InsecureSkipVerify,
				MinVersion:         tls.VersionTLS12,
			}))
		}
	}

	f := c.Filters
	if len(f.Databases) > 0 {
		opts = append(opts, replicator.WithDatabases(f.Databases))
	}
	kinds, err := f.Kinds()
	if err != nil {
		return nil, nil, err
	}
	if len(kinds) > 0 {
		opts = append(opts, replicator.WithTypes(kinds...))
	}
	if len(f.KeyPrefixes) > 0 {
		opts = append(opts, replicator.WithFilter(replication.KeyPrefixFilter(f.KeyPrefixes...)))
	}
	if len(f.KeyPatterns) > 0 {
		opts = append(opts,
			replicator.WithFilter(replication.KeyPatternFilter(f.KeyPatterns...)),
			replicator.WithOperationFilter(replication.OperationKeyPatternFilter(f.KeyPatterns...)),
		)
	}
	if len(f.Commands) > 0 {
		opts = append(opts, replicator.WithCommandFilters(f.Commands))
	}

	release := func() {}
	if f.LuaScript != "" {
		lf, err := lua.LoadFilter(f.LuaScript)
		if err != nil {
			return nil, nil, err
		}
		if lf.HasEntityPredicate() {
			opts = append(opts, replicator.WithFilter(lf))
		}
		if lf.HasOperationPredicate() {
			opts = append(opts, replicator.WithOperationFilter(lf))
		}
		release = func() {
			if err := lf.Err(); err != nil {
				l.WithError(err).WithField("failures", lf.Failures()).Warn("Lua filter raised errors")
			}
			lf.Close()
		}
	}
	return opts, release, nil
}

// newReplicator creates a replicator from the global config with observers
// attached
func newReplicator(observers ...replication.Observer) (*replicator.Replicator, func(), error) {
	opts, release, err := options(conf)
	if err != nil {
		return nil, nil, err
	}
	r, err := replicator.New(opts...)
	if err != nil {
		release()
		return nil, nil, err
	}
	for _, o := range observers {
		if err := r.AddObserver(o); err != nil {
			release()
			return nil, nil, err
		}
	}
	return r, release, nil
}

// snapshotStopper closes the replicator once the snapshot is dispatched
type snapshotStopper struct {
	replication.NopObserver
	r *replicator.Replicator
}

func (s *snapshotStopper) PostSnapshot(replication.SnapshotSummary) error {
	return s.r.Close()
}

// stopAfterSnapshot makes a master replication end after the snapshot. File
// sources are left to run to their end.
func stopAfterSnapshot(r *replicator.Replicator) error {
	if conf.Source.File != "" {
		return nil
	}
	return r.AddObserver(&snapshotStopper{r: r})
}
