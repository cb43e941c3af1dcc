package replicator

import (
	"crypto/tls"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/raniellyferreira/redis-replicator/rdb"
	"github.com/raniellyferreira/redis-replicator/replication"
)

// maxDatabase is the highest database index accepted by WithDatabases
const maxDatabase = 15

// config holds the configuration for a Replicator
type config struct {
	// Source: a snapshot or AOF file, or a master
	file           string
	masterAddr     string
	masterUser     string
	masterPassword string
	masterTLS      *tls.Config
	listeningPort  int

	// Filtering
	databases      []int
	commandFilters []string
	types          []rdb.Kind
	filters        []replication.Filter
	opFilters      []replication.OperationFilter

	// Decoding
	checksumPolicy rdb.ChecksumPolicy
	allowNewer     bool
	bufferSize     int

	// Timeouts
	connectTimeout    time.Duration
	readTimeout       time.Duration
	writeTimeout      time.Duration
	heartbeatInterval time.Duration

	// Observability
	logger  Logger
	metrics MetricsCollector
}

// defaultConfig returns a configuration with sensible defaults
func defaultConfig() *config {
	return &config{
		masterAddr:        "localhost:6379",
		bufferSize:        replication.DefaultBufferSize,
		connectTimeout:    5 * time.Second,
		readTimeout:       30 * time.Second,
		writeTimeout:      10 * time.Second,
		heartbeatInterval: replication.DefaultHeartbeatInterval,
		logger:            NewLogrusLogger(nil),
	}
}

// Option represents a configuration option for a Replicator
type Option func(*config) error

// WithFile reads from a snapshot or AOF file instead of a master. Gzip and
// zstd compressed files are accepted.
//
// Example:
//
//	WithFile("/var/lib/redis/dump.rdb")
func WithFile(path string) Option {
	return func(c *config) error {
		if path == "" {
			return ErrInvalidConfig
		}
		c.file = path
		return nil
	}
}

// WithMaster sets the master Redis server address
//
// Example:
//
//	WithMaster("redis.example.com:6379")
//	WithMaster("localhost:6379")
func WithMaster(addr string) Option {
	return func(c *config) error {
		if addr == "" {
			return &ConnectionError{
				Addr: addr,
				Err:  ErrInvalidConfig,
			}
		}
		c.masterAddr = addr
		c.file = ""
		return nil
	}
}

// WithMasterAuth sets authentication credentials for the master connection.
// Pass an empty username for the legacy password-only AUTH.
//
// Example:
//
//	WithMasterAuth("", "mypassword")
//	WithMasterAuth("replicator", "mypassword")
func WithMasterAuth(username, password string) Option {
	return func(c *config) error {
		c.masterUser = username
		c.masterPassword = password
		return nil
	}
}

// WithListeningPort sets the port announced to the master
func WithListeningPort(port int) Option {
	return func(c *config) error {
		if port < 0 || port > 65535 {
			return ErrInvalidConfig
		}
		c.listeningPort = port
		return nil
	}
}

// WithTLS configures TLS for the master connection
//
// Example:
//
//	WithTLS(&tls.Config{ServerName: "redis.example.com"})
func WithTLS(tlsConfig *tls.Config) Option {
	return func(c *config) error {
		c.masterTLS = tlsConfig
		return nil
	}
}

// WithSecureTLS configures TLS with certificate verification and TLS 1.2
// as the minimum version
//
// Example:
//
//	WithSecureTLS("redis.example.com")
func WithSecureTLS(serverName string) Option {
	return func(c *config) error {
		if serverName == "" {
			return ErrInvalidConfig
		}
		c.masterTLS = &tls.Config{
			ServerName: serverName,
			MinVersion: tls.VersionTLS12,
		}
		return nil
	}
}

// WithChecksumPolicy sets how a snapshot checksum mismatch is handled
// (default: report it in the snapshot summary)
func WithChecksumPolicy(policy rdb.ChecksumPolicy) Option {
	return func(c *config) error {
		if policy > rdb.ChecksumStrict {
			return ErrInvalidConfig
		}
		c.checksumPolicy = policy
		return nil
	}
}

// WithAllowNewerVersions accepts snapshots with a format version newer
// than the decoder knows
func WithAllowNewerVersions(allow bool) Option {
	return func(c *config) error {
		c.allowNewer = allow
		return nil
	}
}

// WithFilter adds an entity filter
func WithFilter(f replication.Filter) Option {
	return func(c *config) error {
		if f == nil {
			return ErrInvalidConfig
		}
		c.filters = append(c.filters, f)
		return nil
	}
}

// WithOperationFilter adds an operation filter
func WithOperationFilter(f replication.OperationFilter) Option {
	return func(c *config) error {
		if f == nil {
			return ErrInvalidConfig
		}
		c.opFilters = append(c.opFilters, f)
		return nil
	}
}

// WithCommandFilters sets which operations to dispatch
// Empty slice means dispatch all commands
//
// Example:
//
//	WithCommandFilters([]string{"SET", "DEL", "EXPIRE"})
func WithCommandFilters(commands []string) Option {
	return func(c *config) error {
		c.commandFilters = lo.Map(commands, func(s string, _ int) string {
			return strings.ToUpper(s)
		})
		return nil
	}
}

// WithDatabases sets which databases to replicate
// Empty slice means replicate all databases (default)
//
// Example:
//
//	WithDatabases([]int{0, 1, 2}) // Only databases 0, 1, and 2
func WithDatabases(databases []int) Option {
	return func(c *config) error {
		for _, db := range databases {
			if db < 0 || db > maxDatabase {
				return ErrInvalidConfig
			}
		}
		c.databases = lo.Uniq(databases)
		return nil
	}
}

// WithTypes restricts snapshot entities to the given value kinds
//
// Example:
//
//	WithTypes(rdb.KindString, rdb.KindHash)
func WithTypes(kinds ...rdb.Kind) Option {
	return func(c *config) error {
		c.types = lo.Uniq(kinds)
		return nil
	}
}

// WithBufferSize sets the read buffer size in bytes
func WithBufferSize(size int) Option {
	return func(c *config) error {
		if size <= 0 {
			return ErrInvalidConfig
		}
		c.bufferSize = size
		return nil
	}
}

// WithLogger sets a custom logger
//
// Example:
//
//	WithLogger(myCustomLogger)
func WithLogger(logger Logger) Option {
	return func(c *config) error {
		if logger == nil {
			return ErrInvalidConfig
		}
		c.logger = logger
		return nil
	}
}

// WithMetrics enables metrics collection with the provided collector
//
// Example:
//
//	WithMetrics(metrics.NewPrometheusCollector(prometheus.DefaultRegisterer))
func WithMetrics(collector MetricsCollector) Option {
	return func(c *config) error {
		c.metrics = collector
		return nil
	}
}

// WithConnectTimeout sets the connection timeout for the master connection
//
// Example:
//
//	WithConnectTimeout(10 * time.Second)
func WithConnectTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout <= 0 {
			return ErrInvalidConfig
		}
		c.connectTimeout = timeout
		return nil
	}
}

// WithReadTimeout sets the idle read timeout of the master connection
//
// Example:
//
//	WithReadTimeout(30 * time.Second)
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout <= 0 {
			return ErrInvalidConfig
		}
		c.readTimeout = timeout
		return nil
	}
}

// WithWriteTimeout sets the write timeout of handshake commands and ACKs
func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout <= 0 {
			return ErrInvalidConfig
		}
		c.writeTimeout = timeout
		return nil
	}
}

// WithHeartbeatInterval sets how often REPLCONF ACK is sent to the master.
// 0 disables the heartbeat.
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(c *config) error {
		if interval < 0 {
			return ErrInvalidConfig
		}
		c.heartbeatInterval = interval
		return nil
	}
}
