// Package config holds the rdb-replicator YAML configuration.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/raniellyferreira/redis-replicator/config/logger"
	"github.com/raniellyferreira/redis-replicator/rdb"
)

const (
	DefaultBufferSize        = 64 * datasize.KB
	DefaultConnectTimeout    = 5 * time.Second
	DefaultReadTimeout       = 30 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultHeartbeatInterval = time.Second
	MaxDatabase              = 15
)

// Config is the rdb-replicator configuration file
type Config struct {
	Source   Source        `yaml:"source"`
	Filters  Filters       `yaml:"filters"`
	Decode   Decode        `yaml:"decode"`
	Timeouts Timeouts      `yaml:"timeouts"`
	HTTP     HTTP          `yaml:"http"`
	Log      logger.Config `yaml:"log"`

	Version string `yaml:"-"`
}

// Source selects a snapshot file or a master. File takes precedence.
type Source struct {
	File          string `yaml:"file"`
	Master        string `yaml:"master"` // host:port
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	ListeningPort int    `yaml:"listening_port"`
	TLS           TLS    `yaml:"tls"`
}

type TLS struct {
	Enabled            bool   `yaml:"enabled"`
	ServerName         string `yaml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// Filters restricts what is dispatched. Empty lists accept everything.
type Filters struct {
	Databases   []int    `yaml:"databases"`
	Types       []string `yaml:"types"` // rdb.Kind names
	KeyPrefixes []string `yaml:"key_prefixes"`
	KeyPatterns []string `yaml:"key_patterns"` // glob patterns
	Commands    []string `yaml:"commands"`
	LuaScript   string   `yaml:"lua_script"` // path to a filter script
}

type Decode struct {
	Checksum           string            `yaml:"checksum"` // report, ignore or strict
	AllowNewerVersions bool              `yaml:"allow_newer_versions"`
	BufferSize         datasize.ByteSize `yaml:"buffer_size"`
}

type Timeouts struct {
	Connect   time.Duration `yaml:"connect"`
	Read      time.Duration `yaml:"read"`
	Write     time.Duration `yaml:"write"`
	Heartbeat time.Duration `yaml:"heartbeat"` // 0 disables REPLCONF ACK
}

type HTTP struct {
	Address string `yaml:"address"` // Address like ":8000"
}

// Check validates the configuration
func (c Config) Check() error {
	if err := c.Log.Check(); err != nil {
		return err
	}
	if c.Source.File == "" && c.Source.Master == "" {
		return fmt.Errorf("source: one of file or master is required")
	}
	if c.Source.File == "" {
		if _, _, err := net.SplitHostPort(c.Source.Master); err != nil {
			return fmt.Errorf("source.master: %v", err)
		}
	}
	if c.Source.ListeningPort < 0 || c.Source.ListeningPort > 65535 {
		return fmt.Errorf("source.listening_port: out of range")
	}
	if db, ok := lo.Find(c.Filters.Databases, func(db int) bool {
		return db < 0 || db > MaxDatabase
	}); ok {
		return fmt.Errorf("filters.databases: %d out of range 0-%d", db, MaxDatabase)
	}
	if _, err := c.Filters.Kinds(); err != nil {
		return err
	}
	if _, err := rdb.ParseChecksumPolicy(c.Decode.Checksum); err != nil {
		return fmt.Errorf("decode.checksum: %v", err)
	}
	if c.Decode.BufferSize < datasize.KB {
		return fmt.Errorf("decode.buffer_size: must be at least 1KB")
	}
	if c.Timeouts.Connect <= 0 || c.Timeouts.Read <= 0 || c.Timeouts.Write <= 0 {
		return fmt.Errorf("timeouts: connect, read and write must be positive")
	}
	if c.Timeouts.Heartbeat < 0 {
		return fmt.Errorf("timeouts.heartbeat: must not be negative")
	}
	if c.HTTP.Address != "" {
		if _, _, err := net.SplitHostPort(c.HTTP.Address); err != nil {
			return fmt.Errorf("http.address: %v", err)
		}
	}
	return nil
}

// Kinds parses the type filter
func (f Filters) Kinds() ([]rdb.Kind, error) {
	var kinds []rdb.Kind
	for _, name := range f.Types {
		k, ok := rdb.ParseKind(name)
		if !ok {
			return nil, fmt.Errorf("filters.types: unknown type %q", name)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// ChecksumPolicy returns the parsed decode.checksum
func (c Config) ChecksumPolicy() rdb.ChecksumPolicy {
	p, _ := rdb.ParseChecksumPolicy(c.Decode.Checksum)
	return p
}

// String returns the configuration as YAML with the password masked
func (c Config) String() string {
	if c.Source.Password != "" {
		c.Source.Password = "***"
	}
	y, err := yaml.Marshal(c)
	if err != nil {
		logrus.Panicf("YAML marshal of config failed: %v", err) // Should never happen
	}
	return string(y)
}

// LoadYAML loads config from YAML. Environment variables are expanded when
// expandEnv is set. Unknown keys are an error.
func (c *Config) LoadYAML(yamlContents []byte, expandEnv bool) error {
	if expandEnv {
		yamlContents = []byte(os.ExpandEnv(string(yamlContents)))
	}
	return yaml.UnmarshalStrict(yamlContents, c)
}

// LoadYAMLFile loads config from a YAML file
func (c *Config) LoadYAMLFile(fpath string, expandEnv bool) error {
	contents, err := os.ReadFile(fpath)
	if err != nil {
		return errors.Wrap(err, "open yaml file")
	}
	return c.LoadYAML(contents, expandEnv)
}

// Default returns the default configuration
func Default() Config {
	return Config{
		Source: Source{
			Master: "localhost:6379",
		},
		Decode: Decode{
			Checksum:   rdb.ChecksumReport.String(),
			BufferSize: DefaultBufferSize,
		},
		Timeouts: Timeouts{
			Connect:   DefaultConnectTimeout,
			Read:      DefaultReadTimeout,
			Write:     DefaultWriteTimeout,
			Heartbeat: DefaultHeartbeatInterval,
		},
		Log: logger.DefaultConfig,
	}
}
