package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raniellyferreira/redis-replicator/rdb"
)

const testConfig = `
source:
  master: redis.example.com:6380
  username: replicator
  password: ${TEST_REDIS_PASSWORD}
  tls:
    enabled: true
    server_name: redis.example.com
filters:
  databases: [0, 2]
  types: [string, hash]
  commands: [SET, DEL]
decode:
  checksum: strict
  buffer_size: 1MB
timeouts:
  read: 1m
http:
  address: ":8500"
log:
  level: debug
`

func TestConfig_LoadYAML(t *testing.T) {
	t.Setenv("TEST_REDIS_PASSWORD", "secret")

	c := Default()
	require.NoError(t, c.LoadYAML([]byte(testConfig), true))
	require.NoError(t, c.Check())

	assert.Equal(t, "redis.example.com:6380", c.Source.Master)
	assert.Equal(t, "secret", c.Source.Password)
	assert.True(t, c.Source.TLS.Enabled)
	assert.Equal(t, []int{0, 2}, c.Filters.Databases)
	assert.Equal(t, rdb.ChecksumStrict, c.ChecksumPolicy())
	assert.Equal(t, datasize.MB, c.Decode.BufferSize)
	assert.Equal(t, time.Minute, c.Timeouts.Read)
	assert.Equal(t, DefaultConnectTimeout, c.Timeouts.Connect, "defaults survive partial files")
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "human", c.Log.Format)

	kinds, err := c.Filters.Kinds()
	require.NoError(t, err)
	assert.Equal(t, []rdb.Kind{rdb.KindString, rdb.KindHash}, kinds)

	assert.NotContains(t, c.String(), "secret")
	assert.Contains(t, c.String(), "***")
}

func TestConfig_LoadYAMLStrict(t *testing.T) {
	c := Default()
	err := c.LoadYAML([]byte("source:\n  mastr: localhost:6379\n"), false)
	assert.Error(t, err)
}

func TestConfig_LoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replicator.yaml")
	require.NoError(t, os.WriteFile(path, []byte("source:\n  file: /tmp/dump.rdb\n"), 0o644))

	c := Default()
	require.NoError(t, c.LoadYAMLFile(path, false))
	assert.Equal(t, "/tmp/dump.rdb", c.Source.File)
	require.NoError(t, c.Check())

	err := c.LoadYAMLFile(filepath.Join(t.TempDir(), "missing.yaml"), false)
	assert.Error(t, err)
}

func TestConfig_Check(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"no source", func(c *Config) { c.Source.Master = "" }},
		{"bad master", func(c *Config) { c.Source.Master = "localhost" }},
		{"bad port", func(c *Config) { c.Source.ListeningPort = 70000 }},
		{"bad database", func(c *Config) { c.Filters.Databases = []int{1, 16} }},
		{"bad type", func(c *Config) { c.Filters.Types = []string{"blob"} }},
		{"bad checksum", func(c *Config) { c.Decode.Checksum = "maybe" }},
		{"small buffer", func(c *Config) { c.Decode.BufferSize = 512 }},
		{"no read timeout", func(c *Config) { c.Timeouts.Read = 0 }},
		{"negative heartbeat", func(c *Config) { c.Timeouts.Heartbeat = -time.Second }},
		{"bad http address", func(c *Config) { c.HTTP.Address = "8000" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
	}

	require.NoError(t, Default().Check())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(&c)
			assert.Error(t, c.Check())
		})
	}
}
