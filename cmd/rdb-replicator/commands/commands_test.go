package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raniellyferreira/redis-replicator/internal/rdbtest"
)

func writeSnapshot(t *testing.T) string {
	t.Helper()
	data := rdbtest.New(10).
		Aux("redis-ver", "6.2.6").
		SelectDB(0).
		String("a", "1").
		Expire(time.Unix(1893456000, 0)).String("b", "2").
		SelectDB(4).
		Hash("h", rdbtest.Pair{Key: "f", Value: "v"}).
		Bytes()
	data = append(data, rdbtest.Command("SELECT", "0")...)
	data = append(data, rdbtest.Command("SET", "c", "3")...)

	path := filepath.Join(t.TempDir(), "dump.aof")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCtx = context.Background()

	// Flags keep their values between runs
	dumpSkipAux, dumpOutput = false, "-"
	keyspaceRef = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestDigestCommand(t *testing.T) {
	path := writeSnapshot(t)
	out, err := execute(t, "digest", path)
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-f]{16} 3 keys\n$`, out)

	again, err := execute(t, "digest", path)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestCheckCommand(t *testing.T) {
	out, err := execute(t, "check", writeSnapshot(t))
	require.NoError(t, err)
	assert.Contains(t, out, "version:    10\n")
	assert.Contains(t, out, "entities:   3 (0 filtered)\n")
	assert.Contains(t, out, "operations: 2\n")
	assert.Contains(t, out, "db0:        keys=2,expires=1\n")
	assert.Contains(t, out, "db4:        keys=1,expires=0\n")
	assert.Contains(t, out, "checksum:   ok ")
}

func TestDumpCommand(t *testing.T) {
	out, err := execute(t, "dump", "--skip-aux", writeSnapshot(t))
	require.NoError(t, err)

	var types []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var doc map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &doc), line)
		types = append(types, doc["type"].(string))
	}
	assert.Equal(t, []string{"entity", "entity", "entity", "summary", "operation", "operation"}, types)
}

func TestKeyspaceCommand(t *testing.T) {
	out, err := execute(t, "keyspace", writeSnapshot(t))
	require.NoError(t, err)
	assert.Equal(t, "db0:keys=2,expires=1\ndb4:keys=1,expires=0\n", out)
}

func TestCommandMissingFile(t *testing.T) {
	_, err := execute(t, "digest", filepath.Join(t.TempDir(), "missing.rdb"))
	assert.Error(t, err)
}

func TestParseKeyspaceInfo(t *testing.T) {
	info := "# Keyspace\r\ndb0:keys=2,expires=1,avg_ttl=1000\r\ndb9:keys=10,expires=0,avg_ttl=0,subexpiry=0\r\n"
	assert.Equal(t, KeyspaceInfo{
		0: {Keys: 2, Expires: 1},
		9: {Keys: 10, Expires: 0},
	}, parseKeyspaceInfo(info))
	assert.Empty(t, parseKeyspaceInfo("# Keyspace\r\n"))
}

func TestCompareKeyspaceInfo(t *testing.T) {
	ref := KeyspaceInfo{0: {Keys: 2, Expires: 1}, 1: {Keys: 5}, 3: {Keys: 1}}
	snap := KeyspaceInfo{0: {Keys: 2, Expires: 1}, 1: {Keys: 4}, 2: {Keys: 7}}

	var out bytes.Buffer
	n := compareKeyspaceInfo(&out, ref, snap, nil)
	assert.Equal(t, 3, n)
	assert.Equal(t, strings.Join([]string{
		"db0: match keys=2,expires=1",
		"db1: differs, reference keys=5,expires=0 snapshot keys=4,expires=0",
		"db2: missing in reference, snapshot has keys=7,expires=0",
		"db3: missing in snapshot, reference has keys=1,expires=0",
		"",
	}, "\n"), out.String())

	out.Reset()
	assert.Equal(t, 0, compareKeyspaceInfo(&out, ref, snap, []int{0}))
}
