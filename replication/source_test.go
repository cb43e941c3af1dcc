package replication

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSnapshotFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestOpenFile(t *testing.T) {
	snap := keysSnapshot(20).Bytes()

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, err := gw.Write(snap)
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	zw, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	zs := zw.EncodeAll(snap, nil)
	require.NoError(t, zw.Close())

	tests := []struct {
		name string
		data []byte
	}{
		{"dump.rdb", snap},
		{"dump.rdb.gz", gz.Bytes()},
		{"dump.rdb.zst", zs},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := OpenFile(writeSnapshotFile(t, tt.name, tt.data))
			require.NoError(t, err)
			assert.False(t, src.Info().Live)
			assert.Equal(t, int64(-1), src.Info().PayloadLength)

			rec := &recorder{}
			s := NewSession(src)
			require.NoError(t, s.AddObserver(rec))
			require.NoError(t, s.Run(context.Background()))
			assert.Len(t, rec.entities, 20)
			assert.True(t, rec.summaries[0].Verified())

			// Closing again is harmless
			assert.NoError(t, src.Close())
		})
	}
}

func TestOpenFileMissing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "missing.rdb"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(errors.Cause(err)))
}
