package replication

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogrusLogger(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := NewLogrusLogger(logrus.NewEntry(base))

	l.Info("Snapshot received", "entities", 3, "bytes", int64(120))
	l.Debug("dangling", "key")
	l.Error("Session failed", 42, "x")

	entries := hook.AllEntries()
	require.Len(t, entries, 3)

	assert.Equal(t, logrus.InfoLevel, entries[0].Level)
	assert.Equal(t, "Snapshot received", entries[0].Message)
	assert.Equal(t, 3, entries[0].Data["entities"])
	assert.Equal(t, int64(120), entries[0].Data["bytes"])

	assert.Empty(t, entries[1].Data)
	assert.Equal(t, "x", entries[2].Data["42"])
}
