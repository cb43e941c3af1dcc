package rdb

import (
	"bytes"
	"testing"
)

func TestChecksumVector(t *testing.T) {
	if got := Checksum([]byte("123456789")); got != 0xe9c6d914c4b8d9ca {
		t.Errorf("Checksum(123456789) = %016x, want e9c6d914c4b8d9ca", got)
	}
	if got := Checksum(nil); got != 0 {
		t.Errorf("Checksum(nil) = %016x, want 0", got)
	}
}

func TestCursorChecksumMatchesBlockChecksum(t *testing.T) {
	data := bytes.Repeat([]byte("redis-replicator"), 1000)
	cur := NewCursor(bytes.NewReader(data), 16)

	// Mix the single byte and the block paths.
	for i := 0; i < 10; i++ {
		if _, err := cur.ReadByte(); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := cur.ReadFull(100); err != nil {
		t.Fatal(err)
	}
	if err := cur.Discard(len(data) - 110); err != nil {
		t.Fatal(err)
	}

	if cur.Checksum() != Checksum(data) {
		t.Errorf("cursor checksum = %016x, want %016x", cur.Checksum(), Checksum(data))
	}
	if cur.Offset() != int64(len(data)) {
		t.Errorf("Offset() = %d, want %d", cur.Offset(), len(data))
	}
	more, err := cur.More()
	if err != nil || more {
		t.Errorf("More() = %v, %v, want false, nil", more, err)
	}
}

func TestCursorChecksumOff(t *testing.T) {
	cur := NewCursor(bytes.NewReader([]byte("abcdef")), 0)
	cur.SetChecksumming(false)
	if _, err := cur.ReadFull(6); err != nil {
		t.Fatal(err)
	}
	if cur.Checksum() != 0 {
		t.Errorf("Checksum() = %016x with checksumming off, want 0", cur.Checksum())
	}
	if cur.Offset() != 6 {
		t.Errorf("Offset() = %d, want 6", cur.Offset())
	}
}
