package rdb

import (
	"encoding/binary"
	"strconv"
)

// packedReader walks an in-memory packed buffer (ziplist, listpack, zipmap)
type packedReader struct {
	name string
	buf  []byte
	pos  int
}

func (r *packedReader) peek() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, truncatedf("%s ends without terminator", r.name)
	}
	return r.buf[r.pos], nil
}

func (r *packedReader) byte() (byte, error) {
	b, err := r.peek()
	if err != nil {
		return 0, err
	}
	r.pos++
	return b, nil
}

func (r *packedReader) take(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, truncatedf("%s entry of %d bytes at %d overruns buffer of %d", r.name, n, r.pos, len(r.buf))
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *packedReader) skip(n int) error {
	_, err := r.take(n)
	return err
}

// takeCopy returns a copy so decoded values never alias the packed buffer
func (r *packedReader) takeCopy(n int) ([]byte, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (r *packedReader) intLE(size int) (int64, error) {
	b, err := r.take(size)
	if err != nil {
		return 0, err
	}
	switch size {
	case 1:
		return int64(int8(b[0])), nil
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(b))), nil
	case 3:
		u := uint32(b[0])<<8 | uint32(b[1])<<16 | uint32(b[2])<<24
		return int64(int32(u) >> 8), nil
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(b))), nil
	case 8:
		return int64(binary.LittleEndian.Uint64(b)), nil
	}
	return 0, encodingf("%s integer of %d bytes", r.name, size)
}

func formatInt(v int64) []byte {
	return strconv.AppendInt(nil, v, 10)
}

func splitPairs(name string, items [][]byte) ([]HashField, error) {
	if len(items)%2 != 0 {
		return nil, encodingf("%s holds an odd number of entries (%d)", name, len(items))
	}
	fields := make([]HashField, 0, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		fields = append(fields, HashField{Field: items[i], Value: items[i+1]})
	}
	return fields, nil
}

func splitScores(name string, items [][]byte) ([]ZSetMember, error) {
	if len(items)%2 != 0 {
		return nil, encodingf("%s holds an odd number of entries (%d)", name, len(items))
	}
	members := make([]ZSetMember, 0, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		score, err := parseScore(items[i+1])
		if err != nil {
			return nil, err
		}
		members = append(members, ZSetMember{Member: items[i], Score: score})
	}
	return members, nil
}
