package rdb

import "encoding/binary"

const (
	zipmapBigLen = 254
	zipmapEnd    = 0xff
)

// decodeZipmap returns the fields of a zipmap (Redis < 2.6 small hashes).
// Layout: <zmlen u8>(<len><key><len><free u8><value><free bytes>)...<0xff>.
func decodeZipmap(buf []byte) ([]HashField, error) {
	r := &packedReader{name: "zipmap", buf: buf}
	if err := r.skip(1); err != nil {
		return nil, err
	}

	var fields []HashField
	for {
		b, err := r.peek()
		if err != nil {
			return nil, err
		}
		if b == zipmapEnd {
			return fields, nil
		}

		klen, err := zipmapLen(r)
		if err != nil {
			return nil, err
		}
		key, err := r.takeCopy(klen)
		if err != nil {
			return nil, err
		}
		vlen, err := zipmapLen(r)
		if err != nil {
			return nil, err
		}
		free, err := r.byte()
		if err != nil {
			return nil, err
		}
		val, err := r.takeCopy(vlen)
		if err != nil {
			return nil, err
		}
		if err := r.skip(int(free)); err != nil {
			return nil, err
		}
		fields = append(fields, HashField{Field: key, Value: val})
	}
}

func zipmapLen(r *packedReader) (int, error) {
	b, err := r.byte()
	if err != nil {
		return 0, err
	}
	switch {
	case b < zipmapBigLen:
		return int(b), nil
	case b == zipmapBigLen:
		lb, err := r.take(4)
		if err != nil {
			return 0, err
		}
		return int(binary.LittleEndian.Uint32(lb)), nil
	}
	return 0, encodingf("zipmap length header 0x%02x", b)
}
