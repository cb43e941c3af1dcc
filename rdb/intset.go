package rdb

import "encoding/binary"

// decodeIntset returns the members of an intset as decimal text.
// Layout: <encoding u32 (2, 4 or 8)><length u32><members, little endian>.
func decodeIntset(buf []byte) ([][]byte, error) {
	if len(buf) < 8 {
		return nil, truncatedf("intset of %d bytes", len(buf))
	}
	width := int(binary.LittleEndian.Uint32(buf[0:4]))
	n := int(binary.LittleEndian.Uint32(buf[4:8]))
	if width != 2 && width != 4 && width != 8 {
		return nil, encodingf("intset width %d", width)
	}
	if n < 0 || len(buf)-8 < n*width {
		return nil, truncatedf("intset of %d members needs %d bytes, have %d", n, n*width, len(buf)-8)
	}

	r := &packedReader{name: "intset", buf: buf, pos: 8}
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		v, err := r.intLE(width)
		if err != nil {
			return nil, err
		}
		out = append(out, formatInt(v))
	}
	return out, nil
}
