package rdb

import "encoding/binary"

const (
	ziplistHeaderSize = 10
	ziplistEnd        = 0xff
	ziplistBigPrevLen = 0xfe
	ziplistLenUnknown = 0xffff
)

// decodeZiplist returns the entries of a ziplist, rendering integer entries
// as decimal text.
//
// Layout: <zlbytes u32><zltail u32><zllen u16><entry>...<0xff>, each entry
// being <prevlen><encoding><data>.
func decodeZiplist(buf []byte) ([][]byte, error) {
	if len(buf) < ziplistHeaderSize+1 {
		return nil, truncatedf("ziplist of %d bytes", len(buf))
	}
	total := int(binary.LittleEndian.Uint32(buf[0:4]))
	if total > len(buf) {
		return nil, truncatedf("ziplist declares %d bytes, have %d", total, len(buf))
	}
	count := int(binary.LittleEndian.Uint16(buf[8:10]))

	r := &packedReader{name: "ziplist", buf: buf[:total], pos: ziplistHeaderSize}
	var out [][]byte
	if count != ziplistLenUnknown {
		out = make([][]byte, 0, count)
	}

	for {
		b, err := r.peek()
		if err != nil {
			return nil, err
		}
		if b == ziplistEnd {
			break
		}
		prevLen := 1
		if b == ziplistBigPrevLen {
			prevLen = 5
		}
		if err := r.skip(prevLen); err != nil {
			return nil, err
		}
		entry, err := readZiplistEntry(r)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}

	if count != ziplistLenUnknown && count != len(out) {
		return nil, encodingf("ziplist declares %d entries, found %d", count, len(out))
	}
	return out, nil
}

func readZiplistEntry(r *packedReader) ([]byte, error) {
	enc, err := r.byte()
	if err != nil {
		return nil, err
	}

	switch enc >> 6 {
	case 0:
		return r.takeCopy(int(enc & 0x3f))
	case 1:
		b2, err := r.byte()
		if err != nil {
			return nil, err
		}
		return r.takeCopy(int(enc&0x3f)<<8 | int(b2))
	case 2:
		if enc != 0x80 {
			return nil, encodingf("ziplist string header 0x%02x", enc)
		}
		lb, err := r.take(4)
		if err != nil {
			return nil, err
		}
		return r.takeCopy(int(binary.BigEndian.Uint32(lb)))
	}

	var size int
	switch enc {
	case 0xc0:
		size = 2
	case 0xd0:
		size = 4
	case 0xe0:
		size = 8
	case 0xf0:
		size = 3
	case 0xfe:
		size = 1
	default:
		if enc >= 0xf1 && enc <= 0xfd {
			return formatInt(int64(enc&0x0f) - 1), nil
		}
		return nil, encodingf("ziplist integer header 0x%02x", enc)
	}
	v, err := r.intLE(size)
	if err != nil {
		return nil, err
	}
	return formatInt(v), nil
}
