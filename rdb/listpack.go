package rdb

import "encoding/binary"

const (
	listpackHeaderSize = 6
	listpackEnd        = 0xff
	listpackLenUnknown = 0xffff
)

// decodeListpack returns the elements of a listpack, rendering integer
// elements as decimal text.
//
// Layout: <total u32><count u16><element>...<0xff>, each element being
// <encoding+data><backlen>.
func decodeListpack(buf []byte) ([][]byte, error) {
	if len(buf) < listpackHeaderSize+1 {
		return nil, truncatedf("listpack of %d bytes", len(buf))
	}
	total := int(binary.LittleEndian.Uint32(buf[0:4]))
	if total > len(buf) {
		return nil, truncatedf("listpack declares %d bytes, have %d", total, len(buf))
	}
	count := int(binary.LittleEndian.Uint16(buf[4:6]))

	r := &packedReader{name: "listpack", buf: buf[:total], pos: listpackHeaderSize}
	var out [][]byte
	if count != listpackLenUnknown {
		out = make([][]byte, 0, count)
	}

	for {
		b, err := r.peek()
		if err != nil {
			return nil, err
		}
		if b == listpackEnd {
			break
		}
		start := r.pos
		elem, err := readListpackElement(r)
		if err != nil {
			return nil, err
		}
		if err := r.skip(listpackBacklenSize(r.pos - start)); err != nil {
			return nil, err
		}
		out = append(out, elem)
	}

	if count != listpackLenUnknown && count != len(out) {
		return nil, encodingf("listpack declares %d elements, found %d", count, len(out))
	}
	return out, nil
}

func readListpackElement(r *packedReader) ([]byte, error) {
	b, err := r.byte()
	if err != nil {
		return nil, err
	}

	switch {
	case b&0x80 == 0: // 7-bit unsigned
		return formatInt(int64(b & 0x7f)), nil

	case b&0xc0 == 0x80: // 6-bit string length
		return r.takeCopy(int(b & 0x3f))

	case b&0xe0 == 0xc0: // 13-bit signed
		b2, err := r.byte()
		if err != nil {
			return nil, err
		}
		v := int64(b&0x1f)<<8 | int64(b2)
		if v >= 1<<12 {
			v -= 1 << 13
		}
		return formatInt(v), nil

	case b&0xf0 == 0xe0: // 12-bit string length
		b2, err := r.byte()
		if err != nil {
			return nil, err
		}
		return r.takeCopy(int(b&0x0f)<<8 | int(b2))
	}

	switch b {
	case 0xf0: // 32-bit string length
		lb, err := r.take(4)
		if err != nil {
			return nil, err
		}
		return r.takeCopy(int(binary.LittleEndian.Uint32(lb)))
	case 0xf1:
		return listpackInt(r, 2)
	case 0xf2:
		return listpackInt(r, 3)
	case 0xf3:
		return listpackInt(r, 4)
	case 0xf4:
		return listpackInt(r, 8)
	}
	return nil, encodingf("listpack element header 0x%02x", b)
}

func listpackInt(r *packedReader, size int) ([]byte, error) {
	v, err := r.intLE(size)
	if err != nil {
		return nil, err
	}
	return formatInt(v), nil
}

// listpackBacklenSize returns how many bytes encode the back length of an
// element whose encoding and data occupy l bytes
func listpackBacklenSize(l int) int {
	switch {
	case l <= 127:
		return 1
	case l < 16383:
		return 2
	case l < 2097151:
		return 3
	case l < 268435455:
		return 4
	default:
		return 5
	}
}
