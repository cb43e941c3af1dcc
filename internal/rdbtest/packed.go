package rdbtest

import (
	"encoding/binary"
	"strconv"
)

// Listpack encodes elements as a listpack. Elements that parse as integers
// use the smallest integer encoding.
func Listpack(elems ...string) []byte {
	out := make([]byte, 6, 64)
	for _, e := range elems {
		enc := listpackElement(e)
		out = append(out, enc...)
		out = append(out, listpackBacklen(len(enc))...)
	}
	out = append(out, 0xFF)
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(out)))
	n := len(elems)
	if n > 0xFFFF {
		n = 0xFFFF
	}
	binary.LittleEndian.PutUint16(out[4:6], uint16(n))
	return out
}

func listpackElement(e string) []byte {
	if v, err := strconv.ParseInt(e, 10, 64); err == nil && strconv.FormatInt(v, 10) == e {
		switch {
		case v >= 0 && v <= 127:
			return []byte{byte(v)}
		case v >= -4096 && v <= 4095:
			u := uint16(v) & 0x1fff
			return []byte{0xC0 | byte(u>>8), byte(u)}
		case v >= -32768 && v <= 32767:
			return binary.LittleEndian.AppendUint16([]byte{0xF1}, uint16(int16(v)))
		case v >= -(1<<23) && v < 1<<23:
			u := uint32(int32(v))
			return []byte{0xF2, byte(u), byte(u >> 8), byte(u >> 16)}
		case v >= -(1<<31) && v < 1<<31:
			return binary.LittleEndian.AppendUint32([]byte{0xF3}, uint32(int32(v)))
		default:
			return binary.LittleEndian.AppendUint64([]byte{0xF4}, uint64(v))
		}
	}
	n := len(e)
	switch {
	case n < 64:
		return append([]byte{0x80 | byte(n)}, e...)
	case n < 4096:
		return append([]byte{0xE0 | byte(n>>8), byte(n)}, e...)
	default:
		return append(binary.LittleEndian.AppendUint32([]byte{0xF0}, uint32(n)), e...)
	}
}

func listpackBacklen(l int) []byte {
	switch {
	case l <= 127:
		return []byte{byte(l)}
	case l < 16383:
		return []byte{byte(l >> 7), byte(l&127) | 128}
	case l < 2097151:
		return []byte{byte(l >> 14), byte((l>>7)&127) | 128, byte(l&127) | 128}
	case l < 268435455:
		return []byte{byte(l >> 21), byte((l>>14)&127) | 128, byte((l>>7)&127) | 128, byte(l&127) | 128}
	default:
		return []byte{byte(l >> 28), byte((l>>21)&127) | 128, byte((l>>14)&127) | 128, byte((l>>7)&127) | 128, byte(l&127) | 128}
	}
}

// Ziplist encodes entries as a ziplist. Entries that parse as integers use
// the smallest integer encoding.
func Ziplist(entries ...string) []byte {
	out := make([]byte, 10, 64)
	prev := 0
	tail := 10
	for _, e := range entries {
		tail = len(out)
		var entry []byte
		if prev < 254 {
			entry = append(entry, byte(prev))
		} else {
			entry = binary.LittleEndian.AppendUint32(append(entry, 0xFE), uint32(prev))
		}
		entry = append(entry, ziplistEncoding(e)...)
		out = append(out, entry...)
		prev = len(entry)
	}
	out = append(out, 0xFF)
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(out)))
	binary.LittleEndian.PutUint32(out[4:8], uint32(tail))
	n := len(entries)
	if n > 0xFFFF {
		n = 0xFFFF
	}
	binary.LittleEndian.PutUint16(out[8:10], uint16(n))
	return out
}

func ziplistEncoding(e string) []byte {
	if v, err := strconv.ParseInt(e, 10, 64); err == nil && strconv.FormatInt(v, 10) == e {
		switch {
		case v >= 0 && v <= 12:
			return []byte{0xF1 + byte(v)}
		case v >= -128 && v <= 127:
			return []byte{0xFE, byte(int8(v))}
		case v >= -32768 && v <= 32767:
			return binary.LittleEndian.AppendUint16([]byte{0xC0}, uint16(int16(v)))
		case v >= -(1<<23) && v < 1<<23:
			u := uint32(int32(v))
			return []byte{0xF0, byte(u), byte(u >> 8), byte(u >> 16)}
		case v >= -(1<<31) && v < 1<<31:
			return binary.LittleEndian.AppendUint32([]byte{0xD0}, uint32(int32(v)))
		default:
			return binary.LittleEndian.AppendUint64([]byte{0xE0}, uint64(v))
		}
	}
	n := len(e)
	switch {
	case n < 64:
		return append([]byte{byte(n)}, e...)
	case n < 16384:
		return append([]byte{0x40 | byte(n>>8), byte(n)}, e...)
	default:
		return append(binary.BigEndian.AppendUint32([]byte{0x80}, uint32(n)), e...)
	}
}

// Intset encodes members with the given width (2, 4 or 8)
func Intset(width int, members ...int64) []byte {
	out := binary.LittleEndian.AppendUint32(nil, uint32(width))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(members)))
	for _, m := range members {
		switch width {
		case 2:
			out = binary.LittleEndian.AppendUint16(out, uint16(int16(m)))
		case 4:
			out = binary.LittleEndian.AppendUint32(out, uint32(int32(m)))
		default:
			out = binary.LittleEndian.AppendUint64(out, uint64(m))
		}
	}
	return out
}

// Zipmap encodes fields as a zipmap with one byte of free space per value
func Zipmap(fields ...Pair) []byte {
	out := []byte{byte(len(fields))}
	for _, f := range fields {
		out = append(out, zipmapLen(len(f.Key))...)
		out = append(out, f.Key...)
		out = append(out, zipmapLen(len(f.Value))...)
		out = append(out, 1)
		out = append(out, f.Value...)
		out = append(out, 0)
	}
	return append(out, 0xFF)
}

func zipmapLen(n int) []byte {
	if n < 254 {
		return []byte{byte(n)}
	}
	return binary.LittleEndian.AppendUint32([]byte{254}, uint32(n))
}

// LZFCompress produces a valid LZF stream for p. Runs of a repeated byte
// become back references; everything else is emitted as literals.
func LZFCompress(p []byte) []byte {
	var out []byte
	var lit []byte
	flush := func() {
		for len(lit) > 0 {
			n := len(lit)
			if n > 32 {
				n = 32
			}
			out = append(out, byte(n-1))
			out = append(out, lit[:n]...)
			lit = lit[n:]
		}
	}

	for i := 0; i < len(p); {
		run := 1
		for i+run < len(p) && p[i+run] == p[i] && run < 264+1 {
			run++
		}
		if run < 4 {
			lit = append(lit, p[i])
			i++
			continue
		}
		// One literal then a back reference of distance 1 covering the rest.
		lit = append(lit, p[i])
		flush()
		length := run - 1 - 2
		if length < 7 {
			out = append(out, byte(length<<5), 0)
		} else {
			out = append(out, 7<<5, byte(length-7), 0)
		}
		i += run
	}
	flush()
	return out
}

// Command encodes args as a RESP multi-bulk frame
func Command(args ...string) []byte {
	out := []byte("*" + strconv.Itoa(len(args)) + "\r\n")
	for _, a := range args {
		out = append(out, "$"+strconv.Itoa(len(a))+"\r\n"...)
		out = append(out, a...)
		out = append(out, "\r\n"...)
	}
	return out
}
