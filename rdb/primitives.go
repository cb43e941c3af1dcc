package rdb

import (
	"encoding/binary"
	"math"
	"strconv"
	"time"
)

// Length encoding classes, selected by the top two bits of the first byte
const (
	len6Bit    = 0
	len14Bit   = 1
	len32Or64  = 2
	lenEncoded = 3

	len32 = 0x80
	len64 = 0x81
)

// Special string encodings, selected by the low six bits when the class is
// lenEncoded
const (
	encInt8  = 0
	encInt16 = 1
	encInt32 = 2
	encLZF   = 3
)

// readLength reads a length-prefixed integer. When encoded is true the
// returned value is one of the enc* special string markers instead of a length.
func (p *Parser) readLength() (value uint64, encoded bool, err error) {
	b, err := p.cur.ReadByte()
	if err != nil {
		return 0, false, err
	}

	switch b >> 6 {
	case len6Bit:
		return uint64(b & 0x3f), false, nil

	case len14Bit:
		b2, err := p.cur.ReadByte()
		if err != nil {
			return 0, false, err
		}
		return uint64(b&0x3f)<<8 | uint64(b2), false, nil

	case len32Or64:
		switch b {
		case len32:
			v, err := p.readUint32(binary.BigEndian)
			return uint64(v), false, err
		case len64:
			v, err := p.readUint64(binary.BigEndian)
			return v, false, err
		default:
			return 0, false, encodingf("invalid length prefix 0x%02x", b)
		}

	default:
		return uint64(b & 0x3f), true, nil
	}
}

// readLen reads a plain length, rejecting special encodings
func (p *Parser) readLen() (uint64, error) {
	v, encoded, err := p.readLength()
	if err != nil {
		return 0, err
	}
	if encoded {
		return 0, encodingf("expected length, got string encoding %d", v)
	}
	return v, nil
}

// readCount reads a length used as an element count and checks it fits an int
func (p *Parser) readCount() (int, error) {
	v, err := p.readLen()
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt32 {
		return 0, encodingf("element count %d too large", v)
	}
	return int(v), nil
}

// readString reads a string in any of its encodings. Integer-encoded strings
// are returned as their decimal text.
func (p *Parser) readString() ([]byte, error) {
	v, encoded, err := p.readLength()
	if err != nil {
		return nil, err
	}
	if !encoded {
		if v > math.MaxInt32 {
			return nil, encodingf("string length %d too large", v)
		}
		return p.cur.ReadFull(int(v))
	}

	switch v {
	case encInt8:
		b, err := p.cur.ReadByte()
		if err != nil {
			return nil, err
		}
		return strconv.AppendInt(nil, int64(int8(b)), 10), nil

	case encInt16:
		u, err := p.readUint16()
		if err != nil {
			return nil, err
		}
		return strconv.AppendInt(nil, int64(int16(u)), 10), nil

	case encInt32:
		u, err := p.readUint32(binary.LittleEndian)
		if err != nil {
			return nil, err
		}
		return strconv.AppendInt(nil, int64(int32(u)), 10), nil

	case encLZF:
		return p.readLZFString()

	default:
		return nil, encodingf("invalid string encoding %d", v)
	}
}

// readLZFString reads the compressed length, uncompressed length and payload
func (p *Parser) readLZFString() ([]byte, error) {
	clen, err := p.readLen()
	if err != nil {
		return nil, err
	}
	ulen, err := p.readLen()
	if err != nil {
		return nil, err
	}
	if clen > math.MaxInt32 || ulen > math.MaxInt32 {
		return nil, corruptf("compressed lengths %d/%d too large", clen, ulen)
	}
	data, err := p.cur.ReadFull(int(clen))
	if err != nil {
		return nil, err
	}
	return lzfDecompress(data, int(ulen))
}

// readStringDouble reads the legacy text double encoding used by ZSET
func (p *Parser) readStringDouble() (float64, error) {
	n, err := p.cur.ReadByte()
	if err != nil {
		return 0, err
	}
	switch n {
	case 253:
		return math.NaN(), nil
	case 254:
		return math.Inf(1), nil
	case 255:
		return math.Inf(-1), nil
	}
	buf, err := p.cur.ReadFull(int(n))
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(string(buf), 64)
	if err != nil {
		return 0, encodingf("invalid double %q", buf)
	}
	return f, nil
}

// readBinaryDouble reads a little-endian IEEE-754 double
func (p *Parser) readBinaryDouble() (float64, error) {
	u, err := p.readUint64(binary.LittleEndian)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(u), nil
}

// readBinaryFloat reads a little-endian IEEE-754 float
func (p *Parser) readBinaryFloat() (float32, error) {
	u, err := p.readUint32(binary.LittleEndian)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(u), nil
}

// readMillisTime reads an 8-byte little-endian unix time in milliseconds
func (p *Parser) readMillisTime() (time.Time, error) {
	u, err := p.readUint64(binary.LittleEndian)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(int64(u)), nil
}

func (p *Parser) readUint16() (uint16, error) {
	var buf [2]byte
	if err := p.cur.ReadInto(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

func (p *Parser) readUint32(order binary.ByteOrder) (uint32, error) {
	var buf [4]byte
	if err := p.cur.ReadInto(buf[:]); err != nil {
		return 0, err
	}
	return order.Uint32(buf[:]), nil
}

func (p *Parser) readUint64(order binary.ByteOrder) (uint64, error) {
	var buf [8]byte
	if err := p.cur.ReadInto(buf[:]); err != nil {
		return 0, err
	}
	return order.Uint64(buf[:]), nil
}

// parseScore parses a sorted set score stored as a packed string or integer
func parseScore(b []byte) (float64, error) {
	switch string(b) {
	case "inf", "+inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	case "nan":
		return math.NaN(), nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return 0, encodingf("invalid score %q", b)
	}
	return f, nil
}
