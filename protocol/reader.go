package protocol

import (
	"bufio"
	"io"
	"slices"
	"strconv"

	"github.com/pkg/errors"
)

const (
	// CRLF is the Redis protocol line terminator
	CRLF = "\r\n"

	// maxBulkSize is the maximum size for bulk strings (512MB, as Redis)
	maxBulkSize = 512 * 1024 * 1024

	// maxArraySize is the maximum number of elements in an array
	maxArraySize = 1024 * 1024

	// maxLineSize bounds the header lines of a frame
	maxLineSize = 64 * 1024

	// readStep bounds what is allocated ahead of data that has not arrived
	readStep = 1024 * 1024

	// preallocElements caps the capacity reserved from an array header
	preallocElements = 1024

	// EOFMarkSize is the length of the delimiter used by diskless payloads
	EOFMarkSize = 40
)

// ErrProtocolFraming is returned for a malformed frame. The stream cannot be
// resynchronized after it.
var ErrProtocolFraming = errors.New("protocol framing error")

func framingf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrProtocolFraming, format, args...)
}

// ByteReader is what the Reader consumes. *bufio.Reader and *rdb.Cursor
// both satisfy it.
type ByteReader interface {
	io.Reader
	io.ByteReader
}

// Reader is a streaming RESP protocol reader.
//
// A clean end of input before the first byte of a value is returned as
// io.EOF. An end of input inside a value is returned as io.ErrUnexpectedEOF
// (or whatever truncation error the source reports).
type Reader struct {
	br      ByteReader
	n       int64
	scratch []byte // reusable line buffer
}

// NewReader creates a new streaming RESP reader. r is used directly when it
// already implements ByteReader.
func NewReader(r io.Reader) *Reader {
	br, ok := r.(ByteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{
		br:      br,
		scratch: make([]byte, 0, 512),
	}
}

// Consumed returns the number of bytes read through this reader
func (r *Reader) Consumed() int64 {
	return r.n
}

// ReadNext reads the next RESP value from the stream
func (r *Reader) ReadNext() (Value, error) {
	typeByte, err := r.readByte()
	if err != nil {
		return Value{}, err
	}
	return r.readValue(typeByte)
}

func (r *Reader) readValue(typeByte byte) (Value, error) {
	switch ValueType(typeByte) {
	case TypeSimpleString, TypeError:
		line, err := r.readLine()
		if err != nil {
			return Value{}, err
		}
		return Value{Type: ValueType(typeByte), Data: append([]byte(nil), line...)}, nil

	case TypeInteger:
		line, err := r.readLine()
		if err != nil {
			return Value{}, err
		}
		integer, err := parseInt64(line)
		if err != nil {
			return Value{}, framingf("invalid integer %q", line)
		}
		return Value{Type: TypeInteger, Integer: integer}, nil

	case TypeBulkString:
		return r.readBulkString()

	case TypeArray:
		return r.readArray()
	}

	if typeByte == 0 {
		return Value{}, framingf("unknown RESP type: empty byte (connection may be closed)")
	}
	return Value{}, framingf("unknown RESP type %q (0x%02x)", typeByte, typeByte)
}

// ReadCommand reads one multi-bulk frame and returns it as a Command. Only
// arrays of bulk strings are accepted. At a clean end of input it returns
// io.EOF; a frame cut short returns a truncation error and no command.
func (r *Reader) ReadCommand() (*Command, error) {
	typeByte, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if ValueType(typeByte) != TypeArray {
		return nil, framingf("expected array, got %q (0x%02x)", typeByte, typeByte)
	}

	count, err := r.readHeaderInt("array length", maxArraySize)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, framingf("empty command array (%d)", count)
	}

	args := make([][]byte, 0, min(count, preallocElements))
	for i := int64(0); i < count; i++ {
		b, err := r.readByte()
		if err != nil {
			return nil, truncated(err)
		}
		if ValueType(b) != TypeBulkString {
			return nil, framingf("expected bulk string for element %d, got %q", i, b)
		}
		arg, err := r.readBulkData()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return NewCommand(args), nil
}

// PayloadHeader describes the bulk header that precedes a replication
// snapshot
type PayloadHeader struct {
	Length  int64  // payload size, -1 for a diskless transfer
	EOFMark []byte // delimiter of a diskless transfer
}

// ReadPayloadHeader reads the "$<len>" or "$EOF:<mark>" line sent by a
// master before the snapshot. Keepalive newlines are skipped.
func (r *Reader) ReadPayloadHeader() (PayloadHeader, error) {
	for {
		b, err := r.readByte()
		if err != nil {
			return PayloadHeader{}, err
		}
		if b == '\n' {
			continue
		}
		if ValueType(b) == TypeError {
			line, err := r.readLine()
			if err != nil {
				return PayloadHeader{}, err
			}
			return PayloadHeader{}, errors.Errorf("master error: %s", line)
		}
		if ValueType(b) != TypeBulkString {
			return PayloadHeader{}, framingf("expected payload header, got %q", b)
		}
		break
	}

	line, err := r.readLine()
	if err != nil {
		return PayloadHeader{}, err
	}
	if len(line) > 4 && string(line[:4]) == "EOF:" {
		mark := append([]byte(nil), line[4:]...)
		if len(mark) != EOFMarkSize {
			return PayloadHeader{}, framingf("EOF mark of %d bytes", len(mark))
		}
		return PayloadHeader{Length: -1, EOFMark: mark}, nil
	}
	length, err := parseInt64(line)
	if err != nil || length < 0 {
		return PayloadHeader{}, framingf("invalid payload length %q", line)
	}
	return PayloadHeader{Length: length}, nil
}

// parseInt64 parses an int64 from a byte slice without allocation
func parseInt64(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, strconv.ErrSyntax
	}

	var neg bool
	var i int

	switch b[0] {
	case '-':
		neg = true
		i = 1
	case '+':
		i = 1
	}

	if i >= len(b) {
		return 0, strconv.ErrSyntax
	}

	var n int64
	for ; i < len(b); i++ {
		if b[i] < '0' || b[i] > '9' {
			return 0, strconv.ErrSyntax
		}
		if n > (1<<63-1)/10 {
			return 0, strconv.ErrRange
		}
		n = n*10 + int64(b[i]-'0')
	}

	if neg {
		return -n, nil
	}
	return n, nil
}

// readHeaderInt reads the length line of a bulk string or array. -1 is
// returned as is for null values.
func (r *Reader) readHeaderInt(what string, max int64) (int64, error) {
	line, err := r.readLine()
	if err != nil {
		return 0, err
	}
	n, err := parseInt64(line)
	if err != nil {
		return 0, framingf("invalid %s %q", what, line)
	}
	if n < -1 || n > max {
		return 0, framingf("invalid %s %d", what, n)
	}
	return n, nil
}

func (r *Reader) readBulkString() (Value, error) {
	length, err := r.readHeaderInt("bulk string length", maxBulkSize)
	if err != nil {
		return Value{}, err
	}
	if length == -1 {
		return Value{Type: TypeBulkString, IsNull: true}, nil
	}
	data, err := r.readBulkBody(length)
	if err != nil {
		return Value{}, err
	}
	return Value{Type: TypeBulkString, Data: data}, nil
}

// readBulkData reads the rest of a bulk string whose '$' has been consumed.
// Null bulk strings are not valid command arguments.
func (r *Reader) readBulkData() ([]byte, error) {
	length, err := r.readHeaderInt("bulk string length", maxBulkSize)
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, framingf("null bulk string in command")
	}
	return r.readBulkBody(length)
}

// readBulkBody reads length bytes and the CRLF after them. The buffer
// grows in steps as data arrives so a bogus length cannot force a large
// allocation.
func (r *Reader) readBulkBody(length int64) ([]byte, error) {
	data := make([]byte, 0, min(length, readStep))
	for int64(len(data)) < length {
		start := len(data)
		step := int(min(length-int64(start), readStep))
		data = slices.Grow(data, step)[:start+step]
		n, err := io.ReadFull(r.br, data[start:])
		r.n += int64(n)
		if err != nil {
			return nil, truncated(err)
		}
	}
	if err := r.expectCRLF(); err != nil {
		return nil, err
	}
	return data, nil
}

func (r *Reader) readArray() (Value, error) {
	length, err := r.readHeaderInt("array length", maxArraySize)
	if err != nil {
		return Value{}, err
	}
	if length == -1 {
		return Value{Type: TypeArray, IsNull: true}, nil
	}

	array := make([]Value, 0, min(length, preallocElements))
	for i := int64(0); i < length; i++ {
		b, err := r.readByte()
		if err != nil {
			return Value{}, truncated(err)
		}
		value, err := r.readValue(b)
		if err != nil {
			return Value{}, err
		}
		array = append(array, value)
	}
	return Value{Type: TypeArray, Array: array}, nil
}

// Read reads raw bytes left in the stream, such as the snapshot payload
// that follows the handshake replies
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.br.Read(p)
	r.n += int64(n)
	return n, err
}

// readRaw reads exactly len(p) bytes
func (r *Reader) readRaw(p []byte) error {
	n, err := io.ReadFull(r.br, p)
	r.n += int64(n)
	if err != nil {
		return truncated(err)
	}
	return nil
}

// readLine reads a line terminated by CRLF. The returned slice is only valid
// until the next read.
func (r *Reader) readLine() ([]byte, error) {
	r.scratch = r.scratch[:0]
	for {
		b, err := r.readByte()
		if err != nil {
			return nil, truncated(err)
		}
		if b == '\n' {
			break
		}
		if len(r.scratch) >= maxLineSize {
			return nil, framingf("header line longer than %d bytes", maxLineSize)
		}
		r.scratch = append(r.scratch, b)
	}

	if len(r.scratch) == 0 || r.scratch[len(r.scratch)-1] != '\r' {
		return nil, framingf("missing CRLF terminator")
	}
	return r.scratch[:len(r.scratch)-1], nil
}

// expectCRLF reads and validates the CRLF after bulk data
func (r *Reader) expectCRLF() error {
	var crlf [2]byte
	if err := r.readRaw(crlf[:]); err != nil {
		return err
	}
	if crlf[0] != '\r' || crlf[1] != '\n' {
		return framingf("expected CRLF terminator [13, 10], got [%d, %d]", crlf[0], crlf[1])
	}
	return nil
}

func (r *Reader) readByte() (byte, error) {
	b, err := r.br.ReadByte()
	if err != nil {
		return 0, err
	}
	r.n++
	return b, nil
}

// truncated maps a plain EOF in the middle of a value to io.ErrUnexpectedEOF
func truncated(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
