package rdb

import (
	"bufio"
	"io"
)

// DefaultBufferSize is the read buffer used when NewCursor is given 0
const DefaultBufferSize = 64 * 1024

// Cursor is a buffered reader that counts consumed bytes and, while
// checksumming is enabled, folds every consumed byte into a CRC-64.
//
// A Cursor is not safe for concurrent use. It is owned by the single
// goroutine decoding a session.
type Cursor struct {
	br       *bufio.Reader
	offset   int64
	crc      uint64
	checksum bool
}

// NewCursor creates a cursor over r with the given buffer size.
// Checksumming starts enabled.
func NewCursor(r io.Reader, size int) *Cursor {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Cursor{
		br:       bufio.NewReaderSize(r, size),
		checksum: true,
	}
}

// Offset returns the number of bytes consumed so far
func (c *Cursor) Offset() int64 {
	return c.offset
}

// Checksum returns the CRC-64 accumulated so far
func (c *Cursor) Checksum() uint64 {
	return c.crc
}

// SetChecksumming turns checksum accumulation on or off
func (c *Cursor) SetChecksumming(on bool) {
	c.checksum = on
}

// ResetChecksum zeroes the accumulator
func (c *Cursor) ResetChecksum() {
	c.crc = 0
}

// ReadByte reads a single byte. End of input is reported as ErrTruncatedInput;
// use More to probe for a clean end at a structure boundary.
func (c *Cursor) ReadByte() (byte, error) {
	b, err := c.br.ReadByte()
	if err != nil {
		return 0, eofToTruncated(err)
	}
	c.offset++
	if c.checksum {
		c.crc = crcUpdateByte(c.crc, b)
	}
	return b, nil
}

// Read implements io.Reader. Unlike the other methods it returns io.EOF
// unchanged, so a Cursor can back other readers.
func (c *Cursor) Read(p []byte) (int, error) {
	n, err := c.br.Read(p)
	c.consumed(p[:n])
	return n, err
}

// ReadFull reads exactly n bytes into a new slice
func (c *Cursor) ReadFull(n int) ([]byte, error) {
	if n < 0 {
		return nil, encodingf("negative length %d", n)
	}
	// Grow in steps so a corrupt length cannot force a huge allocation
	// before the source runs dry.
	const step = 1 << 20
	if n <= step {
		buf := make([]byte, n)
		if err := c.ReadInto(buf); err != nil {
			return nil, err
		}
		return buf, nil
	}
	buf := make([]byte, 0, step)
	for len(buf) < n {
		chunk := n - len(buf)
		if chunk > step {
			chunk = step
		}
		start := len(buf)
		buf = append(buf, make([]byte, chunk)...)
		if err := c.ReadInto(buf[start:]); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// ReadInto fills p completely
func (c *Cursor) ReadInto(p []byte) error {
	n, err := io.ReadFull(c.br, p)
	c.consumed(p[:n])
	if err != nil {
		return eofToTruncated(err)
	}
	return nil
}

// Discard skips n bytes, still folding them into the checksum
func (c *Cursor) Discard(n int) error {
	var buf [4096]byte
	for n > 0 {
		chunk := n
		if chunk > len(buf) {
			chunk = len(buf)
		}
		if err := c.ReadInto(buf[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// More blocks until at least one byte is available. It returns false with
// a nil error at a clean end of input.
func (c *Cursor) More() (bool, error) {
	_, err := c.br.Peek(1)
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cursor) consumed(p []byte) {
	c.offset += int64(len(p))
	if c.checksum && len(p) > 0 {
		c.crc = crcUpdate(c.crc, p)
	}
}

func eofToTruncated(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrTruncatedInput
	}
	return err
}
