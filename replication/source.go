package replication

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Source is the byte source of a session: a snapshot file, an AOF with an
// RDB preamble, or a live master connection. Close must unblock a pending
// Read.
type Source interface {
	io.ReadCloser
	Info() SourceInfo
}

// SourceInfo describes how a source frames the snapshot
type SourceInfo struct {
	Name string
	// Live sources block for more operations instead of ending
	Live bool
	// BaseOffset is the replication offset the operation stream starts at
	BaseOffset int64
	// PayloadLength is the announced snapshot size, -1 if unknown
	PayloadLength int64
	// EOFMark is the delimiter following a diskless snapshot
	EOFMark []byte
}

// Acker is implemented by sources that accept REPLCONF ACK
type Acker interface {
	Ack(offset int64) error
}

// readerSource adapts a plain reader
type readerSource struct {
	io.Reader
	info   SourceInfo
	closer func() error
	once   sync.Once
	err    error
}

// NewReaderSource wraps r as a non-live source. If r implements io.Closer
// it is closed with the source.
func NewReaderSource(name string, r io.Reader) Source {
	s := &readerSource{
		Reader: r,
		info:   SourceInfo{Name: name, PayloadLength: -1},
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c.Close
	}
	return s
}

func (s *readerSource) Info() SourceInfo {
	return s.info
}

func (s *readerSource) Close() error {
	s.once.Do(func() {
		if s.closer != nil {
			s.err = s.closer()
		}
	})
	return s.err
}

// OpenFile opens a snapshot or AOF file. Gzip and zstd compressed files are
// detected by their magic bytes and decompressed transparently.
func OpenFile(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open snapshot")
	}

	br := bufio.NewReader(f)
	head, err := br.Peek(len(zstdMagic))
	if err != nil && err != io.EOF {
		_ = f.Close()
		return nil, errors.Wrap(err, "read snapshot")
	}

	src := &readerSource{
		info: SourceInfo{Name: path, PayloadLength: -1},
	}

	switch {
	case bytes.HasPrefix(head, gzipMagic):
		g, err := gzip.NewReader(br)
		if err != nil {
			_ = f.Close()
			return nil, errors.Wrap(err, "gzip snapshot")
		}
		src.Reader = g
		src.closer = func() error {
			gerr := g.Close()
			if err := f.Close(); err != nil {
				return err
			}
			return gerr
		}

	case bytes.HasPrefix(head, zstdMagic):
		z, err := zstd.NewReader(br)
		if err != nil {
			_ = f.Close()
			return nil, errors.Wrap(err, "zstd snapshot")
		}
		src.Reader = z
		src.closer = func() error {
			z.Close()
			return f.Close()
		}

	default:
		src.Reader = br
		src.closer = f.Close
	}

	return src, nil
}
