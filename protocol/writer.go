package protocol

import (
	"bufio"
	"io"
	"strconv"
)

// Writer writes RESP commands, as a replica sends them to its master
type Writer struct {
	bw *bufio.Writer
}

// NewWriter creates a new RESP protocol writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		bw: bufio.NewWriter(w),
	}
}

// WriteBulkString writes a bulk string
func (w *Writer) WriteBulkString(data []byte) error {
	if err := w.writeHeader('$', len(data)); err != nil {
		return err
	}
	if _, err := w.bw.Write(data); err != nil {
		return err
	}
	return w.writeCRLF()
}

// WriteCommand writes a Redis command as a RESP array
func (w *Writer) WriteCommand(cmd string, args ...string) error {
	if err := w.writeHeader('*', 1+len(args)); err != nil {
		return err
	}
	if err := w.WriteBulkString([]byte(cmd)); err != nil {
		return err
	}
	for _, arg := range args {
		if err := w.WriteBulkString([]byte(arg)); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes any buffered data to the underlying writer
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

func (w *Writer) writeHeader(prefix byte, n int) error {
	if err := w.bw.WriteByte(prefix); err != nil {
		return err
	}
	if _, err := w.bw.WriteString(strconv.Itoa(n)); err != nil {
		return err
	}
	return w.writeCRLF()
}

func (w *Writer) writeCRLF() error {
	_, err := w.bw.WriteString(CRLF)
	return err
}
