package rdb

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Error kinds returned by the decoder. Use errors.Is to test for them; the
// concrete error is usually a *DecodeError carrying the source offset.
var (
	// ErrTruncatedInput indicates the source ended in the middle of a structure.
	// It also matches io.ErrUnexpectedEOF.
	ErrTruncatedInput = errors.WithMessage(io.ErrUnexpectedEOF, "truncated input")

	// ErrUnsupportedVersion indicates a header with an unhandled format version
	ErrUnsupportedVersion = errors.New("unsupported rdb version")

	// ErrInvalidHeader indicates the magic prefix is missing
	ErrInvalidHeader = errors.New("invalid rdb header")

	// ErrUnknownTypeTag indicates a value type byte this decoder does not know
	ErrUnknownTypeTag = errors.New("unknown rdb type tag")

	// ErrUnknownEncoding indicates a packed encoding that cannot be interpreted
	ErrUnknownEncoding = errors.New("unknown encoding variant")

	// ErrCorruptCompressedData indicates an invalid LZF payload
	ErrCorruptCompressedData = errors.New("corrupt compressed data")

	// ErrChecksumMismatch indicates the trailing checksum does not match the
	// computed one
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// DecodeError wraps a decoding failure with the position it occurred at
type DecodeError struct {
	Offset  int64  // cursor offset when the failure was detected
	Context string // what was being decoded, e.g. "key", "value of type 14"
	Err     error
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	return fmt.Sprintf("rdb: %s at offset %d: %v", e.Context, e.Offset, e.Err)
}

// Unwrap returns the wrapped error
func (e *DecodeError) Unwrap() error {
	return e.Err
}

func corruptf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrCorruptCompressedData, format, args...)
}

func encodingf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrUnknownEncoding, format, args...)
}

// truncatedf is used by the packed buffer decoders, where running past the
// end of an in-memory buffer means the buffer itself was cut short
func truncatedf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrTruncatedInput, format, args...)
}
