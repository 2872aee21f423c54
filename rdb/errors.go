package rdb

import (
	"fmt"
	"io"

	"github.com/juju/errors"
)

// ErrorKind classifies every failure the decoder can report.
type ErrorKind int

const (
	// FormatError: bad magic, unsupported version, bad checksum.
	FormatError ErrorKind = iota + 1
	// EncodingError: the bytes do not follow the RDB grammar.
	EncodingError
	// IOError: the underlying reader failed or ended early.
	IOError
)

func (k ErrorKind) String() string {
	switch k {
	case FormatError:
		return "format error"
	case EncodingError:
		return "encoding error"
	case IOError:
		return "io error"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is the cause of every error returned by Decode.
// Use errors.Cause or the Is*Error helpers to get at it.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rdb: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("rdb: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newFormatError(format string, args ...interface{}) error {
	return &Error{Kind: FormatError, Msg: fmt.Sprintf(format, args...)}
}

func newEncodingError(format string, args ...interface{}) error {
	return &Error{Kind: EncodingError, Msg: fmt.Sprintf(format, args...)}
}

// wrapEncodingError turns a container cursor or lzf failure into an EncodingError.
func wrapEncodingError(err error, format string, args ...interface{}) error {
	return &Error{Kind: EncodingError, Msg: fmt.Sprintf(format, args...), Err: err}
}

func newIOError(err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return &Error{Kind: IOError, Msg: "read failed", Err: err}
}

// UnknownEncoding is raised by sinks that meet an encoding they cannot account for.
func UnknownEncoding(typ, encoding string) error {
	return &Error{Kind: EncodingError, Msg: fmt.Sprintf("unknown encoding %q for %s", encoding, typ)}
}

func kindOf(err error) ErrorKind {
	if e, ok := errors.Cause(err).(*Error); ok {
		return e.Kind
	}
	return 0
}

func IsFormatError(err error) bool {
	return kindOf(err) == FormatError
}

func IsEncodingError(err error) bool {
	return kindOf(err) == EncodingError
}

func IsIOError(err error) bool {
	return kindOf(err) == IOError
}
