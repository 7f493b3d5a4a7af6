package wireloop

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/zeebo/xxh3"

	"github.com/pior/wireloop/buffet"
)

// MaxDiagnosticInput bounds how many bytes of offending input a ParseError
// keeps.
const MaxDiagnosticInput = 256

// ErrIncomplete is returned by a Parser when the view does not hold a
// complete message yet. ReadAndParse reacts by reading more bytes.
var ErrIncomplete = errors.New("wireloop: incomplete message")

// ParseError reports input rejected by a Parser.
//
// Input is a copy of (at most MaxDiagnosticInput bytes of) the offending
// input: the receive buffer it came from is reused, so the error owns its
// bytes. Fingerprint is the xxh3 hash of the whole offending input and lets
// log lines about the same garbage be correlated.
//
// Connection handling: CLOSE, optionally after sending MalformedMessage.
type ParseError struct {
	Message     string
	Input       []byte
	InputLen    int
	Fingerprint uint64
	Err         error // Underlying error, if any
}

// Malformed builds a ParseError for input. Parsers return it to reject
// bytes they can never accept.
func Malformed(input buffet.Roll, message string) *ParseError {
	b := input.Bytes()
	kept := b
	if len(kept) > MaxDiagnosticInput {
		kept = kept[:MaxDiagnosticInput]
	}
	return &ParseError{
		Message:     message,
		Input:       append([]byte(nil), kept...),
		InputLen:    len(b),
		Fingerprint: xxh3.Hash(b),
	}
}

func (e *ParseError) Error() string {
	msg := "parse error: " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg + " (input " + strconv.Itoa(e.InputLen) + " bytes)"
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// ShouldCloseConnection returns true: the stream position is lost.
func (e *ParseError) ShouldCloseConnection() bool {
	return true
}

// asParseError turns whatever a Parser returned into a *ParseError, keeping
// the parser's own diagnostics when it already built one.
func asParseError(input buffet.Roll, err error) *ParseError {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe
	}
	pe = Malformed(input, "parser rejected input")
	pe.Err = err
	return pe
}

// UnexpectedEOFError is returned when the peer closes the stream while a
// partial message is buffered.
//
// Connection handling: CLOSE without a response.
type UnexpectedEOFError struct {
	Buffered int // bytes of the partial message
}

func (e *UnexpectedEOFError) Error() string {
	return "unexpected EOF with " + strconv.Itoa(e.Buffered) + " bytes buffered"
}

// Unwrap lets errors.Is(err, io.ErrUnexpectedEOF) match.
func (e *UnexpectedEOFError) Unwrap() error {
	return io.ErrUnexpectedEOF
}

func (e *UnexpectedEOFError) ShouldCloseConnection() bool {
	return true
}

// ConnectionError wraps a transport error from a read or a write. The
// underlying error is left untouched and reachable with errors.Is/As.
//
// Connection handling: the connection is already broken, CLOSE.
type ConnectionError struct {
	Op  string // Operation that failed (read, writev)
	Err error  // Underlying error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *ConnectionError) ShouldCloseConnection() bool {
	return true
}

// ShortWriteError is returned when a vectored write reports success but
// delivered fewer bytes than requested. Partial writes are not resumed: the
// fragment list is left as it was and must be discarded along with the
// connection.
type ShortWriteError struct {
	Written  int64
	Expected int
}

func (e *ShortWriteError) Error() string {
	return fmt.Sprintf("short write: wrote %d of %d bytes", e.Written, e.Expected)
}

// Unwrap lets errors.Is(err, io.ErrShortWrite) match.
func (e *ShortWriteError) Unwrap() error {
	return io.ErrShortWrite
}

func (e *ShortWriteError) ShouldCloseConnection() bool {
	return true
}

// ErrorWithConnectionState is implemented by errors that know whether the
// connection survives them.
type ErrorWithConnectionState interface {
	error
	ShouldCloseConnection() bool
}

// ShouldCloseConnection reports whether err leaves the connection unusable.
//
// Returns false for nil and for SemanticError kinds that keep the
// connection (HandlerUnavailable). Unknown errors close the connection.
func ShouldCloseConnection(err error) bool {
	if err == nil {
		return false
	}

	var e ErrorWithConnectionState
	if errors.As(err, &e) {
		return e.ShouldCloseConnection()
	}

	return true
}
