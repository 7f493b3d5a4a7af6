package wireloop

// SemanticError is a protocol-level failure, as opposed to a transport
// failure. Each kind maps to a canned response the caller can send before
// closing (or, for HandlerUnavailable, keeping) the connection.
type SemanticError int

const (
	// BufferLimitReachedWhileParsing: the message did not fit in the
	// maximum buffer size.
	BufferLimitReachedWhileParsing SemanticError = iota + 1

	// MalformedMessage: the parser rejected the input.
	MalformedMessage

	// HandlerUnavailable: the message handler is refusing work (its
	// circuit breaker is open).
	HandlerUnavailable
)

var (
	responseBufferLimit = []byte("HTTP/1.1 431 Request Header Fields Too Large\r\n\r\n")
	responseMalformed   = []byte("HTTP/1.1 400 Bad Request\r\n\r\n")
	responseUnavailable = []byte("HTTP/1.1 503 Service Unavailable\r\n\r\n")
)

func (e SemanticError) Error() string {
	switch e {
	case BufferLimitReachedWhileParsing:
		return "buffering limit reached while parsing"
	case MalformedMessage:
		return "malformed message"
	case HandlerUnavailable:
		return "handler unavailable"
	default:
		return "unknown semantic error"
	}
}

// AsHTTPResponse returns the minimal response (status line and the blank
// line ending the header section) for this kind, or nil for an unknown
// kind. The returned bytes are shared and must not be modified.
func (e SemanticError) AsHTTPResponse() []byte {
	switch e {
	case BufferLimitReachedWhileParsing:
		return responseBufferLimit
	case MalformedMessage:
		return responseMalformed
	case HandlerUnavailable:
		return responseUnavailable
	default:
		return nil
	}
}

// ShouldCloseConnection reports whether the connection must be closed after
// the canned response is sent.
func (e SemanticError) ShouldCloseConnection() bool {
	return e != HandlerUnavailable
}
