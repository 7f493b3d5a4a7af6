// Package httphead parses HTTP/1.x request heads (request line and header
// fields) straight out of a receive buffer. Parsed fields are views into
// the buffer: they are valid until the buffer is released.
//
// Request bodies are not supported: a head announcing one is rejected.
package httphead

import (
	"bytes"

	"github.com/pior/wireloop"
	"github.com/pior/wireloop/buffet"
)

// MaxHeaders bounds the number of header fields of one head.
const MaxHeaders = 64

var (
	http10 = []byte("HTTP/1.0")
	http11 = []byte("HTTP/1.1")
)

// Header is one header field.
type Header struct {
	Name  buffet.Roll
	Value buffet.Roll
}

// Head is a parsed request head.
type Head struct {
	Method  buffet.Roll
	Target  buffet.Roll
	Version buffet.Roll
	Headers []Header
}

// Get returns the value of the first header named name (case-insensitive).
func (h *Head) Get(name string) (buffet.Roll, bool) {
	for _, f := range h.Headers {
		if f.Name.EqualFold(name) {
			return f.Value, true
		}
	}
	return buffet.Roll{}, false
}

// KeepAlive reports whether the peer expects the connection to stay open
// after the response.
func (h *Head) KeepAlive() bool {
	conn, ok := h.Get("Connection")
	if ok && conn.EqualFold("close") {
		return false
	}
	if bytes.Equal(h.Version.Bytes(), http10) {
		return ok && conn.EqualFold("keep-alive")
	}
	return true
}

// Parse is a wireloop.Parser for request heads.
func Parse(input buffet.Roll) (buffet.Roll, *Head, error) {
	rest := input

	line, rest, err := nextLine(input, rest)
	if err != nil {
		return buffet.Roll{}, nil, err
	}

	head := &Head{}
	if err := parseRequestLine(line, head); err != nil {
		return buffet.Roll{}, nil, wireloop.Malformed(input, err.Error())
	}

	for {
		line, rest, err = nextLine(input, rest)
		if err != nil {
			return buffet.Roll{}, nil, err
		}
		if line.IsEmpty() {
			break
		}
		if len(head.Headers) == MaxHeaders {
			return buffet.Roll{}, nil, wireloop.Malformed(input, "too many header fields")
		}
		h, ok := parseHeader(line)
		if !ok {
			return buffet.Roll{}, nil, wireloop.Malformed(input, "invalid header field")
		}
		head.Headers = append(head.Headers, h)
	}

	if _, ok := head.Get("Transfer-Encoding"); ok {
		return buffet.Roll{}, nil, wireloop.Malformed(input, "request bodies are not supported")
	}
	if cl, ok := head.Get("Content-Length"); ok && !cl.EqualFold("0") {
		return buffet.Roll{}, nil, wireloop.Malformed(input, "request bodies are not supported")
	}

	return rest, head, nil
}

// nextLine splits the next CRLF-terminated line off rest. A line feed
// without a carriage return is malformed.
func nextLine(input, rest buffet.Roll) (line, remaining buffet.Roll, err error) {
	i := rest.Index('\n')
	if i < 0 {
		return line, rest, wireloop.ErrIncomplete
	}
	if i == 0 || rest.At(i-1) != '\r' {
		return line, rest, wireloop.Malformed(input, "bare line feed")
	}
	return rest.Slice(0, i-1), rest.SliceFrom(i + 1), nil
}

type headError string

func (e headError) Error() string { return string(e) }

func parseRequestLine(line buffet.Roll, head *Head) error {
	b := line.Bytes()

	sp1 := bytes.IndexByte(b, ' ')
	if sp1 <= 0 {
		return headError("invalid request line")
	}
	sp2 := bytes.IndexByte(b[sp1+1:], ' ')
	if sp2 <= 0 {
		return headError("invalid request line")
	}
	sp2 += sp1 + 1

	head.Method = line.Slice(0, sp1)
	head.Target = line.Slice(sp1+1, sp2)
	head.Version = line.SliceFrom(sp2 + 1)

	if !isToken(head.Method.Bytes()) {
		return headError("invalid method")
	}
	v := head.Version.Bytes()
	if !bytes.Equal(v, http11) && !bytes.Equal(v, http10) {
		return headError("unsupported protocol version")
	}
	return nil
}

func parseHeader(line buffet.Roll) (Header, bool) {
	colon := line.Index(':')
	if colon <= 0 {
		return Header{}, false
	}
	name := line.Slice(0, colon)
	if !isToken(name.Bytes()) {
		return Header{}, false
	}

	value := line.SliceFrom(colon + 1)
	start, end := 0, value.Len()
	for start < end && isOWS(value.At(start)) {
		start++
	}
	for end > start && isOWS(value.At(end-1)) {
		end--
	}
	return Header{Name: name, Value: value.Slice(start, end)}, true
}

func isOWS(c byte) bool { return c == ' ' || c == '\t' }

func isToken(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c >= 0x80 || !tokenChars[c] {
			return false
		}
	}
	return true
}

var tokenChars = func() [128]bool {
	var t [128]bool
	for c := '0'; c <= '9'; c++ {
		t[c] = true
	}
	for c := 'a'; c <= 'z'; c++ {
		t[c] = true
	}
	for c := 'A'; c <= 'Z'; c++ {
		t[c] = true
	}
	for _, c := range "!#$%&'*+-.^_`|~" {
		t[c] = true
	}
	return t
}()
