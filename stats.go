package wireloop

import (
	"errors"
	"sync/atomic"
)

// Stats contains counters about the read/parse/write loop of one or more
// connections. Snapshot values are copies and safe to keep.
//
// For Prometheus integration, expose these as counters. Failures carries one
// counter per failure kind (see FailureKind).
type Stats struct {
	Connections  uint64 // Connections served
	Reads        uint64 // Read calls on the transport
	BytesRead    uint64
	Messages     uint64 // Messages parsed
	Writes       uint64 // Vectored writes issued
	BytesWritten uint64
	Pieces       uint64 // Fragments written

	Failures [numFailureKinds]uint64
}

// FailureKind classifies why a connection loop stopped or answered with a
// canned response.
type FailureKind int

const (
	FailureBufferLimit FailureKind = iota
	FailureMalformed
	FailureUnexpectedEOF
	FailureTransport
	FailureShortWrite
	FailureHandlerUnavailable
	numFailureKinds
)

var failureKindNames = [numFailureKinds]string{
	"buffer_limit",
	"malformed",
	"unexpected_eof",
	"transport",
	"short_write",
	"handler_unavailable",
}

func (k FailureKind) String() string {
	if k < 0 || k >= numFailureKinds {
		return "unknown"
	}
	return failureKindNames[k]
}

// FailureKinds lists every kind in order, for exporters.
func FailureKinds() []FailureKind {
	kinds := make([]FailureKind, numFailureKinds)
	for i := range kinds {
		kinds[i] = FailureKind(i)
	}
	return kinds
}

// ClassifyFailure maps an error returned by ReadAndParse or WriteAllList to
// its FailureKind. ok is false for nil, io.EOF and context errors, which are
// not failures of the connection.
func ClassifyFailure(err error) (kind FailureKind, ok bool) {
	var (
		se  SemanticError
		pe  *ParseError
		ue  *UnexpectedEOFError
		ce  *ConnectionError
		swe *ShortWriteError
	)
	switch {
	case err == nil:
		return 0, false
	case errors.As(err, &se):
		switch se {
		case BufferLimitReachedWhileParsing:
			return FailureBufferLimit, true
		case MalformedMessage:
			return FailureMalformed, true
		case HandlerUnavailable:
			return FailureHandlerUnavailable, true
		}
		return 0, false
	case errors.As(err, &pe):
		return FailureMalformed, true
	case errors.As(err, &ue):
		return FailureUnexpectedEOF, true
	case errors.As(err, &swe):
		return FailureShortWrite, true
	case errors.As(err, &ce):
		return FailureTransport, true
	}
	return 0, false
}

// StatsCollector records Stats with atomic updates. The zero value is ready
// to use and it is safe for concurrent use by many connections.
type StatsCollector struct {
	stats Stats
}

func (c *StatsCollector) RecordConnection() {
	atomic.AddUint64(&c.stats.Connections, 1)
}

func (c *StatsCollector) RecordRead(n int) {
	atomic.AddUint64(&c.stats.Reads, 1)
	if n > 0 {
		atomic.AddUint64(&c.stats.BytesRead, uint64(n))
	}
}

func (c *StatsCollector) RecordMessage() {
	atomic.AddUint64(&c.stats.Messages, 1)
}

func (c *StatsCollector) RecordWrite(n int64, pieces int) {
	atomic.AddUint64(&c.stats.Writes, 1)
	if n > 0 {
		atomic.AddUint64(&c.stats.BytesWritten, uint64(n))
	}
	atomic.AddUint64(&c.stats.Pieces, uint64(pieces))
}

func (c *StatsCollector) RecordFailure(kind FailureKind) {
	if kind < 0 || kind >= numFailureKinds {
		return
	}
	atomic.AddUint64(&c.stats.Failures[kind], 1)
}

// Snapshot returns a point-in-time copy of the counters.
func (c *StatsCollector) Snapshot() Stats {
	s := Stats{
		Connections:  atomic.LoadUint64(&c.stats.Connections),
		Reads:        atomic.LoadUint64(&c.stats.Reads),
		BytesRead:    atomic.LoadUint64(&c.stats.BytesRead),
		Messages:     atomic.LoadUint64(&c.stats.Messages),
		Writes:       atomic.LoadUint64(&c.stats.Writes),
		BytesWritten: atomic.LoadUint64(&c.stats.BytesWritten),
		Pieces:       atomic.LoadUint64(&c.stats.Pieces),
	}
	for i := range s.Failures {
		s.Failures[i] = atomic.LoadUint64(&c.stats.Failures[i])
	}
	return s
}
