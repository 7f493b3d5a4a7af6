package buffet

import (
	"context"
	"errors"
	"io"
)

// DefaultChunkSize is the capacity a RollMut takes on its first growth when
// it was not leased from a Pool.
const DefaultChunkSize = 4096

// maxConsecutiveEmptyReads bounds how many (0, nil) reads ReadInto tolerates.
const maxConsecutiveEmptyReads = 100

var (
	// ErrNoFreeCapacity is returned by ReadInto when the buffer has no room
	// left for the requested read. Call Grow first.
	ErrNoFreeCapacity = errors.New("buffet: no free capacity to read into")

	errNegativeRead = errors.New("buffet: reader returned invalid count")
)

// RollMut is a growable receive buffer. Its storage is split into a filled
// prefix (bytes received and not yet consumed) and free capacity (room for
// the next read).
//
// Views returned by Filled stay valid for as long as the caller holds them:
// growth always moves the filled bytes into fresh storage and never writes
// over bytes that were already handed out. Keep only moves the start of the
// filled region forward.
//
// A RollMut is owned by one goroutine at a time. Never keep using a RollMut
// after handing it to an operation that returns it.
type RollMut struct {
	storage []byte
	off     int // start of the filled region
	end     int // end of the filled region, start of free capacity

	chunk int
	lease Lease
}

// NewRollMut returns an empty buffer with zero capacity. The first Grow
// allocates chunkSize bytes (DefaultChunkSize when chunkSize <= 0).
func NewRollMut(chunkSize int) *RollMut {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &RollMut{chunk: chunkSize}
}

// LeaseRollMut returns a buffer whose initial storage is a chunk leased from
// pool. The chunk goes back to the pool on Release.
func LeaseRollMut(ctx context.Context, pool Pool) (*RollMut, error) {
	lease, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	b := lease.Bytes()
	return &RollMut{
		storage: b[:cap(b)],
		chunk:   cap(b),
		lease:   lease,
	}, nil
}

// Filled returns a view over the unconsumed bytes. No copy is made.
func (m *RollMut) Filled() Roll {
	return Roll{b: m.storage[m.off:m.end:m.end]}
}

// Len returns the number of filled bytes.
func (m *RollMut) Len() int { return m.end - m.off }

// Cap returns the free capacity available to the next read.
func (m *RollMut) Cap() int { return len(m.storage) - m.end }

// IsEmpty reports whether the filled region is empty.
func (m *RollMut) IsEmpty() bool { return m.end == m.off }

// Keep trims the filled region to rest, which must be a suffix of the view
// returned by Filled (typically the remainder returned by a parser).
func (m *RollMut) Keep(rest Roll) {
	n := rest.Len()
	if n > m.Len() {
		panic("buffet: Keep with a view larger than the filled region")
	}
	if n > 0 && &rest.b[n-1] != &m.storage[m.end-1] {
		panic("buffet: Keep with a view that is not a suffix of the filled region")
	}
	m.off = m.end - n
}

// Grow increases the free capacity. The filled bytes move to fresh storage:
// double the size when at least half of the current storage is filled, the
// same size otherwise.
func (m *RollMut) Grow() {
	n := m.Len()
	size := len(m.storage)
	switch {
	case size == 0:
		size = m.chunkSize()
	case n >= size/2:
		size *= 2
	}

	next := make([]byte, size)
	copy(next, m.storage[m.off:m.end])
	m.storage = next
	m.off = 0
	m.end = n
}

// Put appends p to the filled region, growing as needed.
func (m *RollMut) Put(p []byte) {
	for len(p) > 0 {
		if m.Cap() == 0 {
			m.Grow()
		}
		n := copy(m.storage[m.end:], p)
		m.end += n
		p = p[n:]
	}
}

// ReadInto performs one read of at most limit bytes from r into the free
// capacity and appends them to the filled region.
//
// End of stream is reported as (0, nil): io.EOF is folded into a zero count
// so callers only have one end-of-stream signal to check. Readers that keep
// returning (0, nil) yield io.ErrNoProgress.
func (m *RollMut) ReadInto(limit int, r io.Reader) (int, error) {
	free := m.storage[m.end:]
	if limit < len(free) {
		free = free[:max(limit, 0)]
	}
	if len(free) == 0 {
		return 0, ErrNoFreeCapacity
	}

	for i := maxConsecutiveEmptyReads; i > 0; i-- {
		n, err := r.Read(free)
		if n < 0 || n > len(free) {
			return 0, errNegativeRead
		}
		m.end += n

		if err == io.EOF {
			return n, nil
		}
		if err != nil || n > 0 {
			return n, err
		}
	}
	return 0, io.ErrNoProgress
}

// Release gives leased storage back to its pool and empties the buffer.
// No view obtained from this buffer may be used afterwards.
func (m *RollMut) Release() {
	if m.lease != nil {
		m.lease.Release()
		m.lease = nil
	}
	m.storage = nil
	m.off = 0
	m.end = 0
}

func (m *RollMut) chunkSize() int {
	if m.chunk <= 0 {
		return DefaultChunkSize
	}
	return m.chunk
}
