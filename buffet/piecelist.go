package buffet

import "net"

// PieceList is an ordered list of byte fragments forming one outgoing
// payload. It owns its fragments until they are written.
//
// The zero value is an empty list ready to use.
type PieceList struct {
	pieces net.Buffers
	total  int
}

// PieceListFromBuffers rebuilds a list from a vector of fragments, for
// instance the undelivered part of a vector after a partial write.
func PieceListFromBuffers(bufs net.Buffers) PieceList {
	l := PieceList{pieces: bufs}
	for _, b := range bufs {
		l.total += len(b)
	}
	return l
}

// Push appends a fragment. b is not copied and must not change until the
// list has been written.
func (l *PieceList) Push(b []byte) {
	l.pieces = append(l.pieces, b)
	l.total += len(b)
}

// PushString appends s as a fragment.
func (l *PieceList) PushString(s string) {
	l.Push([]byte(s))
}

// PushRoll appends the bytes of r as a fragment.
func (l *PieceList) PushRoll(r Roll) {
	l.Push(r.b)
}

// Len returns the total number of bytes across all fragments.
func (l *PieceList) Len() int { return l.total }

// NumPieces returns the number of fragments, empty ones included.
func (l *PieceList) NumPieces() int { return len(l.pieces) }

// IsEmpty reports whether the list holds no fragments.
func (l *PieceList) IsEmpty() bool { return len(l.pieces) == 0 }

// Buffers returns the fragments as a vector suitable for a scatter-gather
// write. The vector shares its backing array with the list.
func (l *PieceList) Buffers() net.Buffers {
	return l.pieces
}

// Clear drops every fragment while keeping the backing array for reuse.
func (l *PieceList) Clear() {
	clear(l.pieces)
	l.pieces = l.pieces[:0]
	l.total = 0
}
