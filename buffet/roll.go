package buffet

import (
	"bytes"
	"encoding/hex"
)

// Roll is an immutable, non-owning view over bytes held by a RollMut (or any
// other byte slice). Sub-views share storage with their parent; nothing is
// copied.
//
// A Roll must not be written through. Bytes returns a slice whose capacity is
// clipped to its length so that appending to it can never clobber bytes that
// follow the view.
type Roll struct {
	b []byte
}

// NewRoll returns a view over b. The caller must not modify b afterwards.
func NewRoll(b []byte) Roll {
	return Roll{b: b[:len(b):len(b)]}
}

// RollString returns a view over a copy of s.
func RollString(s string) Roll {
	return NewRoll([]byte(s))
}

// Len returns the number of bytes in the view.
func (r Roll) Len() int { return len(r.b) }

// IsEmpty reports whether the view holds no bytes.
func (r Roll) IsEmpty() bool { return len(r.b) == 0 }

// Bytes returns the viewed bytes. The result aliases the underlying storage.
func (r Roll) Bytes() []byte { return r.b }

// String copies the viewed bytes into a string.
func (r Roll) String() string { return string(r.b) }

// At returns the byte at index i.
func (r Roll) At(i int) byte { return r.b[i] }

// Slice returns the sub-view [i:j).
func (r Roll) Slice(i, j int) Roll {
	return Roll{b: r.b[i:j:j]}
}

// SliceFrom returns the sub-view [i:).
func (r Roll) SliceFrom(i int) Roll {
	return Roll{b: r.b[i:]}
}

// Split divides the view at n into [0:n) and [n:).
func (r Roll) Split(n int) (Roll, Roll) {
	return Roll{b: r.b[:n:n]}, Roll{b: r.b[n:]}
}

// Index returns the index of the first occurrence of c, or -1.
func (r Roll) Index(c byte) int {
	return bytes.IndexByte(r.b, c)
}

// IndexOf returns the index of the first occurrence of sep, or -1.
func (r Roll) IndexOf(sep []byte) int {
	return bytes.Index(r.b, sep)
}

// HasPrefix reports whether the view begins with prefix.
func (r Roll) HasPrefix(prefix []byte) bool {
	return bytes.HasPrefix(r.b, prefix)
}

// EqualFold reports whether the view equals s under ASCII case folding.
func (r Roll) EqualFold(s string) bool {
	return bytes.EqualFold(r.b, []byte(s))
}

// Preview returns a hex dump of at most n leading bytes, for diagnostics.
func (r Roll) Preview(n int) string {
	if n > len(r.b) {
		n = len(r.b)
	}
	return hex.Dump(r.b[:n])
}
