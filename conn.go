package wireloop

import (
	"context"
	"net"
	"sync"
	"time"
)

// Conn adapts a net.Conn to the read (io.Reader) and vectored write
// (WriteOwned) capabilities used by ReadAndParse and WriteAllList.
//
// Conn does not serialize readers or writers: one goroutine reads and
// writes at a time, as with the buffers it is used with.
type Conn struct {
	conn net.Conn

	mu     sync.Mutex
	closed bool
}

var _ WriteOwned = (*Conn)(nil)

// NewConn wraps conn.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn}
}

// Read reads from the underlying connection.
func (c *Conn) Read(p []byte) (int, error) {
	return c.conn.Read(p)
}

// Writev writes bufs with a single writev(2) where the platform allows it.
func (c *Conn) Writev(bufs net.Buffers) (int64, error) {
	return bufs.WriteTo(c.conn)
}

// SetReadTimeout sets the read deadline to d from now, or to the deadline
// of ctx when that comes first. With neither, the deadline is cleared.
func (c *Conn) SetReadTimeout(ctx context.Context, d time.Duration) error {
	return c.conn.SetReadDeadline(deadline(ctx, d))
}

// SetWriteTimeout is SetReadTimeout for writes.
func (c *Conn) SetWriteTimeout(ctx context.Context, d time.Duration) error {
	return c.conn.SetWriteDeadline(deadline(ctx, d))
}

// deadline returns the earlier of now+d (d > 0) and the deadline of ctx.
// The zero time means no deadline.
func deadline(ctx context.Context, d time.Duration) time.Time {
	var t time.Time
	if d > 0 {
		t = time.Now().Add(d)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (t.IsZero() || ctxDeadline.Before(t)) {
		t = ctxDeadline
	}
	return t
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// IsClosed returns whether Close was called.
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close closes the connection. It is safe to call more than once and from
// another goroutine, which is how a blocked read or write gets interrupted.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
