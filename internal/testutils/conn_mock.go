package testutils

import (
	"bytes"
	"io"
	"net"
	"sync"
	"time"
)

// ConnectionMock is a scripted net.Conn for testing. Every Read returns
// (up to the caller's buffer size of) the next scripted chunk, so tests
// control exactly how bytes are split across reads. Once the script is
// exhausted, reads return ReadErr (io.EOF by default).
type ConnectionMock struct {
	mu sync.Mutex

	chunks [][]byte
	reads  int

	// ReadErr is returned once every chunk was consumed.
	ReadErr error

	writeBuf bytes.Buffer
	writes   int

	// WriteErr makes writes fail.
	WriteErr error
	// ShortWrite, when positive, caps each vectored write at that many bytes
	// and still reports success.
	ShortWrite int

	closed bool
}

// NewConnectionMock creates a mock whose reads return chunks one by one.
func NewConnectionMock(chunks ...string) *ConnectionMock {
	m := &ConnectionMock{ReadErr: io.EOF}
	for _, c := range chunks {
		m.chunks = append(m.chunks, []byte(c))
	}
	return m
}

func (m *ConnectionMock) Read(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reads++
	if len(m.chunks) == 0 {
		return 0, m.ReadErr
	}

	n := copy(b, m.chunks[0])
	if n == len(m.chunks[0]) {
		m.chunks = m.chunks[1:]
	} else {
		m.chunks[0] = m.chunks[0][n:]
	}
	return n, nil
}

func (m *ConnectionMock) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes++
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	return m.writeBuf.Write(b)
}

// Writev records one vectored write of bufs.
func (m *ConnectionMock) Writev(bufs net.Buffers) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes++
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}

	var n int64
	for _, b := range bufs {
		if m.ShortWrite > 0 {
			remaining := int64(m.ShortWrite) - n
			if remaining <= 0 {
				break
			}
			if int64(len(b)) > remaining {
				b = b[:remaining]
			}
		}
		m.writeBuf.Write(b)
		n += int64(len(b))
	}
	return n, nil
}

func (m *ConnectionMock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *ConnectionMock) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 8080}
}

func (m *ConnectionMock) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50000}
}

func (m *ConnectionMock) SetDeadline(t time.Time) error      { return nil }
func (m *ConnectionMock) SetReadDeadline(t time.Time) error  { return nil }
func (m *ConnectionMock) SetWriteDeadline(t time.Time) error { return nil }

// Reads returns how many times Read was called.
func (m *ConnectionMock) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Writes returns how many times Write or Writev was called.
func (m *ConnectionMock) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Written returns every byte written so far.
func (m *ConnectionMock) Written() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeBuf.String()
}

// IsClosed returns whether Close was called.
func (m *ConnectionMock) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
