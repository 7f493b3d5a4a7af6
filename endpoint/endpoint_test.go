package endpoint

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/wireloop"
	"github.com/pior/wireloop/buffet"
	"github.com/pior/wireloop/internal/httphead"
	"github.com/pior/wireloop/internal/testutils"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Shards = 1
	cfg.PoolSize = 4
	cfg.ReadTimeout = 5 * time.Second
	cfg.WriteTimeout = 5 * time.Second
	return cfg
}

// echoTarget answers with a 200 whose body is the request target.
func echoTarget(ctx context.Context, head *httphead.Head, out *buffet.PieceList) error {
	out.PushString("HTTP/1.1 200 OK\r\n")
	out.PushString("Content-Length: 2\r\n\r\n")
	out.PushRoll(head.Target)
	return nil
}

func okResponse(target string) string {
	return "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\n" + target
}

type served struct {
	ep     *Endpoint[*httphead.Head]
	client net.Conn
	done   chan error
}

func serve(t *testing.T, ctx context.Context, cfg Config, handler Handler[*httphead.Head], opts ...Option) *served {
	t.Helper()

	ep, err := New(cfg, httphead.Parse, handler, opts...)
	require.NoError(t, err)

	client, server := net.Pipe()
	s := &served{ep: ep, client: client, done: make(chan error, 1)}
	go func() {
		s.done <- ep.ServeConn(ctx, server)
	}()

	t.Cleanup(func() {
		client.Close()
		select {
		case <-s.done:
		case <-time.After(5 * time.Second):
			t.Error("ServeConn did not return")
		}
		ep.Close()
	})
	return s
}

func (s *served) send(t *testing.T, data string) {
	t.Helper()
	go func() {
		_, _ = s.client.Write([]byte(data))
	}()
}

func (s *served) expect(t *testing.T, want string) {
	t.Helper()
	require.NoError(t, s.client.SetReadDeadline(time.Now().Add(5*time.Second)))
	got := make([]byte, len(want))
	_, err := io.ReadFull(s.client, got)
	require.NoError(t, err)
	assert.Equal(t, want, string(got))
}

func (s *served) result(t *testing.T) error {
	t.Helper()
	select {
	case err := <-s.done:
		s.done <- err
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("ServeConn did not return")
		return nil
	}
}

func TestServeConn_Pipelined(t *testing.T) {
	s := serve(t, context.Background(), testConfig(), echoTarget)

	s.send(t, "GET /a HTTP/1.1\r\nHost: x\r\n\r\nGET /b HTTP/1.1\r\nHost: x\r\n\r\n")
	s.expect(t, okResponse("/a"))
	s.expect(t, okResponse("/b"))

	require.NoError(t, s.client.Close())
	assert.NoError(t, s.result(t))

	stats := s.ep.Stats()
	assert.Equal(t, uint64(1), stats.Connections)
	assert.Equal(t, uint64(2), stats.Messages)
	assert.Equal(t, uint64(2), stats.Reads, "both messages from one read, then EOF")
	assert.Equal(t, uint64(2), stats.Writes)
	assert.Equal(t, uint64(6), stats.Pieces)
}

func TestServeConn_ScriptedConn(t *testing.T) {
	ep, err := New(testConfig(), httphead.Parse, echoTarget)
	require.NoError(t, err)
	defer ep.Close()

	conn := testutils.NewConnectionMock("GET /a HTTP/1.1\r\n", "\r\nGET /b HTTP/1.1\r\n\r\n")
	require.NoError(t, ep.ServeConn(context.Background(), conn))

	assert.Equal(t, okResponse("/a")+okResponse("/b"), conn.Written())
	assert.Equal(t, 3, conn.Reads())
	assert.True(t, conn.IsClosed())
}

func TestServeConn_KeepAliveAcrossReads(t *testing.T) {
	s := serve(t, context.Background(), testConfig(), echoTarget)

	s.send(t, "GET /a HTTP/1.1\r\n\r\n")
	s.expect(t, okResponse("/a"))

	for _, part := range []string{"GET /b HT", "TP/1.1\r\n", "\r\n"} {
		_, err := s.client.Write([]byte(part))
		require.NoError(t, err)
	}
	s.expect(t, okResponse("/b"))

	assert.Equal(t, uint64(4), s.ep.Stats().Reads)
}

func TestServeConn_OversizedHead(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMessageSize = 64
	s := serve(t, context.Background(), cfg, echoTarget)

	s.send(t, "GET /"+string(make([]byte, 100)))

	require.NoError(t, s.client.SetReadDeadline(time.Now().Add(5*time.Second)))
	got, err := io.ReadAll(s.client)
	require.NoError(t, err)
	assert.Equal(t, string(wireloop.BufferLimitReachedWhileParsing.AsHTTPResponse()), string(got))

	err = s.result(t)
	assert.ErrorIs(t, err, wireloop.BufferLimitReachedWhileParsing)
	assert.Equal(t, uint64(1), s.ep.Stats().Failures[wireloop.FailureBufferLimit])
}

func TestServeConn_Malformed(t *testing.T) {
	s := serve(t, context.Background(), testConfig(), echoTarget)

	s.send(t, "BAD\r\n\r\n")

	require.NoError(t, s.client.SetReadDeadline(time.Now().Add(5*time.Second)))
	got, err := io.ReadAll(s.client)
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 400 Bad Request\r\n\r\n", string(got))

	var pe *wireloop.ParseError
	assert.ErrorAs(t, s.result(t), &pe)
	assert.Equal(t, uint64(1), s.ep.Stats().Failures[wireloop.FailureMalformed])
}

func TestServeConn_MalformedWithoutReply(t *testing.T) {
	cfg := testConfig()
	cfg.ReplyOnMalformed = false
	s := serve(t, context.Background(), cfg, echoTarget)

	s.send(t, "BAD\r\n\r\n")

	require.NoError(t, s.client.SetReadDeadline(time.Now().Add(5*time.Second)))
	got, err := io.ReadAll(s.client)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestServeConn_UnexpectedEOF(t *testing.T) {
	s := serve(t, context.Background(), testConfig(), echoTarget)

	_, err := s.client.Write([]byte("GET /a HTTP/1.1\r\n"))
	require.NoError(t, err)
	require.NoError(t, s.client.Close())

	err = s.result(t)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, uint64(1), s.ep.Stats().Failures[wireloop.FailureUnexpectedEOF])
}

func TestServeConn_OpenBreakerKeepsConnection(t *testing.T) {
	cfg := testConfig()
	cfg.Breaker = BreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Timeout:      time.Minute,
		MinRequests:  1,
		FailureRatio: 1,
	}

	var calls atomic.Int32
	failing := func(ctx context.Context, head *httphead.Head, out *buffet.PieceList) error {
		calls.Add(1)
		out.PushString("partial response that must not be sent")
		return errors.New("backend down")
	}
	s := serve(t, context.Background(), cfg, failing)

	unavailable := string(wireloop.HandlerUnavailable.AsHTTPResponse())

	s.send(t, "GET /a HTTP/1.1\r\n\r\n")
	s.expect(t, unavailable)
	assert.Equal(t, gobreaker.StateOpen, s.ep.BreakerState())

	s.send(t, "GET /b HTTP/1.1\r\n\r\n")
	s.expect(t, unavailable)
	assert.Equal(t, int32(1), calls.Load(), "open breaker does not call the handler")

	s.send(t, "GET /c HTTP/1.1\r\n\r\n")
	s.expect(t, unavailable)

	require.NoError(t, s.client.Close())
	assert.NoError(t, s.result(t))
	assert.Equal(t, uint64(3), s.ep.Stats().Failures[wireloop.FailureHandlerUnavailable])
}

func TestServeConn_BreakerDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Breaker.Enabled = false

	var calls atomic.Int32
	failing := func(ctx context.Context, head *httphead.Head, out *buffet.PieceList) error {
		calls.Add(1)
		return errors.New("backend down")
	}
	s := serve(t, context.Background(), cfg, failing)

	unavailable := string(wireloop.HandlerUnavailable.AsHTTPResponse())
	for i := 0; i < 5; i++ {
		s.send(t, "GET / HTTP/1.1\r\n\r\n")
		s.expect(t, unavailable)
	}
	assert.Equal(t, int32(5), calls.Load())
	assert.Equal(t, gobreaker.StateClosed, s.ep.BreakerState())
}

func TestServeConn_HandlerCloses(t *testing.T) {
	closing := func(ctx context.Context, head *httphead.Head, out *buffet.PieceList) error {
		if err := echoTarget(ctx, head, out); err != nil {
			return err
		}
		if !head.KeepAlive() {
			return ErrClose
		}
		return nil
	}
	s := serve(t, context.Background(), testConfig(), closing)

	s.send(t, "GET /a HTTP/1.1\r\nConnection: close\r\n\r\n")

	require.NoError(t, s.client.SetReadDeadline(time.Now().Add(5*time.Second)))
	got, err := io.ReadAll(s.client)
	require.NoError(t, err)
	assert.Equal(t, okResponse("/a"), string(got))
	assert.NoError(t, s.result(t))
}

func TestServeConn_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := serve(t, ctx, testConfig(), echoTarget)

	s.send(t, "GET /a HTTP/1.1\r\n\r\n")
	s.expect(t, okResponse("/a"))

	cancel()
	assert.ErrorIs(t, s.result(t), context.Canceled)
}

func TestServeConn_ReadTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ReadTimeout = 20 * time.Millisecond
	s := serve(t, context.Background(), cfg, echoTarget)

	err := s.result(t)
	var ce *wireloop.ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "read", ce.Op)
	assert.Equal(t, uint64(1), s.ep.Stats().Failures[wireloop.FailureTransport])
}

func TestServeConn_ReleasesChunk(t *testing.T) {
	for name, opts := range map[string][]Option{
		"puddle":  nil,
		"channel": {WithChannelPool()},
	} {
		t.Run(name, func(t *testing.T) {
			s := serve(t, context.Background(), testConfig(), echoTarget, opts...)

			s.send(t, "GET /a HTTP/1.1\r\n\r\n")
			s.expect(t, okResponse("/a"))
			assert.Equal(t, int32(1), s.ep.PoolStats().ActiveChunks)

			require.NoError(t, s.client.Close())
			require.NoError(t, s.result(t))
			assert.Eventually(t, func() bool {
				return s.ep.PoolStats().ActiveChunks == 0
			}, time.Second, 5*time.Millisecond)
		})
	}
}

func TestPeerHost(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"10.0.0.7:51000", "10.0.0.7"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"pipe", "pipe"},
		{"unknown", "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, peerHost(tt.addr), tt.addr)
	}
}

func TestConnectionsFromOneHostShareAShard(t *testing.T) {
	cfg := testConfig()
	cfg.Shards = 4
	ep, err := New(cfg, httphead.Parse, echoTarget)
	require.NoError(t, err)
	defer ep.Close()

	first := ep.pools.For(peerHost("10.0.0.7:40000"))
	for port := 40001; port < 40020; port++ {
		addr := "10.0.0.7:" + strconv.Itoa(port)
		assert.Same(t, first, ep.pools.For(peerHost(addr)), addr)
	}
}

func TestServeConn_ContextDeadlineBoundsRead(t *testing.T) {
	cfg := testConfig()
	cfg.ReadTimeout = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s := serve(t, ctx, cfg, echoTarget)

	err := s.result(t)
	assert.True(t,
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded),
		"got %v", err)
}

func TestNew_Validation(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMessageSize = 0
	_, err := New(cfg, httphead.Parse, echoTarget)
	assert.Error(t, err)

	_, err = New[*httphead.Head](testConfig(), nil, echoTarget)
	assert.Error(t, err)
}
