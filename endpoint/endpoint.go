// Package endpoint runs the per-connection message loop on top of
// wireloop: lease a receive buffer, parse one message at a time, hand it to
// a handler that builds the response as a fragment list, write it with one
// vectored write, repeat until the peer goes away.
//
// Protocol failures are answered with the canned SemanticError responses.
// The handler runs behind a circuit breaker: while it is open every
// message gets 503 and the connection stays up.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/pior/wireloop"
	"github.com/pior/wireloop/buffet"
)

// ErrClose is returned by a Handler to close the connection once its
// response is written.
var ErrClose = errors.New("endpoint: close after response")

// Handler handles one parsed message by appending the response fragments to
// out. The message and any view it holds are only valid during the call;
// fragments pushed to out must stay unmodified until the next call.
//
// Returning an error other than ErrClose discards out and answers 503. It
// counts as a failure for the breaker.
type Handler[T any] func(ctx context.Context, msg T, out *buffet.PieceList) error

// Endpoint serves connections speaking the protocol recognized by its
// parser. It is safe for concurrent use: call ServeConn from one goroutine
// per connection.
type Endpoint[T any] struct {
	cfg     Config
	parse   wireloop.Parser[T]
	handler Handler[T]

	pools   *buffet.ShardedPool
	breaker *gobreaker.CircuitBreaker[struct{}]
	stats   *wireloop.StatsCollector
	logger  zerolog.Logger
}

// Option configures an Endpoint.
type Option func(*options)

type options struct {
	logger  zerolog.Logger
	name    string
	newPool func(chunkSize int, size int32) (buffet.Pool, error)
}

// WithLogger sets the base logger. Each connection logs through a child
// logger carrying the peer address.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithName names the endpoint in logs and in the breaker.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithChannelPool leases chunks from channel based pools instead of puddle.
func WithChannelPool() Option {
	return func(o *options) {
		o.newPool = func(chunkSize int, size int32) (buffet.Pool, error) {
			return buffet.NewChannelPool(chunkSize, size), nil
		}
	}
}

// New creates an Endpoint. Close releases its pools.
func New[T any](cfg Config, parse wireloop.Parser[T], handler Handler[T], opts ...Option) (*Endpoint[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if parse == nil || handler == nil {
		return nil, errors.New("endpoint: parser and handler are required")
	}

	o := options{
		logger:  zerolog.Nop(),
		name:    "endpoint",
		newPool: buffet.NewPuddlePool,
	}
	for _, opt := range opts {
		opt(&o)
	}

	pools, err := buffet.NewShardedPool(cfg.Shards, func() (buffet.Pool, error) {
		return o.newPool(cfg.ChunkSize, cfg.PoolSize)
	})
	if err != nil {
		return nil, fmt.Errorf("endpoint: create pools: %w", err)
	}

	logger := o.logger.With().Str("endpoint", o.name).Logger()

	return &Endpoint[T]{
		cfg:     cfg,
		parse:   parse,
		handler: handler,
		pools:   pools,
		breaker: newBreaker(o.name, cfg.Breaker, logger),
		stats:   &wireloop.StatsCollector{},
		logger:  logger,
	}, nil
}

// Stats returns a snapshot of the loop counters.
func (e *Endpoint[T]) Stats() wireloop.Stats {
	return e.stats.Snapshot()
}

// PoolStats returns the receive chunk pool statistics summed over shards.
func (e *Endpoint[T]) PoolStats() buffet.PoolStats {
	return e.pools.Stats()
}

// BreakerState returns the handler breaker state, or StateClosed when the
// breaker is disabled.
func (e *Endpoint[T]) BreakerState() gobreaker.State {
	if e.breaker == nil {
		return gobreaker.StateClosed
	}
	return e.breaker.State()
}

// Close closes the chunk pools. It blocks until every connection has
// released its chunk, so call it once ServeConn calls have returned or
// their contexts are done.
func (e *Endpoint[T]) Close() {
	e.pools.Close()
}

// ServeConn runs the message loop on nc until the peer closes, an error
// ends the connection, or ctx is done. nc is closed on return.
//
// It returns nil when the peer closed cleanly between messages, ctx.Err()
// when ctx ended the loop, and the error that ended it otherwise.
func (e *Endpoint[T]) ServeConn(ctx context.Context, nc net.Conn) error {
	conn := wireloop.NewConn(nc)
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	peer := "unknown"
	if addr := nc.RemoteAddr(); addr != nil {
		peer = addr.String()
	}
	logger := e.logger.With().Str("peer", peer).Logger()
	ctx = logger.WithContext(ctx)

	e.stats.RecordConnection()
	logger.Debug().Msg("connection accepted")

	buf, err := buffet.LeaseRollMut(ctx, e.pools.For(peerHost(peer)))
	if err != nil {
		return fmt.Errorf("endpoint: lease receive buffer: %w", err)
	}
	defer func() { buf.Release() }()

	r := &countingReader{r: conn, stats: e.stats}
	var out buffet.PieceList

	for {
		if err := conn.SetReadTimeout(ctx, e.cfg.ReadTimeout); err != nil {
			return &wireloop.ConnectionError{Op: "set deadline", Err: err}
		}

		var msg T
		buf, msg, err = wireloop.ReadAndParse(ctx, e.parse, r, buf, e.cfg.MaxMessageSize)
		if err != nil {
			return e.endRead(ctx, conn, err)
		}
		e.stats.RecordMessage()

		closeAfter, err := e.handle(ctx, msg, &out)
		if err != nil {
			return err
		}

		if out, err = e.write(ctx, conn, out); err != nil {
			return e.fail(ctx, err)
		}
		if closeAfter {
			logger.Debug().Msg("closing after response")
			return nil
		}
	}
}

// handle runs the handler through the breaker. A rejected or failed call
// leaves out holding the 503 response.
func (e *Endpoint[T]) handle(ctx context.Context, msg T, out *buffet.PieceList) (closeAfter bool, err error) {
	call := func() (struct{}, error) {
		err := e.handler(ctx, msg, out)
		if errors.Is(err, ErrClose) {
			closeAfter = true
			return struct{}{}, nil
		}
		return struct{}{}, err
	}

	if e.breaker == nil {
		_, err = call()
	} else {
		_, err = e.breaker.Execute(call)
	}
	if err == nil {
		return closeAfter, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}

	logger := zerolog.Ctx(ctx)
	if isBreakerRejection(err) {
		logger.Debug().Err(err).Msg("handler breaker rejected message")
	} else {
		logger.Warn().Err(err).Msg("handler failed")
	}

	e.stats.RecordFailure(wireloop.FailureHandlerUnavailable)
	out.Clear()
	out.Push(wireloop.HandlerUnavailable.AsHTTPResponse())
	return false, nil
}

func (e *Endpoint[T]) write(ctx context.Context, conn *wireloop.Conn, out buffet.PieceList) (buffet.PieceList, error) {
	if out.IsEmpty() {
		return out, nil
	}
	if err := conn.SetWriteTimeout(ctx, e.cfg.WriteTimeout); err != nil {
		return out, &wireloop.ConnectionError{Op: "set deadline", Err: err}
	}

	n, pieces := out.Len(), out.NumPieces()
	out, err := wireloop.WriteAllList(ctx, conn, out)
	if err != nil {
		var swe *wireloop.ShortWriteError
		if errors.As(err, &swe) {
			e.stats.RecordWrite(swe.Written, pieces)
		}
		return out, err
	}
	e.stats.RecordWrite(int64(n), pieces)
	return out, nil
}

// endRead turns a ReadAndParse error into the connection outcome, sending
// the canned response when one applies.
func (e *Endpoint[T]) endRead(ctx context.Context, conn *wireloop.Conn, err error) error {
	logger := zerolog.Ctx(ctx)

	if errors.Is(err, io.EOF) {
		logger.Debug().Msg("connection closed by peer")
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var reply wireloop.SemanticError
	var pe *wireloop.ParseError
	switch {
	case errors.As(err, &reply):
	case errors.As(err, &pe) && e.cfg.ReplyOnMalformed:
		reply = wireloop.MalformedMessage
	}

	if response := reply.AsHTTPResponse(); response != nil {
		var list buffet.PieceList
		list.Push(response)
		if _, werr := e.write(ctx, conn, list); werr != nil {
			logger.Debug().Err(werr).Msg("failed to send error response")
		}
	}

	return e.fail(ctx, err)
}

func (e *Endpoint[T]) fail(ctx context.Context, err error) error {
	if kind, ok := wireloop.ClassifyFailure(err); ok {
		e.stats.RecordFailure(kind)
	}
	zerolog.Ctx(ctx).Debug().Err(err).Msg("closing connection")
	return err
}

// peerHost strips the port from a peer address so every connection of one
// host shares a shard.
func peerHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// countingReader records every transport read.
type countingReader struct {
	r     io.Reader
	stats *wireloop.StatsCollector
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.stats.RecordRead(n)
	return n, err
}
