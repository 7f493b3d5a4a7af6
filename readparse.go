package wireloop

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"

	"github.com/pior/wireloop/buffet"
)

// previewLen is how many leading buffered bytes trace logs hex-dump.
const previewLen = 128

// Parser recognizes one complete message at the start of input.
//
// It returns the unconsumed remainder (a suffix of input) and the parsed
// value on success, ErrIncomplete when input is a valid prefix of a message
// that needs more bytes, or any other error (ideally built with Malformed)
// when input can never become a valid message.
//
// A Parser must not retain input beyond what the parsed value references,
// and must not modify it.
type Parser[T any] func(input buffet.Roll) (rest buffet.Roll, out T, err error)

// ReadAndParse parses one message out of buf, reading more bytes from r
// whenever parse reports ErrIncomplete.
//
// On success the filled region of buf is trimmed to the unconsumed remainder
// so the next call picks up a pipelined message without reading. Bytes are
// only read when the buffered bytes are not enough, and never more than
// maxLen - buf.Len() at a time.
//
// Errors:
//   - io.EOF: the stream ended cleanly with nothing buffered
//   - BufferLimitReachedWhileParsing: buf holds maxLen bytes or more and
//     the message is still incomplete
//   - *UnexpectedEOFError: the stream ended in the middle of a message
//   - *ParseError: parse rejected the input
//   - *ConnectionError: the read failed
//   - ctx.Err(): ctx was done before a read
//
// buf is always returned, even with an error. After an error other than
// io.EOF its content is unspecified; release it rather than reuse it.
// Logging goes to the zerolog logger attached to ctx, if any.
func ReadAndParse[T any](ctx context.Context, parse Parser[T], r io.Reader, buf *buffet.RollMut, maxLen int) (*buffet.RollMut, T, error) {
	logger := zerolog.Ctx(ctx)
	var zero T

	for {
		logger.Trace().Int("buf_len", buf.Len()).Int("buf_cap", buf.Cap()).Msg("reading+parsing")

		filled := buf.Filled()
		rest, out, err := parse(filled)
		if err == nil {
			buf.Keep(rest)
			return buf, out, nil
		}

		if !errors.Is(err, ErrIncomplete) {
			pe := asParseError(filled, err)
			logger.Debug().
				Err(pe).
				Bytes("input", pe.Input).
				Uint64("fingerprint", pe.Fingerprint).
				Msg("parsing error")
			return buf, zero, pe
		}

		if e := logger.Trace(); e.Enabled() {
			e.Str("preview", filled.Preview(previewLen)).Msg("incomplete message, need more data")
		}

		if buf.Len() >= maxLen {
			return buf, zero, BufferLimitReachedWhileParsing
		}

		if buf.Cap() == 0 {
			logger.Trace().Msg("buffer had zero capacity, growing")
			buf.Grow()
		}

		readLimit := maxLen - buf.Len()
		logger.Trace().
			Int("buf_len", buf.Len()).
			Int("buf_cap", buf.Cap()).
			Int("read_limit", readLimit).
			Msg("reading")

		if err := ctx.Err(); err != nil {
			return buf, zero, err
		}

		n, err := buf.ReadInto(readLimit, r)
		if err != nil {
			return buf, zero, &ConnectionError{Op: "read", Err: err}
		}
		if n == 0 {
			if !buf.IsEmpty() {
				return buf, zero, &UnexpectedEOFError{Buffered: buf.Len()}
			}
			return buf, zero, io.EOF
		}
	}
}
