package wireloop

import (
	"context"
	"io"
	"net"

	"github.com/rs/zerolog"

	"github.com/pior/wireloop/buffet"
)

// WriteOwned is a connection's vectored write capability.
//
// Writev writes every fragment of bufs, in order, as one logical payload
// and returns how many bytes went out. It may drain bufs (nil out or
// reslice its elements); the caller does not read them afterwards.
type WriteOwned interface {
	Writev(bufs net.Buffers) (int64, error)
}

// VectoredWriter adapts w to WriteOwned with net.Buffers, which turns into
// a single writev(2) when w is a TCP or Unix connection and into sequential
// writes otherwise.
func VectoredWriter(w io.Writer) WriteOwned {
	return vectoredWriter{w: w}
}

type vectoredWriter struct {
	w io.Writer
}

func (v vectoredWriter) Writev(bufs net.Buffers) (int64, error) {
	return bufs.WriteTo(v.w)
}

// WriteAllList writes every fragment of list with one vectored write and
// returns the list emptied, its backing array ready for the next response.
//
// A write error is returned as *ConnectionError. A write that reports
// success but delivered fewer bytes than list.Len() is returned as
// *ShortWriteError; it is not retried. In both cases the returned list is
// the one passed in, in an unspecified state: discard it with the
// connection.
//
// An empty list is returned as is, without a write.
func WriteAllList(ctx context.Context, w WriteOwned, list buffet.PieceList) (buffet.PieceList, error) {
	logger := zerolog.Ctx(ctx)

	total := list.Len()
	pieces := list.NumPieces()
	if pieces == 0 {
		return list, nil
	}

	logger.Debug().Int("len", total).Int("pieces", pieces).Msg("writing")

	if err := ctx.Err(); err != nil {
		return list, err
	}

	n, err := w.Writev(list.Buffers())
	if err != nil {
		return list, &ConnectionError{Op: "writev", Err: err}
	}

	logger.Debug().Int64("written", n).Int("len", total).Msg("wrote")
	if n < int64(total) {
		return list, &ShortWriteError{Written: n, Expected: total}
	}

	// Writev may have consumed its copy of the slice header; the list's own
	// header still spans the whole backing array.
	list.Clear()
	return list, nil
}
