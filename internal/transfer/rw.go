package transfer

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

type RWCallback func(n int64)
type RWOption func(*ReaderWriter)

func RWWithReadLimiter(limiter *rate.Limiter) RWOption {
	return func(r *ReaderWriter) {
		r.readLimiter = limiter
	}
}

func RWWithIOReader(reader io.Reader) RWOption {
	return func(r *ReaderWriter) {
		r.reader = reader
	}
}

func RWWithIOWriter(writer io.Writer) RWOption {
	return func(r *ReaderWriter) {
		r.writer = writer
	}
}

func RWWithReaderCallback(callback RWCallback) RWOption {
	return func(r *ReaderWriter) {
		r.readerCallback = callback
	}
}

// ReaderWriter wraps an io.Reader and io.Writer and allows for context
// cancellation, rate limiting and a progress callback.
//
// NOTE: The callback runs on the copy path so don't block in it.
type ReaderWriter struct {
	reader         io.Reader
	writer         io.Writer
	readLimiter    *rate.Limiter
	readerCallback RWCallback
}

// NewReaderWriter creates a new ReaderWriter.
func NewReaderWriter(opts ...RWOption) *ReaderWriter {
	r := &ReaderWriter{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Transfer transfers data from the reader to the writer
func (r ReaderWriter) Transfer(ctx context.Context) (int64, error) {
	return io.Copy(r.writer, r.Reader(ctx))
}

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }

// Reader creates a new io.Reader that wraps the underlying reader.
// Applies rate limiting and respects context cancellation.
func (r ReaderWriter) Reader(ctx context.Context) io.Reader {
	return readerFunc(func(p []byte) (int, error) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
		n, err := r.reader.Read(p)
		if n > 0 {
			if werr := waitN(ctx, r.readLimiter, n); werr != nil {
				return n, werr
			}
			if r.readerCallback != nil {
				r.readerCallback(int64(n))
			}
		}
		return n, err
	})
}
