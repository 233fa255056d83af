// Package stream forwards an object body to an HTTP response through a
// bounded buffer: one task reads from the backend while another writes to
// the caller, and a slow caller stalls the backend read.
package stream

import (
	"context"
	"errors"
	"io"
	"net/http"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultChunkSize = 32 * 1024
	DefaultDepth     = 4
)

// Options tunes the pipe. Zero values use the defaults.
type Options struct {
	ChunkSize int // bytes per read
	Depth     int // chunks in flight between the tasks
}

type chunk struct {
	buf []byte
	n   int
}

// Copy streams src to dst until src is exhausted, either side fails or ctx
// is done. src is closed when Copy returns, and earlier if ctx is canceled
// so a blocked backend read is released. dst is flushed after each chunk
// when it implements http.Flusher. It returns the bytes written to dst.
func Copy(ctx context.Context, dst io.Writer, src io.ReadCloser, opts Options) (int64, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Depth <= 0 {
		opts.Depth = DefaultDepth
	}

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { src.Close() })
	defer func() {
		if stop() {
			src.Close()
		}
	}()

	// Every buffer is either free, in flight, or held by one task.
	free := make(chan []byte, opts.Depth+1)
	for i := 0; i < opts.Depth+1; i++ {
		free <- make([]byte, opts.ChunkSize)
	}
	full := make(chan chunk, opts.Depth)

	g.Go(func() error {
		defer close(full)
		for {
			var buf []byte
			select {
			case buf = <-free:
			case <-gctx.Done():
				return gctx.Err()
			}

			n, err := src.Read(buf)
			if n > 0 {
				select {
				case full <- chunk{buf: buf, n: n}:
				case <-gctx.Done():
					return gctx.Err()
				}
			} else {
				free <- buf
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
		}
	})

	var written int64
	flusher, _ := dst.(http.Flusher)
	g.Go(func() error {
		for c := range full {
			n, err := dst.Write(c.buf[:c.n])
			written += int64(n)
			if err != nil {
				return err
			}
			if n != c.n {
				return io.ErrShortWrite
			}
			if flusher != nil {
				flusher.Flush()
			}
			free <- c.buf
		}
		return nil
	})

	err := g.Wait()
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	return written, err
}
