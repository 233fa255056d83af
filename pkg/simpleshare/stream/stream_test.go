package stream_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-share/pkg/simpleshare/stream"
)

type trackingReader struct {
	io.Reader
	closed atomic.Bool
}

func (r *trackingReader) Close() error {
	r.closed.Store(true)
	return nil
}

// blockingReader blocks in Read until closed
type blockingReader struct {
	done chan struct{}
}

func (r *blockingReader) Read(p []byte) (int, error) {
	<-r.done
	return 0, errors.New("read on closed body")
}

func (r *blockingReader) Close() error {
	select {
	case <-r.done:
	default:
		close(r.done)
	}
	return nil
}

type failingWriter struct{ after int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, errors.New("client went away")
	}
	w.after--
	return len(p), nil
}

func TestCopy(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 10_000)
	src := &trackingReader{Reader: bytes.NewReader(payload)}
	rec := httptest.NewRecorder()

	n, err := stream.Copy(context.Background(), rec, src, stream.Options{ChunkSize: 1000, Depth: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, payload, rec.Body.Bytes())
	assert.True(t, rec.Flushed)
	assert.Eventually(t, src.closed.Load, time.Second, 10*time.Millisecond)
}

func TestCopy_Empty(t *testing.T) {
	var buf bytes.Buffer
	n, err := stream.Copy(context.Background(), &buf, io.NopCloser(strings.NewReader("")), stream.Options{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCopy_WriterFails(t *testing.T) {
	src := &trackingReader{Reader: bytes.NewReader(make([]byte, 1<<20))}
	_, err := stream.Copy(context.Background(), &failingWriter{after: 2}, src, stream.Options{ChunkSize: 1024})
	assert.EqualError(t, err, "client went away")
	assert.Eventually(t, src.closed.Load, time.Second, 10*time.Millisecond)
}

func TestCopy_CancelReleasesBlockedRead(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &blockingReader{done: make(chan struct{})}

	errc := make(chan error, 1)
	go func() {
		_, err := stream.Copy(ctx, io.Discard, src, stream.Options{})
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Copy did not return after cancel")
	}
}

func TestCopy_ReadError(t *testing.T) {
	src := io.NopCloser(io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(errors.New("backend reset"))))
	var buf bytes.Buffer
	_, err := stream.Copy(context.Background(), &buf, src, stream.Options{})
	assert.EqualError(t, err, "backend reset")
	assert.Equal(t, "partial", buf.String())
}
