package memory_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-share/pkg/simpleshare"
	memorystorage "github.com/tendant/simple-share/pkg/simpleshare/storage/memory"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemoryBackend(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 6, 10, 6, 13, 20, 0, time.UTC)}
	backend := memorystorage.New(memorystorage.WithClock(clock.Now))
	ctx := context.Background()
	testKey := "photo-1718000000000-a1b2c3d4e5f6.jpg"
	testData := "Hello, World! This is test data."

	t.Run("WriteCredential", func(t *testing.T) {
		cred, err := backend.WriteCredential(ctx, simpleshare.WriteParams{
			Key:         testKey,
			ContentType: "image/jpeg",
			TTL:         time.Hour,
			Metadata:    map[string]string{"message": "hi"},
		})
		require.NoError(t, err)
		assert.Equal(t, http.MethodPut, cred.Method)
		assert.Equal(t, simpleshare.ActionWrite, cred.Action)
		assert.Equal(t, clock.t.Add(time.Hour), cred.ExpiresAt)
		assert.Equal(t, "image/jpeg", cred.Headers["Content-Type"])

		err = backend.Put(ctx, cred.URL, "image/jpeg", strings.NewReader(testData))
		require.NoError(t, err)
	})

	t.Run("GetObjectMeta", func(t *testing.T) {
		meta, err := backend.GetObjectMeta(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, testKey, meta.Key)
		assert.Equal(t, int64(len(testData)), meta.Size)
		assert.Equal(t, "image/jpeg", meta.ContentType)
		assert.Equal(t, "hi", meta.Message())
	})

	t.Run("StreamObject", func(t *testing.T) {
		cred, err := backend.ReadCredential(ctx, testKey, 10*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, http.MethodGet, cred.Method)

		stream, err := backend.StreamObject(ctx, *cred)
		require.NoError(t, err)
		defer stream.Body.Close()

		data, err := io.ReadAll(stream.Body)
		require.NoError(t, err)
		assert.Equal(t, testData, string(data))
		assert.Equal(t, int64(len(testData)), stream.ContentLength)
	})

	t.Run("MissingObject", func(t *testing.T) {
		_, err := backend.GetObjectMeta(ctx, "nope")
		assert.ErrorIs(t, err, simpleshare.ErrNotFound)

		cred, err := backend.ReadCredential(ctx, "nope", time.Minute)
		require.NoError(t, err)
		_, err = backend.StreamObject(ctx, *cred)
		assert.ErrorIs(t, err, simpleshare.ErrNotFound)
		assert.Equal(t, http.StatusNotFound, simpleshare.BackendStatus(err))
	})
}

func TestMemoryBackend_CredentialScope(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)}
	backend := memorystorage.New(memorystorage.WithClock(clock.Now))
	ctx := context.Background()

	write, err := backend.WriteCredential(ctx, simpleshare.WriteParams{Key: "a.txt", ContentType: "text/plain", TTL: time.Minute})
	require.NoError(t, err)

	t.Run("content type mismatch", func(t *testing.T) {
		err := backend.Put(ctx, write.URL, "text/html", strings.NewReader("x"))
		assert.ErrorIs(t, err, memorystorage.ErrCredentialRejected)
	})

	t.Run("write credential cannot read", func(t *testing.T) {
		backend.Store("a.txt", "text/plain", []byte("x"), nil)
		_, err := backend.StreamObject(ctx, *write)
		assert.ErrorIs(t, err, memorystorage.ErrCredentialRejected)
		assert.Equal(t, http.StatusForbidden, simpleshare.BackendStatus(err))
	})

	t.Run("unknown token", func(t *testing.T) {
		err := backend.Put(ctx, "memory://blobs/a.txt?token=forged", "text/plain", strings.NewReader("x"))
		assert.ErrorIs(t, err, memorystorage.ErrCredentialRejected)
	})

	t.Run("expired", func(t *testing.T) {
		clock.Advance(time.Minute)
		err := backend.Put(ctx, write.URL, "text/plain", strings.NewReader("x"))
		assert.ErrorIs(t, err, memorystorage.ErrCredentialRejected)
	})
}

func TestMemoryBackend_ExpiredGrantsAreForgotten(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)}
	backend := memorystorage.New(memorystorage.WithClock(clock.Now))
	ctx := context.Background()
	backend.Store("a.txt", "text/plain", []byte("x"), nil)

	for i := 0; i < 100; i++ {
		_, err := backend.ReadCredential(ctx, "a.txt", time.Minute)
		require.NoError(t, err)
	}
	assert.Equal(t, 100, backend.GrantCount())

	clock.Advance(time.Minute)
	fresh, err := backend.ReadCredential(ctx, "a.txt", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.GrantCount())

	stream, err := backend.StreamObject(ctx, *fresh)
	require.NoError(t, err)
	stream.Body.Close()
}

func TestMemoryBackend_CanceledContext(t *testing.T) {
	backend := memorystorage.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := backend.GetObjectMeta(ctx, "a.txt")
	assert.ErrorIs(t, err, context.Canceled)
}
