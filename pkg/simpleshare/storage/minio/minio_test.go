package minio

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-share/pkg/simpleshare"
)

type fakeClient struct {
	method  string
	expires time.Duration
	headers http.Header
	info    minio.ObjectInfo
	statErr error
}

func (f *fakeClient) PresignHeader(ctx context.Context, method, bucketName, objectName string, expires time.Duration, reqParams url.Values, extraHeaders http.Header) (*url.URL, error) {
	f.method, f.expires, f.headers = method, expires, extraHeaders
	return url.Parse("http://localhost:9000/" + bucketName + "/" + url.PathEscape(objectName) + "?X-Amz-Signature=abc")
}

func (f *fakeClient) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return f.info, f.statErr
}

func TestMinioBackend_Config(t *testing.T) {
	_, err := New(Config{Bucket: "b"})
	assert.Error(t, err)
	_, err = New(Config{Endpoint: "localhost:9000"})
	assert.Error(t, err)

	backend, err := New(Config{Endpoint: "localhost:9000", Bucket: "share", AccessKey: "a", SecretKey: "b"})
	require.NoError(t, err)
	assert.NotNil(t, backend)
}

func TestMinioBackend_WriteCredential(t *testing.T) {
	client := &fakeClient{}
	backend := NewWithClient(Config{Bucket: "share"}, client)
	now := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	backend.now = func() time.Time { return now }

	cred, err := backend.WriteCredential(context.Background(), simpleshare.WriteParams{
		Key:         "a b-1718000000000-a1b2c3d4e5f6.txt",
		ContentType: "text/plain",
		TTL:         48 * time.Hour,
		Metadata:    map[string]string{"message": "hi"},
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, client.method)
	assert.Equal(t, 48*time.Hour, client.expires)
	assert.Equal(t, "hi", client.headers.Get("X-Amz-Meta-Message"))
	assert.Equal(t, "text/plain", cred.Headers["Content-Type"])
	assert.Equal(t, "hi", cred.Headers["X-Amz-Meta-Message"])
	assert.Equal(t, now.Add(48*time.Hour), cred.ExpiresAt)
	assert.Contains(t, cred.URL, "/share/a%20b-1718000000000-a1b2c3d4e5f6.txt")
}

func TestMinioBackend_GetObjectMeta(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		client := &fakeClient{info: minio.ObjectInfo{
			Size:         3,
			ContentType:  "image/png",
			UserMetadata: minio.StringMap{"X-Amz-Meta-Message": "hello"},
		}}
		backend := NewWithClient(Config{Bucket: "share"}, client)

		meta, err := backend.GetObjectMeta(context.Background(), "k")
		require.NoError(t, err)
		assert.Equal(t, int64(3), meta.Size)
		assert.Equal(t, "image/png", meta.ContentType)
		assert.Equal(t, "hello", meta.Message())
	})

	t.Run("missing", func(t *testing.T) {
		client := &fakeClient{statErr: minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}}
		backend := NewWithClient(Config{Bucket: "share"}, client)

		_, err := backend.GetObjectMeta(context.Background(), "k")
		assert.ErrorIs(t, err, simpleshare.ErrNotFound)
	})

	t.Run("denied", func(t *testing.T) {
		client := &fakeClient{statErr: minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}}
		backend := NewWithClient(Config{Bucket: "share"}, client)

		_, err := backend.GetObjectMeta(context.Background(), "k")
		require.Error(t, err)
		assert.NotErrorIs(t, err, simpleshare.ErrNotFound)
	})
}
