package s3

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-share/pkg/simpleshare"
)

type fakeAPI struct {
	out *s3.HeadObjectOutput
	err error
}

func (f *fakeAPI) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return f.out, f.err
}

type fakePresigner struct {
	put     *s3.PutObjectInput
	expires time.Duration
	url     string
}

func (f *fakePresigner) PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.put = params
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{
		URL:    "https://bucket.s3.amazonaws.com/" + aws.ToString(params.Key) + "?X-Amz-Signature=abc",
		Method: http.MethodPut,
		SignedHeader: http.Header{
			"Host":               {"bucket.s3.amazonaws.com"},
			"X-Amz-Meta-Message": {"hi"},
		},
	}, nil
}

func (f *fakePresigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{URL: f.url, Method: http.MethodGet}, nil
}

// TestS3Backend_BasicConfiguration tests the configuration and creation of S3 backend
func TestS3Backend_BasicConfiguration(t *testing.T) {
	t.Run("EmptyBucket", func(t *testing.T) {
		_, err := New(Config{Region: "us-east-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket name is required")
	})

	t.Run("StaticCredentials", func(t *testing.T) {
		backend, err := New(Config{
			Bucket:          "test-bucket",
			AccessKeyID:     "test-key",
			SecretAccessKey: "test-secret",
			Endpoint:        "http://localhost:9000",
			UsePathStyle:    true,
		})
		require.NoError(t, err)
		assert.Equal(t, "us-east-1", backend.config.Region)
	})
}

func TestS3Backend_WriteCredential(t *testing.T) {
	presigner := &fakePresigner{}
	backend := NewWithClients(Config{Bucket: "b", EnableSSE: true, SSEAlgorithm: "AES256"}, &fakeAPI{}, presigner)
	now := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	backend.now = func() time.Time { return now }

	cred, err := backend.WriteCredential(context.Background(), simpleshare.WriteParams{
		Key:         "photo-1718000000000-a1b2c3d4e5f6.jpg",
		ContentType: "image/jpeg",
		TTL:         48 * time.Hour,
		Metadata:    map[string]string{"message": "hi"},
	})
	require.NoError(t, err)

	assert.Equal(t, "image/jpeg", aws.ToString(presigner.put.ContentType))
	assert.Equal(t, "hi", presigner.put.Metadata["message"])
	assert.Equal(t, "AES256", string(presigner.put.ServerSideEncryption))
	assert.Equal(t, 48*time.Hour, presigner.expires)

	assert.Equal(t, http.MethodPut, cred.Method)
	assert.Equal(t, now.Add(48*time.Hour), cred.ExpiresAt)
	assert.Equal(t, "image/jpeg", cred.Headers["Content-Type"])
	assert.Equal(t, "hi", cred.Headers["X-Amz-Meta-Message"])
	assert.NotContains(t, cred.Headers, "Host")
}

func TestS3Backend_RealPresign(t *testing.T) {
	client := s3.New(s3.Options{
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""),
		BaseEndpoint: aws.String("http://localhost:9000"),
		UsePathStyle: true,
	})
	backend := NewWithClients(Config{Bucket: "share"}, client, s3.NewPresignClient(client))

	cred, err := backend.ReadCredential(context.Background(), "notes-1718000000000-a1b2c3d4e5f6", 10*time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cred.URL, "http://localhost:9000/share/notes-1718000000000-a1b2c3d4e5f6?"))
	assert.Contains(t, cred.URL, "X-Amz-Signature=")
	assert.Contains(t, cred.URL, "X-Amz-Expires=600")
	assert.Equal(t, simpleshare.ActionRead, cred.Action)
}

func TestS3Backend_GetObjectMeta(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		modified := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
		backend := NewWithClients(Config{Bucket: "b"}, &fakeAPI{out: &s3.HeadObjectOutput{
			ContentLength: aws.Int64(42),
			ContentType:   aws.String("text/plain"),
			LastModified:  &modified,
			Metadata:      map[string]string{"message": "=?utf-8?b?aMOpbGxv?="},
		}}, &fakePresigner{})

		meta, err := backend.GetObjectMeta(context.Background(), "k")
		require.NoError(t, err)
		assert.Equal(t, int64(42), meta.Size)
		assert.Equal(t, "text/plain", meta.ContentType)
		assert.Equal(t, "héllo", meta.Message())
	})

	t.Run("no content type", func(t *testing.T) {
		backend := NewWithClients(Config{Bucket: "b"}, &fakeAPI{out: &s3.HeadObjectOutput{}}, &fakePresigner{})
		meta, err := backend.GetObjectMeta(context.Background(), "k")
		require.NoError(t, err)
		assert.Empty(t, meta.ContentType)
	})

	for _, code := range []string{"NotFound", "NoSuchKey"} {
		t.Run(code, func(t *testing.T) {
			backend := NewWithClients(Config{Bucket: "b"}, &fakeAPI{err: &smithy.GenericAPIError{Code: code}}, &fakePresigner{})
			_, err := backend.GetObjectMeta(context.Background(), "k")
			assert.ErrorIs(t, err, simpleshare.ErrNotFound)
		})
	}

	t.Run("access denied", func(t *testing.T) {
		backend := NewWithClients(Config{Bucket: "b"}, &fakeAPI{err: &smithy.GenericAPIError{Code: "AccessDenied"}}, &fakePresigner{})
		_, err := backend.GetObjectMeta(context.Background(), "k")
		require.Error(t, err)
		assert.False(t, errors.Is(err, simpleshare.ErrNotFound))
	})
}

func TestS3Backend_StreamObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("bytes"))
	}))
	defer srv.Close()

	presigner := &fakePresigner{url: srv.URL + "/k"}
	backend := NewWithClients(Config{Bucket: "b", HTTPClient: srv.Client()}, &fakeAPI{}, presigner)

	cred, err := backend.ReadCredential(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	stream, err := backend.StreamObject(context.Background(), *cred)
	require.NoError(t, err)
	defer stream.Body.Close()
	body, _ := io.ReadAll(stream.Body)
	assert.Equal(t, "bytes", string(body))

	presigner.url = srv.URL + "/missing"
	cred, err = backend.ReadCredential(context.Background(), "missing", time.Minute)
	require.NoError(t, err)
	_, err = backend.StreamObject(context.Background(), *cred)
	assert.ErrorIs(t, err, simpleshare.ErrNotFound)
}
