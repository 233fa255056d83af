package minio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/tendant/simple-share/pkg/simpleshare"
	"github.com/tendant/simple-share/pkg/simpleshare/storage/httpfetch"
)

// metaHeaderPrefix is how S3-compatible stores carry user metadata
const metaHeaderPrefix = "X-Amz-Meta-"

// Config options for the MinIO backend
type Config struct {
	Endpoint     string // host:port
	AccessKey    string
	SecretKey    string
	Bucket       string
	UseSSL       bool
	CreateBucket bool         // Create the bucket at startup when missing
	HTTPClient   *http.Client // Optional client used to fetch proxied downloads
}

// Client is the part of minio.Client the backend calls
type Client interface {
	PresignHeader(ctx context.Context, method, bucketName, objectName string, expires time.Duration, reqParams url.Values, extraHeaders http.Header) (*url.URL, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// Backend implements simpleshare.BlobStore on MinIO or any S3-compatible server
type Backend struct {
	client  Client
	bucket  string
	fetcher *httpfetch.Fetcher
	now     func() time.Time
}

// New creates a MinIO client and, if asked, ensures the bucket exists
func New(config Config) (*Backend, error) {
	if config.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	if config.CreateBucket {
		ctx := context.Background()
		exists, err := client.BucketExists(ctx, config.Bucket)
		if err != nil {
			return nil, fmt.Errorf("check bucket existence: %w", err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, config.Bucket, minio.MakeBucketOptions{}); err != nil {
				return nil, fmt.Errorf("create bucket %q: %w", config.Bucket, err)
			}
			slog.Info("storage: created bucket", "bucket", config.Bucket)
		}
	}

	return NewWithClient(config, client), nil
}

// NewWithClient creates a backend over an existing client
func NewWithClient(config Config, client Client) *Backend {
	return &Backend{
		client:  client,
		bucket:  config.Bucket,
		fetcher: httpfetch.New(config.HTTPClient),
		now:     time.Now,
	}
}

// WriteCredential presigns a PUT with the content type and metadata as signed headers
func (b *Backend) WriteCredential(ctx context.Context, params simpleshare.WriteParams) (*simpleshare.Credential, error) {
	headers := http.Header{}
	if params.ContentType != "" {
		headers.Set("Content-Type", params.ContentType)
	}
	for k, v := range params.Metadata {
		headers.Set(metaHeaderPrefix+k, v)
	}

	issuedAt := b.now()
	u, err := b.client.PresignHeader(ctx, http.MethodPut, b.bucket, params.Key, params.TTL, nil, headers)
	if err != nil {
		return nil, fmt.Errorf("presign put %q: %w", params.Key, err)
	}

	cred := simpleshare.NewCredential(params.Key, simpleshare.ActionWrite, u.String(), issuedAt, params.TTL)
	if len(headers) > 0 {
		cred.Headers = make(map[string]string, len(headers))
		for k := range headers {
			cred.Headers[k] = headers.Get(k)
		}
	}
	return cred, nil
}

// ReadCredential presigns a GET for the key
func (b *Backend) ReadCredential(ctx context.Context, key string, ttl time.Duration) (*simpleshare.Credential, error) {
	issuedAt := b.now()
	u, err := b.client.PresignHeader(ctx, http.MethodGet, b.bucket, key, ttl, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("presign get %q: %w", key, err)
	}
	return simpleshare.NewCredential(key, simpleshare.ActionRead, u.String(), issuedAt, ttl), nil
}

// GetObjectMeta stats the object
func (b *Backend) GetObjectMeta(ctx context.Context, key string) (*simpleshare.ObjectMeta, error) {
	info, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", simpleshare.ErrNotFound, key)
		}
		return nil, fmt.Errorf("stat object %q: %w", key, err)
	}

	var metadata map[string]string
	if len(info.UserMetadata) > 0 {
		metadata = make(map[string]string, len(info.UserMetadata))
		for k, v := range info.UserMetadata {
			k = strings.TrimPrefix(http.CanonicalHeaderKey(k), metaHeaderPrefix)
			metadata[strings.ToLower(k)] = v
		}
	}

	return &simpleshare.ObjectMeta{
		Key:         key,
		Size:        info.Size,
		ContentType: info.ContentType,
		UpdatedAt:   info.LastModified,
		Metadata:    metadata,
	}, nil
}

// StreamObject fetches the object through its presigned URL
func (b *Backend) StreamObject(ctx context.Context, cred simpleshare.Credential) (*simpleshare.ObjectStream, error) {
	return b.fetcher.StreamObject(ctx, cred)
}
