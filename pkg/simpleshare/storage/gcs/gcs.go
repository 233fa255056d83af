package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/tendant/simple-share/pkg/simpleshare"
	"github.com/tendant/simple-share/pkg/simpleshare/storage/httpfetch"
	"google.golang.org/api/option"
)

// metaHeaderPrefix carries custom metadata on signed uploads
const metaHeaderPrefix = "x-goog-meta-"

// ServiceAccount holds the fields of a service-account key the backend needs
type ServiceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// ParseServiceAccount decodes a service-account JSON key. Escaped "\n"
// sequences in the private key, as left by some env var tooling, are restored.
func ParseServiceAccount(raw []byte) (*ServiceAccount, error) {
	var sa ServiceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		return nil, fmt.Errorf("service account key is not valid JSON: %w", err)
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return nil, errors.New("service account key needs client_email and private_key")
	}
	sa.PrivateKey = strings.ReplaceAll(sa.PrivateKey, `\n`, "\n")
	return &sa, nil
}

// Config options for the GCS backend
type Config struct {
	Bucket         string
	CredentialJSON []byte       // service-account key
	HTTPClient     *http.Client // Optional client used to fetch proxied downloads
}

// AttrsGetter reads object attributes
type AttrsGetter interface {
	Attrs(ctx context.Context, key string) (*storage.ObjectAttrs, error)
}

type bucketAttrs struct {
	bucket *storage.BucketHandle
}

func (b bucketAttrs) Attrs(ctx context.Context, key string) (*storage.ObjectAttrs, error) {
	return b.bucket.Object(key).Attrs(ctx)
}

// Backend implements simpleshare.BlobStore on Google Cloud Storage with V4 signed URLs
type Backend struct {
	attrs   AttrsGetter
	bucket  string
	account *ServiceAccount
	fetcher *httpfetch.Fetcher
	now     func() time.Time
}

// New creates a GCS client authenticated with the service-account key
func New(ctx context.Context, config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if len(config.CredentialJSON) == 0 {
		return nil, errors.New("service account key is required")
	}

	account, err := ParseServiceAccount(config.CredentialJSON)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx, option.WithCredentialsJSON(config.CredentialJSON))
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	return NewWithAttrs(config, account, bucketAttrs{bucket: client.Bucket(config.Bucket)}), nil
}

// NewWithAttrs creates a backend over an existing attributes reader
func NewWithAttrs(config Config, account *ServiceAccount, attrs AttrsGetter) *Backend {
	return &Backend{
		attrs:   attrs,
		bucket:  config.Bucket,
		account: account,
		fetcher: httpfetch.New(config.HTTPClient),
		now:     time.Now,
	}
}

// WriteCredential signs a V4 PUT URL bound to the content type and metadata
func (b *Backend) WriteCredential(ctx context.Context, params simpleshare.WriteParams) (*simpleshare.Credential, error) {
	headers := make(map[string]string)
	var signed []string
	for k, v := range params.Metadata {
		name := metaHeaderPrefix + strings.ToLower(k)
		headers[name] = v
		signed = append(signed, name+":"+v)
	}

	issuedAt := b.now()
	u, err := storage.SignedURL(b.bucket, params.Key, &storage.SignedURLOptions{
		GoogleAccessID: b.account.ClientEmail,
		PrivateKey:     []byte(b.account.PrivateKey),
		Method:         http.MethodPut,
		Expires:        issuedAt.Add(params.TTL),
		ContentType:    params.ContentType,
		Headers:        signed,
		Scheme:         storage.SigningSchemeV4,
	})
	if err != nil {
		return nil, fmt.Errorf("sign upload URL: %w", err)
	}

	cred := simpleshare.NewCredential(params.Key, simpleshare.ActionWrite, u, issuedAt, params.TTL)
	if params.ContentType != "" {
		headers["Content-Type"] = params.ContentType
	}
	if len(headers) > 0 {
		cred.Headers = headers
	}
	return cred, nil
}

// ReadCredential signs a V4 GET URL for the key
func (b *Backend) ReadCredential(ctx context.Context, key string, ttl time.Duration) (*simpleshare.Credential, error) {
	issuedAt := b.now()
	u, err := storage.SignedURL(b.bucket, key, &storage.SignedURLOptions{
		GoogleAccessID: b.account.ClientEmail,
		PrivateKey:     []byte(b.account.PrivateKey),
		Method:         http.MethodGet,
		Expires:        issuedAt.Add(ttl),
		Scheme:         storage.SigningSchemeV4,
	})
	if err != nil {
		return nil, fmt.Errorf("sign download URL: %w", err)
	}
	return simpleshare.NewCredential(key, simpleshare.ActionRead, u, issuedAt, ttl), nil
}

// GetObjectMeta reads the object's attributes
func (b *Backend) GetObjectMeta(ctx context.Context, key string) (*simpleshare.ObjectMeta, error) {
	attrs, err := b.attrs.Attrs(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", simpleshare.ErrNotFound, key)
		}
		return nil, fmt.Errorf("get object attrs: %w", err)
	}

	return &simpleshare.ObjectMeta{
		Key:         key,
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		UpdatedAt:   attrs.Updated,
		Metadata:    attrs.Metadata,
	}, nil
}

// StreamObject fetches the object through its signed URL
func (b *Backend) StreamObject(ctx context.Context, cred simpleshare.Credential) (*simpleshare.ObjectStream, error) {
	return b.fetcher.StreamObject(ctx, cred)
}
