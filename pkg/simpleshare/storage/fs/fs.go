package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tendant/simple-share/pkg/simpleshare"
	"github.com/tendant/simple-share/pkg/simpleshare/presigned"
)

// Backend is a filesystem implementation of the simpleshare.BlobStore
// interface. Credentials are HMAC-signed URLs answered by presigned.Handlers.
type Backend struct {
	mu      sync.RWMutex
	baseDir string
	signer  *presigned.Signer
}

// Config options for the filesystem backend
type Config struct {
	BaseDir    string           // Base directory for storing files
	BaseURL    string           // Public origin the blob routes are served from, e.g. "http://localhost:8080"
	SecretKey  string           // HMAC key for signed URLs
	URLPattern string           // Optional, defaults to "/blobs/{key}"
	Now        func() time.Time // Optional clock
}

// sidecar is stored next to each object
type sidecar struct {
	Key         string            `json:"key"`
	ContentType string            `json:"contentType,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if config.SecretKey == "" {
		return nil, errors.New("signature secret key is required")
	}

	if err := os.MkdirAll(filepath.Join(config.BaseDir, "objects"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	opts := []presigned.Option{
		presigned.WithSecretKey(config.SecretKey),
		presigned.WithBaseURL(config.BaseURL),
	}
	if config.URLPattern != "" {
		opts = append(opts, presigned.WithURLPattern(config.URLPattern))
	}
	if config.Now != nil {
		opts = append(opts, presigned.WithClock(config.Now))
	}

	return &Backend{
		baseDir: config.BaseDir,
		signer:  presigned.New(opts...),
	}, nil
}

// Handlers returns the HTTP handlers answering this backend's credentials
func (b *Backend) Handlers(opts ...presigned.HandlersOption) *presigned.Handlers {
	return presigned.NewHandlers(b.signer, b, opts...)
}

// WriteCredential signs a PUT URL bound to the key, content type and metadata
func (b *Backend) WriteCredential(ctx context.Context, params simpleshare.WriteParams) (*simpleshare.Credential, error) {
	if params.Key == "" {
		return nil, errors.New("object key is required")
	}

	query := url.Values{}
	if params.ContentType != "" {
		query.Set(presigned.ContentTypeParam, params.ContentType)
	}
	for k, v := range params.Metadata {
		query.Set(presigned.MetaPrefix+k, v)
	}

	signed, expiresAt, err := b.signer.SignURL(http.MethodPut, b.signer.Path(params.Key), query, params.TTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign upload URL: %w", err)
	}

	cred := &simpleshare.Credential{
		Key:       params.Key,
		Action:    simpleshare.ActionWrite,
		Method:    http.MethodPut,
		URL:       signed,
		ExpiresAt: expiresAt,
	}
	if params.ContentType != "" {
		cred.Headers = map[string]string{"Content-Type": params.ContentType}
	}
	return cred, nil
}

// ReadCredential signs a GET URL for the key
func (b *Backend) ReadCredential(ctx context.Context, key string, ttl time.Duration) (*simpleshare.Credential, error) {
	signed, expiresAt, err := b.signer.SignURL(http.MethodGet, b.signer.Path(key), nil, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to sign download URL: %w", err)
	}
	return &simpleshare.Credential{
		Key:       key,
		Action:    simpleshare.ActionRead,
		Method:    http.MethodGet,
		URL:       signed,
		ExpiresAt: expiresAt,
	}, nil
}

// GetObjectMeta retrieves metadata for an object in the filesystem
func (b *Backend) GetObjectMeta(ctx context.Context, key string) (*simpleshare.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	blobPath, metaPath := b.paths(key)

	info, err := os.Stat(blobPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", simpleshare.ErrNotFound, key)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	sc, err := readSidecar(metaPath)
	if err != nil {
		return nil, err
	}

	return &simpleshare.ObjectMeta{
		Key:         key,
		Size:        info.Size(),
		ContentType: sc.ContentType,
		UpdatedAt:   info.ModTime(),
		Metadata:    sc.Metadata,
	}, nil
}

// StreamObject checks a read credential and opens the object it names.
// The bytes are read locally; the credential is checked the same way
// presigned.Handlers would check it.
func (b *Backend) StreamObject(ctx context.Context, cred simpleshare.Credential) (*simpleshare.ObjectStream, error) {
	key, _, err := b.signer.ValidateURL(http.MethodGet, cred.URL)
	if err != nil {
		return nil, &simpleshare.StatusError{StatusCode: http.StatusForbidden, Err: err}
	}

	stream, err := b.OpenObject(ctx, key)
	if errors.Is(err, simpleshare.ErrNotFound) {
		return nil, &simpleshare.StatusError{StatusCode: http.StatusNotFound, Err: err}
	}
	return stream, err
}

// WriteObject stores body and its sidecar. The object appears atomically.
func (b *Backend) WriteObject(ctx context.Context, key, contentType string, metadata map[string]string, body io.Reader) error {
	blobPath, metaPath := b.paths(key)
	dir := filepath.Dir(blobPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sc, err := json.Marshal(sidecar{
		Key:         key,
		ContentType: contentType,
		Metadata:    metadata,
		UpdatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.WriteFile(metaPath, sc, 0644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := os.Rename(tmp.Name(), blobPath); err != nil {
		return fmt.Errorf("failed to store file: %w", err)
	}
	return nil
}

// OpenObject opens an object for reading without checking any credential
func (b *Backend) OpenObject(ctx context.Context, key string) (*simpleshare.ObjectStream, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	blobPath, metaPath := b.paths(key)

	file, err := os.Open(blobPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", simpleshare.ErrNotFound, key)
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}
	sc, err := readSidecar(metaPath)
	if err != nil {
		file.Close()
		return nil, err
	}

	return &simpleshare.ObjectStream{
		Body:          file,
		ContentType:   sc.ContentType,
		ContentLength: info.Size(),
	}, nil
}

// paths maps a key to fixed-length file names, so any key is safe on disk
func (b *Backend) paths(key string) (blob, meta string) {
	sum := sha256.Sum256([]byte(key))
	name := hex.EncodeToString(sum[:])
	base := filepath.Join(b.baseDir, "objects", name[:2], name)
	return base + ".blob", base + ".meta.json"
}

func readSidecar(path string) (sidecar, error) {
	var sc sidecar
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return sc, nil
	} else if err != nil {
		return sc, fmt.Errorf("failed to read metadata: %w", err)
	}
	if err := json.Unmarshal(data, &sc); err != nil {
		return sc, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return sc, nil
}
