package config

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/tendant/simple-share/pkg/simpleshare"
	"github.com/tendant/simple-share/pkg/simpleshare/api"
	"github.com/tendant/simple-share/pkg/simpleshare/storage/fs"
	"github.com/tendant/simple-share/pkg/simpleshare/storage/gcs"
	"github.com/tendant/simple-share/pkg/simpleshare/storage/memory"
	"github.com/tendant/simple-share/pkg/simpleshare/storage/minio"
	"github.com/tendant/simple-share/pkg/simpleshare/storage/s3"
)

// Storage backend types
const (
	StorageMemory = "memory"
	StorageFS     = "fs"
	StorageS3     = "s3"
	StorageMinio  = "minio"
	StorageGCS    = "gcs"
)

// StorageConfig is the parsed form of STORAGE_URL
type StorageConfig struct {
	Type         string
	Bucket       string
	BaseDir      string // fs only
	Endpoint     string // s3 (optional) and minio
	Region       string // s3 only
	UsePathStyle bool   // s3 only
	UseSSL       bool   // minio only
	CreateBucket bool
}

// ParseStorageURL parses a storage connection string:
//
//	memory://
//	file:///var/lib/simple-share
//	s3://bucket?region=eu-north-1&endpoint=http://localhost:9000&path_style=true
//	minio://localhost:9000/bucket?ssl=false
//	gs://bucket
func ParseStorageURL(raw string) (StorageConfig, error) {
	if raw == "" || raw == "memory" || raw == "memory://" {
		return StorageConfig{Type: StorageMemory}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return StorageConfig{}, fmt.Errorf("invalid STORAGE_URL: %w", err)
	}
	q := u.Query()

	createBucket, err := parseBoolParam(q, "create_bucket")
	if err != nil {
		return StorageConfig{}, err
	}

	switch u.Scheme {
	case "file":
		// file://relative/dir puts the first segment in Host
		dir := u.Host + u.Path
		if dir == "" {
			return StorageConfig{}, fmt.Errorf("filesystem path cannot be empty in STORAGE_URL")
		}
		return StorageConfig{Type: StorageFS, BaseDir: dir}, nil

	case "s3":
		if u.Host == "" {
			return StorageConfig{}, fmt.Errorf("S3 bucket name cannot be empty in STORAGE_URL")
		}
		pathStyle, err := parseBoolParam(q, "path_style")
		if err != nil {
			return StorageConfig{}, err
		}
		return StorageConfig{
			Type:         StorageS3,
			Bucket:       u.Host,
			Region:       q.Get("region"),
			Endpoint:     q.Get("endpoint"),
			UsePathStyle: pathStyle,
			CreateBucket: createBucket,
		}, nil

	case "minio":
		bucket := strings.Trim(u.Path, "/")
		if u.Host == "" || bucket == "" || strings.Contains(bucket, "/") {
			return StorageConfig{}, fmt.Errorf("STORAGE_URL must look like minio://host:port/bucket")
		}
		useSSL, err := parseBoolParam(q, "ssl")
		if err != nil {
			return StorageConfig{}, err
		}
		return StorageConfig{
			Type:         StorageMinio,
			Bucket:       bucket,
			Endpoint:     u.Host,
			UseSSL:       useSSL,
			CreateBucket: createBucket,
		}, nil

	case "gs", "gcs":
		if u.Host == "" {
			return StorageConfig{}, fmt.Errorf("GCS bucket name cannot be empty in STORAGE_URL")
		}
		return StorageConfig{Type: StorageGCS, Bucket: u.Host}, nil
	}

	return StorageConfig{}, fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', 's3://...', 'minio://...' or 'gs://...')", raw)
}

func parseBoolParam(q url.Values, name string) (bool, error) {
	raw := q.Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid boolean for STORAGE_URL parameter %s: %w", name, err)
	}
	return v, nil
}

// BuildStore creates the BlobStore described by the configuration. The
// returned routes are non-nil when the backend serves its own signed URLs.
func (c *ServerConfig) BuildStore(ctx context.Context) (simpleshare.BlobStore, api.BlobRoutes, error) {
	switch c.Storage.Type {
	case StorageMemory, "":
		return memory.New(), nil, nil

	case StorageFS:
		secret := c.Credentials.FSSecretKey
		if secret == "" {
			var err error
			if secret, err = randomSecret(); err != nil {
				return nil, nil, err
			}
			slog.Warn("FS_SIGNATURE_SECRET_KEY is not set, using a random key; issued links stop working on restart")
		}
		backend, err := fs.New(fs.Config{
			BaseDir:   c.Storage.BaseDir,
			BaseURL:   c.blobBaseURL(),
			SecretKey: secret,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build fs backend: %w", err)
		}
		return backend, backend.Handlers(), nil

	case StorageS3:
		region := c.Storage.Region
		if region == "" {
			region = c.Credentials.AWSRegion
		}
		backend, err := s3.New(s3.Config{
			Region:                 region,
			Bucket:                 c.Storage.Bucket,
			AccessKeyID:            c.Credentials.AWSAccessKeyID,
			SecretAccessKey:        c.Credentials.AWSSecretAccessKey,
			Endpoint:               c.Storage.Endpoint,
			UsePathStyle:           c.Storage.UsePathStyle,
			CreateBucketIfNotExist: c.Storage.CreateBucket,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build s3 backend: %w", err)
		}
		return backend, nil, nil

	case StorageMinio:
		backend, err := minio.New(minio.Config{
			Endpoint:     c.Storage.Endpoint,
			AccessKey:    c.Credentials.MinioAccessKey,
			SecretKey:    c.Credentials.MinioSecretKey,
			Bucket:       c.Storage.Bucket,
			UseSSL:       c.Storage.UseSSL,
			CreateBucket: c.Storage.CreateBucket,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build minio backend: %w", err)
		}
		return backend, nil, nil

	case StorageGCS:
		if c.Credentials.GCSKey == "" {
			return nil, nil, fmt.Errorf("server configuration error: GCS_KEY missing")
		}
		backend, err := gcs.New(ctx, gcs.Config{
			Bucket:         c.Storage.Bucket,
			CredentialJSON: []byte(c.Credentials.GCSKey),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build gcs backend: %w", err)
		}
		return backend, nil, nil
	}

	return nil, nil, fmt.Errorf("unsupported storage backend type: %s", c.Storage.Type)
}

// BuildService creates the Service and the blob routes, if any. With
// StrictStartup off, a backend that cannot be built is replaced by one that
// fails every call, and no error is returned.
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger) (simpleshare.Service, api.BlobRoutes, error) {
	store, routes, err := c.BuildStore(ctx)
	if err != nil {
		if c.StrictStartup {
			return nil, nil, err
		}
		slog.Error("Storage backend unavailable, serving errors until restarted", "storage", c.Storage.Type, "err", err)
		store, routes = simpleshare.NewUnavailableStore(err), nil
	}

	svc, err := simpleshare.New(
		simpleshare.WithBlobStore(store),
		simpleshare.WithLinks(c.Links()),
		simpleshare.WithUploadTTL(c.UploadTTL),
		simpleshare.WithDownloadTTL(c.DownloadTTL),
		simpleshare.WithBackendTimeout(c.BackendTimeout),
		simpleshare.WithMaxMessageBytes(c.MaxMessageBytes),
		simpleshare.WithEventSink(simpleshare.NewLoggingEventSink(logger)),
	)
	if err != nil {
		return nil, nil, err
	}
	return svc, routes, nil
}

// RouterOptions returns the HTTP boundary options for this configuration
func (c *ServerConfig) RouterOptions(logger *slog.Logger, routes api.BlobRoutes) api.Options {
	mode, _ := api.ParseDownloadMode(c.DownloadMode)
	return api.Options{
		Mode:           mode,
		AllowedOrigins: c.AllowedOrigins,
		CORSMaxAge:     c.CORSMaxAge,
		Logger:         logger,
		BlobRoutes:     routes,
	}
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate signature secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
