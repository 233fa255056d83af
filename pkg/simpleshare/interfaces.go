package simpleshare

import (
	"context"
	"time"
)

// BlobStore defines the interface for object storage backends.
//
// Implementations return ErrNotFound (possibly wrapped) for missing objects.
// Retries, if any, are the implementation's business.
type BlobStore interface {
	// WriteCredential signs a single-object upload URL bound to the key,
	// content type and metadata in params
	WriteCredential(ctx context.Context, params WriteParams) (*Credential, error)

	// ReadCredential signs a single-object download URL valid for ttl
	ReadCredential(ctx context.Context, key string, ttl time.Duration) (*Credential, error)

	// GetObjectMeta retrieves metadata for an object
	GetObjectMeta(ctx context.Context, key string) (*ObjectMeta, error)

	// StreamObject opens the object body through a read credential.
	// A non-success answer from the backend is returned as *StatusError.
	StreamObject(ctx context.Context, cred Credential) (*ObjectStream, error)
}

// EventSink defines the interface for broker event handling
type EventSink interface {
	// UploadIssued is fired after a write credential was handed out
	UploadIssued(ctx context.Context, result *UploadResult) error

	// DownloadServed is fired when a download was granted; mode is "proxy" or "credential"
	DownloadServed(ctx context.Context, object *ResolvedObject, mode string) error

	// ShareRendered is fired when a share page was produced
	ShareRendered(ctx context.Context, object *ResolvedObject) error
}
