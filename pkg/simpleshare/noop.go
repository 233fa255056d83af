package simpleshare

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// NoopEventSink is a no-operation implementation of EventSink
// Useful for production when you don't need event handling or for testing
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// UploadIssued does nothing and returns nil
func (n *NoopEventSink) UploadIssued(ctx context.Context, result *UploadResult) error {
	return nil
}

// DownloadServed does nothing and returns nil
func (n *NoopEventSink) DownloadServed(ctx context.Context, object *ResolvedObject, mode string) error {
	return nil
}

// ShareRendered does nothing and returns nil
func (n *NoopEventSink) ShareRendered(ctx context.Context, object *ResolvedObject) error {
	return nil
}

// LoggingEventSink is an event sink that logs events but takes no other action
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink. A nil logger uses slog.Default().
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

// UploadIssued logs the issued write credential, without its URL
func (l *LoggingEventSink) UploadIssued(ctx context.Context, result *UploadResult) error {
	l.logger.InfoContext(ctx, "event: upload issued",
		"key", result.Key,
		"expires_at", result.Credential.ExpiresAt,
		"has_message", result.Message != "")
	return nil
}

// DownloadServed logs the download grant
func (l *LoggingEventSink) DownloadServed(ctx context.Context, object *ResolvedObject, mode string) error {
	l.logger.InfoContext(ctx, "event: download served",
		"key", object.Key,
		"filename", object.FileName,
		"content_type", object.ContentType,
		"mode", mode)
	return nil
}

// ShareRendered logs the share page render
func (l *LoggingEventSink) ShareRendered(ctx context.Context, object *ResolvedObject) error {
	l.logger.InfoContext(ctx, "event: share rendered", "key", object.Key, "filename", object.FileName)
	return nil
}

// UnavailableStore is a BlobStore that fails every call with the same error.
// It stands in for a backend whose configuration could not be loaded.
type UnavailableStore struct {
	err error
}

// NewUnavailableStore returns a store reporting cause on every call
func NewUnavailableStore(cause error) BlobStore {
	return &UnavailableStore{err: fmt.Errorf("%w: %v", ErrBackendUnavailable, cause)}
}

func (u *UnavailableStore) WriteCredential(ctx context.Context, params WriteParams) (*Credential, error) {
	return nil, u.err
}

func (u *UnavailableStore) ReadCredential(ctx context.Context, key string, ttl time.Duration) (*Credential, error) {
	return nil, u.err
}

func (u *UnavailableStore) GetObjectMeta(ctx context.Context, key string) (*ObjectMeta, error) {
	return nil, u.err
}

func (u *UnavailableStore) StreamObject(ctx context.Context, cred Credential) (*ObjectStream, error) {
	return nil, u.err
}
