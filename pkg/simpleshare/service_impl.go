package simpleshare

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/tendant/simple-share/pkg/simpleshare/objectkey"
)

const (
	DefaultUploadTTL       = 48 * time.Hour
	DefaultDownloadTTL     = 10 * time.Minute
	DefaultBackendTimeout  = 30 * time.Second
	DefaultMaxMessageBytes = 1024

	// MaxKeyBytes is the longest storage key accepted from callers
	MaxKeyBytes = 1024
)

// service implements the Service interface
type service struct {
	blobStore       BlobStore
	keyGenerator    objectkey.Generator
	eventSink       EventSink
	links           Links
	uploadTTL       time.Duration
	downloadTTL     time.Duration
	backendTimeout  time.Duration
	maxMessageBytes int
	now             func() time.Time
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithBlobStore sets the storage backend
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithKeyGenerator overrides the storage key generator
func WithKeyGenerator(gen objectkey.Generator) Option {
	return func(s *service) {
		s.keyGenerator = gen
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithLinks sets how share and download references are built
func WithLinks(links Links) Option {
	return func(s *service) {
		s.links = links
	}
}

// WithUploadTTL sets the lifetime of write credentials
func WithUploadTTL(ttl time.Duration) Option {
	return func(s *service) {
		s.uploadTTL = ttl
	}
}

// WithDownloadTTL sets the lifetime of read credentials
func WithDownloadTTL(ttl time.Duration) Option {
	return func(s *service) {
		s.downloadTTL = ttl
	}
}

// WithBackendTimeout bounds every backend call; for streams it bounds the
// time until the backend answers, not the transfer
func WithBackendTimeout(timeout time.Duration) Option {
	return func(s *service) {
		s.backendTimeout = timeout
	}
}

// WithMaxMessageBytes limits the uploader's message
func WithMaxMessageBytes(n int) Option {
	return func(s *service) {
		s.maxMessageBytes = n
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		keyGenerator:    objectkey.NewRecommendedGenerator(),
		eventSink:       NewNoopEventSink(),
		uploadTTL:       DefaultUploadTTL,
		downloadTTL:     DefaultDownloadTTL,
		backendTimeout:  DefaultBackendTimeout,
		maxMessageBytes: DefaultMaxMessageBytes,
		now:             time.Now,
	}

	for _, option := range options {
		option(s)
	}

	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.uploadTTL <= 0 || s.downloadTTL <= 0 {
		return nil, fmt.Errorf("credential TTLs must be positive")
	}
	if s.backendTimeout <= 0 {
		return nil, fmt.Errorf("backend timeout must be positive")
	}

	return s, nil
}

// Upload broker

func (s *service) IssueUpload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if err := s.validateUpload(req); err != nil {
		return nil, &BrokerError{Op: "issue upload", Err: err}
	}

	key, err := s.keyGenerator.GenerateKey(req.FileName)
	if err != nil {
		if errors.Is(err, objectkey.ErrInvalidDisplayName) {
			err = invalid("%v", err)
		}
		return nil, &BrokerError{Op: "issue upload", Err: err}
	}

	params := WriteParams{
		Key:         key,
		ContentType: req.ContentType,
		TTL:         s.uploadTTL,
	}
	if req.Message != "" {
		params.Metadata = map[string]string{MetadataMessageKey: EncodeMetadataValue(req.Message)}
	}

	issuedAt := s.now()
	tctx, cancel := context.WithTimeout(ctx, s.backendTimeout)
	defer cancel()

	cred, err := s.blobStore.WriteCredential(tctx, params)
	if err != nil {
		return nil, &BrokerError{Op: "issue upload", Key: key, Err: unavailable(err)}
	}
	if !cred.ExpiresAt.After(issuedAt) {
		return nil, &BrokerError{Op: "issue upload", Key: key,
			Err: fmt.Errorf("%w: credential expires at issuance (%s)", ErrBackendUnavailable, cred.ExpiresAt)}
	}

	result := &UploadResult{
		Key:         key,
		Credential:  *cred,
		ShareURL:    s.links.ShareURL(key),
		DownloadURL: s.links.DownloadURL(key),
		Message:     req.Message,
	}

	slog.Info("Upload credential issued", "key", key, "content_type", req.ContentType, "expires_at", cred.ExpiresAt)
	s.emit("upload_issued", func() error { return s.eventSink.UploadIssued(ctx, result) })
	return result, nil
}

func (s *service) validateUpload(req UploadRequest) error {
	if req.FileName == "" {
		return invalid("filename is required")
	}
	if req.ContentType == "" {
		return invalid("contentType is required")
	}
	if _, _, err := mime.ParseMediaType(req.ContentType); err != nil {
		return invalid("contentType %q is not a media type", req.ContentType)
	}
	if err := objectkey.ValidateDisplayName(req.FileName); err != nil {
		return invalid("%v", err)
	}
	if req.Message != "" {
		if !utf8.ValidString(req.Message) {
			return invalid("message must be text")
		}
		if len(req.Message) > s.maxMessageBytes {
			return invalid("message is longer than %d bytes", s.maxMessageBytes)
		}
	}
	return nil
}

// Download and share brokers

func (s *service) Resolve(ctx context.Context, key string) (*ResolvedObject, error) {
	if err := validateKey(key); err != nil {
		return nil, &BrokerError{Op: "resolve", Key: key, Err: err}
	}

	tctx, cancel := context.WithTimeout(ctx, s.backendTimeout)
	defer cancel()

	meta, err := s.blobStore.GetObjectMeta(tctx, key)
	if err != nil {
		return nil, &BrokerError{Op: "resolve", Key: key, Err: unavailable(err)}
	}

	return resolveObject(key, meta), nil
}

func resolveObject(key string, meta *ObjectMeta) *ResolvedObject {
	name := key
	var hasExt bool
	if decoded, err := objectkey.Decode(key); err == nil {
		name = decoded.Name
		hasExt = decoded.HasExtension()
	} else {
		slog.Warn("Storage key does not decode, using it as file name", "key", key, "err", err)
		_, ext := objectkey.SplitExtension(key)
		hasExt = ext != ""
	}

	contentType := meta.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}
	if !hasExt {
		name += ExtensionFor(contentType)
	}

	return &ResolvedObject{
		Key:          key,
		FileName:     name,
		ContentType:  contentType,
		HasExtension: hasExt,
		Message:      meta.Message(),
		Size:         meta.Size,
	}
}

func (s *service) IssueDownload(ctx context.Context, key string) (*DownloadTicket, error) {
	object, err := s.Resolve(ctx, key)
	if err != nil {
		return nil, err
	}

	cred, err := s.readCredential(ctx, key)
	if err != nil {
		return nil, err
	}

	ticket := &DownloadTicket{Object: *object, Credential: *cred}
	s.emit("download_served", func() error { return s.eventSink.DownloadServed(ctx, object, "credential") })
	return ticket, nil
}

func (s *service) OpenDownload(ctx context.Context, key string) (*Download, error) {
	object, err := s.Resolve(ctx, key)
	if err != nil {
		return nil, err
	}

	cred, err := s.readCredential(ctx, key)
	if err != nil {
		return nil, err
	}

	// The timeout covers the wait for the backend's answer; once the body is
	// flowing, only the caller's context bounds the transfer.
	sctx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(s.backendTimeout, cancel)
	stream, err := s.blobStore.StreamObject(sctx, *cred)
	if !timer.Stop() {
		if err == nil {
			stream.Body.Close()
		}
		err = fmt.Errorf("no answer within %s: %w", s.backendTimeout, context.DeadlineExceeded)
	}
	if err != nil {
		cancel()
		return nil, &BrokerError{Op: "open download", Key: key, Err: unavailable(err)}
	}
	stream.Body = &cancelOnClose{ReadCloser: stream.Body, cancel: cancel}

	if stream.ContentType == "" {
		stream.ContentType = object.ContentType
	}

	s.emit("download_served", func() error { return s.eventSink.DownloadServed(ctx, object, "proxy") })
	return &Download{Object: *object, Stream: stream}, nil
}

func (s *service) Share(ctx context.Context, key string) (*SharePage, error) {
	object, err := s.Resolve(ctx, key)
	if err != nil {
		return nil, err
	}

	page := &SharePage{Object: *object, DownloadURL: s.links.DownloadURL(key)}
	s.emit("share_rendered", func() error { return s.eventSink.ShareRendered(ctx, object) })
	return page, nil
}

func (s *service) readCredential(ctx context.Context, key string) (*Credential, error) {
	tctx, cancel := context.WithTimeout(ctx, s.backendTimeout)
	defer cancel()

	issuedAt := s.now()
	cred, err := s.blobStore.ReadCredential(tctx, key, s.downloadTTL)
	if err != nil {
		return nil, &BrokerError{Op: "read credential", Key: key, Err: unavailable(err)}
	}
	if !cred.ExpiresAt.After(issuedAt) {
		return nil, &BrokerError{Op: "read credential", Key: key,
			Err: fmt.Errorf("%w: credential expires at issuance (%s)", ErrBackendUnavailable, cred.ExpiresAt)}
	}
	return cred, nil
}

func (s *service) emit(event string, fn func() error) {
	if err := fn(); err != nil {
		slog.Warn("Event sink failed", "event", event, "err", err)
	}
}

func validateKey(key string) error {
	if key == "" {
		return invalid("publicId is required")
	}
	if len(key) > MaxKeyBytes {
		return invalid("publicId is longer than %d bytes", MaxKeyBytes)
	}
	if !utf8.ValidString(key) {
		return invalid("publicId is not valid UTF-8")
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return invalid("publicId contains control characters")
		}
	}
	return nil
}

// cancelOnClose releases the stream's context when the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
	once   sync.Once
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.once.Do(c.cancel)
	return err
}
