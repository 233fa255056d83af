package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-share/pkg/simpleshare"
)

// Scheme prefixes the credential URLs handed out by the memory backend.
const Scheme = "memory"

var (
	// ErrCredentialRejected is returned when a credential is unknown, expired or
	// used for something it was not issued for
	ErrCredentialRejected = errors.New("credential rejected")
)

type object struct {
	data        []byte
	contentType string
	metadata    map[string]string
	updatedAt   time.Time
}

type grant struct {
	cred        simpleshare.Credential
	contentType string
	metadata    map[string]string
}

// Backend is an in-memory implementation of the simpleshare.BlobStore interface.
//
// Credentials are opaque memory:// URLs backed by a token table, so expiry
// and scope are enforced the way a real signed URL would be.
type Backend struct {
	mu      sync.RWMutex
	objects map[string]*object
	grants  map[string]*grant
	now     func() time.Time
}

// Option configures the memory backend
type Option func(*Backend)

// WithClock overrides the time source used to issue and check credentials
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		b.now = now
	}
}

// New creates a new in-memory storage backend
func New(opts ...Option) *Backend {
	b := &Backend{
		objects: make(map[string]*object),
		grants:  make(map[string]*grant),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WriteCredential issues a token that allows exactly one key to be written
func (b *Backend) WriteCredential(ctx context.Context, params simpleshare.WriteParams) (*simpleshare.Credential, error) {
	if params.Key == "" {
		return nil, errors.New("object key is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cred := b.issue(params.Key, simpleshare.ActionWrite, params.TTL)
	if params.ContentType != "" {
		cred.Headers = map[string]string{"Content-Type": params.ContentType}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.addGrant(cred.URL, &grant{
		cred:        *cred,
		contentType: params.ContentType,
		metadata:    copyMap(params.Metadata),
	})
	return cred, nil
}

// ReadCredential issues a token that allows exactly one key to be read
func (b *Backend) ReadCredential(ctx context.Context, key string, ttl time.Duration) (*simpleshare.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cred := b.issue(key, simpleshare.ActionRead, ttl)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.addGrant(cred.URL, &grant{cred: *cred})
	return cred, nil
}

// GetObjectMeta retrieves metadata for an object in memory
func (b *Backend) GetObjectMeta(ctx context.Context, key string) (*simpleshare.ObjectMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, fmt.Errorf("%w: %s", simpleshare.ErrNotFound, key)
	}

	return &simpleshare.ObjectMeta{
		Key:         key,
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
		UpdatedAt:   obj.updatedAt,
		Metadata:    copyMap(obj.metadata),
	}, nil
}

// StreamObject reads the object a read credential was issued for
func (b *Backend) StreamObject(ctx context.Context, cred simpleshare.Credential) (*simpleshare.ObjectStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	g, err := b.check(cred.URL, simpleshare.ActionRead)
	if err != nil {
		return nil, &simpleshare.StatusError{StatusCode: http.StatusForbidden, Err: err}
	}
	obj, exists := b.objects[g.cred.Key]
	if !exists {
		return nil, &simpleshare.StatusError{StatusCode: http.StatusNotFound, Err: simpleshare.ErrNotFound}
	}

	return &simpleshare.ObjectStream{
		Body:          io.NopCloser(bytes.NewReader(obj.data)),
		ContentType:   obj.contentType,
		ContentLength: int64(len(obj.data)),
	}, nil
}

// Put plays the part of the browser: it writes body through a write
// credential. contentType must match the one the credential was issued for.
func (b *Backend) Put(ctx context.Context, credURL, contentType string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	g, err := b.check(credURL, simpleshare.ActionWrite)
	if err != nil {
		return err
	}
	if g.contentType != "" && g.contentType != contentType {
		return fmt.Errorf("%w: content type %q does not match %q", ErrCredentialRejected, contentType, g.contentType)
	}

	b.objects[g.cred.Key] = &object{
		data:        data,
		contentType: contentType,
		metadata:    copyMap(g.metadata),
		updatedAt:   b.now().UTC(),
	}
	return nil
}

// Store writes an object directly, bypassing credentials. An empty
// contentType leaves the object without one.
func (b *Backend) Store(key, contentType string, data []byte, metadata map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = &object{
		data:        append([]byte(nil), data...),
		contentType: contentType,
		metadata:    copyMap(metadata),
		updatedAt:   b.now().UTC(),
	}
}

func (b *Backend) issue(key string, action simpleshare.Action, ttl time.Duration) *simpleshare.Credential {
	u := url.URL{
		Scheme:   Scheme,
		Host:     "blobs",
		Path:     "/" + url.PathEscape(key),
		RawQuery: url.Values{"token": []string{uuid.NewString()}}.Encode(),
	}
	return simpleshare.NewCredential(key, action, u.String(), b.now(), ttl)
}

// addGrant records g and forgets every grant that has expired.
// It must be called with b.mu held.
func (b *Backend) addGrant(credURL string, g *grant) {
	now := b.now()
	for token, old := range b.grants {
		if old.cred.Expired(now) {
			delete(b.grants, token)
		}
	}
	b.grants[tokenOf(credURL)] = g
}

// GrantCount reports how many issued credentials are still tracked
func (b *Backend) GrantCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.grants)
}

// check must be called with b.mu held
func (b *Backend) check(credURL string, action simpleshare.Action) (*grant, error) {
	g, ok := b.grants[tokenOf(credURL)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown token", ErrCredentialRejected)
	}
	if g.cred.Action != action {
		return nil, fmt.Errorf("%w: issued for %s", ErrCredentialRejected, g.cred.Action)
	}
	if g.cred.Expired(b.now()) {
		return nil, fmt.Errorf("%w: expired at %s", ErrCredentialRejected, g.cred.ExpiresAt)
	}
	return g, nil
}

func tokenOf(credURL string) string {
	u, err := url.Parse(credURL)
	if err != nil || u.Scheme != Scheme {
		return ""
	}
	return u.Query().Get("token")
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
