package simpleshare

import (
	"io"
	"net/http"
	"time"
)

// Action is what a Credential allows its holder to do with one object.
type Action string

const (
	ActionWrite Action = "write"
	ActionRead  Action = "read"
)

// DefaultContentType is used when the backend has no content type for an object.
const DefaultContentType = "application/octet-stream"

// MetadataMessageKey is the object metadata key holding the uploader's message.
const MetadataMessageKey = "message"

// LegacyMessageKey is read when MetadataMessageKey is absent; older uploads used it.
const LegacyMessageKey = "user-message"

// Credential is a signed URL scoped to exactly one storage key and one action.
// It stops working at ExpiresAt and cannot be extended or revoked.
type Credential struct {
	Key       string            `json:"key"`
	Action    Action            `json:"action"`
	Method    string            `json:"method"`
	URL       string            `json:"url"`
	ExpiresAt time.Time         `json:"expires_at"`
	Headers   map[string]string `json:"headers,omitempty"` // headers the holder must send; they are signed
}

// Expired reports whether the credential is no longer valid at now.
func (c Credential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// ObjectMeta contains metadata about an object in storage
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string // empty when the backend recorded none
	UpdatedAt   time.Time
	Metadata    map[string]string
}

// Message returns the uploader's message stored with the object, if any.
func (m *ObjectMeta) Message() string {
	if m == nil || m.Metadata == nil {
		return ""
	}
	if v, ok := m.Metadata[MetadataMessageKey]; ok {
		return DecodeMetadataValue(v)
	}
	return DecodeMetadataValue(m.Metadata[LegacyMessageKey])
}

// WriteParams scopes a write credential.
type WriteParams struct {
	Key         string
	ContentType string
	TTL         time.Duration
	Metadata    map[string]string // persisted with the object; values must be ASCII
}

// ObjectStream is an open object body obtained through a read credential.
// The caller must close Body.
type ObjectStream struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64 // -1 when unknown
}

// UploadRequest is the untrusted input of the upload broker.
type UploadRequest struct {
	FileName    string
	ContentType string
	Message     string
}

// UploadResult is returned by the upload broker.
type UploadResult struct {
	Key         string
	Credential  Credential
	ShareURL    string
	DownloadURL string
	Message     string
}

// ResolvedObject is what the download and share brokers know about a key
// after fetching metadata and decoding the display name.
type ResolvedObject struct {
	Key          string
	FileName     string // name offered to the recipient, extension synthesized if needed
	ContentType  string
	HasExtension bool // whether the uploaded display name carried an extension
	Message      string
	Size         int64
}

// DownloadTicket is the credential-mode download result.
type DownloadTicket struct {
	Object     ResolvedObject
	Credential Credential
}

// Download is the proxy-mode download result. The caller must close Stream.Body.
type Download struct {
	Object ResolvedObject
	Stream *ObjectStream
}

// SharePage holds everything needed to render the share document.
type SharePage struct {
	Object      ResolvedObject
	DownloadURL string
}

// methodFor maps an action to the HTTP method its credential is signed for.
func methodFor(a Action) string {
	if a == ActionWrite {
		return http.MethodPut
	}
	return http.MethodGet
}

// NewCredential builds a credential for key expiring ttl after now.
func NewCredential(key string, action Action, url string, now time.Time, ttl time.Duration) *Credential {
	return &Credential{
		Key:       key,
		Action:    action,
		Method:    methodFor(action),
		URL:       url,
		ExpiresAt: now.Add(ttl).UTC(),
	}
}
