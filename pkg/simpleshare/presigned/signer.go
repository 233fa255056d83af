package presigned

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	signatureParam = "signature"
	expiresParam   = "expires"
)

// Signer generates and validates HMAC-signed presigned URLs
type Signer struct {
	secretKey         []byte
	defaultExpiration time.Duration
	urlPattern        string // e.g., "/blobs/{key}"
	baseURL           string
	now               func() time.Time
}

// New creates a new Signer with the given options
func New(opts ...Option) *Signer {
	s := &Signer{
		defaultExpiration: 1 * time.Hour,
		urlPattern:        "/blobs/{key}",
		now:               time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Path returns the unescaped URL path for an object key
func (s *Signer) Path(key string) string {
	return strings.Replace(s.urlPattern, "{key}", key, 1)
}

// RoutePrefix returns the part of the URL pattern before the key
func (s *Signer) RoutePrefix() string {
	prefix, _, _ := strings.Cut(s.urlPattern, "{key}")
	return prefix
}

// SignURL generates a presigned URL for the given HTTP method and path.
// Every parameter in query is covered by the signature. It returns the
// escaped path with query, prefixed by the configured base URL, and the
// moment the URL stops working.
//
// Example:
//
//	url, exp, err := signer.SignURL("PUT", "/blobs/photo-1718000000000-a1b2c3d4e5f6.jpg", nil, time.Hour)
//	// Returns: /blobs/photo-1718000000000-a1b2c3d4e5f6.jpg?expires=1718003600&signature=abc123...
func (s *Signer) SignURL(method, path string, query url.Values, expiresIn time.Duration) (string, time.Time, error) {
	if len(s.secretKey) == 0 {
		return "", time.Time{}, ErrNoSecretKey
	}

	if expiresIn == 0 {
		expiresIn = s.defaultExpiration
	}

	// Whole seconds, rounded down so the URL never outlives the requested TTL
	expiresAt := s.now().Add(expiresIn).Truncate(time.Second)

	payload := s.createPayload(method, signedPath(path, query), expiresAt.Unix())
	signature := s.generateSignature(payload)

	full := url.Values{}
	for k, v := range query {
		full[k] = v
	}
	full.Set(signatureParam, signature)
	full.Set(expiresParam, strconv.FormatInt(expiresAt.Unix(), 10))

	u := url.URL{Path: path}
	return s.baseURL + u.EscapedPath() + "?" + full.Encode(), expiresAt.UTC(), nil
}

// ValidateRequest validates the signature and expiration of an HTTP request
// Returns an error if the signature is invalid or the URL has expired
func (s *Signer) ValidateRequest(r *http.Request) error {
	return s.validateURL(r.Method, r.URL)
}

// ValidateURL validates a presigned URL as if it were requested with method
// and returns its object key and signed query.
func (s *Signer) ValidateURL(method, rawURL string) (string, url.Values, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if err := s.validateURL(method, u); err != nil {
		return "", nil, err
	}
	key, err := s.ExtractObjectKey(u.Path)
	if err != nil {
		return "", nil, err
	}
	return key, signedQuery(u.Query()), nil
}

func (s *Signer) validateURL(method string, u *url.URL) error {
	if len(s.secretKey) == 0 {
		return ErrNoSecretKey
	}

	query := u.Query()
	signature := query.Get(signatureParam)
	expiresStr := query.Get(expiresParam)

	if signature == "" {
		return ErrMissingSignature
	}
	if expiresStr == "" {
		return ErrMissingExpiration
	}

	expiresAt, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExpiration, err)
	}

	return s.Validate(method, signedPath(u.Path, signedQuery(query)), signature, expiresAt)
}

// Validate validates the signature and expiration for a given method, path, signature, and expiration timestamp
func (s *Signer) Validate(method, path, signature string, expiresAt int64) error {
	if s.now().Unix() >= expiresAt {
		return ErrExpired
	}

	payload := s.createPayload(method, path, expiresAt)
	expectedSignature := s.generateSignature(payload)

	if !hmac.Equal([]byte(signature), []byte(expectedSignature)) {
		return ErrInvalidSignature
	}

	return nil
}

// ExtractObjectKey extracts the object key from a URL path based on the configured URL pattern
//
// Example:
//
//	signer := New(WithURLPattern("/blobs/{key}"))
//	key, err := signer.ExtractObjectKey("/blobs/notes-1718000000000-a1b2c3d4e5f6")
//	// Returns: "notes-1718000000000-a1b2c3d4e5f6"
func (s *Signer) ExtractObjectKey(path string) (string, error) {
	placeholder := "{key}"

	idx := strings.Index(s.urlPattern, placeholder)
	if idx == -1 {
		return "", fmt.Errorf("URL pattern does not contain {key} placeholder")
	}

	prefix := s.urlPattern[:idx]
	suffix := s.urlPattern[idx+len(placeholder):]

	if !strings.HasPrefix(path, prefix) {
		return "", fmt.Errorf("path does not match URL pattern prefix")
	}

	key := strings.TrimPrefix(path, prefix)
	if suffix != "" {
		key = strings.TrimSuffix(key, suffix)
	}
	if key == "" {
		return "", fmt.Errorf("object key is empty")
	}

	return key, nil
}

// IsEnabled returns true if a secret key is set
func (s *Signer) IsEnabled() bool {
	return len(s.secretKey) > 0
}

// createPayload creates the signature payload: METHOD|PATH|EXPIRES
func (s *Signer) createPayload(method, path string, expiresAt int64) string {
	return fmt.Sprintf("%s|%s|%d", method, path, expiresAt)
}

// generateSignature generates HMAC-SHA256 signature for the given payload
func (s *Signer) generateSignature(payload string) string {
	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// signedQuery drops the signature parameters from query
func signedQuery(query url.Values) url.Values {
	clean := url.Values{}
	for k, v := range query {
		if k != signatureParam && k != expiresParam {
			clean[k] = v
		}
	}
	return clean
}

func signedPath(path string, query url.Values) string {
	if len(query) == 0 {
		return path
	}
	return path + "?" + query.Encode()
}
