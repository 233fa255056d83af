// Package httpfetch opens object bodies through signed read URLs. Hosted
// backends share it, so proxied downloads use exactly the credential a
// recipient would have been given.
package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tendant/simple-share/pkg/simpleshare"
)

// maxErrorBody bounds how much of a failed response is kept for the error
const maxErrorBody = 512

// Fetcher performs GET requests against read credentials
type Fetcher struct {
	client *http.Client
}

// New creates a Fetcher. A nil client uses a dedicated client without an
// overall timeout, since the broker bounds time-to-first-byte itself.
func New(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{client: client}
}

// StreamObject issues the credential's request and returns the body on 2xx.
// Any other status is returned as *simpleshare.StatusError; 404 matches
// simpleshare.ErrNotFound and the rest simpleshare.ErrBackendUnavailable.
func (f *Fetcher) StreamObject(ctx context.Context, cred simpleshare.Credential) (*simpleshare.ObjectStream, error) {
	if cred.Action != simpleshare.ActionRead {
		return nil, fmt.Errorf("credential for %s is not a read credential", cred.Key)
	}

	method := cred.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, cred.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range cred.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, statusError(resp.StatusCode, detail)
	}

	return &simpleshare.ObjectStream{
		Body:          resp.Body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}

func statusError(code int, detail []byte) error {
	cause := simpleshare.ErrBackendUnavailable
	if code == http.StatusNotFound {
		cause = simpleshare.ErrNotFound
	}
	if len(detail) > 0 {
		return &simpleshare.StatusError{StatusCode: code, Err: fmt.Errorf("%w: %s", cause, detail)}
	}
	return &simpleshare.StatusError{StatusCode: code, Err: cause}
}
