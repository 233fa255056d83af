package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-share/pkg/simpleshare"
	"github.com/tendant/simple-share/pkg/simpleshare/storage/memory"
)

const testOrigin = "https://app.example.com"

type testEnv struct {
	backend *memory.Backend
	router  http.Handler
}

func newTestEnv(t *testing.T, mode DownloadMode) *testEnv {
	t.Helper()
	backend := memory.New()
	return &testEnv{backend: backend, router: newRouterFor(t, backend, mode)}
}

func newRouterFor(t *testing.T, store simpleshare.BlobStore, mode DownloadMode) http.Handler {
	t.Helper()
	svc, err := simpleshare.New(
		simpleshare.WithBlobStore(store),
		simpleshare.WithLinks(simpleshare.Links{BaseURL: "https://share.example.com"}),
	)
	require.NoError(t, err)
	return NewRouter(svc, Options{Mode: mode, AllowedOrigins: []string{testOrigin}})
}

func (e *testEnv) do(t *testing.T, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// upload issues a write credential and performs the browser's PUT
func (e *testEnv) upload(t *testing.T, filename, contentType, message string, data []byte) UploadResponse {
	t.Helper()
	body, err := json.Marshal(UploadRequest{FileName: filename, ContentType: contentType, Message: message})
	require.NoError(t, err)

	rr := e.do(t, http.MethodPost, "/api/upload", string(body))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NoError(t, e.backend.Put(context.Background(), resp.UploadURL, contentType, bytes.NewReader(data)))
	return resp
}

func query(path, key string) string {
	return path + "?" + url.Values{simpleshare.PublicIDParam: []string{key}}.Encode()
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body map[string]ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body["error"]
}

func TestUploadThenDownload(t *testing.T) {
	env := newTestEnv(t, ModeProxy)
	data := []byte("\x89PNG fake image bytes")

	before := time.Now()
	resp := env.upload(t, "remuneration-new (1).png", "image/png", "", data)

	assert.True(t, strings.HasPrefix(resp.PublicID, "remuneration-new (1)-"), resp.PublicID)
	assert.True(t, strings.HasSuffix(resp.PublicID, ".png"), resp.PublicID)
	assert.Equal(t, http.MethodPut, resp.Method)
	assert.Equal(t, "image/png", resp.Headers["Content-Type"])
	assert.WithinDuration(t, before.Add(simpleshare.DefaultUploadTTL), resp.ExpiresAt, time.Minute)
	assert.Equal(t, "https://share.example.com"+query("/api/share", resp.PublicID), resp.ShareURL)
	assert.Equal(t, "https://share.example.com"+query("/api/download", resp.PublicID), resp.DownloadURL)

	rr := env.do(t, http.MethodGet, query("/api/download", resp.PublicID), "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, data, rr.Body.Bytes())
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="remuneration-new (1).png"`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "21", rr.Header().Get("Content-Length"))
}

func TestDownloadSynthesizesExtension(t *testing.T) {
	env := newTestEnv(t, ModeProxy)
	resp := env.upload(t, "notes", "text/plain", "", []byte("hello"))

	rr := env.do(t, http.MethodGet, query("/api/download", resp.PublicID), "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `attachment; filename="notes.txt"`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "hello", rr.Body.String())
}

func TestDownloadNonASCIIName(t *testing.T) {
	env := newTestEnv(t, ModeProxy)
	resp := env.upload(t, "lönespec maj.pdf", "application/pdf", "", []byte("%PDF"))

	rr := env.do(t, http.MethodGet, query("/api/download", resp.PublicID), "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `attachment; filename="l_nespec maj.pdf"; filename*=UTF-8''l%C3%B6nespec%20maj.pdf`,
		rr.Header().Get("Content-Disposition"))
}

func TestDownloadUnknownKey(t *testing.T) {
	env := newTestEnv(t, ModeProxy)

	rr := env.do(t, http.MethodGet, query("/api/download", "missing-1718000000000-a1b2c3d4e5f6.pdf"), "")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Empty(t, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "not_found", decodeError(t, rr).Code)
}

func TestDownloadMissingPublicID(t *testing.T) {
	env := newTestEnv(t, ModeProxy)

	for _, path := range []string{"/api/download", "/api/share"} {
		t.Run(path, func(t *testing.T) {
			rr := env.do(t, http.MethodGet, path, "")
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, "invalid_request", decodeError(t, rr).Code)
		})
	}
}

type rejectingStream struct {
	*memory.Backend
}

func (r rejectingStream) StreamObject(ctx context.Context, cred simpleshare.Credential) (*simpleshare.ObjectStream, error) {
	return nil, &simpleshare.StatusError{StatusCode: http.StatusForbidden, Err: errors.New("signature expired")}
}

func TestDownloadForwardsBackendStatus(t *testing.T) {
	backend := memory.New()
	backend.Store("report-1718000000000-a1b2c3d4e5f6.pdf", "application/pdf", []byte("%PDF"), nil)
	router := newRouterFor(t, rejectingStream{backend}, ModeProxy)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, query("/api/download", "report-1718000000000-a1b2c3d4e5f6.pdf"), nil))

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Empty(t, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "backend_rejected", decodeError(t, rr).Code)
	assert.NotContains(t, rr.Body.String(), "signature")
}

func TestDownloadCredentialMode(t *testing.T) {
	env := newTestEnv(t, ModeCredential)
	resp := env.upload(t, "photo", "image/jpeg", "", []byte("jpeg"))

	rr := env.do(t, http.MethodGet, query("/api/download", resp.PublicID), "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var ticket DownloadCredentialResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ticket))
	assert.Equal(t, "photo.jpg", ticket.FileName)
	assert.Equal(t, "image/jpeg", ticket.ContentType)
	assert.Equal(t, resp.PublicID, ticket.PublicID)
	assert.Equal(t, http.MethodGet, ticket.Method)
	assert.True(t, strings.HasPrefix(ticket.DownloadURL, memory.Scheme+"://"), ticket.DownloadURL)
	assert.Empty(t, rr.Header().Get("Content-Disposition"))

	stream, err := env.backend.StreamObject(context.Background(), simpleshare.Credential{URL: ticket.DownloadURL})
	require.NoError(t, err)
	defer stream.Body.Close()
}

func TestUploadValidation(t *testing.T) {
	env := newTestEnv(t, ModeProxy)

	tests := []struct {
		name string
		body string
	}{
		{"empty object", `{}`},
		{"missing content type", `{"filename":"a.txt"}`},
		{"missing filename", `{"contentType":"text/plain"}`},
		{"not json", `filename=a.txt`},
		{"bad content type", `{"filename":"a.txt","contentType":"not a type"}`},
		{"control characters", `{"filename":"a\u0007.txt","contentType":"text/plain"}`},
		{"message too long", `{"filename":"a.txt","contentType":"text/plain","message":"` + strings.Repeat("x", 2000) + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/upload", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			assert.Equal(t, "invalid_request", decodeError(t, rr).Code)
		})
	}
}

func TestUploadBodyTooLarge(t *testing.T) {
	env := newTestEnv(t, ModeProxy)
	body := `{"filename":"a.txt","contentType":"text/plain","message":"` + strings.Repeat("x", DefaultMaxRequestBytes) + `"}`

	rr := env.do(t, http.MethodPost, "/api/upload", body)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, "request_too_large", decodeError(t, rr).Code)
}

func TestUploadBackendUnavailable(t *testing.T) {
	store := simpleshare.NewUnavailableStore(errors.New("GCS_KEY is not valid JSON"))
	router := newRouterFor(t, store, ModeProxy)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader(`{"filename":"a.txt","contentType":"text/plain"}`))
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, "backend_unavailable", decodeError(t, rr).Code)
		assert.NotContains(t, rr.Body.String(), "GCS_KEY")
	}
}

func TestSharePage(t *testing.T) {
	env := newTestEnv(t, ModeProxy)
	resp := env.upload(t, "Kvitto <maj>.pdf", "application/pdf", `<script>alert("hi")</script> Tack & hälsningar`, []byte("%PDF"))

	rr := env.do(t, http.MethodGet, query("/api/share", resp.PublicID), "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	body := rr.Body.String()
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "&lt;script&gt;")
	assert.Contains(t, body, "Tack &amp; hälsningar")
	assert.Contains(t, body, "<title>Kvitto &lt;maj&gt;.pdf</title>")
	assert.Contains(t, body, `href="https://share.example.com/api/download?publicId=`)
}

func TestSharePageWithoutMessage(t *testing.T) {
	env := newTestEnv(t, ModeProxy)
	resp := env.upload(t, "plain.txt", "text/plain", "", []byte("x"))

	rr := env.do(t, http.MethodGet, query("/api/share", resp.PublicID), "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), `class="message"`)
}

func TestShareUnknownKey(t *testing.T) {
	env := newTestEnv(t, ModeProxy)

	rr := env.do(t, http.MethodGet, query("/api/share", "nope.txt"), "")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not_found", decodeError(t, rr).Code)
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, ModeProxy)

	tests := []struct {
		method string
		path   string
		allow  string
	}{
		{http.MethodGet, "/api/upload", "POST, OPTIONS"},
		{http.MethodDelete, "/api/upload", "POST, OPTIONS"},
		{http.MethodPost, "/api/download", "GET, OPTIONS"},
		{http.MethodPut, "/api/share", "GET, OPTIONS"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := env.do(t, tt.method, tt.path, "")
			assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
			assert.Equal(t, tt.allow, rr.Header().Get("Allow"))
			assert.Equal(t, "method_not_allowed", decodeError(t, rr).Code)
		})
	}
}

func TestPreflight(t *testing.T) {
	env := newTestEnv(t, ModeProxy)

	preflight := func(path, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "Content-Type")
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, req)
		return rr
	}

	t.Run("allowed origin", func(t *testing.T) {
		rr := preflight("/api/upload", testOrigin)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Body.String())
		assert.Equal(t, testOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
		assert.Equal(t, "86400", rr.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("unknown origin", func(t *testing.T) {
		rr := preflight("/api/upload", "https://evil.example.net")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Body.String())
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET, POST, PUT, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "Content-Type, Authorization, X-Request-ID", rr.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "86400", rr.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("plain options", func(t *testing.T) {
		for _, path := range []string{"/api/upload", "/api/download", "/api/share"} {
			rr := env.do(t, http.MethodOptions, path, "")
			assert.Equal(t, http.StatusOK, rr.Code, path)
			assert.Empty(t, rr.Body.String(), path)
			assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"), path)
			assert.Equal(t, "GET, POST, PUT, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"), path)
		}
	})
}

func TestActualRequestCORSHeaders(t *testing.T) {
	env := newTestEnv(t, ModeProxy)

	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader(`{"filename":"a.txt","contentType":"text/plain"}`))
	req.Header.Set("Origin", testOrigin)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, testOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, ModeProxy)

	for _, path := range []string{"/healthz", "/healthz/ready"} {
		rr := env.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", &simpleshare.BrokerError{Op: "issue upload", Err: simpleshare.ErrInvalidRequest}, http.StatusBadRequest},
		{"not found", &simpleshare.BrokerError{Op: "resolve", Err: simpleshare.ErrNotFound}, http.StatusNotFound},
		{"method", simpleshare.ErrMethodNotAllowed, http.StatusMethodNotAllowed},
		{"unavailable", simpleshare.ErrBackendUnavailable, http.StatusInternalServerError},
		{"carried status", &simpleshare.StatusError{StatusCode: http.StatusBadGateway, Err: simpleshare.ErrBackendUnavailable}, http.StatusBadGateway},
		{"carried success is ignored", &simpleshare.StatusError{StatusCode: http.StatusNoContent, Err: errors.New("odd")}, http.StatusInternalServerError},
		{"deadline", context.DeadlineExceeded, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.err))
		})
	}
}

func TestParseDownloadMode(t *testing.T) {
	mode, err := ParseDownloadMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeProxy, mode)

	mode, err = ParseDownloadMode("credential")
	require.NoError(t, err)
	assert.Equal(t, ModeCredential, mode)

	_, err = ParseDownloadMode("redirect")
	assert.Error(t, err)
}
