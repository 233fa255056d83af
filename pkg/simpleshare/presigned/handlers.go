package presigned

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-share/pkg/simpleshare"
)

const (
	// ContentTypeParam is the signed query parameter binding an upload's Content-Type
	ContentTypeParam = "ct"

	// MetaPrefix prefixes signed query parameters carrying object metadata
	MetaPrefix = "x-meta-"
)

// ObjectStore is the storage behind presigned handlers
type ObjectStore interface {
	WriteObject(ctx context.Context, key, contentType string, metadata map[string]string, body io.Reader) error
	OpenObject(ctx context.Context, key string) (*simpleshare.ObjectStream, error)
}

// Handlers provides HTTP handlers for presigned upload/download URLs.
// They stand in for an object store's own endpoints when bytes live on the
// local filesystem.
type Handlers struct {
	signer         *Signer
	store          ObjectStore
	maxUploadBytes int64
}

// HandlersOption configures Handlers
type HandlersOption func(*Handlers)

// WithMaxUploadBytes limits the size of uploaded bodies; 0 means no limit
func WithMaxUploadBytes(n int64) HandlersOption {
	return func(h *Handlers) {
		h.maxUploadBytes = n
	}
}

// NewHandlers creates a new set of presigned URL handlers
func NewHandlers(signer *Signer, store ObjectStore, opts ...HandlersOption) *Handlers {
	h := &Handlers{signer: signer, store: store}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleUpload handles PUT requests to presigned upload URLs.
// URL format: PUT /blobs/{objectKey}?ct={type}&x-meta-{k}={v}&expires={ts}&signature={hmac}
// The request Content-Type must equal the signed ct parameter.
func (h *Handlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	objectKey := ObjectKeyFromContext(r.Context())
	if objectKey == "" {
		writeError(w, r, http.StatusBadRequest, "missing_object_key", "object key is required in URL path")
		return
	}

	query := r.URL.Query()
	contentType := r.Header.Get("Content-Type")
	if signed := query.Get(ContentTypeParam); signed != "" && signed != contentType {
		slog.Warn("Presigned upload content type mismatch", "key", objectKey, "signed", signed, "got", contentType)
		writeError(w, r, http.StatusForbidden, "content_type_mismatch", ErrContentTypeMismatch.Error())
		return
	}

	metadata := make(map[string]string)
	for k, v := range query {
		if name, ok := strings.CutPrefix(k, MetaPrefix); ok && len(v) > 0 {
			metadata[name] = v[0]
		}
	}

	body := io.Reader(r.Body)
	if h.maxUploadBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	if err := h.store.WriteObject(r.Context(), objectKey, contentType, metadata, body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds size limit")
			return
		}
		slog.Error("Presigned upload failed", "key", objectKey, "err", err)
		writeError(w, r, http.StatusInternalServerError, "upload_failed", "failed to store object")
		return
	}

	slog.Info("Presigned upload succeeded", "key", objectKey, "content_type", contentType)
	w.WriteHeader(http.StatusOK)
}

// HandleDownload handles GET requests to presigned download URLs.
// URL format: GET /blobs/{objectKey}?expires={ts}&signature={hmac}
func (h *Handlers) HandleDownload(w http.ResponseWriter, r *http.Request) {
	objectKey := ObjectKeyFromContext(r.Context())
	if objectKey == "" {
		writeError(w, r, http.StatusBadRequest, "missing_object_key", "object key is required in URL path")
		return
	}

	stream, err := h.store.OpenObject(r.Context(), objectKey)
	if err != nil {
		if errors.Is(err, simpleshare.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "object not found")
			return
		}
		slog.Error("Presigned download failed", "key", objectKey, "err", err)
		writeError(w, r, http.StatusInternalServerError, "download_failed", "failed to read object")
		return
	}
	defer stream.Body.Close()

	contentType := stream.ContentType
	if contentType == "" {
		contentType = simpleshare.DefaultContentType
	}
	w.Header().Set("Content-Type", contentType)
	if stream.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(stream.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, stream.Body); err != nil {
		slog.Warn("Presigned download copy error", "key", objectKey, "err", err)
	}
}

// Mount mounts the presigned handlers on a chi router under the signer's route prefix
func (h *Handlers) Mount(r chi.Router) {
	pattern := h.signer.RoutePrefix() + "*"
	r.With(h.signer.Middleware).Put(pattern, h.HandleUpload)
	r.With(h.signer.Middleware).Get(pattern, h.HandleDownload)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]errorBody{"error": {Code: code, Message: message}})
}
