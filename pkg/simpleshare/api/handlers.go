package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/render"
	"github.com/tendant/simple-share/pkg/simpleshare"
	"github.com/tendant/simple-share/pkg/simpleshare/stream"
)

// DefaultMaxRequestBytes limits the upload request body
const DefaultMaxRequestBytes = 64 * 1024

// DownloadMode selects how the download broker answers
type DownloadMode string

const (
	// ModeProxy streams the object body through this server
	ModeProxy DownloadMode = "proxy"
	// ModeCredential returns a read credential as JSON
	ModeCredential DownloadMode = "credential"
)

// ParseDownloadMode parses "proxy" or "credential"; empty means proxy
func ParseDownloadMode(s string) (DownloadMode, error) {
	switch DownloadMode(s) {
	case "", ModeProxy:
		return ModeProxy, nil
	case ModeCredential:
		return ModeCredential, nil
	}
	return "", errors.New("download mode must be proxy or credential")
}

// ShareHandler serves the upload, download and share endpoints on top of a
// simpleshare.Service
type ShareHandler struct {
	service         simpleshare.Service
	mode            DownloadMode
	stream          stream.Options
	maxRequestBytes int64
	logger          *slog.Logger
}

func NewShareHandler(service simpleshare.Service, opts Options) *ShareHandler {
	h := &ShareHandler{
		service:         service,
		mode:            opts.Mode,
		stream:          opts.Stream,
		maxRequestBytes: opts.MaxRequestBytes,
		logger:          opts.Logger,
	}
	if h.mode == "" {
		h.mode = ModeProxy
	}
	if h.maxRequestBytes <= 0 {
		h.maxRequestBytes = DefaultMaxRequestBytes
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// UploadRequest is the JSON body of POST /api/upload
type UploadRequest struct {
	FileName    string `json:"filename"`
	ContentType string `json:"contentType"`
	Message     string `json:"message,omitempty"`
}

// UploadResponse carries the write credential. The client PUTs the file
// to UploadURL with Method, sending every entry of Headers.
type UploadResponse struct {
	UploadURL   string            `json:"uploadUrl"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers,omitempty"`
	ExpiresAt   time.Time         `json:"expiresAt"`
	PublicID    string            `json:"publicId"`
	ShareURL    string            `json:"shareUrl"`
	DownloadURL string            `json:"downloadUrl"`
	Message     string            `json:"message,omitempty"`
}

// DownloadCredentialResponse is the credential-mode answer of GET /api/download
type DownloadCredentialResponse struct {
	DownloadURL string    `json:"downloadUrl"`
	Method      string    `json:"method"`
	ExpiresAt   time.Time `json:"expiresAt"`
	FileName    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	PublicID    string    `json:"publicId"`
}

// Upload issues a write credential for a new object
func (h *ShareHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBytes)

	var req UploadRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, errorCode(http.StatusRequestEntityTooLarge),
				"request body is larger than "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
			return
		}
		h.logger.Warn("Failed to decode upload request", "err", err)
		writeError(w, r, http.StatusBadRequest, errorCode(http.StatusBadRequest), "request body must be a JSON object")
		return
	}
	if req.FileName == "" || req.ContentType == "" {
		writeError(w, r, http.StatusBadRequest, errorCode(http.StatusBadRequest), "Missing filename or contentType")
		return
	}

	result, err := h.service.IssueUpload(r.Context(), simpleshare.UploadRequest{
		FileName:    req.FileName,
		ContentType: req.ContentType,
		Message:     req.Message,
	})
	if err != nil {
		writeServiceError(w, r, "upload", err)
		return
	}

	render.JSON(w, r, UploadResponse{
		UploadURL:   result.Credential.URL,
		Method:      result.Credential.Method,
		Headers:     result.Credential.Headers,
		ExpiresAt:   result.Credential.ExpiresAt,
		PublicID:    result.Key,
		ShareURL:    result.ShareURL,
		DownloadURL: result.DownloadURL,
		Message:     result.Message,
	})
}

// Download serves an object under its decoded display name, or hands out
// a read credential in credential mode
func (h *ShareHandler) Download(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get(simpleshare.PublicIDParam)
	if key == "" {
		writeError(w, r, http.StatusBadRequest, errorCode(http.StatusBadRequest), "Missing publicId")
		return
	}

	if h.mode == ModeCredential {
		h.downloadCredential(w, r, key)
		return
	}

	dl, err := h.service.OpenDownload(r.Context(), key)
	if err != nil {
		writeServiceError(w, r, "download", err)
		return
	}
	defer dl.Stream.Body.Close()

	header := w.Header()
	header.Set("Content-Type", dl.Object.ContentType)
	header.Set("Content-Disposition", simpleshare.ContentDisposition(dl.Object.FileName))
	header.Set("X-Content-Type-Options", "nosniff")
	header.Set("Cache-Control", "private, no-store")
	if dl.Stream.ContentLength >= 0 {
		header.Set("Content-Length", strconv.FormatInt(dl.Stream.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	n, err := stream.Copy(r.Context(), w, dl.Stream.Body, h.stream)
	if err != nil {
		// Headers are gone; the client sees a short body and the connection drops.
		h.logger.Warn("Download interrupted", "key", key, "bytes", n, "err", err)
		if dl.Stream.ContentLength < 0 {
			panic(http.ErrAbortHandler)
		}
		return
	}
	h.logger.Debug("Download complete", "key", key, "bytes", n)
}

func (h *ShareHandler) downloadCredential(w http.ResponseWriter, r *http.Request, key string) {
	ticket, err := h.service.IssueDownload(r.Context(), key)
	if err != nil {
		writeServiceError(w, r, "download", err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	render.JSON(w, r, DownloadCredentialResponse{
		DownloadURL: ticket.Credential.URL,
		Method:      ticket.Credential.Method,
		ExpiresAt:   ticket.Credential.ExpiresAt,
		FileName:    ticket.Object.FileName,
		ContentType: ticket.Object.ContentType,
		PublicID:    key,
	})
}

// Share renders the HTML share page for an object
func (h *ShareHandler) Share(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get(simpleshare.PublicIDParam)
	if key == "" {
		writeError(w, r, http.StatusBadRequest, errorCode(http.StatusBadRequest), "Missing publicId")
		return
	}

	page, err := h.service.Share(r.Context(), key)
	if err != nil {
		writeServiceError(w, r, "share", err)
		return
	}

	if err := renderSharePage(w, page); err != nil {
		h.logger.Error("Failed to render share page", "key", key, "err", err)
	}
}

// Preflight answers a plain OPTIONS request with an empty success
func (h *ShareHandler) Preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
