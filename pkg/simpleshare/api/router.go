package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/simple-share/pkg/simpleshare"
	"github.com/tendant/simple-share/pkg/simpleshare/stream"
)

// DefaultCORSMaxAge is how long browsers may cache a preflight, in seconds
const DefaultCORSMaxAge = 86400

// BlobRoutes is implemented by backends that serve signed blob URLs
// themselves, such as presigned.Handlers for the fs backend
type BlobRoutes interface {
	Mount(r chi.Router)
}

// Options configures the HTTP boundary
type Options struct {
	Mode            DownloadMode
	AllowedOrigins  []string
	CORSMaxAge      int
	MaxRequestBytes int64
	Stream          stream.Options
	Logger          *slog.Logger
	BlobRoutes      BlobRoutes // optional
}

var probeMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodOptions,
}

// NewRouter builds the complete HTTP surface: the broker endpoints under
// /api, health checks and, when configured, the blob routes.
func NewRouter(service simpleshare.Service, opts Options) *chi.Mux {
	if opts.CORSMaxAge <= 0 {
		opts.CORSMaxAge = DefaultCORSMaxAge
	}
	h := NewShareHandler(service, opts)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(opts.Logger))
	r.Use(RecoveryMiddleware)
	r.Use(CORS(opts.AllowedOrigins, opts.CORSMaxAge))

	app.RoutesHealthz(r)
	app.RoutesHealthzReady(r)

	r.Post("/api/upload", h.Upload)
	r.Options("/api/upload", h.Preflight)
	r.Get(simpleshare.DefaultDownloadPath, h.Download)
	r.Options(simpleshare.DefaultDownloadPath, h.Preflight)
	r.Get(simpleshare.DefaultSharePath, h.Share)
	r.Options(simpleshare.DefaultSharePath, h.Preflight)

	if opts.BlobRoutes != nil {
		opts.BlobRoutes.Mount(r)
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusNotFound, errorCode(http.StatusNotFound), "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		allowed := allowedMethods(r, req.URL.Path)
		if len(allowed) > 0 {
			w.Header().Set("Allow", strings.Join(allowed, ", "))
		}
		writeError(w, req, http.StatusMethodNotAllowed, errorCode(http.StatusMethodNotAllowed),
			"Method "+req.Method+" not allowed")
	})

	return r
}

// allowedMethods lists the methods routed for path
func allowedMethods(r *chi.Mux, path string) []string {
	var methods []string
	for _, m := range probeMethods {
		if r.Match(chi.NewRouteContext(), m, path) {
			methods = append(methods, m)
		}
	}
	return methods
}
