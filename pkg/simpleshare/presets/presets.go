// Package presets builds ready-to-use simple-share setups for local
// development and tests.
package presets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-share/pkg/simpleshare"
	"github.com/tendant/simple-share/pkg/simpleshare/api"
	"github.com/tendant/simple-share/pkg/simpleshare/config"
	"github.com/tendant/simple-share/pkg/simpleshare/storage/memory"
)

// DevelopmentSecret signs fs credentials issued by NewDevelopment
const DevelopmentSecret = "simple-share-development"

// NewDevelopment creates a complete HTTP router for local development.
//
// Files are kept under ./dev-data and served through the signed /blobs
// routes on the same router, so uploads work with nothing but a browser.
// The returned cleanup function removes the storage directory.
//
// Example:
//
//	router, cleanup, err := presets.NewDevelopment(presets.WithDevOrigins("http://localhost:5173"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
//	http.ListenAndServe(":8080", router)
func NewDevelopment(opts ...DevelopmentOption) (*chi.Mux, func(), error) {
	cfg := &devConfig{
		storageDir: "./dev-data",
		baseURL:    "http://localhost:8080",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	serverCfg, err := config.Load(
		config.WithEnvironment("development"),
		config.WithStorageURL("file://"+cfg.storageDir),
		config.WithPublicBaseURL(cfg.baseURL),
		config.WithAllowedOrigins(cfg.origins...),
		config.WithCredentials(config.Credentials{FSSecretKey: DevelopmentSecret}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid development configuration: %w", err)
	}

	logger := slog.Default()
	svc, routes, err := serverCfg.BuildService(context.Background(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create development service: %w", err)
	}

	cleanup := func() {
		os.RemoveAll(cfg.storageDir)
	}
	return api.NewRouter(svc, serverCfg.RouterOptions(logger, routes)), cleanup, nil
}

// NewTesting creates a service over a fresh in-memory backend. The backend
// is returned so tests can complete uploads with Put or seed objects with
// Store.
func NewTesting(t testing.TB, opts ...simpleshare.Option) (simpleshare.Service, *memory.Backend) {
	t.Helper()

	store := memory.New()
	options := append([]simpleshare.Option{
		simpleshare.WithBlobStore(store),
		simpleshare.WithEventSink(simpleshare.NewNoopEventSink()),
	}, opts...)

	svc, err := simpleshare.New(options...)
	if err != nil {
		t.Fatalf("failed to create test service: %v", err)
	}
	return svc, store
}

type devConfig struct {
	storageDir string
	baseURL    string
	origins    []string
}

// DevelopmentOption is a functional option for NewDevelopment
type DevelopmentOption func(*devConfig)

// WithDevStorage sets the development storage directory
func WithDevStorage(dir string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.storageDir = dir
	}
}

// WithDevBaseURL sets the origin the router is reachable at
func WithDevBaseURL(base string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.baseURL = base
	}
}

// WithDevOrigins allows browser calls from the given origins
func WithDevOrigins(origins ...string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.origins = origins
	}
}
