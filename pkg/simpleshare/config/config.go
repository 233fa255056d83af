package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/tendant/simple-share/pkg/simpleshare"
	"github.com/tendant/simple-share/pkg/simpleshare/api"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:            "8080",
		Environment:     "development",
		LogLevel:        "info",
		StorageURL:      "memory://",
		CORSMaxAge:      api.DefaultCORSMaxAge,
		UploadTTL:       simpleshare.DefaultUploadTTL,
		DownloadTTL:     simpleshare.DefaultDownloadTTL,
		BackendTimeout:  simpleshare.DefaultBackendTimeout,
		DownloadMode:    string(api.ModeProxy),
		MaxMessageBytes: simpleshare.DefaultMaxMessageBytes,
		StrictStartup:   true,
	}
}

// ServerConfig represents server configuration for the simple-share service.
// It is built once at startup and never re-read.
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing
	LogLevel    string // debug, info, warn, error

	// Storage configuration
	StorageURL  string
	Storage     StorageConfig // parsed from StorageURL by Validate
	Credentials Credentials

	// Links and browser access
	PublicBaseURL  string // prefix for share and download links; empty yields relative links
	AllowedOrigins []string
	CORSMaxAge     int // seconds

	// Broker policy
	UploadTTL       time.Duration
	DownloadTTL     time.Duration
	BackendTimeout  time.Duration
	DownloadMode    string // proxy, credential
	MaxMessageBytes int

	// StrictStartup makes a backend that cannot be built fatal. When false the
	// server starts anyway and answers every request with a backend error.
	StrictStartup bool
}

// Credentials holds the secrets used to reach the storage backend
type Credentials struct {
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSRegion          string
	MinioAccessKey     string
	MinioSecretKey     string
	GCSKey             string // service-account JSON
	FSSecretKey        string
}

// IsProduction reports whether the server runs in production
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// Validate validates the server configuration and parses the storage URL
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	storage, err := ParseStorageURL(c.StorageURL)
	if err != nil {
		return err
	}
	c.Storage = storage

	if c.PublicBaseURL != "" {
		if err := validateOrigin("PUBLIC_BASE_URL", c.PublicBaseURL, true); err != nil {
			return err
		}
	}
	for _, origin := range c.AllowedOrigins {
		if err := validateOrigin("ALLOWED_ORIGINS", origin, false); err != nil {
			return err
		}
	}
	if c.CORSMaxAge < 0 {
		return errors.New("cors max age cannot be negative")
	}

	if c.UploadTTL <= 0 || c.DownloadTTL <= 0 {
		return errors.New("upload and download TTLs must be positive")
	}
	if c.BackendTimeout <= 0 {
		return errors.New("backend timeout must be positive")
	}
	if c.MaxMessageBytes <= 0 {
		return errors.New("max message bytes must be positive")
	}
	if _, err := api.ParseDownloadMode(c.DownloadMode); err != nil {
		return err
	}

	return nil
}

// validateOrigin checks for an absolute http(s) URL. Origins may not carry a path.
func validateOrigin(name, raw string, allowPath bool) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid %s %q: must be an absolute http or https URL", name, raw)
	}
	if !allowPath && strings.TrimSuffix(u.Path, "/") != "" {
		return fmt.Errorf("invalid %s %q: an origin has no path", name, raw)
	}
	return nil
}

// ParseLogLevel maps debug, info, warn and error to slog levels
func ParseLogLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return l, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// Links returns how share and download references are built
func (c *ServerConfig) Links() simpleshare.Links {
	return simpleshare.Links{BaseURL: c.PublicBaseURL}
}

// blobBaseURL is the origin fs credentials point at
func (c *ServerConfig) blobBaseURL() string {
	if c.PublicBaseURL != "" {
		return strings.TrimRight(c.PublicBaseURL, "/")
	}
	return "http://localhost:" + c.Port
}
