package config

import (
	"errors"
	"time"
)

// WithPort sets the HTTP listen port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the deployment environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		c.Environment = env
		return nil
	}
}

// WithLogLevel sets the log level name
func WithLogLevel(level string) Option {
	return func(c *ServerConfig) error {
		c.LogLevel = level
		return nil
	}
}

// WithStorageURL selects the storage backend, e.g. "s3://bucket?region=eu-north-1"
func WithStorageURL(raw string) Option {
	return func(c *ServerConfig) error {
		c.StorageURL = raw
		return nil
	}
}

// WithCredentials sets the storage backend secrets
func WithCredentials(creds Credentials) Option {
	return func(c *ServerConfig) error {
		c.Credentials = creds
		return nil
	}
}

// WithPublicBaseURL sets the origin share and download links are built on
func WithPublicBaseURL(base string) Option {
	return func(c *ServerConfig) error {
		c.PublicBaseURL = base
		return nil
	}
}

// WithAllowedOrigins replaces the browser origins allowed by CORS
func WithAllowedOrigins(origins ...string) Option {
	return func(c *ServerConfig) error {
		c.AllowedOrigins = cleanOrigins(origins)
		return nil
	}
}

// WithCredentialTTLs sets how long upload and download credentials stay valid
func WithCredentialTTLs(upload, download time.Duration) Option {
	return func(c *ServerConfig) error {
		if upload <= 0 || download <= 0 {
			return errors.New("credential TTLs must be positive")
		}
		c.UploadTTL = upload
		c.DownloadTTL = download
		return nil
	}
}

// WithBackendTimeout limits each storage backend call
func WithBackendTimeout(d time.Duration) Option {
	return func(c *ServerConfig) error {
		c.BackendTimeout = d
		return nil
	}
}

// WithDownloadMode selects "proxy" or "credential" downloads
func WithDownloadMode(mode string) Option {
	return func(c *ServerConfig) error {
		c.DownloadMode = mode
		return nil
	}
}

// WithStrictStartup controls whether an unbuildable backend is fatal
func WithStrictStartup(strict bool) Option {
	return func(c *ServerConfig) error {
		c.StrictStartup = strict
		return nil
	}
}
