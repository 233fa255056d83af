package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// envConfig is the environment surface of ServerConfig. Variables that are
// unset keep whatever earlier options put in the field.
type envConfig struct {
	Port        string `env:"PORT" env-description:"HTTP listen port (default 8080)"`
	Environment string `env:"ENVIRONMENT" env-description:"development, production or testing"`
	LogLevel    string `env:"LOG_LEVEL" env-description:"debug, info, warn or error"`

	StorageURL         string `env:"STORAGE_URL" env-description:"memory://, file:///dir, s3://bucket, minio://host:port/bucket or gs://bucket"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" env-description:"S3 access key; the default AWS credential chain is used when empty"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" env-description:"S3 secret key"`
	AWSRegion          string `env:"AWS_REGION" env-description:"S3 region when STORAGE_URL has none"`
	MinioAccessKey     string `env:"MINIO_ACCESS_KEY" env-description:"MinIO access key"`
	MinioSecretKey     string `env:"MINIO_SECRET_KEY" env-description:"MinIO secret key"`
	GCSKey             string `env:"GCS_KEY" env-description:"Google service-account key JSON"`
	FSSecretKey        string `env:"FS_SIGNATURE_SECRET_KEY" env-description:"HMAC key for file:// signed URLs; random when empty"`

	PublicBaseURL  string   `env:"PUBLIC_BASE_URL" env-description:"origin used in share, download and blob links"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" env-separator:"," env-description:"comma separated origins allowed to call the API from a browser"`
	CORSMaxAge     int      `env:"CORS_MAX_AGE" env-description:"preflight cache lifetime in seconds (default 86400)"`

	UploadTTL       time.Duration `env:"UPLOAD_TTL" env-description:"upload credential lifetime (default 48h)"`
	DownloadTTL     time.Duration `env:"DOWNLOAD_TTL" env-description:"download credential lifetime (default 10m)"`
	BackendTimeout  time.Duration `env:"BACKEND_TIMEOUT" env-description:"limit on each storage backend call (default 30s)"`
	DownloadMode    string        `env:"DOWNLOAD_MODE" env-description:"proxy or credential (default proxy)"`
	MaxMessageBytes int           `env:"MAX_MESSAGE_BYTES" env-description:"longest accepted upload message (default 1024)"`
	StrictStartup   bool          `env:"STRICT_STARTUP" env-description:"exit when the storage backend cannot be built (default true)"`
}

// WithEnv applies environment variable overrides.
//
// Unset variables leave the current value alone, so WithEnv can follow
// programmatic options. Malformed values (durations, numbers, booleans)
// are reported as errors.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		env := envConfig{
			Port:               c.Port,
			Environment:        c.Environment,
			LogLevel:           c.LogLevel,
			StorageURL:         c.StorageURL,
			AWSAccessKeyID:     c.Credentials.AWSAccessKeyID,
			AWSSecretAccessKey: c.Credentials.AWSSecretAccessKey,
			AWSRegion:          c.Credentials.AWSRegion,
			MinioAccessKey:     c.Credentials.MinioAccessKey,
			MinioSecretKey:     c.Credentials.MinioSecretKey,
			GCSKey:             c.Credentials.GCSKey,
			FSSecretKey:        c.Credentials.FSSecretKey,
			PublicBaseURL:      c.PublicBaseURL,
			AllowedOrigins:     c.AllowedOrigins,
			CORSMaxAge:         c.CORSMaxAge,
			UploadTTL:          c.UploadTTL,
			DownloadTTL:        c.DownloadTTL,
			BackendTimeout:     c.BackendTimeout,
			DownloadMode:       c.DownloadMode,
			MaxMessageBytes:    c.MaxMessageBytes,
			StrictStartup:      c.StrictStartup,
		}
		if err := cleanenv.ReadEnv(&env); err != nil {
			return fmt.Errorf("failed to read configuration from environment: %w", err)
		}

		c.Port = env.Port
		c.Environment = env.Environment
		c.LogLevel = strings.ToLower(env.LogLevel)
		c.StorageURL = env.StorageURL
		c.Credentials = Credentials{
			AWSAccessKeyID:     env.AWSAccessKeyID,
			AWSSecretAccessKey: env.AWSSecretAccessKey,
			AWSRegion:          env.AWSRegion,
			MinioAccessKey:     env.MinioAccessKey,
			MinioSecretKey:     env.MinioSecretKey,
			GCSKey:             env.GCSKey,
			FSSecretKey:        env.FSSecretKey,
		}
		c.PublicBaseURL = env.PublicBaseURL
		c.AllowedOrigins = cleanOrigins(env.AllowedOrigins)
		c.CORSMaxAge = env.CORSMaxAge
		c.UploadTTL = env.UploadTTL
		c.DownloadTTL = env.DownloadTTL
		c.BackendTimeout = env.BackendTimeout
		c.DownloadMode = env.DownloadMode
		c.MaxMessageBytes = env.MaxMessageBytes
		c.StrictStartup = env.StrictStartup
		return nil
	}
}

// cleanOrigins trims entries and drops empty ones and trailing slashes
func cleanOrigins(origins []string) []string {
	var out []string
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Usage writes the list of environment variables WithEnv reads
func Usage(w io.Writer) error {
	header := "Environment variables:"
	text, err := cleanenv.GetDescription(&envConfig{}, &header)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, text)
	return err
}
