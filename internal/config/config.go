// Package config provides centralized configuration management for docstream.
// Values come from environment variables, then an optional TOML file, then
// the defaults declared on each field. Everything is validated on startup so
// misconfiguration fails fast.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	API      APIConfig      `toml:"api"`
	Decode   DecodeConfig   `toml:"decode"`
	Upload   UploadConfig   `toml:"upload"`
	Preview  PreviewConfig  `toml:"preview"`
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
}

// APIConfig holds settings for the remote document API.
type APIConfig struct {
	// URL is the base URL; a path-only value is placed below the default host.
	URL string `env:"API_URL" toml:"url"`

	// RootURL overrides the root guessed from URL.
	RootURL string `env:"API_ROOT_URL" toml:"root_url"`

	Username string `env:"API_USERNAME" toml:"username"`
	Password string `env:"API_PASSWORD" toml:"password"`

	// Token selects bearer auth instead of username and password.
	Token string `env:"API_TOKEN" toml:"token"`

	// Proxy is an optional proxy URL for all API traffic.
	Proxy string `env:"API_PROXY" envAlt:"HTTPS_PROXY" toml:"proxy"`

	Timeout   time.Duration `env:"API_TIMEOUT" toml:"timeout" default:"60s"`
	UserAgent string        `env:"API_USER_AGENT" toml:"user_agent" default:"docstream/0.1"`
}

// DecodeConfig controls sniffing and decoding of record files.
type DecodeConfig struct {
	// Encodings is the ordered CSV candidate list (default: utf-8,utf-16,macroman,windows-1252)
	Encodings []string `env:"DECODE_ENCODINGS" toml:"encodings" default:"utf-8,utf-16,macroman,windows-1252"`

	// MaxBytes caps how much of a JSON array or CSV file is held in memory (default: 100MB)
	MaxBytes int64 `env:"DECODE_MAX_BYTES" toml:"max_bytes" default:"104857600"`

	// FixText cleans CSV fields (entities, curly quotes, control chars) (default: true)
	FixText bool `env:"DECODE_FIX_TEXT" toml:"fix_text" default:"true"`
}

// UploadConfig holds settings for pushing records to the API.
type UploadConfig struct {
	// Database is the "account/name" path records are uploaded to.
	Database string `env:"UPLOAD_DATABASE" toml:"database"`

	// BatchSize is the number of records per upload_documents call (default: 1000)
	BatchSize int `env:"UPLOAD_BATCH_SIZE" toml:"batch_size" default:"1000"`

	// MaxConcurrent is the number of files processed in parallel (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" toml:"max_concurrent" default:"5"`

	// Timeout bounds a single file upload (default: 10m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" toml:"timeout" default:"10m"`

	// PollInterval is how often watch-dir rescans its directory (default: 30s)
	PollInterval time.Duration `env:"UPLOAD_POLL_INTERVAL" toml:"poll_interval" default:"30s"`
}

// PreviewConfig holds settings for the preview HTTP service.
type PreviewConfig struct {
	Host string `env:"PREVIEW_HOST" envAlt:"SERVER_HOST" toml:"host" default:"0.0.0.0"`
	Port int    `env:"PREVIEW_PORT" envAlt:"SERVER_PORT" toml:"port" default:"8080"`

	ReadTimeout     time.Duration `env:"PREVIEW_READ_TIMEOUT" toml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `env:"PREVIEW_WRITE_TIMEOUT" toml:"write_timeout" default:"60s"`
	IdleTimeout     time.Duration `env:"PREVIEW_IDLE_TIMEOUT" toml:"idle_timeout" default:"60s"`
	ShutdownTimeout time.Duration `env:"PREVIEW_SHUTDOWN_TIMEOUT" toml:"shutdown_timeout" default:"30s"`
	RequestTimeout  time.Duration `env:"PREVIEW_REQUEST_TIMEOUT" toml:"request_timeout" default:"60s"`

	// MaxFileSize is the largest accepted upload in bytes (default: 32MB)
	MaxFileSize int64 `env:"PREVIEW_MAX_FILE_SIZE" toml:"max_file_size" default:"33554432"`

	// SampleSize is how many records a preview returns by default (default: 20)
	SampleSize int `env:"PREVIEW_SAMPLE_SIZE" toml:"sample_size" default:"20"`

	// MaxConcurrent bounds previews decoding at the same time (default: 4)
	MaxConcurrent int `env:"PREVIEW_MAX_CONCURRENT" toml:"max_concurrent" default:"4"`

	// MaxWaitTime is how long a request waits for a preview slot (default: 10s)
	MaxWaitTime time.Duration `env:"PREVIEW_MAX_WAIT_TIME" toml:"max_wait_time" default:"10s"`

	// RateLimit is the number of requests allowed per client IP per minute;
	// zero disables rate limiting (default: 100)
	RateLimit int `env:"PREVIEW_RATE_LIMIT" toml:"rate_limit" default:"100"`

	// APIKeys, when set, must be sent as X-API-Key on every /api request.
	APIKeys []string `env:"PREVIEW_API_KEYS" toml:"api_keys"`

	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Forwarded-For headers are believed.
	TrustedProxies []string `env:"TRUSTED_PROXIES" toml:"trusted_proxies"`
}

// DatabaseConfig holds the PostgreSQL staging settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Only the stage command needs it.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" toml:"url"`

	// Table receives staged records (default: staged_records)
	Table string `env:"DB_STAGING_TABLE" toml:"table" default:"staged_records"`

	MaxConns int `env:"DB_MAX_CONNS" toml:"max_conns" default:"4"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" toml:"level" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" toml:"format" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *PreviewConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// HasCredentials reports whether enough is configured to authenticate.
func (c *APIConfig) HasCredentials() bool {
	return c.Token != "" || c.Password != ""
}

// String returns a safe string representation of the config for logging.
// Credentials and connection strings are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "API: {URL: %q, Username: %q, Password: %s, Token: %s}, ",
		c.API.URL, c.API.Username, mask(c.API.Password), mask(c.API.Token))
	fmt.Fprintf(&b, "Decode: {Encodings: %v, MaxBytes: %d, FixText: %v}, ",
		c.Decode.Encodings, c.Decode.MaxBytes, c.Decode.FixText)
	fmt.Fprintf(&b, "Upload: {Database: %q, BatchSize: %d, MaxConcurrent: %d}, ",
		c.Upload.Database, c.Upload.BatchSize, c.Upload.MaxConcurrent)
	fmt.Fprintf(&b, "Preview: {Addr: %q, SampleSize: %d, MaxConcurrent: %d}, ",
		c.Preview.Addr(), c.Preview.SampleSize, c.Preview.MaxConcurrent)
	fmt.Fprintf(&b, "Database: {URL: %s, Table: %q}, ", mask(c.Database.URL), c.Database.Table)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}

func mask(s string) string {
	if s == "" {
		return `""`
	}
	return "[MASKED]"
}
