// Package config loads process configuration from environment variables,
// applies defaults and validates everything on startup.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	ETL       ETLConfig
	Rate      RateLimitConfig
	Logging   LoggingConfig
	Retention RetentionConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request, uploads included (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout is the maximum duration for writing a response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, running jobs included (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// TrustedProxies lists CIDRs whose X-Real-IP/X-Forwarded-For headers are
	// believed; empty means client headers are ignored
	TrustedProxies []string `env:"SERVER_TRUSTED_PROXIES"`
}

// DatabaseConfig holds database connection settings. An empty URL keeps the
// error ledger in memory and skips record persistence.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string; DB_URL is accepted too
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether a database is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// ETLConfig tunes the inventory pipeline.
type ETLConfig struct {
	// Workers is the number of rows processed in parallel per job (default: 4)
	Workers int `env:"ETL_WORKERS" default:"4"`

	// StrictMode raises schema warnings to errors (default: false)
	StrictMode bool `env:"ETL_STRICT_MODE" default:"false"`

	// MaxFileSize is the maximum accepted file size in bytes (default: 100MB)
	MaxFileSize int64 `env:"ETL_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrentJobs caps jobs running at once (default: 5)
	MaxConcurrentJobs int `env:"ETL_MAX_CONCURRENT_JOBS" default:"5"`

	// MaxWaitTime is how long a new job waits for a slot (default: 30s)
	MaxWaitTime time.Duration `env:"ETL_MAX_WAIT_TIME" default:"30s"`

	// JobTimeout bounds a single job (default: 10m)
	JobTimeout time.Duration `env:"ETL_JOB_TIMEOUT" default:"10m"`

	// JobRetention is how long finished jobs stay queryable (default: 1h)
	JobRetention time.Duration `env:"ETL_JOB_RETENTION" default:"1h"`

	// RulesFile is an optional YAML file overriding business rules
	RulesFile string `env:"ETL_RULES_FILE"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the sustained rate per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// Burst is the number of requests allowed above the rate (default: 20)
	Burst int `env:"RATE_LIMIT_BURST" default:"20"`

	// UploadLimit is the per-minute rate for job submissions (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// RetentionConfig drives the error ledger sweeper.
type RetentionConfig struct {
	// ResolvedErrorDays is how long resolved errors are kept (default: 30)
	ResolvedErrorDays int `env:"RETENTION_RESOLVED_ERROR_DAYS" default:"30"`

	// CheckInterval is how often the sweeper runs (default: 24h)
	CheckInterval time.Duration `env:"RETENTION_CHECK_INTERVAL" default:"24h"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
