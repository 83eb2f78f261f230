// Package config provides centralized configuration management for TabSync.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"

	"github.com/JonMunkholm/TabSync/internal/core"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSheets   = "sheets"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Sync     SyncConfig
	Snapshot SnapshotConfig
	Batch    BatchConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing a response (default: 5m)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"5m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 5m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"5m"`
}

// StoreConfig selects and configures the remote tabular store.
type StoreConfig struct {
	// Driver is one of memory, postgres, sheets (default: memory)
	Driver string `env:"STORE_DRIVER" default:"memory"`

	// DatabaseURL is the PostgreSQL connection string (postgres driver)
	DatabaseURL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// SheetID is the Google spreadsheet holding the datasets (sheets driver)
	SheetID string `env:"GOOGLE_SHEET_ID" envAlt:"SPREADSHEET_ID"`

	// CredentialsJSON is the service account key as inline JSON
	CredentialsJSON string `env:"GOOGLE_CREDENTIALS_JSON"`

	// CredentialsPath is a path to the service account key file
	CredentialsPath string `env:"GOOGLE_CREDENTIALS_PATH" envAlt:"GOOGLE_APPLICATION_CREDENTIALS"`
}

// SyncConfig holds the engine defaults applied to every dataset.
type SyncConfig struct {
	// KeyColumn identifies rows (default: Candidate ID)
	KeyColumn string `env:"SYNC_KEY_COLUMN" default:"Candidate ID"`

	// MetadataColumn is stamped on every written row (default: LastSyncedAt)
	MetadataColumn string `env:"SYNC_METADATA_COLUMN" default:"LastSyncedAt"`

	// AuditDataset receives field-level change records (default: _audit_log)
	AuditDataset string `env:"SYNC_AUDIT_DATASET" default:"_audit_log"`

	// LockWait is how long a pass waits for a busy dataset (default: 30s)
	LockWait time.Duration `env:"SYNC_LOCK_WAIT" default:"30s"`

	// ReadTimeout bounds each remote read (default: 30s)
	ReadTimeout time.Duration `env:"SYNC_READ_TIMEOUT" default:"30s"`

	// WriteTimeout bounds each remote write and audit append (default: 60s)
	WriteTimeout time.Duration `env:"SYNC_WRITE_TIMEOUT" default:"60s"`

	// Datasets is a comma-separated list of dataset names; empty means the
	// dashboard tabs
	Datasets []string `env:"SYNC_DATASETS"`

	// DatasetsFile is a YAML dataset registry; overrides Datasets
	DatasetsFile string `env:"SYNC_DATASETS_FILE"`
}

// Defaults returns the engine defaults as a core.SyncConfig.
func (c SyncConfig) Defaults() core.SyncConfig {
	return core.SyncConfig{KeyColumn: c.KeyColumn, MetadataColumn: c.MetadataColumn}
}

// SnapshotConfig holds local snapshot settings.
type SnapshotConfig struct {
	// Dir holds one JSON file per dataset; ~ is expanded (default: ~/.tabsync/snapshots)
	Dir string `env:"SNAPSHOT_DIR" default:"~/.tabsync/snapshots"`

	// Disabled turns snapshots off entirely (default: false)
	Disabled bool `env:"SNAPSHOT_DISABLED" default:"false"`
}

// BatchConfig holds export file reading settings.
type BatchConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 100MB)
	MaxFileSize int64 `env:"BATCH_MAX_FILE_SIZE" default:"104857600"`

	// MaxUploadSize caps a whole multi-file request body in bytes (default: 500MB)
	MaxUploadSize int64 `env:"BATCH_MAX_UPLOAD_SIZE" default:"524288000"`

	// Encoding of CSV exports (default: utf-8)
	Encoding string `env:"BATCH_ENCODING" default:"utf-8"`

	// DropDir is scanned by sync-dir when no directory argument is given
	DropDir string `env:"BATCH_DROP_DIR"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// SyncLimit is requests per minute for sync endpoints (default: 10)
	SyncLimit int `env:"RATE_LIMIT_SYNC" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enables X-API-Key authentication on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
