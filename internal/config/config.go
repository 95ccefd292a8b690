// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing origin of the media API.
	BaseURL string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// MigrationsPath is the directory holding golang-migrate SQL files.
	MigrationsPath string

	// Database holds MariaDB connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings.
	Redis RedisConfig

	// Drive holds cloud-drive provider settings.
	Drive DriveConfig

	// Upload holds file upload settings.
	Upload UploadConfig

	// Media holds staleness and pacing settings shared by server and client.
	Media MediaConfig

	// apiOverride is set from ATLAS_API_URL for operator inspection only.
	apiOverride string
}

// DatabaseConfig holds MariaDB connection parameters. If DATABASE_URL is
// set, it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	Host string

	User     string
	Password string
	Name     string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string. The driver's
// Config.FormatDSN handles special characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	cfg.MultiStatements = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string
}

// DriveConfig holds the S3-compatible drive settings.
type DriveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool

	// LinkTTL is the lifetime of presigned file links issued by the provider.
	LinkTTL time.Duration

	// ThumbnailTTL is the lifetime of presigned preview links.
	ThumbnailTTL time.Duration
}

// UploadConfig holds file upload settings.
type UploadConfig struct {
	// MaxSize is the maximum upload file size in bytes.
	MaxSize int64
}

// MediaConfig holds the timing knobs of the media layer.
type MediaConfig struct {
	// LinkStaleAfter is how long after an attachment's last update a signed
	// file link is considered expired.
	LinkStaleAfter time.Duration

	// ThumbnailStaleAfter is how long a generated preview stays valid.
	ThumbnailStaleAfter time.Duration

	// PreviewDelay is the wait before the single post-upload preview request.
	PreviewDelay time.Duration

	// BulkInterval is the pause between per-item calls in bulk refreshes.
	BulkInterval time.Duration

	// SearchDebounce is the quiet period before a media search is issued.
	SearchDebounce time.Duration

	// ProxyCacheTTL is how long proxied preview bytes stay in Redis.
	ProxyCacheTTL time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{
		Env:            getEnv("ENV", "development"),
		Port:           getEnvInt("PORT", 8080),
		BaseURL:        strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/"),
		LogLevel:       getEnv("LOG_LEVEL", "debug"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "db/migrations"),
		apiOverride:    strings.TrimRight(getEnv("ATLAS_API_URL", ""), "/"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "atlas"),
			Password:        getEnv("DB_PASSWORD", "atlas"),
			Name:            getEnv("DB_NAME", "atlas"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},

		Drive: DriveConfig{
			Endpoint:     getEnv("DRIVE_ENDPOINT", "localhost:9000"),
			AccessKey:    getEnv("DRIVE_ACCESS_KEY", ""),
			SecretKey:    getEnv("DRIVE_SECRET_KEY", ""),
			Bucket:       getEnv("DRIVE_BUCKET", "atlas-media"),
			Region:       getEnv("DRIVE_REGION", "us-east-1"),
			UseSSL:       getEnvBool("DRIVE_USE_SSL", false),
			LinkTTL:      getEnvDuration("DRIVE_LINK_TTL", 24*time.Hour),
			ThumbnailTTL: getEnvDuration("DRIVE_THUMBNAIL_TTL", 6*time.Hour),
		},

		Upload: UploadConfig{
			MaxSize: getEnvInt64("MAX_UPLOAD_SIZE", 200*1024*1024), // 200MB, video included
		},

		Media: MediaConfig{
			LinkStaleAfter:      getEnvDuration("MEDIA_LINK_STALE_AFTER", 12*time.Hour),
			ThumbnailStaleAfter: getEnvDuration("MEDIA_THUMBNAIL_STALE_AFTER", 3*time.Hour),
			PreviewDelay:        getEnvDuration("MEDIA_PREVIEW_DELAY", 3*time.Second),
			BulkInterval:        getEnvDuration("MEDIA_BULK_INTERVAL", 500*time.Millisecond),
			SearchDebounce:      getEnvDuration("MEDIA_SEARCH_DEBOUNCE", 500*time.Millisecond),
			ProxyCacheTTL:       getEnvDuration("MEDIA_PROXY_CACHE_TTL", 10*time.Minute),
		},
	}

	if cfg.IsProduction() {
		if cfg.Drive.AccessKey == "" || cfg.Drive.SecretKey == "" {
			return nil, fmt.Errorf("DRIVE_ACCESS_KEY and DRIVE_SECRET_KEY are required in production")
		}
	}

	// The link threshold must stay looser than the thumbnail threshold;
	// previews are cheaper to regenerate and break more visibly.
	if cfg.Media.ThumbnailStaleAfter > cfg.Media.LinkStaleAfter {
		return nil, fmt.Errorf("MEDIA_THUMBNAIL_STALE_AFTER (%s) must not exceed MEDIA_LINK_STALE_AFTER (%s)",
			cfg.Media.ThumbnailStaleAfter, cfg.Media.LinkStaleAfter)
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// IsProduction returns true for "production"/"prod" in any case.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}

// APIBaseURL returns the origin clients use for the media API. It is chosen
// by environment; ATLAS_API_URL exists only so operators can point the CLI
// at another deployment.
func (c *Config) APIBaseURL() string {
	if c.apiOverride != "" {
		return c.apiOverride
	}
	if c.IsDevelopment() {
		return fmt.Sprintf("http://localhost:%d", c.Port)
	}
	return c.BaseURL
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvInt64 reads an int64 env var or returns the default.
func getEnvInt64(key string, defaultVal int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvBool reads a boolean env var ("true", "1", ...) or returns the default.
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "12h") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
