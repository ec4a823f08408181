package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Backend and mode names accepted from the environment.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"

	DriveGoogle = "google"
	DriveMemory = "memory"

	SyncInline = "inline"
	SyncQueue  = "queue"
)

type Config struct {
	// HTTP Server
	Port        string
	CORSOrigins []string

	// Settings storage
	DataBackend  string
	SQLiteDBPath string
	PostgresURL  string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	SyncMode     string

	// Google Drive
	DriveBackend       string
	GoogleClientID     string
	GoogleClientSecret string
	GoogleAPIKey       string
	OAuthRedirectPort  int
	OAuthTimeout       time.Duration

	// Receipt cache
	ReceiptCacheSize int
	ReceiptCacheTTL  time.Duration

	LogLevel       string
	EditPassphrase string
}

func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8081"),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:5173"}),

		DataBackend:  getEnv("DATA_BACKEND", BackendSQLite),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/sitecost.db"),
		PostgresURL:  getEnv("POSTGRES_URL", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "sitecost"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "snapshot_push"),
		SyncMode:     getEnv("SYNC_MODE", SyncInline),

		DriveBackend:       getEnv("DRIVE_BACKEND", DriveGoogle),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleAPIKey:       getEnv("GOOGLE_API_KEY", ""),
		OAuthRedirectPort:  getEnvInt("OAUTH_REDIRECT_PORT", 8085),
		OAuthTimeout:       getEnvDuration("OAUTH_TIMEOUT", 5*time.Minute),

		ReceiptCacheSize: getEnvInt("RECEIPT_CACHE_SIZE", 128),
		ReceiptCacheTTL:  getEnvDuration("RECEIPT_CACHE_TTL", 30*time.Minute),

		LogLevel:       getEnv("LOG_LEVEL", "info"),
		EditPassphrase: os.Getenv("EDIT_PASSPHRASE"),
	}
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{BackendMemory, BackendSQLite, BackendPostgres}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	case BackendPostgres:
		if c.PostgresURL == "" {
			errors = append(errors, "POSTGRES_URL is required when using postgres backend")
		} else if u, err := url.Parse(c.PostgresURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			errors = append(errors, fmt.Sprintf("invalid POSTGRES_URL '%s': must be a postgres:// URL", c.PostgresURL))
		}
	}

	validModes := []string{SyncInline, SyncQueue}
	if !slices.Contains(validModes, c.SyncMode) {
		errors = append(errors, fmt.Sprintf("invalid sync mode '%s': must be one of %v", c.SyncMode, validModes))
	}
	if c.SyncMode == SyncQueue && c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required when SYNC_MODE=queue")
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	validDrives := []string{DriveGoogle, DriveMemory}
	if !slices.Contains(validDrives, c.DriveBackend) {
		errors = append(errors, fmt.Sprintf("invalid drive backend '%s': must be one of %v", c.DriveBackend, validDrives))
	}
	if c.OAuthRedirectPort < 0 || c.OAuthRedirectPort > 65535 {
		errors = append(errors, fmt.Sprintf("invalid OAuth redirect port %d: must be between 0 and 65535", c.OAuthRedirectPort))
	}
	if c.OAuthTimeout < 10*time.Second {
		errors = append(errors, fmt.Sprintf("invalid OAuth timeout %v: must be at least 10 seconds", c.OAuthTimeout))
	}

	if c.ReceiptCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid receipt cache size %d: must be at least 1", c.ReceiptCacheSize))
	}
	if c.ReceiptCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid receipt cache TTL %v: must be at least 1 second", c.ReceiptCacheTTL))
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// RedirectAddr is the loopback listen address for the OAuth redirect.
func (c *Config) RedirectAddr() string {
	return "localhost:" + strconv.Itoa(c.OAuthRedirectPort)
}

// ParseLevel maps LOG_LEVEL values to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level '%s': must be debug, info, warn or error", s)
	}
	return lvl, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
