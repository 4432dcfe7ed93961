package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is empty")
	ErrInvalidBatchSize   = errors.New("IMPORT_BATCH_SIZE must be positive")
	ErrInvalidWorkers     = errors.New("IMPORT_WORKERS must be positive")
	ErrInvalidTimeout     = errors.New("BENCH_QUERY_TIMEOUT must be positive")
)

// Defaults mirror the original tooling (batches of 100 rows, port 5050).
const (
	DefaultSchema        = "public"
	DefaultBatchSize     = 100
	DefaultWorkers       = 4
	DefaultQueryTimeout  = 30 * time.Second
	DefaultSlowThreshold = 100 * time.Millisecond
	DefaultPort          = "5050"
)

// DefaultOrigins are the local dashboard dev servers.
var DefaultOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// Config holds runtime configuration shared by the server and the cmd tools.
type Config struct {
	DatabaseURL string
	// Postgres schema (namespace) holding the four tables.
	Schema string

	BatchSize int
	Workers   int

	QueryTimeout time.Duration
	// Optional YAML file overriding the embedded query/index definitions.
	DefinitionsPath string

	LogMode       string
	SlowThreshold time.Duration
	Port          string

	// Origins allowed to call the HTTP API from a browser.
	AllowedOrigins []string
}

// LoadFromEnv loads configuration from environment variables.
//
// Environment variables:
//   - DATABASE_URL: Postgres DSN (required)
//   - DB_SCHEMA: schema for the normalized tables (default: public)
//   - IMPORT_BATCH_SIZE: records per committed batch (default: 100)
//   - IMPORT_WORKERS: parallel batch workers (default: 4)
//   - BENCH_QUERY_TIMEOUT: per-query timeout, Go duration (default: 30s)
//   - BENCH_DEFINITIONS: path to a query/index YAML file (default: embedded set)
//   - LOG_MODE: "dev" or "prod" (default: dev)
//   - DB_SLOW_THRESHOLD: gorm slow query threshold (default: 100ms)
//   - PORT: HTTP port (default: 5050)
//   - CORS_ORIGINS: comma-separated browser origins (default: local dashboard)
//
// Malformed numeric values are reported by Validate rather than silently defaulted.
func LoadFromEnv() Config {
	cfg := Config{
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Schema:          envOr("DB_SCHEMA", DefaultSchema),
		BatchSize:       envInt("IMPORT_BATCH_SIZE", DefaultBatchSize),
		Workers:         envInt("IMPORT_WORKERS", DefaultWorkers),
		QueryTimeout:    envDuration("BENCH_QUERY_TIMEOUT", DefaultQueryTimeout),
		DefinitionsPath: strings.TrimSpace(os.Getenv("BENCH_DEFINITIONS")),
		LogMode:         envOr("LOG_MODE", "dev"),
		SlowThreshold:   envDuration("DB_SLOW_THRESHOLD", DefaultSlowThreshold),
		Port:            envOr("PORT", DefaultPort),
		AllowedOrigins:  envList("CORS_ORIGINS", DefaultOrigins),
	}
	return cfg
}

// Validate checks that the configuration can be used to open a database and run jobs.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w (got %d)", ErrInvalidBatchSize, c.BatchSize)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w (got %d)", ErrInvalidWorkers, c.Workers)
	}
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("%w (got %s)", ErrInvalidTimeout, c.QueryTimeout)
	}
	return nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// envInt returns -1 for unparseable input so Validate can reject it.
func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return -1
	}
	return d
}

func envList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
