// Package testutil wires Postgres integration tests. Tests skip unless
// TEST_DATABASE_URL is set. Each package passes its own schema name because
// `go test ./...` runs packages in parallel.
package testutil

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/EmpoweredVote/nyc311/internal/config"
	"github.com/EmpoweredVote/nyc311/internal/db"
	"github.com/EmpoweredVote/nyc311/internal/logger"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

var (
	mu      sync.Mutex
	handles = map[string]*gorm.DB{}
	envOnce sync.Once
)

// Config returns the configuration integration tests connect with.
func Config(tb testing.TB, schema string) config.Config {
	tb.Helper()
	// Packages live two directories below the module root.
	envOnce.Do(func() { _ = godotenv.Load("../../.env.local") })
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		tb.Skip("set TEST_DATABASE_URL to run Postgres integration tests")
	}
	return config.Config{
		DatabaseURL:   dsn,
		Schema:        schema,
		BatchSize:     config.DefaultBatchSize,
		Workers:       4,
		QueryTimeout:  10 * time.Second,
		SlowThreshold: time.Second,
	}
}

// DB returns a gorm handle whose search_path is pinned to schema.
func DB(tb testing.TB, schema string) *gorm.DB {
	tb.Helper()
	cfg := Config(tb, schema)

	mu.Lock()
	defer mu.Unlock()
	if d, ok := handles[schema]; ok {
		return d
	}
	d, err := db.Open(cfg, logger.Nop())
	if err != nil {
		tb.Fatalf("failed to open test db: %v", err)
	}
	handles[schema] = d
	return d
}
