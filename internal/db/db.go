package db

import (
	"fmt"
	"log"
	"time"

	"github.com/EmpoweredVote/nyc311/internal/config"
	"github.com/EmpoweredVote/nyc311/internal/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// ConnConfig parses dsn and pins search_path to schema so unqualified table
// names resolve to the normalized tables.
func ConnConfig(dsn, schema string) (*pgx.ConnConfig, error) {
	cc, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cc.RuntimeParams["search_path"] = schema
	}
	return cc, nil
}

// Open returns a gorm handle backed by the pgx stdlib driver.
func Open(cfg config.Config, lg *logger.Logger) (*gorm.DB, error) {
	cc, err := ConnConfig(cfg.DatabaseURL, cfg.Schema)
	if err != nil {
		return nil, err
	}

	// Surface slow queries; the benchmark harness has its own timing.
	gl := gormlogger.New(lg, gormlogger.Config{
		SlowThreshold:             cfg.SlowThreshold,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})

	sqlDB := stdlib.OpenDB(*cc)
	d, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 gl,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Import workers each hold one connection plus short dimension upserts.
	sqlDB.SetMaxOpenConns(cfg.Workers*2 + 4)
	sqlDB.SetMaxIdleConns(cfg.Workers + 2)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return d, nil
}

// Connect opens the shared handle used by the HTTP server and exits on failure.
func Connect(cfg config.Config, lg *logger.Logger) {
	d, err := Open(cfg, lg)
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}
	DB = d
	lg.Info("Connected to database", "schema", cfg.Schema)
}

func Close(d *gorm.DB) {
	if d == nil {
		return
	}
	if sqlDB, err := d.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
