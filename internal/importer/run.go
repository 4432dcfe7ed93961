package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/EmpoweredVote/nyc311/internal/config"
	"github.com/EmpoweredVote/nyc311/internal/dimension"
	"github.com/EmpoweredVote/nyc311/internal/logger"
	"github.com/EmpoweredVote/nyc311/internal/schema"
	"gorm.io/gorm"
)

var ErrWipeNotConfirmed = errors.New("refusing to wipe: pass Confirm to truncate complaint tables")

type Options struct {
	CSVPath string
	// Wipe truncates every table before loading. Requires Confirm.
	Wipe    bool
	Confirm bool
	// DryRun validates and resolves against in-memory stores; nothing is written.
	DryRun bool
}

// Run ensures the schema, optionally wipes it, and imports one CSV file.
// d may be nil for a dry run.
func Run(ctx context.Context, d *gorm.DB, cfg config.Config, opts Options, log *logger.Logger) (*LoadReport, error) {
	if opts.Wipe && !opts.Confirm {
		return nil, ErrWipeNotConfirmed
	}
	src, err := OpenCSV(opts.CSVPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.CSVPath, err)
	}
	defer src.Close()

	var (
		store dimension.Store
		facts FactStore
	)
	if opts.DryRun {
		log.Info("dry run: nothing will be written", "csv", opts.CSVPath)
		store = dimension.NewMemStore()
		facts = NewMemFactStore()
	} else {
		if d == nil {
			return nil, errors.New("database handle required")
		}
		mgr := schema.NewManager(d, cfg.Schema, log)
		if err := mgr.Ensure(ctx); err != nil {
			return nil, err
		}
		if opts.Wipe {
			log.Warn("wiping complaint tables", "schema", cfg.Schema)
			if err := mgr.Truncate(ctx); err != nil {
				return nil, err
			}
		}
		store = dimension.NewGormStore(d)
		facts = NewGormFactStore(d)
	}

	resolver := dimension.NewResolver(store, log)
	loader := NewLoader(resolver, facts, log, LoaderOptions{
		BatchSize: cfg.BatchSize,
		Workers:   cfg.Workers,
	})
	return loader.Load(ctx, src)
}
