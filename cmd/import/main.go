package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/EmpoweredVote/nyc311/internal/config"
	"github.com/EmpoweredVote/nyc311/internal/db"
	"github.com/EmpoweredVote/nyc311/internal/importer"
	"github.com/EmpoweredVote/nyc311/internal/logger"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load(".env.local")
	cfg := config.LoadFromEnv()

	var (
		csvPath   = flag.String("csv", "", "path to the 311 CSV export")
		wipe      = flag.Bool("wipe", false, "DANGER: truncates all complaint tables before importing")
		confirm   = flag.Bool("confirm", false, "required together with -wipe")
		dryRun    = flag.Bool("dry-run", false, "validate and resolve without writing to the database")
		batchSize = flag.Int("batch-size", cfg.BatchSize, "records per committed batch")
		workers   = flag.Int("workers", cfg.Workers, "parallel batch workers")
		showErrs  = flag.Int("errors", 10, "number of record errors to print")
	)
	flag.Parse()

	if *csvPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	cfg.BatchSize, cfg.Workers = *batchSize, *workers

	if *dryRun && cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "dry-run"
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatal(err)
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var d *gorm.DB
	if !*dryRun {
		d, err = db.Open(cfg, lg)
		if err != nil {
			lg.Fatal("Failed to connect to database", "error", err)
		}
		defer db.Close(d)
	}

	report, err := importer.Run(ctx, d, cfg, importer.Options{
		CSVPath: *csvPath,
		Wipe:    *wipe,
		Confirm: *confirm,
		DryRun:  *dryRun,
	}, lg)
	if report != nil {
		fmt.Print(report.Summary(*showErrs))
	}
	if err != nil {
		lg.Fatal("import failed", "error", err)
	}
}
