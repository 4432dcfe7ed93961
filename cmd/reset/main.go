package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/EmpoweredVote/nyc311/internal/config"
	"github.com/EmpoweredVote/nyc311/internal/db"
	"github.com/EmpoweredVote/nyc311/internal/logger"
	"github.com/EmpoweredVote/nyc311/internal/schema"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env.local")

	confirm := flag.Bool("confirm", false, "DANGER: drops and recreates statuses, complaint_types, locations and complaints")
	flag.Parse()

	if !*confirm {
		fmt.Fprintln(os.Stderr, "refusing to reset without -confirm (all complaint data will be lost)")
		os.Exit(2)
	}

	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatal(err)
	}
	defer lg.Sync()

	d, err := db.Open(cfg, lg)
	if err != nil {
		log.Fatalf("DB connection error: %v", err)
	}
	defer db.Close(d)

	ctx := context.Background()
	mgr := schema.NewManager(d, cfg.Schema, lg)
	if err := mgr.Reset(ctx); err != nil {
		log.Fatalf("Reset failed: %v", err)
	}
	counts, err := mgr.Counts(ctx)
	if err != nil {
		log.Fatalf("Count failed: %v", err)
	}

	fmt.Printf("✓ Schema %q reset (rows remaining: %d)\n", cfg.Schema, counts.Total())
}
