package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/EmpoweredVote/nyc311/internal/benchmark"
	"github.com/EmpoweredVote/nyc311/internal/config"
	"github.com/EmpoweredVote/nyc311/internal/db"
	"github.com/EmpoweredVote/nyc311/internal/logger"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env.local")
	cfg := config.LoadFromEnv()

	var (
		definitions = flag.String("definitions", cfg.DefinitionsPath, "YAML file with queries and indexes (default: built-in set)")
		timeout     = flag.Duration("timeout", cfg.QueryTimeout, "per-query timeout")
		asJSON      = flag.Bool("json", false, "print the full report as JSON")
		noSave      = flag.Bool("no-save", false, "do not persist the report to benchmark_results")
	)
	flag.Parse()
	cfg.QueryTimeout = *timeout

	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatal(err)
	}
	defer lg.Sync()

	defs, err := benchmark.LoadDefinitions(*definitions)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exec, err := benchmark.Connect(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer exec.Close(context.Background())

	h := benchmark.NewHarness(exec, cfg.QueryTimeout, lg)
	report, runErr := h.RunComparison(ctx, defs.Queries, defs.Indexes)
	if report == nil {
		log.Fatal(runErr)
	}

	if !*noSave && !report.FinishedAt.IsZero() {
		d, err := db.Open(cfg, lg)
		if err != nil {
			lg.Error("report not saved", "error", err)
		} else {
			store := benchmark.NewReportStore(d)
			if err := store.Migrate(ctx); err != nil {
				lg.Error("report not saved", "error", err)
			} else if err := store.Save(ctx, report); err != nil {
				lg.Error("report not saved", "error", err)
			}
			db.Close(d)
		}
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			log.Fatal(err)
		}
	} else {
		printTable(os.Stdout, report)
	}

	if runErr != nil {
		if errors.Is(runErr, benchmark.ErrDatasetMutated) {
			lg.Error("comparison invalid: the dataset changed while benchmarking")
		}
		lg.Fatal("benchmark failed", "error", runErr)
	}
}

func printTable(out io.Writer, r *benchmark.ComparisonReport) {
	fmt.Fprintf(out, "Run %s\n\n", r.RunID)
	for _, ix := range r.Indexes {
		status := "created"
		switch {
		case ix.Error != "":
			status = "FAILED: " + ix.Error
		case !ix.Created:
			status = "already present"
		}
		fmt.Fprintf(out, "  index %-45s %s\n", ix.Name, status)
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "query\tbase cost\tbase ms\tidx cost\tidx ms\tdelta %\trows\t")
	for _, c := range r.Comparisons {
		if c.Failed {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\tFAILED: %s\t\n", c.QueryID, c.Error)
			continue
		}
		fmt.Fprintf(w, "%s\t%.2f\t%.3f\t%.2f\t%.3f\t%+.1f\t%d\t\n",
			c.QueryID, c.BaselineCost, c.BaselineTime, c.IndexedCost, c.IndexedTime, c.DeltaPct, c.BaselineRows)
	}
	w.Flush()
}
