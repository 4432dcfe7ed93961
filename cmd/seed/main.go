package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/EmpoweredVote/nyc311/internal/sample"
)

// CLI flags
var (
	outPath = flag.String("out", "", "Path of the CSV to write (required)")
	rows    = flag.Int("rows", 100_000, "Number of complaint rows")
	seed    = flag.Uint64("seed", 311, "Random seed; the same seed yields the same file")
	dirty   = flag.Float64("dirty", 0.02, "Share of rows with a defect the importer must skip or map")
)

func main() {
	flag.Parse()
	if *outPath == "" {
		fatalf("--out is required")
	}
	if *dirty < 0 || *dirty > 1 {
		fatalf("--dirty must be between 0 and 1")
	}

	f, err := os.Create(*outPath)
	if err != nil {
		fatalf("create: %v", err)
	}
	w := bufio.NewWriter(f)
	if err := sample.Write(w, sample.Options{Rows: *rows, Seed: *seed, DirtyRate: *dirty}); err != nil {
		fatalf("write: %v", err)
	}
	if err := w.Flush(); err != nil {
		fatalf("flush: %v", err)
	}
	if err := f.Close(); err != nil {
		fatalf("close: %v", err)
	}
	fmt.Printf("Wrote %d rows to %s\n", *rows, *outPath)
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, "ERROR: "+format+"\n", a...)
	os.Exit(1)
}
