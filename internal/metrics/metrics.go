// Package metrics exposes runtime counters via expvar.
package metrics

import "expvar"

var (
	RecordsRead        = expvar.NewInt("records_read")
	RecordsInserted    = expvar.NewInt("records_inserted")
	RecordsSkipped     = expvar.NewInt("records_skipped")
	RecordsDuplicate   = expvar.NewInt("records_duplicate")
	BatchesCommitted   = expvar.NewInt("batches_committed")
	BatchesFailed      = expvar.NewInt("batches_failed")
	DimensionsCreated  = expvar.NewInt("dimensions_created")
	DimensionCacheHits = expvar.NewInt("dimension_cache_hits")
	ResolutionRaces    = expvar.NewInt("resolution_races")
	BenchmarkRuns      = expvar.NewInt("benchmark_runs")
	BenchmarkFailures  = expvar.NewInt("benchmark_query_failures")
)
