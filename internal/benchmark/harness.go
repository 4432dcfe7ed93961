package benchmark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/EmpoweredVote/nyc311/internal/logger"
	"github.com/EmpoweredVote/nyc311/internal/metrics"
	"github.com/EmpoweredVote/nyc311/internal/schema"
	"github.com/google/uuid"
)

var (
	// ErrBenchmarkExecution marks a query that failed or timed out. Only its
	// comparison is failed; the run continues.
	ErrBenchmarkExecution = errors.New("benchmark execution error")
	// ErrBenchmarkSetup is fatal: counts, index drops or statistics refresh failed.
	ErrBenchmarkSetup = errors.New("benchmark setup error")
	// ErrDatasetMutated means table counts changed between the phases, so no
	// comparison in the report can be trusted.
	ErrDatasetMutated = errors.New("dataset changed between phases")
)

const (
	PhaseBaseline = "baseline"
	PhaseIndexed  = "indexed"
)

type PhaseResult struct {
	Phase   string    `json:"phase"`
	QueryID string    `json:"query_id"`
	Stats   PlanStats `json:"stats"`
	Error   string    `json:"error,omitempty"`
}

func (p PhaseResult) Failed() bool { return p.Error != "" }

// Comparison pairs one query's two phases. Delta percentages are negative
// when the indexed run is cheaper.
type Comparison struct {
	QueryID      string  `json:"query_id"`
	Description  string  `json:"description,omitempty"`
	BaselineCost float64 `json:"baseline_cost"`
	BaselineTime float64 `json:"baseline_time_ms"`
	IndexedCost  float64 `json:"indexed_cost"`
	IndexedTime  float64 `json:"indexed_time_ms"`
	DeltaPct     float64 `json:"delta_pct"`
	CostDeltaPct float64 `json:"cost_delta_pct"`
	BaselineRows int64   `json:"baseline_rows"`
	IndexedRows  int64   `json:"indexed_rows"`
	Failed       bool    `json:"failed"`
	Error        string  `json:"error,omitempty"`
}

type IndexResult struct {
	Name    string `json:"name"`
	Table   string `json:"table"`
	Created bool   `json:"created"`
	Error   string `json:"error,omitempty"`
}

type ComparisonReport struct {
	RunID          string             `json:"run_id"`
	StartedAt      time.Time          `json:"started_at"`
	FinishedAt     time.Time          `json:"finished_at"`
	CountsBefore   schema.TableCounts `json:"counts_before"`
	CountsAfter    schema.TableCounts `json:"counts_after"`
	Dropped        []string           `json:"dropped_indexes,omitempty"`
	Indexes        []IndexResult      `json:"indexes"`
	Present        []IndexInfo        `json:"present_indexes,omitempty"`
	Results        []PhaseResult      `json:"results"`
	Comparisons    []Comparison       `json:"comparisons"`
	DatasetMutated bool               `json:"dataset_mutated"`
}

// FailedCount is the number of comparisons marked failed.
func (r *ComparisonReport) FailedCount() int {
	n := 0
	for _, c := range r.Comparisons {
		if c.Failed {
			n++
		}
	}
	return n
}

type Harness struct {
	exec    Executor
	timeout time.Duration
	log     *logger.Logger
	now     func() time.Time
}

type Option func(*Harness)

func WithClock(now func() time.Time) Option {
	return func(h *Harness) { h.now = now }
}

// NewHarness returns a harness that gives every query at most timeout
// (zero disables the limit).
func NewHarness(exec Executor, timeout time.Duration, log *logger.Logger, opts ...Option) *Harness {
	h := &Harness{exec: exec, timeout: timeout, log: log.With("component", "benchmark"), now: time.Now}
	for _, o := range opts {
		o(h)
	}
	return h
}

// RunComparison measures queries without secondary indexes, applies indexes,
// and measures them again in the same order. Per-query and per-index failures
// are recorded in the report. Setup failures and a dataset that changed
// between phases are returned as errors; the report is returned as far as it
// got.
func (h *Harness) RunComparison(ctx context.Context, queries []Query, indexes []Index) (*ComparisonReport, error) {
	if err := (Definitions{Queries: queries, Indexes: indexes}).Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBenchmarkSetup, err)
	}
	metrics.BenchmarkRuns.Add(1)

	report := &ComparisonReport{RunID: uuid.NewString(), StartedAt: h.now().UTC()}
	log := h.log.With("run_id", report.RunID)
	log.Info("benchmark started", "queries", len(queries), "indexes", len(indexes))

	before, err := h.exec.Counts(ctx)
	if err != nil {
		return report, fmt.Errorf("%w: %w", ErrBenchmarkSetup, err)
	}
	report.CountsBefore = before

	dropped, err := h.exec.DropSecondaryIndexes(ctx, schema.Tables)
	if err != nil {
		return report, fmt.Errorf("%w: %w", ErrBenchmarkSetup, err)
	}
	report.Dropped = dropped
	if len(dropped) > 0 {
		log.Info("dropped secondary indexes", "indexes", dropped)
	}
	if err := h.exec.Analyze(ctx, schema.Tables); err != nil {
		return report, fmt.Errorf("%w: %w", ErrBenchmarkSetup, err)
	}

	baseline, err := h.runPhase(ctx, PhaseBaseline, queries)
	report.Results = append(report.Results, baseline...)
	if err != nil {
		return report, err
	}

	for _, ix := range indexes {
		res := IndexResult{Name: ix.Name, Table: ix.Table}
		created, err := h.exec.CreateIndex(ctx, ix)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			res.Error = err.Error()
			log.Warn("index not applied", "index", ix.Name, "error", err)
		}
		res.Created = created
		report.Indexes = append(report.Indexes, res)
	}
	if err := h.exec.Analyze(ctx, schema.Tables); err != nil {
		return report, fmt.Errorf("%w: %w", ErrBenchmarkSetup, err)
	}
	if present, err := h.exec.ListIndexes(ctx, schema.Tables); err != nil {
		log.Warn("could not list indexes", "error", err)
	} else {
		report.Present = present
	}

	indexed, err := h.runPhase(ctx, PhaseIndexed, queries)
	report.Results = append(report.Results, indexed...)
	if err != nil {
		return report, err
	}

	after, err := h.exec.Counts(ctx)
	if err != nil {
		return report, fmt.Errorf("%w: %w", ErrBenchmarkSetup, err)
	}
	report.CountsAfter = after
	report.Comparisons = compare(queries, baseline, indexed)
	report.FinishedAt = h.now().UTC()

	if after != before {
		report.DatasetMutated = true
		for i := range report.Comparisons {
			c := &report.Comparisons[i]
			c.Failed = true
			if c.Error == "" {
				c.Error = ErrDatasetMutated.Error()
			}
		}
		log.Error("dataset changed between phases", "before", before.Total(), "after", after.Total())
		return report, fmt.Errorf("%w: %d rows before, %d after", ErrDatasetMutated, before.Total(), after.Total())
	}

	log.Info("benchmark finished", "failed", report.FailedCount(), "duration", report.FinishedAt.Sub(report.StartedAt))
	return report, nil
}

// runPhase executes queries in order. Only cancellation of ctx stops it.
func (h *Harness) runPhase(ctx context.Context, phase string, queries []Query) ([]PhaseResult, error) {
	out := make([]PhaseResult, 0, len(queries))
	for _, q := range queries {
		res := PhaseResult{Phase: phase, QueryID: q.ID}
		stats, err := h.explain(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			metrics.BenchmarkFailures.Add(1)
			res.Error = fmt.Errorf("%w: %s: %w", ErrBenchmarkExecution, q.ID, err).Error()
			h.log.Warn("query failed", "phase", phase, "query", q.ID, "error", err)
		} else {
			res.Stats = stats
			h.log.Debug("query measured", "phase", phase, "query", q.ID,
				"cost", stats.TotalCost, "ms", stats.ExecutionMs, "rows", stats.RowsReturned)
		}
		out = append(out, res)
	}
	return out, nil
}

// explain bounds a single query. The executor also enforces the timeout
// server side; the context deadline is a backstop with some slack.
func (h *Harness) explain(ctx context.Context, q Query) (PlanStats, error) {
	if h.timeout <= 0 {
		return h.exec.Explain(ctx, q.SQL, 0)
	}
	qctx, cancel := context.WithTimeout(ctx, h.timeout+h.timeout/2)
	defer cancel()
	return h.exec.Explain(qctx, q.SQL, h.timeout)
}

func compare(queries []Query, baseline, indexed []PhaseResult) []Comparison {
	out := make([]Comparison, 0, len(queries))
	for i, q := range queries {
		b, x := baseline[i], indexed[i]
		c := Comparison{
			QueryID:      q.ID,
			Description:  q.Description,
			BaselineCost: b.Stats.TotalCost,
			BaselineTime: b.Stats.ExecutionMs,
			IndexedCost:  x.Stats.TotalCost,
			IndexedTime:  x.Stats.ExecutionMs,
			BaselineRows: b.Stats.RowsReturned,
			IndexedRows:  x.Stats.RowsReturned,
		}
		switch {
		case b.Failed():
			c.Failed, c.Error = true, b.Error
		case x.Failed():
			c.Failed, c.Error = true, x.Error
		case b.Stats.RowsReturned != x.Stats.RowsReturned:
			c.Failed = true
			c.Error = fmt.Sprintf("row count changed: %d baseline, %d indexed", b.Stats.RowsReturned, x.Stats.RowsReturned)
		default:
			c.DeltaPct = deltaPct(c.BaselineTime, c.IndexedTime)
			c.CostDeltaPct = deltaPct(c.BaselineCost, c.IndexedCost)
		}
		out = append(out, c)
	}
	return out
}

func deltaPct(before, after float64) float64 {
	if before == 0 {
		return 0
	}
	return (after - before) / before * 100
}
