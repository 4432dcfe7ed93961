package benchmark_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/EmpoweredVote/nyc311/internal/benchmark"
	"github.com/EmpoweredVote/nyc311/internal/dimension"
	"github.com/EmpoweredVote/nyc311/internal/importer"
	"github.com/EmpoweredVote/nyc311/internal/logger"
	"github.com/EmpoweredVote/nyc311/internal/schema"
	"github.com/EmpoweredVote/nyc311/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = "nyc311_benchmark_test"

func seed(t *testing.T, ctx context.Context) {
	t.Helper()
	d := testutil.DB(t, testSchema)
	mgr := schema.NewManager(d, testSchema, logger.Nop())
	require.NoError(t, mgr.Ensure(ctx))
	require.NoError(t, mgr.Truncate(ctx))

	boroughs := []string{"BRONX", "BROOKLYN", "MANHATTAN", "QUEENS", "STATEN ISLAND"}
	types := []string{"Noise - Residential", "Illegal Parking", "HEAT/HOT WATER", "Blocked Driveway"}
	statuses := []string{"Open", "Closed", "In Progress"}
	var records []importer.RawComplaint
	for i := 0; i < 600; i++ {
		created := time.Date(2025, 1, 1+i%40, i%24, 0, 0, 0, time.UTC)
		rec := importer.RawComplaint{
			UniqueKey:     fmt.Sprintf("B%05d", i),
			CreatedDate:   created.Format(time.DateTime),
			Status:        statuses[i%len(statuses)],
			ComplaintType: types[i%len(types)],
			Borough:       boroughs[i%len(boroughs)],
			Zip:           fmt.Sprintf("1%04d", i%37),
		}
		if rec.Status == "Closed" {
			rec.ClosedDate = created.Add(time.Duration(i%72) * time.Hour).Format(time.DateTime)
		}
		records = append(records, rec)
	}
	l := importer.NewLoader(
		dimension.NewResolver(dimension.NewGormStore(d), logger.Nop()),
		importer.NewGormFactStore(d),
		logger.Nop(),
		importer.LoaderOptions{BatchSize: 100, Workers: 2},
	)
	report, err := l.Load(ctx, importer.NewSliceSource(records...))
	require.NoError(t, err)
	require.Equal(t, len(records), report.Inserted)
}

func TestPostgresRunComparison(t *testing.T) {
	ctx := context.Background()
	seed(t, ctx)

	exec, err := benchmark.Connect(ctx, testutil.Config(t, testSchema))
	require.NoError(t, err)
	defer exec.Close(ctx)

	defs, err := benchmark.DefaultDefinitions()
	require.NoError(t, err)

	h := benchmark.NewHarness(exec, 10*time.Second, logger.Nop())
	report, err := h.RunComparison(ctx, defs.Queries, defs.Indexes)
	require.NoError(t, err)

	require.Len(t, report.Comparisons, len(defs.Queries))
	for _, c := range report.Comparisons {
		assert.False(t, c.Failed, "%s: %s", c.QueryID, c.Error)
		assert.Equal(t, c.BaselineRows, c.IndexedRows, c.QueryID)
	}
	for _, ix := range report.Indexes {
		assert.Empty(t, ix.Error, ix.Name)
	}
	var present []string
	for _, ix := range report.Present {
		present = append(present, ix.Name)
	}
	for _, ix := range defs.Indexes {
		assert.Contains(t, present, ix.Name)
	}

	// Repeatable: a second run drops and recreates the same set.
	again, err := h.RunComparison(ctx, defs.Queries, defs.Indexes)
	require.NoError(t, err)
	assert.Len(t, again.Dropped, len(defs.Indexes))
	for i := range again.Comparisons {
		assert.Equal(t, report.Comparisons[i].BaselineRows, again.Comparisons[i].BaselineRows)
	}

	store := benchmark.NewReportStore(testutil.DB(t, testSchema))
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Save(ctx, again))

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, again.RunID, latest.RunID)

	got, err := store.Get(ctx, report.RunID)
	assert.ErrorIs(t, err, benchmark.ErrReportNotFound)
	assert.Nil(t, got)
}

func TestPostgresQueryTimeout(t *testing.T) {
	ctx := context.Background()
	exec, err := benchmark.Connect(ctx, testutil.Config(t, testSchema))
	require.NoError(t, err)
	defer exec.Close(ctx)

	_, err = exec.Explain(ctx, "SELECT pg_sleep(2)", 100*time.Millisecond)
	require.ErrorIs(t, err, benchmark.ErrQueryTimeout)

	// The connection survives the cancelled statement.
	stats, err := exec.Explain(ctx, "SELECT 1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.RowsReturned)
}
