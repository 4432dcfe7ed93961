package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/EmpoweredVote/nyc311/internal/api"
	"github.com/EmpoweredVote/nyc311/internal/benchmark"
	"github.com/EmpoweredVote/nyc311/internal/logger"
	"github.com/EmpoweredVote/nyc311/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStats struct {
	counts schema.TableCounts
	err    error
}

func (f fakeStats) Counts(context.Context) (schema.TableCounts, error) { return f.counts, f.err }

type fakeReports struct {
	reports   map[string]*benchmark.ComparisonReport
	latest    string
	lastLimit int
}

func (f *fakeReports) List(_ context.Context, limit int) ([]benchmark.ReportRow, error) {
	f.lastLimit = limit
	var out []benchmark.ReportRow
	for id := range f.reports {
		out = append(out, benchmark.ReportRow{RunID: id})
	}
	return out, nil
}

func (f *fakeReports) Get(_ context.Context, runID string) (*benchmark.ComparisonReport, error) {
	r, ok := f.reports[runID]
	if !ok {
		return nil, benchmark.ErrReportNotFound
	}
	return r, nil
}

func (f *fakeReports) Latest(ctx context.Context) (*benchmark.ComparisonReport, error) {
	if f.latest == "" {
		return nil, benchmark.ErrReportNotFound
	}
	return f.Get(ctx, f.latest)
}

const runID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

func newRouter(stats api.StatsSource, reports api.ReportSource) http.Handler {
	return api.NewServer(stats, reports, logger.Nop()).SetupRoutes([]string{"http://localhost:5173"})
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRoot(t *testing.T) {
	rec := get(t, newRouter(fakeStats{}, &fakeReports{}), "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Server is up!")
}

func TestStats(t *testing.T) {
	stats := fakeStats{counts: schema.TableCounts{Statuses: 3, ComplaintTypes: 12, Locations: 40, Complaints: 1000}}
	rec := get(t, newRouter(stats, &fakeReports{}), "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"statuses":3,"complaint_types":12,"locations":40,"complaints":1000,"total":1055}`, rec.Body.String())

	rec = get(t, newRouter(fakeStats{err: errors.New("down")}, &fakeReports{}), "/stats")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestReports(t *testing.T) {
	reports := &fakeReports{
		reports: map[string]*benchmark.ComparisonReport{
			runID: {RunID: runID, Comparisons: []benchmark.Comparison{{QueryID: "q1", DeltaPct: -50}}},
		},
		latest: runID,
	}
	h := newRouter(fakeStats{}, reports)

	rec := get(t, h, "/reports/"+runID)
	require.Equal(t, http.StatusOK, rec.Code)
	var got benchmark.ComparisonReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, runID, got.RunID)
	require.Len(t, got.Comparisons, 1)
	assert.InDelta(t, -50.0, got.Comparisons[0].DeltaPct, 1e-9)

	rec = get(t, h, "/reports/latest")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, h, "/reports?limit=5")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, reports.lastLimit)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/reports?limit=0").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/reports/not-a-uuid").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/reports/00000000-0000-0000-0000-000000000000").Code)
}

func TestReportsEmpty(t *testing.T) {
	h := newRouter(fakeStats{}, &fakeReports{})

	rec := get(t, h, "/reports")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, get(t, h, "/reports/latest").Code)
}

func TestDebugVars(t *testing.T) {
	rec := get(t, newRouter(fakeStats{}, &fakeReports{}), "/debug/vars")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "records_inserted")
}
