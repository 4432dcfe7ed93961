package benchmark

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Trimmed output of EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON) for a borough
// aggregate over a hash join.
const explainFixture = `[
  {
    "Plan": {
      "Node Type": "Sort",
      "Startup Cost": 2118.42,
      "Total Cost": 2118.43,
      "Plan Rows": 6,
      "Actual Rows": 6,
      "Actual Loops": 1,
      "Shared Hit Blocks": 412,
      "Shared Read Blocks": 35,
      "Plans": [
        {
          "Node Type": "Aggregate",
          "Total Cost": 2118.35,
          "Actual Rows": 6,
          "Actual Loops": 1,
          "Plans": [
            {
              "Node Type": "Hash Join",
              "Total Cost": 1868.35,
              "Actual Rows": 50000,
              "Actual Loops": 1,
              "Plans": [
                {
                  "Node Type": "Seq Scan",
                  "Relation Name": "complaints",
                  "Alias": "c",
                  "Total Cost": 918.00,
                  "Actual Rows": 50000,
                  "Actual Loops": 1
                },
                {
                  "Node Type": "Hash",
                  "Actual Rows": 1200,
                  "Actual Loops": 1,
                  "Plans": [
                    {
                      "Node Type": "Index Scan",
                      "Relation Name": "locations",
                      "Index Name": "idx_locations_borough",
                      "Total Cost": 40.1,
                      "Actual Rows": 1200,
                      "Actual Loops": 1,
                      "Rows Removed by Filter": 300
                    }
                  ]
                }
              ]
            }
          ]
        }
      ]
    },
    "Planning Time": 0.412,
    "Triggers": [],
    "Execution Time": 37.905
  }
]`

func TestParseExplain(t *testing.T) {
	stats, err := ParseExplain([]byte(explainFixture))
	require.NoError(t, err)

	assert.InDelta(t, 2118.43, stats.TotalCost, 1e-9)
	assert.InDelta(t, 0.412, stats.PlanningMs, 1e-9)
	assert.InDelta(t, 37.905, stats.ExecutionMs, 1e-9)
	assert.Equal(t, int64(6), stats.RowsReturned)
	assert.Equal(t, int64(50000+1200+300), stats.RowsScanned)
	assert.Equal(t, int64(412), stats.SharedHit)
	assert.Equal(t, int64(35), stats.SharedRead)
	assert.Equal(t, []string{"idx_locations_borough"}, stats.IndexesUsed)
	assert.Equal(t, []string{"complaints"}, stats.SeqScanTables)
}

func TestParseExplainLoopsAndFractionalRows(t *testing.T) {
	raw := `[{"Plan": {"Node Type": "Nested Loop", "Total Cost": 10, "Actual Rows": 4, "Actual Loops": 1,
		"Plans": [{"Node Type": "Index Only Scan", "Relation Name": "complaints", "Index Name": "idx_complaints_status_id",
		"Actual Rows": 2.5, "Actual Loops": 4}]}, "Planning Time": 0.1, "Execution Time": 0.2}]`
	stats, err := ParseExplain([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.RowsReturned)
	assert.Equal(t, int64(10), stats.RowsScanned)
	assert.Empty(t, stats.SeqScanTables)
}

func TestParseExplainRejectsGarbage(t *testing.T) {
	_, err := ParseExplain([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseExplain([]byte(`[]`))
	assert.ErrorContains(t, err, "expected 1 plan")
}

func TestSameColumns(t *testing.T) {
	def := "CREATE INDEX idx_complaints_complaint_type_location_id ON public.complaints USING btree (complaint_type_id, location_id)"
	assert.True(t, sameColumns(def, []string{"complaint_type_id", "location_id"}))
	assert.False(t, sameColumns(def, []string{"location_id", "complaint_type_id"}))
	assert.False(t, sameColumns(def, []string{"complaint_type_id"}))
	assert.True(t, sameColumns(`CREATE INDEX x ON s.t USING btree ("Borough")`, []string{"Borough"}))
	assert.False(t, sameColumns("garbage", []string{"a"}))
}
