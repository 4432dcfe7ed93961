package benchmark

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// PlanStats is what one EXPLAIN (ANALYZE, FORMAT JSON) run tells us.
type PlanStats struct {
	TotalCost     float64  `json:"total_cost"`
	PlanningMs    float64  `json:"planning_ms"`
	ExecutionMs   float64  `json:"execution_ms"`
	RowsReturned  int64    `json:"rows_returned"`
	RowsScanned   int64    `json:"rows_scanned"`
	SharedHit     int64    `json:"shared_hit_blocks"`
	SharedRead    int64    `json:"shared_read_blocks"`
	IndexesUsed   []string `json:"indexes_used,omitempty"`
	SeqScanTables []string `json:"seq_scan_tables,omitempty"`
}

type explainOutput struct {
	Plan          planNode `json:"Plan"`
	PlanningTime  float64  `json:"Planning Time"`
	ExecutionTime float64  `json:"Execution Time"`
}

// planNode holds the subset of plan node fields we read. Row counts are
// floats because newer servers report fractional per-loop averages.
type planNode struct {
	NodeType         string     `json:"Node Type"`
	RelationName     string     `json:"Relation Name"`
	IndexName        string     `json:"Index Name"`
	TotalCost        float64    `json:"Total Cost"`
	ActualRows       float64    `json:"Actual Rows"`
	ActualLoops      float64    `json:"Actual Loops"`
	RemovedByFilter  float64    `json:"Rows Removed by Filter"`
	RemovedByRecheck float64    `json:"Rows Removed by Index Recheck"`
	SharedHitBlocks  int64      `json:"Shared Hit Blocks"`
	SharedReadBlocks int64      `json:"Shared Read Blocks"`
	Plans            []planNode `json:"Plans"`
}

// ParseExplain reads the single-element JSON array Postgres returns.
func ParseExplain(raw []byte) (PlanStats, error) {
	var out []explainOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return PlanStats{}, fmt.Errorf("decode explain output: %w", err)
	}
	if len(out) != 1 {
		return PlanStats{}, fmt.Errorf("decode explain output: expected 1 plan, got %d", len(out))
	}
	root := out[0].Plan
	loops := root.ActualLoops
	if loops == 0 {
		loops = 1
	}
	stats := PlanStats{
		TotalCost:    root.TotalCost,
		PlanningMs:   out[0].PlanningTime,
		ExecutionMs:  out[0].ExecutionTime,
		RowsReturned: int64(math.Round(root.ActualRows * loops)),
		SharedHit:    root.SharedHitBlocks,
		SharedRead:   root.SharedReadBlocks,
	}

	indexes := map[string]bool{}
	seqScans := map[string]bool{}
	var scanned float64
	var walk func(n planNode)
	walk = func(n planNode) {
		if n.RelationName != "" {
			scanned += (n.ActualRows + n.RemovedByFilter + n.RemovedByRecheck) * n.ActualLoops
			if n.NodeType == "Seq Scan" {
				seqScans[n.RelationName] = true
			}
		}
		if n.IndexName != "" {
			indexes[n.IndexName] = true
		}
		for _, c := range n.Plans {
			walk(c)
		}
	}
	walk(root)

	stats.RowsScanned = int64(math.Round(scanned))
	stats.IndexesUsed = sortedKeys(indexes)
	stats.SeqScanTables = sortedKeys(seqScans)
	return stats, nil
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
