package benchmark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var ErrReportNotFound = errors.New("benchmark report not found")

// ReportRow is one persisted ComparisonReport. The table lives beside the
// normalized tables and is left alone by schema resets.
type ReportRow struct {
	RunID          string    `gorm:"primaryKey;column:run_id;type:uuid" json:"run_id"`
	StartedAt      time.Time `gorm:"column:started_at;not null" json:"started_at"`
	FinishedAt     time.Time `gorm:"column:finished_at;not null" json:"finished_at"`
	Queries        int       `gorm:"column:queries;not null" json:"queries"`
	Failed         int       `gorm:"column:failed;not null" json:"failed"`
	DatasetMutated bool      `gorm:"column:dataset_mutated;not null" json:"dataset_mutated"`
	Report         string    `gorm:"column:report;type:jsonb;not null" json:"-"`
}

func (ReportRow) TableName() string { return "benchmark_results" }

var reportsDDL = []string{`
CREATE TABLE IF NOT EXISTS benchmark_results (
	run_id          UUID PRIMARY KEY,
	started_at      TIMESTAMPTZ NOT NULL,
	finished_at     TIMESTAMPTZ NOT NULL,
	queries         INTEGER NOT NULL,
	failed          INTEGER NOT NULL,
	dataset_mutated BOOLEAN NOT NULL,
	report          JSONB NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_benchmark_results_started_at ON benchmark_results (started_at DESC)`,
}

type ReportStore struct {
	db *gorm.DB
}

func NewReportStore(d *gorm.DB) *ReportStore {
	return &ReportStore{db: d}
}

func (s *ReportStore) Migrate(ctx context.Context) error {
	for _, stmt := range reportsDDL {
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("migrate benchmark_results: %w", err)
		}
	}
	return nil
}

func (s *ReportStore) Save(ctx context.Context, r *ComparisonReport) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	finished := r.FinishedAt
	if finished.IsZero() {
		finished = r.StartedAt
	}
	row := ReportRow{
		RunID:          r.RunID,
		StartedAt:      r.StartedAt,
		FinishedAt:     finished,
		Queries:        len(r.Comparisons),
		Failed:         r.FailedCount(),
		DatasetMutated: r.DatasetMutated,
		Report:         string(body),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("save report %s: %w", r.RunID, err)
	}
	return nil
}

// List returns the most recent runs without their bodies.
func (s *ReportStore) List(ctx context.Context, limit int) ([]ReportRow, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []ReportRow
	err := s.db.WithContext(ctx).
		Omit("report").
		Order("started_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return rows, nil
}

func (s *ReportStore) Get(ctx context.Context, runID string) (*ComparisonReport, error) {
	return s.load(s.db.WithContext(ctx).Where("run_id = ?", runID))
}

func (s *ReportStore) Latest(ctx context.Context) (*ComparisonReport, error) {
	return s.load(s.db.WithContext(ctx).Order("started_at DESC"))
}

func (s *ReportStore) load(q *gorm.DB) (*ComparisonReport, error) {
	var row ReportRow
	if err := q.Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("load report: %w", err)
	}
	var r ComparisonReport
	if err := json.Unmarshal([]byte(row.Report), &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", row.RunID, err)
	}
	return &r, nil
}
