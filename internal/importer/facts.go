package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/EmpoweredVote/nyc311/internal/dimension"
	"github.com/EmpoweredVote/nyc311/internal/schema"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FactStore persists complaint rows.
type FactStore interface {
	// ExistingKeys returns the subset of keys already imported.
	ExistingKeys(ctx context.Context, keys []string) (map[string]struct{}, error)
	// InsertBatch commits rows atomically, silently skipping unique_key
	// conflicts, and returns how many rows were actually inserted. A row the
	// database refuses fails the whole call with dimension.ErrConstraint.
	InsertBatch(ctx context.Context, rows []schema.Complaint) (int, error)
}

// insertChunk keeps single statements well under Postgres' 65535 bind
// parameter limit.
const insertChunk = 1000

type GormFactStore struct {
	db *gorm.DB
}

func NewGormFactStore(d *gorm.DB) *GormFactStore {
	return &GormFactStore{db: d}
}

func (s *GormFactStore) ExistingKeys(ctx context.Context, keys []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if len(keys) == 0 {
		return out, nil
	}
	var found []string
	err := s.db.WithContext(ctx).
		Model(&schema.Complaint{}).
		Where("unique_key IN ?", keys).
		Pluck("unique_key", &found).Error
	if err != nil {
		return nil, fmt.Errorf("lookup unique keys: %w", err)
	}
	for _, k := range found {
		out[k] = struct{}{}
	}
	return out, nil
}

func (s *GormFactStore) InsertBatch(ctx context.Context, rows []schema.Complaint) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	var inserted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "unique_key"}},
			DoNothing: true,
		}).CreateInBatches(&rows, insertChunk)
		if res.Error != nil {
			return res.Error
		}
		inserted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, classifyInsert(err)
	}
	return int(inserted), nil
}

// classifyInsert marks errors caused by a row's values as ErrConstraint so
// the loader can isolate the row instead of failing the batch.
func classifyInsert(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "22001", "22021", "22P05", "22007", "22008", "23502", "23514":
			return fmt.Errorf("%w: insert complaints: %w", dimension.ErrConstraint, err)
		}
	}
	return fmt.Errorf("insert complaints: %w", err)
}

// MemFactStore keeps facts in memory; used for dry runs.
type MemFactStore struct {
	mu   sync.Mutex
	rows map[string]schema.Complaint
}

func NewMemFactStore() *MemFactStore {
	return &MemFactStore{rows: map[string]schema.Complaint{}}
}

func (m *MemFactStore) ExistingKeys(_ context.Context, keys []string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{})
	for _, k := range keys {
		if _, ok := m.rows[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out, nil
}

func (m *MemFactStore) InsertBatch(_ context.Context, rows []schema.Complaint) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range rows {
		if _, ok := m.rows[r.UniqueKey]; ok {
			continue
		}
		r.ID = int64(len(m.rows) + 1)
		m.rows[r.UniqueKey] = r
		n++
	}
	return n, nil
}

// Rows returns a copy of the stored facts.
func (m *MemFactStore) Rows() []schema.Complaint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]schema.Complaint, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r)
	}
	return out
}
