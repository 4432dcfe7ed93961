package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/EmpoweredVote/nyc311/internal/db"
	"github.com/EmpoweredVote/nyc311/internal/logger"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// ErrSchema marks DDL failures. They are fatal to Ensure/Reset/Truncate.
var ErrSchema = errors.New("schema error")

// advisoryLockKey serializes DDL across processes sharing the database.
const advisoryLockKey int64 = 311_2025

type Manager struct {
	db     *gorm.DB
	schema string
	log    *logger.Logger
}

func NewManager(d *gorm.DB, schemaName string, log *logger.Logger) *Manager {
	if schemaName == "" {
		schemaName = "public"
	}
	return &Manager{db: d, schema: schemaName, log: log.With("component", "schema")}
}

// Ensure creates any missing sequence or table, then adds any named
// constraint an existing table lacks. Safe to call against a database that
// already has some or all objects.
func (m *Manager) Ensure(ctx context.Context) error {
	err := m.locked(ctx, func(tx *gorm.DB) error {
		return m.ensure(tx)
	})
	if err != nil {
		return err
	}
	m.log.Info("schema ensured", "schema", m.schema)
	return nil
}

// Reset drops the four tables (facts first) and their sequences, then
// recreates them. Everything happens in one transaction, so an interrupted
// reset leaves the previous schema in place. Callers must not run imports or
// benchmarks concurrently.
func (m *Manager) Reset(ctx context.Context) error {
	err := m.locked(ctx, func(tx *gorm.DB) error {
		for _, stmt := range dropStatements() {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("%w: %s: %w", ErrSchema, stmt, err)
			}
		}
		return m.ensure(tx)
	})
	if err != nil {
		return err
	}
	m.log.Warn("schema reset", "schema", m.schema)
	return nil
}

// Truncate empties all four tables together and restarts their sequences.
func (m *Manager) Truncate(ctx context.Context) error {
	quoted := make([]string, len(Tables))
	for i, t := range Tables {
		quoted[i] = pq.QuoteIdentifier(t)
	}
	stmt := `TRUNCATE TABLE ` + strings.Join(quoted, ", ") + ` RESTART IDENTITY`

	err := m.locked(ctx, func(tx *gorm.DB) error {
		// RESTART IDENTITY covers the OWNED BY sequences.
		if err := tx.Exec(stmt).Error; err != nil {
			return fmt.Errorf("%w: truncate: %w", ErrSchema, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.log.Warn("tables truncated", "tables", strings.Join(Tables, ","))
	return nil
}

// Counts returns a row-count snapshot of the four tables.
func (m *Manager) Counts(ctx context.Context) (TableCounts, error) {
	var c TableCounts
	err := m.db.WithContext(ctx).Raw(`
		SELECT
			(SELECT count(*) FROM statuses)        AS statuses,
			(SELECT count(*) FROM complaint_types) AS complaint_types,
			(SELECT count(*) FROM locations)       AS locations,
			(SELECT count(*) FROM complaints)      AS complaints
	`).Scan(&c).Error
	if err != nil {
		return TableCounts{}, fmt.Errorf("count tables: %w", err)
	}
	return c, nil
}

// Constraints lists the named constraints defined on the four tables.
func (m *Manager) Constraints(ctx context.Context) ([]string, error) {
	return m.constraints(m.db.WithContext(ctx))
}

func (m *Manager) constraints(tx *gorm.DB) ([]string, error) {
	var names []string
	err := tx.Raw(`
		SELECT c.conname
		FROM pg_constraint c
		JOIN pg_class t ON t.oid = c.conrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE n.nspname = ? AND t.relname IN ?
		ORDER BY c.conname
	`, m.schema, Tables).Scan(&names).Error
	if err != nil {
		return nil, fmt.Errorf("list constraints: %w", err)
	}
	return names, nil
}

// MissingConstraints reports which RequiredConstraints are absent.
func (m *Manager) MissingConstraints(ctx context.Context) ([]string, error) {
	have, err := m.Constraints(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(have))
	for _, n := range have {
		set[n] = struct{}{}
	}
	var missing []string
	for _, n := range RequiredConstraints {
		if _, ok := set[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing, nil
}

func (m *Manager) ensure(tx *gorm.DB) error {
	if err := db.EnsureSchema(tx, m.schema); err != nil {
		return fmt.Errorf("%w: create schema %s: %w", ErrSchema, m.schema, err)
	}
	for _, stmt := range ensureStatements() {
		if err := tx.Exec(stmt).Error; err != nil {
			return fmt.Errorf("%w: %s: %w", ErrSchema, firstLine(stmt), err)
		}
	}
	return m.addMissingConstraints(tx)
}

// addMissingConstraints covers tables created before a constraint existed;
// CREATE TABLE IF NOT EXISTS leaves those untouched.
func (m *Manager) addMissingConstraints(tx *gorm.DB) error {
	have, err := m.constraints(tx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	set := make(map[string]struct{}, len(have))
	for _, n := range have {
		set[n] = struct{}{}
	}
	for _, c := range constraints {
		if _, ok := set[c.name]; ok {
			continue
		}
		if err := tx.Exec(addConstraint(c)).Error; err != nil {
			return fmt.Errorf("%w: add constraint %s: %w", ErrSchema, c.name, err)
		}
		m.log.Warn("constraint added", "table", c.table, "constraint", c.name)
	}
	return nil
}

func (m *Manager) locked(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`SELECT pg_advisory_xact_lock(?)`, advisoryLockKey).Error; err != nil {
			return fmt.Errorf("%w: advisory lock: %w", ErrSchema, err)
		}
		return fn(tx)
	})
}

func firstLine(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return strings.TrimSpace(stmt[:i])
	}
	return stmt
}
