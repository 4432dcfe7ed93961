package benchmark

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/EmpoweredVote/nyc311/internal/config"
	"github.com/EmpoweredVote/nyc311/internal/db"
	"github.com/EmpoweredVote/nyc311/internal/schema"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

var (
	// ErrQueryTimeout is a statement cancelled by the per-query timeout.
	ErrQueryTimeout = errors.New("query timed out")
	// ErrIndexConflict is an existing index with the requested name but a
	// different definition.
	ErrIndexConflict = errors.New("index exists with a different definition")
)

// IndexInfo is one index as the catalog reports it.
type IndexInfo struct {
	Name       string `json:"name"`
	Table      string `json:"table"`
	Definition string `json:"definition"`
}

// Executor runs the harness' statements. The harness calls it from a single
// goroutine, one statement at a time.
type Executor interface {
	Explain(ctx context.Context, sql string, timeout time.Duration) (PlanStats, error)
	DropSecondaryIndexes(ctx context.Context, tables []string) ([]string, error)
	// CreateIndex reports whether the index was created (false when an
	// identical one already existed).
	CreateIndex(ctx context.Context, ix Index) (bool, error)
	Analyze(ctx context.Context, tables []string) error
	Counts(ctx context.Context) (schema.TableCounts, error)
	ListIndexes(ctx context.Context, tables []string) ([]IndexInfo, error)
}

// PgxExecutor holds one dedicated connection so both phases share session
// state and never interleave with other work.
type PgxExecutor struct {
	conn *pgx.Conn
}

func Connect(ctx context.Context, cfg config.Config) (*PgxExecutor, error) {
	cc, err := db.ConnConfig(cfg.DatabaseURL, cfg.Schema)
	if err != nil {
		return nil, err
	}
	conn, err := pgx.ConnectConfig(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &PgxExecutor{conn: conn}, nil
}

func (e *PgxExecutor) Close(ctx context.Context) error {
	return e.conn.Close(ctx)
}

// Explain runs sql under EXPLAIN ANALYZE inside a read-only transaction that
// is always rolled back. The timeout is enforced server side so a cancelled
// statement leaves the connection usable.
func (e *PgxExecutor) Explain(ctx context.Context, sql string, timeout time.Duration) (PlanStats, error) {
	tx, err := e.conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return PlanStats{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(context.Background())

	if timeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", timeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return PlanStats{}, fmt.Errorf("set statement_timeout: %w", err)
		}
	}

	var raw []byte
	err = tx.QueryRow(ctx, "EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON) "+sql).Scan(&raw)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "57014" {
			return PlanStats{}, fmt.Errorf("%w after %s", ErrQueryTimeout, timeout)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return PlanStats{}, fmt.Errorf("%w: %w", ErrQueryTimeout, err)
		}
		return PlanStats{}, err
	}
	return ParseExplain(raw)
}

const secondaryIndexesSQL = `
SELECT i.relname
FROM pg_index x
JOIN pg_class i ON i.oid = x.indexrelid
JOIN pg_class t ON t.oid = x.indrelid
JOIN pg_namespace n ON n.oid = t.relnamespace
WHERE n.nspname = current_schema()
  AND t.relname = ANY($1)
  AND NOT x.indisprimary
  AND NOT x.indisunique
  AND NOT EXISTS (SELECT 1 FROM pg_constraint c WHERE c.conindid = x.indexrelid)
ORDER BY i.relname`

// DropSecondaryIndexes removes every index on tables that does not back a
// primary key, unique or other constraint. It returns the dropped names.
func (e *PgxExecutor) DropSecondaryIndexes(ctx context.Context, tables []string) ([]string, error) {
	rows, err := e.conn.Query(ctx, secondaryIndexesSQL, tables)
	if err != nil {
		return nil, fmt.Errorf("list secondary indexes: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list secondary indexes: %w", err)
	}
	for _, name := range names {
		if _, err := e.conn.Exec(ctx, "DROP INDEX IF EXISTS "+pq.QuoteIdentifier(name)); err != nil {
			return nil, fmt.Errorf("drop index %s: %w", name, err)
		}
	}
	return names, nil
}

func (e *PgxExecutor) CreateIndex(ctx context.Context, ix Index) (bool, error) {
	var table, def string
	err := e.conn.QueryRow(ctx,
		`SELECT tablename, indexdef FROM pg_indexes WHERE schemaname = current_schema() AND indexname = $1`,
		ix.Name).Scan(&table, &def)
	switch {
	case err == nil:
		if table != ix.Table || !sameColumns(def, ix.Columns) {
			return false, fmt.Errorf("%w: %s", ErrIndexConflict, def)
		}
		return false, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return false, fmt.Errorf("look up index %s: %w", ix.Name, err)
	}

	if _, err := e.conn.Exec(ctx, ix.DDL()); err != nil {
		return false, fmt.Errorf("create index %s: %w", ix.Name, err)
	}
	return true, nil
}

// sameColumns reports whether an indexdef from pg_indexes covers exactly
// columns, in order.
func sameColumns(indexdef string, columns []string) bool {
	open := strings.LastIndex(indexdef, "(")
	end := strings.LastIndex(indexdef, ")")
	if open < 0 || end < open {
		return false
	}
	parts := strings.Split(indexdef[open+1:end], ",")
	if len(parts) != len(columns) {
		return false
	}
	for i, p := range parts {
		if strings.Trim(strings.TrimSpace(p), `"`) != columns[i] {
			return false
		}
	}
	return true
}

func (e *PgxExecutor) Analyze(ctx context.Context, tables []string) error {
	for _, t := range tables {
		if _, err := e.conn.Exec(ctx, "ANALYZE "+pq.QuoteIdentifier(t)); err != nil {
			return fmt.Errorf("analyze %s: %w", t, err)
		}
	}
	return nil
}

func (e *PgxExecutor) Counts(ctx context.Context) (schema.TableCounts, error) {
	var c schema.TableCounts
	err := e.conn.QueryRow(ctx, `SELECT
		(SELECT count(*) FROM statuses),
		(SELECT count(*) FROM complaint_types),
		(SELECT count(*) FROM locations),
		(SELECT count(*) FROM complaints)`).Scan(&c.Statuses, &c.ComplaintTypes, &c.Locations, &c.Complaints)
	if err != nil {
		return schema.TableCounts{}, fmt.Errorf("count rows: %w", err)
	}
	return c, nil
}

func (e *PgxExecutor) ListIndexes(ctx context.Context, tables []string) ([]IndexInfo, error) {
	rows, err := e.conn.Query(ctx, `
		SELECT indexname, tablename, indexdef
		FROM pg_indexes
		WHERE schemaname = current_schema() AND tablename = ANY($1)
		ORDER BY tablename, indexname`, tables)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (IndexInfo, error) {
		var ix IndexInfo
		err := row.Scan(&ix.Name, &ix.Table, &ix.Definition)
		return ix, err
	})
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	return out, nil
}
