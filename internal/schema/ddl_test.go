package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureStatementsAreIdempotentDDL(t *testing.T) {
	for _, stmt := range ensureStatements() {
		s := strings.TrimSpace(stmt)
		switch {
		case strings.HasPrefix(s, "CREATE"):
			assert.Contains(t, s, "IF NOT EXISTS", s)
		case strings.HasPrefix(s, "ALTER SEQUENCE"):
			assert.Contains(t, s, "OWNED BY", s)
		default:
			t.Errorf("unexpected statement: %s", firstLine(s))
		}
	}
}

func TestDropStatementsFactsFirst(t *testing.T) {
	stmts := dropStatements()
	assert.Equal(t, `DROP TABLE IF EXISTS "complaints"`, stmts[0])
	assert.Equal(t, `DROP TABLE IF EXISTS "statuses"`, stmts[3])
	for _, s := range stmts {
		assert.Contains(t, s, "IF EXISTS")
	}
}

func TestEveryRequiredConstraintIsDeclared(t *testing.T) {
	all := strings.Join(ensureStatements(), "\n")
	for _, name := range RequiredConstraints {
		assert.Contains(t, all, "CONSTRAINT "+name+" ", name)
	}
}

func TestEnumerationsInChecks(t *testing.T) {
	all := strings.Join(ensureStatements(), "\n")
	assert.Contains(t, all, `'In Progress'`)
	assert.Contains(t, all, `'STATEN ISLAND'`)
	assert.Contains(t, all, `'Unspecified'`)
}

func TestBoundedColumnsUseDeclaredWidths(t *testing.T) {
	all := strings.Join(ensureStatements(), "\n")
	assert.Contains(t, all, "unique_key VARCHAR(64) NOT NULL")
	assert.Contains(t, all, "name VARCHAR(255) NOT NULL")
	assert.Contains(t, all, "city VARCHAR(100)")
	assert.Contains(t, all, "zip VARCHAR(10)")
	assert.Contains(t, all, "location_type VARCHAR(100)")
}

func TestAddConstraintStatement(t *testing.T) {
	for _, c := range constraints {
		if c.name != "chk_closed_after_created" {
			continue
		}
		assert.Equal(t,
			`ALTER TABLE "complaints" ADD CONSTRAINT chk_closed_after_created CHECK (closed_date IS NULL OR closed_date >= created_date)`,
			addConstraint(c))
		return
	}
	t.Fatal("chk_closed_after_created not declared")
}
