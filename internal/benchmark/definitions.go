package benchmark

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/EmpoweredVote/nyc311/internal/schema"
	"github.com/goccy/go-yaml"
	"github.com/lib/pq"
)

//go:embed definitions.yaml
var defaultDefinitions []byte

// Query is one analytical statement measured in both phases.
type Query struct {
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description" json:"description,omitempty"`
	SQL         string `yaml:"sql" json:"sql"`
}

// Index is a secondary btree index applied before the second phase.
type Index struct {
	Name    string   `yaml:"name" json:"name"`
	Table   string   `yaml:"table" json:"table"`
	Columns []string `yaml:"columns" json:"columns"`
}

// DDL renders a repeatable CREATE INDEX statement.
func (ix Index) DDL() string {
	cols := make([]string, len(ix.Columns))
	for i, c := range ix.Columns {
		cols[i] = pq.QuoteIdentifier(c)
	}
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		pq.QuoteIdentifier(ix.Name), pq.QuoteIdentifier(ix.Table), strings.Join(cols, ", "))
}

type Definitions struct {
	Queries []Query `yaml:"queries"`
	Indexes []Index `yaml:"indexes"`
}

// DefaultDefinitions returns the built-in query and index sets.
func DefaultDefinitions() (Definitions, error) {
	return ParseDefinitions(defaultDefinitions)
}

// LoadDefinitions reads a YAML file, or the built-in sets when path is empty.
func LoadDefinitions(path string) (Definitions, error) {
	if path == "" {
		return DefaultDefinitions()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Definitions{}, fmt.Errorf("reading definitions: %w", err)
	}
	return ParseDefinitions(data)
}

func ParseDefinitions(data []byte) (Definitions, error) {
	var defs Definitions
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return Definitions{}, fmt.Errorf("parsing definitions: %w", err)
	}
	for i := range defs.Queries {
		defs.Queries[i].SQL = strings.TrimSpace(defs.Queries[i].SQL)
	}
	if err := defs.Validate(); err != nil {
		return Definitions{}, fmt.Errorf("validating definitions: %w", err)
	}
	return defs, nil
}

func (d Definitions) Validate() error {
	if len(d.Queries) == 0 {
		return fmt.Errorf("at least one query is required")
	}
	seen := map[string]bool{}
	for i, q := range d.Queries {
		if q.ID == "" {
			return fmt.Errorf("query %d: id is required", i)
		}
		if seen[q.ID] {
			return fmt.Errorf("query %q: duplicate id", q.ID)
		}
		seen[q.ID] = true
		if q.SQL == "" {
			return fmt.Errorf("query %q: sql is required", q.ID)
		}
	}

	tables := map[string]bool{}
	for _, t := range schema.Tables {
		tables[t] = true
	}
	names := map[string]bool{}
	for i, ix := range d.Indexes {
		if ix.Name == "" {
			return fmt.Errorf("index %d: name is required", i)
		}
		if names[ix.Name] {
			return fmt.Errorf("index %q: duplicate name", ix.Name)
		}
		names[ix.Name] = true
		if !tables[ix.Table] {
			return fmt.Errorf("index %q: unknown table %q", ix.Name, ix.Table)
		}
		if len(ix.Columns) == 0 {
			return fmt.Errorf("index %q: at least one column is required", ix.Name)
		}
	}
	return nil
}
