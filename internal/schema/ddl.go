package schema

import (
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// Enumerations enforced by CHECK constraints.
const (
	StatusOpen       = "Open"
	StatusClosed     = "Closed"
	StatusInProgress = "In Progress"
	StatusAssigned   = "Assigned"
	StatusPending    = "Pending"

	BoroughUnspecified = "Unspecified"
)

var (
	Statuses = []string{StatusOpen, StatusClosed, StatusInProgress, StatusAssigned, StatusPending}
	Boroughs = []string{"BRONX", "BROOKLYN", "MANHATTAN", "QUEENS", "STATEN ISLAND", BoroughUnspecified}
)

// Sequences backing the id columns. The manager creates them before the tables
// and drops them after, so ids never depend on SERIAL/identity columns.
var sequences = []string{
	"statuses_id_seq",
	"complaint_types_id_seq",
	"locations_id_seq",
	"complaints_id_seq",
}

func sqlList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = pq.QuoteLiteral(v)
	}
	return strings.Join(quoted, ", ")
}

// Column widths of the bounded text columns. The loader rejects longer values
// before they reach the database.
const (
	MaxUniqueKeyLen      = 64
	MaxComplaintTypeLen  = 255
	MaxCityLen           = 100
	MaxZipLen            = 10
	MaxRawCoordinatesLen = 100
	MaxLocationTypeLen   = 100
)

type constraint struct {
	table string
	name  string
	def   string
}

// constraints are declared inline on CREATE TABLE and re-added by Ensure when
// an existing table lacks one.
var constraints = []constraint{
	{TableStatuses, "uq_statuses_name", "UNIQUE (name)"},
	{TableStatuses, "chk_status_valid", "CHECK (name IN (" + sqlList(Statuses) + "))"},
	{TableComplaintTypes, "uq_complaint_types_name", "UNIQUE (name)"},
	{TableComplaintTypes, "chk_complaint_type_not_blank", "CHECK (btrim(name) <> '')"},
	{TableLocations, "uq_locations_fingerprint", "UNIQUE (fingerprint)"},
	{TableLocations, "chk_borough_valid", "CHECK (borough IN (" + sqlList(Boroughs) + "))"},
	{TableLocations, "chk_latitude_range", "CHECK (latitude IS NULL OR latitude BETWEEN -90 AND 90)"},
	{TableLocations, "chk_longitude_range", "CHECK (longitude IS NULL OR longitude BETWEEN -180 AND 180)"},
	{TableComplaints, "uq_complaints_unique_key", "UNIQUE (unique_key)"},
	{TableComplaints, "chk_closed_after_created", "CHECK (closed_date IS NULL OR closed_date >= created_date)"},
	{TableComplaints, "fk_complaints_status", "FOREIGN KEY (status_id) REFERENCES statuses (id) ON DELETE RESTRICT"},
	{TableComplaints, "fk_complaints_complaint_type", "FOREIGN KEY (complaint_type_id) REFERENCES complaint_types (id) ON DELETE RESTRICT"},
	{TableComplaints, "fk_complaints_location", "FOREIGN KEY (location_id) REFERENCES locations (id) ON DELETE RESTRICT"},
}

// RequiredConstraints must exist after Ensure; used to verify a reset.
var RequiredConstraints = constraintNames()

func constraintNames() []string {
	names := make([]string, len(constraints))
	for i, c := range constraints {
		names[i] = c.name
	}
	return names
}

func varchar(n int) string {
	return "VARCHAR(" + strconv.Itoa(n) + ")"
}

// createTable renders CREATE TABLE with the table's constraints appended to
// its columns.
func createTable(table string, columns ...string) string {
	parts := append([]string(nil), columns...)
	for _, c := range constraints {
		if c.table == table {
			parts = append(parts, "CONSTRAINT "+c.name+" "+c.def)
		}
	}
	return "CREATE TABLE IF NOT EXISTS " + pq.QuoteIdentifier(table) + " (\n\t" +
		strings.Join(parts, ",\n\t") + "\n)"
}

func addConstraint(c constraint) string {
	return "ALTER TABLE " + pq.QuoteIdentifier(c.table) + " ADD CONSTRAINT " + c.name + " " + c.def
}

// ensureStatements returns the idempotent DDL in dependency order.
func ensureStatements() []string {
	stmts := make([]string, 0, len(sequences)*2+4)
	for _, seq := range sequences {
		stmts = append(stmts, `CREATE SEQUENCE IF NOT EXISTS `+pq.QuoteIdentifier(seq))
	}

	stmts = append(stmts,
		createTable(TableStatuses,
			"id BIGINT PRIMARY KEY DEFAULT nextval('statuses_id_seq')",
			"name VARCHAR(50) NOT NULL",
			"created_at TIMESTAMPTZ NOT NULL",
			"updated_at TIMESTAMPTZ NOT NULL",
		),
		createTable(TableComplaintTypes,
			"id BIGINT PRIMARY KEY DEFAULT nextval('complaint_types_id_seq')",
			"name "+varchar(MaxComplaintTypeLen)+" NOT NULL",
			"created_at TIMESTAMPTZ NOT NULL",
			"updated_at TIMESTAMPTZ NOT NULL",
		),
		createTable(TableLocations,
			"id BIGINT PRIMARY KEY DEFAULT nextval('locations_id_seq')",
			"borough VARCHAR(20) NOT NULL",
			"city "+varchar(MaxCityLen),
			"zip "+varchar(MaxZipLen),
			"latitude DOUBLE PRECISION",
			"longitude DOUBLE PRECISION",
			"raw_coordinates "+varchar(MaxRawCoordinatesLen),
			"location_type "+varchar(MaxLocationTypeLen),
			"fingerprint CHAR(64) NOT NULL",
			"created_at TIMESTAMPTZ NOT NULL",
			"updated_at TIMESTAMPTZ NOT NULL",
		),
		createTable(TableComplaints,
			"id BIGINT PRIMARY KEY DEFAULT nextval('complaints_id_seq')",
			"unique_key "+varchar(MaxUniqueKeyLen)+" NOT NULL",
			"created_date TIMESTAMP NOT NULL",
			"closed_date TIMESTAMP",
			"status_id BIGINT NOT NULL",
			"complaint_type_id BIGINT NOT NULL",
			"location_id BIGINT NOT NULL",
			"created_at TIMESTAMPTZ NOT NULL",
			"updated_at TIMESTAMPTZ NOT NULL",
		),
	)

	// Tie each sequence to its column so nothing outlives a dropped table.
	for i, table := range []string{TableStatuses, TableComplaintTypes, TableLocations, TableComplaints} {
		stmts = append(stmts, `ALTER SEQUENCE `+pq.QuoteIdentifier(sequences[i])+
			` OWNED BY `+pq.QuoteIdentifier(table)+`.id`)
	}
	return stmts
}

func dropStatements() []string {
	stmts := make([]string, 0, len(Tables)+len(sequences))
	for _, t := range Tables {
		stmts = append(stmts, `DROP TABLE IF EXISTS `+pq.QuoteIdentifier(t))
	}
	for _, seq := range sequences {
		stmts = append(stmts, `DROP SEQUENCE IF EXISTS `+pq.QuoteIdentifier(seq))
	}
	return stmts
}
