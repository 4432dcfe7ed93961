package dimension

import (
	"testing"

	"github.com/EmpoweredVote/nyc311/internal/schema"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBorough(t *testing.T) {
	cases := map[string]string{
		"BRONX":          "BRONX",
		" brooklyn ":     "BROOKLYN",
		"Manhattan":      "MANHATTAN",
		"STATEN ISLAND":  "STATEN ISLAND",
		"Staten Is":      "STATEN ISLAND",
		"UNKNOWN":        "Unspecified",
		"":               "Unspecified",
		"N/A":            "Unspecified",
		"Unspecified":    "Unspecified",
		"NEW JERSEY":     "Unspecified",
		"queens":         "QUEENS",
		"STATEN ISLAND ": "STATEN ISLAND",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeBorough(in), "input %q", in)
	}
}

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]string{
		"Open":        "Open",
		"Closed":      "Closed",
		"In Progress": "In Progress",
		"Assigned":    "Assigned",
		"Pending":     "Pending",
		"Started":     "In Progress",
		"STARTED":     "In Progress",
		"":            "Open",
		"null":        "Open",
		"closed":      "Open",
		"Draft":       "Open",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeStatus(in), "input %q", in)
	}
}

func TestClean(t *testing.T) {
	v, ok := Clean("  Noise - Residential ")
	require.True(t, ok)
	assert.Equal(t, "Noise - Residential", v)

	for _, null := range []string{"", "  ", "NULL", "n/a", "NA", "unspecified"} {
		_, ok := Clean(null)
		assert.False(t, ok, "%q should be null", null)
	}

	// Composed and decomposed forms clean to the same name.
	a, _ := Clean("Caf\u00e9")
	b, _ := Clean("Cafe\u0301")
	assert.Equal(t, a, b)
}

func TestNormalizationProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	boroughSet := toSet(schema.Boroughs)
	statusSet := toSet(schema.Statuses)

	properties.Property("any borough text normalizes into the enumeration", prop.ForAll(
		func(s string) bool {
			_, ok := boroughSet[NormalizeBorough(s)]
			return ok
		},
		gen.AnyString(),
	))

	properties.Property("any status text normalizes into the enumeration", prop.ForAll(
		func(s string) bool {
			_, ok := statusSet[NormalizeStatus(s)]
			return ok
		},
		gen.AnyString(),
	))

	properties.Property("borough normalization is idempotent", prop.ForAll(
		func(s string) bool {
			once := NormalizeBorough(s)
			return NormalizeBorough(once) == once
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
