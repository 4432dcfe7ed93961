package dimension

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/EmpoweredVote/nyc311/internal/schema"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// nullTokens are the placeholders the 311 export uses for "no value".
var nullTokens = map[string]struct{}{
	"":            {},
	"NULL":        {},
	"null":        {},
	"N/A":         {},
	"n/a":         {},
	"Unspecified": {},
	"unspecified": {},
	"NA":          {},
	"na":          {},
}

var (
	upper    = cases.Upper(language.Und)
	boroughs = toSet(schema.Boroughs)
	statuses = toSet(schema.Statuses)
)

// statusAliases maps source statuses outside the enumeration onto it.
var statusAliases = map[string]string{
	"started": schema.StatusInProgress,
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

// Clean trims and NFC-normalizes s. ok is false when s is a null token.
func Clean(s string) (string, bool) {
	s = norm.NFC.String(strings.TrimSpace(s))
	if _, null := nullTokens[s]; null {
		return "", false
	}
	return s, true
}

// CheckText rejects raw when Postgres would refuse it for a column of limit
// characters: invalid UTF-8, a NUL byte, or a cleaned value that is too long.
func CheckText(field, raw string, limit int) error {
	if !utf8.ValidString(raw) {
		return fmt.Errorf("%w: %s is not valid UTF-8", ErrConstraint, field)
	}
	if strings.IndexByte(raw, 0) >= 0 {
		return fmt.Errorf("%w: %s contains a NUL byte", ErrConstraint, field)
	}
	if v, ok := Clean(raw); ok {
		if n := utf8.RuneCountInString(v); n > limit {
			return fmt.Errorf("%w: %s is %d characters, limit %d", ErrConstraint, field, n, limit)
		}
	}
	return nil
}

// CleanPtr is Clean returning nil for null tokens.
func CleanPtr(s string) *string {
	v, ok := Clean(s)
	if !ok {
		return nil
	}
	return &v
}

// NormalizeBorough upper-cases the borough and maps anything outside the
// enumeration (including blanks) to "Unspecified".
func NormalizeBorough(raw string) string {
	v, ok := Clean(raw)
	if !ok {
		return schema.BoroughUnspecified
	}
	v = upper.String(v)
	if strings.HasPrefix(v, "STATEN") {
		return "STATEN ISLAND"
	}
	if _, known := boroughs[v]; !known {
		return schema.BoroughUnspecified
	}
	return v
}

// NormalizeStatus maps raw status text to the enumeration, falling back to Open.
func NormalizeStatus(raw string) string {
	v, ok := Clean(raw)
	if !ok {
		return schema.StatusOpen
	}
	if _, known := statuses[v]; known {
		return v
	}
	if alias, found := statusAliases[strings.ToLower(v)]; found {
		return alias
	}
	return schema.StatusOpen
}
