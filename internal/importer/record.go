package importer

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/EmpoweredVote/nyc311/internal/dimension"
)

var (
	// ErrParse is an unparseable or missing date/numeric field.
	ErrParse = errors.New("parse error")
	// ErrDuplicateKey is a unique_key that was already imported. Such records
	// count as skipped, not as errors.
	ErrDuplicateKey = errors.New("duplicate unique_key")
)

// RawComplaint is one denormalized source row, all fields as text.
type RawComplaint struct {
	Line          int
	UniqueKey     string
	CreatedDate   string
	ClosedDate    string
	Status        string
	ComplaintType string
	Borough       string
	City          string
	Zip           string
	Latitude      string
	Longitude     string
	Location      string
	LocationType  string
}

// Source is a lazy sequence of raw records. Next returns io.EOF when the
// input is exhausted. An error wrapping ErrParse rejects one row only; any
// other error ends the load.
type Source interface {
	Next() (RawComplaint, error)
}

// SliceSource serves records from memory.
type SliceSource struct {
	records []RawComplaint
	pos     int
}

func NewSliceSource(records ...RawComplaint) *SliceSource {
	return &SliceSource{records: records}
}

func (s *SliceSource) Next() (RawComplaint, error) {
	if s.pos >= len(s.records) {
		return RawComplaint{}, io.EOF
	}
	rec := s.records[s.pos]
	s.pos++
	if rec.Line == 0 {
		rec.Line = s.pos
	}
	return rec, nil
}

// Date layouts seen in 311 exports, tried in order.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006 03:04:05 PM",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

// ParseDate parses a source timestamp. Values with an offset are converted to
// UTC; the rest are taken as wall-clock time.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty date", ErrParse)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized date %q", ErrParse, s)
}

// parseOptionalDate returns nil for blank or null-token input.
func parseOptionalDate(raw string) (*time.Time, error) {
	s, ok := dimension.Clean(raw)
	if !ok {
		return nil, nil
	}
	t, err := ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseCoordinate(name, raw string) (*float64, error) {
	s, ok := dimension.Clean(raw)
	if !ok {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%w: %s %q", ErrParse, name, s)
	}
	return &v, nil
}
