package importer

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// columnAliases maps the 311 export headers onto record fields. The first
// header found for a field wins.
var columnAliases = map[string][]string{
	"unique_key":     {"unique_key", "Unique Key"},
	"created_date":   {"created_date", "Created Date"},
	"closed_date":    {"closed_date", "Closed Date"},
	"status":         {"status", "Status"},
	"complaint_type": {"complaint_type", "Complaint Type"},
	"borough":        {"borough", "Borough"},
	"city":           {"city", "City"},
	"zip":            {"incident_zip", "zip", "Incident Zip"},
	"latitude":       {"latitude", "Latitude"},
	"longitude":      {"longitude", "Longitude"},
	"location":       {"location", "Location"},
	"location_type":  {"location_type", "Location Type"},
}

var requiredColumns = []string{"unique_key", "created_date"}

// CSVSource streams RawComplaints from delimited text without buffering the
// whole file.
type CSVSource struct {
	r    *csv.Reader
	col  map[string]int
	line int
	c    io.Closer
}

// OpenCSV opens path and reads its header. Close releases the file.
func OpenCSV(path string) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	src, err := NewCSVSource(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	src.c = f
	return src, nil
}

// NewCSVSource reads the header from r and validates required columns.
func NewCSVSource(r io.Reader) (*CSVSource, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("csv has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	// Handle BOM on first header cell
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	byName := make(map[string]int, len(header))
	for i, h := range header {
		byName[strings.TrimSpace(h)] = i
	}

	col := make(map[string]int, len(columnAliases))
	for field, aliases := range columnAliases {
		for _, a := range aliases {
			if i, ok := byName[a]; ok {
				col[field] = i
				break
			}
		}
	}
	for _, k := range requiredColumns {
		if _, ok := col[k]; !ok {
			return nil, fmt.Errorf("missing required column: %s", k)
		}
	}

	return &CSVSource{r: cr, col: col, line: 1}, nil
}

func (s *CSVSource) Next() (RawComplaint, error) {
	rec, err := s.r.Read()
	s.line++
	if errors.Is(err, io.EOF) {
		return RawComplaint{}, io.EOF
	}
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return RawComplaint{Line: pe.StartLine}, fmt.Errorf("%w: %v", ErrParse, err)
		}
		return RawComplaint{}, fmt.Errorf("csv read: %w", err)
	}

	get := func(field string) string {
		i, ok := s.col[field]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	line := s.line
	if l, _ := s.r.FieldPos(0); l > 0 {
		line = l
	}

	return RawComplaint{
		Line:          line,
		UniqueKey:     get("unique_key"),
		CreatedDate:   get("created_date"),
		ClosedDate:    get("closed_date"),
		Status:        get("status"),
		ComplaintType: get("complaint_type"),
		Borough:       get("borough"),
		City:          get("city"),
		Zip:           get("zip"),
		Latitude:      get("latitude"),
		Longitude:     get("longitude"),
		Location:      get("location"),
		LocationType:  get("location_type"),
	}, nil
}

func (s *CSVSource) Close() error {
	if s.c == nil {
		return nil
	}
	return s.c.Close()
}
