package importer

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/EmpoweredVote/nyc311/internal/dimension"
)

// Error kinds as they appear in LoadReport.ByKind.
const (
	KindParse          = "parse"
	KindConstraint     = "constraint"
	KindDuplicateKey   = "duplicate_key"
	KindResolutionRace = "resolution_race"
	KindBatch          = "batch"
)

// RecordError describes why one record (or one batch) was not imported.
type RecordError struct {
	Line      int    `json:"line"`
	UniqueKey string `json:"unique_key,omitempty"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

func (e RecordError) String() string {
	if e.Line > 0 && e.Kind != KindBatch {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// LoadReport summarizes an import. Skipped counts records rejected on their
// own merits, duplicates included; Failed counts records lost with a batch
// that could not be committed.
type LoadReport struct {
	RunID      string         `json:"run_id"`
	Total      int            `json:"total"`
	Inserted   int            `json:"inserted"`
	Skipped    int            `json:"skipped"`
	Duplicates int            `json:"duplicates"`
	Failed     int            `json:"failed"`
	Batches    int            `json:"batches"`
	ByKind     map[string]int `json:"by_kind"`
	Errors     []RecordError  `json:"errors"`
	Duration   time.Duration  `json:"duration"`

	maxErrors int
	mu        sync.Mutex
}

func newReport(runID string, maxErrors int) *LoadReport {
	return &LoadReport{RunID: runID, ByKind: map[string]int{}, maxErrors: maxErrors}
}

func kindOf(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateKey):
		return KindDuplicateKey
	case errors.Is(err, ErrParse):
		return KindParse
	case errors.Is(err, dimension.ErrConstraint):
		return KindConstraint
	case errors.Is(err, dimension.ErrResolutionRace):
		return KindResolutionRace
	}
	return ""
}

// isRecordError reports whether err rejects only the record at hand.
func isRecordError(err error) bool {
	return kindOf(err) != ""
}

func (r *LoadReport) addError(e RecordError) {
	r.ByKind[e.Kind]++
	if e.Kind == KindDuplicateKey {
		return
	}
	if len(r.Errors) < r.maxErrors {
		r.Errors = append(r.Errors, e)
	}
}

func (r *LoadReport) merge(b *batchResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Batches++
	r.Inserted += b.inserted
	r.Skipped += b.skipped
	r.Duplicates += b.duplicates
	r.Failed += b.failed
	for _, e := range b.errors {
		r.addError(e)
	}
}

func (r *LoadReport) addTotal(n int) {
	r.mu.Lock()
	r.Total += n
	r.mu.Unlock()
}

func (r *LoadReport) snapshot() (total, inserted, skipped, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Total, r.Inserted, r.Skipped, r.Failed
}

// SuccessRate is the share of read records that were inserted, in percent.
func (r *LoadReport) SuccessRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Inserted) / float64(r.Total) * 100
}

// Summary renders the report the way the import command prints it.
func (r *LoadReport) Summary(firstErrors int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total processed: %d\n", r.Total)
	fmt.Fprintf(&b, "Inserted:        %d\n", r.Inserted)
	fmt.Fprintf(&b, "Skipped:         %d (duplicates: %d)\n", r.Skipped, r.Duplicates)
	fmt.Fprintf(&b, "Failed:          %d\n", r.Failed)
	if r.Total > 0 {
		fmt.Fprintf(&b, "Success rate:    %.2f%%\n", r.SuccessRate())
	}
	if len(r.Errors) > 0 && firstErrors > 0 {
		n := min(firstErrors, len(r.Errors))
		fmt.Fprintf(&b, "\nFirst %d errors:\n", n)
		for _, e := range r.Errors[:n] {
			fmt.Fprintf(&b, "  %s\n", e)
		}
	}
	return b.String()
}

// batchResult accumulates one batch's outcome before it is merged.
type batchResult struct {
	inserted   int
	skipped    int
	duplicates int
	failed     int
	errors     []RecordError
}

func (b *batchResult) skip(rec RawComplaint, err error) {
	kind := kindOf(err)
	b.skipped++
	if kind == KindDuplicateKey {
		b.duplicates++
	}
	b.errors = append(b.errors, RecordError{Line: rec.Line, UniqueKey: rec.UniqueKey, Kind: kind, Message: err.Error()})
}

// lostToConcurrentInsert counts rows another worker committed between the
// key lookup and the insert.
func (b *batchResult) lostToConcurrentInsert(n int) {
	for i := 0; i < n; i++ {
		b.skipped++
		b.duplicates++
		b.errors = append(b.errors, RecordError{Kind: KindDuplicateKey, Message: "unique_key imported concurrently"})
	}
}

func (b *batchResult) fail(firstLine, lastLine, n int, err error) {
	b.failed += n
	b.errors = append(b.errors, RecordError{
		Line:    firstLine,
		Kind:    KindBatch,
		Message: fmt.Sprintf("lines %d-%d: batch failed: %v", firstLine, lastLine, err),
	})
}
