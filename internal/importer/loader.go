package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/EmpoweredVote/nyc311/internal/dimension"
	"github.com/EmpoweredVote/nyc311/internal/logger"
	"github.com/EmpoweredVote/nyc311/internal/metrics"
	"github.com/EmpoweredVote/nyc311/internal/schema"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DimensionResolver is the part of dimension.Resolver the loader needs.
type DimensionResolver interface {
	Status(ctx context.Context, value string) (int64, error)
	ComplaintType(ctx context.Context, value string) (int64, error)
	Location(ctx context.Context, in dimension.LocationInput) (int64, error)
}

type LoaderOptions struct {
	BatchSize int
	Workers   int
	// MaxErrors caps the per-record details kept in the report.
	MaxErrors int
	// ProgressEvery throttles progress logging.
	ProgressEvery time.Duration
	Now           func() time.Time
}

func (o LoaderOptions) withDefaults() LoaderOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.MaxErrors <= 0 {
		o.MaxErrors = 1000
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = 5 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Loader turns raw records into fact rows. Each batch is committed on its own,
// so a failure loses at most that batch.
type Loader struct {
	resolver DimensionResolver
	facts    FactStore
	opts     LoaderOptions
	log      *logger.Logger
	progress *rate.Sometimes
}

func NewLoader(resolver DimensionResolver, facts FactStore, log *logger.Logger, opts LoaderOptions) *Loader {
	opts = opts.withDefaults()
	return &Loader{
		resolver: resolver,
		facts:    facts,
		opts:     opts,
		log:      log.With("component", "loader"),
		progress: &rate.Sometimes{Interval: opts.ProgressEvery},
	}
}

type batch struct {
	records []RawComplaint
	// parse failures the source reported while this batch was read
	rejected []rejectedRecord
}

type rejectedRecord struct {
	rec RawComplaint
	err error
}

// Load consumes src until io.EOF. Per-record problems end up in the report;
// the returned error is reserved for source failures and cancellation. The
// report is returned in both cases.
func (l *Loader) Load(ctx context.Context, src Source) (*LoadReport, error) {
	start := time.Now()
	report := newReport(uuid.NewString(), l.opts.MaxErrors)
	l.log.Info("import started", "run_id", report.RunID, "batch_size", l.opts.BatchSize, "workers", l.opts.Workers)

	g, gctx := errgroup.WithContext(ctx)
	batches := make(chan batch, l.opts.Workers)

	g.Go(func() error {
		defer close(batches)
		for {
			b, err := l.readBatch(src)
			if n := len(b.records) + len(b.rejected); n > 0 {
				report.addTotal(n)
				metrics.RecordsRead.Add(int64(n))
				select {
				case batches <- b:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
		}
	})

	for i := 0; i < l.opts.Workers; i++ {
		g.Go(func() error {
			for b := range batches {
				res, err := l.processBatch(gctx, b)
				report.merge(res)
				l.record(res)
				if err != nil {
					return err
				}
				l.progress.Do(func() {
					total, inserted, skipped, failed := report.snapshot()
					l.log.Info("import progress", "read", total, "inserted", inserted, "skipped", skipped, "failed", failed)
				})
			}
			return nil
		})
	}

	err := g.Wait()
	report.Duration = time.Since(start)
	l.log.Info("import finished",
		"run_id", report.RunID,
		"total", report.Total,
		"inserted", report.Inserted,
		"skipped", report.Skipped,
		"duplicates", report.Duplicates,
		"failed", report.Failed,
		"duration", report.Duration,
	)
	if err != nil {
		return report, fmt.Errorf("import %s: %w", report.RunID, err)
	}
	return report, nil
}

// readBatch reads up to BatchSize records. It returns io.EOF with the final
// (possibly empty) batch.
func (l *Loader) readBatch(src Source) (batch, error) {
	var b batch
	for len(b.records)+len(b.rejected) < l.opts.BatchSize {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			return b, io.EOF
		}
		if errors.Is(err, ErrParse) {
			b.rejected = append(b.rejected, rejectedRecord{rec: rec, err: err})
			continue
		}
		if err != nil {
			return b, fmt.Errorf("read source: %w", err)
		}
		b.records = append(b.records, rec)
	}
	return b, nil
}

func (l *Loader) record(res *batchResult) {
	metrics.RecordsInserted.Add(int64(res.inserted))
	metrics.RecordsSkipped.Add(int64(res.skipped))
	metrics.RecordsDuplicate.Add(int64(res.duplicates))
	if res.failed > 0 {
		metrics.BatchesFailed.Add(1)
	} else {
		metrics.BatchesCommitted.Add(1)
	}
}

// processBatch validates, resolves and inserts one batch. Only cancellation
// is returned as an error; storage failures fail the batch and the load goes on.
func (l *Loader) processBatch(ctx context.Context, b batch) (*batchResult, error) {
	res := &batchResult{}
	for _, r := range b.rejected {
		res.skip(r.rec, r.err)
	}

	rows := make([]schema.Complaint, 0, len(b.records))
	accepted := make([]RawComplaint, 0, len(b.records))
	seen := make(map[string]struct{}, len(b.records))

	for i, rec := range b.records {
		row, err := l.prepare(ctx, rec)
		if err == nil {
			if _, dup := seen[row.UniqueKey]; dup {
				err = fmt.Errorf("%w: %s repeated in input", ErrDuplicateKey, row.UniqueKey)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			if isRecordError(err) {
				res.skip(rec, err)
				continue
			}
			// Storage trouble: everything not yet skipped in this batch is lost.
			res.fail(b.records[0].Line, lastLine(b.records), len(b.records)-i+len(accepted), err)
			return res, nil
		}
		seen[row.UniqueKey] = struct{}{}
		rows = append(rows, row)
		accepted = append(accepted, rec)
	}
	if len(rows) == 0 {
		return res, nil
	}

	keys := make([]string, len(rows))
	for i, r := range rows {
		keys[i] = r.UniqueKey
	}
	existing, err := l.facts.ExistingKeys(ctx, keys)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.fail(accepted[0].Line, lastLine(accepted), len(rows), err)
		return res, nil
	}

	fresh := make([]schema.Complaint, 0, len(rows))
	freshRecs := make([]RawComplaint, 0, len(rows))
	for i, r := range rows {
		if _, dup := existing[r.UniqueKey]; dup {
			res.skip(accepted[i], fmt.Errorf("%w: %s already imported", ErrDuplicateKey, r.UniqueKey))
			continue
		}
		fresh = append(fresh, r)
		freshRecs = append(freshRecs, accepted[i])
	}
	if len(fresh) == 0 {
		return res, nil
	}

	inserted, err := l.facts.InsertBatch(ctx, fresh)
	switch {
	case err == nil:
		res.inserted = inserted
		res.lostToConcurrentInsert(len(fresh) - inserted)
	case ctx.Err() != nil:
		return res, ctx.Err()
	case isRecordError(err):
		// The database refused some row; find it by inserting one at a time.
		l.log.Warn("batch insert rejected a row, retrying rows singly",
			"first_line", freshRecs[0].Line, "error", err)
		return res, l.insertEach(ctx, res, fresh, freshRecs)
	default:
		res.fail(freshRecs[0].Line, lastLine(freshRecs), len(fresh), err)
	}
	return res, nil
}

// insertEach inserts rows one per transaction so a row the database rejects
// is skipped on its own.
func (l *Loader) insertEach(ctx context.Context, res *batchResult, rows []schema.Complaint, recs []RawComplaint) error {
	for i := range rows {
		n, err := l.facts.InsertBatch(ctx, rows[i:i+1])
		switch {
		case err == nil:
			res.inserted += n
			res.lostToConcurrentInsert(1 - n)
		case ctx.Err() != nil:
			return ctx.Err()
		case isRecordError(err):
			res.skip(recs[i], err)
		default:
			res.fail(recs[i].Line, lastLine(recs), len(rows)-i, err)
			return nil
		}
	}
	return nil
}

// prepare validates rec and resolves its dimensions. Validation runs first
// so rejected records never create dimension rows.
func (l *Loader) prepare(ctx context.Context, rec RawComplaint) (schema.Complaint, error) {
	if err := dimension.CheckText("unique_key", rec.UniqueKey, schema.MaxUniqueKeyLen); err != nil {
		return schema.Complaint{}, err
	}
	key, ok := dimension.Clean(rec.UniqueKey)
	if !ok {
		return schema.Complaint{}, fmt.Errorf("%w: missing unique_key", ErrParse)
	}
	created, err := ParseDate(rec.CreatedDate)
	if err != nil {
		return schema.Complaint{}, fmt.Errorf("created_date: %w", err)
	}
	closed, err := parseOptionalDate(rec.ClosedDate)
	if err != nil {
		return schema.Complaint{}, fmt.Errorf("closed_date: %w", err)
	}
	if closed != nil && closed.Before(created) {
		return schema.Complaint{}, fmt.Errorf("%w: closed_date %s before created_date %s",
			dimension.ErrConstraint, closed.Format(time.DateTime), created.Format(time.DateTime))
	}
	if _, ok := dimension.Clean(rec.ComplaintType); !ok {
		return schema.Complaint{}, fmt.Errorf("%w: complaint_type is blank", dimension.ErrConstraint)
	}
	if err := dimension.CheckText("complaint_type", rec.ComplaintType, schema.MaxComplaintTypeLen); err != nil {
		return schema.Complaint{}, err
	}
	lat, err := parseCoordinate("latitude", rec.Latitude)
	if err != nil {
		return schema.Complaint{}, err
	}
	lon, err := parseCoordinate("longitude", rec.Longitude)
	if err != nil {
		return schema.Complaint{}, err
	}
	loc := dimension.LocationInput{
		Borough:        rec.Borough,
		City:           rec.City,
		Zip:            rec.Zip,
		Latitude:       lat,
		Longitude:      lon,
		RawCoordinates: rec.Location,
		LocationType:   rec.LocationType,
	}
	if _, err := loc.Normalize(); err != nil {
		return schema.Complaint{}, err
	}

	statusID, err := l.resolver.Status(ctx, rec.Status)
	if err != nil {
		return schema.Complaint{}, err
	}
	typeID, err := l.resolver.ComplaintType(ctx, rec.ComplaintType)
	if err != nil {
		return schema.Complaint{}, err
	}
	locationID, err := l.resolver.Location(ctx, loc)
	if err != nil {
		return schema.Complaint{}, err
	}

	now := l.opts.Now()
	return schema.Complaint{
		UniqueKey:       key,
		CreatedDate:     created,
		ClosedDate:      closed,
		StatusID:        statusID,
		ComplaintTypeID: typeID,
		LocationID:      locationID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func lastLine(recs []RawComplaint) int {
	if len(recs) == 0 {
		return 0
	}
	return recs[len(recs)-1].Line
}
