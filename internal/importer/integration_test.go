package importer_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/EmpoweredVote/nyc311/internal/dimension"
	"github.com/EmpoweredVote/nyc311/internal/importer"
	"github.com/EmpoweredVote/nyc311/internal/logger"
	"github.com/EmpoweredVote/nyc311/internal/schema"
	"github.com/EmpoweredVote/nyc311/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = "nyc311_importer_test"

func TestPostgresLoad(t *testing.T) {
	d := testutil.DB(t, testSchema)
	ctx := context.Background()
	mgr := schema.NewManager(d, testSchema, logger.Nop())
	require.NoError(t, mgr.Ensure(ctx))
	require.NoError(t, mgr.Truncate(ctx))

	var records []importer.RawComplaint
	for i := 0; i < 120; i++ {
		rec := complaint(fmt.Sprintf("P%04d", i))
		if i%3 == 0 {
			rec.ComplaintType = "Illegal Parking"
		}
		if i%10 == 0 {
			rec.Borough = "UNKNOWN"
		}
		records = append(records, rec)
	}
	bad := complaint("P-bad")
	bad.CreatedDate, bad.ClosedDate = "2025-01-05", "2025-01-02"
	records = append(records, bad, complaint("P0001"))

	load := func() *importer.LoadReport {
		l := importer.NewLoader(
			dimension.NewResolver(dimension.NewGormStore(d), logger.Nop()),
			importer.NewGormFactStore(d),
			logger.Nop(),
			importer.LoaderOptions{BatchSize: 25, Workers: 4},
		)
		report, err := l.Load(ctx, importer.NewSliceSource(records...))
		require.NoError(t, err)
		return report
	}

	first := load()
	assert.Equal(t, 120, first.Inserted)
	assert.Equal(t, 2, first.Skipped)
	assert.Equal(t, 1, first.Duplicates)
	assert.Equal(t, 0, first.Failed)

	counts, err := mgr.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(120), counts.Complaints)
	assert.Equal(t, int64(2), counts.ComplaintTypes)
	assert.Equal(t, int64(1), counts.Statuses)
	assert.Equal(t, int64(2), counts.Locations, "BRONX and Unspecified")

	second := load()
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, len(records), second.Skipped)

	after, err := mgr.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, counts, after)

	var violating int64
	require.NoError(t, d.Model(&schema.Complaint{}).
		Where("closed_date IS NOT NULL AND closed_date < created_date").
		Count(&violating).Error)
	assert.Zero(t, violating)
}

func TestPostgresFactStoreMarksRejectedRows(t *testing.T) {
	d := testutil.DB(t, testSchema)
	ctx := context.Background()
	mgr := schema.NewManager(d, testSchema, logger.Nop())
	require.NoError(t, mgr.Ensure(ctx))
	require.NoError(t, mgr.Truncate(ctx))

	r := dimension.NewResolver(dimension.NewGormStore(d), logger.Nop())
	statusID, err := r.Status(ctx, "Open")
	require.NoError(t, err)
	typeID, err := r.ComplaintType(ctx, "Noise")
	require.NoError(t, err)
	locID, err := r.Location(ctx, dimension.LocationInput{Borough: "BRONX"})
	require.NoError(t, err)

	row := func(key string) schema.Complaint {
		now := time.Now()
		return schema.Complaint{
			UniqueKey: key, CreatedDate: now, StatusID: statusID, ComplaintTypeID: typeID,
			LocationID: locID, CreatedAt: now, UpdatedAt: now,
		}
	}

	facts := importer.NewGormFactStore(d)
	_, err = facts.InsertBatch(ctx, []schema.Complaint{row("OK1"), row(strings.Repeat("k", schema.MaxUniqueKeyLen+1))})
	assert.ErrorIs(t, err, dimension.ErrConstraint)

	n, err := facts.InsertBatch(ctx, []schema.Complaint{row("OK1")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
