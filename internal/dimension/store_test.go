package dimension_test

import (
	"context"
	"sync"
	"testing"

	"github.com/EmpoweredVote/nyc311/internal/dimension"
	"github.com/EmpoweredVote/nyc311/internal/logger"
	"github.com/EmpoweredVote/nyc311/internal/schema"
	"github.com/EmpoweredVote/nyc311/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = "nyc311_dimension_test"

func TestGormStoreConcurrentResolvers(t *testing.T) {
	ctx := context.Background()
	d := testutil.DB(t, testSchema)
	m := schema.NewManager(d, testSchema, logger.Nop())
	require.NoError(t, m.Reset(ctx))

	// Separate resolvers share no cache, so every one of them hits the
	// database and the unique constraint has to do the deduplication.
	const workers = 16
	ids := make([]int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := dimension.NewResolver(dimension.NewGormStore(d), logger.Nop())
			id, err := r.ComplaintType(ctx, "Noise - Street/Sidewalk")
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	counts, err := m.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.ComplaintTypes)
}

func TestGormStoreLocationAndStatus(t *testing.T) {
	ctx := context.Background()
	d := testutil.DB(t, testSchema)
	m := schema.NewManager(d, testSchema, logger.Nop())
	require.NoError(t, m.Reset(ctx))
	store := dimension.NewGormStore(d)
	r := dimension.NewResolver(store, logger.Nop())

	lat, lon := 40.8, -73.9
	a, err := r.Location(ctx, dimension.LocationInput{Borough: "UNKNOWN", Latitude: &lat, Longitude: &lon})
	require.NoError(t, err)
	b, err := dimension.NewResolver(store, logger.Nop()).Location(ctx, dimension.LocationInput{Borough: "", Latitude: &lat, Longitude: &lon})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var loc schema.Location
	require.NoError(t, d.First(&loc, a).Error)
	assert.Equal(t, "Unspecified", loc.Borough)

	s1, err := r.Status(ctx, "Started")
	require.NoError(t, err)
	var st schema.Status
	require.NoError(t, d.First(&st, s1).Error)
	assert.Equal(t, "In Progress", st.Name)
	assert.False(t, st.CreatedAt.IsZero())
}
