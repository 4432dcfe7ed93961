package dimension

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/EmpoweredVote/nyc311/internal/logger"
	"github.com/EmpoweredVote/nyc311/internal/metrics"
	"github.com/EmpoweredVote/nyc311/internal/schema"
	"golang.org/x/sync/singleflight"
)

type Kind string

const (
	KindStatus        Kind = "status"
	KindComplaintType Kind = "complaint_type"
	KindLocation      Kind = "location"
)

type cacheKey struct {
	kind Kind
	key  string
}

// Resolver turns raw categorical values into dimension ids, creating rows on
// first sight. Concurrent callers resolving the same new value share a single
// storage call, and the storage call itself is an atomic insert-or-get, so no
// value is ever inserted twice.
//
// Status and complaint type ids are cached for the life of the Resolver.
// Build a new one (or call Forget) after the tables are reset. Location ids
// are not cached: locations are close to one per record, so a cache would
// grow with the input.
type Resolver struct {
	store Store
	now   func() time.Time
	log   *logger.Logger

	group singleflight.Group
	mu    sync.RWMutex
	cache map[cacheKey]int64
}

type Option func(*Resolver)

// WithClock overrides the timestamp source for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func NewResolver(store Store, log *logger.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		store: store,
		now:   time.Now,
		log:   log.With("component", "resolver"),
		cache: make(map[cacheKey]int64),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve returns the id for a status or complaint type value. Status values
// outside the enumeration resolve to the fallback; a blank complaint type is
// an ErrConstraint. Locations go through Location.
func (r *Resolver) Resolve(ctx context.Context, kind Kind, value string) (int64, error) {
	var name string
	switch kind {
	case KindStatus:
		name = NormalizeStatus(value)
	case KindComplaintType:
		if err := CheckText("complaint_type", value, schema.MaxComplaintTypeLen); err != nil {
			return 0, err
		}
		v, ok := Clean(value)
		if !ok {
			return 0, fmt.Errorf("%w: complaint type is blank", ErrConstraint)
		}
		name = v
	case KindLocation:
		return 0, fmt.Errorf("%w: locations resolve from a tuple, use Location", ErrUnknownKind)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	return r.resolve(ctx, kind, name, func(ctx context.Context) (int64, bool, error) {
		return r.store.UpsertName(ctx, kind, name, r.now())
	})
}

func (r *Resolver) Status(ctx context.Context, value string) (int64, error) {
	return r.Resolve(ctx, KindStatus, value)
}

func (r *Resolver) ComplaintType(ctx context.Context, value string) (int64, error) {
	return r.Resolve(ctx, KindComplaintType, value)
}

// Location resolves the full attribute tuple; only an exact match reuses a row.
func (r *Resolver) Location(ctx context.Context, in LocationInput) (int64, error) {
	loc, err := in.Normalize()
	if err != nil {
		return 0, err
	}
	return r.resolve(ctx, KindLocation, loc.Fingerprint, func(ctx context.Context) (int64, bool, error) {
		at := r.now()
		loc.CreatedAt, loc.UpdatedAt = at, at
		return r.store.UpsertLocation(ctx, loc)
	})
}

// Forget drops every cached id.
func (r *Resolver) Forget() {
	r.mu.Lock()
	r.cache = make(map[cacheKey]int64)
	r.mu.Unlock()
}

func (r *Resolver) cached(k cacheKey) (int64, bool) {
	r.mu.RLock()
	id, ok := r.cache[k]
	r.mu.RUnlock()
	return id, ok
}

func (r *Resolver) resolve(ctx context.Context, kind Kind, key string, create func(context.Context) (int64, bool, error)) (int64, error) {
	k := cacheKey{kind: kind, key: key}
	cacheable := kind != KindLocation
	if cacheable {
		if id, ok := r.cached(k); ok {
			metrics.DimensionCacheHits.Add(1)
			return id, nil
		}
	}

	v, err, _ := r.group.Do(string(kind)+"\x00"+key, func() (interface{}, error) {
		if cacheable {
			if id, ok := r.cached(k); ok {
				return id, nil
			}
		}
		id, created, err := create(ctx)
		if errors.Is(err, ErrResolutionRace) {
			metrics.ResolutionRaces.Add(1)
			r.log.Warn("dimension race, retrying", "kind", kind, "error", err)
			id, created, err = create(ctx)
		}
		if err != nil {
			return int64(0), err
		}
		if created {
			metrics.DimensionsCreated.Add(1)
			r.log.Debug("dimension created", "kind", kind, "id", id)
		}
		if cacheable {
			r.mu.Lock()
			r.cache[k] = id
			r.mu.Unlock()
		}
		return id, nil
	})
	if err != nil {
		return 0, fmt.Errorf("resolve %s: %w", kind, err)
	}
	return v.(int64), nil
}
