package dimension

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/EmpoweredVote/nyc311/internal/schema"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Store is the storage boundary for dimension rows. Each method is a single
// atomic insert-or-get: created reports whether this call inserted the row.
type Store interface {
	UpsertName(ctx context.Context, kind Kind, name string, at time.Time) (id int64, created bool, err error)
	UpsertLocation(ctx context.Context, loc schema.Location) (id int64, created bool, err error)
}

// GormStore implements Store with INSERT ... ON CONFLICT DO NOTHING RETURNING,
// falling back to a lookup when another writer got there first. Every call
// runs in its own implicit transaction, so a returned id is already committed.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(d *gorm.DB) *GormStore {
	return &GormStore{db: d}
}

func tableFor(kind Kind) (string, error) {
	switch kind {
	case KindStatus:
		return schema.TableStatuses, nil
	case KindComplaintType:
		return schema.TableComplaintTypes, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func (s *GormStore) UpsertName(ctx context.Context, kind Kind, name string, at time.Time) (int64, bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, false, err
	}
	t := pq.QuoteIdentifier(table)

	var ids []int64
	err = s.db.WithContext(ctx).Raw(
		`INSERT INTO `+t+` (name, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO NOTHING RETURNING id`,
		name, at, at,
	).Scan(&ids).Error
	if err != nil {
		return 0, false, classify(err, "insert "+table)
	}
	if len(ids) == 1 {
		return ids[0], true, nil
	}

	if err := s.db.WithContext(ctx).Raw(`SELECT id FROM `+t+` WHERE name = ?`, name).Scan(&ids).Error; err != nil {
		return 0, false, classify(err, "select "+table)
	}
	if len(ids) == 0 {
		return 0, false, fmt.Errorf("%w: %s %q", ErrResolutionRace, table, name)
	}
	return ids[0], false, nil
}

func (s *GormStore) UpsertLocation(ctx context.Context, loc schema.Location) (int64, bool, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Raw(
		`INSERT INTO locations
			(borough, city, zip, latitude, longitude, raw_coordinates, location_type, fingerprint, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (fingerprint) DO NOTHING RETURNING id`,
		loc.Borough, loc.City, loc.Zip, loc.Latitude, loc.Longitude,
		loc.RawCoordinates, loc.LocationType, loc.Fingerprint, loc.CreatedAt, loc.UpdatedAt,
	).Scan(&ids).Error
	if err != nil {
		return 0, false, classify(err, "insert locations")
	}
	if len(ids) == 1 {
		return ids[0], true, nil
	}

	if err := s.db.WithContext(ctx).Raw(`SELECT id FROM locations WHERE fingerprint = ?`, loc.Fingerprint).Scan(&ids).Error; err != nil {
		return 0, false, classify(err, "select locations")
	}
	if len(ids) == 0 {
		return 0, false, fmt.Errorf("%w: location %s", ErrResolutionRace, loc.Fingerprint)
	}
	return ids[0], false, nil
}

// classify maps Postgres errors caused by the value itself onto the
// resolver's error kinds so the loader can count them per record.
func classify(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23514":
			return fmt.Errorf("%w: %s: %s", ErrConstraint, op, pgErr.ConstraintName)
		case "22001", "22021", "22P05":
			// value too long, invalid byte sequence, untranslatable character
			return fmt.Errorf("%w: %s: %s", ErrConstraint, op, pgErr.Message)
		case "23505":
			return fmt.Errorf("%w: %s: %s", ErrResolutionRace, op, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
