package dimension

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/EmpoweredVote/nyc311/internal/schema"
	"golang.org/x/crypto/blake2b"
)

// LocationInput is the location part of a raw record. Coordinates are parsed
// by the caller; text fields are cleaned here.
type LocationInput struct {
	Borough        string
	City           string
	Zip            string
	Latitude       *float64
	Longitude      *float64
	RawCoordinates string
	LocationType   string
}

// Normalize returns the row to store for in, or ErrConstraint when a
// coordinate is out of range or a text field does not fit its column.
func (in LocationInput) Normalize() (schema.Location, error) {
	for _, f := range []struct {
		name, value string
		max         int
	}{
		{"city", in.City, schema.MaxCityLen},
		{"zip", in.Zip, schema.MaxZipLen},
		{"location", in.RawCoordinates, schema.MaxRawCoordinatesLen},
		{"location_type", in.LocationType, schema.MaxLocationTypeLen},
	} {
		if err := CheckText(f.name, f.value, f.max); err != nil {
			return schema.Location{}, err
		}
	}
	if in.Latitude != nil && (*in.Latitude < -90 || *in.Latitude > 90) {
		return schema.Location{}, fmt.Errorf("%w: latitude %v out of range", ErrConstraint, *in.Latitude)
	}
	if in.Longitude != nil && (*in.Longitude < -180 || *in.Longitude > 180) {
		return schema.Location{}, fmt.Errorf("%w: longitude %v out of range", ErrConstraint, *in.Longitude)
	}
	loc := schema.Location{
		Borough:        NormalizeBorough(in.Borough),
		City:           CleanPtr(in.City),
		Zip:            CleanPtr(in.Zip),
		Latitude:       in.Latitude,
		Longitude:      in.Longitude,
		RawCoordinates: CleanPtr(in.RawCoordinates),
		LocationType:   CleanPtr(in.LocationType),
	}
	loc.Fingerprint = Fingerprint(loc)
	return loc, nil
}

// Fingerprint digests the full attribute tuple. Two locations share a row
// only when every attribute matches, nulls included.
func Fingerprint(loc schema.Location) string {
	var b strings.Builder
	field := func(s *string) {
		if s == nil {
			b.WriteByte(0)
		} else {
			b.WriteByte(1)
			b.WriteString(*s)
		}
		b.WriteByte(0x1f)
	}
	num := func(f *float64) {
		if f == nil {
			field(nil)
			return
		}
		v := *f
		if v == 0 {
			v = 0 // fold -0
		}
		s := strconv.FormatFloat(v, 'g', -1, 64)
		field(&s)
	}

	field(&loc.Borough)
	field(loc.City)
	field(loc.Zip)
	num(loc.Latitude)
	num(loc.Longitude)
	field(loc.RawCoordinates)
	field(loc.LocationType)

	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
