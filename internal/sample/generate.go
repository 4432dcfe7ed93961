// Package sample writes synthetic 311 exports for local imports and
// benchmark runs.
package sample

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
	"time"
)

// Header matches the column names of the public 311 export.
var Header = []string{
	"Unique Key", "Created Date", "Closed Date", "Agency", "Complaint Type",
	"Status", "Incident Zip", "City", "Borough", "Latitude", "Longitude",
	"Location", "Location Type",
}

const exportLayout = "01/02/2006 03:04:05 PM"

type borough struct {
	name     string
	city     string
	zips     []string
	lat, lon float64
}

var boroughs = []borough{
	{"BRONX", "BRONX", []string{"10451", "10456", "10467", "10468"}, 40.8448, -73.8648},
	{"BROOKLYN", "BROOKLYN", []string{"11201", "11211", "11215", "11226"}, 40.6782, -73.9442},
	{"MANHATTAN", "NEW YORK", []string{"10002", "10025", "10027", "10031"}, 40.7831, -73.9712},
	{"QUEENS", "JAMAICA", []string{"11354", "11368", "11373", "11432"}, 40.7282, -73.7949},
	{"STATEN ISLAND", "STATEN ISLAND", []string{"10301", "10304", "10314"}, 40.5795, -74.1502},
}

var complaintTypes = []struct{ name, agency string }{
	{"Noise - Residential", "NYPD"},
	{"Illegal Parking", "NYPD"},
	{"Blocked Driveway", "NYPD"},
	{"HEAT/HOT WATER", "HPD"},
	{"Street Condition", "DOT"},
	{"Water System", "DEP"},
	{"Noise - Street/Sidewalk", "NYPD"},
	{"UNSANITARY CONDITION", "HPD"},
}

var locationTypes = []string{"Residential Building/House", "Street/Sidewalk", "Store/Commercial", "Park/Playground"}

var statuses = []string{"Closed", "Closed", "Closed", "Open", "In Progress", "Assigned", "Pending", "Started"}

type Options struct {
	Rows int
	Seed uint64
	// Start is the earliest created date; rows spread over the next 90 days.
	Start time.Time
	// DirtyRate is the share of rows carrying a defect the importer must
	// skip or map: unknown borough, bad dates, repeated keys, bad coordinates.
	DirtyRate float64
}

// Write emits a header and opts.Rows records. Output is deterministic for a
// given seed.
func Write(w io.Writer, opts Options) error {
	if opts.Rows < 0 {
		return fmt.Errorf("rows must not be negative (got %d)", opts.Rows)
	}
	if opts.Start.IsZero() {
		opts.Start = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x311))

	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}

	const firstKey = 59_000_000
	for i := 0; i < opts.Rows; i++ {
		rec := row(rng, opts.Start, firstKey+i)
		if opts.DirtyRate > 0 && rng.Float64() < opts.DirtyRate {
			dirty(rng, rec, firstKey, i)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func row(rng *rand.Rand, start time.Time, key int) []string {
	b := boroughs[rng.IntN(len(boroughs))]
	ct := complaintTypes[rng.IntN(len(complaintTypes))]
	status := statuses[rng.IntN(len(statuses))]

	created := start.Add(time.Duration(rng.Int64N(int64(90 * 24 * time.Hour))))
	closed := ""
	if status == "Closed" {
		closed = created.Add(time.Duration(rng.Int64N(int64(14*24*time.Hour))) + time.Minute).Format(exportLayout)
	}

	lat := b.lat + (rng.Float64()-0.5)*0.08
	lon := b.lon + (rng.Float64()-0.5)*0.08
	latS := strconv.FormatFloat(lat, 'f', 6, 64)
	lonS := strconv.FormatFloat(lon, 'f', 6, 64)

	return []string{
		strconv.Itoa(key),
		created.Format(exportLayout),
		closed,
		ct.agency,
		ct.name,
		status,
		b.zips[rng.IntN(len(b.zips))],
		b.city,
		b.name,
		latS,
		lonS,
		"(" + latS + ", " + lonS + ")",
		locationTypes[rng.IntN(len(locationTypes))],
	}
}

// dirty damages one field of rec in place.
func dirty(rng *rand.Rand, rec []string, firstKey, i int) {
	switch rng.IntN(5) {
	case 0:
		rec[8] = "Unspecified"
	case 1:
		rec[1] = "not a date"
	case 2:
		if i > 0 {
			rec[0] = strconv.Itoa(firstKey + rng.IntN(i))
		}
	case 3:
		rec[9] = "123.456"
	case 4:
		rec[4] = "N/A"
	}
}
