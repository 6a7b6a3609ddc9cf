package eop

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/bher20/gmeter/internal/units"
)

// unixEpochMJD is the Modified Julian Date of 1970-01-01T00:00:00Z.
const unixEpochMJD = 40587.0

// MJD converts t to a Modified Julian Date in UTC.
func MJD(t time.Time) float64 {
	return unixEpochMJD + (float64(t.Unix())+float64(t.Nanosecond())/1e9)/86400
}

// TimeFromMJD is the inverse of MJD.
func TimeFromMJD(mjd float64) time.Time {
	sec := (mjd - unixEpochMJD) * 86400
	whole := math.Floor(sec)
	return time.Unix(int64(whole), int64(math.Round((sec-whole)*1e9))).UTC()
}

// MJDs of 0000-01-01 and 10000-01-01. Times outside cannot be written as
// RFC 3339.
var (
	minMJD = MJD(time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC))
	maxMJD = MJD(time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC))
)

// CheckMJD converts a caller supplied MJD, rejecting non-finite values and
// dates outside years 0 to 9999.
func CheckMJD(mjd float64) (time.Time, error) {
	if math.IsNaN(mjd) || mjd < minMJD || mjd >= maxMJD {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidMJD, mjd)
	}
	t := TimeFromMJD(mjd)
	if y := t.Year(); y < 0 || y > 9999 {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidMJD, mjd)
	}
	return t, nil
}

// Sample is one bulletin row. X and Y are in arcseconds.
type Sample struct {
	MJD        float64    `json:"mjd"`
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	Provenance Provenance `json:"provenance"`
}

// Pole is the interpolated pole position at a point in time.
type Pole struct {
	Time       time.Time      `json:"time"`
	MJD        float64        `json:"mjd"`
	X          units.Quantity `json:"x"`
	Y          units.Quantity `json:"y"`
	Provenance Provenance     `json:"provenance"`
}

// Table is an immutable, MJD-ordered set of samples from one fetch.
type Table struct {
	samples   []Sample
	fetchedAt time.Time
	sourceID  string
}

// NewTable validates that samples are strictly increasing in MJD and copies
// them into a new Table.
func NewTable(samples []Sample, fetchedAt time.Time, sourceID string) (*Table, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("eop: table from %s has no samples", sourceID)
	}
	for i, s := range samples {
		if math.IsNaN(s.MJD) || math.IsNaN(s.X) || math.IsNaN(s.Y) {
			return nil, fmt.Errorf("eop: sample %d from %s is not a number", i, sourceID)
		}
		if i > 0 && s.MJD <= samples[i-1].MJD {
			return nil, fmt.Errorf("eop: sample %d from %s: MJD %.2f does not follow %.2f",
				i, sourceID, s.MJD, samples[i-1].MJD)
		}
	}
	cp := make([]Sample, len(samples))
	copy(cp, samples)
	return &Table{samples: cp, fetchedAt: fetchedAt, sourceID: sourceID}, nil
}

func (t *Table) Len() int             { return len(t.samples) }
func (t *Table) FetchedAt() time.Time { return t.fetchedAt }
func (t *Table) SourceID() string     { return t.sourceID }

// Samples returns a copy of the table rows.
func (t *Table) Samples() []Sample {
	out := make([]Sample, len(t.samples))
	copy(out, t.samples)
	return out
}

// Span returns the first and last MJD covered.
func (t *Table) Span() (first, last float64) {
	return t.samples[0].MJD, t.samples[len(t.samples)-1].MJD
}

// LastFinal returns the MJD of the last Final sample, or false if there is none.
func (t *Table) LastFinal() (float64, bool) {
	for i := len(t.samples) - 1; i >= 0; i-- {
		if t.samples[i].Provenance == Final {
			return t.samples[i].MJD, true
		}
	}
	return 0, false
}

func (t *Table) Age(now time.Time) time.Duration {
	return now.Sub(t.fetchedAt)
}

// Stale reports whether the table is older than maxAge.
func (t *Table) Stale(now time.Time, maxAge time.Duration) bool {
	return t.Age(now) > maxAge
}

// Lookup interpolates the pole at mjd. Values outside the table coverage are
// held at the nearest boundary: within tolerance days the boundary provenance
// is capped at Predicted, beyond it the result is Unavailable.
func (t *Table) Lookup(mjd, tolerance float64) (x, y float64, p Provenance) {
	n := len(t.samples)
	first, last := t.samples[0], t.samples[n-1]

	switch {
	case math.IsNaN(mjd):
		return first.X, first.Y, Unavailable
	case mjd < first.MJD:
		return first.X, first.Y, boundary(first, first.MJD-mjd, tolerance)
	case mjd > last.MJD:
		return last.X, last.Y, boundary(last, mjd-last.MJD, tolerance)
	}

	i := sort.Search(n, func(i int) bool { return t.samples[i].MJD >= mjd })
	hi := t.samples[i]
	if hi.MJD == mjd {
		return hi.X, hi.Y, hi.Provenance
	}
	lo := t.samples[i-1]
	f := (mjd - lo.MJD) / (hi.MJD - lo.MJD)
	return lo.X + f*(hi.X-lo.X), lo.Y + f*(hi.Y-lo.Y), Worse(lo.Provenance, hi.Provenance)
}

func boundary(s Sample, distance, tolerance float64) Provenance {
	if distance <= tolerance {
		return Worse(s.Provenance, Predicted)
	}
	return Unavailable
}

// Pole interpolates the table at t.
func (t *Table) Pole(at time.Time, tolerance float64) Pole {
	mjd := MJD(at)
	x, y, p := t.Lookup(mjd, tolerance)
	return Pole{
		Time:       at,
		MJD:        mjd,
		X:          units.New(x, units.Arcsecond),
		Y:          units.New(y, units.Arcsecond),
		Provenance: p,
	}
}
