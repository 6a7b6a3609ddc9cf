package eop

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// FormatCSV is a plain "mjd,x,y,provenance" table with x and y in arcseconds,
// for locally maintained pole series.
const FormatCSV = "csv"

func init() {
	RegisterFormat(Format{
		Key:   FormatCSV,
		Name:  "CSV pole series (mjd,x,y,provenance)",
		Parse: ParseCSV,
	})
}

func ParseCSV(r io.Reader) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = 4
	cr.TrimLeadingSpace = true

	var out []Sample
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &ParseError{Line: pe.Line, Err: pe.Err}
			}
			return nil, fmt.Errorf("%w: read bulletin: %w", ErrSourceUnavailable, err)
		}
		line, _ := cr.FieldPos(0)
		if len(out) == 0 && strings.EqualFold(rec[0], "mjd") {
			continue
		}

		var s Sample
		fields := []struct {
			name string
			dst  *float64
		}{{"mjd", &s.MJD}, {"x", &s.X}, {"y", &s.Y}}
		for i, f := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil {
				return nil, &ParseError{Line: line, Field: f.name, Err: fmt.Errorf("invalid number %q", rec[i])}
			}
			*f.dst = v
		}
		p, err := ParseProvenance(strings.ToLower(strings.TrimSpace(rec[3])))
		if err != nil || p == Unavailable {
			return nil, &ParseError{Line: line, Field: "provenance", Err: fmt.Errorf("unknown provenance %q", rec[3])}
		}
		s.Provenance = p
		if len(out) > 0 && s.MJD <= out[len(out)-1].MJD {
			return nil, &ParseError{Line: line, Field: "mjd", Err: fmt.Errorf("MJD %.2f does not follow %.2f", s.MJD, out[len(out)-1].MJD)}
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, &ParseError{Err: errors.New("bulletin contains no pole coordinates")}
	}
	return out, nil
}
