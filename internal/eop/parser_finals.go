package eop

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// FormatFinals2000A is the IERS rapid service / prediction product
// (finals2000A.all, finals2000A.data).
const FormatFinals2000A = "finals2000A"

func init() {
	RegisterFormat(Format{
		Key:   FormatFinals2000A,
		Name:  "IERS finals2000A fixed-width bulletin",
		Parse: ParseFinals,
	})
}

// Column ranges of the finals2000A layout, as 0-based half-open offsets.
type column struct {
	name   string
	lo, hi int
}

var (
	colMJD    = column{"mjd", 7, 15}
	colPMFlag = column{"pm_flag", 16, 17}
	colAX     = column{"pm_x_a", 18, 27}
	colAY     = column{"pm_y_a", 37, 46}
	colBX     = column{"pm_x_b", 134, 144}
	colBY     = column{"pm_y_b", 144, 154}
)

func (c column) text(line string) string {
	if len(line) <= c.lo {
		return ""
	}
	hi := c.hi
	if hi > len(line) {
		hi = len(line)
	}
	return strings.TrimSpace(line[c.lo:hi])
}

func (c column) float(line string, lineNo int) (float64, error) {
	v, err := strconv.ParseFloat(c.text(line), 64)
	if err != nil {
		return 0, &ParseError{Line: lineNo, Field: c.name, Err: fmt.Errorf("invalid number %q", c.text(line))}
	}
	return v, nil
}

// ParseFinals decodes a finals2000A bulletin. Rows carrying Bulletin B pole
// coordinates are Final; otherwise the Bulletin A flag decides between
// Preliminary (I) and Predicted (P). Rows without pole coordinates may only
// appear at the end of the file, where they mark the end of coverage.
func ParseFinals(r io.Reader) ([]Sample, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	var (
		out     []Sample
		lineNo  int
		tailAt  int
		lastMJD float64
	)
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), " \r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		mjd, err := colMJD.float(line, lineNo)
		if err != nil {
			return nil, err
		}

		flag := colPMFlag.text(line)
		ax, ay := colAX.text(line), colAY.text(line)
		if flag == "" && ax == "" && ay == "" {
			if tailAt == 0 {
				tailAt = lineNo
			}
			continue
		}
		if tailAt != 0 {
			return nil, &ParseError{Line: lineNo, Err: fmt.Errorf("pole coordinates after end of coverage at line %d", tailAt)}
		}
		if len(out) > 0 && mjd <= lastMJD {
			return nil, &ParseError{Line: lineNo, Field: colMJD.name, Err: fmt.Errorf("MJD %.2f does not follow %.2f", mjd, lastMJD)}
		}

		s, err := parseFinalsPole(line, lineNo, flag)
		if err != nil {
			return nil, err
		}
		s.MJD = mjd
		out = append(out, s)
		lastMJD = mjd
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, &ParseError{Line: lineNo + 1, Err: err}
		}
		return nil, fmt.Errorf("%w: read bulletin: %w", ErrSourceUnavailable, err)
	}
	if len(out) == 0 {
		return nil, &ParseError{Err: errors.New("bulletin contains no pole coordinates")}
	}
	return out, nil
}

func parseFinalsPole(line string, lineNo int, flag string) (Sample, error) {
	bx, by := colBX.text(line), colBY.text(line)
	switch {
	case bx != "" && by != "":
		x, err := colBX.float(line, lineNo)
		if err != nil {
			return Sample{}, err
		}
		y, err := colBY.float(line, lineNo)
		if err != nil {
			return Sample{}, err
		}
		return Sample{X: x, Y: y, Provenance: Final}, nil
	case bx != "" || by != "":
		return Sample{}, &ParseError{Line: lineNo, Field: colBX.name, Err: errors.New("incomplete Bulletin B pole coordinates")}
	}

	var p Provenance
	switch flag {
	case "I":
		p = Preliminary
	case "P":
		p = Predicted
	default:
		return Sample{}, &ParseError{Line: lineNo, Field: colPMFlag.name, Err: fmt.Errorf("unknown flag %q", flag)}
	}
	x, err := colAX.float(line, lineNo)
	if err != nil {
		return Sample{}, err
	}
	y, err := colAY.float(line, lineNo)
	if err != nil {
		return Sample{}, err
	}
	return Sample{X: x, Y: y, Provenance: p}, nil
}
