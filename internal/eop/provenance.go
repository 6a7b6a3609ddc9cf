package eop

import "fmt"

// Provenance classifies how trustworthy a pole coordinate is. Values are
// ordered from least to most reliable so that the worse of two tags is their
// minimum.
type Provenance int

const (
	// Unavailable marks a value requested outside the table coverage. The
	// nearest boundary sample is returned with this tag.
	Unavailable Provenance = iota
	// Predicted comes from the Bulletin A prediction section.
	Predicted
	// Preliminary comes from Bulletin A rapid-service values (flag I).
	Preliminary
	// Final comes from the Bulletin B columns.
	Final
)

var provenanceNames = map[Provenance]string{
	Unavailable: "unavailable",
	Predicted:   "predicted",
	Preliminary: "preliminary",
	Final:       "final",
}

func (p Provenance) String() string {
	if s, ok := provenanceNames[p]; ok {
		return s
	}
	return fmt.Sprintf("provenance(%d)", int(p))
}

// Bulletin names the IERS product a value with this provenance comes from.
func (p Provenance) Bulletin() string {
	switch p {
	case Final:
		return "IERS_B"
	case Preliminary, Predicted:
		return "IERS_A"
	default:
		return "OUT_OF_RANGE"
	}
}

// ParseProvenance is the inverse of String.
func ParseProvenance(s string) (Provenance, error) {
	for p, name := range provenanceNames {
		if name == s {
			return p, nil
		}
	}
	return Unavailable, fmt.Errorf("eop: unknown provenance %q", s)
}

func (p Provenance) MarshalText() ([]byte, error) {
	if _, ok := provenanceNames[p]; !ok {
		return nil, fmt.Errorf("eop: invalid provenance %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Provenance) UnmarshalText(b []byte) error {
	v, err := ParseProvenance(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Worse returns the less reliable of a and b.
func Worse(a, b Provenance) Provenance {
	if a < b {
		return a
	}
	return b
}
