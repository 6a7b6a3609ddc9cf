package eop

import (
	"fmt"
	"log"
)

// NotFinalMessage is reported when any returned pole coordinate is not final.
const NotFinalMessage = `Some pole coordinates are not from IERS Bulletin B and are not final.
They will change in the future. This may affect precision depending on the time
elapsed since the latest release of the IERS Bulletin B.

Please check your dates, update IERS tables or redo calculations
when the Bulletin B will be released on your dates.`

// Warning describes pole coordinates whose precision is not guaranteed.
// Provenance is the worst tag among the Count affected values.
type Warning struct {
	Provenance Provenance
	Count      int
	Message    string
}

func (w Warning) String() string {
	return fmt.Sprintf("%d %s value(s): %s", w.Count, w.Provenance, w.Message)
}

// WarnFunc receives warnings raised by a Provider. It must not block.
type WarnFunc func(Warning)

func logWarning(w Warning) {
	log.Printf("eop: warning: %s", w)
}

// summarize builds the warnings for a set of poles: one for values outside
// the table coverage and one for values that are not final.
func summarize(poles []Pole, first, last float64) []Warning {
	var (
		outside, notFinal int
		worst             = Final
	)
	for _, p := range poles {
		switch p.Provenance {
		case Unavailable:
			outside++
		case Final:
		default:
			notFinal++
			worst = Worse(worst, p.Provenance)
		}
	}

	var out []Warning
	if outside > 0 {
		out = append(out, Warning{
			Provenance: Unavailable,
			Count:      outside,
			Message: fmt.Sprintf("requested time is outside the EOP table coverage (MJD %.2f to %.2f); boundary values returned",
				first, last),
		})
	}
	if notFinal > 0 {
		out = append(out, Warning{Provenance: worst, Count: notFinal, Message: NotFinalMessage})
	}
	return out
}
