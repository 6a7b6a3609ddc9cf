// Package corrections computes corrections to terrestrial gravity
// observations. Every correction takes physical inputs as units.Quantity and
// returns the correction as a units.Quantity in µGal.
package corrections

import (
	"errors"
	"fmt"
	"math"

	"github.com/bher20/gmeter/internal/units"
)

// ErrInvalidArgument reports a caller contract violation such as a
// non-positive radius or a height outside the standard atmosphere.
var ErrInvalidArgument = errors.New("corrections: invalid argument")

func finite(name string, q units.Quantity) error {
	if math.IsNaN(q.Value) || math.IsInf(q.Value, 0) {
		return fmt.Errorf("%w: %s must be finite, got %v", ErrInvalidArgument, name, q.Value)
	}
	return nil
}
