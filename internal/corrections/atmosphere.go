package corrections

import (
	"fmt"
	"math"

	"github.com/bher20/gmeter/internal/constants"
	"github.com/bher20/gmeter/internal/units"
)

// Heights accepted by NormalPressure. The upper bound is the top of the
// ISO 2533 troposphere layer.
const (
	MinHeight = -1000.0
	MaxHeight = 11000.0
)

// isaExponent is gn·M/(R·L) rounded to four decimals (5.2559).
var isaExponent = math.Round(constants.Gn*constants.M/constants.R/constants.L*1e4) / 1e4

// NormalPressure returns the ISO 2533:1975 standard atmosphere pressure at
// the given height above sea level:
//
//	pn = 101325 (1 − 0.0065 H / 288.15)^5.2559 [Pa]
func NormalPressure(height units.Quantity) (units.Quantity, error) {
	if err := height.Require("height", units.Length); err != nil {
		return units.Quantity{}, err
	}
	h := height.SI()
	if h < MinHeight || h > MaxHeight || math.IsNaN(h) {
		return units.Quantity{}, fmt.Errorf("%w: height %v outside standard atmosphere range [%g m, %g m]",
			ErrInvalidArgument, height, MinHeight, MaxHeight)
	}
	pn := constants.P0.SI() * math.Pow(1-constants.L*h/constants.Tn, isaExponent)
	return units.New(pn, units.Pascal), nil
}

type atmParams struct {
	factor units.Quantity
}

// AtmOption adjusts the atmospheric correction parameters.
type AtmOption func(*atmParams)

// WithBarometricFactor sets the admittance between pressure anomaly and
// gravity (default 0.3 µGal/mbar).
func WithBarometricFactor(f units.Quantity) AtmOption {
	return func(p *atmParams) { p.factor = f }
}

// AtmosphericPressure returns the atmospheric pressure correction
// (IAG 1983 resolution no. 9):
//
//	Δg = f (pa − pn)
//
// where pa is the observed pressure and pn the normal pressure at height.
func AtmosphericPressure(height, pressure units.Quantity, opts ...AtmOption) (units.Quantity, error) {
	p := atmParams{factor: constants.AtmSens}
	for _, o := range opts {
		o(&p)
	}
	if err := pressure.Require("pressure", units.Pressure); err != nil {
		return units.Quantity{}, err
	}
	if err := finite("pressure", pressure); err != nil {
		return units.Quantity{}, err
	}
	if err := p.factor.Require("barometric factor", units.AccelerationOnPressure); err != nil {
		return units.Quantity{}, err
	}
	if err := finite("barometric factor", p.factor); err != nil {
		return units.Quantity{}, err
	}
	pn, err := NormalPressure(height)
	if err != nil {
		return units.Quantity{}, err
	}
	dp := pressure.SI() - pn.SI()
	return units.New(p.factor.SI()*dp, units.MeterPerSecond2).To(units.MicroGal)
}
