// Package units provides physical quantities tagged with a unit.
//
// A Quantity carries a float64 value and a Unit. Every Unit belongs to a
// Dimension and knows its scale to the SI reference unit of that dimension,
// so conversions are a single multiplication and incompatible combinations are
// rejected with ErrUnitMismatch.
package units

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// ErrUnitMismatch is returned when a quantity is used with a unit of a
// different dimension.
var ErrUnitMismatch = errors.New("units: incompatible units")

// Dimension identifies the physical kind of a unit.
type Dimension string

const (
	Dimensionless          Dimension = "dimensionless"
	Angle                  Dimension = "angle"
	Length                 Dimension = "length"
	Pressure               Dimension = "pressure"
	Acceleration           Dimension = "acceleration"
	AngularVelocity        Dimension = "angular velocity"
	AccelerationOnPressure Dimension = "acceleration/pressure"
	GravityGradient        Dimension = "gravity gradient"
)

// Unit is a named scale within a dimension. Scale converts a value in this
// unit to the SI reference unit (rad, m, Pa, m/s², rad/s, (m/s²)/Pa, 1/s²).
type Unit struct {
	Symbol string
	Dim    Dimension
	Scale  float64
}

func (u Unit) String() string { return u.Symbol }

var (
	One = Unit{"", Dimensionless, 1}

	Radian         = Unit{"rad", Angle, 1}
	Degree         = Unit{"deg", Angle, math.Pi / 180}
	Arcsecond      = Unit{"arcsec", Angle, math.Pi / (180 * 3600)}
	Milliarcsecond = Unit{"mas", Angle, math.Pi / (180 * 3600 * 1000)}

	Meter     = Unit{"m", Length, 1}
	Kilometer = Unit{"km", Length, 1000}

	Pascal      = Unit{"Pa", Pressure, 1}
	Hectopascal = Unit{"hPa", Pressure, 100}
	Millibar    = Unit{"mbar", Pressure, 100}

	MeterPerSecond2 = Unit{"m / s2", Acceleration, 1}
	Gal             = Unit{"Gal", Acceleration, 1e-2}
	MilliGal        = Unit{"mGal", Acceleration, 1e-5}
	MicroGal        = Unit{"uGal", Acceleration, 1e-8}
	NanometerPerS2  = Unit{"nm / s2", Acceleration, 1e-9}

	RadianPerSecond = Unit{"rad / s", AngularVelocity, 1}

	MicroGalPerMillibar  = Unit{"uGal / mbar", AccelerationOnPressure, 1e-8 / 100}
	NanometerPerS2PerHPa = Unit{"nm / s2 / hPa", AccelerationOnPressure, 1e-9 / 100}
	MeterPerS2PerPascal  = Unit{"m / s2 / Pa", AccelerationOnPressure, 1}

	PerSecond2       = Unit{"1 / s2", GravityGradient, 1}
	Eotvos           = Unit{"E", GravityGradient, 1e-9}
	MicroGalPerMeter = Unit{"uGal / m", GravityGradient, 1e-8}
)

var bySymbol = map[string]Unit{}

func init() {
	for _, u := range []Unit{
		Radian, Degree, Arcsecond, Milliarcsecond,
		Meter, Kilometer,
		Pascal, Hectopascal, Millibar,
		MeterPerSecond2, Gal, MilliGal, MicroGal, NanometerPerS2,
		RadianPerSecond,
		MicroGalPerMillibar, NanometerPerS2PerHPa, MeterPerS2PerPascal,
		PerSecond2, Eotvos, MicroGalPerMeter,
	} {
		bySymbol[u.Symbol] = u
	}
	bySymbol["µGal"] = MicroGal
	bySymbol["mb"] = Millibar
	bySymbol["µGal / m"] = MicroGalPerMeter
}

// Lookup returns the unit registered under symbol.
func Lookup(symbol string) (Unit, bool) {
	u, ok := bySymbol[strings.TrimSpace(symbol)]
	return u, ok
}

// Quantity is a value tagged with a unit.
type Quantity struct {
	Value float64
	Unit  Unit
}

// New returns v expressed in u.
func New(v float64, u Unit) Quantity { return Quantity{Value: v, Unit: u} }

// Dim is shorthand for q.Unit.Dim.
func (q Quantity) Dim() Dimension { return q.Unit.Dim }

// SI returns the value in the SI reference unit of its dimension.
func (q Quantity) SI() float64 { return q.Value * q.Unit.Scale }

// To converts q to u.
func (q Quantity) To(u Unit) (Quantity, error) {
	if q.Unit.Dim != u.Dim {
		return Quantity{}, fmt.Errorf("%w: cannot convert %s (%s) to %s (%s)",
			ErrUnitMismatch, q.Unit, q.Unit.Dim, u, u.Dim)
	}
	if q.Unit == u {
		return q, nil
	}
	return Quantity{Value: q.SI() / u.Scale, Unit: u}, nil
}

// In returns the numeric value of q expressed in u.
func (q Quantity) In(u Unit) (float64, error) {
	c, err := q.To(u)
	if err != nil {
		return 0, err
	}
	return c.Value, nil
}

// Require checks that q has dimension d. name identifies the argument in the
// returned error.
func (q Quantity) Require(name string, d Dimension) error {
	if q.Unit.Dim != d {
		return fmt.Errorf("%w: %s must be %s, got %s", ErrUnitMismatch, name, d, q.Unit.Dim)
	}
	return nil
}

// Add returns q+o in q's unit.
func (q Quantity) Add(o Quantity) (Quantity, error) {
	v, err := o.In(q.Unit)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Value: q.Value + v, Unit: q.Unit}, nil
}

// Sub returns q-o in q's unit.
func (q Quantity) Sub(o Quantity) (Quantity, error) {
	v, err := o.In(q.Unit)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Value: q.Value - v, Unit: q.Unit}, nil
}

// Scale multiplies the value by a dimensionless factor.
func (q Quantity) Scale(f float64) Quantity {
	return Quantity{Value: q.Value * f, Unit: q.Unit}
}

// Round rounds the value to the given number of decimals.
func (q Quantity) Round(decimals int) Quantity {
	p := math.Pow(10, float64(decimals))
	return Quantity{Value: math.Round(q.Value*p) / p, Unit: q.Unit}
}

func (q Quantity) String() string {
	if q.Unit.Symbol == "" {
		return fmt.Sprintf("%g", q.Value)
	}
	return fmt.Sprintf("%g %s", q.Value, q.Unit.Symbol)
}

// Parse reads "<value> <unit>" (for example "0.1375 arcsec"). When the unit
// is omitted, def is used.
func Parse(s string, def Unit) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Quantity{}, fmt.Errorf("units: empty quantity")
	}
	num, sym, _ := strings.Cut(s, " ")
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return Quantity{}, fmt.Errorf("units: parse %q: %w", s, err)
	}
	if strings.TrimSpace(sym) == "" {
		return New(v, def), nil
	}
	u, ok := Lookup(sym)
	if !ok {
		return Quantity{}, fmt.Errorf("units: unknown unit %q", strings.TrimSpace(sym))
	}
	if u.Dim != def.Dim {
		return Quantity{}, fmt.Errorf("%w: %q is %s, want %s", ErrUnitMismatch, s, u.Dim, def.Dim)
	}
	return New(v, u), nil
}

type quantityJSON struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// MarshalJSON encodes q as {"value": v, "unit": "symbol"}.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal(quantityJSON{Value: q.Value, Unit: q.Unit.Symbol})
}

func (q *Quantity) UnmarshalJSON(b []byte) error {
	var raw quantityJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	u := One
	if raw.Unit != "" {
		var ok bool
		if u, ok = Lookup(raw.Unit); !ok {
			return fmt.Errorf("units: unknown unit %q", raw.Unit)
		}
	}
	*q = Quantity{Value: raw.Value, Unit: u}
	return nil
}
