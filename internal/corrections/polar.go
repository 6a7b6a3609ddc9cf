package corrections

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/bher20/gmeter/internal/constants"
	"github.com/bher20/gmeter/internal/eop"
	"github.com/bher20/gmeter/internal/units"
)

// DefaultAmplitudeFactor is the gravimetric amplitude factor for the elastic
// response of the Earth.
const DefaultAmplitudeFactor = 1.164

type polarParams struct {
	radius    units.Quantity
	amplitude float64
}

// PolarOption adjusts the polar motion correction parameters.
type PolarOption func(*polarParams)

// WithRadius sets the geocentric radius of the station (default 6 378 136 m).
func WithRadius(r units.Quantity) PolarOption {
	return func(p *polarParams) { p.radius = r }
}

// WithAmplitudeFactor sets the gravimetric amplitude factor (default 1.164).
func WithAmplitudeFactor(delta float64) PolarOption {
	return func(p *polarParams) { p.amplitude = delta }
}

// Station is the geocentric position of an observation point referred to the
// IERS pole. A zero Radius means the default equatorial radius.
type Station struct {
	Latitude  units.Quantity `json:"latitude"`
	Longitude units.Quantity `json:"longitude"`
	Radius    units.Quantity `json:"radius,omitempty"`
}

// PolarMotion returns the pole tide correction (Wahr, 1985):
//
//	Δg = −δ ω² r sin(2φ) (xp cos λ − yp sin λ)
//
// xp, yp, lat and lon must be angles; the result is in µGal.
func PolarMotion(xp, yp, lat, lon units.Quantity, opts ...PolarOption) (units.Quantity, error) {
	p := polarParams{radius: constants.EquatorialRadius, amplitude: DefaultAmplitudeFactor}
	for _, o := range opts {
		o(&p)
	}

	for _, a := range []struct {
		name string
		q    units.Quantity
	}{{"xp", xp}, {"yp", yp}, {"latitude", lat}, {"longitude", lon}} {
		if err := a.q.Require(a.name, units.Angle); err != nil {
			return units.Quantity{}, err
		}
		if err := finite(a.name, a.q); err != nil {
			return units.Quantity{}, err
		}
	}
	if err := p.radius.Require("radius", units.Length); err != nil {
		return units.Quantity{}, err
	}
	r := p.radius.SI()
	if !(r > 0) || math.IsInf(r, 0) {
		return units.Quantity{}, fmt.Errorf("%w: radius must be positive, got %v", ErrInvalidArgument, p.radius)
	}
	if math.IsNaN(p.amplitude) || math.IsInf(p.amplitude, 0) {
		return units.Quantity{}, fmt.Errorf("%w: amplitude factor must be finite", ErrInvalidArgument)
	}

	phi, lambda := lat.SI(), lon.SI()
	deltaLat := xp.SI()*math.Cos(lambda) - yp.SI()*math.Sin(lambda)
	omega := constants.Omega.SI()

	dg := -p.amplitude * omega * omega * r * math.Sin(2*phi) * deltaLat
	return units.New(dg, units.MeterPerSecond2).To(units.MicroGal)
}

// PoleSource supplies interpolated pole coordinates. *eop.Provider satisfies it.
type PoleSource interface {
	GetPole(ctx context.Context, t time.Time) (eop.Pole, error)
}

// PolarResult is a polar motion correction together with the pole it was
// computed from. Provenance is copied from the pole so callers can tell final
// corrections from provisional ones.
type PolarResult struct {
	Correction units.Quantity `json:"correction"`
	Pole       eop.Pole       `json:"pole"`
	Provenance eop.Provenance `json:"provenance"`
}

// PolarMotionAt looks up the pole at t and computes the correction for st.
func PolarMotionAt(ctx context.Context, poles PoleSource, t time.Time, st Station, opts ...PolarOption) (PolarResult, error) {
	pole, err := poles.GetPole(ctx, t)
	if err != nil {
		return PolarResult{}, err
	}
	if st.Radius != (units.Quantity{}) {
		opts = append([]PolarOption{WithRadius(st.Radius)}, opts...)
	}
	dg, err := PolarMotion(pole.X, pole.Y, st.Latitude, st.Longitude, opts...)
	if err != nil {
		return PolarResult{}, err
	}
	return PolarResult{Correction: dg, Pole: pole, Provenance: pole.Provenance}, nil
}
