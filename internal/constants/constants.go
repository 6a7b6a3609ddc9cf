// Package constants holds the physical constants used by the corrections.
package constants

import "github.com/bher20/gmeter/internal/units"

// Omega is the mean angular rotation rate of the Earth.
var Omega = units.New(7292115.0e-11, units.RadianPerSecond)

// EquatorialRadius is the default geocentric radius used by the polar motion
// correction (a = 6 378 136 m).
var EquatorialRadius = units.New(6378136, units.Meter)

// AtmSens is the default sensitivity of gravity to atmospheric pressure
// variations (IAG 1983 Resolution no. 9).
var AtmSens = units.New(0.3, units.MicroGalPerMillibar)

// ISO 2533:1975 standard atmosphere.
var (
	P0 = units.New(101325.0, units.Pascal) // sea level pressure
	L  = 0.0065                            // temperature lapse rate, K/m
	Tn = 288.15                            // sea level temperature, K
	Gn = 9.80665                           // standard gravity, m/s²
	M  = 0.028964420                       // air molar mass, kg/mol
	R  = 8.31432                           // universal gas constant, J/(mol K)
)
