package main

import (
	"fmt"
	"time"

	"github.com/bher20/gmeter/internal/corrections"
	"github.com/bher20/gmeter/internal/units"
	"github.com/spf13/cobra"
)

func newCorrectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "correct",
		Short: "Compute gravity corrections",
	}
	cmd.AddCommand(newCorrectPolarCmd(), newCorrectAtmosphereCmd())
	return cmd
}

func newCorrectPolarCmd() *cobra.Command {
	var lat, lon, radius, xp, yp, at string
	var amplitude float64

	cmd := &cobra.Command{
		Use:   "polar",
		Short: "Polar motion (pole tide) correction in uGal",
		RunE: func(cmd *cobra.Command, args []string) error {
			latQ, err := units.Parse(lat, units.Degree)
			if err != nil {
				return fmt.Errorf("--lat: %w", err)
			}
			lonQ, err := units.Parse(lon, units.Degree)
			if err != nil {
				return fmt.Errorf("--lon: %w", err)
			}
			opts := []corrections.PolarOption{corrections.WithAmplitudeFactor(amplitude)}
			if radius != "" {
				r, err := units.Parse(radius, units.Meter)
				if err != nil {
					return fmt.Errorf("--radius: %w", err)
				}
				opts = append(opts, corrections.WithRadius(r))
			}

			if xp != "" || yp != "" {
				x, err := units.Parse(xp, units.Arcsecond)
				if err != nil {
					return fmt.Errorf("--xp: %w", err)
				}
				y, err := units.Parse(yp, units.Arcsecond)
				if err != nil {
					return fmt.Errorf("--yp: %w", err)
				}
				dg, err := corrections.PolarMotion(x, y, latQ, lonQ, opts...)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), dg.Round(3))
				return nil
			}

			t := time.Now().UTC()
			if at != "" {
				times, err := parseTimes([]string{at})
				if err != nil {
					return err
				}
				t = times[0]
			}

			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := corrections.PolarMotionAt(cmd.Context(), e.provider, t,
				corrections.Station{Latitude: latQ, Longitude: lonQ}, opts...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  (pole x=%.6f y=%.6f arcsec, %s)\n",
				res.Correction.Round(3), res.Pole.X.Value, res.Pole.Y.Value, res.Provenance)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&lat, "lat", "", "station latitude (default unit deg)")
	f.StringVar(&lon, "lon", "", "station longitude (default unit deg)")
	f.StringVar(&radius, "radius", "", "geocentric radius (default unit m)")
	f.Float64Var(&amplitude, "amplitude", corrections.DefaultAmplitudeFactor, "gravimetric amplitude factor")
	f.StringVar(&xp, "xp", "", "pole x (default unit arcsec); skips the EOP lookup")
	f.StringVar(&yp, "yp", "", "pole y (default unit arcsec)")
	f.StringVar(&at, "time", "", "observation time, RFC 3339 or MJD (default now)")
	cmd.MarkFlagRequired("lat")
	cmd.MarkFlagRequired("lon")
	cmd.MarkFlagsRequiredTogether("xp", "yp")
	return cmd
}

func newCorrectAtmosphereCmd() *cobra.Command {
	var height, pressure, factor string

	cmd := &cobra.Command{
		Use:   "atmosphere",
		Short: "Atmospheric pressure correction in uGal",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := units.Parse(height, units.Meter)
			if err != nil {
				return fmt.Errorf("--height: %w", err)
			}
			p, err := units.Parse(pressure, units.Hectopascal)
			if err != nil {
				return fmt.Errorf("--pressure: %w", err)
			}
			var opts []corrections.AtmOption
			if factor != "" {
				f, err := units.Parse(factor, units.MicroGalPerMillibar)
				if err != nil {
					return fmt.Errorf("--factor: %w", err)
				}
				opts = append(opts, corrections.WithBarometricFactor(f))
			}
			dg, err := corrections.AtmosphericPressure(h, p, opts...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dg.Round(3))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&height, "height", "", "station height (default unit m)")
	f.StringVar(&pressure, "pressure", "", "observed pressure (default unit hPa)")
	f.StringVar(&factor, "factor", "", "barometric factor (default 0.3 uGal / mbar)")
	cmd.MarkFlagRequired("height")
	cmd.MarkFlagRequired("pressure")
	return cmd
}
