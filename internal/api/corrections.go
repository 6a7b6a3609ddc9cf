package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/bher20/gmeter/internal/corrections"
	"github.com/bher20/gmeter/internal/eop"
	"github.com/bher20/gmeter/internal/units"
)

type CorrectionResponse struct {
	Correction     units.Quantity  `json:"correction"`
	Pole           *eop.Pole       `json:"pole,omitempty"`
	Provenance     string          `json:"provenance,omitempty"`
	NormalPressure *units.Quantity `json:"normal_pressure,omitempty"`
}

// quantity reads a "<value>[ <unit>]" query parameter. ok is false when the
// parameter is absent.
func quantity(q url.Values, name string, def units.Unit) (v units.Quantity, ok bool, err error) {
	raw := q.Get(name)
	if raw == "" {
		return units.Quantity{}, false, nil
	}
	v, err = units.Parse(raw, def)
	if err != nil {
		return units.Quantity{}, false, badRequest("%s: %v", name, err)
	}
	return v, true, nil
}

func requiredQuantity(q url.Values, name string, def units.Unit) (units.Quantity, error) {
	v, ok, err := quantity(q, name, def)
	if err != nil {
		return units.Quantity{}, err
	}
	if !ok {
		return units.Quantity{}, badRequest("%s is required", name)
	}
	return v, nil
}

// PolarCorrection computes the pole tide correction
// @Summary Polar motion correction
// @Tags corrections
// @Produce json
// @Param time query string false "RFC 3339 time"
// @Param lat query string true "Latitude (deg)"
// @Param lon query string true "Longitude (deg)"
// @Param radius query string false "Radius (m)"
// @Param amplitude query number false "Amplitude factor"
// @Param xp query string false "Pole x (arcsec)"
// @Param yp query string false "Pole y (arcsec)"
// @Success 200 {object} CorrectionResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/corrections/polar [get]
func (h *Handler) PolarCorrection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := requiredQuantity(q, "lat", units.Degree)
	if err != nil {
		writeError(w, err)
		return
	}
	lon, err := requiredQuantity(q, "lon", units.Degree)
	if err != nil {
		writeError(w, err)
		return
	}

	var opts []corrections.PolarOption
	if radius, ok, err := quantity(q, "radius", units.Meter); err != nil {
		writeError(w, err)
		return
	} else if ok {
		opts = append(opts, corrections.WithRadius(radius))
	}
	if raw := q.Get("amplitude"); raw != "" {
		delta, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, badRequest("amplitude: %v", err))
			return
		}
		opts = append(opts, corrections.WithAmplitudeFactor(delta))
	}

	xp, hasX, err := quantity(q, "xp", units.Arcsecond)
	if err != nil {
		writeError(w, err)
		return
	}
	yp, hasY, err := quantity(q, "yp", units.Arcsecond)
	if err != nil {
		writeError(w, err)
		return
	}
	if hasX || hasY {
		if !hasX || !hasY {
			writeError(w, badRequest("xp and yp must be given together"))
			return
		}
		dg, err := corrections.PolarMotion(xp, yp, lat, lon, opts...)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, CorrectionResponse{Correction: dg})
		return
	}

	t, err := parseInstant(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := corrections.PolarMotionAt(r.Context(), h.poles, t,
		corrections.Station{Latitude: lat, Longitude: lon}, opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CorrectionResponse{
		Correction: res.Correction,
		Pole:       &res.Pole,
		Provenance: res.Provenance.String(),
	})
}

// AtmosphereCorrection computes the atmospheric pressure correction
// @Summary Atmospheric correction
// @Tags corrections
// @Produce json
// @Param height query string true "Height (m)"
// @Param pressure query string true "Pressure (hPa)"
// @Param factor query string false "Barometric factor (uGal / mbar)"
// @Success 200 {object} CorrectionResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/corrections/atmosphere [get]
func (h *Handler) AtmosphereCorrection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	height, err := requiredQuantity(q, "height", units.Meter)
	if err != nil {
		writeError(w, err)
		return
	}
	pressure, err := requiredQuantity(q, "pressure", units.Hectopascal)
	if err != nil {
		writeError(w, err)
		return
	}
	var opts []corrections.AtmOption
	if f, ok, err := quantity(q, "factor", units.MicroGalPerMillibar); err != nil {
		writeError(w, err)
		return
	} else if ok {
		opts = append(opts, corrections.WithBarometricFactor(f))
	}

	dg, err := corrections.AtmosphericPressure(height, pressure, opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	pn, err := corrections.NormalPressure(height)
	if err != nil {
		writeError(w, err)
		return
	}
	pn, _ = pn.To(units.Hectopascal)
	writeJSON(w, http.StatusOK, CorrectionResponse{Correction: dg, NormalPressure: &pn})
}
