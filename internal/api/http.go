package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/bher20/gmeter/internal/api/swagger"
	"github.com/bher20/gmeter/internal/auth"
	"github.com/bher20/gmeter/internal/corrections"
	"github.com/bher20/gmeter/internal/cron"
	"github.com/bher20/gmeter/internal/eop"
	"github.com/bher20/gmeter/internal/metrics"
	"github.com/bher20/gmeter/internal/storage"
	"github.com/bher20/gmeter/internal/units"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Poles is the part of *eop.Provider the API serves.
type Poles interface {
	GetPole(ctx context.Context, t time.Time) (eop.Pole, error)
	GetPoleBatch(ctx context.Context, times []time.Time) ([]eop.Pole, error)
	Refresh(ctx context.Context) (*eop.Table, error)
	Status() eop.Status
}

// Options wires the mux to its services. Auth may be nil, in which case the
// mutating endpoints are open.
type Options struct {
	Provider Poles
	Storage  storage.Storage
	Auth     *auth.Service
	// Schedule is reported when no runtime override is stored.
	Schedule string
}

type Handler struct {
	poles    Poles
	store    storage.Storage
	schedule string
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewMux constructs the HTTP mux, wiring in the EOP provider, corrections,
// metrics, docs and health endpoints.
func NewMux(o Options) *http.ServeMux {
	h := &Handler{poles: o.Provider, store: o.Storage, schedule: o.Schedule}
	if h.schedule == "" {
		h.schedule = cron.DefaultSchedule
	}

	protect := func(obj, act string, next http.HandlerFunc) http.Handler {
		if o.Auth == nil {
			return next
		}
		return o.Auth.Middleware(o.Auth.RequirePermission(obj, act, next))
	}
	if o.Auth == nil {
		log.Printf("api: auth disabled, refresh and settings endpoints are open")
	}

	mux := http.NewServeMux()

	// Metrics endpoint.
	mux.Handle("/metrics", promhttp.Handler())

	// Health / readiness / liveness.
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("live"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := h.store.Ping(r.Context()); err != nil {
			log.Printf("readyz: db ping failed: %v", err)
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.Handle("GET /api/v1/eop/status", instrument("/api/v1/eop/status", h.Status))
	mux.Handle("GET /api/v1/eop/pole", instrument("/api/v1/eop/pole", h.Pole))
	mux.Handle("POST /api/v1/eop/pole/batch", instrument("/api/v1/eop/pole/batch", h.PoleBatch))
	mux.Handle("POST /api/v1/eop/refresh", instrument("/api/v1/eop/refresh",
		protect("eop", "refresh", h.Refresh).ServeHTTP))

	mux.Handle("GET /api/v1/settings/refresh-schedule", instrument("/api/v1/settings/refresh-schedule", h.GetSchedule))
	mux.Handle("PUT /api/v1/settings/refresh-schedule", instrument("/api/v1/settings/refresh-schedule",
		protect("settings", "write", h.PutSchedule).ServeHTTP))

	mux.Handle("GET /api/v1/corrections/polar", instrument("/api/v1/corrections/polar", h.PolarCorrection))
	mux.Handle("GET /api/v1/corrections/atmosphere", instrument("/api/v1/corrections/atmosphere", h.AtmosphereCorrection))

	mux.Handle("/swagger/", http.StripPrefix("/swagger", swagger.Handler()))

	return mux
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request count, latency and error status codes.
func instrument(path string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		metrics.RequestsTotal.WithLabelValues(path).Inc()

		next(rec, r)

		metrics.RequestDurationSeconds.WithLabelValues(path).Observe(time.Since(start).Seconds())
		if rec.code >= 400 {
			metrics.RequestErrorsTotal.WithLabelValues(path, strconv.Itoa(rec.code)).Inc()
		}
	})
}

// writeJSON buffers the encoded body; values that cannot be encoded are
// reported as 500.
func writeJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "{\"error\":%q}\n", "encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(buf.Bytes())
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, corrections.ErrInvalidArgument),
		errors.Is(err, eop.ErrInvalidMJD),
		errors.Is(err, units.ErrUnitMismatch):
		return http.StatusBadRequest
	case errors.Is(err, eop.ErrParse):
		return http.StatusBadGateway
	case errors.Is(err, eop.ErrSourceUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= 500 {
		log.Printf("api: %v", err)
	}
	writeJSON(w, code, ErrorResponse{Error: err.Error()})
}
