package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bher20/gmeter/internal/cron"
	"github.com/bher20/gmeter/internal/eop"
	"github.com/bher20/gmeter/internal/storage"
	"github.com/goccy/go-json"
)

// maxBatch bounds the number of times in one batch request.
const maxBatch = 10000

// StatusResponse reports the cached table and the last refresh job.
type StatusResponse struct {
	Table eop.Status            `json:"table"`
	Job   *storage.ScheduledJob `json:"job,omitempty"`
}

type PoleResponse struct {
	Pole     eop.Pole `json:"pole"`
	Bulletin string   `json:"bulletin"`
}

type BatchRequest struct {
	Times []time.Time `json:"times"`
	MJDs  []float64   `json:"mjds"`
}

type BatchResponse struct {
	Poles      []eop.Pole     `json:"poles"`
	Provenance map[string]int `json:"provenance"`
}

type ScheduleSetting struct {
	Schedule string `json:"schedule"`
	Source   string `json:"source,omitempty"`
}

// parseInstant reads an observation time from time= (RFC 3339) or mjd=.
func parseInstant(r *http.Request) (time.Time, error) {
	q := r.URL.Query()
	if raw := q.Get("time"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return time.Time{}, badRequest("time: %v", err)
		}
		return t, nil
	}
	if raw := q.Get("mjd"); raw != "" {
		mjd, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return time.Time{}, badRequest("mjd: %v", err)
		}
		return eop.CheckMJD(mjd)
	}
	return time.Time{}, badRequest("time or mjd is required")
}

// Status returns the EOP table status
// @Summary EOP table status
// @Tags eop
// @Produce json
// @Success 200 {object} StatusResponse
// @Router /api/v1/eop/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Table: h.poles.Status()}
	job, err := h.store.GetScheduledJob(r.Context(), cron.JobName)
	if err != nil {
		writeError(w, err)
		return
	}
	resp.Job = job
	writeJSON(w, http.StatusOK, resp)
}

// Pole returns interpolated pole coordinates
// @Summary Pole coordinates
// @Tags eop
// @Produce json
// @Param time query string false "RFC 3339 time"
// @Param mjd query number false "Modified Julian Date"
// @Success 200 {object} PoleResponse
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/eop/pole [get]
func (h *Handler) Pole(w http.ResponseWriter, r *http.Request) {
	t, err := parseInstant(r)
	if err != nil {
		writeError(w, err)
		return
	}
	pole, err := h.poles.GetPole(r.Context(), t)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PoleResponse{Pole: pole, Bulletin: pole.Provenance.Bulletin()})
}

// PoleBatch resolves many times against one table
// @Summary Batch pole coordinates
// @Tags eop
// @Accept json
// @Produce json
// @Param request body BatchRequest true "Times"
// @Success 200 {object} BatchResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/eop/pole/batch [post]
func (h *Handler) PoleBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20)).Decode(&req); err != nil {
		writeError(w, badRequest("decode body: %v", err))
		return
	}
	times := req.Times
	for _, mjd := range req.MJDs {
		t, err := eop.CheckMJD(mjd)
		if err != nil {
			writeError(w, err)
			return
		}
		times = append(times, t)
	}
	if len(times) == 0 {
		writeError(w, badRequest("times or mjds is required"))
		return
	}
	if len(times) > maxBatch {
		writeError(w, badRequest("at most %d times per request, got %d", maxBatch, len(times)))
		return
	}

	poles, err := h.poles.GetPoleBatch(r.Context(), times)
	if err != nil {
		writeError(w, err)
		return
	}
	counts := map[string]int{}
	for _, p := range poles {
		counts[p.Provenance.String()]++
	}
	writeJSON(w, http.StatusOK, BatchResponse{Poles: poles, Provenance: counts})
}

// Refresh fetches the bulletin now
// @Summary Force refresh
// @Tags eop
// @Produce json
// @Security BearerAuth
// @Success 200 {object} StatusResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/eop/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if _, err := h.poles.Refresh(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Table: h.poles.Status()})
}

// GetSchedule returns the refresh schedule
// @Summary Refresh schedule
// @Tags settings
// @Produce json
// @Success 200 {object} ScheduleSetting
// @Router /api/v1/settings/refresh-schedule [get]
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	val, err := h.store.GetSetting(r.Context(), cron.SettingRefreshSchedule)
	if err != nil {
		writeError(w, err)
		return
	}
	if val == "" {
		writeJSON(w, http.StatusOK, ScheduleSetting{Schedule: h.schedule, Source: "default"})
		return
	}
	writeJSON(w, http.StatusOK, ScheduleSetting{Schedule: val, Source: "setting"})
}

// PutSchedule stores a runtime schedule override
// @Summary Update refresh schedule
// @Tags settings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ScheduleSetting true "Schedule"
// @Success 200 {object} ScheduleSetting
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/settings/refresh-schedule [put]
func (h *Handler) PutSchedule(w http.ResponseWriter, r *http.Request) {
	var req ScheduleSetting
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, badRequest("decode body: %v", err))
		return
	}
	req.Schedule = strings.TrimSpace(req.Schedule)
	if err := cron.ValidateSchedule(req.Schedule); err != nil {
		writeError(w, badRequest("%v", err))
		return
	}
	if err := h.store.SetSetting(r.Context(), cron.SettingRefreshSchedule, req.Schedule); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ScheduleSetting{Schedule: req.Schedule, Source: "setting"})
}
