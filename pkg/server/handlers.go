package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/VerdantProject/verdant/pkg/engine"
	"github.com/VerdantProject/verdant/pkg/optimizer"
	"github.com/VerdantProject/verdant/pkg/regression"
	"github.com/VerdantProject/verdant/pkg/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondOK(w, RequestIDFromContext(r.Context()), map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

type rankRequest struct {
	Regions        []string `json:"regions,omitempty"`
	ScheduleWeight float64  `json:"schedule_weight,omitempty"`
}

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req rankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, ErrCodeValidation, "invalid JSON body: "+err.Error())
		return
	}

	ranked := s.engine.RankRegions(r.Context(), req.Regions, req.ScheduleWeight)
	respondOK(w, reqID, ranked)
}

type scheduleRequest struct {
	Workload        string    `json:"workload,omitempty"`
	CurrentRegion   string    `json:"current_region"`
	DurationMinutes float64   `json:"duration_minutes"`
	Deadline        time.Time `json:"deadline"`
	Portable        bool      `json:"portable,omitempty"`
	Candidates      []string  `json:"candidates,omitempty"`
	ScheduleWeight  float64   `json:"schedule_weight,omitempty"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, ErrCodeValidation, "invalid JSON body: "+err.Error())
		return
	}
	if req.CurrentRegion == "" {
		respondError(w, reqID, http.StatusBadRequest, ErrCodeValidation, "current_region is required")
		return
	}
	if req.DurationMinutes <= 0 {
		respondError(w, reqID, http.StatusBadRequest, ErrCodeValidation, "duration_minutes must be positive")
		return
	}
	if req.Deadline.IsZero() {
		respondError(w, reqID, http.StatusBadRequest, ErrCodeValidation, "deadline is required")
		return
	}

	resp, err := s.engine.Schedule(r.Context(), engine.ScheduleRequest{
		Workload:       req.Workload,
		CurrentRegion:  req.CurrentRegion,
		Duration:       time.Duration(req.DurationMinutes * float64(time.Minute)),
		Deadline:       req.Deadline,
		Portable:       req.Portable,
		Candidates:     req.Candidates,
		ScheduleWeight: req.ScheduleWeight,
	})
	if err != nil {
		if errors.Is(err, optimizer.ErrInfeasible) {
			respondError(w, reqID, http.StatusUnprocessableEntity, ErrCodeInfeasible, err.Error())
			return
		}
		respondError(w, reqID, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	respondOK(w, reqID, resp)
}

type measurementRequest struct {
	regression.Measurement

	// IntensityGPerKWh, when positive, adds CO2 figures to the report.
	IntensityGPerKWh float64 `json:"intensity_g_per_kwh,omitempty"`
}

func (s *Server) handleMeasurement(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req measurementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, ErrCodeValidation, "invalid JSON body: "+err.Error())
		return
	}

	report, err := s.engine.EvaluateMeasurement(r.Context(), req.Measurement, req.IntensityGPerKWh)
	if err != nil {
		if errors.Is(err, regression.ErrInvalidMeasurement) {
			respondError(w, reqID, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		respondError(w, reqID, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	respondOK(w, reqID, report)
}

func (s *Server) handleListRegions(w http.ResponseWriter, r *http.Request) {
	respondOK(w, RequestIDFromContext(r.Context()), s.engine.Regions())
}

func (s *Server) handleRegionIntensity(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	respondOK(w, RequestIDFromContext(r.Context()), s.engine.Intensity(r.Context(), code))
}

func (s *Server) handleBaseline(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	branch := chi.URLParam(r, "branch")
	workload := chi.URLParam(r, "workload")

	baseline, err := s.engine.Baseline(r.Context(), branch, workload)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, reqID, http.StatusNotFound, ErrCodeNotFound, "no baseline for "+branch+"/"+workload)
			return
		}
		respondError(w, reqID, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	respondOK(w, reqID, baseline)
}

func (s *Server) handleListMeasurements(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	branch := chi.URLParam(r, "branch")
	workload := chi.URLParam(r, "workload")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, reqID, http.StatusBadRequest, ErrCodeValidation, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	list, err := s.engine.Measurements(r.Context(), branch, workload, limit)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	respondOK(w, reqID, list)
}
