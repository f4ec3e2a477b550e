package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"visitplan/internal/buildinfo"
	"visitplan/internal/metrics"
	"visitplan/internal/model"
	"visitplan/internal/opt"
	"visitplan/internal/planner"
	"visitplan/internal/webhooks"
)

// OptimizeHandler handles POST /v1/optimize
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.Limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "optimize rate limit exceeded", r.URL.Path)
		return
	}
	var req model.OptimizeRequest
	body := http.MaxBytesReader(w, r.Body, s.Config.Server.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateOptimizeRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
		return
	}

	start := time.Now()
	res, err := s.Planner.Plan(r.Context(), req, func(evt model.ProgressEvent) {
		s.Broker.Publish(evt.RunID, evt)
	})
	status := outcome(res, err)
	metrics.OptimizeRuns.WithLabelValues(status).Inc()
	metrics.OptimizeDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	if res.Plan.RunID != "" {
		s.Stats.Record(res.Plan.RunID, res.Stats)
		metrics.SolverIterations.WithLabelValues(res.Stats.StopReason).Add(float64(res.Stats.Iterations))
		for _, u := range res.Plan.Unassignable {
			metrics.UnassignableStops.WithLabelValues(u.Reason).Inc()
		}
		if s.Webhooks != nil {
			s.Webhooks.Enqueue(webhooks.NewRunCompleted(res.Plan, opt.RunStats(res.Stats)))
		}
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res.Plan)
	case errors.Is(err, opt.ErrInfeasible):
		writeJSON(w, http.StatusUnprocessableEntity, res.Plan)
	case errors.Is(err, opt.ErrValidation):
		writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
	case errors.Is(err, planner.ErrProvider):
		s.Log.Error().Err(err).Msg("travel matrix lookup failed")
		writeProblem(w, http.StatusBadGateway, "Travel matrix unavailable", err.Error(), r.URL.Path)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeProblem(w, http.StatusServiceUnavailable, "Optimization cancelled", err.Error(), r.URL.Path)
	default:
		s.Log.Error().Err(err).Msg("optimization failed")
		writeProblem(w, http.StatusInternalServerError, "Optimization failed", err.Error(), r.URL.Path)
	}
}

func outcome(res planner.Result, err error) string {
	switch {
	case err == nil:
		return res.Plan.Status
	case errors.Is(err, opt.ErrInfeasible):
		return "infeasible"
	case errors.Is(err, opt.ErrValidation):
		return "invalid"
	}
	return "error"
}

// OptimizerConfigHandler returns the solver defaults a request may override
func (s *Server) OptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	oc := s.Config.Optimizer
	defaults := map[string]any{
		"strategy":         oc.Strategy,
		"timeBudgetSec":    oc.TimeBudgetSec,
		"maxTimeBudgetSec": oc.MaxTimeBudgetSec,
		"maxIterations":    oc.MaxIterations,
		"seed":             oc.Seed,
		"workers":          oc.Workers,
		"nominalDayMin":    oc.NominalDayMin,
		"penaltyFactor":    oc.PenaltyFactor,
		"serviceMin":       s.Config.Visits.ServiceMin,
		"distanceProvider": s.Config.Distance.Provider,
	}
	writeJSON(w, http.StatusOK, map[string]any{"defaults": defaults})
}

// RunByIDHandler handles GET /v1/runs/{id}/stats and /v1/runs/{id}/ws
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	rest := strings.TrimPrefix(path, "/v1/runs/")
	id, action, ok := strings.Cut(rest, "/")
	if !ok || id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing run id", path)
		return
	}
	switch action {
	case "stats":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		st, found := s.Stats.Get(id)
		if !found {
			writeProblem(w, http.StatusNotFound, "Not Found", "no statistics for run "+id, path)
			return
		}
		writeJSON(w, http.StatusOK, opt.RunStats(st))
	case "ws":
		s.ProgressWSHandler(w, r, id)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", path)
	}
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "build": buildinfo.Info()})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	for _, p := range s.pingers {
		if err := p.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
