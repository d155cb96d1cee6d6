// Package server exposes the processing pipeline over HTTP: a process
// trigger for single payloads or full sweeps, the run log, and metrics.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tavern-ops/barsync/internal/ingest"
	"github.com/tavern-ops/barsync/internal/model"
	"github.com/tavern-ops/barsync/internal/rawstore"
)

// Server wires the pipeline into an HTTP API.
type Server struct {
	raw     *rawstore.Store
	runs    *ingest.RunLog
	proc    *ingest.Processor
	sweeper *ingest.Sweeper
	log     *zap.Logger
}

func New(raw *rawstore.Store, runs *ingest.RunLog, proc *ingest.Processor, sweeper *ingest.Sweeper) *Server {
	return &Server{
		raw:     raw,
		runs:    runs,
		proc:    proc,
		sweeper: sweeper,
		log:     zap.L().With(zap.String("component", "server")),
	}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Post("/process", s.handleProcess)
		r.Get("/runs", s.handleRuns)
		r.Get("/backlog", s.handleBacklog)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// processRequest triggers either a single payload or a backlog sweep.
// VenueID scopes a sweep to one venue; zero sweeps every venue.
type processRequest struct {
	RawDataID  string `json:"raw_data_id,omitempty"`
	ProcessAll bool   `json:"process_all,omitempty"`
	VenueID    int64  `json:"venue_id,omitempty"`
	DataType   string `json:"data_type,omitempty"`
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch {
	case req.RawDataID != "":
		id, err := uuid.Parse(req.RawDataID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "raw_data_id is not a valid uuid")
			return
		}
		started := time.Now()
		res, procErr := s.proc.ProcessOne(r.Context(), id)
		s.recordProcessRun(r.Context(), res, procErr, time.Since(started))
		if procErr != nil {
			s.log.Error("process failed", zap.String("raw_id", req.RawDataID), zap.Error(procErr))
			writeJSON(w, http.StatusUnprocessableEntity, res)
			return
		}
		writeJSON(w, http.StatusOK, res)

	case req.ProcessAll:
		started := time.Now()
		runID, err := s.runs.Start(r.Context(), req.VenueID, req.DataType, "", "sweep")
		if err != nil {
			s.log.Error("could not record sweep run", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not record sweep run")
			return
		}
		res, sweepErr := s.sweeper.Sweep(r.Context(), req.VenueID, req.DataType)
		if sweepErr != nil {
			s.log.Error("sweep failed", zap.Error(sweepErr))
			if err := s.runs.Fail(r.Context(), runID, sweepErr.Error()); err != nil {
				s.log.Warn("could not record sweep failure", zap.Error(err))
			}
			writeJSON(w, http.StatusUnprocessableEntity, res)
			return
		}
		var inserted int64
		for _, pr := range res.Results {
			inserted += pr.InsertedRecords
		}
		status := model.RunCompleted
		if res.ErrorCount > 0 {
			status = model.RunPartial
		}
		if err := s.runs.Complete(r.Context(), runID, status, res.ProcessedCount, inserted, time.Since(started)); err != nil {
			s.log.Warn("could not record sweep completion", zap.Error(err))
		}
		writeJSON(w, http.StatusOK, res)

	default:
		writeError(w, http.StatusBadRequest, "raw_data_id or process_all is required")
	}
}

// recordProcessRun logs a single-payload processing to sync_runs. The
// venue and data type are only known after the payload loads, so the row
// is written once the outcome is in hand.
func (s *Server) recordProcessRun(ctx context.Context, res model.Result, procErr error, elapsed time.Duration) {
	runID, err := s.runs.Start(ctx, res.VenueID, res.DataType, "", "process")
	if err != nil {
		s.log.Warn("could not record process run", zap.Error(err))
		return
	}
	if procErr != nil {
		if err := s.runs.Fail(ctx, runID, procErr.Error()); err != nil {
			s.log.Warn("could not record process failure", zap.Error(err))
		}
		return
	}
	status := model.RunCompleted
	if !res.Processed {
		status = model.RunPartial
	}
	if err := s.runs.Complete(ctx, runID, status, res.TotalRecords, res.InsertedRecords, elapsed); err != nil {
		s.log.Warn("could not record process completion", zap.Error(err))
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be 1-500")
			return
		}
		limit = n
	}
	runs, err := s.runs.ListRecent(r.Context(), limit)
	if err != nil {
		s.log.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleBacklog(w http.ResponseWriter, r *http.Request) {
	counts, err := s.raw.CountUnprocessed(r.Context())
	if err != nil {
		s.log.Error("backlog count failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not count backlog")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unprocessed": counts})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
