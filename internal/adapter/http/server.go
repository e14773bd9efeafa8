package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cast"

	"github.com/couchcryptid/flood-inundation/internal/config"
	"github.com/couchcryptid/flood-inundation/internal/domain"
	"github.com/couchcryptid/flood-inundation/internal/pipeline"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Runner computes inundation runs.
type Runner interface {
	ReadinessChecker
	Compute(ctx context.Context, req domain.RunRequest) (domain.RunSummary, error)
}

// RunLister serves the history of completed runs.
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]domain.RunSummary, error)
	Lookup(ctx context.Context, id string) (domain.RunSummary, bool, error)
}

// Server exposes health, readiness, metrics and run endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	runner     Runner
	runs       RunLister
	cfg        *config.Config

	// busy serialises runs; a second request while one is active gets 409.
	busy sync.Mutex
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and
// /runs routes. runs may be nil, in which case run history is not served.
func NewServer(cfg *config.Config, runner Runner, runs RunLister, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        cfg.HTTPAddr,
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
			// No write timeout: a run responds only once its raster is written.
			IdleTimeout: 60 * time.Second,
		},
		logger: logger,
		runner: runner,
		runs:   runs,
		cfg:    cfg,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(runner))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /runs", s.handleRun)
	if runs != nil {
		mux.HandleFunc("GET /runs", s.handleList)
		mux.HandleFunc("GET /runs/{id}", s.handleLookup)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var job config.Job
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&job); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	job, err := job.Within(s.cfg.DataDir)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := job.Request(s.cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if !s.busy.TryLock() {
		writeError(w, http.StatusConflict, errors.New("a run is already in progress"))
		return
	}
	defer s.busy.Unlock()

	s.logger.Info("run requested", "results", req.ResultPath, "output", req.OutputPath, "remote", r.RemoteAddr)
	summary, err := s.runner.Compute(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, summary)
	case pipeline.IsInvalid(err):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrNoInundationComputed):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := cast.ToIntE(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("invalid limit"))
			return
		}
		limit = n
	}
	runs, err := s.runs.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []domain.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	summary, ok, err := s.runs.Lookup(r.Context(), r.PathValue("id"))
	switch {
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	case !ok:
		writeError(w, http.StatusNotFound, errors.New("run not found"))
	default:
		writeJSON(w, http.StatusOK, summary)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
