package server

import (
	"net/http"
	"strconv"

	"github.com/bobmcallan/aviary/internal/common"
)

// registerRoutes sets up the admission surface's routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/bird", s.handleBird)
	mux.HandleFunc("/metrics", s.handleMetrics)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}

// handleBird dispatches POST /bird (submit) and GET /bird (lookup) to their
// respective handlers.
func (s *Server) handleBird(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleBirdSubmit(w, r)
	case http.MethodGet:
		s.handleBirdGet(w, r)
	default:
		RequireMethod(w, r, http.MethodPost, http.MethodGet)
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	windowMS := s.defaultMetricsWindowMS
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			WriteError(w, http.StatusBadRequest, "window must be a positive integer")
			return
		}
		windowMS = parsed
	}

	metrics, err := s.observer.Metrics(r.Context(), windowMS)
	if err != nil {
		s.logger.Error().Err(err).Msg("metrics query failed")
		WriteError(w, http.StatusInternalServerError, "failed to compute metrics")
		return
	}
	WriteJSON(w, http.StatusOK, metrics)
}
