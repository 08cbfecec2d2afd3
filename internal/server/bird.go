package server

import (
	"net/http"

	"github.com/bobmcallan/aviary/internal/models"
)

type birdSubmitRequest struct {
	Name any `json:"name"`
}

type birdResponse struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Status    string         `json:"status"`
	CreatedAt int64          `json:"createdAt"`
	Body      map[string]any `json:"body,omitempty"`
}

func (s *Server) handleBirdSubmit(w http.ResponseWriter, r *http.Request) {
	var req birdSubmitRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	name, ok := req.Name.(string)
	if !ok || name == "" {
		WriteError(w, http.StatusBadRequest, "name is required and must be a string")
		return
	}

	job, isDuplicate, err := s.queue.Submit(r.Context(), name)
	if err != nil {
		s.logger.Error().Err(err).Str("name", name).Msg("submit failed")
		WriteError(w, http.StatusInternalServerError, "failed to submit job")
		return
	}

	status := http.StatusCreated
	if isDuplicate {
		status = http.StatusOK
	}
	WriteJSON(w, status, birdResponse{
		ID:        job.ID,
		Name:      job.Name,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	})
}

func (s *Server) handleBirdGet(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		WriteError(w, http.StatusBadRequest, "name is required")
		return
	}

	id := models.CanonicalID(name)
	job, err := s.queue.Get(r.Context(), id)
	if err != nil {
		s.logger.Error().Err(err).Str("id", id).Msg("get failed")
		WriteError(w, http.StatusInternalServerError, "failed to look up job")
		return
	}
	if job == nil || job.Status != models.StatusCompleted {
		WriteError(w, http.StatusNotFound, "job not found")
		return
	}

	WriteJSON(w, http.StatusOK, birdResponse{
		ID:        job.ID,
		Name:      job.Name,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
		Body:      job.Body,
	})
}
