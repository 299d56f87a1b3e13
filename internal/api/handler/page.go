package handler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/livewatch/internal/api/response"
	"github.com/kiranshivaraju/livewatch/internal/session"
	"github.com/kiranshivaraju/livewatch/internal/snapshot"
)

// Sessions is the part of session.Registry the page handlers need.
type Sessions interface {
	Open(ctx context.Context, jobID string) (*session.Session, error)
	Close(jobID string) error
}

// PageHandler serves live job pages.
type PageHandler struct {
	sessions Sessions
}

// NewPageHandler creates a PageHandler.
func NewPageHandler(s Sessions) *PageHandler {
	return &PageHandler{sessions: s}
}

// HTML handles GET /jobs/{jobID}. The first view opens the session.
func (h *PageHandler) HTML(w http.ResponseWriter, r *http.Request) {
	s, ok := h.open(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := s.Render(&buf); err != nil {
		slog.Error("render page", "job_id", s.JobID(), "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to render page", nil)
		return
	}

	response.HTML(w, buf.Bytes())
}

// JSON handles GET /api/v1/jobs/{jobID}/page.
func (h *PageHandler) JSON(w http.ResponseWriter, r *http.Request) {
	s, ok := h.open(w, r)
	if !ok {
		return
	}
	response.JSON(w, s.View())
}

// Delete handles DELETE /api/v1/jobs/{jobID}/page.
func (h *PageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := h.sessions.Close(jobID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "No open page for this job", nil)
			return
		}
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to close page", nil)
		return
	}
	response.NoContent(w)
}

func (h *PageHandler) open(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	jobID := chi.URLParam(r, "jobID")
	s, err := h.sessions.Open(r.Context(), jobID)
	if err != nil {
		writeOpenError(w, jobID, err)
		return nil, false
	}
	return s, true
}

func writeOpenError(w http.ResponseWriter, jobID string, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidJobID):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid job id", nil)
	case errors.Is(err, session.ErrClosed):
		response.Error(w, http.StatusServiceUnavailable, "SHUTTING_DOWN", "Server is shutting down", nil)
	case errors.Is(err, snapshot.ErrUpstreamTimeout):
		slog.Warn("open page: upstream timeout", "job_id", jobID, "error", err)
		response.Error(w, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", "ContaMiner did not answer in time", nil)
	case errors.Is(err, snapshot.ErrUpstreamUnreachable),
		errors.Is(err, snapshot.ErrUpstreamStatus),
		errors.Is(err, snapshot.ErrDecode):
		slog.Warn("open page: upstream error", "job_id", jobID, "error", err)
		response.Error(w, http.StatusBadGateway, "UPSTREAM_ERROR", "ContaMiner request failed", nil)
	default:
		slog.Error("open page", "job_id", jobID, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to open page", nil)
	}
}
