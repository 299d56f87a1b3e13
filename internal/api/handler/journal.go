package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/livewatch/internal/api/response"
	"github.com/kiranshivaraju/livewatch/internal/store"
	"github.com/kiranshivaraju/livewatch/pkg/models"
)

// JournalReader is the read side of the diagnostics journal.
type JournalReader interface {
	ListDiagnostics(ctx context.Context, filter store.DiagnosticFilter) ([]*models.Diagnostic, int, error)
	ListSettlements(ctx context.Context, jobID string) ([]*models.Settlement, error)
	GetSettlement(ctx context.Context, jobID, uniprotID string) (*models.Settlement, error)
}

var validKinds = map[string]bool{
	models.DiagnosticUnknownTask: true,
	models.DiagnosticTransport:   true,
	models.DiagnosticDecode:      true,
}

// JournalHandler serves the admin journal listings.
type JournalHandler struct {
	store JournalReader
}

// NewJournalHandler creates a JournalHandler.
func NewJournalHandler(s JournalReader) *JournalHandler {
	return &JournalHandler{store: s}
}

// Diagnostics handles GET /api/v1/admin/jobs/{jobID}/diagnostics.
// Query: kind, since (RFC3339), page, limit.
func (h *JournalHandler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	filter := store.DiagnosticFilter{JobID: chi.URLParam(r, "jobID")}
	q := r.URL.Query()

	if kind := q.Get("kind"); kind != "" {
		if !validKinds[kind] {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"kind must be one of unknown_task_key, transport, decode", nil)
			return
		}
		filter.Kind = kind
	}

	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "since must be a valid RFC3339 timestamp", nil)
			return
		}
		filter.Since = t
	}

	var ok bool
	if filter.Page, ok = intParam(w, q.Get("page"), "page", 1, 1, store.MaxPage); !ok {
		return
	}
	if filter.Limit, ok = intParam(w, q.Get("limit"), "limit", 20, 1, 100); !ok {
		return
	}

	items, total, err := h.store.ListDiagnostics(r.Context(), filter)
	if err != nil {
		slog.Error("list diagnostics", "job_id", filter.JobID, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list diagnostics", nil)
		return
	}
	if items == nil {
		items = []*models.Diagnostic{}
	}

	response.Collection(w, items, response.PaginationMeta{
		Page:    filter.Page,
		Limit:   filter.Limit,
		Total:   total,
		HasNext: filter.Page*filter.Limit < total,
	})
}

// Settlements handles GET /api/v1/admin/jobs/{jobID}/settlements.
func (h *JournalHandler) Settlements(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	items, err := h.store.ListSettlements(r.Context(), jobID)
	if err != nil {
		slog.Error("list settlements", "job_id", jobID, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list settlements", nil)
		return
	}
	if items == nil {
		items = []*models.Settlement{}
	}
	response.JSON(w, items)
}

// Settlement handles GET /api/v1/admin/jobs/{jobID}/settlements/{uniprotID}.
func (h *JournalHandler) Settlement(w http.ResponseWriter, r *http.Request) {
	jobID, uniprotID := chi.URLParam(r, "jobID"), chi.URLParam(r, "uniprotID")
	st, err := h.store.GetSettlement(r.Context(), jobID, uniprotID)
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Task has not settled", nil)
		return
	}
	if err != nil {
		slog.Error("get settlement", "job_id", jobID, "uniprot_id", uniprotID, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get settlement", nil)
		return
	}
	response.JSON(w, st)
}

// intParam parses an optional bounded integer; hi 0 means unbounded.
func intParam(w http.ResponseWriter, raw, name string, def, lo, hi int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || (hi > 0 && n > hi) {
		msg := name + " must be an integer >= " + strconv.Itoa(lo)
		if hi > 0 {
			msg = name + " must be an integer between " + strconv.Itoa(lo) + " and " + strconv.Itoa(hi)
		}
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", msg, nil)
		return 0, false
	}
	return n, true
}
