package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ashureev/talent-manual/internal/domain"
	"github.com/ashureev/talent-manual/internal/identity"
	"github.com/go-chi/chi/v5"
)

const maxListLimit = 100

// ReportReader reads archived reports.
type ReportReader interface {
	GetReport(ctx context.Context, id string) (*domain.ReportRecord, error)
	ListReports(ctx context.Context, clientID string, limit int) ([]*domain.ReportRecord, error)
}

// ReportHandler serves the calling client's report archive.
type ReportHandler struct {
	reports ReportReader
}

// NewReportHandler creates a report handler.
func NewReportHandler(reports ReportReader) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// RegisterRoutes registers report routes.
func (h *ReportHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/reports", h.List)
	r.Get("/api/reports/{id}", h.Get)
}

// List returns the client's reports, newest first.
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	clientID := identity.ClientIDFromContext(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = min(n, maxListLimit)
	}

	records, err := h.reports.ListReports(r.Context(), clientID, limit)
	if err != nil {
		slog.Error("Failed to list reports", "error", err, "client_id", clientID)
		Error(w, http.StatusInternalServerError, "internal_error")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"reports": records})
}

// Get returns one report. Reports of other clients are reported as missing.
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	clientID := identity.ClientIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	rec, err := h.reports.GetReport(r.Context(), id)
	if err != nil {
		slog.Error("Failed to get report", "error", err, "report_id", id)
		Error(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if rec == nil || rec.ClientID != clientID {
		Error(w, http.StatusNotFound, "report_not_found")
		return
	}
	JSON(w, http.StatusOK, rec)
}
