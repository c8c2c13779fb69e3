package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ashureev/attention-labs/internal/domain"
	"github.com/ashureev/attention-labs/internal/identity"
	"github.com/ashureev/attention-labs/internal/store"
	"github.com/go-chi/chi/v5"
)

const maxReportLimit = 200

// ListReports returns the observer's archived session reports, newest first.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	observerID := identity.ObserverIDFromContext(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxReportLimit)
	}

	reports, err := h.repo.ListReports(r.Context(), observerID, limit)
	if err != nil {
		slog.Error("[API] Failed to list reports", "error", err, "observer_id", observerID)
		Error(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	if reports == nil {
		reports = []*domain.SessionReport{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"reports": reports})
}

// GetReport returns one archived report.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	report, err := h.repo.GetReport(r.Context(), sessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("[API] Failed to load report", "error", err, "session_id", sessionID)
		}
		writeEngagementError(w, err)
		return
	}
	if report.ObserverID != identity.ObserverIDFromContext(r.Context()) {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, report)
}
