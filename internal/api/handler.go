// Package api provides HTTP handlers for the engagement API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/attention-labs/internal/config"
	"github.com/ashureev/attention-labs/internal/engagement"
	"github.com/ashureev/attention-labs/internal/identity"
	"github.com/ashureev/attention-labs/internal/store"
	"github.com/ashureev/attention-labs/internal/stream"
	"github.com/go-chi/chi/v5"
)

// Handler serves the session, prompt, report and stream endpoints.
type Handler struct {
	sessions *engagement.Manager
	repo     store.Repository
	hub      *stream.Hub
	limiter  *RateLimiter
	cfg      *config.Config
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(sessions *engagement.Manager, repo store.Repository, hub *stream.Hub, cfg *config.Config) *Handler {
	return &Handler{
		sessions: sessions,
		repo:     repo,
		hub:      hub,
		limiter:  NewRateLimiter(cfg.Ingest.RateLimit, cfg.Ingest.RateWindow),
		cfg:      cfg,
	}
}

// StartBackground starts the rate limiter eviction loop.
func (h *Handler) StartBackground(ctx context.Context) {
	h.limiter.StartEviction(ctx)
}

// RegisterRoutes registers the REST and SSE routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/config", h.GetConfig)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.ListSessions)
			r.Post("/", h.CreateSession)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", h.GetSession)
				r.Post("/samples", h.PostSample)
				r.Post("/sensor-status", h.PostSensorStatus)
				r.Post("/end", h.EndSession)
				r.Get("/summary", h.GetSummary)
				r.Get("/events", h.StreamEvents)

				r.Route("/prompts", func(r chi.Router) {
					r.Post("/poll", h.RequestPoll)
					r.Post("/recap", h.RequestRecap)
					r.Post("/{promptType}/request", h.RequestPrompt)
					r.Post("/dismiss", h.DismissPrompt)
					r.Post("/poll/submit", h.SubmitPoll)
					r.Post("/break/confirm", h.ConfirmBreak)
					r.Post("/recap/confirm", h.ConfirmRecap)
					r.Post("/summary/submit", h.SubmitSummary)
					r.Post("/summary/draft", h.SaveSummaryDraft)
				})
			})
		})

		r.Get("/reports", h.ListReports)
		r.Get("/reports/{sessionID}", h.GetReport)
	})

	r.Get("/ws/sessions/{sessionID}", h.ServeWebSocket)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// writeEngagementError maps monitor and store errors to HTTP statuses.
func writeEngagementError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engagement.ErrSessionNotFound), errors.Is(err, store.ErrNotFound):
		Error(w, http.StatusNotFound, "session not found")
	case errors.Is(err, engagement.ErrSessionEnded):
		Error(w, http.StatusConflict, "session_ended")
	case errors.Is(err, engagement.ErrNoActivePrompt):
		Error(w, http.StatusConflict, "no_active_prompt")
	case errors.Is(err, engagement.ErrPromptTypeMismatch):
		Error(w, http.StatusConflict, "prompt_type_mismatch")
	case errors.Is(err, engagement.ErrPollValueOutOfRange):
		Error(w, http.StatusBadRequest, "poll value must be between 1 and 5")
	default:
		slog.Error("[API] Request failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads a size-limited JSON body into v. An empty body leaves v
// untouched.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Ingest.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// session resolves the {sessionID} URL parameter to a monitor owned by the
// requesting observer. It writes the error response itself.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*engagement.Monitor, bool) {
	m, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeEngagementError(w, err)
		return nil, false
	}
	if m.ObserverID() != identity.ObserverIDFromContext(r.Context()) {
		Error(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return m, true
}
