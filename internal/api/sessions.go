package api

import (
	"errors"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ashureev/attention-labs/internal/domain"
	"github.com/ashureev/attention-labs/internal/engagement"
	"github.com/ashureev/attention-labs/internal/identity"
	"github.com/ashureev/attention-labs/internal/metrics"
	"github.com/ashureev/attention-labs/internal/sensor"
	"github.com/ashureev/attention-labs/internal/store"
	"github.com/ashureev/attention-labs/internal/telemetry"
	"github.com/go-chi/chi/v5"
)

// GetConfig returns the trigger constants for the frontend.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	rotation := make([]string, 0, len(h.cfg.Engagement.Rotation))
	for _, pt := range h.cfg.Engagement.Rotation {
		rotation = append(rotation, pt.String())
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"min_dwell_ms":       h.cfg.Engagement.MinDwell.Milliseconds(),
		"cooldown_ms":        h.cfg.Engagement.Cooldown.Milliseconds(),
		"rotation":           rotation,
		"history_capacity":   domain.HistoryCapacity,
		"poll_min":           domain.PollMin,
		"poll_max":           domain.PollMax,
		"sse_retry_ms":       h.cfg.SSE.RetryDelay.Milliseconds(),
		"sample_rate_limit":  h.cfg.Ingest.RateLimit,
		"sample_rate_window": h.cfg.Ingest.RateWindow.String(),
	})
}

// CreateSession starts a new monitored session for the observer.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	_, span := telemetry.Tracer().Start(r.Context(), "api.CreateSession")
	defer span.End()

	observerID := identity.ObserverIDFromContext(r.Context())
	m := h.sessions.Create(observerID)
	span.SetAttributes(attribute.String("session_id", m.ID()))

	state := m.State()
	slog.Info("[API] Session started", "session_id", m.ID(), "observer_id", observerID)
	JSON(w, http.StatusCreated, map[string]interface{}{
		"session_id": m.ID(),
		"started_at": state.Timing.StartedAt,
	})
}

// ListSessions returns the observer's live sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	observerID := identity.ObserverIDFromContext(r.Context())
	monitors := h.sessions.ListByObserver(observerID)

	out := make([]map[string]interface{}, 0, len(monitors))
	for _, m := range monitors {
		st := m.State()
		out = append(out, map[string]interface{}{
			"session_id": st.SessionID,
			"level":      st.Level,
			"timing":     st.Timing,
			"ended":      st.Ended,
		})
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": out})
}

// GetSession returns the full observable state of a session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	m, ok := h.session(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, m.State())
}

// PostSample ingests one sensor observation. The body is either a plain
// {"attention", "emotion"} object, an SDK event body, or such a body
// wrapped as {"raw": {...}}.
func (h *Handler) PostSample(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.Tracer().Start(r.Context(), "api.PostSample")
	defer span.End()

	m, ok := h.session(w, r.WithContext(ctx))
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("session_id", m.ID()))

	if !h.limiter.Allow(m.ObserverID()) {
		metrics.SamplesRateLimited.Inc()
		Error(w, http.StatusTooManyRequests, "rate_limited")
		return
	}

	var body map[string]interface{}
	if !h.decodeJSON(w, r, &body) {
		return
	}
	if body == nil {
		Error(w, http.StatusBadRequest, "empty sample")
		return
	}
	if raw, ok := body["raw"].(map[string]interface{}); ok {
		body = raw
	}

	sample, err := m.Ingest(sensor.DecodePayload(body))
	if err != nil {
		writeEngagementError(w, err)
		return
	}
	span.SetAttributes(attribute.String("level", sample.Level.String()))

	state := m.State()
	JSON(w, http.StatusAccepted, map[string]interface{}{
		"sample":        sample,
		"level":         state.Level,
		"active_prompt": state.ActivePrompt,
	})
}

type sensorStatusRequest struct {
	Status string `json:"status"`
}

// PostSensorStatus records the face-analysis SDK lifecycle state.
func (h *Handler) PostSensorStatus(w http.ResponseWriter, r *http.Request) {
	m, ok := h.session(w, r)
	if !ok {
		return
	}
	var req sensorStatusRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	status, err := domain.ParseSensorStatus(req.Status)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	m.SetSensorStatus(status)
	JSON(w, http.StatusOK, map[string]interface{}{"sensor": status})
}

// EndSession ends the session and returns its summary. Repeated calls
// return the same summary.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	_, span := telemetry.Tracer().Start(r.Context(), "api.EndSession")
	defer span.End()

	m, ok := h.session(w, r)
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("session_id", m.ID()))

	summary, first, err := h.sessions.End(m.ID())
	if err != nil {
		writeEngagementError(w, err)
		return
	}
	span.SetAttributes(attribute.Bool("first_end", first))
	JSON(w, http.StatusOK, summary)
}

// GetSummary returns the end-of-session summary. Live sessions that have
// not ended yield 409; evicted sessions are served from the archive.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	observerID := identity.ObserverIDFromContext(r.Context())

	m, err := h.sessions.Get(sessionID)
	switch {
	case err == nil:
		if m.ObserverID() != observerID {
			Error(w, http.StatusNotFound, "session not found")
			return
		}
		summary, ended := m.Summary()
		if !ended {
			Error(w, http.StatusConflict, "session_not_ended")
			return
		}
		JSON(w, http.StatusOK, summary)
		return
	case !errors.Is(err, engagement.ErrSessionNotFound):
		writeEngagementError(w, err)
		return
	}

	report, err := h.repo.GetReport(r.Context(), sessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("[API] Failed to load report", "error", err, "session_id", sessionID)
		}
		writeEngagementError(w, err)
		return
	}
	if report.ObserverID != observerID {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, report.Summary)
}
