package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ashureev/attention-labs/internal/stream"
)

const (
	defaultKeepalive  = 10 * time.Second
	defaultRetryDelay = 5 * time.Second
)

// StreamEvents streams a session's engagement events over SSE. Every event
// carries an ID; clients reconnecting with Last-Event-ID (or ?lastEventId=)
// receive the buffered events they missed before live delivery resumes.
//
//nolint:gocognit // SSE lifecycle handling keeps its branches together.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	m, ok := h.session(w, r)
	if !ok {
		return
	}
	sessionID := m.ID()

	lastEventID := int64(0)
	idHeader := r.Header.Get("Last-Event-ID")
	if idHeader == "" {
		idHeader = r.URL.Query().Get("lastEventId")
	}
	if idHeader != "" {
		if parsed, err := strconv.ParseInt(idHeader, 10, 64); err == nil {
			lastEventID = parsed
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	retryDelay := h.cfg.SSE.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	if _, err := fmt.Fprintf(w, "retry: %d\n\n", retryDelay.Milliseconds()); err != nil {
		slog.Warn("[SSE] Failed to write retry header", "error", err, "session_id", sessionID)
		return
	}

	sub, missed := h.hub.Subscribe(sessionID, lastEventID)
	defer h.hub.Unsubscribe(sub)

	for _, msg := range missed {
		if err := writeMessage(w, msg); err != nil {
			slog.Warn("[SSE] Failed to replay event", "error", err, "session_id", sessionID, "event_id", msg.ID)
			return
		}
	}

	state, err := json.Marshal(m.State())
	if err != nil {
		slog.Error("[SSE] Failed to marshal session state", "error", err, "session_id", sessionID)
		return
	}
	if err := writeSSE(w, "state", string(state)); err != nil {
		slog.Warn("[SSE] Failed to write state event", "error", err, "session_id", sessionID)
		return
	}
	flusher.Flush()

	slog.Info("[SSE] Connection established",
		"session_id", sessionID,
		"conn_id", sub.ID,
		"reconnect", lastEventID > 0,
		"replayed", len(missed),
	)

	keepaliveInterval := h.cfg.SSE.KeepaliveInterval
	if keepaliveInterval <= 0 {
		keepaliveInterval = defaultKeepalive
	}
	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			slog.Info("[SSE] Client disconnected", "session_id", sessionID, "conn_id", sub.ID)
			return
		case msg, ok := <-sub.C:
			if !ok {
				slog.Info("[SSE] Subscription closed", "session_id", sessionID, "conn_id", sub.ID, "lagged", sub.Lagged())
				return
			}
			if err := writeMessage(w, msg); err != nil {
				slog.Warn("[SSE] Failed to write event", "error", err, "session_id", sessionID)
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if err := writeSSE(w, "ping", `{"status":"alive"}`); err != nil {
				slog.Warn("[SSE] Failed to write keepalive ping", "error", err, "session_id", sessionID)
				return
			}
			flusher.Flush()
		}
	}
}

func writeMessage(w io.Writer, msg stream.Message) error {
	data, err := json.Marshal(msg.Event)
	if err != nil {
		return err
	}
	return writeSSEWithID(w, msg.ID, string(msg.Event.Type), string(data))
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func writeSSEWithID(w io.Writer, id int64, event, data string) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}
