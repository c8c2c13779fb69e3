package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/attention-labs/internal/domain"
	"github.com/ashureev/attention-labs/internal/engagement"
	"github.com/ashureev/attention-labs/internal/metrics"
	"github.com/ashureev/attention-labs/internal/sensor"
	"github.com/ashureev/attention-labs/internal/stream"
	"github.com/coder/websocket"
)

const wsWriteTimeout = 5 * time.Second

// wsMessage is an inbound websocket message.
type wsMessage struct {
	Type      string                 `json:"type"`
	Attention *float64               `json:"attention,omitempty"`
	Emotion   *string                `json:"emotion,omitempty"`
	Raw       map[string]interface{} `json:"raw,omitempty"`
	Status    string                 `json:"status,omitempty"`
}

// wsOutbound wraps a stream message for the websocket client.
type wsOutbound struct {
	Type  string            `json:"type"`
	ID    int64             `json:"id,omitempty"`
	Event *engagement.Event `json:"event,omitempty"`
	Error string            `json:"error,omitempty"`
}

// ServeWebSocket carries a bidirectional session stream: samples, sensor
// status and dismissals in, engagement events out.
func (h *Handler) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	m, ok := h.session(w, r)
	if !ok {
		return
	}
	sessionID := m.ID()

	if !h.checkOrigin(r) {
		Error(w, http.StatusForbidden, "origin not allowed")
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("[WS] Failed to accept websocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream closed"); closeErr != nil {
			slog.Debug("[WS] Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	sub, _ := h.hub.Subscribe(sessionID, 0)
	defer h.hub.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	slog.Info("[WS] Connection established", "session_id", sessionID, "conn_id", sub.ID)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer cancel()
		h.wsInputLoop(ctx, ws, m)
	}()

	go func() {
		defer wg.Done()
		defer cancel()
		h.wsOutputLoop(ctx, ws, sub)
	}()

	wg.Wait()
	slog.Info("[WS] Connection closed", "session_id", sessionID, "conn_id", sub.ID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.cfg.IsDevelopment() {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || origin == h.cfg.FrontendURL {
		return true
	}
	slog.Warn("[WS] Origin rejected", "origin", origin, "allowed", h.cfg.FrontendURL)
	return false
}

func (h *Handler) wsInputLoop(ctx context.Context, ws *websocket.Conn, m *engagement.Monitor) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("[WS] Closed by client", "session_id", m.ID())
			} else if ctx.Err() == nil {
				slog.Warn("[WS] Read error", "error", err, "session_id", m.ID())
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.wsWrite(ctx, ws, wsOutbound{Type: "error", Error: "invalid message"})
			continue
		}

		switch msg.Type {
		case "sample", "raw":
			if !h.limiter.Allow(m.ObserverID()) {
				metrics.SamplesRateLimited.Inc()
				h.wsWrite(ctx, ws, wsOutbound{Type: "error", Error: "rate_limited"})
				continue
			}
			raw := domain.RawSample{Attention: msg.Attention, Emotion: msg.Emotion}
			if msg.Type == "raw" {
				raw = sensor.DecodePayload(msg.Raw)
			}
			if _, err := m.Ingest(raw); err != nil {
				h.wsWrite(ctx, ws, wsOutbound{Type: "error", Error: err.Error()})
			}
		case "sensor_status":
			status, err := domain.ParseSensorStatus(msg.Status)
			if err != nil {
				h.wsWrite(ctx, ws, wsOutbound{Type: "error", Error: err.Error()})
				continue
			}
			m.SetSensorStatus(status)
		case "dismiss":
			m.Dismiss()
		case "ping":
			h.wsWrite(ctx, ws, wsOutbound{Type: "pong"})
		default:
			h.wsWrite(ctx, ws, wsOutbound{Type: "error", Error: "unknown message type"})
		}
	}
}

func (h *Handler) wsOutputLoop(ctx context.Context, ws *websocket.Conn, sub *stream.Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				slog.Info("[WS] Subscription closed", "session_id", sub.SessionID, "lagged", sub.Lagged())
				return
			}
			ev := msg.Event
			if err := h.wsWrite(ctx, ws, wsOutbound{Type: "event", ID: msg.ID, Event: &ev}); err != nil {
				return
			}
		}
	}
}

func (h *Handler) wsWrite(ctx context.Context, ws *websocket.Conn, v wsOutbound) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := ws.Write(writeCtx, websocket.MessageText, data); err != nil {
		if ctx.Err() == nil {
			slog.Debug("[WS] Write error", "error", err)
		}
		return err
	}
	return nil
}
