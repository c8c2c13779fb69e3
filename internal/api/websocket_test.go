package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/attention-labs/internal/domain"
	"github.com/ashureev/attention-labs/internal/engagement"
	"github.com/coder/websocket"
)

func dialSession(t *testing.T, srv *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/sessions/" + id
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readUntil reads outbound messages until match returns true.
func readUntil(t *testing.T, ws *websocket.Conn, match func(wsOutbound) bool) wsOutbound {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg wsOutbound
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode %q: %v", data, err)
		}
		if match(msg) {
			return msg
		}
	}
}

func isEvent(typ engagement.EventType) func(wsOutbound) bool {
	return func(m wsOutbound) bool {
		return m.Type == "event" && m.Event != nil && m.Event.Type == typ
	}
}

func TestWebSocketIngestsSamples(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()
	id := env.createSession(t)
	ws := dialSession(t, srv, id)

	send(t, ws, map[string]interface{}{"type": "ping"})
	readUntil(t, ws, func(m wsOutbound) bool { return m.Type == "pong" })

	send(t, ws, map[string]interface{}{"type": "sample", "attention": 0.2, "emotion": "neutral"})
	msg := readUntil(t, ws, isEvent(engagement.EventSample))
	if msg.ID == 0 || msg.Event.Sample.Level != domain.LevelLow {
		t.Fatalf("sample event = %+v", msg)
	}

	send(t, ws, map[string]interface{}{
		"type": "raw",
		"raw":  map[string]interface{}{"output": map[string]interface{}{"att": 0.95}},
	})
	msg = readUntil(t, ws, isEvent(engagement.EventLevelChanged))
	if *msg.Event.Level != domain.LevelHigh {
		t.Fatalf("level event = %+v", msg.Event)
	}

	send(t, ws, map[string]interface{}{"type": "sensor_status", "status": "running"})
	readUntil(t, ws, isEvent(engagement.EventSensorStatus))

	m, _ := env.sessions.Get(id)
	if st := m.State(); len(st.History) != 2 || st.Sensor != domain.SensorRunning {
		t.Fatalf("state history=%d sensor=%q", len(st.History), st.Sensor)
	}
}

func TestWebSocketDismissAndErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()
	id := env.createSession(t)
	ws := dialSession(t, srv, id)

	if w := env.do(t, http.MethodPost, "/api/sessions/"+id+"/prompts/poll", nil); w.Code != http.StatusCreated {
		t.Fatalf("manual poll: %d", w.Code)
	}
	readUntil(t, ws, isEvent(engagement.EventPromptActivated))

	send(t, ws, map[string]interface{}{"type": "dismiss"})
	msg := readUntil(t, ws, isEvent(engagement.EventPromptCleared))
	if msg.Event.Action != "dismissed" {
		t.Fatalf("clear action = %q", msg.Event.Action)
	}

	send(t, ws, map[string]interface{}{"type": "teleport"})
	msg = readUntil(t, ws, func(m wsOutbound) bool { return m.Type == "error" })
	if msg.Error != "unknown message type" {
		t.Fatalf("error = %q", msg.Error)
	}

	env.do(t, http.MethodPost, "/api/sessions/"+id+"/end", nil)
	readUntil(t, ws, isEvent(engagement.EventSessionEnded))
	send(t, ws, map[string]interface{}{"type": "sample", "attention": 0.5})
	msg = readUntil(t, ws, func(m wsOutbound) bool { return m.Type == "error" })
	if msg.Error != engagement.ErrSessionEnded.Error() {
		t.Fatalf("error = %q", msg.Error)
	}
}
