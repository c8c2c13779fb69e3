package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/attention-labs/internal/domain"
	"github.com/ashureev/attention-labs/internal/engagement"
)

type sseFrame struct {
	id    string
	event string
	data  string
}

// readFrames parses SSE frames from body onto the returned channel.
func readFrames(body *bufio.Reader) <-chan sseFrame {
	out := make(chan sseFrame, 64)
	go func() {
		defer close(out)
		var f sseFrame
		for {
			line, err := body.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case line == "":
				if f.event != "" || f.data != "" {
					out <- f
				}
				f = sseFrame{}
			case strings.HasPrefix(line, "id: "):
				f.id = strings.TrimPrefix(line, "id: ")
			case strings.HasPrefix(line, "event: "):
				f.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				f.data = strings.TrimPrefix(line, "data: ")
			}
		}
	}()
	return out
}

func waitForFrame(t *testing.T, frames <-chan sseFrame, event string) sseFrame {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				t.Fatalf("stream closed before %q", event)
			}
			if f.event == event {
				return f
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q", event)
		}
	}
}

func openStream(t *testing.T, srv *httptest.Server, id string, lastEventID string) <-chan sseFrame {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/sessions/"+id+"/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stream status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	return readFrames(bufio.NewReader(resp.Body))
}

func TestStreamEventsDeliversLiveEvents(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()
	id := env.createSession(t)

	frames := openStream(t, srv, id, "")
	state := waitForFrame(t, frames, "state")
	var st engagement.State
	if err := json.Unmarshal([]byte(state.data), &st); err != nil || st.SessionID != id {
		t.Fatalf("state frame = %q (%v)", state.data, err)
	}

	env.do(t, http.MethodPost, "/api/sessions/"+id+"/samples", map[string]float64{"attention": 0.9})

	f := waitForFrame(t, frames, string(engagement.EventSample))
	if f.id == "" {
		t.Fatal("sample frame has no id")
	}
	var ev engagement.Event
	if err := json.Unmarshal([]byte(f.data), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Sample == nil || ev.Sample.Level != domain.LevelHigh {
		t.Fatalf("event = %+v", ev)
	}
	waitForFrame(t, frames, string(engagement.EventLevelChanged))
}

func TestStreamEventsReplaysAfterLastEventID(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()
	id := env.createSession(t)

	// session_started is already published; add a sample and a sensor change.
	env.do(t, http.MethodPost, "/api/sessions/"+id+"/samples", map[string]float64{"attention": 0.5})
	env.do(t, http.MethodPost, "/api/sessions/"+id+"/sensor-status", map[string]string{"status": "running"})

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.LastID() < 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if env.hub.LastID() < 4 {
		t.Fatalf("hub published %d events", env.hub.LastID())
	}

	frames := openStream(t, srv, id, "1")
	first := waitForFrame(t, frames, string(engagement.EventSample))
	if first.id != "2" {
		t.Fatalf("first replayed id = %s, want 2", first.id)
	}
	waitForFrame(t, frames, string(engagement.EventSensorStatus))
	waitForFrame(t, frames, "state")
}

func TestStreamEventsUnknownSession(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, http.MethodGet, "/api/sessions/nope/events", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}
