package eventlog

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/attention-labs/internal/engagement"
)

func TestFileLoggerWritesPerSessionNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := New(Config{Enabled: true, Dir: dir, QueueSize: 16}, slog.Default())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Log(Record{
		ObserverID: "obs-1",
		SessionID:  "sess-1",
		Event:      engagement.Event{Type: engagement.EventSessionStarted, SessionID: "sess-1"},
	})

	path := filepath.Join(dir, "obs-1", "sess-1.ndjson")
	line := waitForLogLine(t, path)
	var got Record
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	if got.Event.Type != engagement.EventSessionStarted {
		t.Fatalf("unexpected event type: %q", got.Event.Type)
	}
	if got.Time.IsZero() {
		t.Fatal("expected timestamp to be populated")
	}
}

func TestFileLoggerCloseFlushes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := New(Config{Enabled: true, Dir: dir, QueueSize: 64}, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		logger.Log(Record{SessionID: "s", Event: engagement.Event{Type: engagement.EventSample}})
	}
	logger.CloseSession("s")
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}
	logger.Log(Record{SessionID: "s"})

	data, err := os.ReadFile(filepath.Join(dir, "anonymous", "s.ndjson"))
	if err != nil {
		t.Fatal(err)
	}
	if n := len(strings.Split(strings.TrimSpace(string(data)), "\n")); n != 10 {
		t.Fatalf("lines = %d, want 10", n)
	}
}

func TestSafeName(t *testing.T) {
	tests := map[string]string{
		"sess-1":           "sess-1",
		"..":               "",
		"../../etc/passwd": "______etc_passwd",
		" ":                "",
	}
	for in, want := range tests {
		if got := safeName(in); got != want {
			t.Errorf("safeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewDisabledIsNop(t *testing.T) {
	logger, err := New(Config{Enabled: false}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := logger.(Nop); !ok {
		t.Fatalf("logger = %T, want Nop", logger)
	}
}

func waitForLogLine(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if len(lines) > 0 {
				return lines[len(lines)-1]
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for log file %s", path)
	return ""
}
