package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/attention-labs/internal/domain"
	"github.com/ashureev/attention-labs/internal/store"
)

func defaultOptions() runOptions {
	return runOptions{
		speed:      1,
		minDwell:   6 * time.Second,
		cooldown:   15 * time.Second,
		rotation:   "poll,summary,break,recap",
		observerID: "replay",
		logLevel:   "error",
	}
}

// writeRecording writes n one-second-spaced samples with the given attention.
func writeRecording(t *testing.T, n int, attention float64) string {
	t.Helper()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `{"attention": %g, "emotion": "Neutral", "at": %q}`+"\n",
			attention, start.Add(time.Duration(i)*time.Second).Format(time.RFC3339))
	}
	b.WriteString("not json\n")
	path := filepath.Join(t.TempDir(), "session.ndjson")
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunReplay_FiresOnRecordedTimestamps(t *testing.T) {
	path := writeRecording(t, 10, 0.1)

	var stdout, stderr bytes.Buffer
	if err := runReplay(context.Background(), path, defaultOptions(), &stdout, &stderr); err != nil {
		t.Fatalf("runReplay() error = %v", err)
	}

	var summary domain.SessionSummary
	if err := json.Unmarshal(stdout.Bytes(), &summary); err != nil {
		t.Fatalf("summary is not JSON: %v\n%s", err, stdout.String())
	}
	if summary.SampleCount != 10 {
		t.Errorf("SampleCount = %d, want 10", summary.SampleCount)
	}
	if summary.DurationSeconds == nil || *summary.DurationSeconds != 9 {
		t.Errorf("DurationSeconds = %v, want 9", summary.DurationSeconds)
	}
	// Low from 12:00:00; 12:00:07 is the first sample past the 6s dwell.
	if got := summary.PromptCounts[domain.SourceAuto]; got != 1 {
		t.Errorf("auto prompts = %d, want 1", got)
	}
}

func TestRunReplay_AttentiveSessionHasNoPrompts(t *testing.T) {
	path := writeRecording(t, 10, 0.9)

	var stdout, stderr bytes.Buffer
	if err := runReplay(context.Background(), path, defaultOptions(), &stdout, &stderr); err != nil {
		t.Fatalf("runReplay() error = %v", err)
	}
	var summary domain.SessionSummary
	if err := json.Unmarshal(stdout.Bytes(), &summary); err != nil {
		t.Fatal(err)
	}
	if got := summary.PromptCounts[domain.SourceAuto]; got != 0 {
		t.Errorf("auto prompts = %d, want 0", got)
	}
}

func TestRunReplay_EventsToStderr(t *testing.T) {
	path := writeRecording(t, 8, 0.1)
	opts := defaultOptions()
	opts.events = true

	var stdout, stderr bytes.Buffer
	if err := runReplay(context.Background(), path, opts, &stdout, &stderr); err != nil {
		t.Fatalf("runReplay() error = %v", err)
	}

	types := map[string]int{}
	scanner := bufio.NewScanner(&stderr)
	for scanner.Scan() {
		var ev struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(scanner.Bytes(), &ev) == nil && ev.Type != "" {
			types[ev.Type]++
		}
	}
	for _, want := range []string{"session_started", "sample", "prompt_activated", "session_ended"} {
		if types[want] == 0 {
			t.Errorf("no %q event written, got %v", want, types)
		}
	}
	if types["sample"] != 8 {
		t.Errorf("sample events = %d, want 8", types["sample"])
	}
}

func TestRunReplay_OutOfOrderLineKeepsClockMonotonic(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	line := func(offset time.Duration) string {
		return fmt.Sprintf(`{"attention": 0.1, "at": %q}`+"\n", start.Add(offset).Format(time.RFC3339))
	}
	var b strings.Builder
	for i := 0; i < 6; i++ {
		b.WriteString(line(time.Duration(i) * time.Second))
	}
	b.WriteString(line(-time.Minute))
	for i := 6; i < 10; i++ {
		b.WriteString(line(time.Duration(i) * time.Second))
	}
	path := filepath.Join(t.TempDir(), "shuffled.ndjson")
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatal(err)
	}

	opts := defaultOptions()
	opts.events = true
	var stdout, stderr bytes.Buffer
	if err := runReplay(context.Background(), path, opts, &stdout, &stderr); err != nil {
		t.Fatalf("runReplay() error = %v", err)
	}

	var prev time.Time
	scanner := bufio.NewScanner(&stderr)
	for scanner.Scan() {
		var ev struct {
			Type string    `json:"type"`
			Time time.Time `json:"time"`
		}
		if json.Unmarshal(scanner.Bytes(), &ev) != nil || ev.Type != "sample" {
			continue
		}
		if ev.Time.Before(prev) {
			t.Fatalf("sample at %v after sample at %v", ev.Time, prev)
		}
		prev = ev.Time
	}

	var summary domain.SessionSummary
	if err := json.Unmarshal(stdout.Bytes(), &summary); err != nil {
		t.Fatal(err)
	}
	if summary.SampleCount != 11 {
		t.Errorf("SampleCount = %d, want 11", summary.SampleCount)
	}
	if summary.DurationSeconds == nil || *summary.DurationSeconds != 9 {
		t.Errorf("DurationSeconds = %v, want 9", summary.DurationSeconds)
	}
	if got := summary.PromptCounts[domain.SourceAuto]; got != 1 {
		t.Errorf("auto prompts = %d, want 1", got)
	}
}

func TestRunReplay_SavesReport(t *testing.T) {
	path := writeRecording(t, 3, 0.5)
	opts := defaultOptions()
	opts.dbPath = filepath.Join(t.TempDir(), "reports.db")
	opts.observerID = "obs-cli"

	var stdout, stderr bytes.Buffer
	if err := runReplay(context.Background(), path, opts, &stdout, &stderr); err != nil {
		t.Fatalf("runReplay() error = %v", err)
	}

	repo, err := store.NewSQLite(opts.dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()

	reports, err := repo.ListReports(context.Background(), "obs-cli", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 || reports[0].Summary.SampleCount != 3 {
		t.Fatalf("reports = %+v", reports)
	}
}

func TestRunReplay_InvalidOptions(t *testing.T) {
	path := writeRecording(t, 1, 0.5)
	tests := []struct {
		name   string
		modify func(*runOptions)
	}{
		{"bad rotation", func(o *runOptions) { o.rotation = "poll,nap" }},
		{"duplicate rotation", func(o *runOptions) { o.rotation = "poll,poll" }},
		{"zero dwell", func(o *runOptions) { o.minDwell = 0 }},
		{"bad log level", func(o *runOptions) { o.logLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := defaultOptions()
			tt.modify(&opts)
			var stdout, stderr bytes.Buffer
			if err := runReplay(context.Background(), path, opts, &stdout, &stderr); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRunReplay_MissingFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := runReplay(context.Background(), filepath.Join(t.TempDir(), "nope.ndjson"), defaultOptions(), &stdout, &stderr)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestReplayClock(t *testing.T) {
	c := &replayClock{}
	if c.Now().IsZero() {
		t.Fatal("unset clock should fall back to wall time")
	}
	t1 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.Set(t1)
	c.Set(t1.Add(-time.Second))
	if !c.Now().Equal(t1) {
		t.Fatalf("Now() = %v, want %v", c.Now(), t1)
	}
}
