package sensor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/attention-labs/internal/domain"
)

const replayInput = `{"attention": 0.9, "emotion": "Happy", "at": "2024-05-01T12:00:00Z"}
not json

{"att": 0.2, "at": "2024-05-01T12:00:01Z"}
{"output": {"score": 0.5, "dominantEmotion": "Neutral"}, "at": "2024-05-01T12:00:02Z"}
`

func collect(t *testing.T, src *FileSource) []domain.RawSample {
	t.Helper()
	var out []domain.RawSample
	timeout := time.After(5 * time.Second)
	for {
		select {
		case raw, ok := <-src.Samples():
			if !ok {
				return out
			}
			out = append(out, raw)
		case <-timeout:
			t.Fatal("replay did not finish")
		}
	}
}

func TestReaderSource_SkipsMalformedLines(t *testing.T) {
	src := NewReaderSource(context.Background(), strings.NewReader(replayInput), ReplayOptions{})
	defer src.Stop()

	got := collect(t, src)
	if len(got) != 3 {
		t.Fatalf("delivered %d samples, want 3", len(got))
	}
	if *got[1].Attention != 0.2 || *got[2].Emotion != "Neutral" {
		t.Fatalf("unexpected samples: %+v", got)
	}
	delivered, skipped := src.Stats()
	if delivered != 3 || skipped != 1 {
		t.Fatalf("Stats() = %d, %d", delivered, skipped)
	}
	if err := src.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
}

func TestReaderSource_RealtimePacing(t *testing.T) {
	start := time.Now()
	src := NewReaderSource(context.Background(), strings.NewReader(replayInput), ReplayOptions{
		Realtime: true,
		Speed:    20,
	})
	defer src.Stop()

	collect(t, src)
	// Two one-second gaps at 20x.
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Fatalf("replay finished in %v, expected pacing", elapsed)
	}
}

func TestReaderSource_StopEndsReplay(t *testing.T) {
	src := NewReaderSource(context.Background(), strings.NewReader(replayInput), ReplayOptions{})
	src.Stop()
	src.Stop()

	select {
	case <-src.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("replay goroutine did not exit after Stop")
	}
}

func TestReaderSource_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := NewReaderSource(ctx, strings.NewReader(replayInput), ReplayOptions{})
	cancel()

	select {
	case <-src.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("replay goroutine did not exit after cancel")
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.ndjson")
	if err := os.WriteFile(path, []byte(replayInput), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := OpenFile(context.Background(), path, ReplayOptions{})
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer src.Stop()

	if got := collect(t, src); len(got) != 3 {
		t.Fatalf("delivered %d samples", len(got))
	}

	if _, err := OpenFile(context.Background(), filepath.Join(t.TempDir(), "missing"), ReplayOptions{}); err == nil {
		t.Fatal("expected error for missing file")
	}
}
