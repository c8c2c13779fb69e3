package sensor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ashureev/attention-labs/internal/domain"
)

const maxLineSize = 1024 * 1024

// ReplayOptions controls how a recorded sample stream is played back.
type ReplayOptions struct {
	// Realtime sleeps between samples for the gap between their "at"
	// timestamps, divided by Speed.
	Realtime bool
	Speed    float64
	Logger   *slog.Logger
}

// FileSource replays newline-delimited sensor payloads. It implements
// engagement.SampleSource.
type FileSource struct {
	ch     chan domain.RawSample
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	closer io.Closer

	mu      sync.Mutex
	err     error
	read    int
	skipped int
}

// OpenFile starts replaying the NDJSON file at path.
func OpenFile(ctx context.Context, path string, opts ReplayOptions) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	src := NewReaderSource(ctx, f, opts)
	src.closer = f
	return src, nil
}

// NewReaderSource starts replaying NDJSON payloads read from r.
func NewReaderSource(ctx context.Context, r io.Reader, opts ReplayOptions) *FileSource {
	if opts.Speed <= 0 {
		opts.Speed = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	src := &FileSource{
		ch:   make(chan domain.RawSample),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go src.run(ctx, r, opts)
	return src
}

func (s *FileSource) run(ctx context.Context, r io.Reader, opts ReplayOptions) {
	defer close(s.done)
	defer close(s.ch)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var prev time.Time
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}

		raw, err := Decode(data)
		if err != nil {
			s.mu.Lock()
			s.skipped++
			s.mu.Unlock()
			opts.Logger.Warn("[SENSOR] Skipping malformed replay line", "line", line, "error", err)
			continue
		}

		if opts.Realtime && !prev.IsZero() && !raw.At.IsZero() && raw.At.After(prev) {
			gap := time.Duration(float64(raw.At.Sub(prev)) / opts.Speed)
			timer := time.NewTimer(gap)
			select {
			case <-timer.C:
			case <-s.stop:
				timer.Stop()
				return
			case <-ctx.Done():
				timer.Stop()
				s.setErr(ctx.Err())
				return
			}
		}
		if !raw.At.IsZero() {
			prev = raw.At
		}

		select {
		case s.ch <- raw:
			s.mu.Lock()
			s.read++
			s.mu.Unlock()
		case <-s.stop:
			return
		case <-ctx.Done():
			s.setErr(ctx.Err())
			return
		}
	}
	if err := scanner.Err(); err != nil {
		s.setErr(fmt.Errorf("read replay input: %w", err))
	}
}

func (s *FileSource) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Samples implements engagement.SampleSource.
func (s *FileSource) Samples() <-chan domain.RawSample {
	return s.ch
}

// Stop ends the replay and closes the underlying file.
func (s *FileSource) Stop() {
	s.once.Do(func() {
		close(s.stop)
		if s.closer != nil {
			_ = s.closer.Close()
		}
	})
}

// Done is closed when the replay goroutine has exited.
func (s *FileSource) Done() <-chan struct{} {
	return s.done
}

// Err returns the first read or context error, if any.
func (s *FileSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stats returns how many samples were delivered and how many lines were skipped.
func (s *FileSource) Stats() (delivered, skipped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read, s.skipped
}
