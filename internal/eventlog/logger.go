// Package eventlog writes per-session engagement events as NDJSON files.
package eventlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/attention-labs/internal/engagement"
)

// Config controls event logging.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Record is one line of a session log.
type Record struct {
	Time       time.Time        `json:"ts"`
	ObserverID string           `json:"observer_id,omitempty"`
	SessionID  string           `json:"session_id"`
	Event      engagement.Event `json:"event"`
}

// Logger persists session events. Implementations must not block callers.
type Logger interface {
	Log(rec Record)
	CloseSession(sessionID string)
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Log(Record)          {}
func (Nop) CloseSession(string) {}
func (Nop) Close() error        { return nil }

type op struct {
	rec       Record
	closeOnly bool
}

// FileLogger appends records to <dir>/<observer>/<session>.ndjson from a
// single writer goroutine.
type FileLogger struct {
	dir    string
	queue  chan op
	done   chan struct{}
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool

	// owned by the writer goroutine
	files map[string]*os.File
	paths map[string]string
}

// New returns a FileLogger, or Nop when logging is disabled.
func New(cfg Config, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	if cfg.Dir == "" {
		return nil, errors.New("event log dir is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create event log dir: %w", err)
	}

	l := &FileLogger{
		dir:    cfg.Dir,
		queue:  make(chan op, cfg.QueueSize),
		done:   make(chan struct{}),
		logger: logger,
		files:  make(map[string]*os.File),
		paths:  make(map[string]string),
	}
	go l.run()
	return l, nil
}

// Log enqueues a record. It drops the record when the queue is full.
func (l *FileLogger) Log(rec Record) {
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}
	l.enqueue(op{rec: rec})
}

// CloseSession closes the file of a session once queued records are written.
func (l *FileLogger) CloseSession(sessionID string) {
	l.enqueue(op{rec: Record{SessionID: sessionID}, closeOnly: true})
}

func (l *FileLogger) enqueue(o op) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- o:
	default:
		l.logger.Warn("[EVENTLOG] Queue full, dropping record",
			"session_id", o.rec.SessionID,
			"queue_size", cap(l.queue),
		)
	}
}

// Close flushes queued records and closes all files.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
	return nil
}

func (l *FileLogger) run() {
	defer close(l.done)
	for o := range l.queue {
		if o.closeOnly {
			l.closeFile(o.rec.SessionID)
			continue
		}
		if err := l.write(o.rec); err != nil {
			l.logger.Warn("[EVENTLOG] Failed to write record", "session_id", o.rec.SessionID, "error", err)
		}
	}
	for id := range l.files {
		l.closeFile(id)
	}
}

func (l *FileLogger) write(rec Record) error {
	f, err := l.file(rec.ObserverID, rec.SessionID)
	if err != nil {
		return err
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

func (l *FileLogger) file(observerID, sessionID string) (*os.File, error) {
	if f, ok := l.files[sessionID]; ok {
		return f, nil
	}
	session := safeName(sessionID)
	if session == "" {
		return nil, errors.New("record has no session id")
	}
	observer := safeName(observerID)
	if observer == "" {
		observer = "anonymous"
	}

	dir := filepath.Join(l.dir, observer)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create observer log dir: %w", err)
	}
	path := filepath.Join(dir, session+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	l.files[sessionID] = f
	l.paths[sessionID] = path
	return f, nil
}

func (l *FileLogger) closeFile(sessionID string) {
	f, ok := l.files[sessionID]
	if !ok {
		return
	}
	if err := f.Close(); err != nil {
		l.logger.Warn("[EVENTLOG] Failed to close session log", "path", l.paths[sessionID], "error", err)
	}
	delete(l.files, sessionID)
	delete(l.paths, sessionID)
}

// safeName keeps IDs from escaping the log directory.
func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "." || s == ".." {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
