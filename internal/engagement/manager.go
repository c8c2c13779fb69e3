package engagement

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/attention-labs/internal/domain"
	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session ID is not registered.
var ErrSessionNotFound = errors.New("session not found")

// EndHook is called once per session, after it ends, outside the manager lock.
type EndHook func(m *Monitor, summary domain.SessionSummary)

// Manager owns the live monitors, keyed by session ID.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Monitor
	cfg      MonitorConfig
	onEnd    EndHook
	logger   *slog.Logger
}

// NewManager creates a manager. Every monitor it creates shares cfg,
// including the event channel.
func NewManager(cfg MonitorConfig, onEnd EndHook) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*Monitor),
		cfg:      cfg,
		onEnd:    onEnd,
		logger:   cfg.Logger,
	}
}

// Create starts a new session for observerID.
func (mgr *Manager) Create(observerID string) *Monitor {
	id := uuid.NewString()
	m := NewMonitor(id, observerID, mgr.cfg)

	mgr.mu.Lock()
	mgr.sessions[id] = m
	mgr.mu.Unlock()

	m.Start()
	mgr.logger.Info("[MANAGER] Session registered", "session_id", id, "observer_id", observerID)
	return m
}

// Get returns the monitor for id.
func (mgr *Manager) Get(id string) (*Monitor, error) {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	m, ok := mgr.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return m, nil
}

// End ends session id. The bool reports whether this call ended it; the
// end hook only runs in that case.
func (mgr *Manager) End(id string) (domain.SessionSummary, bool, error) {
	m, err := mgr.Get(id)
	if err != nil {
		return domain.SessionSummary{}, false, err
	}
	summary, first := m.End()
	if first && mgr.onEnd != nil {
		mgr.onEnd(m, summary)
	}
	return summary, first, nil
}

// Remove forgets session id. It does not end the session.
func (mgr *Manager) Remove(id string) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if _, ok := mgr.sessions[id]; ok {
		delete(mgr.sessions, id)
		mgr.logger.Info("[MANAGER] Session removed", "session_id", id)
	}
}

// PruneEnded removes sessions that ended before cutoff and returns their IDs.
func (mgr *Manager) PruneEnded(cutoff time.Time) []string {
	var pruned []string
	for _, m := range mgr.List() {
		endedAt := m.EndedAt()
		if endedAt == nil || !endedAt.Before(cutoff) {
			continue
		}
		mgr.Remove(m.ID())
		pruned = append(pruned, m.ID())
	}
	return pruned
}

// List returns the live monitors ordered by session ID.
func (mgr *Manager) List() []*Monitor {
	mgr.mu.RLock()
	out := make([]*Monitor, 0, len(mgr.sessions))
	for _, m := range mgr.sessions {
		out = append(out, m)
	}
	mgr.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// ListByObserver returns the monitors belonging to observerID.
func (mgr *Manager) ListByObserver(observerID string) []*Monitor {
	var out []*Monitor
	for _, m := range mgr.List() {
		if m.ObserverID() == observerID {
			out = append(out, m)
		}
	}
	return out
}

// Len returns the number of registered sessions.
func (mgr *Manager) Len() int {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	return len(mgr.sessions)
}

// Close ends every live session.
func (mgr *Manager) Close() {
	ended := 0
	for _, m := range mgr.List() {
		if _, first, err := mgr.End(m.ID()); err == nil && first {
			ended++
		}
	}
	mgr.logger.Info("[MANAGER] Shutdown complete", "sessions_ended", ended)
}
