package domain

import (
	"time"
)

// SessionReport is the persisted record of an ended session.
type SessionReport struct {
	SessionID  string         `json:"session_id"`
	ObserverID string         `json:"observer_id"`
	StartedAt  time.Time      `json:"started_at"`
	EndedAt    time.Time      `json:"ended_at"`
	Summary    SessionSummary `json:"summary"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Age returns how long ago the report was created.
func (r *SessionReport) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}
