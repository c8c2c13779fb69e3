package domain

import (
	"fmt"
	"time"
)

// SessionTiming holds the start and end markers of a session.
type SessionTiming struct {
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Started reports whether the session has a start marker.
func (t SessionTiming) Started() bool {
	return t.StartedAt != nil
}

// Ended reports whether the session has an end marker.
func (t SessionTiming) Ended() bool {
	return t.EndedAt != nil
}

// Duration returns EndedAt - StartedAt. The second value is false if
// either marker is missing.
func (t SessionTiming) Duration() (time.Duration, bool) {
	if t.StartedAt == nil || t.EndedAt == nil {
		return 0, false
	}
	return t.EndedAt.Sub(*t.StartedAt), true
}

// Offset returns the offset of at relative to the session start, or zero
// if the session never started.
func (t SessionTiming) Offset(at time.Time) time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return at.Sub(*t.StartedAt)
}

// SessionMarker is a user-confirmed bookmark.
type SessionMarker struct {
	Time   time.Time     `json:"time"`
	Offset time.Duration `json:"offset_ns"`
}

// SessionSummaryNote is free text submitted through a summary prompt.
type SessionSummaryNote struct {
	Time   time.Time     `json:"time"`
	Offset time.Duration `json:"offset_ns"`
	Text   string        `json:"text"`
}

// PollResponse is a submitted poll value (1-5).
type PollResponse struct {
	Time   time.Time     `json:"time"`
	Offset time.Duration `json:"offset_ns"`
	Value  int           `json:"value"`
}

// Poll value bounds.
const (
	PollMin = 1
	PollMax = 5
)

// TriggerState is the bookkeeping of the trigger state machine.
type TriggerState struct {
	LowSince       *time.Time `json:"low_since,omitempty"`
	LastPromptAt   *time.Time `json:"last_prompt_at,omitempty"`
	LastPromptType PromptType `json:"last_prompt_type"`
	// Fired is false until the first automatic prompt; LastPromptType is
	// meaningless before that.
	Fired bool `json:"fired"`
}

// SensorStatus mirrors the lifecycle of the external face-analysis SDK.
type SensorStatus string

const (
	SensorLoading SensorStatus = "loading"
	SensorRunning SensorStatus = "running"
	SensorError   SensorStatus = "error"
	SensorStopped SensorStatus = "stopped"
)

// ParseSensorStatus validates a sensor status string.
func ParseSensorStatus(s string) (SensorStatus, error) {
	switch SensorStatus(s) {
	case SensorLoading, SensorRunning, SensorError, SensorStopped:
		return SensorStatus(s), nil
	}
	return "", fmt.Errorf("unknown sensor status %q", s)
}

// MarkerView pairs a marker with its m:ss rendering.
type MarkerView struct {
	SessionMarker
	Relative string `json:"relative"`
}

// NoteView pairs a summary note with its m:ss rendering.
type NoteView struct {
	SessionSummaryNote
	Relative string `json:"relative"`
}

// SessionSummary is the end-of-session analytics result.
// Aggregates are nil when there is no data to compute them from.
type SessionSummary struct {
	SessionID        string               `json:"session_id"`
	StartedAt        *time.Time           `json:"started_at,omitempty"`
	EndedAt          *time.Time           `json:"ended_at,omitempty"`
	DurationSeconds  *float64             `json:"duration_seconds"`
	AverageAttention *float64             `json:"average_attention"`
	LowOrMediumRatio *float64             `json:"low_or_medium_ratio"`
	SampleCount      int                  `json:"sample_count"`
	LevelCounts      map[string]int       `json:"level_counts"`
	Markers          []MarkerView         `json:"markers"`
	Notes            []NoteView           `json:"notes"`
	PollResponses    []PollResponse       `json:"poll_responses"`
	PromptCounts     map[PromptSource]int `json:"prompt_counts"`
}

// FormatOffset renders an offset as m:ss. Negative offsets clamp to 0:00.
func FormatOffset(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
