// Package domain contains core domain types for the engagement monitor.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// HistoryCapacity is the maximum number of samples retained per session.
const HistoryCapacity = 30

// Classification thresholds. Attention above highThreshold is High, above
// mediumThreshold is Medium, anything else is Low.
const (
	highThreshold   = 0.7
	mediumThreshold = 0.4
)

// EngagementLevel is the discrete classification of an attention score.
type EngagementLevel int

const (
	// LevelUnknown means no attention value was observed.
	LevelUnknown EngagementLevel = iota
	// LevelLow means attention <= 0.4.
	LevelLow
	// LevelMedium means 0.4 < attention <= 0.7.
	LevelMedium
	// LevelHigh means attention > 0.7.
	LevelHigh
)

// Classify maps an attention score to an engagement level.
// A nil score is Unknown.
func Classify(attention *float64) EngagementLevel {
	if attention == nil {
		return LevelUnknown
	}
	a := *attention
	switch {
	case a > highThreshold:
		return LevelHigh
	case a > mediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// NeedsHelp reports whether the level is in the band that accrues dwell time.
func (l EngagementLevel) NeedsHelp() bool {
	return l == LevelLow || l == LevelMedium
}

// Rank orders known levels Low < Medium < High. Unknown ranks -1.
func (l EngagementLevel) Rank() int {
	switch l {
	case LevelLow:
		return 0
	case LevelMedium:
		return 1
	case LevelHigh:
		return 2
	default:
		return -1
	}
}

func (l EngagementLevel) String() string {
	switch l {
	case LevelLow:
		return "Low"
	case LevelMedium:
		return "Medium"
	case LevelHigh:
		return "High"
	default:
		return "Unknown"
	}
}

// ParseEngagementLevel is the inverse of String.
func ParseEngagementLevel(s string) (EngagementLevel, error) {
	switch s {
	case "Unknown":
		return LevelUnknown, nil
	case "Low":
		return LevelLow, nil
	case "Medium":
		return LevelMedium, nil
	case "High":
		return LevelHigh, nil
	}
	return LevelUnknown, fmt.Errorf("unknown engagement level %q", s)
}

// MarshalJSON encodes the level as its display name.
func (l EngagementLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a level from its display name.
func (l *EngagementLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseEngagementLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// RawSample is one observation as delivered by the sensor collaborator.
// Either field may be absent.
type RawSample struct {
	Attention *float64 `json:"attention"`
	Emotion   *string  `json:"emotion"`
	// At is the recorded capture time. Replay sources use it for pacing
	// and to drive a replay clock; the monitor never reads it.
	At time.Time `json:"at,omitempty"`
}

// Sample is a classified observation stored in the history log.
type Sample struct {
	Timestamp time.Time       `json:"timestamp"`
	Attention *float64        `json:"attention"`
	Emotion   *string         `json:"emotion"`
	Level     EngagementLevel `json:"level"`
}
