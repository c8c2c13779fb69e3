package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PromptType is the closed set of nudges the scheduler can surface.
type PromptType int

const (
	// PromptPoll asks the user to rate how well they are following.
	PromptPoll PromptType = iota
	// PromptBreak suggests a short break.
	PromptBreak
	// PromptRecap bookmarks the current moment for later review.
	PromptRecap
	// PromptSummary asks the user to write a short summary.
	PromptSummary
)

// DefaultRotation is the order automatic prompts cycle through.
var DefaultRotation = []PromptType{PromptPoll, PromptSummary, PromptBreak, PromptRecap}

func (p PromptType) String() string {
	switch p {
	case PromptPoll:
		return "poll"
	case PromptBreak:
		return "break"
	case PromptRecap:
		return "recap"
	case PromptSummary:
		return "summary"
	default:
		return fmt.Sprintf("prompt(%d)", int(p))
	}
}

// ParsePromptType parses the lowercase form produced by String.
func ParsePromptType(s string) (PromptType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "poll":
		return PromptPoll, nil
	case "break":
		return PromptBreak, nil
	case "recap":
		return PromptRecap, nil
	case "summary":
		return PromptSummary, nil
	}
	return 0, fmt.Errorf("unknown prompt type %q", s)
}

// ParseRotation parses a comma-separated rotation such as "poll,summary,break,recap".
// The result must be non-empty and contain no duplicates.
func ParseRotation(s string) ([]PromptType, error) {
	parts := strings.Split(s, ",")
	seen := make(map[PromptType]bool, len(parts))
	rotation := make([]PromptType, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		pt, err := ParsePromptType(part)
		if err != nil {
			return nil, err
		}
		if seen[pt] {
			return nil, fmt.Errorf("prompt type %q repeated in rotation", pt)
		}
		seen[pt] = true
		rotation = append(rotation, pt)
	}
	if len(rotation) == 0 {
		return nil, fmt.Errorf("rotation cannot be empty")
	}
	return rotation, nil
}

// MarshalJSON encodes the prompt type by name.
func (p PromptType) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes a prompt type by name.
func (p *PromptType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePromptType(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// PromptSource records whether a prompt was triggered automatically or by the user.
type PromptSource string

const (
	// SourceAuto marks prompts fired by the trigger state machine.
	SourceAuto PromptSource = "auto"
	// SourceManual marks prompts requested by the user.
	SourceManual PromptSource = "manual"
)

// Prompt is a single interactive nudge.
type Prompt struct {
	ID        uint64       `json:"id"`
	Type      PromptType   `json:"type"`
	Title     string       `json:"title"`
	Message   string       `json:"message"`
	Source    PromptSource `json:"source"`
	CreatedAt time.Time    `json:"created_at"`
}

// Template is the fixed title and message for a prompt type.
type Template struct {
	Title   string
	Message string
}

var promptTemplates = map[PromptType]Template{
	PromptPoll: {
		Title:   "Quick check-in",
		Message: "How well are you following along? Rate 1-5.",
	},
	PromptSummary: {
		Title:   "Summarize the last few minutes",
		Message: "Write a sentence or two about what was just covered.",
	},
	PromptBreak: {
		Title:   "Time for a short break?",
		Message: "Your focus seems to be dipping. Stand up, stretch, and come back in a minute.",
	},
	PromptRecap: {
		Title:   "Mark this moment for recap",
		Message: "Bookmark this point so you can review it after the session.",
	},
}

// PromptTemplate returns the fixed template for a prompt type.
func PromptTemplate(p PromptType) Template {
	return promptTemplates[p]
}
