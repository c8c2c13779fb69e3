package engagement

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/attention-labs/internal/domain"
)

var (
	// ErrNoActivePrompt is returned by confirmations when nothing is showing.
	ErrNoActivePrompt = errors.New("no active prompt")
	// ErrPromptTypeMismatch is returned when a confirmation does not match the active prompt.
	ErrPromptTypeMismatch = errors.New("active prompt has a different type")
	// ErrPollValueOutOfRange is returned for poll values outside 1-5.
	ErrPollValueOutOfRange = errors.New("poll value out of range")
)

// PromptScheduler owns the single active prompt and the records produced by
// confirming prompts. It is not safe for concurrent use; the Monitor
// serializes access.
type PromptScheduler struct {
	active  *domain.Prompt
	nextID  uint64
	draft   string
	markers []domain.SessionMarker
	notes   []domain.SessionSummaryNote
	polls   []domain.PollResponse
	counts  map[domain.PromptSource]int
}

// NewPromptScheduler creates an empty scheduler.
func NewPromptScheduler() *PromptScheduler {
	return &PromptScheduler{
		counts: make(map[domain.PromptSource]int),
	}
}

// Activate shows a new prompt. If one is already active it is returned
// unchanged along with false.
func (s *PromptScheduler) Activate(now time.Time, pt domain.PromptType, title, message string, source domain.PromptSource) (domain.Prompt, bool) {
	if s.active != nil {
		return *s.active, false
	}
	s.nextID++
	s.active = &domain.Prompt{
		ID:        s.nextID,
		Type:      pt,
		Title:     title,
		Message:   message,
		Source:    source,
		CreatedAt: now,
	}
	s.counts[source]++
	return *s.active, true
}

// ActivateTemplate activates a prompt using the fixed template for pt.
func (s *PromptScheduler) ActivateTemplate(now time.Time, pt domain.PromptType, source domain.PromptSource) (domain.Prompt, bool) {
	tpl := domain.PromptTemplate(pt)
	return s.Activate(now, pt, tpl.Title, tpl.Message, source)
}

// RequestManual is the user-invoked form of activation. It bypasses the
// trigger gates but still refuses when a prompt is active.
func (s *PromptScheduler) RequestManual(now time.Time, pt domain.PromptType) (domain.Prompt, bool) {
	return s.ActivateTemplate(now, pt, domain.SourceManual)
}

// Dismiss clears the active prompt unconditionally. It returns the cleared
// prompt, if any.
func (s *PromptScheduler) Dismiss() (domain.Prompt, bool) {
	if s.active == nil {
		return domain.Prompt{}, false
	}
	p := *s.active
	s.active = nil
	s.draft = ""
	return p, true
}

// Active returns the active prompt.
func (s *PromptScheduler) Active() (domain.Prompt, bool) {
	if s.active == nil {
		return domain.Prompt{}, false
	}
	return *s.active, true
}

func (s *PromptScheduler) requireActive(pt domain.PromptType) error {
	if s.active == nil {
		return ErrNoActivePrompt
	}
	if s.active.Type != pt {
		return fmt.Errorf("%w: active %s, got %s", ErrPromptTypeMismatch, s.active.Type, pt)
	}
	return nil
}

// SubmitPoll records a poll value and clears the prompt.
func (s *PromptScheduler) SubmitPoll(now time.Time, timing domain.SessionTiming, value int) (domain.PollResponse, error) {
	if err := s.requireActive(domain.PromptPoll); err != nil {
		return domain.PollResponse{}, err
	}
	if value < domain.PollMin || value > domain.PollMax {
		return domain.PollResponse{}, fmt.Errorf("%w: %d", ErrPollValueOutOfRange, value)
	}
	resp := domain.PollResponse{Time: now, Offset: timing.Offset(now), Value: value}
	s.polls = append(s.polls, resp)
	s.Dismiss()
	return resp, nil
}

// ConfirmBreak clears the break prompt.
func (s *PromptScheduler) ConfirmBreak() error {
	if err := s.requireActive(domain.PromptBreak); err != nil {
		return err
	}
	s.Dismiss()
	return nil
}

// ConfirmRecap appends a marker at now and clears the prompt.
func (s *PromptScheduler) ConfirmRecap(now time.Time, timing domain.SessionTiming) (domain.SessionMarker, error) {
	if err := s.requireActive(domain.PromptRecap); err != nil {
		return domain.SessionMarker{}, err
	}
	m := domain.SessionMarker{Time: now, Offset: timing.Offset(now)}
	s.markers = append(s.markers, m)
	s.Dismiss()
	return m, nil
}

// SetSummaryDraft stores the pending free text of an open summary prompt.
func (s *PromptScheduler) SetSummaryDraft(text string) error {
	if err := s.requireActive(domain.PromptSummary); err != nil {
		return err
	}
	s.draft = text
	return nil
}

// SummaryDraft returns the pending free text.
func (s *PromptScheduler) SummaryDraft() string {
	return s.draft
}

// SubmitSummary records a note unless text is blank, in which case the
// prompt is silently dismissed. The returned bool reports whether a note
// was recorded.
func (s *PromptScheduler) SubmitSummary(now time.Time, timing domain.SessionTiming, text string) (domain.SessionSummaryNote, bool, error) {
	if err := s.requireActive(domain.PromptSummary); err != nil {
		return domain.SessionSummaryNote{}, false, err
	}
	if strings.TrimSpace(text) == "" {
		s.Dismiss()
		return domain.SessionSummaryNote{}, false, nil
	}
	note := domain.SessionSummaryNote{Time: now, Offset: timing.Offset(now), Text: text}
	s.notes = append(s.notes, note)
	s.Dismiss()
	return note, true, nil
}

// Markers returns a copy of the recorded markers in chronological order.
func (s *PromptScheduler) Markers() []domain.SessionMarker {
	return append([]domain.SessionMarker(nil), s.markers...)
}

// Notes returns a copy of the recorded summary notes.
func (s *PromptScheduler) Notes() []domain.SessionSummaryNote {
	return append([]domain.SessionSummaryNote(nil), s.notes...)
}

// PollResponses returns a copy of the recorded poll responses.
func (s *PromptScheduler) PollResponses() []domain.PollResponse {
	return append([]domain.PollResponse(nil), s.polls...)
}

// PromptCounts returns how many prompts were activated per source.
func (s *PromptScheduler) PromptCounts() map[domain.PromptSource]int {
	out := make(map[domain.PromptSource]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}
