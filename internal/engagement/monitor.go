package engagement

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/attention-labs/internal/domain"
	"github.com/ashureev/attention-labs/internal/metrics"
)

// ErrSessionEnded is returned by mutating operations after End.
var ErrSessionEnded = errors.New("session has ended")

// Clock returns the current wall-clock time.
type Clock func() time.Time

// EventType names a presentation event.
type EventType string

const (
	EventSessionStarted  EventType = "session_started"
	EventSample          EventType = "sample"
	EventLevelChanged    EventType = "level_changed"
	EventPromptActivated EventType = "prompt_activated"
	EventPromptCleared   EventType = "prompt_cleared"
	EventMarkerRecorded  EventType = "marker_recorded"
	EventNoteRecorded    EventType = "note_recorded"
	EventPollRecorded    EventType = "poll_recorded"
	EventSensorStatus    EventType = "sensor_status"
	EventSessionEnded    EventType = "session_ended"
)

// Event is emitted to the presentation layer after each state change.
type Event struct {
	Type      EventType                  `json:"type"`
	SessionID string                     `json:"session_id"`
	Time      time.Time                  `json:"time"`
	Level     *domain.EngagementLevel    `json:"level,omitempty"`
	Sample    *domain.Sample             `json:"sample,omitempty"`
	Prompt    *domain.Prompt             `json:"prompt,omitempty"`
	Action    string                     `json:"action,omitempty"`
	Marker    *domain.SessionMarker      `json:"marker,omitempty"`
	Note      *domain.SessionSummaryNote `json:"note,omitempty"`
	Poll      *domain.PollResponse       `json:"poll,omitempty"`
	Sensor    domain.SensorStatus        `json:"sensor,omitempty"`
	Summary   *domain.SessionSummary     `json:"summary,omitempty"`
}

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	Trigger     TriggerConfig
	HistorySize int
	Clock       Clock
	Logger      *slog.Logger
	// Events receives presentation events. Sends never block; events are
	// dropped when the channel is full. May be nil.
	Events chan<- Event
}

// State is a consistent copy of a monitor's observable state.
type State struct {
	SessionID    string                      `json:"session_id"`
	ObserverID   string                      `json:"observer_id,omitempty"`
	Level        domain.EngagementLevel      `json:"level"`
	History      []domain.Sample             `json:"history"`
	ActivePrompt *domain.Prompt              `json:"active_prompt"`
	SummaryDraft string                      `json:"summary_draft,omitempty"`
	Trigger      domain.TriggerState         `json:"trigger"`
	Timing       domain.SessionTiming        `json:"timing"`
	Sensor       domain.SensorStatus         `json:"sensor"`
	Markers      []domain.SessionMarker      `json:"markers"`
	Notes        []domain.SessionSummaryNote `json:"notes"`
	Ended        bool                        `json:"ended"`
}

// Monitor is the engagement pipeline for one session. Every mutating
// operation runs under a single mutex, so classify, append, trigger
// evaluation and prompt activation for a sample form one indivisible step.
type Monitor struct {
	id         string
	observerID string
	clock      Clock
	logger     *slog.Logger
	events     chan<- Event

	mu        sync.Mutex
	history   *HistoryLog
	trigger   *TriggerMachine
	scheduler *PromptScheduler
	timing    domain.SessionTiming
	level     domain.EngagementLevel
	sensor    domain.SensorStatus
	summary   *domain.SessionSummary
}

// NewMonitor creates a monitor for session id.
func NewMonitor(id, observerID string, cfg MonitorConfig) *Monitor {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Monitor{
		id:         id,
		observerID: observerID,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		events:     cfg.Events,
		history:    NewHistoryLog(cfg.HistorySize),
		trigger:    NewTriggerMachine(cfg.Trigger),
		scheduler:  NewPromptScheduler(),
		sensor:     domain.SensorLoading,
	}
}

// ID returns the session ID.
func (m *Monitor) ID() string {
	return m.id
}

// ObserverID returns the observer the session belongs to.
func (m *Monitor) ObserverID() string {
	return m.observerID
}

// Start records the session start. Repeated calls keep the first start time.
func (m *Monitor) Start() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timing.StartedAt != nil {
		return *m.timing.StartedAt
	}
	now := m.clock()
	m.timing.StartedAt = &now
	metrics.ActiveSessions.Inc()
	m.logger.Info("[MONITOR] Session started", "session_id", m.id, "observer_id", m.observerID)
	m.emit(Event{Type: EventSessionStarted, Time: now})
	return now
}

// Ingest runs one sample through classify, append and trigger evaluation.
// Samples arriving after End are rejected with ErrSessionEnded.
func (m *Monitor) Ingest(raw domain.RawSample) (domain.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timing.Ended() {
		return domain.Sample{}, ErrSessionEnded
	}

	sample := Normalize(raw, m.clock())
	m.history.Append(sample)
	metrics.SamplesIngested.WithLabelValues(sample.Level.String()).Inc()
	m.emit(Event{Type: EventSample, Time: sample.Timestamp, Sample: &sample})

	if sample.Level != m.level {
		m.logger.Debug("[MONITOR] Engagement level changed",
			"session_id", m.id,
			"from", m.level.String(),
			"to", sample.Level.String(),
		)
		m.level = sample.Level
		level := sample.Level
		m.emit(Event{Type: EventLevelChanged, Time: sample.Timestamp, Level: &level})
	}

	_, active := m.scheduler.Active()
	lowSince := m.trigger.State().LowSince
	pt, fire := m.trigger.Evaluate(TriggerInput{
		Now:          sample.Timestamp,
		Level:        sample.Level,
		PromptActive: active,
	})
	if fire {
		prompt, ok := m.scheduler.ActivateTemplate(sample.Timestamp, pt, domain.SourceAuto)
		if ok {
			if lowSince != nil {
				metrics.DwellAtTrigger.Observe(sample.Timestamp.Sub(*lowSince).Seconds())
			}
			m.promptActivated(prompt)
		}
	}
	return sample, nil
}

// RequestManual activates a prompt on user request. It bypasses dwell and
// cooldown and does not touch trigger bookkeeping. The bool is false when
// a prompt was already active; the active prompt is returned in that case.
func (m *Monitor) RequestManual(pt domain.PromptType) (domain.Prompt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timing.Ended() {
		return domain.Prompt{}, false, ErrSessionEnded
	}
	prompt, ok := m.scheduler.RequestManual(m.clock(), pt)
	if !ok {
		metrics.PromptsRefused.WithLabelValues(string(domain.SourceManual)).Inc()
		m.logger.Info("[MONITOR] Manual prompt refused, prompt already active",
			"session_id", m.id,
			"requested", pt.String(),
			"active_prompt_id", prompt.ID,
		)
		return prompt, false, nil
	}
	m.promptActivated(prompt)
	return prompt, true, nil
}

// Dismiss clears the active prompt, if any.
func (m *Monitor) Dismiss() (domain.Prompt, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prompt, ok := m.scheduler.Dismiss()
	if ok {
		m.promptCleared(prompt, "dismissed")
	}
	return prompt, ok
}

// SubmitPoll records a poll value for the active poll prompt.
func (m *Monitor) SubmitPoll(value int) (domain.PollResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timing.Ended() {
		return domain.PollResponse{}, ErrSessionEnded
	}
	prompt, _ := m.scheduler.Active()
	resp, err := m.scheduler.SubmitPoll(m.clock(), m.timing, value)
	if err != nil {
		return domain.PollResponse{}, err
	}
	m.logger.Info("[MONITOR] Poll submitted", "session_id", m.id, "value", value)
	m.emit(Event{Type: EventPollRecorded, Time: resp.Time, Poll: &resp})
	m.promptCleared(prompt, "poll_submitted")
	return resp, nil
}

// ConfirmBreak confirms the active break prompt.
func (m *Monitor) ConfirmBreak() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timing.Ended() {
		return ErrSessionEnded
	}
	prompt, _ := m.scheduler.Active()
	if err := m.scheduler.ConfirmBreak(); err != nil {
		return err
	}
	m.promptCleared(prompt, "break_confirmed")
	return nil
}

// ConfirmRecap confirms the active recap prompt and records a marker.
func (m *Monitor) ConfirmRecap() (domain.SessionMarker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timing.Ended() {
		return domain.SessionMarker{}, ErrSessionEnded
	}
	prompt, _ := m.scheduler.Active()
	marker, err := m.scheduler.ConfirmRecap(m.clock(), m.timing)
	if err != nil {
		return domain.SessionMarker{}, err
	}
	m.logger.Info("[MONITOR] Recap marker recorded",
		"session_id", m.id,
		"offset", domain.FormatOffset(marker.Offset),
	)
	m.emit(Event{Type: EventMarkerRecorded, Time: marker.Time, Marker: &marker})
	m.promptCleared(prompt, "recap_confirmed")
	return marker, nil
}

// SetSummaryDraft updates the pending text of the active summary prompt.
func (m *Monitor) SetSummaryDraft(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timing.Ended() {
		return ErrSessionEnded
	}
	return m.scheduler.SetSummaryDraft(text)
}

// SubmitSummary submits the active summary prompt. Blank text dismisses
// the prompt without recording a note; the bool reports whether a note
// was recorded.
func (m *Monitor) SubmitSummary(text string) (domain.SessionSummaryNote, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timing.Ended() {
		return domain.SessionSummaryNote{}, false, ErrSessionEnded
	}
	return m.submitSummaryLocked(text)
}

// SubmitSummaryDraft submits the active summary prompt with the text last
// stored by SetSummaryDraft.
func (m *Monitor) SubmitSummaryDraft() (domain.SessionSummaryNote, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timing.Ended() {
		return domain.SessionSummaryNote{}, false, ErrSessionEnded
	}
	return m.submitSummaryLocked(m.scheduler.SummaryDraft())
}

func (m *Monitor) submitSummaryLocked(text string) (domain.SessionSummaryNote, bool, error) {
	prompt, _ := m.scheduler.Active()
	note, recorded, err := m.scheduler.SubmitSummary(m.clock(), m.timing, text)
	if err != nil {
		return domain.SessionSummaryNote{}, false, err
	}
	if recorded {
		m.emit(Event{Type: EventNoteRecorded, Time: note.Time, Note: &note})
		m.promptCleared(prompt, "summary_submitted")
	} else {
		m.promptCleared(prompt, "dismissed")
	}
	return note, recorded, nil
}

// SetSensorStatus records the external sensor lifecycle state.
func (m *Monitor) SetSensorStatus(status domain.SensorStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sensor == status {
		return
	}
	m.sensor = status
	m.logger.Info("[MONITOR] Sensor status changed", "session_id", m.id, "status", string(status))
	m.emit(Event{Type: EventSensorStatus, Time: m.clock(), Sensor: status})
}

// End marks the session ended and computes the summary. Calling End again
// is a no-op that returns the summary computed by the first call; the
// bool reports whether this call ended the session.
func (m *Monitor) End() (domain.SessionSummary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.summary != nil {
		return *m.summary, false
	}

	now := m.clock()
	m.timing.EndedAt = &now
	if m.timing.StartedAt != nil {
		metrics.ActiveSessions.Dec()
	}

	m.trigger.Evaluate(TriggerInput{Now: now, Level: m.level, SessionEnded: true})
	m.trigger.Reset()
	if prompt, ok := m.scheduler.Dismiss(); ok {
		m.promptCleared(prompt, "session_ended")
	}

	summary := Analyze(AnalyticsInput{
		SessionID:     m.id,
		History:       m.history.Snapshot(),
		Timing:        m.timing,
		Markers:       m.scheduler.Markers(),
		Notes:         m.scheduler.Notes(),
		PollResponses: m.scheduler.PollResponses(),
		PromptCounts:  m.scheduler.PromptCounts(),
	})
	m.summary = &summary
	if summary.DurationSeconds != nil {
		metrics.SessionDuration.Observe(*summary.DurationSeconds)
	}

	m.logger.Info("[MONITOR] Session ended",
		"session_id", m.id,
		"samples", summary.SampleCount,
		"markers", len(summary.Markers),
		"notes", len(summary.Notes),
	)
	m.emit(Event{Type: EventSessionEnded, Time: now, Summary: &summary})
	return summary, true
}

// Summary returns the end-of-session summary once the session has ended.
func (m *Monitor) Summary() (domain.SessionSummary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.summary == nil {
		return domain.SessionSummary{}, false
	}
	return *m.summary, true
}

// Ended reports whether End has been called.
func (m *Monitor) Ended() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timing.Ended()
}

// EndedAt returns when the session ended, or nil while it is live.
func (m *Monitor) EndedAt() *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timing.EndedAt == nil {
		return nil
	}
	t := *m.timing.EndedAt
	return &t
}

// State returns a consistent copy of the monitor state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := State{
		SessionID:    m.id,
		ObserverID:   m.observerID,
		Level:        m.level,
		History:      m.history.Snapshot(),
		SummaryDraft: m.scheduler.SummaryDraft(),
		Trigger:      m.trigger.State(),
		Timing:       m.timing,
		Sensor:       m.sensor,
		Markers:      m.scheduler.Markers(),
		Notes:        m.scheduler.Notes(),
		Ended:        m.timing.Ended(),
	}
	if p, ok := m.scheduler.Active(); ok {
		st.ActivePrompt = &p
	}
	return st
}

// Consume feeds samples from src into the monitor until the source is
// exhausted, ctx is cancelled or the session ends. The source is stopped
// on return.
func (m *Monitor) Consume(ctx context.Context, src SampleSource) error {
	defer src.Stop()

	samples := src.Samples()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-samples:
			if !ok {
				return nil
			}
			if _, err := m.Ingest(raw); err != nil {
				if errors.Is(err, ErrSessionEnded) {
					m.logger.Debug("[MONITOR] Session ended, stopping sample consumption", "session_id", m.id)
					return nil
				}
				return err
			}
		}
	}
}

func (m *Monitor) promptActivated(prompt domain.Prompt) {
	metrics.PromptsActivated.WithLabelValues(prompt.Type.String(), string(prompt.Source)).Inc()
	m.logger.Info("[MONITOR] Prompt activated",
		"session_id", m.id,
		"prompt_id", prompt.ID,
		"prompt_type", prompt.Type.String(),
		"source", string(prompt.Source),
	)
	m.emit(Event{Type: EventPromptActivated, Time: prompt.CreatedAt, Prompt: &prompt})
}

func (m *Monitor) promptCleared(prompt domain.Prompt, action string) {
	metrics.PromptsCleared.WithLabelValues(prompt.Type.String(), action).Inc()
	m.logger.Info("[MONITOR] Prompt cleared",
		"session_id", m.id,
		"prompt_id", prompt.ID,
		"prompt_type", prompt.Type.String(),
		"action", action,
	)
	m.emit(Event{Type: EventPromptCleared, Time: m.clock(), Prompt: &prompt, Action: action})
}

// emit sends an event without blocking. Callers hold m.mu.
func (m *Monitor) emit(ev Event) {
	if m.events == nil {
		return
	}
	ev.SessionID = m.id
	select {
	case m.events <- ev:
	default:
		metrics.EventsDropped.Inc()
		m.logger.Warn("[MONITOR] Event channel full, event dropped",
			"session_id", m.id,
			"type", string(ev.Type),
			"channel_len", len(m.events),
		)
	}
}
