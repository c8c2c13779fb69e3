// Package engagement implements the engagement monitor: sample ingestion,
// bounded history, the hysteresis-gated prompt trigger, prompt scheduling
// and end-of-session analytics.
package engagement

import (
	"time"

	"github.com/ashureev/attention-labs/internal/domain"
)

// Default trigger constants.
const (
	// DefaultMinDwell is how long a needs-help level must persist before
	// an automatic prompt may fire.
	DefaultMinDwell = 6 * time.Second
	// DefaultCooldown is the minimum gap between two automatic prompts.
	DefaultCooldown = 15 * time.Second
)

// TriggerConfig configures the trigger state machine.
type TriggerConfig struct {
	MinDwell time.Duration
	Cooldown time.Duration
	// Rotation is the cyclic order of automatic prompt types. The first
	// automatic prompt uses Rotation[0].
	Rotation []domain.PromptType
}

// DefaultTriggerConfig returns the documented defaults.
func DefaultTriggerConfig() TriggerConfig {
	rotation := make([]domain.PromptType, len(domain.DefaultRotation))
	copy(rotation, domain.DefaultRotation)
	return TriggerConfig{
		MinDwell: DefaultMinDwell,
		Cooldown: DefaultCooldown,
		Rotation: rotation,
	}
}

// TriggerInput is everything one evaluation tick looks at.
type TriggerInput struct {
	Now          time.Time
	Level        domain.EngagementLevel
	PromptActive bool
	SessionEnded bool
}

// TriggerMachine decides when an automatic prompt fires.
// It is not safe for concurrent use; the Monitor serializes access.
type TriggerMachine struct {
	cfg   TriggerConfig
	state domain.TriggerState
	next  int // index into cfg.Rotation of the next automatic prompt
}

// NewTriggerMachine creates a trigger machine. Zero-valued fields of cfg
// fall back to the defaults.
func NewTriggerMachine(cfg TriggerConfig) *TriggerMachine {
	def := DefaultTriggerConfig()
	if cfg.MinDwell <= 0 {
		cfg.MinDwell = def.MinDwell
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if len(cfg.Rotation) == 0 {
		cfg.Rotation = def.Rotation
	}
	return &TriggerMachine{cfg: cfg}
}

// Evaluate advances the machine by one tick. It returns the prompt type to
// activate and true when an automatic prompt fires.
func (m *TriggerMachine) Evaluate(in TriggerInput) (domain.PromptType, bool) {
	if in.SessionEnded {
		m.state.LowSince = nil
		return 0, false
	}

	// Unknown and High both leave the band and abort any accrual.
	if !in.Level.NeedsHelp() {
		m.state.LowSince = nil
		return 0, false
	}

	if m.state.LowSince == nil {
		now := in.Now
		m.state.LowSince = &now
		return 0, false
	}

	if in.Now.Sub(*m.state.LowSince) <= m.cfg.MinDwell {
		return 0, false
	}
	if m.state.LastPromptAt != nil && in.Now.Sub(*m.state.LastPromptAt) <= m.cfg.Cooldown {
		return 0, false
	}
	if in.PromptActive {
		return 0, false
	}

	pt := m.cfg.Rotation[m.next]
	m.next = (m.next + 1) % len(m.cfg.Rotation)
	now := in.Now
	m.state.LastPromptAt = &now
	m.state.LastPromptType = pt
	m.state.Fired = true
	return pt, true
}

// Reset clears all trigger bookkeeping and restarts the rotation.
func (m *TriggerMachine) Reset() {
	m.state = domain.TriggerState{}
	m.next = 0
}

// State returns a copy of the current trigger state.
func (m *TriggerMachine) State() domain.TriggerState {
	s := m.state
	if s.LowSince != nil {
		t := *s.LowSince
		s.LowSince = &t
	}
	if s.LastPromptAt != nil {
		t := *s.LastPromptAt
		s.LastPromptAt = &t
	}
	return s
}

// Config returns the effective configuration.
func (m *TriggerMachine) Config() TriggerConfig {
	return m.cfg
}
