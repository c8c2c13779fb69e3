package engagement

import (
	"github.com/ashureev/attention-labs/internal/domain"
)

// AnalyticsInput is everything the end-of-session summary is derived from.
type AnalyticsInput struct {
	SessionID     string
	History       []domain.Sample
	Timing        domain.SessionTiming
	Markers       []domain.SessionMarker
	Notes         []domain.SessionSummaryNote
	PollResponses []domain.PollResponse
	PromptCounts  map[domain.PromptSource]int
}

// Analyze computes the session summary. Aggregates that have no data are
// left nil rather than reported as zero.
func Analyze(in AnalyticsInput) domain.SessionSummary {
	summary := domain.SessionSummary{
		SessionID:     in.SessionID,
		StartedAt:     in.Timing.StartedAt,
		EndedAt:       in.Timing.EndedAt,
		SampleCount:   len(in.History),
		LevelCounts:   make(map[string]int),
		Markers:       make([]domain.MarkerView, 0, len(in.Markers)),
		Notes:         make([]domain.NoteView, 0, len(in.Notes)),
		PollResponses: append([]domain.PollResponse{}, in.PollResponses...),
		PromptCounts:  make(map[domain.PromptSource]int, len(in.PromptCounts)),
	}

	if d, ok := in.Timing.Duration(); ok {
		secs := d.Seconds()
		summary.DurationSeconds = &secs
	}

	var (
		sum       float64
		withValue int
		needsHelp int
	)
	for _, s := range in.History {
		summary.LevelCounts[s.Level.String()]++
		if s.Attention != nil {
			sum += *s.Attention
			withValue++
		}
		if s.Level.NeedsHelp() {
			needsHelp++
		}
	}
	if withValue > 0 {
		avg := sum / float64(withValue)
		summary.AverageAttention = &avg
	}
	if len(in.History) > 0 {
		ratio := float64(needsHelp) / float64(len(in.History))
		summary.LowOrMediumRatio = &ratio
	}

	for _, m := range in.Markers {
		summary.Markers = append(summary.Markers, domain.MarkerView{
			SessionMarker: m,
			Relative:      domain.FormatOffset(m.Offset),
		})
	}
	for _, n := range in.Notes {
		summary.Notes = append(summary.Notes, domain.NoteView{
			SessionSummaryNote: n,
			Relative:           domain.FormatOffset(n.Offset),
		})
	}
	for k, v := range in.PromptCounts {
		summary.PromptCounts[k] = v
	}
	return summary
}
