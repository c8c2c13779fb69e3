package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/attention-labs/internal/domain"
	"github.com/ashureev/attention-labs/internal/engagement"
	"github.com/ashureev/attention-labs/internal/store"
)

const archiveTimeout = 5 * time.Second

// NewArchiveHook returns an end hook that persists the session summary as a
// report. A failed save is logged; the live session still serves the
// summary until it is evicted.
func NewArchiveHook(repo store.Repository) engagement.EndHook {
	return func(m *engagement.Monitor, summary domain.SessionSummary) {
		report := &domain.SessionReport{
			SessionID:  m.ID(),
			ObserverID: m.ObserverID(),
			Summary:    summary,
			CreatedAt:  time.Now(),
		}
		if summary.StartedAt != nil {
			report.StartedAt = *summary.StartedAt
		}
		if summary.EndedAt != nil {
			report.EndedAt = *summary.EndedAt
		}

		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := repo.SaveReport(ctx, report); err != nil {
			slog.Error("[ARCHIVE] Failed to save session report", "error", err, "session_id", m.ID())
			return
		}
		slog.Info("[ARCHIVE] Session report saved",
			"session_id", m.ID(),
			"observer_id", m.ObserverID(),
			"samples", summary.SampleCount,
		)
	}
}
