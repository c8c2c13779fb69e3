// Package retention runs the background sweep that expires archived
// reports and evicts ended sessions from memory.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/attention-labs/internal/store"
)

// SessionPruner removes ended sessions from memory.
type SessionPruner interface {
	PruneEnded(cutoff time.Time) []string
}

// EvictCallback is called for each session evicted from memory.
type EvictCallback func(sessionID string)

// Config controls the sweep.
type Config struct {
	Interval          time.Duration
	Retention         time.Duration
	EndedSessionGrace time.Duration
	Clock             func() time.Time
}

// Result reports what one sweep did.
type Result struct {
	ReportsDeleted  int64
	SessionsEvicted int
}

// StartWorker runs a background goroutine that periodically sweeps
// expired reports and ended sessions until ctx is cancelled.
func StartWorker(ctx context.Context, repo store.Repository, sessions SessionPruner, cfg Config, onEvict EvictCallback) {
	ticker := time.NewTicker(cfg.Interval)
	go func() {
		defer ticker.Stop()
		slog.Info("[RETENTION] Worker started",
			"interval", cfg.Interval,
			"retention", cfg.Retention,
			"ended_session_grace", cfg.EndedSessionGrace,
		)

		for {
			select {
			case <-ticker.C:
				Sweep(ctx, repo, sessions, cfg, onEvict)
			case <-ctx.Done():
				slog.Info("[RETENTION] Worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep performs one retention pass.
func Sweep(ctx context.Context, repo store.Repository, sessions SessionPruner, cfg Config, onEvict EvictCallback) Result {
	now := time.Now()
	if cfg.Clock != nil {
		now = cfg.Clock()
	}

	var res Result
	if sessions != nil {
		evicted := sessions.PruneEnded(now.Add(-cfg.EndedSessionGrace))
		for _, id := range evicted {
			if onEvict != nil {
				onEvict(id)
			}
		}
		res.SessionsEvicted = len(evicted)
		if len(evicted) > 0 {
			slog.Info("[RETENTION] Evicted ended sessions", "count", len(evicted))
		}
	}

	if repo != nil {
		deleted, err := repo.DeleteReportsOlderThan(ctx, now.Add(-cfg.Retention))
		if err != nil {
			slog.Error("[RETENTION] Failed to delete expired reports", "error", err)
		} else if deleted > 0 {
			slog.Info("[RETENTION] Deleted expired reports", "count", deleted)
		}
		res.ReportsDeleted = deleted
	}
	return res
}
