// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/attention-labs/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Observer is a browser identity that owns sessions.
type Observer struct {
	ObserverID string
	CreatedAt  time.Time
	LastSeenAt time.Time
}

// Repository defines the interface for persisting observers and archived
// session reports.
type Repository interface {
	// UpsertObserver creates an observer or refreshes its last_seen_at.
	UpsertObserver(ctx context.Context, observerID string, seen time.Time) error

	// GetObserver retrieves an observer by ID.
	GetObserver(ctx context.Context, observerID string) (*Observer, error)

	// SaveReport stores the report of an ended session. Saving the same
	// session twice replaces the earlier report.
	SaveReport(ctx context.Context, report *domain.SessionReport) error

	// GetReport retrieves the report for a session.
	GetReport(ctx context.Context, sessionID string) (*domain.SessionReport, error)

	// ListReports returns the newest reports for an observer, newest first.
	// An empty observerID lists reports of all observers.
	ListReports(ctx context.Context, observerID string, limit int) ([]*domain.SessionReport, error)

	// DeleteReportsOlderThan removes reports created before cutoff.
	DeleteReportsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
