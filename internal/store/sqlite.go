package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/attention-labs/internal/domain"
	"github.com/ashureev/attention-labs/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS observers (
		observer_id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		last_seen_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS session_reports (
		session_id TEXT PRIMARY KEY,
		observer_id TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL,
		sample_count INTEGER NOT NULL,
		average_attention REAL,
		summary_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reports_observer ON session_reports(observer_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_reports_created ON session_reports(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertObserver creates an observer or refreshes its last_seen_at.
func (s *SQLiteStore) UpsertObserver(ctx context.Context, observerID string, seen time.Time) error {
	query := `
	INSERT INTO observers (observer_id, created_at, last_seen_at)
	VALUES (?, ?, ?)
	ON CONFLICT(observer_id) DO UPDATE SET
		last_seen_at = excluded.last_seen_at`

	return shared.RetryOnConflict(ctx, "upsert observer", func() error {
		if _, err := s.db.ExecContext(ctx, query, observerID, seen.Unix(), seen.Unix()); err != nil {
			return fmt.Errorf("upsert observer: %w", err)
		}
		return nil
	})
}

// GetObserver retrieves an observer by ID.
func (s *SQLiteStore) GetObserver(ctx context.Context, observerID string) (*Observer, error) {
	query := `SELECT observer_id, created_at, last_seen_at FROM observers WHERE observer_id = ?`

	var obs Observer
	var createdAt, lastSeen int64
	err := s.db.QueryRowContext(ctx, query, observerID).Scan(&obs.ObserverID, &createdAt, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan observer row: %w", err)
	}
	obs.CreatedAt = time.Unix(createdAt, 0)
	obs.LastSeenAt = time.Unix(lastSeen, 0)
	return &obs, nil
}

// SaveReport stores the report of an ended session.
func (s *SQLiteStore) SaveReport(ctx context.Context, report *domain.SessionReport) error {
	summaryJSON, err := json.Marshal(report.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	query := `
	INSERT INTO session_reports (
		session_id, observer_id, started_at, ended_at,
		sample_count, average_attention, summary_json, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		ended_at = excluded.ended_at,
		sample_count = excluded.sample_count,
		average_attention = excluded.average_attention,
		summary_json = excluded.summary_json`

	var avg interface{}
	if report.Summary.AverageAttention != nil {
		avg = *report.Summary.AverageAttention
	}

	return shared.RetryOnConflict(ctx, "save report", func() error {
		_, err := s.db.ExecContext(ctx, query,
			report.SessionID, report.ObserverID,
			report.StartedAt.UnixMilli(), report.EndedAt.UnixMilli(),
			report.Summary.SampleCount, avg, string(summaryJSON),
			report.CreatedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("insert report: %w", err)
		}
		return nil
	})
}

// GetReport retrieves the report for a session.
func (s *SQLiteStore) GetReport(ctx context.Context, sessionID string) (*domain.SessionReport, error) {
	query := `
		SELECT session_id, observer_id, started_at, ended_at, summary_json, created_at
		FROM session_reports WHERE session_id = ?`

	report, err := scanReport(s.db.QueryRowContext(ctx, query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return report, nil
}

// ListReports returns the newest reports, newest first.
func (s *SQLiteStore) ListReports(ctx context.Context, observerID string, limit int) ([]*domain.SessionReport, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT session_id, observer_id, started_at, ended_at, summary_json, created_at
		FROM session_reports`
	args := []interface{}{}
	if observerID != "" {
		query += ` WHERE observer_id = ?`
		args = append(args, observerID)
	}
	query += ` ORDER BY created_at DESC, session_id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("[STORE] Failed to close report rows", "error", closeErr)
		}
	}()

	reports := []*domain.SessionReport{}
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return reports, nil
}

// DeleteReportsOlderThan removes reports created before cutoff.
func (s *SQLiteStore) DeleteReportsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := shared.RetryOnConflict(ctx, "delete expired reports", func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM session_reports WHERE created_at < ?`, cutoff.UnixMilli())
		if err != nil {
			return fmt.Errorf("delete expired reports: %w", err)
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*domain.SessionReport, error) {
	var report domain.SessionReport
	var startedAt, endedAt, createdAt int64
	var summaryJSON string

	err := row.Scan(
		&report.SessionID, &report.ObserverID,
		&startedAt, &endedAt, &summaryJSON, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan report row: %w", err)
	}
	if err := json.Unmarshal([]byte(summaryJSON), &report.Summary); err != nil {
		return nil, fmt.Errorf("unmarshal summary for %s: %w", report.SessionID, err)
	}

	report.StartedAt = time.UnixMilli(startedAt)
	report.EndedAt = time.UnixMilli(endedAt)
	report.CreatedAt = time.UnixMilli(createdAt)
	return &report, nil
}
