// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Retry policy for SQLite write conflicts.
const (
	conflictRetries   = 3
	conflictBaseDelay = 100 * time.Millisecond
)

// IsSQLiteConflictError reports whether err is SQLITE_BUSY or
// "database is locked". Both warrant a retry.
func IsSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// RetryOnConflict runs fn, retrying with exponential backoff
// (100ms, 200ms) while it fails with a SQLite conflict error.
func RetryOnConflict(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsSQLiteConflictError(err) || attempt == conflictRetries-1 {
			break
		}

		delay := conflictBaseDelay * time.Duration(1<<attempt)
		slog.Debug("[STORE] SQLite conflict, retrying",
			"op", op,
			"attempt", attempt+1,
			"delay", delay,
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
	}
	if IsSQLiteConflictError(err) {
		return fmt.Errorf("%s failed after %d attempts: %w", op, conflictRetries, err)
	}
	return err
}
