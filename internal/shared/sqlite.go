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

// IsSQLiteConflictError reports whether err is a SQLITE_BUSY or
// "database is locked" error. Both are transient under WAL and worth retrying.
func IsSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// Backoff describes a bounded exponential retry.
type Backoff struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultBackoff makes three attempts, 50ms then 100ms apart.
var DefaultBackoff = Backoff{Attempts: 3, BaseDelay: 50 * time.Millisecond}

// RetryOnConflict runs fn until it succeeds, fails with a non-conflict error,
// or the attempts are exhausted.
func RetryOnConflict(ctx context.Context, b Backoff, op string, fn func() error) error {
	if b.Attempts < 1 {
		b.Attempts = 1
	}

	var err error
	for i := 0; i < b.Attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsSQLiteConflictError(err) || i == b.Attempts-1 {
			break
		}

		delay := b.BaseDelay * time.Duration(1<<i)
		slog.Debug("Database busy, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
