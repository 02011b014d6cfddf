// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/talent-manual/internal/domain"
)

// Repository persists anonymous clients and their archived reports.
type Repository interface {
	// GetClient retrieves a client by ID. It returns nil, nil when unknown.
	GetClient(ctx context.Context, clientID string) (*domain.Client, error)

	// UpsertClient creates or updates a client record.
	UpsertClient(ctx context.Context, client *domain.Client) error

	// UpdateLastSeen updates the last_seen_at timestamp for a client.
	UpdateLastSeen(ctx context.Context, clientID string, lastSeen time.Time) error

	// SaveReport archives a produced report.
	SaveReport(ctx context.Context, rec *domain.ReportRecord) error

	// GetReport retrieves one archived report. It returns nil, nil when unknown.
	GetReport(ctx context.Context, id string) (*domain.ReportRecord, error)

	// ListReports returns a client's reports, newest first.
	ListReports(ctx context.Context, clientID string, limit int) ([]*domain.ReportRecord, error)

	// CleanupReports removes reports older than ttl.
	CleanupReports(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
