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

	"github.com/ashureev/talent-manual/internal/domain"
	"github.com/ashureev/talent-manual/internal/shared"
	_ "modernc.org/sqlite"
)

// DefaultListLimit caps ListReports when no limit is given.
const DefaultListLimit = 20

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	backoff shared.Backoff
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL lets the report archiver write while handlers read.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, backoff: shared.DefaultBackoff}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS clients (
		client_id TEXT PRIMARY KEY,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		fallback INTEGER NOT NULL DEFAULT 0,
		report_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reports_client ON reports(client_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_reports_created ON reports(created_at);
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

// GetClient retrieves a client by ID.
func (s *SQLiteStore) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	query := `SELECT client_id, last_seen_at, created_at, updated_at FROM clients WHERE client_id = ?`

	var client domain.Client
	var lastSeen, createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, clientID).Scan(&client.ClientID, &lastSeen, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan client row: %w", err)
	}

	client.LastSeenAt = time.Unix(lastSeen, 0)
	client.CreatedAt = time.Unix(createdAt, 0)
	client.UpdatedAt = time.Unix(updatedAt, 0)
	return &client, nil
}

// UpsertClient creates or updates a client record.
func (s *SQLiteStore) UpsertClient(ctx context.Context, client *domain.Client) error {
	query := `
	INSERT INTO clients (client_id, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(client_id) DO UPDATE SET
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	return shared.RetryOnConflict(ctx, s.backoff, "upsert client", func() error {
		_, err := s.db.ExecContext(ctx, query,
			client.ClientID, client.LastSeenAt.Unix(),
			client.CreatedAt.Unix(), client.UpdatedAt.Unix(),
		)
		return err
	})
}

// UpdateLastSeen updates the last_seen_at timestamp for a client.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, clientID string, lastSeen time.Time) error {
	query := `UPDATE clients SET last_seen_at = ?, updated_at = ? WHERE client_id = ?`

	var rows int64
	err := shared.RetryOnConflict(ctx, s.backoff, "update last_seen", func() error {
		result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), clientID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "client_id", clientID)
	}
	return nil
}

// SaveReport archives a produced report.
func (s *SQLiteStore) SaveReport(ctx context.Context, rec *domain.ReportRecord) error {
	body, err := json.Marshal(rec.Report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	query := `
	INSERT INTO reports (id, client_id, session_id, mode, fallback, report_json, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	return shared.RetryOnConflict(ctx, s.backoff, "save report", func() error {
		_, err := s.db.ExecContext(ctx, query,
			rec.ID, rec.ClientID, rec.SessionID, string(rec.Mode),
			rec.Fallback, string(body), rec.CreatedAt.Unix(),
		)
		return err
	})
}

// GetReport retrieves one archived report.
func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*domain.ReportRecord, error) {
	query := `
		SELECT id, client_id, session_id, mode, fallback, report_json, created_at
		FROM reports WHERE id = ?`

	rec, err := scanReport(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListReports returns a client's reports, newest first.
func (s *SQLiteStore) ListReports(ctx context.Context, clientID string, limit int) ([]*domain.ReportRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query := `
		SELECT id, client_id, session_id, mode, fallback, report_json, created_at
		FROM reports WHERE client_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close report rows", "error", closeErr)
		}
	}()

	records := []*domain.ReportRecord{}
	for rows.Next() {
		rec, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return records, nil
}

// CleanupReports removes reports older than ttl.
func (s *SQLiteStore) CleanupReports(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()

	var deleted int64
	err := shared.RetryOnConflict(ctx, s.backoff, "cleanup reports", func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE created_at < ?`, threshold)
		if err != nil {
			return err
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

func scanReport(row rowScanner) (*domain.ReportRecord, error) {
	var rec domain.ReportRecord
	var mode, body string
	var createdAt int64

	if err := row.Scan(&rec.ID, &rec.ClientID, &rec.SessionID, &mode, &rec.Fallback, &body, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan report row: %w", err)
	}
	if err := json.Unmarshal([]byte(body), &rec.Report); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", rec.ID, err)
	}
	rec.Mode = domain.Mode(mode)
	rec.CreatedAt = time.Unix(createdAt, 0)
	return &rec, nil
}
