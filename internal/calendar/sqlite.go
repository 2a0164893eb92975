// Package calendar provides storage backends for meetings.
//
// This file implements a SQLite-backed Meeting Store.
package calendar

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/andee-ai/andee/internal/models"
)

// DefaultDirPermissions defines the default permissions for database directories
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a Meeting Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.SQLiteDSN != "")

	dsn := cfg.SQLiteDSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// List returns meetings intersecting [rangeStart, rangeEnd), sorted by start.
func (s *SQLiteStore) List(ctx context.Context, rangeStart, rangeEnd time.Time) ([]models.Meeting, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, location, start_time, end_time, client_name, client_phone
		 FROM meetings WHERE end_time > ? AND start_time < ? ORDER BY start_time ASC`,
		rangeStart, rangeEnd)
	if err != nil {
		slog.Error("SQLiteStore List query failed", "error", err)
		return nil, fmt.Errorf("failed to query meetings: %w", err)
	}
	defer rows.Close()

	var meetings []models.Meeting
	for rows.Next() {
		var m models.Meeting
		if err := rows.Scan(&m.ID, &m.Title, &m.Location, &m.Start, &m.End, &m.ClientName, &m.ClientPhone); err != nil {
			slog.Error("SQLiteStore List scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan meeting row: %w", err)
		}
		meetings = append(meetings, m)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore List rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate meeting rows: %w", err)
	}
	slog.Debug("SQLiteStore List succeeded", "count", len(meetings))
	return meetings, nil
}

// Shift moves a meeting's start and end by deltaMinutes inside a transaction.
func (s *SQLiteStore) Shift(ctx context.Context, id string, deltaMinutes int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var start, end time.Time
	err = tx.QueryRowContext(ctx, `SELECT start_time, end_time FROM meetings WHERE id = ?`, id).Scan(&start, &end)
	if err == sql.ErrNoRows {
		slog.Error("SQLiteStore Shift: meeting not found", "id", id)
		return models.ErrMeetingNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore Shift query failed", "error", err, "id", id)
		return fmt.Errorf("failed to load meeting %s: %w", id, err)
	}

	delta := time.Duration(deltaMinutes) * time.Minute
	_, err = tx.ExecContext(ctx, `UPDATE meetings SET start_time = ?, end_time = ? WHERE id = ?`,
		start.Add(delta), end.Add(delta), id)
	if err != nil {
		slog.Error("SQLiteStore Shift update failed", "error", err, "id", id)
		return fmt.Errorf("failed to shift meeting %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit shift: %w", err)
	}
	slog.Debug("SQLiteStore Shift succeeded", "id", id, "deltaMinutes", deltaMinutes)
	return nil
}

// Delete removes a meeting.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM meetings WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore Delete failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete meeting %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrMeetingNotFound
	}
	slog.Debug("SQLiteStore Delete succeeded", "id", id)
	return nil
}

// Create adds a meeting, assigning an ID when none is provided.
func (s *SQLiteStore) Create(ctx context.Context, m models.Meeting) (models.Meeting, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if err := m.Validate(); err != nil {
		slog.Error("SQLiteStore Create validation failed", "error", err, "title", m.Title)
		return models.Meeting{}, err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meetings (id, title, location, start_time, end_time, client_name, client_phone)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Title, m.Location, m.Start, m.End, m.ClientName, m.ClientPhone)
	if err != nil {
		slog.Error("SQLiteStore Create failed", "error", err, "title", m.Title)
		return models.Meeting{}, fmt.Errorf("failed to insert meeting %s: %w", m.Title, err)
	}
	slog.Debug("SQLiteStore Create succeeded", "id", m.ID, "title", m.Title)
	return m, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
