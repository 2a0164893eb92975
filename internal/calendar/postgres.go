// Package calendar provides storage backends for meetings.
//
// This file implements a PostgreSQL-backed Meeting Store.
package calendar

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/andee-ai/andee/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a Meeting Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.PostgresDSN != "")

	dsn := cfg.PostgresDSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// List returns meetings intersecting [rangeStart, rangeEnd), sorted by start.
func (s *PostgresStore) List(ctx context.Context, rangeStart, rangeEnd time.Time) ([]models.Meeting, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, location, start_time, end_time, client_name, client_phone
		 FROM meetings WHERE end_time > $1 AND start_time < $2 ORDER BY start_time ASC`,
		rangeStart, rangeEnd)
	if err != nil {
		slog.Error("PostgresStore List query failed", "error", err)
		return nil, fmt.Errorf("failed to query meetings: %w", err)
	}
	defer rows.Close()

	var meetings []models.Meeting
	for rows.Next() {
		var m models.Meeting
		if err := rows.Scan(&m.ID, &m.Title, &m.Location, &m.Start, &m.End, &m.ClientName, &m.ClientPhone); err != nil {
			slog.Error("PostgresStore List scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan meeting row: %w", err)
		}
		meetings = append(meetings, m)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore List rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate meeting rows: %w", err)
	}
	slog.Debug("PostgresStore List succeeded", "count", len(meetings))
	return meetings, nil
}

// Shift moves a meeting's start and end by deltaMinutes in a single statement.
func (s *PostgresStore) Shift(ctx context.Context, id string, deltaMinutes int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE meetings
		 SET start_time = start_time + $1 * INTERVAL '1 minute',
		     end_time = end_time + $1 * INTERVAL '1 minute'
		 WHERE id = $2`,
		deltaMinutes, id)
	if err != nil {
		slog.Error("PostgresStore Shift failed", "error", err, "id", id)
		return fmt.Errorf("failed to shift meeting %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrMeetingNotFound
	}
	slog.Debug("PostgresStore Shift succeeded", "id", id, "deltaMinutes", deltaMinutes)
	return nil
}

// Delete removes a meeting.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM meetings WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore Delete failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete meeting %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrMeetingNotFound
	}
	slog.Debug("PostgresStore Delete succeeded", "id", id)
	return nil
}

// Create adds a meeting, assigning an ID when none is provided.
func (s *PostgresStore) Create(ctx context.Context, m models.Meeting) (models.Meeting, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if err := m.Validate(); err != nil {
		slog.Error("PostgresStore Create validation failed", "error", err, "title", m.Title)
		return models.Meeting{}, err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meetings (id, title, location, start_time, end_time, client_name, client_phone)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.Title, m.Location, m.Start, m.End, m.ClientName, m.ClientPhone)
	if err != nil {
		slog.Error("PostgresStore Create failed", "error", err, "title", m.Title)
		return models.Meeting{}, fmt.Errorf("failed to insert meeting %s: %w", m.Title, err)
	}
	slog.Debug("PostgresStore Create succeeded", "id", m.ID, "title", m.Title)
	return m, nil
}

// Close closes the PostgreSQL connection.
func (s *PostgresStore) Close() error {
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL connection", "error", err)
	}
	return err
}
