// Package calendar provides Meeting Store backends for Andee.
//
// It includes an in-memory store used by the engine and tests, SQLite and
// PostgreSQL persistent stores, and a CalDAV store for real calendars.
package calendar

import (
	"context"
	"time"

	"github.com/andee-ai/andee/internal/models"
)

// MeetingStore is the engine's boundary to calendar data. The engine only
// reads meetings and requests mutations; the store owns the data.
type MeetingStore interface {
	// List returns meetings whose time range intersects [rangeStart, rangeEnd),
	// sorted by start time ascending.
	List(ctx context.Context, rangeStart, rangeEnd time.Time) ([]models.Meeting, error)

	// Shift moves a meeting's start and end by deltaMinutes (positive delays it).
	Shift(ctx context.Context, id string, deltaMinutes int) error

	// Delete removes a meeting.
	Delete(ctx context.Context, id string) error

	// Create adds a new meeting. If the meeting has no ID one is assigned.
	Create(ctx context.Context, m models.Meeting) (models.Meeting, error)
}

// Opts holds configuration options for store construction.
type Opts struct {
	// SQLiteDSN is the file path for a SQLite-backed store.
	SQLiteDSN string
	// PostgresDSN is the connection string for a PostgreSQL-backed store.
	PostgresDSN string
}

// Option defines a configuration option for store construction.
type Option func(*Opts)

// WithSQLiteDSN configures a SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.SQLiteDSN = dsn }
}

// WithPostgresDSN configures a PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.PostgresDSN = dsn }
}
