package calendar

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andee-ai/andee/internal/models"
)

// InMemoryStore is a thread-safe in-memory Meeting Store. It backs the engine
// in demo mode and is the store of choice for tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	meetings map[string]models.Meeting
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{meetings: make(map[string]models.Meeting)}
}

// List returns meetings intersecting [rangeStart, rangeEnd), sorted by start.
func (s *InMemoryStore) List(ctx context.Context, rangeStart, rangeEnd time.Time) ([]models.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Meeting
	for _, m := range s.meetings {
		if m.End.After(rangeStart) && m.Start.Before(rangeEnd) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// Shift moves a meeting's start and end by deltaMinutes.
func (s *InMemoryStore) Shift(ctx context.Context, id string, deltaMinutes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.meetings[id]
	if !ok {
		slog.Error("InMemoryStore Shift: meeting not found", "id", id)
		return models.ErrMeetingNotFound
	}
	delta := time.Duration(deltaMinutes) * time.Minute
	m.Start = m.Start.Add(delta)
	m.End = m.End.Add(delta)
	s.meetings[id] = m
	slog.Debug("InMemoryStore Shift succeeded", "id", id, "deltaMinutes", deltaMinutes)
	return nil
}

// Delete removes a meeting.
func (s *InMemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meetings[id]; !ok {
		slog.Error("InMemoryStore Delete: meeting not found", "id", id)
		return models.ErrMeetingNotFound
	}
	delete(s.meetings, id)
	slog.Debug("InMemoryStore Delete succeeded", "id", id)
	return nil
}

// Create adds a meeting, assigning an ID when none is provided.
func (s *InMemoryStore) Create(ctx context.Context, m models.Meeting) (models.Meeting, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if err := m.Validate(); err != nil {
		slog.Error("InMemoryStore Create validation failed", "error", err, "title", m.Title)
		return models.Meeting{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.meetings[m.ID] = m
	slog.Debug("InMemoryStore Create succeeded", "id", m.ID, "title", m.Title)
	return m, nil
}

// Get returns a meeting by ID. Used by tests and the HTTP layer.
func (s *InMemoryStore) Get(id string) (models.Meeting, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meetings[id]
	return m, ok
}
