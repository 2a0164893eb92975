// Package history maintains the role-tagged transcript window used as
// generation context for the dialogue.
package history

import (
	"sync"
	"time"

	"github.com/andee-ai/andee/internal/models"
)

// DefaultWindow is the number of recent entries returned by Windowed.
const DefaultWindow = 20

// Opts holds configuration options for the Manager.
type Opts struct {
	Window int
}

// Option configures a Manager.
type Option func(*Opts)

// WithWindow sets the number of entries Windowed returns. Zero or negative
// means unrestricted.
func WithWindow(n int) Option {
	return func(o *Opts) { o.Window = n }
}

// Manager stores the transcript history. Consecutive duplicate entries with
// the same role and content are dropped before storage so stale context is
// never re-sent to the generation service.
type Manager struct {
	mu      sync.RWMutex
	entries []models.ConversationMessage
	window  int
}

// NewManager creates a Manager with the given options.
func NewManager(opts ...Option) *Manager {
	cfg := Opts{Window: DefaultWindow}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Manager{window: cfg.Window}
}

// Append stores an entry unless it duplicates the immediately preceding
// stored entry's role and content. It reports whether the entry was stored.
func (m *Manager) Append(role models.Role, content string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n := len(m.entries); n > 0 {
		last := m.entries[n-1]
		if last.Role == role && last.Content == content {
			return false
		}
	}
	m.entries = append(m.entries, models.ConversationMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	return true
}

// Windowed returns a copy of the most recent window entries.
func (m *Manager) Windowed() []models.ConversationMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()

	start := 0
	if m.window > 0 && len(m.entries) > m.window {
		start = len(m.entries) - m.window
	}
	out := make([]models.ConversationMessage, len(m.entries)-start)
	copy(out, m.entries[start:])
	return out
}

// Len returns the number of stored entries.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Reset clears the transcript history.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
}
