package history

import (
	"fmt"
	"testing"

	"github.com/andee-ai/andee/internal/models"
)

func TestAppendDropsConsecutiveDuplicates(t *testing.T) {
	m := NewManager()
	if !m.Append(models.RoleUser, "hi") {
		t.Error("expected first append to store")
	}
	if m.Append(models.RoleUser, "hi") {
		t.Error("expected duplicate append to be dropped")
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", m.Len())
	}

	// Same content under a different role is not a duplicate.
	if !m.Append(models.RoleAssistant, "hi") {
		t.Error("expected different-role append to store")
	}
	// Non-consecutive duplicate is allowed again.
	if !m.Append(models.RoleUser, "hi") {
		t.Error("expected non-consecutive duplicate to store")
	}
	if m.Len() != 3 {
		t.Errorf("expected 3 entries, got %d", m.Len())
	}
}

func TestWindowedReturnsMostRecent(t *testing.T) {
	m := NewManager(WithWindow(3))
	for i := 0; i < 5; i++ {
		m.Append(models.RoleUser, fmt.Sprintf("msg %d", i))
	}
	got := m.Windowed()
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0].Content != "msg 2" || got[2].Content != "msg 4" {
		t.Errorf("expected window [msg 2..msg 4], got %q..%q", got[0].Content, got[2].Content)
	}
}

func TestWindowedUnrestricted(t *testing.T) {
	m := NewManager(WithWindow(0))
	for i := 0; i < 25; i++ {
		m.Append(models.RoleUser, fmt.Sprintf("msg %d", i))
	}
	if got := m.Windowed(); len(got) != 25 {
		t.Errorf("expected all 25 entries, got %d", len(got))
	}
}

func TestWindowedCopyIsIsolated(t *testing.T) {
	m := NewManager()
	m.Append(models.RoleUser, "original")
	got := m.Windowed()
	got[0].Content = "mutated"
	if m.Windowed()[0].Content != "original" {
		t.Error("expected stored entries to be unaffected by caller mutation")
	}
}

func TestReset(t *testing.T) {
	m := NewManager()
	m.Append(models.RoleUser, "hi")
	m.Reset()
	if m.Len() != 0 {
		t.Errorf("expected empty history after Reset, got %d entries", m.Len())
	}
}
