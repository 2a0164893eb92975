package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/andee-ai/andee/internal/calendar"
	"github.com/andee-ai/andee/internal/dialogue"
	"github.com/andee-ai/andee/internal/models"
	"github.com/andee-ai/andee/internal/speech"
)

type scriptedGen struct {
	responses []string
	calls     int
}

func (g *scriptedGen) Respond(ctx context.Context, hist []models.ConversationMessage, latest, summary string) (string, error) {
	i := g.calls
	g.calls++
	if i < len(g.responses) {
		return g.responses[i], nil
	}
	return "", errors.New("script exhausted")
}

type recordingNotifier struct{ sent []string }

func (n *recordingNotifier) Send(ctx context.Context, phone, msg string) error {
	n.sent = append(n.sent, phone+": "+msg)
	return nil
}

// Scenario: meeting A ends 16:40, meeting B with Sarah Johnson starts 17:00,
// travel 25 and buffer 5. At 16:31 the alert fires, the user asks for 20
// more minutes, B moves to 17:20, Sarah is notified, the alert resolves.
func TestEndToEndRescheduleNegotiation(t *testing.T) {
	now := time.Date(2026, 3, 14, 16, 31, 0, 0, time.UTC)
	store := calendar.NewInMemoryStore()
	ctx := context.Background()

	meetings := []models.Meeting{
		{ID: "a", Title: "Budget review", Location: "Office",
			Start: now.Add(-29 * time.Minute), End: now.Add(9 * time.Minute)},
		{ID: "b", Title: "Site visit", Location: "12 Harbour St",
			ClientName: "Sarah Johnson", ClientPhone: "+15550100",
			Start: now.Add(29 * time.Minute), End: now.Add(89 * time.Minute)},
	}
	for _, m := range meetings {
		if _, err := store.Create(ctx, m); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	capture := speech.NewScriptedCapture()
	capture.Queue("push it back 20 minutes")
	synth := &speech.RecordingSynthesizer{}
	gen := &scriptedGen{responses: []string{"On it Boss. [ACTION:RESCHEDULE:20]"}}
	notifier := &recordingNotifier{}

	e, err := New(
		WithStore(store),
		WithCapture(capture),
		WithSynthesizer(synth),
		WithGenerator(gen),
		WithNotifier(notifier),
		WithTravelMinutes(25),
		WithBufferMinutes(5),
		WithNow(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	e.PollOnce(ctx)

	// The alert session runs on its own goroutine; wait for it to resolve.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, open := e.detector.OpenAlert(); !open && !e.controller.Active() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("negotiation session never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	m, _ := store.Get("b")
	if !m.Start.Equal(now.Add(49 * time.Minute)) {
		t.Errorf("expected B moved to 17:20, got %v", m.Start)
	}
	if m.Duration() != time.Hour {
		t.Errorf("expected original duration preserved, got %v", m.Duration())
	}
	if len(notifier.sent) != 1 || !strings.Contains(notifier.sent[0], "+15550100") {
		t.Errorf("expected Sarah notified, got %v", notifier.sent)
	}

	opening := ""
	if len(synth.Spoken) > 0 {
		opening = synth.Spoken[0]
	}
	for _, want := range []string{"Site visit", "Sarah Johnson", "29 minutes", "25 minutes"} {
		if !strings.Contains(opening, want) {
			t.Errorf("expected opening prompt to mention %q, got %q", want, opening)
		}
	}

	// Subsequent polls raise nothing: the conflict window is spent.
	e.PollOnce(ctx)
	if _, open := e.detector.OpenAlert(); open {
		t.Error("expected no new alert after resolution")
	}
	if status := e.Status(); status.DialogueState != dialogue.StateIdle {
		t.Errorf("expected Idle status, got %s", status.DialogueState)
	}
}

func TestEngineRequiresCollaborators(t *testing.T) {
	if _, err := New(); err == nil {
		t.Error("expected error without a store")
	}
	if _, err := New(WithStore(calendar.NewInMemoryStore())); err == nil {
		t.Error("expected error without speech collaborators")
	}
}

func TestDismissAlert(t *testing.T) {
	now := time.Date(2026, 3, 14, 16, 31, 0, 0, time.UTC)
	store := calendar.NewInMemoryStore()
	ctx := context.Background()
	for _, m := range []models.Meeting{
		{ID: "a", Title: "Budget review", Start: now.Add(-29 * time.Minute), End: now.Add(9 * time.Minute)},
		{ID: "b", Title: "Site visit", Start: now.Add(29 * time.Minute), End: now.Add(89 * time.Minute)},
	} {
		if _, err := store.Create(ctx, m); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	// Capture script stays empty so the session gives up on its own; the
	// dismissal path must not depend on the dialogue finishing first.
	e, err := New(
		WithStore(store),
		WithCapture(speech.NewScriptedCapture()),
		WithSynthesizer(&speech.RecordingSynthesizer{}),
		WithGenerator(&scriptedGen{}),
		WithNow(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	e.PollOnce(ctx)
	if _, open := e.detector.OpenAlert(); !open {
		t.Fatal("expected an Open alert after poll")
	}
	if err := e.DismissAlert(); err != nil {
		t.Fatalf("DismissAlert failed: %v", err)
	}
	if _, open := e.detector.OpenAlert(); open {
		t.Error("expected alert dismissed")
	}
	if err := e.DismissAlert(); !errors.Is(err, models.ErrAlertNotOpen) {
		t.Errorf("expected ErrAlertNotOpen, got %v", err)
	}
}

func TestExpireStaleRecordsNotice(t *testing.T) {
	now := time.Date(2026, 3, 14, 16, 31, 0, 0, time.UTC)
	clock := now
	store := calendar.NewInMemoryStore()
	ctx := context.Background()
	for _, m := range []models.Meeting{
		{ID: "a", Title: "Budget review", Start: now.Add(-29 * time.Minute), End: now.Add(9 * time.Minute)},
		{ID: "b", Title: "Site visit", Start: now.Add(29 * time.Minute), End: now.Add(89 * time.Minute)},
	} {
		if _, err := store.Create(ctx, m); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	e, err := New(
		WithStore(store),
		WithCapture(speech.NewScriptedCapture()),
		WithSynthesizer(&speech.RecordingSynthesizer{}),
		WithGenerator(&scriptedGen{}),
		WithAlertTTL(5*time.Minute),
		WithNow(func() time.Time { return clock }),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	e.PollOnce(ctx)
	clock = now.Add(6 * time.Minute)
	e.expireStale()

	if _, open := e.detector.OpenAlert(); open {
		t.Error("expected stale alert expired")
	}
	status := e.Status()
	if len(status.Notices) == 0 || !strings.Contains(status.Notices[len(status.Notices)-1], "expired") {
		t.Errorf("expected an expiry notice, got %v", status.Notices)
	}
}
