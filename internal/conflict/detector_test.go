package conflict

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/andee-ai/andee/internal/calendar"
	"github.com/andee-ai/andee/internal/models"
)

func meetingAt(id string, start time.Time, dur time.Duration) models.Meeting {
	return models.Meeting{
		ID:    id,
		Title: "Meeting " + id,
		Start: start,
		End:   start.Add(dur),
	}
}

func TestEvaluateRaisesAlertOnce(t *testing.T) {
	d := NewDetector(WithEstimator(StaticEstimator{Minutes: 25}), WithBufferMinutes(5))
	now := time.Date(2026, 3, 14, 16, 31, 0, 0, time.UTC)
	meetings := []models.Meeting{
		meetingAt("a", now.Add(-29*time.Minute), 38*time.Minute), // ends 16:40
		meetingAt("b", now.Add(29*time.Minute), time.Hour),       // starts 17:00
	}

	snap, err := d.Evaluate(context.Background(), meetings, now)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !snap.Raised || snap.Alert == nil {
		t.Fatal("expected an alert to be raised")
	}
	if snap.Alert.TargetMeetingID != "b" {
		t.Errorf("expected target b, got %s", snap.Alert.TargetMeetingID)
	}
	if snap.Alert.MinutesUntilStart != 29 {
		t.Errorf("expected 29 minutes until start, got %d", snap.Alert.MinutesUntilStart)
	}
	if snap.Alert.TravelMinutes != 25 {
		t.Errorf("expected 25 travel minutes, got %d", snap.Alert.TravelMinutes)
	}

	// Repeated polls while the alert is Open must not raise a second one.
	for i := 0; i < 3; i++ {
		again, err := d.Evaluate(context.Background(), meetings, now.Add(time.Duration(i)*10*time.Second))
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if again.Raised {
			t.Fatal("expected no second alert while one is Open")
		}
		if again.Alert == nil || again.Alert.ID != snap.Alert.ID {
			t.Fatal("expected snapshot to carry the existing Open alert")
		}
	}
}

func TestEvaluateNoConflictOutsideWindow(t *testing.T) {
	d := NewDetector(WithEstimator(StaticEstimator{Minutes: 25}), WithBufferMinutes(5))
	now := time.Date(2026, 3, 14, 16, 0, 0, 0, time.UTC)
	meetings := []models.Meeting{
		meetingAt("a", now.Add(-30*time.Minute), time.Hour),
		meetingAt("b", now.Add(45*time.Minute), time.Hour), // 45 > 25+5
	}

	snap, err := d.Evaluate(context.Background(), meetings, now)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if snap.Raised || snap.Alert != nil {
		t.Error("expected no alert when next start is beyond travel+buffer")
	}
	if snap.Current == nil || snap.Current.ID != "a" {
		t.Error("expected current meeting a")
	}
	if snap.Next == nil || snap.Next.ID != "b" {
		t.Error("expected next meeting b")
	}
}

func TestEvaluateNoCurrentMeeting(t *testing.T) {
	d := NewDetector()
	now := time.Date(2026, 3, 14, 16, 0, 0, 0, time.UTC)
	meetings := []models.Meeting{
		meetingAt("b", now.Add(10*time.Minute), time.Hour),
	}
	snap, err := d.Evaluate(context.Background(), meetings, now)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if snap.Raised {
		t.Error("expected no alert without a meeting underway")
	}
}

func TestEvaluateOverlapPicksEarliestStart(t *testing.T) {
	d := NewDetector(WithEstimator(StaticEstimator{Minutes: 25}))
	now := time.Date(2026, 3, 14, 16, 0, 0, 0, time.UTC)
	meetings := []models.Meeting{
		meetingAt("later", now.Add(-10*time.Minute), time.Hour),
		meetingAt("earlier", now.Add(-20*time.Minute), time.Hour),
	}
	snap, err := d.Evaluate(context.Background(), meetings, now)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if snap.Current == nil || snap.Current.ID != "earlier" {
		t.Errorf("expected earliest-start overlap to win, got %+v", snap.Current)
	}
}

func TestResolveAllowsNewAlert(t *testing.T) {
	d := NewDetector(WithEstimator(StaticEstimator{Minutes: 25}), WithBufferMinutes(5))
	now := time.Date(2026, 3, 14, 16, 31, 0, 0, time.UTC)
	meetings := []models.Meeting{
		meetingAt("a", now.Add(-29*time.Minute), 38*time.Minute),
		meetingAt("b", now.Add(29*time.Minute), time.Hour),
	}

	snap, err := d.Evaluate(context.Background(), meetings, now)
	if err != nil || snap.Alert == nil {
		t.Fatalf("setup evaluate failed: %v", err)
	}
	if err := d.Resolve(snap.Alert.ID); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, open := d.OpenAlert(); open {
		t.Error("expected no Open alert after Resolve")
	}
	if err := d.Resolve(snap.Alert.ID); !errors.Is(err, models.ErrAlertNotOpen) {
		t.Errorf("expected ErrAlertNotOpen on double resolve, got %v", err)
	}

	again, err := d.Evaluate(context.Background(), meetings, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !again.Raised {
		t.Error("expected a fresh alert after the previous one resolved")
	}
}

func TestExpireStale(t *testing.T) {
	d := NewDetector(WithEstimator(StaticEstimator{Minutes: 25}), WithBufferMinutes(5))
	now := time.Date(2026, 3, 14, 16, 31, 0, 0, time.UTC)
	meetings := []models.Meeting{
		meetingAt("a", now.Add(-29*time.Minute), 38*time.Minute),
		meetingAt("b", now.Add(29*time.Minute), time.Hour),
	}
	if _, err := d.Evaluate(context.Background(), meetings, now); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if _, ok := d.ExpireStale(now.Add(2*time.Minute), 5*time.Minute); ok {
		t.Error("expected young alert to survive")
	}
	expired, ok := d.ExpireStale(now.Add(6*time.Minute), 5*time.Minute)
	if !ok {
		t.Fatal("expected stale alert to expire")
	}
	if expired.Status != models.AlertStatusResolved {
		t.Errorf("expected expired alert Resolved, got %s", expired.Status)
	}
	if _, open := d.OpenAlert(); open {
		t.Error("expected no Open alert after expiry")
	}
}

func TestPollerFiresOnAlert(t *testing.T) {
	now := time.Date(2026, 3, 14, 16, 31, 0, 0, time.UTC)
	store := calendar.NewInMemoryStore()
	ctx := context.Background()
	for _, m := range []models.Meeting{
		meetingAt("a", now.Add(-29*time.Minute), 38*time.Minute),
		meetingAt("b", now.Add(29*time.Minute), time.Hour),
	} {
		if _, err := store.Create(ctx, m); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	d := NewDetector(WithEstimator(StaticEstimator{Minutes: 25}), WithBufferMinutes(5))
	var fired []models.Alert
	p := NewPoller(d, store, func(a models.Alert, _ Snapshot) {
		fired = append(fired, a)
	}, func() time.Time { return now })

	p.Poll(ctx)
	p.Poll(ctx)
	if len(fired) != 1 {
		t.Fatalf("expected onAlert to fire once, fired %d times", len(fired))
	}
	if fired[0].TargetMeetingID != "b" {
		t.Errorf("expected alert for b, got %s", fired[0].TargetMeetingID)
	}
}
