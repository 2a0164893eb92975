package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/andee-ai/andee/internal/calendar"
	"github.com/andee-ai/andee/internal/models"
)

type recordingNotifier struct {
	sent []string
	fail bool
}

func (n *recordingNotifier) Send(ctx context.Context, phoneNumber, messageText string) error {
	if n.fail {
		return errors.New("notification transport down")
	}
	n.sent = append(n.sent, phoneNumber+": "+messageText)
	return nil
}

type recordingResolver struct {
	resolved []string
}

func (r *recordingResolver) Resolve(id string) error {
	r.resolved = append(r.resolved, id)
	return nil
}

type fixtures struct {
	store    *calendar.InMemoryStore
	notifier *recordingNotifier
	resolver *recordingResolver
	executor *Executor
	now      time.Time
	alert    *models.Alert
}

func setupExecutor(t *testing.T) *fixtures {
	t.Helper()
	now := time.Date(2026, 3, 14, 16, 31, 0, 0, time.UTC)
	store := calendar.NewInMemoryStore()
	ctx := context.Background()

	meetings := []models.Meeting{
		{ID: "a", Title: "Budget review", Start: now.Add(-29 * time.Minute), End: now.Add(9 * time.Minute)},
		{ID: "b", Title: "Site visit", ClientName: "Sarah Johnson", ClientPhone: "+15550100",
			Start: now.Add(29 * time.Minute), End: now.Add(89 * time.Minute)},
	}
	for _, m := range meetings {
		if _, err := store.Create(ctx, m); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	notifier := &recordingNotifier{}
	resolver := &recordingResolver{}
	return &fixtures{
		store:    store,
		notifier: notifier,
		resolver: resolver,
		executor: NewExecutor(store, notifier, resolver, func() time.Time { return now }),
		now:      now,
		alert: &models.Alert{
			ID:              "alert-1",
			TargetMeetingID: "b",
			Status:          models.AlertStatusOpen,
			CreatedAt:       now,
		},
	}
}

func TestExecuteConfirm(t *testing.T) {
	f := setupExecutor(t)
	res, err := f.executor.Execute(context.Background(), models.ActionCommand{Type: models.ActionConfirm}, f.alert)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !res.CalendarOK {
		t.Error("expected CalendarOK")
	}
	if len(f.resolver.resolved) != 1 || f.resolver.resolved[0] != "alert-1" {
		t.Errorf("expected alert-1 resolved, got %v", f.resolver.resolved)
	}
	if f.alert.IsOpen() {
		t.Error("expected alert marked Resolved")
	}
	if len(f.notifier.sent) != 0 {
		t.Error("Confirm must not notify anyone")
	}
}

func TestExecuteReschedule(t *testing.T) {
	f := setupExecutor(t)
	cmd := models.ActionCommand{Type: models.ActionReschedule, Minutes: 20}
	res, err := f.executor.Execute(context.Background(), cmd, f.alert)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !res.CalendarOK || !res.NotificationOK {
		t.Errorf("expected both calendar and notification OK, got %+v", res)
	}

	m, _ := f.store.Get("b")
	wantStart := f.now.Add(49 * time.Minute) // 17:00 + 20m
	if !m.Start.Equal(wantStart) {
		t.Errorf("expected start %v, got %v", wantStart, m.Start)
	}
	if len(f.notifier.sent) != 1 || !strings.Contains(f.notifier.sent[0], "Sarah Johnson") {
		t.Errorf("expected a notification to Sarah, got %v", f.notifier.sent)
	}
	if f.alert.IsOpen() {
		t.Error("expected alert Resolved after reschedule")
	}
}

func TestExecuteRescheduleNotificationFailureStillResolves(t *testing.T) {
	f := setupExecutor(t)
	f.notifier.fail = true
	cmd := models.ActionCommand{Type: models.ActionReschedule, Minutes: 20}
	res, err := f.executor.Execute(context.Background(), cmd, f.alert)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !res.CalendarOK {
		t.Error("expected CalendarOK despite notification failure")
	}
	if res.NotificationOK {
		t.Error("expected NotificationOK false")
	}
	if f.alert.IsOpen() {
		t.Error("expected alert Resolved despite notification failure")
	}
}

func TestExecuteRescheduleCalendarFailureKeepsAlertOpen(t *testing.T) {
	f := setupExecutor(t)
	f.alert.TargetMeetingID = "ghost"
	cmd := models.ActionCommand{Type: models.ActionReschedule, Minutes: 20}
	_, err := f.executor.Execute(context.Background(), cmd, f.alert)
	if !errors.Is(err, models.ErrMeetingNotFound) {
		t.Fatalf("expected ErrMeetingNotFound, got %v", err)
	}
	if !f.alert.IsOpen() {
		t.Error("expected alert to stay Open on calendar failure")
	}
	if len(f.resolver.resolved) != 0 {
		t.Error("expected no resolve call on calendar failure")
	}
}

func TestExecuteCancel(t *testing.T) {
	f := setupExecutor(t)
	res, err := f.executor.Execute(context.Background(), models.ActionCommand{Type: models.ActionCancel}, f.alert)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !res.CalendarOK || !res.NotificationOK {
		t.Errorf("expected both OK, got %+v", res)
	}
	if _, ok := f.store.Get("b"); ok {
		t.Error("expected meeting b deleted")
	}
	if f.alert.IsOpen() {
		t.Error("expected alert Resolved after cancel")
	}
}

func TestExecuteIdempotentOnResolvedAlert(t *testing.T) {
	f := setupExecutor(t)
	cmd := models.ActionCommand{Type: models.ActionReschedule, Minutes: 20}
	if _, err := f.executor.Execute(context.Background(), cmd, f.alert); err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}
	before, _ := f.store.Get("b")

	res, err := f.executor.Execute(context.Background(), cmd, f.alert)
	if err != nil {
		t.Fatalf("second Execute failed: %v", err)
	}
	if res.CalendarOK || res.NotificationOK {
		t.Errorf("expected no-op result, got %+v", res)
	}
	after, _ := f.store.Get("b")
	if !after.Start.Equal(before.Start) {
		t.Error("expected no second shift on a Resolved alert")
	}
	if len(f.notifier.sent) != 1 {
		t.Errorf("expected exactly one notification, got %d", len(f.notifier.sent))
	}
}

func TestExecuteCheckSchedule(t *testing.T) {
	f := setupExecutor(t)
	res, err := f.executor.Execute(context.Background(), models.ActionCommand{Type: models.ActionCheckSchedule}, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(res.Detail, "Site visit") || !strings.Contains(res.Detail, "Sarah Johnson") {
		t.Errorf("expected schedule listing, got %q", res.Detail)
	}
	if !f.alert.IsOpen() {
		t.Error("schedule checks must not touch the alert")
	}
}

func TestExecuteCancelMeetingByIdentifier(t *testing.T) {
	f := setupExecutor(t)
	cmd := models.ActionCommand{Type: models.ActionCancelMeeting, Identifier: "sarah"}
	res, err := f.executor.Execute(context.Background(), cmd, f.alert)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !res.CalendarOK {
		t.Error("expected CalendarOK")
	}
	if _, ok := f.store.Get("b"); ok {
		t.Error("expected meeting b deleted")
	}
	// Schedule-management commands are independent of the conflict flow.
	if !f.alert.IsOpen() {
		t.Error("expected alert to remain Open")
	}
}

func TestExecuteRescheduleMeetingToClockTime(t *testing.T) {
	f := setupExecutor(t)
	cmd := models.ActionCommand{Type: models.ActionRescheduleMeeting, Identifier: "5", NewTime: "18:30"}
	res, err := f.executor.Execute(context.Background(), cmd, f.alert)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !res.CalendarOK {
		t.Errorf("expected CalendarOK, got %+v", res)
	}
	m, _ := f.store.Get("b")
	if got := fmt.Sprintf("%02d:%02d", m.Start.Hour(), m.Start.Minute()); got != "18:30" {
		t.Errorf("expected start 18:30, got %s", got)
	}
	if !f.alert.IsOpen() {
		t.Error("expected alert to remain Open")
	}
}

func TestExecuteCreateMeeting(t *testing.T) {
	f := setupExecutor(t)
	slot := f.now.In(time.Local).Add(2 * time.Hour)
	cmd := models.ActionCommand{
		Type:            models.ActionCreateMeeting,
		Title:           "Coffee with Alex",
		Date:            slot.Format("2006-01-02"),
		Time:            slot.Format("15:04"),
		DurationMinutes: 45,
	}
	res, err := f.executor.Execute(context.Background(), cmd, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !res.CalendarOK || !strings.Contains(res.Detail, "Coffee with Alex") {
		t.Errorf("unexpected result %+v", res)
	}

	meetings, err := f.store.List(context.Background(), f.now, f.now.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	found := false
	for _, m := range meetings {
		if m.Title == "Coffee with Alex" && m.Duration() == 45*time.Minute {
			found = true
		}
	}
	if !found {
		t.Error("expected created meeting in the store")
	}
}
