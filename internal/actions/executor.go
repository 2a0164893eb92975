package actions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/andee-ai/andee/internal/calendar"
	"github.com/andee-ai/andee/internal/models"
)

// Notifier sends a message to a client's phone number.
type Notifier interface {
	Send(ctx context.Context, phoneNumber, messageText string) error
}

// AlertResolver marks an alert as resolved. The conflict Detector satisfies it.
type AlertResolver interface {
	Resolve(id string) error
}

// Executor applies ActionCommands against the Meeting Store and the
// notification service. Terminal commands resolve the alert they were issued
// for; execution against an already-resolved alert is a no-op.
type Executor struct {
	store    calendar.MeetingStore
	notifier Notifier
	alerts   AlertResolver
	now      func() time.Time
}

// NewExecutor creates an Executor. notifier may be nil when no notification
// transport is configured; nowFn defaults to time.Now.
func NewExecutor(store calendar.MeetingStore, notifier Notifier, alerts AlertResolver, nowFn func() time.Time) *Executor {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Executor{store: store, notifier: notifier, alerts: alerts, now: nowFn}
}

// Execute applies cmd. For terminal commands alert carries the conflict being
// resolved; schedule-management commands ignore it. Calendar failure leaves
// the alert Open; notification failure is logged and does not block
// resolution.
func (e *Executor) Execute(ctx context.Context, cmd models.ActionCommand, alert *models.Alert) (models.ExecutionResult, error) {
	if cmd.IsTerminal() {
		if alert == nil || !alert.IsOpen() {
			slog.Debug("Executor.Execute skipped, alert not open", "type", cmd.Type)
			return models.ExecutionResult{}, nil
		}
		return e.executeTerminal(ctx, cmd, alert)
	}

	switch cmd.Type {
	case models.ActionCreateMeeting:
		return e.createMeeting(ctx, cmd)
	case models.ActionCheckSchedule:
		return e.checkSchedule(ctx)
	case models.ActionCancelMeeting:
		return e.cancelMeeting(ctx, cmd)
	case models.ActionRescheduleMeeting:
		return e.rescheduleMeeting(ctx, cmd)
	}
	return models.ExecutionResult{}, nil
}

func (e *Executor) executeTerminal(ctx context.Context, cmd models.ActionCommand, alert *models.Alert) (models.ExecutionResult, error) {
	switch cmd.Type {
	case models.ActionConfirm:
		e.resolve(alert)
		return models.ExecutionResult{CalendarOK: true}, nil

	case models.ActionReschedule:
		if cmd.Minutes <= 0 {
			return models.ExecutionResult{}, models.ErrInvalidRescheduleMinutes
		}
		target, err := e.findTarget(ctx, alert.TargetMeetingID)
		if err != nil {
			return models.ExecutionResult{}, err
		}
		if err := e.store.Shift(ctx, target.ID, cmd.Minutes); err != nil {
			slog.Error("Executor.Execute reschedule failed", "error", err, "meetingID", target.ID)
			return models.ExecutionResult{}, fmt.Errorf("failed to reschedule meeting: %w", err)
		}
		newStart := target.Start.Add(time.Duration(cmd.Minutes) * time.Minute)
		notified := e.notify(ctx, target, fmt.Sprintf(
			"Hi %s, your meeting %q has been pushed back %d minutes to %s.",
			target.ClientName, target.Title, cmd.Minutes, newStart.Format("3:04 PM")))
		e.resolve(alert)
		return models.ExecutionResult{CalendarOK: true, NotificationOK: notified}, nil

	case models.ActionCancel:
		target, err := e.findTarget(ctx, alert.TargetMeetingID)
		if err != nil {
			return models.ExecutionResult{}, err
		}
		if err := e.store.Delete(ctx, target.ID); err != nil {
			slog.Error("Executor.Execute cancel failed", "error", err, "meetingID", target.ID)
			return models.ExecutionResult{}, fmt.Errorf("failed to cancel meeting: %w", err)
		}
		notified := e.notify(ctx, target, fmt.Sprintf(
			"Hi %s, your meeting %q at %s has been cancelled. Apologies for the short notice.",
			target.ClientName, target.Title, target.Start.Format("3:04 PM")))
		e.resolve(alert)
		return models.ExecutionResult{CalendarOK: true, NotificationOK: notified}, nil
	}
	return models.ExecutionResult{}, nil
}

func (e *Executor) createMeeting(ctx context.Context, cmd models.ActionCommand) (models.ExecutionResult, error) {
	start, err := time.ParseInLocation("2006-01-02 15:04", cmd.Date+" "+cmd.Time, time.Local)
	if err != nil {
		return models.ExecutionResult{}, fmt.Errorf("%w: %v", models.ErrMalformedCreateMeeting, err)
	}
	m := models.Meeting{
		Title: cmd.Title,
		Start: start,
		End:   start.Add(time.Duration(cmd.DurationMinutes) * time.Minute),
	}
	created, err := e.store.Create(ctx, m)
	if err != nil {
		slog.Error("Executor.Execute create meeting failed", "error", err, "title", cmd.Title)
		return models.ExecutionResult{}, fmt.Errorf("failed to create meeting: %w", err)
	}
	return models.ExecutionResult{
		CalendarOK: true,
		Detail: fmt.Sprintf("Booked %q on %s at %s for %d minutes.",
			created.Title, start.Format("Monday, January 2"), start.Format("3:04 PM"), cmd.DurationMinutes),
	}, nil
}

func (e *Executor) checkSchedule(ctx context.Context) (models.ExecutionResult, error) {
	now := e.now()
	meetings, err := e.store.List(ctx, now, now.Add(24*time.Hour))
	if err != nil {
		slog.Error("Executor.Execute check schedule failed", "error", err)
		return models.ExecutionResult{}, fmt.Errorf("failed to list meetings: %w", err)
	}
	if len(meetings) == 0 {
		return models.ExecutionResult{CalendarOK: true, Detail: "Your next 24 hours are clear."}, nil
	}
	var b strings.Builder
	b.WriteString("Coming up: ")
	for i, m := range meetings {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s at %s", m.Title, m.Start.Format("3:04 PM"))
		if m.ClientName != "" {
			fmt.Fprintf(&b, " with %s", m.ClientName)
		}
	}
	b.WriteString(".")
	return models.ExecutionResult{CalendarOK: true, Detail: b.String()}, nil
}

func (e *Executor) cancelMeeting(ctx context.Context, cmd models.ActionCommand) (models.ExecutionResult, error) {
	target, err := e.resolveIdentifier(ctx, cmd.Identifier)
	if err != nil {
		return models.ExecutionResult{}, err
	}
	if err := e.store.Delete(ctx, target.ID); err != nil {
		slog.Error("Executor.Execute cancel meeting failed", "error", err, "meetingID", target.ID)
		return models.ExecutionResult{}, fmt.Errorf("failed to cancel meeting: %w", err)
	}
	notified := e.notify(ctx, target, fmt.Sprintf(
		"Hi %s, your meeting %q at %s has been cancelled. Apologies for the short notice.",
		target.ClientName, target.Title, target.Start.Format("3:04 PM")))
	return models.ExecutionResult{
		CalendarOK:     true,
		NotificationOK: notified,
		Detail:         fmt.Sprintf("Cancelled %q at %s.", target.Title, target.Start.Format("3:04 PM")),
	}, nil
}

func (e *Executor) rescheduleMeeting(ctx context.Context, cmd models.ActionCommand) (models.ExecutionResult, error) {
	target, err := e.resolveIdentifier(ctx, cmd.Identifier)
	if err != nil {
		return models.ExecutionResult{}, err
	}
	newMinutes, ok := parseClockMinutes(cmd.NewTime)
	if !ok {
		return models.ExecutionResult{}, fmt.Errorf("%w: unparseable target time %q", models.ErrMissingActionIdentifier, cmd.NewTime)
	}
	oldMinutes := target.Start.Hour()*60 + target.Start.Minute()
	delta := newMinutes - oldMinutes
	if delta == 0 {
		return models.ExecutionResult{CalendarOK: true, Detail: "That meeting is already at that time."}, nil
	}
	if err := e.store.Shift(ctx, target.ID, delta); err != nil {
		slog.Error("Executor.Execute reschedule meeting failed", "error", err, "meetingID", target.ID)
		return models.ExecutionResult{}, fmt.Errorf("failed to reschedule meeting: %w", err)
	}
	newStart := target.Start.Add(time.Duration(delta) * time.Minute)
	notified := e.notify(ctx, target, fmt.Sprintf(
		"Hi %s, your meeting %q has been moved to %s.",
		target.ClientName, target.Title, newStart.Format("3:04 PM")))
	return models.ExecutionResult{
		CalendarOK:     true,
		NotificationOK: notified,
		Detail:         fmt.Sprintf("Moved %q to %s.", target.Title, newStart.Format("3:04 PM")),
	}, nil
}

// findTarget loads the meeting an alert points at from the lookahead window.
func (e *Executor) findTarget(ctx context.Context, meetingID string) (models.Meeting, error) {
	now := e.now()
	meetings, err := e.store.List(ctx, now, now.Add(24*time.Hour))
	if err != nil {
		return models.Meeting{}, fmt.Errorf("failed to list meetings: %w", err)
	}
	for _, m := range meetings {
		if m.ID == meetingID {
			return m, nil
		}
	}
	return models.Meeting{}, models.ErrMeetingNotFound
}

func (e *Executor) resolveIdentifier(ctx context.Context, identifier string) (models.Meeting, error) {
	if identifier == "" {
		return models.Meeting{}, models.ErrMissingActionIdentifier
	}
	now := e.now()
	meetings, err := e.store.List(ctx, now, now.Add(24*time.Hour))
	if err != nil {
		return models.Meeting{}, fmt.Errorf("failed to list meetings: %w", err)
	}
	target, ok := ResolveMeeting(meetings, identifier)
	if !ok {
		return models.Meeting{}, models.ErrMeetingNotFound
	}
	return target, nil
}

// notify sends a client notification when a phone number is on file. Failure
// is logged and reported as false, never returned as an error.
func (e *Executor) notify(ctx context.Context, m models.Meeting, message string) bool {
	if e.notifier == nil || m.ClientPhone == "" {
		return false
	}
	if err := e.notifier.Send(ctx, m.ClientPhone, message); err != nil {
		slog.Warn("Executor.notify failed", "error", err, "meetingID", m.ID)
		return false
	}
	return true
}

func (e *Executor) resolve(alert *models.Alert) {
	if err := e.alerts.Resolve(alert.ID); err != nil {
		slog.Warn("Executor.resolve failed", "error", err, "alertID", alert.ID)
	}
	alert.Status = models.AlertStatusResolved
}
