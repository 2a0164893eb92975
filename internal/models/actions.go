// Package models defines action command types to avoid circular imports.
package models

import "errors"

// ActionType identifies the concrete command extracted from response text.
type ActionType string

// Recognized action types.
const (
	ActionConfirm           ActionType = "CONFIRM"
	ActionReschedule        ActionType = "RESCHEDULE"
	ActionCancel            ActionType = "CANCEL"
	ActionCreateMeeting     ActionType = "CREATE_MEETING"
	ActionCheckSchedule     ActionType = "CHECK_SCHEDULE"
	ActionCancelMeeting     ActionType = "CANCEL_MEETING"
	ActionRescheduleMeeting ActionType = "RESCHEDULE_MEETING"
	ActionUnrecognized      ActionType = "UNRECOGNIZED"
)

// Error variables for action validation.
var (
	ErrInvalidRescheduleMinutes = errors.New("reschedule minutes must be a positive integer")
	ErrMissingActionIdentifier  = errors.New("action requires a meeting identifier")
	ErrMalformedCreateMeeting   = errors.New("create meeting requires title, date, time, and duration")
)

// ActionCommand is a tagged variant produced transiently by the Action Parser
// from one turn's response text. Only the fields relevant to Type are set.
type ActionCommand struct {
	Type ActionType `json:"type"`

	// Minutes is the delay for ActionReschedule.
	Minutes int `json:"minutes,omitempty"`

	// Fields for ActionCreateMeeting.
	Title           string `json:"title,omitempty"`
	Date            string `json:"date,omitempty"` // ISO date, e.g. "2024-02-03"
	Time            string `json:"time,omitempty"` // 24-hour time, e.g. "14:00"
	DurationMinutes int    `json:"duration_minutes,omitempty"`

	// Identifier selects a meeting for ActionCancelMeeting and
	// ActionRescheduleMeeting: a time-of-day token like "3pm" or a
	// client/title fragment.
	Identifier string `json:"identifier,omitempty"`
	// NewTime is the 24-hour target time for ActionRescheduleMeeting.
	NewTime string `json:"new_time,omitempty"`

	// RawText carries the original text for ActionUnrecognized.
	RawText string `json:"raw_text,omitempty"`

	// FromMarker reports whether the command came from an explicit action
	// marker rather than the fallback keyword classifier.
	FromMarker bool `json:"from_marker,omitempty"`
}

// IsTerminal reports whether executing the command resolves an open alert.
func (c ActionCommand) IsTerminal() bool {
	switch c.Type {
	case ActionConfirm, ActionReschedule, ActionCancel:
		return true
	default:
		return false
	}
}

// ExecutionResult reports the outcome of applying an ActionCommand.
// Detail carries user-facing text for schedule listings and lookups.
type ExecutionResult struct {
	CalendarOK     bool   `json:"calendar_ok"`
	NotificationOK bool   `json:"notification_ok"`
	Detail         string `json:"detail,omitempty"`
}
