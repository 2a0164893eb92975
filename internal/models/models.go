// Package models defines the core data structures for Andee.
//
// It includes meetings, conflict alerts, dialogue turns, and transcript
// entries, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// Validation constants for input validation
const (
	// MaxMeetingTitleLength defines the maximum allowed length for a meeting title
	MaxMeetingTitleLength = 256
	// MinClientPhoneDigits defines the minimum number of digits for a client phone number
	MinClientPhoneDigits = 6
)

// Error variables for better error handling and testability
var (
	ErrEmptyMeetingID    = errors.New("meeting id cannot be empty")
	ErrEmptyMeetingTitle = errors.New("meeting title cannot be empty")
	ErrMeetingTitleLong  = errors.New("meeting title exceeds maximum length")
	ErrInvalidTimeRange  = errors.New("meeting end must be after start")
	ErrEmptyAlertTarget  = errors.New("alert target meeting id cannot be empty")
	ErrAlertNotOpen      = errors.New("alert is not open")
	ErrAlertAlreadyOpen  = errors.New("another alert is already open")
	ErrMeetingNotFound   = errors.New("meeting not found")
)

// Meeting represents a calendar meeting owned by the Meeting Store.
// The engine only reads meetings and requests mutations through the store.
type Meeting struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	ClientName  string    `json:"client_name,omitempty"`
	ClientPhone string    `json:"client_phone,omitempty"`
}

// Validate performs basic validation on a Meeting structure.
func (m *Meeting) Validate() error {
	if m.ID == "" {
		return ErrEmptyMeetingID
	}
	if m.Title == "" {
		return ErrEmptyMeetingTitle
	}
	if len(m.Title) > MaxMeetingTitleLength {
		return ErrMeetingTitleLong
	}
	if !m.End.After(m.Start) {
		return ErrInvalidTimeRange
	}
	return nil
}

// InProgressAt reports whether the meeting is underway at the given instant.
func (m *Meeting) InProgressAt(now time.Time) bool {
	return !m.Start.After(now) && now.Before(m.End)
}

// Duration returns the meeting length.
func (m *Meeting) Duration() time.Duration {
	return m.End.Sub(m.Start)
}

// AlertStatus represents the lifecycle status of a conflict alert.
type AlertStatus string

const (
	// AlertStatusOpen indicates the conflict has been raised and awaits a resolution.
	AlertStatusOpen AlertStatus = "open"
	// AlertStatusResolved indicates a terminal action or abandonment closed the alert.
	AlertStatusResolved AlertStatus = "resolved"
)

// Alert represents one detected travel conflict between the meeting underway
// and the next meeting. At most one Open alert exists at any time.
type Alert struct {
	ID                string      `json:"id"`
	TargetMeetingID   string      `json:"target_meeting_id"`
	MinutesUntilStart int         `json:"minutes_until_start"`
	TravelMinutes     int         `json:"travel_minutes"`
	Status            AlertStatus `json:"status"`
	CreatedAt         time.Time   `json:"created_at"`
}

// Validate performs basic validation on an Alert structure.
func (a *Alert) Validate() error {
	if a.TargetMeetingID == "" {
		return ErrEmptyAlertTarget
	}
	return nil
}

// IsOpen reports whether the alert still awaits a terminal action.
func (a *Alert) IsOpen() bool {
	return a.Status == AlertStatusOpen
}

// Turn represents one prompt/response cycle in the spoken dialogue.
// Transcript is empty while the controller is still listening.
type Turn struct {
	Prompt     string    `json:"prompt"`
	Transcript string    `json:"transcript,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Role tags a transcript entry as spoken by the user or the assistant.
type Role string

const (
	// RoleUser tags transcript entries captured from the user.
	RoleUser Role = "user"
	// RoleAssistant tags transcript entries spoken by the assistant.
	RoleAssistant Role = "assistant"
)

// ConversationMessage represents a single role-tagged entry in the
// transcript history used as generation context.
type ConversationMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
