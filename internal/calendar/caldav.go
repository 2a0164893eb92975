// Package calendar provides storage backends for meetings.
//
// This file implements a CalDAV-backed Meeting Store for real calendars
// (iCloud, Fastmail, Nextcloud, and other CalDAV servers).
package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"github.com/andee-ai/andee/internal/models"
)

// Common CalDAV server URLs
const (
	AppleCalDAVURL    = "https://caldav.icloud.com"
	FastmailCalDAVURL = "https://caldav.fastmail.com"
)

// Custom VEVENT properties carrying the client fields not covered by iCal.
const (
	PropClientName  = "X-ANDEE-CLIENT"
	PropClientPhone = "X-ANDEE-PHONE"
)

// CalDAVStore is a Meeting Store backed by a CalDAV calendar.
type CalDAVStore struct {
	baseURL      string
	username     string
	password     string // app-specific password for Apple
	calendarPath string // specific calendar path, or empty for the first one

	httpTimeout time.Duration
}

// NewCalDAVStore creates a CalDAV-backed Meeting Store.
func NewCalDAVStore(baseURL, username, password string) *CalDAVStore {
	return &CalDAVStore{
		baseURL:     baseURL,
		username:    username,
		password:    password,
		httpTimeout: 30 * time.Second,
	}
}

// WithCalendarPath sets the specific calendar path to use.
func (s *CalDAVStore) WithCalendarPath(path string) *CalDAVStore {
	s.calendarPath = path
	return s
}

// List returns meetings intersecting [rangeStart, rangeEnd), sorted by the
// server's range query. IDs are VEVENT UIDs.
func (s *CalDAVStore) List(ctx context.Context, rangeStart, rangeEnd time.Time) ([]models.Meeting, error) {
	client, err := s.getClient()
	if err != nil {
		return nil, err
	}
	calPath, err := s.findCalendarPath(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("failed to find calendar: %w", err)
	}

	objects, err := client.QueryCalendar(ctx, calPath, rangeQuery(rangeStart, rangeEnd))
	if err != nil {
		slog.Error("CalDAVStore List query failed", "error", err)
		return nil, fmt.Errorf("failed to query calendar: %w", err)
	}

	meetings := make([]models.Meeting, 0, len(objects))
	for i := range objects {
		if m := parseCalendarObject(&objects[i]); m != nil {
			meetings = append(meetings, *m)
		}
	}
	slog.Debug("CalDAVStore List succeeded", "count", len(meetings))
	return meetings, nil
}

// Shift moves a meeting's start and end by deltaMinutes by rewriting the
// calendar object in place.
func (s *CalDAVStore) Shift(ctx context.Context, id string, deltaMinutes int) error {
	client, err := s.getClient()
	if err != nil {
		return err
	}
	calPath, err := s.findCalendarPath(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to find calendar: %w", err)
	}

	obj, m, err := s.findObject(ctx, client, calPath, id)
	if err != nil {
		return err
	}

	delta := time.Duration(deltaMinutes) * time.Minute
	m.Start = m.Start.Add(delta)
	m.End = m.End.Add(delta)

	if _, err := client.PutCalendarObject(ctx, obj.Path, toICalendar(*m)); err != nil {
		slog.Error("CalDAVStore Shift put failed", "error", err, "id", id)
		return fmt.Errorf("failed to update calendar object: %w", err)
	}
	slog.Debug("CalDAVStore Shift succeeded", "id", id, "deltaMinutes", deltaMinutes)
	return nil
}

// Delete removes a meeting's calendar object.
func (s *CalDAVStore) Delete(ctx context.Context, id string) error {
	client, err := s.getClient()
	if err != nil {
		return err
	}
	calPath, err := s.findCalendarPath(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to find calendar: %w", err)
	}

	obj, _, err := s.findObject(ctx, client, calPath, id)
	if err != nil {
		return err
	}
	if err := client.RemoveAll(ctx, obj.Path); err != nil {
		slog.Error("CalDAVStore Delete failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete calendar object: %w", err)
	}
	slog.Debug("CalDAVStore Delete succeeded", "id", id)
	return nil
}

// Create adds a meeting as a new calendar object named after its UID.
func (s *CalDAVStore) Create(ctx context.Context, m models.Meeting) (models.Meeting, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if err := m.Validate(); err != nil {
		return models.Meeting{}, err
	}

	client, err := s.getClient()
	if err != nil {
		return models.Meeting{}, err
	}
	calPath, err := s.findCalendarPath(ctx, client)
	if err != nil {
		return models.Meeting{}, fmt.Errorf("failed to find calendar: %w", err)
	}

	eventPath := fmt.Sprintf("%s%s.ics", calPath, m.ID)
	if _, err := client.PutCalendarObject(ctx, eventPath, toICalendar(m)); err != nil {
		slog.Error("CalDAVStore Create put failed", "error", err, "title", m.Title)
		return models.Meeting{}, fmt.Errorf("failed to create calendar object: %w", err)
	}
	slog.Debug("CalDAVStore Create succeeded", "id", m.ID, "title", m.Title)
	return m, nil
}

// Helper methods

func (s *CalDAVStore) getClient() (*caldav.Client, error) {
	httpClient := &http.Client{Timeout: s.httpTimeout}
	client, err := caldav.NewClient(webdav.HTTPClientWithBasicAuth(httpClient, s.username, s.password), s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}
	return client, nil
}

func (s *CalDAVStore) findCalendarPath(ctx context.Context, client *caldav.Client) (string, error) {
	if s.calendarPath != "" {
		return s.calendarPath, nil
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal: %w", err)
	}
	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}
	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}
	if len(cals) == 0 {
		return "", fmt.Errorf("no calendars found")
	}
	// Use first calendar as default
	return cals[0].Path, nil
}

// findObject locates the calendar object whose VEVENT UID matches id.
func (s *CalDAVStore) findObject(ctx context.Context, client *caldav.Client, calPath, id string) (*caldav.CalendarObject, *models.Meeting, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: "VCALENDAR",
			Comps: []caldav.CalendarCompRequest{
				{
					Name:  "VEVENT",
					Props: []string{"SUMMARY", "DTSTART", "DTEND", "UID", "LOCATION", PropClientName, PropClientPhone},
				},
			},
		},
		CompFilter: caldav.CompFilter{
			Name:  "VCALENDAR",
			Comps: []caldav.CompFilter{{Name: "VEVENT"}},
		},
	}

	objects, err := client.QueryCalendar(ctx, calPath, query)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query calendar: %w", err)
	}
	for i := range objects {
		m := parseCalendarObject(&objects[i])
		if m != nil && m.ID == id {
			return &objects[i], m, nil
		}
	}
	return nil, nil, models.ErrMeetingNotFound
}

func rangeQuery(start, end time.Time) *caldav.CalendarQuery {
	return &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  "VCALENDAR",
			Props: []string{"VERSION"},
			Comps: []caldav.CalendarCompRequest{
				{
					Name:  "VEVENT",
					Props: []string{"SUMMARY", "DTSTART", "DTEND", "UID", "LOCATION", PropClientName, PropClientPhone},
				},
			},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{
				{Name: "VEVENT", Start: start, End: end},
			},
		},
	}
}

// toICalendar converts a Meeting to an ical.Calendar with one VEVENT.
func toICalendar(m models.Meeting) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//Andee//Calendar//EN")

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, m.ID)
	event.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, m.Start.UTC())
	event.Props.SetDateTime(ical.PropDateTimeEnd, m.End.UTC())
	event.Props.SetText(ical.PropSummary, m.Title)
	if m.Location != "" {
		event.Props.SetText(ical.PropLocation, m.Location)
	}
	if m.ClientName != "" {
		setCustomProp(event, PropClientName, m.ClientName)
	}
	if m.ClientPhone != "" {
		setCustomProp(event, PropClientPhone, m.ClientPhone)
	}

	cal.Children = append(cal.Children, event.Component)
	return cal
}

func setCustomProp(event *ical.Event, name, value string) {
	prop := ical.NewProp(name)
	prop.Value = value
	event.Props[name] = []ical.Prop{*prop}
}

// parseCalendarObject extracts a Meeting from the first VEVENT of a calendar
// object. Returns nil when the object has no usable VEVENT.
func parseCalendarObject(obj *caldav.CalendarObject) *models.Meeting {
	if obj == nil || obj.Data == nil {
		return nil
	}

	for _, child := range obj.Data.Children {
		if child.Name != ical.CompEvent {
			continue
		}

		m := &models.Meeting{ID: obj.Path}
		if props := child.Props[ical.PropUID]; len(props) > 0 {
			m.ID = props[0].Value
		}
		if props := child.Props[ical.PropSummary]; len(props) > 0 {
			m.Title = props[0].Value
		}
		if props := child.Props[ical.PropLocation]; len(props) > 0 {
			m.Location = props[0].Value
		}
		if props := child.Props[PropClientName]; len(props) > 0 {
			m.ClientName = props[0].Value
		}
		if props := child.Props[PropClientPhone]; len(props) > 0 {
			m.ClientPhone = props[0].Value
		}

		icalEvent := &ical.Event{Component: child}
		if start, err := icalEvent.DateTimeStart(time.UTC); err == nil {
			m.Start = start
		}
		if end, err := icalEvent.DateTimeEnd(time.UTC); err == nil {
			m.End = end
		}

		if m.Title == "" && !strings.HasSuffix(m.ID, ".ics") {
			m.Title = "(untitled)"
		}
		return m // only process first VEVENT
	}
	return nil
}
