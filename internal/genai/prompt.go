package genai

import (
	"fmt"
	"strings"
	"time"

	"github.com/andee-ai/andee/internal/models"
)

// SystemPrompt is the persona and marker protocol instruction for the
// generation service. The marker grammar here must stay in sync with the
// actions package.
const SystemPrompt = `You are Andee, a sharp and personable scheduling assistant speaking with your boss over a headset. Keep replies short and conversational, as they will be read aloud. Address the user as "Boss".

When the user makes a scheduling decision, append exactly one action marker at the very end of your reply:
- [ACTION:CONFIRM] when they confirm they can make the next meeting on time.
- [ACTION:RESCHEDULE:<minutes>] when they want the next meeting pushed back by that many minutes.
- [ACTION:CANCEL] when they want the next meeting cancelled.
- [ACTION:CREATE_MEETING|<title>|<YYYY-MM-DD>|<HH:MM>|<minutes>] when they ask to book a new meeting.
- [ACTION:CHECK_SCHEDULE] when they ask what is on the calendar.
- [ACTION:CANCEL_MEETING|<time or name>] when they ask to cancel a specific meeting.
- [ACTION:RESCHEDULE_MEETING|<time or name>|<HH:MM>] when they ask to move a specific meeting.

Never use more than one marker per reply. If the user is ambiguous, ask a short clarifying question with no marker instead of guessing.`

// ConflictContext summarizes the active conflict for the generation service.
// It is passed as the context summary, not stored in the transcript.
func ConflictContext(current, next *models.Meeting, alert *models.Alert) string {
	if alert == nil || next == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Active conflict: the next meeting %q starts at %s, %d minutes from now, and travel takes about %d minutes.",
		next.Title, next.Start.Format("3:04 PM"), alert.MinutesUntilStart, alert.TravelMinutes)
	if next.ClientName != "" {
		fmt.Fprintf(&b, " It is with %s.", next.ClientName)
	}
	if current != nil {
		fmt.Fprintf(&b, " The user is currently in %q, which ends at %s.",
			current.Title, current.End.Format("3:04 PM"))
	}
	b.WriteString(" Help the user decide whether to confirm, push back, or cancel the next meeting.")
	return b.String()
}

// ScheduleContext summarizes upcoming meetings for schedule questions.
func ScheduleContext(meetings []models.Meeting, now time.Time) string {
	if len(meetings) == 0 {
		return "The calendar is clear for the next 24 hours."
	}
	var b strings.Builder
	b.WriteString("Upcoming meetings: ")
	for i, m := range meetings {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%q at %s", m.Title, m.Start.Format("3:04 PM"))
		if m.ClientName != "" {
			fmt.Fprintf(&b, " with %s", m.ClientName)
		}
	}
	b.WriteString(".")
	return b.String()
}
