package actions

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/andee-ai/andee/internal/models"
)

// hourTokenRegex matches a time-of-day identifier: a 1-2 digit hour with an
// optional am/pm suffix, e.g. "3pm", "11 am", "16".
var hourTokenRegex = regexp.MustCompile(`^\s*(\d{1,2})\s*(am|pm)?\s*$`)

// clockTimeRegex matches a 24-hour clock time like "16:30".
var clockTimeRegex = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*$`)

// ResolveMeeting selects the meeting an identifier refers to. A parseable
// time token matches against start hour; a bare hour without am/pm tries the
// hour as given and then its afternoon counterpart. Anything else falls back
// to a case-insensitive substring match on client name or title.
func ResolveMeeting(meetings []models.Meeting, identifier string) (models.Meeting, bool) {
	if hour, hasSuffix, ok := parseHourToken(identifier); ok {
		for _, m := range meetings {
			if m.Start.Hour() == hour {
				return m, true
			}
		}
		if !hasSuffix && hour < 12 {
			for _, m := range meetings {
				if m.Start.Hour() == hour+12 {
					return m, true
				}
			}
		}
		return models.Meeting{}, false
	}

	needle := strings.ToLower(strings.TrimSpace(identifier))
	if needle == "" {
		return models.Meeting{}, false
	}
	for _, m := range meetings {
		if strings.Contains(strings.ToLower(m.ClientName), needle) ||
			strings.Contains(strings.ToLower(m.Title), needle) {
			return m, true
		}
	}
	return models.Meeting{}, false
}

// parseHourToken parses an hour-of-day identifier into a 24-hour hour.
func parseHourToken(s string) (hour int, hasSuffix bool, ok bool) {
	m := hourTokenRegex.FindStringSubmatch(strings.ToLower(s))
	if m == nil {
		return 0, false, false
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil || hour > 23 {
		return 0, false, false
	}
	switch m[2] {
	case "pm":
		if hour < 12 {
			hour += 12
		}
		return hour, true, true
	case "am":
		if hour == 12 {
			hour = 0
		}
		return hour, true, true
	}
	return hour, false, true
}

// parseClockMinutes converts a time token to minutes past midnight. It
// accepts both 24-hour clock times ("16:30") and hour tokens ("4pm").
func parseClockMinutes(s string) (int, bool) {
	if m := clockTimeRegex.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour > 23 || minute > 59 {
			return 0, false
		}
		return hour*60 + minute, true
	}
	if hour, _, ok := parseHourToken(s); ok {
		return hour * 60, true
	}
	return 0, false
}
