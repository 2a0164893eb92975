// Package actions converts free response text into typed commands and applies
// them against the Meeting Store and the notification service.
//
// The marker grammar is shared with upstream producers of response text and
// must be honored verbatim: [ACTION:TYPE], [ACTION:TYPE:ARG], or
// [ACTION:TYPE|ARG1|ARG2|...]. Text without a marker goes through a
// deterministic keyword classifier.
package actions

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/andee-ai/andee/internal/models"
)

// markerRegex matches a bracketed action marker with either a single
// colon-delimited argument or pipe-delimited arguments.
var markerRegex = regexp.MustCompile(`\[ACTION:([A-Z_]+)((?::[^\[\]|]*)|(?:\|[^\[\]]*))?\]`)

// bareIntRegex finds a standalone integer for the fallback classifier.
var bareIntRegex = regexp.MustCompile(`\b(\d+)\b`)

var affirmationHints = []string{"yes", "yeah", "yep", "i can", "no problem"}
var latenessHints = []string{"late", "behind", "stuck", "can't", "cannot", "no"}

// Parse extracts at most one ActionCommand from responseText. The first
// syntactically valid marker wins; every marker token is stripped from the
// returned display text regardless. Text without a valid marker is handed to
// the fallback keyword classifier.
func Parse(responseText string) (string, models.ActionCommand) {
	matches := markerRegex.FindAllStringSubmatch(responseText, -1)

	var cmd models.ActionCommand
	found := false
	for _, m := range matches {
		c, err := commandFromMarker(m[1], markerArgs(m[2]))
		if err != nil {
			continue
		}
		cmd = c
		found = true
		break
	}

	display := strings.TrimSpace(markerRegex.ReplaceAllString(responseText, ""))
	if found {
		return display, cmd
	}
	if len(matches) > 0 {
		// Markers were present but none parsed cleanly. Treat the turn as
		// unrecognized rather than guessing from the surrounding prose.
		return display, models.ActionCommand{Type: models.ActionUnrecognized, RawText: responseText}
	}
	return display, classify(responseText)
}

// markerArgs splits the raw argument segment of a marker. A leading colon
// introduces a single argument; a leading pipe introduces a pipe-delimited
// list.
func markerArgs(raw string) []string {
	if raw == "" {
		return nil
	}
	switch raw[0] {
	case ':':
		return []string{raw[1:]}
	case '|':
		return strings.Split(raw[1:], "|")
	}
	return nil
}

func commandFromMarker(actionType string, args []string) (models.ActionCommand, error) {
	switch models.ActionType(actionType) {
	case models.ActionConfirm:
		return models.ActionCommand{Type: models.ActionConfirm, FromMarker: true}, nil

	case models.ActionCancel:
		return models.ActionCommand{Type: models.ActionCancel, FromMarker: true}, nil

	case models.ActionCheckSchedule:
		return models.ActionCommand{Type: models.ActionCheckSchedule, FromMarker: true}, nil

	case models.ActionReschedule:
		if len(args) != 1 {
			return models.ActionCommand{}, models.ErrInvalidRescheduleMinutes
		}
		minutes, err := strconv.Atoi(strings.TrimSpace(args[0]))
		if err != nil || minutes <= 0 {
			return models.ActionCommand{}, models.ErrInvalidRescheduleMinutes
		}
		return models.ActionCommand{Type: models.ActionReschedule, Minutes: minutes, FromMarker: true}, nil

	case models.ActionCreateMeeting:
		if len(args) != 4 {
			return models.ActionCommand{}, models.ErrMalformedCreateMeeting
		}
		duration, err := strconv.Atoi(strings.TrimSpace(args[3]))
		if err != nil || duration <= 0 {
			return models.ActionCommand{}, models.ErrMalformedCreateMeeting
		}
		title := strings.TrimSpace(args[0])
		if title == "" {
			return models.ActionCommand{}, models.ErrMalformedCreateMeeting
		}
		return models.ActionCommand{
			Type:            models.ActionCreateMeeting,
			Title:           title,
			Date:            strings.TrimSpace(args[1]),
			Time:            strings.TrimSpace(args[2]),
			DurationMinutes: duration,
			FromMarker:      true,
		}, nil

	case models.ActionCancelMeeting:
		if len(args) < 1 || strings.TrimSpace(args[0]) == "" {
			return models.ActionCommand{}, models.ErrMissingActionIdentifier
		}
		return models.ActionCommand{
			Type:       models.ActionCancelMeeting,
			Identifier: strings.TrimSpace(args[0]),
			FromMarker: true,
		}, nil

	case models.ActionRescheduleMeeting:
		if len(args) < 1 || strings.TrimSpace(args[0]) == "" {
			return models.ActionCommand{}, models.ErrMissingActionIdentifier
		}
		cmd := models.ActionCommand{
			Type:       models.ActionRescheduleMeeting,
			Identifier: strings.TrimSpace(args[0]),
			FromMarker: true,
		}
		if len(args) > 1 {
			cmd.NewTime = strings.TrimSpace(args[1])
		}
		return cmd, nil
	}
	return models.ActionCommand{}, models.ErrMissingActionIdentifier
}

// classify is the deterministic fallback for text without a marker.
func classify(text string) models.ActionCommand {
	lower := strings.ToLower(text)

	if isAffirmation(lower) {
		return models.ActionCommand{Type: models.ActionConfirm}
	}
	if strings.Contains(lower, "cancel") {
		return models.ActionCommand{Type: models.ActionCancel}
	}
	if m := bareIntRegex.FindString(lower); m != "" {
		if minutes, err := strconv.Atoi(m); err == nil && minutes > 0 {
			return models.ActionCommand{Type: models.ActionReschedule, Minutes: minutes}
		}
	}
	return models.ActionCommand{Type: models.ActionUnrecognized, RawText: text}
}

func isAffirmation(lower string) bool {
	for _, hint := range affirmationHints {
		if !strings.Contains(lower, hint) {
			continue
		}
		// "i can" inside "i can't"/"i cannot" is a negation, not agreement.
		if hint == "i can" && (strings.Contains(lower, "i can't") || strings.Contains(lower, "i cannot")) {
			continue
		}
		return true
	}
	return false
}

// IsLatenessHint reports whether the text mentions being late or unable to
// attend without giving a concrete delay. The dialogue uses it to ask how
// many minutes the user needs instead of a generic clarification.
func IsLatenessHint(text string) bool {
	lower := strings.ToLower(text)
	for _, hint := range latenessHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}
