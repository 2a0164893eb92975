// Package notify delivers client notifications when meetings move or are
// cancelled. SMS via Twilio is the primary transport; WhatsApp via whatsmeow
// is available for deployments that prefer it.
package notify

import (
	"context"
	"errors"
	"strings"
)

// MinPhoneDigits is the minimum digit count accepted for a recipient number.
const MinPhoneDigits = 6

// Error variables for recipient validation.
var (
	ErrEmptyRecipient   = errors.New("recipient phone number cannot be empty")
	ErrInvalidRecipient = errors.New("recipient phone number is invalid")
	ErrEmptyMessage     = errors.New("message body cannot be empty")
)

// Service sends a message to a phone number. Implementations wrap a concrete
// transport.
type Service interface {
	Send(ctx context.Context, phoneNumber, messageText string) error
}

// CanonicalizePhone validates a phone number and reduces it to its digits,
// preserving a leading plus. Spaces, dashes, dots, and parentheses are
// stripped.
func CanonicalizePhone(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrEmptyRecipient
	}

	var b strings.Builder
	for i, r := range trimmed {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
			// separators are dropped
		default:
			return "", ErrInvalidRecipient
		}
	}

	digits := strings.TrimPrefix(b.String(), "+")
	if len(digits) < MinPhoneDigits {
		return "", ErrInvalidRecipient
	}
	return b.String(), nil
}
