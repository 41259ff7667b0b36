// Package messaging provides the outbound SMS delivery abstraction for
// TextLoop.
//
// The conversation engine treats message delivery as an injected capability:
// it hands the messenger an organization (which carries the provider
// credentials and sender identifier), a destination number and a body, and
// receives a delivery status plus an opaque provider message identifier.
// Delivery failure is never fatal to a conversation step.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/TextLoop/TextLoop/internal/models"
)

// ErrNotDelivered indicates the provider rejected or failed the send.
var ErrNotDelivered = errors.New("message was not delivered")

// phoneNumberRegex matches everything that is not a digit, used to
// canonicalize phone numbers.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// MinPhoneNumberDigits is the minimum number of digits a canonicalized
// phone number must have.
const MinPhoneNumberDigits = 6

// Sender delivers one text message through an SMS provider.
type Sender interface {
	// SendMessage sends body to the phone number using the organization's
	// provider credentials and sender identifier. The returned SendResult is
	// meaningful even when err is non-nil (Delivered false).
	SendMessage(ctx context.Context, org models.Organization, to, body string) (models.SendResult, error)
}

// CanonicalizeRecipient validates and canonicalizes a phone number by
// removing all non-numeric characters. The result must have at least
// MinPhoneNumberDigits digits.
func CanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyPhoneNumber
	}

	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < MinPhoneNumberDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", canonical, MinPhoneNumberDigits)
	}

	if canonical != recipient {
		slog.Debug("Canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}
