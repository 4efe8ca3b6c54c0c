package domain

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// UserServer is the WhatsApp server suffix for individual chats.
const UserServer = "s.whatsapp.net"

const logPreviewLength = 100

var phonePattern = regexp.MustCompile(`^[1-9]\d{1,14}$`)

// ErrSendInProgress is returned while another request holds the same
// Idempotency-Key.
var ErrSendInProgress = errors.New("send with this idempotency key in progress")

// MessageLog records one outbound message sent through a session.
type MessageLog struct {
	UserID    string
	To        string
	Body      string
	MessageID string
	Status    string
	SentAt    time.Time
}

// APILog records one successful call against the public API.
type APILog struct {
	UserID       string
	CredentialID string
	Endpoint     string
	Method       string
	Params       map[string]string
	Status       int
	Timestamp    time.Time
}

// StripPhone removes every non-digit rune.
func StripPhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidPhone reports whether raw, once stripped, is 2 to 15 digits without a
// leading zero.
func ValidPhone(raw string) bool {
	return phonePattern.MatchString(StripPhone(raw))
}

// NormalizeRecipient converts a caller-supplied recipient into a WhatsApp
// address. Values that already carry a server part are passed through.
func NormalizeRecipient(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "@") {
		return raw, nil
	}
	digits := StripPhone(raw)
	if !phonePattern.MatchString(digits) {
		return "", ErrInvalidRecipient
	}
	return digits + "@" + UserServer, nil
}

// Truncate shortens s to the usage-log preview length.
func Truncate(s string) string {
	if utf8.RuneCountInString(s) <= logPreviewLength {
		return s
	}
	return string([]rune(s)[:logPreviewLength]) + "..."
}
