package domain

import (
	"errors"
	"fmt"
	"time"
)

// SessionStatus represents the lifecycle state of a user's WhatsApp session.
type SessionStatus string

const (
	SessionDisconnected SessionStatus = "disconnected"
	SessionConnecting   SessionStatus = "connecting"
	SessionConnected    SessionStatus = "connected"
	SessionError        SessionStatus = "error"
)

// validTransitions defines the allowed state machine transitions.
var validTransitions = map[SessionStatus][]SessionStatus{
	SessionDisconnected: {SessionConnecting},
	SessionConnecting:   {SessionConnected, SessionError, SessionDisconnected},
	SessionConnected:    {SessionDisconnected},
	SessionError:        {SessionConnecting, SessionDisconnected},
}

var (
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrNotConnected      = errors.New("session not connected")
	ErrSessionTimeout    = errors.New("timed out waiting for pairing code")
	ErrTransportAuth     = errors.New("whatsapp authentication failed")
	ErrTransport         = errors.New("whatsapp transport error")
	ErrSessionClosed     = errors.New("session closed")
	ErrInvalidRecipient  = errors.New("invalid recipient")
	ErrChallengeNotFound = errors.New("no pairing code pending")
)

// CanTransitionTo reports whether a transition from current status to next is valid.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition returns ErrInvalidTransition unless s may move to next.
func (s SessionStatus) Transition(next SessionStatus) error {
	if !s.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return nil
}

// SessionSnapshot is the durable record of a session status change. Only
// snapshots are persisted; live connections exist in process memory.
type SessionSnapshot struct {
	UserID      string
	Status      SessionStatus
	Reason      string
	ConnectedAt *time.Time
	UpdatedAt   time.Time
}
