package ports

import (
	"context"

	"github.com/zaphost/gateway/internal/core/domain"
)

// CreateSessionResult is the outcome of a connect request. Challenge is empty
// when the session was already connected or paired without a code.
type CreateSessionResult struct {
	Status    domain.SessionStatus
	Challenge string
}

// SessionStatusResult is the status payload. Challenge is only set while
// connecting.
type SessionStatusResult struct {
	Status    domain.SessionStatus
	Challenge string
}

// SendMessageResult is returned after a message is accepted by the transport.
type SendMessageResult struct {
	MessageID string
	To        string
	// Replayed is true when the Idempotency-Key matched an earlier send.
	Replayed bool
}

// SessionService drives a user's WhatsApp session.
type SessionService interface {
	CreateSession(ctx context.Context, userID string) (*CreateSessionResult, error)
	GetSessionStatus(ctx context.Context, userID string) SessionStatusResult
	SendMessage(ctx context.Context, userID, recipient, body string) (*SendMessageResult, error)
	// DestroySession never fails; teardown and persistence errors are logged.
	DestroySession(ctx context.Context, userID string)
}

// SendMessageInput is the public API send request after authentication.
type SendMessageInput struct {
	UserID         string
	CredentialID   string
	To             string
	Body           string
	IdempotencyKey string
}

// MessagingService wraps SessionService.SendMessage with idempotency and
// usage accounting for the public API.
type MessagingService interface {
	Send(ctx context.Context, in SendMessageInput) (*SendMessageResult, error)
}
