package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/zaphost/gateway/internal/api/metrics"
	"github.com/zaphost/gateway/internal/core/domain"
	"github.com/zaphost/gateway/internal/core/ports"
)

const sendEndpoint = "/v1/send-message"

// IdempotencyStore remembers the message id produced for an Idempotency-Key.
// Claim either reserves the key (claimed true), returns the id of a completed
// send, or fails with domain.ErrSendInProgress.
type IdempotencyStore interface {
	Claim(ctx context.Context, userID, key string) (messageID string, claimed bool, err error)
	Complete(ctx context.Context, userID, key, messageID string) error
	Release(ctx context.Context, userID, key string) error
}

type messagingService struct {
	sessions ports.SessionService
	idem     IdempotencyStore
	audit    ports.AuditRecorder
	log      zerolog.Logger
}

// NewMessagingService returns the public API send path: idempotency replay,
// dispatch through the session, then a usage record.
func NewMessagingService(
	sessions ports.SessionService,
	idem IdempotencyStore,
	audit ports.AuditRecorder,
	log zerolog.Logger,
) ports.MessagingService {
	return &messagingService{
		sessions: sessions,
		idem:     idem,
		audit:    audit,
		log:      log,
	}
}

func (s *messagingService) Send(ctx context.Context, in ports.SendMessageInput) (*ports.SendMessageResult, error) {
	// 1. Claim the key, or replay a previous send for it.
	held := false
	if in.IdempotencyKey != "" {
		msgID, claimed, err := s.idem.Claim(ctx, in.UserID, in.IdempotencyKey)
		switch {
		case errors.Is(err, domain.ErrSendInProgress):
			return nil, err
		case err != nil:
			s.log.Warn().Err(err).Str("user_id", in.UserID).Msg("idempotency claim failed, sending anyway")
		case !claimed:
			metrics.MessagesSentTotal.WithLabelValues("replayed").Inc()
			s.log.Info().Str("user_id", in.UserID).Str("idempotency_key", in.IdempotencyKey).Msg("idempotent replay")
			to, _ := domain.NormalizeRecipient(in.To)
			return &ports.SendMessageResult{MessageID: msgID, To: to, Replayed: true}, nil
		default:
			held = true
		}
	}

	// 2. Dispatch.
	res, err := s.sessions.SendMessage(ctx, in.UserID, in.To, in.Body)
	if err != nil {
		if held {
			if relErr := s.idem.Release(context.WithoutCancel(ctx), in.UserID, in.IdempotencyKey); relErr != nil {
				s.log.Warn().Err(relErr).Str("user_id", in.UserID).Msg("failed to release idempotency key")
			}
		}
		return nil, fmt.Errorf("send: %w", err)
	}

	// 3. Remember the result for replays (non-fatal).
	if held {
		if err := s.idem.Complete(context.WithoutCancel(ctx), in.UserID, in.IdempotencyKey, res.MessageID); err != nil {
			s.log.Warn().Err(err).Str("user_id", in.UserID).Msg("failed to store idempotency key")
		}
	}

	// 4. Usage record (fire-and-forget).
	s.audit.RecordAPICall(domain.APILog{
		UserID:       in.UserID,
		CredentialID: in.CredentialID,
		Endpoint:     sendEndpoint,
		Method:       "POST",
		Params:       map[string]string{"to": in.To, "message": domain.Truncate(in.Body)},
		Status:       200,
		Timestamp:    time.Now().UTC(),
	})

	return res, nil
}
