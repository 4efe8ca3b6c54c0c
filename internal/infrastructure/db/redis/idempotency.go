package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zaphost/gateway/internal/core/domain"
)

const (
	idempotencyTTL = time.Hour
	// pendingTTL bounds a claim whose owner died mid-send.
	pendingTTL    = 2 * time.Minute
	pendingMarker = "pending"
)

// IdempotencyStore remembers the message id returned for an Idempotency-Key.
// A key is claimed with a pending marker before the send and completed with
// the message id after it.
// Key format: idem:<user_id>:<key>
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewIdempotencyStore(client *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: idempotencyTTL}
}

// Claim reserves key for one send. When the key is already completed it
// returns the stored message id with claimed false; while another claim is
// pending it returns domain.ErrSendInProgress.
func (s *IdempotencyStore) Claim(ctx context.Context, userID, key string) (string, bool, error) {
	k := s.key(userID, key)
	for range 2 {
		ok, err := s.client.SetNX(ctx, k, pendingMarker, pendingTTL).Result()
		if err != nil {
			return "", false, fmt.Errorf("idempotency claim: %w", err)
		}
		if ok {
			return "", true, nil
		}

		id, err := s.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("idempotency claim: %w", err)
		}
		if id == pendingMarker {
			return "", false, domain.ErrSendInProgress
		}
		return id, false, nil
	}
	return "", false, domain.ErrSendInProgress
}

// Complete replaces the claim with messageID for the replay window.
func (s *IdempotencyStore) Complete(ctx context.Context, userID, key, messageID string) error {
	if err := s.client.Set(ctx, s.key(userID, key), messageID, s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency complete: %w", err)
	}
	return nil
}

// Release drops a claim so the key can be retried after a failed send.
func (s *IdempotencyStore) Release(ctx context.Context, userID, key string) error {
	if err := s.client.Del(ctx, s.key(userID, key)).Err(); err != nil {
		return fmt.Errorf("idempotency release: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) key(userID, key string) string {
	return fmt.Sprintf("idem:%s:%s", userID, key)
}
