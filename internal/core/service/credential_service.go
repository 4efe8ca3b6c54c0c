package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/zaphost/gateway/internal/api/metrics"
	"github.com/zaphost/gateway/internal/core/domain"
	"github.com/zaphost/gateway/internal/core/ports"
)

const secretBytes = 24

// CredentialService issues, lists and revokes API keys and projects.
type CredentialService struct {
	users      ports.UserRepository
	creds      ports.CredentialRepository
	secretCost int
	issuing    *keyedLocks
	now        func() time.Time
	log        zerolog.Logger
}

func NewCredentialService(users ports.UserRepository, creds ports.CredentialRepository, secretCost int, log zerolog.Logger) *CredentialService {
	if secretCost < bcrypt.MinCost {
		secretCost = defaultPasswordCost
	}
	return &CredentialService{
		users:      users,
		creds:      creds,
		secretCost: secretCost,
		issuing:    newKeyedLocks(),
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}
}

// Create issues a new credential after the plan gate and the per-kind cap.
// Creates for one user and kind are serialized so the cap holds under
// concurrent requests to this process. The returned key and secret are the
// only copies the caller will ever see.
func (s *CredentialService) Create(ctx context.Context, userID string, kind domain.CredentialKind, name string) (*ports.IssuedCredential, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrNameRequired
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("create %s: %w", kind, err)
	}
	if err := user.Authorize(s.now()); err != nil {
		return nil, err
	}

	unlock := s.issuing.lock(userID + "/" + string(kind))
	defer unlock()

	active, err := s.creds.CountActive(ctx, kind, userID)
	if err != nil {
		return nil, fmt.Errorf("create %s: count: %w", kind, err)
	}
	if active >= domain.MaxActiveCredentials {
		return nil, domain.ErrCredentialLimit
	}

	cred := &domain.Credential{
		UserID:    userID,
		Kind:      kind,
		Name:      name,
		Key:       generateKey(),
		IsActive:  true,
		CreatedAt: s.now(),
	}

	var secret string
	if kind.Factors() > 1 {
		secret, err = generateSecret()
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", kind, err)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.secretCost)
		if err != nil {
			return nil, fmt.Errorf("create %s: hash secret: %w", kind, err)
		}
		cred.SecretHash = string(hash)
	}

	created, err := s.creds.Create(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", kind, err)
	}

	metrics.CredentialsIssuedTotal.WithLabelValues(string(kind)).Inc()
	s.log.Info().Str("user_id", userID).Str("kind", string(kind)).Str("credential_id", created.ID).Msg("credential issued")

	return &ports.IssuedCredential{
		ID:        created.ID,
		Name:      created.Name,
		Key:       cred.Key,
		Secret:    secret,
		CreatedAt: created.CreatedAt,
	}, nil
}

// List returns the active credentials of one kind. API keys are redacted to a
// preview; project secrets are never returned.
func (s *CredentialService) List(ctx context.Context, userID string, kind domain.CredentialKind) ([]ports.CredentialSummary, error) {
	creds, err := s.creds.ListActive(ctx, kind, userID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}

	out := make([]ports.CredentialSummary, 0, len(creds))
	for _, c := range creds {
		item := ports.CredentialSummary{
			ID:        c.ID,
			Name:      c.Name,
			IsActive:  c.IsActive,
			CreatedAt: c.CreatedAt,
			LastUsed:  c.LastUsed,
		}
		if kind == domain.KindAPIKey {
			item.Preview = c.Preview()
		} else {
			item.Key = c.Key
		}
		out = append(out, item)
	}
	return out, nil
}

// Revoke soft-deletes a credential owned by userID.
func (s *CredentialService) Revoke(ctx context.Context, userID string, kind domain.CredentialKind, id string) error {
	if err := s.creds.Deactivate(ctx, kind, id, userID); err != nil {
		if errors.Is(err, domain.ErrCredentialNotFound) {
			return err
		}
		return fmt.Errorf("revoke %s: %w", kind, err)
	}
	s.log.Info().Str("user_id", userID).Str("kind", string(kind)).Str("credential_id", id).Msg("credential revoked")
	return nil
}

func generateKey() string {
	return domain.KeyPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func generateSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return domain.SecretPrefix + hex.EncodeToString(b), nil
}
