package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/zaphost/gateway/internal/api/metrics"
	"github.com/zaphost/gateway/internal/core/domain"
	"github.com/zaphost/gateway/internal/core/ports"
)

// CredentialValidator resolves API keys, project key/secret pairs and
// identity tokens into an authorized identity. All three paths share
// authorize, so the plan gate is evaluated identically.
type CredentialValidator struct {
	users     ports.UserRepository
	creds     ports.CredentialRepository
	tokens    ports.TokenVerifier
	dummyHash []byte
	now       func() time.Time
	log       zerolog.Logger
}

// NewCredentialValidator returns a validator. secretCost must match the cost
// project secrets are hashed with so unknown keys take as long as bad secrets.
func NewCredentialValidator(
	users ports.UserRepository,
	creds ports.CredentialRepository,
	tokens ports.TokenVerifier,
	secretCost int,
	log zerolog.Logger,
) *CredentialValidator {
	if secretCost < bcrypt.MinCost {
		secretCost = defaultPasswordCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte(domain.SecretPrefix+"unused"), secretCost)
	if err != nil {
		log.Warn().Err(err).Msg("failed to build dummy secret hash")
	}
	return &CredentialValidator{
		users:     users,
		creds:     creds,
		tokens:    tokens,
		dummyHash: dummy,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log,
	}
}

func (v *CredentialValidator) ValidateAPIKey(ctx context.Context, rawKey string) (*domain.Identity, error) {
	id, err := v.validateCredential(ctx, domain.KindAPIKey, rawKey, "")
	observeValidation(domain.SchemeAPIKey, err)
	return id, err
}

func (v *CredentialValidator) ValidateProjectCredentials(ctx context.Context, rawKey, rawSecret string) (*domain.Identity, error) {
	id, err := v.validateCredential(ctx, domain.KindProject, rawKey, rawSecret)
	observeValidation(domain.SchemeProject, err)
	return id, err
}

func (v *CredentialValidator) VerifyIdentityToken(ctx context.Context, token string) (*domain.Identity, error) {
	id, err := v.verifyToken(ctx, token)
	observeValidation(domain.SchemeIdentityToken, err)
	return id, err
}

func (v *CredentialValidator) verifyToken(ctx context.Context, token string) (*domain.Identity, error) {
	if token == "" {
		return nil, domain.ErrMissingCredentials
	}
	userID, err := v.tokens.ParseIdentityToken(token)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	if err := v.authorize(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	return &domain.Identity{UserID: userID, Scheme: domain.SchemeIdentityToken}, nil
}

func (v *CredentialValidator) validateCredential(ctx context.Context, kind domain.CredentialKind, key, secret string) (*domain.Identity, error) {
	if key == "" {
		return nil, domain.ErrMissingCredentials
	}
	if kind.Factors() > 1 && secret == "" {
		return nil, domain.ErrMissingCredentials
	}
	if !domain.HasKeyPrefix(key) {
		return nil, domain.ErrInvalidCredentials
	}
	if kind.Factors() > 1 && !domain.HasSecretPrefix(secret) {
		return nil, domain.ErrInvalidCredentials
	}

	cred, err := v.creds.FindActiveByKey(ctx, kind, key)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialNotFound) {
			if kind.Factors() > 1 {
				_ = bcrypt.CompareHashAndPassword(v.dummyHash, []byte(secret))
			}
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("validate %s: %w", kind, err)
	}

	if kind.Factors() > 1 {
		if bcrypt.CompareHashAndPassword([]byte(cred.SecretHash), []byte(secret)) != nil {
			return nil, domain.ErrInvalidCredentials
		}
	}

	if err := v.authorize(ctx, cred.UserID); err != nil {
		return nil, err
	}

	if err := v.creds.TouchLastUsed(ctx, kind, cred.ID, v.now()); err != nil {
		v.log.Warn().Err(err).Str("credential_id", cred.ID).Str("kind", string(kind)).Msg("failed to update lastUsed")
	}

	scheme := domain.SchemeAPIKey
	if kind == domain.KindProject {
		scheme = domain.SchemeProject
	}
	return &domain.Identity{UserID: cred.UserID, CredentialID: cred.ID, Scheme: scheme}, nil
}

// authorize loads the owning user and applies the plan gate.
func (v *CredentialValidator) authorize(ctx context.Context, userID string) error {
	user, err := v.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.ErrInvalidCredentials
		}
		return fmt.Errorf("load user: %w", err)
	}
	return user.Authorize(v.now())
}

func observeValidation(scheme string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrTrialExpired):
		result = "trial_expired"
	case errors.Is(err, domain.ErrAccountInactive):
		result = "inactive"
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrMissingCredentials):
		result = "invalid"
	default:
		result = "error"
	}
	metrics.CredentialValidationsTotal.WithLabelValues(scheme, result).Inc()
}
