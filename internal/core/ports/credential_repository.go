package ports

import (
	"context"
	"time"

	"github.com/zaphost/gateway/internal/core/domain"
)

// CredentialRepository persists both credential families. The kind argument
// selects the backing collection.
type CredentialRepository interface {
	Create(ctx context.Context, cred *domain.Credential) (*domain.Credential, error)
	// FindActiveByKey returns domain.ErrCredentialNotFound when no active
	// credential of the given kind carries key.
	FindActiveByKey(ctx context.Context, kind domain.CredentialKind, key string) (*domain.Credential, error)
	CountActive(ctx context.Context, kind domain.CredentialKind, userID string) (int64, error)
	// ListActive never populates SecretHash.
	ListActive(ctx context.Context, kind domain.CredentialKind, userID string) ([]*domain.Credential, error)
	Deactivate(ctx context.Context, kind domain.CredentialKind, id, userID string) error
	TouchLastUsed(ctx context.Context, kind domain.CredentialKind, id string, at time.Time) error
}
