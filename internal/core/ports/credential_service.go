package ports

import (
	"context"
	"time"

	"github.com/zaphost/gateway/internal/core/domain"
)

// IssuedCredential is returned once at creation; Key and Secret are never
// retrievable again.
type IssuedCredential struct {
	ID        string
	Name      string
	Key       string
	Secret    string
	CreatedAt time.Time
}

// CredentialSummary is the listing view. Preview is set for API keys, Key for
// projects; secrets are never included.
type CredentialSummary struct {
	ID        string
	Name      string
	Preview   string
	Key       string
	IsActive  bool
	CreatedAt time.Time
	LastUsed  *time.Time
}

// CredentialService manages issued credentials of both kinds.
type CredentialService interface {
	Create(ctx context.Context, userID string, kind domain.CredentialKind, name string) (*IssuedCredential, error)
	List(ctx context.Context, userID string, kind domain.CredentialKind) ([]CredentialSummary, error)
	Revoke(ctx context.Context, userID string, kind domain.CredentialKind, id string) error
}

// CredentialValidator resolves presented credentials into an authorized
// identity. Every method applies the same plan gate.
type CredentialValidator interface {
	ValidateAPIKey(ctx context.Context, rawKey string) (*domain.Identity, error)
	ValidateProjectCredentials(ctx context.Context, rawKey, rawSecret string) (*domain.Identity, error)
	VerifyIdentityToken(ctx context.Context, token string) (*domain.Identity, error)
}

// TokenVerifier checks an identity token's signature and expiry only.
type TokenVerifier interface {
	ParseIdentityToken(token string) (userID string, err error)
}
