package domain

import (
	"errors"
	"strings"
	"time"
)

const (
	KeyPrefix    = "zap_"
	SecretPrefix = "sk_"

	// MaxActiveCredentials caps active credentials per user per kind.
	MaxActiveCredentials = 5

	previewLength = 8
)

var (
	ErrCredentialLimit    = errors.New("credential limit reached")
	ErrCredentialNotFound = errors.New("credential not found")
	ErrNameRequired       = errors.New("name is required")
)

// CredentialKind discriminates the two credential families. Both share one
// shape; a project additionally carries a hashed secret.
type CredentialKind string

const (
	KindAPIKey  CredentialKind = "api_key"
	KindProject CredentialKind = "project"
)

// Factors is the number of presented values needed to authenticate.
func (k CredentialKind) Factors() int {
	if k == KindProject {
		return 2
	}
	return 1
}

// Credential is an issued bearer credential. SecretHash is empty for
// single-factor kinds.
type Credential struct {
	ID         string
	UserID     string
	Kind       CredentialKind
	Name       string
	Key        string
	SecretHash string
	IsActive   bool
	CreatedAt  time.Time
	LastUsed   *time.Time
}

// Preview returns the redacted form of the key shown in listings.
func (c *Credential) Preview() string {
	if len(c.Key) <= previewLength {
		return c.Key + "..."
	}
	return c.Key[:previewLength] + "..."
}

// HasKeyPrefix reports whether raw is shaped like an issued key.
func HasKeyPrefix(raw string) bool {
	return strings.HasPrefix(raw, KeyPrefix) && len(raw) > len(KeyPrefix)
}

// HasSecretPrefix reports whether raw is shaped like an issued project secret.
func HasSecretPrefix(raw string) bool {
	return strings.HasPrefix(raw, SecretPrefix) && len(raw) > len(SecretPrefix)
}

// Identity is the result of a successful credential validation. CredentialID
// is empty for identity tokens.
type Identity struct {
	UserID       string
	CredentialID string
	Scheme       string
}

const (
	SchemeIdentityToken = "identity_token"
	SchemeAPIKey        = "api_key"
	SchemeProject       = "project"
)
