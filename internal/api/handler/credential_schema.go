package handler

import (
	"time"

	"github.com/zaphost/gateway/internal/core/ports"
)

type createCredentialRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// credentialView is one listing entry. API keys carry keyPreview only;
// projects carry the full apiKey. Secrets are never listed.
type credentialView struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	KeyPreview string     `json:"keyPreview,omitempty"`
	APIKey     string     `json:"apiKey,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsed   *time.Time `json:"lastUsed,omitempty"`
}

// issuedView is returned once at creation.
type issuedView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Key         string    `json:"key,omitempty"`
	APIKey      string    `json:"apiKey,omitempty"`
	SecretToken string    `json:"secretToken,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toCredentialViews(items []ports.CredentialSummary) []credentialView {
	out := make([]credentialView, 0, len(items))
	for _, s := range items {
		out = append(out, credentialView{
			ID:         s.ID,
			Name:       s.Name,
			KeyPreview: s.Preview,
			APIKey:     s.Key,
			CreatedAt:  s.CreatedAt,
			LastUsed:   s.LastUsed,
		})
	}
	return out
}
