package ports

import (
	"context"

	"github.com/zaphost/gateway/internal/core/domain"
)

// RegisterInput carries the sign-up form.
type RegisterInput struct {
	Name        string
	Email       string
	Password    string
	ProjectType string
}

// PaymentResult is the payment callback payload.
type PaymentResult struct {
	UserID        string
	TransactionID string
	Success       bool
}

// AuthService covers account lifecycle: sign-up, sign-in and plan changes.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (string, *domain.User, error)
	Login(ctx context.Context, email, password string) (string, *domain.User, error)
	SelectPlan(ctx context.Context, userID string, selected domain.SelectedPlan) (*domain.User, error)
	VerifyPayment(ctx context.Context, in PaymentResult) error
}
