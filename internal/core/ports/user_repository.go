package ports

import (
	"context"
	"time"

	"github.com/zaphost/gateway/internal/core/domain"
)

// UserRepository defines persistence for account holders.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	// UpdatePlan overwrites plan, selectedPlan and trialEndsAt in one write.
	UpdatePlan(ctx context.Context, id string, plan domain.Plan, selected domain.SelectedPlan, trialEndsAt time.Time) error
	MarkPaid(ctx context.Context, id string) error
}

// TransactionRepository records the outcome of payment callbacks.
type TransactionRepository interface {
	Complete(ctx context.Context, id string, at time.Time) error
	Fail(ctx context.Context, id string, at time.Time) error
}
