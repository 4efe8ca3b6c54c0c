package handler

import (
	"time"

	"github.com/zaphost/gateway/internal/core/domain"
)

type registerRequest struct {
	Name        string `json:"name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6"`
	ProjectType string `json:"projectType" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type selectPlanRequest struct {
	Plan string `json:"plan" validate:"required,oneof=free weekly monthly quarterly"`
}

type paymentVerifyRequest struct {
	UserID        string `json:"userId" validate:"required"`
	TransactionID string `json:"transactionId" validate:"required"`
	Status        string `json:"status" validate:"required,oneof=success failed"`
}

// userResponse is the profile view returned to the dashboard.
type userResponse struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Plan         string     `json:"plan"`
	SelectedPlan string     `json:"selectedPlan,omitempty"`
	TrialEndsAt  *time.Time `json:"trialEndsAt,omitempty"`
}

type authResponse struct {
	Success bool          `json:"success"`
	Token   string        `json:"token,omitempty"`
	User    *userResponse `json:"user,omitempty"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func toUserResponse(u *domain.User) *userResponse {
	if u == nil {
		return nil
	}
	return &userResponse{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Plan:         string(u.Plan),
		SelectedPlan: string(u.SelectedPlan),
		TrialEndsAt:  u.TrialEndsAt,
	}
}
