package domain

import (
	"errors"
	"time"
)

// Plan is the billing tier that drives the trial gate.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPaid Plan = "paid"
)

// SelectedPlan is the catalogue entry a user picked on the plans page.
type SelectedPlan string

const (
	SelectedFree      SelectedPlan = "free"
	SelectedWeekly    SelectedPlan = "weekly"
	SelectedMonthly   SelectedPlan = "monthly"
	SelectedQuarterly SelectedPlan = "quarterly"
)

// planTerms maps each selectable plan to the plan tier it grants and the
// number of days added to trialEndsAt.
var planTerms = map[SelectedPlan]struct {
	plan Plan
	days int
}{
	SelectedFree:      {PlanFree, 7},
	SelectedWeekly:    {PlanPaid, 7},
	SelectedMonthly:   {PlanPaid, 30},
	SelectedQuarterly: {PlanPaid, 90},
}

var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrTrialExpired       = errors.New("trial expired")
	ErrAccountInactive    = errors.New("account inactive")
	ErrInvalidPlan        = errors.New("invalid plan")
	ErrTransactionMissing = errors.New("transaction not found")
)

// User models an account holder.
type User struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"`
	ProjectType  string       `json:"projectType,omitempty"`
	Plan         Plan         `json:"plan,omitempty"`
	SelectedPlan SelectedPlan `json:"selectedPlan,omitempty"`
	TrialEndsAt  *time.Time   `json:"trialEndsAt,omitempty"`
	IsActive     bool         `json:"isActive"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Authorize applies the plan gate at instant now. Paid accounts pass while
// active; every other account passes only until trialEndsAt inclusive.
func (u *User) Authorize(now time.Time) error {
	if !u.IsActive {
		return ErrAccountInactive
	}
	if u.Plan == PlanPaid {
		return nil
	}
	if u.TrialEndsAt == nil || now.After(*u.TrialEndsAt) {
		return ErrTrialExpired
	}
	return nil
}

// Terms resolves a selectable plan into the plan tier and the new trialEndsAt
// counted from now.
func (p SelectedPlan) Terms(now time.Time) (Plan, time.Time, error) {
	t, ok := planTerms[p]
	if !ok {
		return "", time.Time{}, ErrInvalidPlan
	}
	return t.plan, now.AddDate(0, 0, t.days), nil
}
