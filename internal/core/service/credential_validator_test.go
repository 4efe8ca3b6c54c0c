package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/zaphost/gateway/internal/core/domain"
)

type validatorFixture struct {
	users     *stubUserRepo
	creds     *stubCredRepo
	validator *CredentialValidator
	apiKey    string
	projKey   string
	projSec   string
	now       time.Time
}

// newValidatorFixture seeds one user whose trial ends at trialEnd, with one
// API key, one project and identity token "tok-u1".
func newValidatorFixture(t *testing.T, user *domain.User) *validatorFixture {
	t.Helper()

	users := newStubUserRepo()
	users.put(user)
	creds := newStubCredRepo()

	issuer := NewCredentialService(users, creds, bcrypt.MinCost, zerolog.Nop())
	issuer.now = func() time.Time { return credNow }

	// Issue with an authorized copy so the fixture can seed gated users too.
	seed := cloneUser(user)
	seed.IsActive = true
	seed.Plan = domain.PlanPaid
	users.put(seed)
	key, err := issuer.Create(context.Background(), user.ID, domain.KindAPIKey, "key")
	if err != nil {
		t.Fatalf("seed api key: %v", err)
	}
	proj, err := issuer.Create(context.Background(), user.ID, domain.KindProject, "proj")
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}
	users.put(user)

	v := NewCredentialValidator(users, creds, stubTokens{userIDs: map[string]string{"tok-u1": user.ID}}, bcrypt.MinCost, zerolog.Nop())
	f := &validatorFixture{
		users:     users,
		creds:     creds,
		validator: v,
		apiKey:    key.Key,
		projKey:   proj.Key,
		projSec:   proj.Secret,
		now:       credNow,
	}
	v.now = func() time.Time { return f.now }
	return f
}

// validateAll runs the three validation paths and returns their errors.
func (f *validatorFixture) validateAll() [3]error {
	ctx := context.Background()
	_, e1 := f.validator.ValidateAPIKey(ctx, f.apiKey)
	_, e2 := f.validator.ValidateProjectCredentials(ctx, f.projKey, f.projSec)
	_, e3 := f.validator.VerifyIdentityToken(ctx, "tok-u1")
	return [3]error{e1, e2, e3}
}

func TestCredentialValidator_TrialBoundaryIsIdenticalAcrossSchemes(t *testing.T) {
	ends := credNow
	f := newValidatorFixture(t, &domain.User{ID: "u1", Plan: domain.PlanFree, TrialEndsAt: &ends, IsActive: true})

	f.now = ends.Add(-time.Second)
	for i, err := range f.validateAll() {
		if err != nil {
			t.Fatalf("scheme %d: expected success before trial end, got %v", i, err)
		}
	}

	f.now = ends
	for i, err := range f.validateAll() {
		if err != nil {
			t.Fatalf("scheme %d: expected success at trial end, got %v", i, err)
		}
	}

	f.now = ends.Add(time.Second)
	for i, err := range f.validateAll() {
		if err != domain.ErrTrialExpired {
			t.Fatalf("scheme %d: expected ErrTrialExpired after trial end, got %v", i, err)
		}
	}
}

func TestCredentialValidator_PaidUserIgnoresTrial(t *testing.T) {
	ends := credNow.Add(-30 * 24 * time.Hour)
	f := newValidatorFixture(t, &domain.User{ID: "u1", Plan: domain.PlanPaid, TrialEndsAt: &ends, IsActive: true})

	for i, err := range f.validateAll() {
		if err != nil {
			t.Fatalf("scheme %d: expected success for paid user, got %v", i, err)
		}
	}
}

func TestCredentialValidator_InactiveUserIsAuthorizationFailure(t *testing.T) {
	f := newValidatorFixture(t, &domain.User{ID: "u1", Plan: domain.PlanPaid, IsActive: false})

	for i, err := range f.validateAll() {
		if err != domain.ErrAccountInactive {
			t.Fatalf("scheme %d: expected ErrAccountInactive, got %v", i, err)
		}
	}
}

func TestCredentialValidator_APIKey(t *testing.T) {
	f := newValidatorFixture(t, &domain.User{ID: "u1", Plan: domain.PlanPaid, IsActive: true})

	id, err := f.validator.ValidateAPIKey(context.Background(), f.apiKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.UserID != "u1" || id.CredentialID == "" || id.Scheme != domain.SchemeAPIKey {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if len(f.creds.touched) != 1 || f.creds.touched[0] != id.CredentialID {
		t.Fatalf("expected lastUsed touched for %s, got %v", id.CredentialID, f.creds.touched)
	}

	cases := map[string]error{
		"":                  domain.ErrMissingCredentials,
		"abc_123":           domain.ErrInvalidCredentials,
		"zap_":              domain.ErrInvalidCredentials,
		"zap_doesnotexist0": domain.ErrInvalidCredentials,
		f.projKey:           domain.ErrInvalidCredentials,
	}
	for key, want := range cases {
		if _, err := f.validator.ValidateAPIKey(context.Background(), key); err != want {
			t.Errorf("key %q: expected %v, got %v", key, want, err)
		}
	}
}

func TestCredentialValidator_TouchFailureIsNonFatal(t *testing.T) {
	f := newValidatorFixture(t, &domain.User{ID: "u1", Plan: domain.PlanPaid, IsActive: true})
	f.creds.touchErr = errBoom

	if _, err := f.validator.ValidateAPIKey(context.Background(), f.apiKey); err != nil {
		t.Fatalf("expected lastUsed failure to be swallowed, got %v", err)
	}
}

func TestCredentialValidator_ProjectCredentials(t *testing.T) {
	f := newValidatorFixture(t, &domain.User{ID: "u1", Plan: domain.PlanPaid, IsActive: true})

	id, err := f.validator.ValidateProjectCredentials(context.Background(), f.projKey, f.projSec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.Scheme != domain.SchemeProject || id.UserID != "u1" {
		t.Fatalf("unexpected identity: %+v", id)
	}

	// Wrong secret and unknown key are indistinguishable.
	_, wrongSecret := f.validator.ValidateProjectCredentials(context.Background(), f.projKey, "sk_wrong")
	_, unknownKey := f.validator.ValidateProjectCredentials(context.Background(), "zap_unknown", f.projSec)
	if wrongSecret != domain.ErrInvalidCredentials || unknownKey != domain.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v / %v", wrongSecret, unknownKey)
	}

	if _, err := f.validator.ValidateProjectCredentials(context.Background(), f.projKey, ""); err != domain.ErrMissingCredentials {
		t.Fatalf("expected ErrMissingCredentials without secret, got %v", err)
	}
	if _, err := f.validator.ValidateProjectCredentials(context.Background(), f.projKey, "plain"); err != domain.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials for unprefixed secret, got %v", err)
	}
	if _, err := f.validator.ValidateProjectCredentials(context.Background(), f.apiKey, f.projSec); err != domain.ErrInvalidCredentials {
		t.Fatalf("legacy key must not validate as project, got %v", err)
	}
}

func TestCredentialValidator_IdentityToken(t *testing.T) {
	f := newValidatorFixture(t, &domain.User{ID: "u1", Plan: domain.PlanPaid, IsActive: true})

	id, err := f.validator.VerifyIdentityToken(context.Background(), "tok-u1")
	if err != nil || id.UserID != "u1" || id.CredentialID != "" {
		t.Fatalf("unexpected result: %+v %v", id, err)
	}
	if _, err := f.validator.VerifyIdentityToken(context.Background(), "forged"); err != domain.ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := f.validator.VerifyIdentityToken(context.Background(), ""); err != domain.ErrMissingCredentials {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestCredentialValidator_StoreErrorIsPropagated(t *testing.T) {
	f := newValidatorFixture(t, &domain.User{ID: "u1", Plan: domain.PlanPaid, IsActive: true})
	f.users.findErr = errBoom

	_, err := f.validator.ValidateAPIKey(context.Background(), f.apiKey)
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected store error, got %v", err)
	}
}
