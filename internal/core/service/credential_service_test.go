package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/zaphost/gateway/internal/core/domain"
)

var credNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func trialUser(id string, endsIn time.Duration) *domain.User {
	ends := credNow.Add(endsIn)
	return &domain.User{ID: id, Email: id + "@example.com", Plan: domain.PlanFree, TrialEndsAt: &ends, IsActive: true}
}

func newTestCredentialService(users *stubUserRepo, creds *stubCredRepo) *CredentialService {
	svc := NewCredentialService(users, creds, bcrypt.MinCost, zerolog.Nop())
	svc.now = func() time.Time { return credNow }
	return svc
}

func TestCredentialService_Create_APIKey(t *testing.T) {
	users := newStubUserRepo()
	users.put(trialUser("u1", time.Hour))
	creds := newStubCredRepo()
	svc := newTestCredentialService(users, creds)

	issued, err := svc.Create(context.Background(), "u1", domain.KindAPIKey, "production")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(issued.Key, "zap_") || len(issued.Key) != len("zap_")+32 {
		t.Fatalf("unexpected key format: %q", issued.Key)
	}
	if issued.Secret != "" {
		t.Fatalf("api keys carry no secret")
	}
	if creds.creds[0].SecretHash != "" {
		t.Fatalf("api keys store no secret hash")
	}
}

func TestCredentialService_Create_ProjectStoresHashOnly(t *testing.T) {
	users := newStubUserRepo()
	users.put(trialUser("u1", time.Hour))
	creds := newStubCredRepo()
	svc := newTestCredentialService(users, creds)

	issued, err := svc.Create(context.Background(), "u1", domain.KindProject, "shop")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(issued.Secret, "sk_") || len(issued.Secret) != len("sk_")+48 {
		t.Fatalf("unexpected secret format: %q", issued.Secret)
	}
	stored := creds.creds[0]
	if stored.SecretHash == issued.Secret {
		t.Fatalf("secret stored in plain text")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.SecretHash), []byte(issued.Secret)); err != nil {
		t.Fatalf("stored hash does not verify: %v", err)
	}
}

func TestCredentialService_Create_LimitPerKind(t *testing.T) {
	users := newStubUserRepo()
	users.put(trialUser("u1", time.Hour))
	svc := newTestCredentialService(users, newStubCredRepo())

	for _, kind := range []domain.CredentialKind{domain.KindAPIKey, domain.KindProject} {
		for i := 1; i <= domain.MaxActiveCredentials; i++ {
			if _, err := svc.Create(context.Background(), "u1", kind, "k"); err != nil {
				t.Fatalf("%s #%d: unexpected error: %v", kind, i, err)
			}
		}
		if _, err := svc.Create(context.Background(), "u1", kind, "k"); err != domain.ErrCredentialLimit {
			t.Fatalf("%s #6: expected ErrCredentialLimit, got %v", kind, err)
		}
	}
}

func TestCredentialService_Create_LimitHoldsUnderConcurrency(t *testing.T) {
	users := newStubUserRepo()
	users.put(trialUser("u1", time.Hour))
	creds := newStubCredRepo()
	creds.countDelay = 5 * time.Millisecond
	svc := newTestCredentialService(users, creds)

	const attempts = 12
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		issued  int
		limited int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), "u1", domain.KindAPIKey, "k")
			mu.Lock()
			defer mu.Unlock()
			switch err {
			case nil:
				issued++
			case domain.ErrCredentialLimit:
				limited++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if issued != domain.MaxActiveCredentials || limited != attempts-domain.MaxActiveCredentials {
		t.Fatalf("expected %d issued and %d limited, got %d and %d", domain.MaxActiveCredentials, attempts-domain.MaxActiveCredentials, issued, limited)
	}
	if n, _ := creds.CountActive(context.Background(), domain.KindAPIKey, "u1"); n != domain.MaxActiveCredentials {
		t.Fatalf("expected %d active keys, got %d", domain.MaxActiveCredentials, n)
	}
}

func TestCredentialService_Create_RevokeFreesSlot(t *testing.T) {
	users := newStubUserRepo()
	users.put(trialUser("u1", time.Hour))
	svc := newTestCredentialService(users, newStubCredRepo())

	var lastID string
	for i := 0; i < domain.MaxActiveCredentials; i++ {
		issued, err := svc.Create(context.Background(), "u1", domain.KindAPIKey, "k")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		lastID = issued.ID
	}
	if err := svc.Revoke(context.Background(), "u1", domain.KindAPIKey, lastID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := svc.Create(context.Background(), "u1", domain.KindAPIKey, "k"); err != nil {
		t.Fatalf("expected slot freed after revoke, got %v", err)
	}
}

func TestCredentialService_Create_PlanGate(t *testing.T) {
	users := newStubUserRepo()
	users.put(trialUser("expired", -time.Second))
	inactive := trialUser("inactive", time.Hour)
	inactive.IsActive = false
	users.put(inactive)
	svc := newTestCredentialService(users, newStubCredRepo())

	if _, err := svc.Create(context.Background(), "expired", domain.KindAPIKey, "k"); err != domain.ErrTrialExpired {
		t.Fatalf("expected ErrTrialExpired, got %v", err)
	}
	if _, err := svc.Create(context.Background(), "inactive", domain.KindProject, "k"); err != domain.ErrAccountInactive {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
	if _, err := svc.Create(context.Background(), "ghost", domain.KindAPIKey, "k"); err != domain.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Create(context.Background(), "expired", domain.KindAPIKey, "  "); err != domain.ErrNameRequired {
		t.Fatalf("expected ErrNameRequired, got %v", err)
	}
}

func TestCredentialService_List_NeverExposesSecrets(t *testing.T) {
	users := newStubUserRepo()
	users.put(trialUser("u1", time.Hour))
	svc := newTestCredentialService(users, newStubCredRepo())

	key, _ := svc.Create(context.Background(), "u1", domain.KindAPIKey, "api")
	project, _ := svc.Create(context.Background(), "u1", domain.KindProject, "proj")

	keys, err := svc.List(context.Background(), "u1", domain.KindAPIKey)
	if err != nil || len(keys) != 1 {
		t.Fatalf("unexpected list result: %v %v", keys, err)
	}
	if keys[0].Key != "" {
		t.Fatalf("api key listing must not include the key")
	}
	if keys[0].Preview != key.Key[:8]+"..." {
		t.Fatalf("unexpected preview %q", keys[0].Preview)
	}

	projects, err := svc.List(context.Background(), "u1", domain.KindProject)
	if err != nil || len(projects) != 1 {
		t.Fatalf("unexpected list result: %v %v", projects, err)
	}
	if projects[0].Key != project.Key {
		t.Fatalf("project listing should include the public key")
	}
	for _, field := range []string{projects[0].Key, projects[0].Preview, projects[0].Name} {
		if strings.Contains(field, project.Secret) {
			t.Fatalf("secret leaked in listing")
		}
	}
}

func TestCredentialService_Revoke_NotFound(t *testing.T) {
	svc := newTestCredentialService(newStubUserRepo(), newStubCredRepo())

	if err := svc.Revoke(context.Background(), "u1", domain.KindProject, "missing"); !errors.Is(err, domain.ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}
}
