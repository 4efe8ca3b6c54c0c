package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/zaphost/gateway/internal/core/domain"
)

// stubValidator resolves fixed credentials. Tokens map to users; keys map to
// identities; project pairs are key+":"+secret.
type stubValidator struct {
	tokens   map[string]string
	keys     map[string]string
	projects map[string]string
	tokenErr error
	calls    []string
}

func (s *stubValidator) ValidateAPIKey(_ context.Context, key string) (*domain.Identity, error) {
	s.calls = append(s.calls, "api_key")
	if u, ok := s.keys[key]; ok {
		return &domain.Identity{UserID: u, CredentialID: "k-" + u, Scheme: domain.SchemeAPIKey}, nil
	}
	return nil, domain.ErrInvalidCredentials
}

func (s *stubValidator) ValidateProjectCredentials(_ context.Context, key, secret string) (*domain.Identity, error) {
	s.calls = append(s.calls, "project")
	if u, ok := s.projects[key+":"+secret]; ok {
		return &domain.Identity{UserID: u, CredentialID: "p-" + u, Scheme: domain.SchemeProject}, nil
	}
	return nil, domain.ErrInvalidCredentials
}

func (s *stubValidator) VerifyIdentityToken(_ context.Context, token string) (*domain.Identity, error) {
	s.calls = append(s.calls, "token")
	if s.tokenErr != nil {
		return nil, s.tokenErr
	}
	if u, ok := s.tokens[token]; ok {
		return &domain.Identity{UserID: u, Scheme: domain.SchemeIdentityToken}, nil
	}
	return nil, domain.ErrInvalidToken
}

type stubVerifier map[string]string

func (s stubVerifier) ParseIdentityToken(token string) (string, error) {
	if u, ok := s[token]; ok {
		return u, nil
	}
	return "", domain.ErrInvalidToken
}

// run executes mw against a request carrying the given headers and returns
// the identity seen by the next handler.
func run(t *testing.T, mw echo.MiddlewareFunc, headers map[string]string) (*domain.Identity, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	c := e.NewContext(req, httptest.NewRecorder())

	var seen *domain.Identity
	err := mw(func(c echo.Context) error {
		id, ok := IdentityFrom(c)
		if !ok {
			t.Fatalf("identity not set")
		}
		seen = id
		return nil
	})(c)
	return seen, err
}

func bearer(v string) map[string]string {
	return map[string]string{echo.HeaderAuthorization: "Bearer " + v}
}

func TestAuth_MissingOrMalformedHeader(t *testing.T) {
	mw := GatedIdentity(&stubValidator{})

	for _, headers := range []map[string]string{
		{},
		{echo.HeaderAuthorization: "Token abc"},
		{echo.HeaderAuthorization: "Bearer "},
		{echo.HeaderAuthorization: "Bearer"},
	} {
		if _, err := run(t, mw, headers); !errors.Is(err, domain.ErrMissingCredentials) {
			t.Errorf("headers %v: expected ErrMissingCredentials, got %v", headers, err)
		}
	}
}

func TestIdentity_SignatureOnly(t *testing.T) {
	mw := Identity(stubVerifier{"tok": "u1"})

	id, err := run(t, mw, bearer("tok"))
	if err != nil || id.UserID != "u1" || id.Scheme != domain.SchemeIdentityToken {
		t.Fatalf("unexpected result: %+v %v", id, err)
	}
	if _, err := run(t, mw, bearer("nope")); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestGatedIdentity_PropagatesPlanGate(t *testing.T) {
	mw := GatedIdentity(&stubValidator{tokenErr: domain.ErrTrialExpired})

	if _, err := run(t, mw, bearer("tok")); !errors.Is(err, domain.ErrTrialExpired) {
		t.Fatalf("expected ErrTrialExpired, got %v", err)
	}
}

func TestBearer_TokenFirstThenKey(t *testing.T) {
	v := &stubValidator{
		tokens: map[string]string{"jwt": "u1"},
		keys:   map[string]string{"zap_abc": "u2"},
	}
	mw := Bearer(v)

	id, err := run(t, mw, bearer("jwt"))
	if err != nil || id.UserID != "u1" {
		t.Fatalf("token path: %+v %v", id, err)
	}

	v.calls = nil
	id, err = run(t, mw, bearer("zap_abc"))
	if err != nil || id.UserID != "u2" || id.Scheme != domain.SchemeAPIKey {
		t.Fatalf("key path: %+v %v", id, err)
	}
	if len(v.calls) != 2 || v.calls[0] != "token" || v.calls[1] != "api_key" {
		t.Fatalf("expected token verification before key lookup, got %v", v.calls)
	}

	if _, err := run(t, mw, bearer("garbage")); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for non-key garbage, got %v", err)
	}
}

func TestBearer_GateFailureDoesNotFallBack(t *testing.T) {
	v := &stubValidator{tokenErr: domain.ErrTrialExpired}

	if _, err := run(t, Bearer(v), bearer("zap_abc")); !errors.Is(err, domain.ErrTrialExpired) {
		t.Fatalf("expected ErrTrialExpired, got %v", err)
	}
	if len(v.calls) != 1 {
		t.Fatalf("expected no key fallback, got %v", v.calls)
	}
}

func TestAPICredential(t *testing.T) {
	v := &stubValidator{
		keys:     map[string]string{"zap_legacy": "u1"},
		projects: map[string]string{"zap_proj:sk_secret": "u2"},
	}
	mw := APICredential(v)

	id, err := run(t, mw, bearer("zap_legacy"))
	if err != nil || id.Scheme != domain.SchemeAPIKey || id.CredentialID == "" {
		t.Fatalf("legacy key: %+v %v", id, err)
	}

	headers := bearer("zap_proj")
	headers[HeaderSecretToken] = "sk_secret"
	id, err = run(t, mw, headers)
	if err != nil || id.Scheme != domain.SchemeProject || id.UserID != "u2" {
		t.Fatalf("project pair: %+v %v", id, err)
	}

	if _, err := run(t, mw, bearer("zap_proj")); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("project key without secret must be rejected, got %v", err)
	}

	headers[HeaderSecretToken] = "sk_wrong"
	if _, err := run(t, mw, headers); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong secret, got %v", err)
	}
}
