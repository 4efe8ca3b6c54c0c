package handler

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/zaphost/gateway/internal/api/middleware"
	"github.com/zaphost/gateway/internal/core/domain"
)

// newContext builds an echo context for a JSON request. A non-empty userID
// attaches an identity as the credential middleware would.
func newContext(method, target, body, userID string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if userID != "" {
		middleware.SetIdentity(c, &domain.Identity{UserID: userID, CredentialID: "cred-" + userID, Scheme: domain.SchemeAPIKey})
	}
	return c, rec
}

// requireHTTPError asserts err is an echo.HTTPError with the given status.
func requireHTTPError(t *testing.T, err error, status int) {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected echo.HTTPError %d, got %v", status, err)
	}
	if he.Code != status {
		t.Fatalf("expected status %d, got %d (%v)", status, he.Code, he.Message)
	}
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
}

