package middleware

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/zaphost/gateway/internal/core/domain"
	"github.com/zaphost/gateway/internal/core/ports"
)

const (
	// HeaderSecretToken carries the project secret alongside a project key.
	HeaderSecretToken = "X-Secret-Token"

	identityKey = "identity"
)

// IdentityFrom returns the identity injected by one of the credential
// middlewares.
func IdentityFrom(c echo.Context) (*domain.Identity, bool) {
	id, ok := c.Get(identityKey).(*domain.Identity)
	return id, ok && id != nil
}

// SetIdentity attaches a resolved identity to the request context.
func SetIdentity(c echo.Context, id *domain.Identity) {
	c.Set(identityKey, id)
}

// Identity accepts identity tokens only and checks signature and expiry. The
// plan gate is not applied, so expired-trial users can still manage their
// account and pick a plan.
func Identity(verifier ports.TokenVerifier) echo.MiddlewareFunc {
	return authenticate(func(c echo.Context, token string) (*domain.Identity, error) {
		userID, err := verifier.ParseIdentityToken(token)
		if err != nil {
			return nil, err
		}
		return &domain.Identity{UserID: userID, Scheme: domain.SchemeIdentityToken}, nil
	})
}

// GatedIdentity accepts identity tokens and applies the plan gate.
func GatedIdentity(validator ports.CredentialValidator) echo.MiddlewareFunc {
	return authenticate(func(c echo.Context, token string) (*domain.Identity, error) {
		return validator.VerifyIdentityToken(c.Request().Context(), token)
	})
}

// Bearer accepts an identity token or a legacy API key on the same header.
// Token verification runs first; the key path is tried only when the value
// is not a valid token.
func Bearer(validator ports.CredentialValidator) echo.MiddlewareFunc {
	return authenticate(func(c echo.Context, token string) (*domain.Identity, error) {
		ctx := c.Request().Context()
		id, err := validator.VerifyIdentityToken(ctx, token)
		if err == nil || !errors.Is(err, domain.ErrInvalidToken) {
			return id, err
		}
		if !domain.HasKeyPrefix(token) {
			return nil, err
		}
		return validator.ValidateAPIKey(ctx, token)
	})
}

// APICredential guards the public API. A key presented with X-Secret-Token is
// validated as a project pair; a key alone must be a legacy API key, so a
// project key without its secret is rejected.
func APICredential(validator ports.CredentialValidator) echo.MiddlewareFunc {
	return authenticate(func(c echo.Context, key string) (*domain.Identity, error) {
		ctx := c.Request().Context()
		if secret := c.Request().Header.Get(HeaderSecretToken); secret != "" {
			return validator.ValidateProjectCredentials(ctx, key, secret)
		}
		return validator.ValidateAPIKey(ctx, key)
	})
}

type resolver func(c echo.Context, token string) (*domain.Identity, error)

func authenticate(resolve resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := bearerToken(c)
			if err != nil {
				return err
			}

			id, err := resolve(c, token)
			if err != nil {
				return err
			}

			SetIdentity(c, id)
			return next(c)
		}
	}
}

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		return "", domain.ErrMissingCredentials
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", domain.ErrMissingCredentials
	}
	return strings.TrimSpace(parts[1]), nil
}
