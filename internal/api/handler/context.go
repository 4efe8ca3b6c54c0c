package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/zaphost/gateway/internal/api/middleware"
	"github.com/zaphost/gateway/internal/core/domain"
)

// identity returns the caller resolved by the credential middleware. A route
// mounted without one fails closed.
func identity(c echo.Context) (*domain.Identity, error) {
	id, ok := middleware.IdentityFrom(c)
	if !ok || id.UserID == "" {
		return nil, domain.ErrMissingCredentials
	}
	return id, nil
}
