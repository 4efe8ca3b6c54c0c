package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zaphost/gateway/internal/core/domain"
)

// RequireScheme narrows a route to identities authenticated with one of the
// given schemes. It must run after a credential middleware.
func RequireScheme(allowedSchemes ...string) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(allowedSchemes))
	for _, s := range allowedSchemes {
		allowed[s] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return domain.ErrMissingCredentials
			}
			if _, ok := allowed[id.Scheme]; !ok {
				return echo.NewHTTPError(http.StatusForbidden, "credential type not accepted on this route")
			}
			return next(c)
		}
	}
}
