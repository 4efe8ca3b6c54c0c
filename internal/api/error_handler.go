package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/zaphost/gateway/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors. Code is
// stable and machine-checkable; Error is for humans.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type errorMapping struct {
	err    error
	status int
	code   string
	msg    string
}

// domainErrors is checked in order with errors.Is, so wrapped sentinels match.
// Authentication failures are 401, plan-gate failures 403.
var domainErrors = []errorMapping{
	{domain.ErrMissingCredentials, http.StatusUnauthorized, "missing_credentials", "credentials not provided"},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "invalid credentials"},
	{domain.ErrInvalidToken, http.StatusUnauthorized, "invalid_token", "invalid or expired token"},
	{domain.ErrTrialExpired, http.StatusForbidden, "trial_expired", "trial expired, upgrade to continue"},
	{domain.ErrAccountInactive, http.StatusForbidden, "account_inactive", "account inactive"},
	{domain.ErrCredentialLimit, http.StatusBadRequest, "credential_limit_reached", fmt.Sprintf("limit of %d active credentials reached", domain.MaxActiveCredentials)},
	{domain.ErrNameRequired, http.StatusBadRequest, "invalid_payload", "name is required"},
	{domain.ErrCredentialNotFound, http.StatusNotFound, "not_found", "credential not found"},
	{domain.ErrUserNotFound, http.StatusNotFound, "not_found", "user not found"},
	{domain.ErrTransactionMissing, http.StatusNotFound, "not_found", "transaction not found"},
	{domain.ErrUserExists, http.StatusConflict, "user_exists", "user already exists"},
	{domain.ErrInvalidPlan, http.StatusBadRequest, "invalid_plan", "invalid plan"},
	{domain.ErrInvalidRecipient, http.StatusBadRequest, "invalid_recipient", "invalid phone number"},
	{domain.ErrNotConnected, http.StatusConflict, "not_connected", "whatsapp not connected"},
	{domain.ErrSendInProgress, http.StatusConflict, "send_in_progress", "a send with this idempotency key is in progress"},
	{domain.ErrChallengeNotFound, http.StatusNotFound, "not_found", "no pairing code pending"},
	{domain.ErrSessionTimeout, http.StatusGatewayTimeout, "session_timeout", "timed out waiting for pairing code"},
	{domain.ErrSessionClosed, http.StatusConflict, "transport_error", "session closed before pairing"},
	{domain.ErrTransportAuth, http.StatusBadGateway, "transport_auth_failed", "whatsapp authentication failed"},
	{domain.ErrTransport, http.StatusBadGateway, "transport_error", "whatsapp transport error"},
}

// statusCodes names echo's own errors (bind failures, router 404s, handler
// validation errors) by status.
var statusCodes = map[int]string{
	http.StatusBadRequest:            "invalid_payload",
	http.StatusUnauthorized:          "missing_credentials",
	http.StatusForbidden:             "forbidden",
	http.StatusNotFound:              "not_found",
	http.StatusMethodNotAllowed:      "method_not_allowed",
	http.StatusRequestEntityTooLarge: "invalid_payload",
	http.StatusTooManyRequests:       "rate_limited",
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their HTTP status and code.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "...", "code": "..."}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, body)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	for _, m := range domainErrors {
		if errors.Is(err, m.err) {
			if m.status >= http.StatusInternalServerError {
				log.Warn().Err(err).Str("path", c.Path()).Str("code", m.code).Msg("upstream failure")
			}
			return m.status, errorResponse{Error: m.msg, Code: m.code}
		}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code, ok := statusCodes[he.Code]
		if !ok {
			code = "internal_error"
		}
		return he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message), Code: code}
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, errorResponse{Error: "internal server error", Code: "internal_error"}
}
