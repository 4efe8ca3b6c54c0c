package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zaphost/gateway/internal/core/domain"
	"github.com/zaphost/gateway/internal/core/ports"
)

// HeaderWebhookSecret authenticates the payment provider callback.
const HeaderWebhookSecret = "X-Webhook-Secret"

type AuthHandler struct {
	authService   ports.AuthService
	webhookSecret string
}

// NewAuthHandler returns the account handler. An empty webhookSecret disables
// the payment callback.
func NewAuthHandler(authService ports.AuthService, webhookSecret string) *AuthHandler {
	return &AuthHandler{authService: authService, webhookSecret: webhookSecret}
}

// Register creates a new account with a trial and returns an identity token.
//
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "Account details"
// @Success      201   {object}  authResponse
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	token, user, err := h.authService.Register(c.Request().Context(), ports.RegisterInput{
		Name:        req.Name,
		Email:       req.Email,
		Password:    req.Password,
		ProjectType: req.ProjectType,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, authResponse{Success: true, Token: token, User: toUserResponse(user)})
}

// Login authenticates with email and password and returns an identity token.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  authResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	token, user, err := h.authService.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, authResponse{Success: true, Token: token, User: toUserResponse(user)})
}

// SelectPlan applies a plan choice for the caller. Available to expired-trial
// accounts.
//
// @Summary      Select a plan
// @Tags         account
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      selectPlanRequest  true  "Plan"
// @Success      200   {object}  authResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /user/select-plan [post]
func (h *AuthHandler) SelectPlan(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}

	var req selectPlanRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	user, err := h.authService.SelectPlan(c.Request().Context(), id.UserID, domain.SelectedPlan(req.Plan))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, authResponse{Success: true, User: toUserResponse(user)})
}

// VerifyPayment is the payment provider callback. A successful payment moves
// the user to the paid plan.
//
// @Summary      Payment callback
// @Tags         account
// @Accept       json
// @Produce      json
// @Param        X-Webhook-Secret  header    string                true  "Shared webhook secret"
// @Param        body              body      paymentVerifyRequest  true  "Payment result"
// @Success      200               {object}  successResponse
// @Failure      400               {object}  map[string]string
// @Failure      401               {object}  map[string]string
// @Router       /payment/verify [post]
func (h *AuthHandler) VerifyPayment(c echo.Context) error {
	presented := c.Request().Header.Get(HeaderWebhookSecret)
	if h.webhookSecret == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(h.webhookSecret)) != 1 {
		return domain.ErrInvalidCredentials
	}

	var req paymentVerifyRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	success := req.Status == "success"
	err := h.authService.VerifyPayment(c.Request().Context(), ports.PaymentResult{
		UserID:        req.UserID,
		TransactionID: req.TransactionID,
		Success:       success,
	})
	if err != nil {
		return err
	}

	if !success {
		return c.JSON(http.StatusOK, successResponse{Success: false, Message: "payment failed"})
	}
	return c.JSON(http.StatusOK, successResponse{Success: true})
}
