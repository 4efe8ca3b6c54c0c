package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zaphost/gateway/internal/core/domain"
	"github.com/zaphost/gateway/internal/core/ports"
)

// HeaderIdempotencyKey makes repeated sends return the first message id.
const HeaderIdempotencyKey = "Idempotency-Key"

// PublicAPIHandler serves the /v1 API used by integrations holding an API key
// or a project key pair.
type PublicAPIHandler struct {
	sessions  ports.SessionService
	messaging ports.MessagingService
}

func NewPublicAPIHandler(sessions ports.SessionService, messaging ports.MessagingService) *PublicAPIHandler {
	return &PublicAPIHandler{sessions: sessions, messaging: messaging}
}

// Status reports whether the caller's WhatsApp session can send.
//
// @Summary      Session status
// @Tags         v1
// @Produce      json
// @Security     BearerAuth
// @Param        X-Secret-Token  header    string  false  "Project secret, when authenticating with a project key"
// @Success      200             {object}  apiStatusResponse
// @Failure      401             {object}  map[string]string
// @Failure      403             {object}  map[string]string
// @Router       /v1/status [get]
func (h *PublicAPIHandler) Status(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}

	res := h.sessions.GetSessionStatus(c.Request().Context(), id.UserID)
	return c.JSON(http.StatusOK, apiStatusResponse{
		Success:   true,
		Status:    string(res.Status),
		Connected: res.Status == domain.SessionConnected,
	})
}

// SendMessage sends a text message through the caller's connected session.
//
// @Summary      Send a text message
// @Tags         v1
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        X-Secret-Token   header    string              false  "Project secret, when authenticating with a project key"
// @Param        Idempotency-Key  header    string              false  "Replays the first result for a repeated key"
// @Param        body             body      sendMessageRequest  true   "Recipient and text"
// @Success      200              {object}  sendMessageResponse
// @Failure      400              {object}  map[string]string
// @Failure      401              {object}  map[string]string
// @Failure      403              {object}  map[string]string
// @Failure      409              {object}  map[string]string
// @Failure      502              {object}  map[string]string
// @Router       /v1/send-message [post]
func (h *PublicAPIHandler) SendMessage(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}

	var req sendMessageRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := h.messaging.Send(c.Request().Context(), ports.SendMessageInput{
		UserID:         id.UserID,
		CredentialID:   id.CredentialID,
		To:             req.To,
		Body:           req.Message,
		IdempotencyKey: c.Request().Header.Get(HeaderIdempotencyKey),
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, sendMessageResponse{
		Success:   true,
		MessageID: res.MessageID,
		To:        res.To,
		Replayed:  res.Replayed,
	})
}
