package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/zaphost/gateway/internal/core/domain"
	"github.com/zaphost/gateway/internal/core/ports"
	"github.com/zaphost/gateway/internal/infrastructure/whatsapp"
)

// WhatsAppHandler exposes the dashboard side of the session lifecycle.
type WhatsAppHandler struct {
	sessions ports.SessionService
	log      zerolog.Logger
}

func NewWhatsAppHandler(sessions ports.SessionService, log zerolog.Logger) *WhatsAppHandler {
	return &WhatsAppHandler{sessions: sessions, log: log}
}

// Connect starts pairing, or reports the current session when one is live.
// Blocks until a pairing code is issued, the session connects, or the
// challenge deadline passes.
//
// @Summary      Connect WhatsApp
// @Tags         whatsapp
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  sessionResponse
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Failure      504  {object}  map[string]string
// @Router       /whatsapp/connect [post]
func (h *WhatsAppHandler) Connect(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}

	res, err := h.sessions.CreateSession(c.Request().Context(), id.UserID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, h.sessionView(res.Status, res.Challenge))
}

// Status reports the caller's session state. The pairing code is included
// while connecting.
//
// @Summary      WhatsApp session status
// @Tags         whatsapp
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  sessionResponse
// @Failure      401  {object}  map[string]string
// @Router       /whatsapp/status [get]
func (h *WhatsAppHandler) Status(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}

	res := h.sessions.GetSessionStatus(c.Request().Context(), id.UserID)
	return c.JSON(http.StatusOK, h.sessionView(res.Status, res.Challenge))
}

// QRImage renders the pending pairing code as a PNG.
//
// @Summary      Pairing code image
// @Tags         whatsapp
// @Produce      png
// @Security     BearerAuth
// @Param        size  query     int  false  "Edge length in pixels (128-1024)"
// @Success      200   {file}    binary
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /whatsapp/qr.png [get]
func (h *WhatsAppHandler) QRImage(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}

	size := 0
	if raw := c.QueryParam("size"); raw != "" {
		if size, err = strconv.Atoi(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "size must be an integer")
		}
	}

	res := h.sessions.GetSessionStatus(c.Request().Context(), id.UserID)
	if res.Status != domain.SessionConnecting || res.Challenge == "" {
		return domain.ErrChallengeNotFound
	}

	png, err := whatsapp.RenderQR(res.Challenge, size)
	if err != nil {
		if errors.Is(err, whatsapp.ErrInvalidQRSize) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return err
	}

	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Blob(http.StatusOK, "image/png", png)
}

// Disconnect tears down the caller's session. Always succeeds.
//
// @Summary      Disconnect WhatsApp
// @Tags         whatsapp
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  sessionResponse
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Router       /whatsapp/disconnect [post]
func (h *WhatsAppHandler) Disconnect(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}

	h.sessions.DestroySession(c.Request().Context(), id.UserID)
	return c.JSON(http.StatusOK, sessionResponse{Success: true, Status: string(domain.SessionDisconnected)})
}

func (h *WhatsAppHandler) sessionView(status domain.SessionStatus, challenge string) sessionResponse {
	resp := sessionResponse{Success: true, Status: string(status)}
	if challenge == "" {
		return resp
	}
	resp.QR = challenge
	dataURL, err := whatsapp.QRDataURL(challenge)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to render pairing code")
		return resp
	}
	resp.QRCode = dataURL
	return resp
}
