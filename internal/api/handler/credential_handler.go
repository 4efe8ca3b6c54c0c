package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zaphost/gateway/internal/core/domain"
	"github.com/zaphost/gateway/internal/core/ports"
)

// CredentialHandler serves one credential family. The same handler type backs
// /apikeys and /projects; only the kind and the response envelope differ.
type CredentialHandler struct {
	service ports.CredentialService
	kind    domain.CredentialKind
}

func NewAPIKeyHandler(service ports.CredentialService) *CredentialHandler {
	return &CredentialHandler{service: service, kind: domain.KindAPIKey}
}

func NewProjectHandler(service ports.CredentialService) *CredentialHandler {
	return &CredentialHandler{service: service, kind: domain.KindProject}
}

func (h *CredentialHandler) envelope() (list, single string) {
	if h.kind == domain.KindProject {
		return "projects", "project"
	}
	return "apiKeys", "apiKey"
}

// List returns the caller's active credentials of this family.
//
// @Summary      List credentials
// @Tags         credentials
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]any
// @Failure      401  {object}  map[string]string
// @Router       /apikeys [get]
// @Router       /projects [get]
func (h *CredentialHandler) List(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}

	items, err := h.service.List(c.Request().Context(), id.UserID, h.kind)
	if err != nil {
		return err
	}

	list, _ := h.envelope()
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		list:      toCredentialViews(items),
	})
}

// Create issues a credential. The key, and for projects the secret, are only
// ever returned here.
//
// @Summary      Create a credential
// @Tags         credentials
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createCredentialRequest  true  "Credential name"
// @Success      201   {object}  map[string]any
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Router       /apikeys [post]
// @Router       /projects [post]
func (h *CredentialHandler) Create(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}

	var req createCredentialRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	issued, err := h.service.Create(c.Request().Context(), id.UserID, h.kind, req.Name)
	if err != nil {
		return err
	}

	view := issuedView{ID: issued.ID, Name: issued.Name, CreatedAt: issued.CreatedAt}
	if h.kind == domain.KindProject {
		view.APIKey = issued.Key
		view.SecretToken = issued.Secret
	} else {
		view.Key = issued.Key
	}

	_, single := h.envelope()
	return c.JSON(http.StatusCreated, map[string]any{
		"success": true,
		single:    view,
	})
}

// Revoke deactivates one of the caller's credentials.
//
// @Summary      Revoke a credential
// @Tags         credentials
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Credential id"
// @Success      200  {object}  successResponse
// @Failure      404  {object}  map[string]string
// @Router       /apikeys/{id} [delete]
// @Router       /projects/{id} [delete]
func (h *CredentialHandler) Revoke(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}

	credID := c.Param("id")
	if credID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id is required")
	}

	if err := h.service.Revoke(c.Request().Context(), id.UserID, h.kind, credID); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, successResponse{Success: true, Message: "credential revoked"})
}
