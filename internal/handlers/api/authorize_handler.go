package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/softrlabs/bexgate/internal/tokens"
)

type AuthorizeHandler struct {
	tokenService *tokens.TokenService
}

func NewAuthorizeHandler(tokenService *tokens.TokenService) *AuthorizeHandler {
	return &AuthorizeHandler{
		tokenService: tokenService,
	}
}

// GetAuthorize starts the authorization-code handshake for a tenant and
// redirects the operator to the bexio consent screen.
func (h *AuthorizeHandler) GetAuthorize(ctx *fiber.Ctx) error {
	tenantKey := ctx.Query("tenant")
	if tenantKey == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Missing tenant parameter")
	}

	redirectURL, err := h.tokenService.BeginAuthorization(ctx.Context(), tenantKey)
	if err != nil {
		return err
	}
	return ctx.Redirect(redirectURL, fiber.StatusFound)
}

// GetAuthorizeCallback lands the operator after the consent screen,
// exchanges the code and stores the token pair.
func (h *AuthorizeHandler) GetAuthorizeCallback(ctx *fiber.Ctx) error {
	if errParam := ctx.Query("error"); errParam != "" {
		slog.Warn("Authorization denied at consent screen", "error", errParam, "tenant", ctx.Query("state"))
		return ctx.Status(fiber.StatusBadRequest).Render("authorize_error", fiber.Map{
			"tenant":  ctx.Query("state"),
			"message": "bexio reported: " + errParam,
		})
	}

	code := ctx.Query("code")
	state := ctx.Query("state")
	if code == "" || state == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Missing code or state parameter")
	}

	if err := h.tokenService.CompleteAuthorization(ctx.Context(), code, state); err != nil {
		slog.Warn("Authorization handshake failed", "tenant", state, "error", err)
		return ctx.Status(fiber.StatusBadRequest).Render("authorize_error", fiber.Map{
			"tenant":  state,
			"message": err.Error(),
		})
	}
	return ctx.Render("authorized", fiber.Map{"tenant": state})
}

// PostRevoke deactivates a tenant's credential. The row survives for
// auditing; only resolution stops seeing it.
func (h *AuthorizeHandler) PostRevoke(ctx *fiber.Ctx) error {
	tenantKey := ctx.FormValue("tenant")
	if tenantKey == "" {
		tenantKey = ctx.Query("tenant")
	}
	if tenantKey == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Missing tenant parameter")
	}

	if err := h.tokenService.Revoke(ctx.Context(), tenantKey); err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"tenant": tenantKey, "revoked": true}))
}
