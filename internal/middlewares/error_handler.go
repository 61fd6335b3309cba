package middlewares

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/softrlabs/bexgate/internal/handlers/api"
	"github.com/softrlabs/bexgate/internal/identity"
	"github.com/softrlabs/bexgate/internal/tokens"
	"github.com/softrlabs/bexgate/internal/upstream"
)

// ErrorHandler maps the credential-layer error taxonomy to transport status
// codes. Identity and token errors stay distinct from upstream business
// errors because the caller's remediation differs: re-login or re-authorize
// versus fixing the request.
func ErrorHandler(ctx *fiber.Ctx, err error) error {
	var unauthorizedErr *tokens.UnauthorizedError
	var upstreamErr *upstream.Error

	switch {
	case errors.Is(err, identity.ErrUnauthenticated), errors.Is(err, identity.ErrAmbiguousIdentity):
		return ctx.Status(fiber.StatusUnauthorized).JSON(
			api.NewErrorResponse(fiber.StatusUnauthorized, "UNAUTHENTICATED", "Caller could not be identified."),
		)
	case errors.As(err, &unauthorizedErr):
		return ctx.Status(fiber.StatusUnauthorized).JSON(
			api.NewErrorResponse(fiber.StatusUnauthorized, string(unauthorizedErr.Reason), unauthorizedMessage(unauthorizedErr)),
		)
	case errors.As(err, &upstreamErr):
		// Relay the upstream status and body verbatim so the caller can
		// diagnose against bexio's documentation.
		ctx.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return ctx.Status(upstreamErr.Status).Send(upstreamErr.Body)
	case errors.Is(err, tokens.ErrAuthorizationNotPending), errors.Is(err, tokens.ErrCodeExchangeFailed):
		return ctx.Status(fiber.StatusBadRequest).JSON(
			api.NewErrorResponse(fiber.StatusBadRequest, "AUTHORIZATION_FAILED", err.Error()),
		)
	}

	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}
	if code == fiber.StatusInternalServerError {
		slog.Error("Unhandled error", "path", ctx.Path(), "error", err)
		return ctx.Status(code).JSON(
			api.NewErrorResponse(code, "INTERNAL", "Internal server error"),
		)
	}
	return ctx.Status(code).JSON(
		api.NewErrorResponse(code, "REQUEST_FAILED", fiberErr.Message),
	)
}

func unauthorizedMessage(err *tokens.UnauthorizedError) string {
	switch err.Reason {
	case tokens.ReasonNeverAuthorized:
		return "Tenant has not connected bexio yet. Open /authorize?tenant=" + err.TenantKey + " to authorize."
	case tokens.ReasonRefreshRejected:
		return "The stored bexio credential was rejected. Re-authorize via /authorize?tenant=" + err.TenantKey + "."
	default:
		return "The stored bexio credential is expired. Re-authorize via /authorize?tenant=" + err.TenantKey + "."
	}
}
