package api

import (
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/softrlabs/bexgate/internal/identity"
	"github.com/softrlabs/bexgate/internal/upstream"
)

type ProxyHandler struct {
	resolver      *identity.Resolver
	invoker       upstream.Invoker
	sessionCookie string
}

func NewProxyHandler(resolver *identity.Resolver, invoker upstream.Invoker, sessionCookie string) *ProxyHandler {
	return &ProxyHandler{
		resolver:      resolver,
		invoker:       invoker,
		sessionCookie: sessionCookie,
	}
}

// HandleProxy forwards /api/bexio/<endpoint> to the accounting API for the
// resolved tenant. The auth evidence params are stripped before forwarding
// so they never reach bexio.
func (h *ProxyHandler) HandleProxy(ctx *fiber.Ctx) error {
	endpoint := ctx.Params("*")
	if endpoint == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Missing bexio endpoint path")
	}

	query := url.Values{}
	ctx.Context().QueryArgs().VisitAll(func(key, val []byte) {
		query.Add(string(key), string(val))
	})

	evidence := identity.Evidence{
		TenantKey:    query.Get("tenant"),
		SessionToken: h.sessionToken(ctx),
	}
	query.Del("tenant")

	tenantKey, err := h.resolver.Resolve(ctx.Context(), evidence)
	if err != nil {
		return err
	}

	resp, err := h.invoker.Call(ctx.Context(), tenantKey, ctx.Method(), endpoint, query, ctx.Body())
	if err != nil {
		return err
	}

	ctx.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return ctx.Status(resp.Status).Send(resp.Body)
}

func (h *ProxyHandler) sessionToken(ctx *fiber.Ctx) string {
	if cookie := ctx.Cookies(h.sessionCookie); cookie != "" {
		return cookie
	}
	authHeader := ctx.Get(fiber.HeaderAuthorization)
	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
		return token
	}
	return ""
}
