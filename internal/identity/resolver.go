package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
)

// Evidence is whatever the inbound request presents to prove who is calling.
// An explicit tenant key wins over session evidence when both are present.
type Evidence struct {
	TenantKey    string
	SessionToken string
}

type Resolver struct {
	verifier       SessionVerifier
	tenantUserRepo TenantUserRepository
}

func NewResolver(verifier SessionVerifier, tenantUserRepo TenantUserRepository) *Resolver {
	return &Resolver{
		verifier:       verifier,
		tenantUserRepo: tenantUserRepo,
	}
}

// Resolve maps request evidence to a tenant key. Session evidence is
// exchanged for the caller email, which is then looked up in the tenant
// directory by exact match. An email that maps to more than one tenant is
// rejected rather than picking one silently.
func (r *Resolver) Resolve(ctx context.Context, evidence Evidence) (string, error) {
	if tenantKey := strings.TrimSpace(evidence.TenantKey); tenantKey != "" {
		return tenantKey, nil
	}

	if evidence.SessionToken == "" {
		return "", fmt.Errorf("%w: no session evidence", ErrUnauthenticated)
	}

	email, err := r.verifier.VerifySession(ctx, evidence.SessionToken)
	if err != nil {
		return "", err
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("%w: invalid email %q", ErrUnauthenticated, email)
	}

	users, err := r.tenantUserRepo.FindByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	tenantKeys := make(map[string]struct{})
	for _, user := range users {
		tenantKeys[user.TenantKey] = struct{}{}
	}
	switch len(tenantKeys) {
	case 0:
		return "", fmt.Errorf("%w: no tenant mapping for %s", ErrUnauthenticated, email)
	case 1:
		return users[0].TenantKey, nil
	default:
		slog.Warn("Email maps to multiple tenants", "email", email, "count", len(tenantKeys))
		return "", fmt.Errorf("%w: %s", ErrAmbiguousIdentity, email)
	}
}
