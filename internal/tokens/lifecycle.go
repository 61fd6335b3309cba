package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/softrlabs/bexgate/internal/audit"
	"github.com/softrlabs/bexgate/internal/creds"
	"github.com/softrlabs/bexgate/internal/store"
	"github.com/softrlabs/bexgate/params"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Notifier is told when a tenant's refresh token is rejected and the tenant
// is stuck until someone re-runs the authorization handshake.
type Notifier interface {
	NotifyRefreshRejected(tenantKey string, cause error)
}

type pendingAuth struct {
	ID        string    `json:"id"`
	TenantKey string    `json:"tenantKey"`
	CreatedAt time.Time `json:"createdAt"`
}

// TokenService owns the credential lifecycle for every tenant: it hands out
// access tokens that are valid for at least TokenExpiryMargin, refreshing
// through the bexio token endpoint when needed, and performs the initial
// authorization-code handshake. Refreshes are deduplicated per tenant so a
// burst of requests against an expired credential causes one handshake.
type TokenService struct {
	oauth     *oauth2.Config
	credStore *creds.CredentialStore
	pending   store.Store[pendingAuth]
	notifier  Notifier
	group     singleflight.Group
}

func NewTokenService(oauthConfig *oauth2.Config, credStore *creds.CredentialStore, storage store.Storage, notifier Notifier) *TokenService {
	return &TokenService{
		oauth:     oauthConfig,
		credStore: credStore,
		pending:   store.New[pendingAuth](storage, params.PendingAuthKeyPrefix),
		notifier:  notifier,
	}
}

// GetValidToken returns an access token for the tenant that is good for at
// least the expiry margin. A token past the margin is refreshed first; the
// stored record is only touched when the refresh succeeds.
func (s *TokenService) GetValidToken(ctx context.Context, tenantKey string) (string, error) {
	cred, err := s.credStore.Get(ctx, tenantKey)
	if errors.Is(err, creds.ErrCredentialNotFound) {
		return "", &UnauthorizedError{TenantKey: tenantKey, Reason: ReasonNeverAuthorized}
	}
	if err != nil {
		return "", err
	}

	if time.Until(cred.ExpiresAt) > params.TokenExpiryMargin {
		return cred.AccessToken, nil
	}

	if cred.RefreshToken == "" {
		return "", &UnauthorizedError{TenantKey: tenantKey, Reason: ReasonExpired}
	}
	return s.refresh(ctx, tenantKey, cred.RefreshToken)
}

// ForceRefresh refreshes regardless of the recorded expiry. Used when the
// upstream rejects a token the store still believes in (clock skew,
// out-of-band revocation).
func (s *TokenService) ForceRefresh(ctx context.Context, tenantKey string) (string, error) {
	cred, err := s.credStore.Get(ctx, tenantKey)
	if errors.Is(err, creds.ErrCredentialNotFound) {
		return "", &UnauthorizedError{TenantKey: tenantKey, Reason: ReasonNeverAuthorized}
	}
	if err != nil {
		return "", err
	}
	if cred.RefreshToken == "" {
		return "", &UnauthorizedError{TenantKey: tenantKey, Reason: ReasonExpired}
	}
	return s.refresh(ctx, tenantKey, cred.RefreshToken)
}

func (s *TokenService) refresh(ctx context.Context, tenantKey string, refreshToken string) (string, error) {
	token, err, _ := s.group.Do(tenantKey, func() (interface{}, error) {
		return s.doRefresh(ctx, tenantKey, refreshToken)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (s *TokenService) doRefresh(ctx context.Context, tenantKey string, refreshToken string) (string, error) {
	refreshCtx, cancel := context.WithTimeout(ctx, params.TokenEndpointTimeout)
	defer cancel()

	token, err := s.oauth.TokenSource(refreshCtx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		slog.Warn("Token refresh rejected", "tenant", tenantKey, "error", err)
		audit.RecordRefreshRejected(ctx, audit.TenantRecord{TenantKey: tenantKey, Reason: err.Error()})
		if s.notifier != nil {
			go s.notifier.NotifyRefreshRejected(tenantKey, err)
		}
		return "", &UnauthorizedError{TenantKey: tenantKey, Reason: ReasonRefreshRejected, Cause: err}
	}

	// bexio rotates refresh tokens; fall back to the old one if the response
	// omits it.
	newRefreshToken := token.RefreshToken
	if newRefreshToken == "" {
		newRefreshToken = refreshToken
	}
	if err := s.credStore.Upsert(ctx, tenantKey, token.AccessToken, newRefreshToken, token.Expiry); err != nil {
		return "", err
	}

	slog.Debug("Token refreshed", "tenant", tenantKey, "expiresAt", token.Expiry)
	audit.RecordTokenRefreshed(ctx, audit.TenantRecord{TenantKey: tenantKey})
	return token.AccessToken, nil
}

// BeginAuthorization records a pending handshake and returns the bexio
// consent URL to redirect the operator to. The state parameter carries the
// tenant key.
func (s *TokenService) BeginAuthorization(ctx context.Context, tenantKey string) (string, error) {
	entry := pendingAuth{
		ID:        uuid.NewString(),
		TenantKey: tenantKey,
		CreatedAt: time.Now(),
	}
	if err := s.pending.Set(ctx, tenantKey, entry, params.PendingAuthExpiration); err != nil {
		return "", err
	}
	return s.oauth.AuthCodeURL(tenantKey), nil
}

// CompleteAuthorization exchanges the authorization code delivered to the
// callback and stores the resulting token pair. Callbacks for tenants with
// no pending handshake are rejected.
func (s *TokenService) CompleteAuthorization(ctx context.Context, code string, state string) error {
	tenantKey := state
	if _, err := s.pending.Get(ctx, tenantKey); err != nil {
		return fmt.Errorf("%w: %s", ErrAuthorizationNotPending, tenantKey)
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, params.TokenEndpointTimeout)
	defer cancel()

	token, err := s.oauth.Exchange(exchangeCtx, code)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCodeExchangeFailed, err)
	}

	if err := s.credStore.Upsert(ctx, tenantKey, token.AccessToken, token.RefreshToken, token.Expiry); err != nil {
		return err
	}
	if err := s.pending.Delete(ctx, tenantKey); err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("Could not clear pending authorization", "tenant", tenantKey, "error", err)
	}

	slog.Info("Tenant authorized", "tenant", tenantKey, "expiresAt", token.Expiry)
	audit.RecordTenantAuthorized(ctx, audit.TenantRecord{TenantKey: tenantKey})
	return nil
}

// Revoke deactivates the tenant's credential. The row and its token fields
// survive for auditing; only the active flag flips.
func (s *TokenService) Revoke(ctx context.Context, tenantKey string) error {
	if err := s.credStore.Deactivate(ctx, tenantKey); err != nil {
		return err
	}
	audit.RecordTenantRevoked(ctx, audit.TenantRecord{TenantKey: tenantKey})
	return nil
}
