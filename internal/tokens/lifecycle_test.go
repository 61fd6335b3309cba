package tokens

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/softrlabs/bexgate/internal/creds"
	"github.com/softrlabs/bexgate/internal/store"
	"github.com/softrlabs/bexgate/model"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

type fakeCredentialRepo struct {
	mu   sync.Mutex
	rows map[string]model.Credential
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{rows: make(map[string]model.Credential)}
}

func (f *fakeCredentialRepo) GetByTenantKey(ctx context.Context, tenantKey string) (*model.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[tenantKey]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := row
	return &out, nil
}

func (f *fakeCredentialRepo) Upsert(ctx context.Context, cred *model.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[cred.TenantKey] = *cred
	return nil
}

func (f *fakeCredentialRepo) Deactivate(ctx context.Context, tenantKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[tenantKey]
	if !ok {
		return nil
	}
	row.IsActive = false
	f.rows[tenantKey] = row
	return nil
}

// tokenEndpoint is a stand-in for bexio's OAuth2 token endpoint. It counts
// refresh and exchange calls separately.
type tokenEndpoint struct {
	server        *httptest.Server
	mu            sync.Mutex
	refreshCalls  int
	exchangeCalls int
	rejectRefresh bool
	accessToken   string
	refreshToken  string
	expiresIn     int
}

func newTokenEndpoint(t *testing.T) *tokenEndpoint {
	ep := &tokenEndpoint{
		accessToken:  "AT-new",
		refreshToken: "RT-new",
		expiresIn:    3600,
	}
	ep.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		ep.mu.Lock()
		defer ep.mu.Unlock()
		switch r.FormValue("grant_type") {
		case "refresh_token":
			ep.refreshCalls++
			if ep.rejectRefresh {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
		case "authorization_code":
			ep.exchangeCalls++
		default:
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  ep.accessToken,
			"refresh_token": ep.refreshToken,
			"token_type":    "Bearer",
			"expires_in":    ep.expiresIn,
		})
	}))
	t.Cleanup(ep.server.Close)
	return ep
}

func (ep *tokenEndpoint) counts() (refreshes int, exchanges int) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.refreshCalls, ep.exchangeCalls
}

func newTestService(t *testing.T, repo creds.CredentialRepository, ep *tokenEndpoint) *TokenService {
	oauthConfig := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/authorize/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:   ep.server.URL + "/auth",
			TokenURL:  ep.server.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	credStore := creds.NewCredentialStore(repo, creds.NewNullCipher())
	return NewTokenService(oauthConfig, credStore, store.NewMemoryStorage(), nil)
}

func TestGetValidTokenNeverAuthorized(t *testing.T) {
	ep := newTokenEndpoint(t)
	svc := newTestService(t, newFakeCredentialRepo(), ep)

	_, err := svc.GetValidToken(context.Background(), "t-unknown")

	var unauthorized *UnauthorizedError
	require.ErrorAs(t, err, &unauthorized)
	require.Equal(t, ReasonNeverAuthorized, unauthorized.Reason)
	refreshes, _ := ep.counts()
	require.Zero(t, refreshes, "no refresh attempt expected for unknown tenants")
}

func TestGetValidTokenFreshTokenNoNetwork(t *testing.T) {
	ep := newTokenEndpoint(t)
	repo := newFakeCredentialRepo()
	repo.rows["t1"] = model.Credential{
		TenantKey:    "t1",
		AccessToken:  "AT-current",
		RefreshToken: "RT-current",
		ExpiresAt:    time.Now().Add(time.Hour),
		IsActive:     true,
	}
	svc := newTestService(t, repo, ep)

	token, err := svc.GetValidToken(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, "AT-current", token)

	refreshes, exchanges := ep.counts()
	require.Zero(t, refreshes)
	require.Zero(t, exchanges)
}

func TestGetValidTokenRefreshesExpired(t *testing.T) {
	ep := newTokenEndpoint(t)
	repo := newFakeCredentialRepo()
	repo.rows["t1"] = model.Credential{
		TenantKey:    "t1",
		AccessToken:  "AT-stale",
		RefreshToken: "RT-current",
		ExpiresAt:    time.Now().Add(-time.Minute),
		IsActive:     true,
	}
	svc := newTestService(t, repo, ep)

	token, err := svc.GetValidToken(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, "AT-new", token)

	refreshes, _ := ep.counts()
	require.Equal(t, 1, refreshes)

	stored := repo.rows["t1"]
	require.Equal(t, "AT-new", stored.AccessToken)
	require.Equal(t, "RT-new", stored.RefreshToken)
	require.WithinDuration(t, time.Now().Add(time.Hour), stored.ExpiresAt, time.Minute)

	// The refreshed token is now fresh; a second call must not refresh again.
	token, err = svc.GetValidToken(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, "AT-new", token)
	refreshes, _ = ep.counts()
	require.Equal(t, 1, refreshes)
}

func TestGetValidTokenExpiryMargin(t *testing.T) {
	ep := newTokenEndpoint(t)
	repo := newFakeCredentialRepo()
	// Expires within the safety margin: still counts as expired.
	repo.rows["t1"] = model.Credential{
		TenantKey:    "t1",
		AccessToken:  "AT-stale",
		RefreshToken: "RT-current",
		ExpiresAt:    time.Now().Add(5 * time.Second),
		IsActive:     true,
	}
	svc := newTestService(t, repo, ep)

	token, err := svc.GetValidToken(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, "AT-new", token)
	refreshes, _ := ep.counts()
	require.Equal(t, 1, refreshes)
}

func TestGetValidTokenRefreshRejectedKeepsRecord(t *testing.T) {
	ep := newTokenEndpoint(t)
	ep.rejectRefresh = true
	repo := newFakeCredentialRepo()
	repo.rows["t1"] = model.Credential{
		TenantKey:    "t1",
		AccessToken:  "AT-stale",
		RefreshToken: "RT-dead",
		ExpiresAt:    time.Now().Add(-time.Minute),
		IsActive:     true,
	}
	svc := newTestService(t, repo, ep)

	_, err := svc.GetValidToken(context.Background(), "t1")

	var unauthorized *UnauthorizedError
	require.ErrorAs(t, err, &unauthorized)
	require.Equal(t, ReasonRefreshRejected, unauthorized.Reason)

	// The stored record survives untouched so a human can re-authorize.
	stored := repo.rows["t1"]
	require.Equal(t, "AT-stale", stored.AccessToken)
	require.Equal(t, "RT-dead", stored.RefreshToken)
	require.True(t, stored.IsActive)
}

func TestGetValidTokenExpiredWithoutRefreshToken(t *testing.T) {
	ep := newTokenEndpoint(t)
	repo := newFakeCredentialRepo()
	repo.rows["t1"] = model.Credential{
		TenantKey:   "t1",
		AccessToken: "AT-static",
		ExpiresAt:   time.Now().Add(-time.Minute),
		IsActive:    true,
	}
	svc := newTestService(t, repo, ep)

	_, err := svc.GetValidToken(context.Background(), "t1")

	var unauthorized *UnauthorizedError
	require.ErrorAs(t, err, &unauthorized)
	require.Equal(t, ReasonExpired, unauthorized.Reason)
	refreshes, _ := ep.counts()
	require.Zero(t, refreshes)
}

func TestAuthorizationHandshake(t *testing.T) {
	ep := newTokenEndpoint(t)
	ep.accessToken = "AT1"
	ep.refreshToken = "RT1"
	repo := newFakeCredentialRepo()
	svc := newTestService(t, repo, ep)
	ctx := context.Background()

	redirectURL, err := svc.BeginAuthorization(ctx, "t1")
	require.NoError(t, err)
	require.Contains(t, redirectURL, "response_type=code")
	require.Contains(t, redirectURL, "state=t1")

	require.NoError(t, svc.CompleteAuthorization(ctx, "abc", "t1"))
	_, exchanges := ep.counts()
	require.Equal(t, 1, exchanges)

	token, err := svc.GetValidToken(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "AT1", token)

	// Zero additional network calls once the handshake is done.
	refreshes, exchanges := ep.counts()
	require.Zero(t, refreshes)
	require.Equal(t, 1, exchanges)
}

func TestCompleteAuthorizationWithoutPending(t *testing.T) {
	ep := newTokenEndpoint(t)
	svc := newTestService(t, newFakeCredentialRepo(), ep)

	err := svc.CompleteAuthorization(context.Background(), "abc", "t-unknown")
	require.ErrorIs(t, err, ErrAuthorizationNotPending)
	_, exchanges := ep.counts()
	require.Zero(t, exchanges)
}

func TestForceRefreshBypassesExpiryCheck(t *testing.T) {
	ep := newTokenEndpoint(t)
	repo := newFakeCredentialRepo()
	repo.rows["t1"] = model.Credential{
		TenantKey:    "t1",
		AccessToken:  "AT-looks-fine",
		RefreshToken: "RT-current",
		ExpiresAt:    time.Now().Add(time.Hour),
		IsActive:     true,
	}
	svc := newTestService(t, repo, ep)

	token, err := svc.ForceRefresh(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, "AT-new", token)
	refreshes, _ := ep.counts()
	require.Equal(t, 1, refreshes)
}

func TestRevokeHidesCredential(t *testing.T) {
	ep := newTokenEndpoint(t)
	repo := newFakeCredentialRepo()
	repo.rows["t1"] = model.Credential{
		TenantKey:    "t1",
		AccessToken:  "AT-current",
		RefreshToken: "RT-current",
		ExpiresAt:    time.Now().Add(time.Hour),
		IsActive:     true,
	}
	svc := newTestService(t, repo, ep)
	ctx := context.Background()

	require.NoError(t, svc.Revoke(ctx, "t1"))

	_, err := svc.GetValidToken(ctx, "t1")
	var unauthorized *UnauthorizedError
	require.ErrorAs(t, err, &unauthorized)
	require.Equal(t, ReasonNeverAuthorized, unauthorized.Reason)

	// Tokens are kept on the row for auditability.
	stored := repo.rows["t1"]
	require.False(t, stored.IsActive)
	require.Equal(t, "AT-current", stored.AccessToken)
}

func TestNotifierToldAboutRejectedRefresh(t *testing.T) {
	ep := newTokenEndpoint(t)
	ep.rejectRefresh = true
	repo := newFakeCredentialRepo()
	repo.rows["t1"] = model.Credential{
		TenantKey:    "t1",
		AccessToken:  "AT-stale",
		RefreshToken: "RT-dead",
		ExpiresAt:    time.Now().Add(-time.Minute),
		IsActive:     true,
	}

	notified := make(chan string, 1)
	svc := newTestService(t, repo, ep)
	svc.notifier = notifierFunc(func(tenantKey string, cause error) {
		notified <- tenantKey
	})

	_, err := svc.GetValidToken(context.Background(), "t1")
	require.Error(t, err)

	select {
	case tenantKey := <-notified:
		require.Equal(t, "t1", tenantKey)
	case <-time.After(time.Second):
		t.Fatal("notifier was not called")
	}
}

type notifierFunc func(tenantKey string, cause error)

func (f notifierFunc) NotifyRefreshRejected(tenantKey string, cause error) {
	f(tenantKey, cause)
}
