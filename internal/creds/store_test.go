package creds

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/softrlabs/bexgate/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memoryCredentialRepo struct {
	mu   sync.Mutex
	rows map[string]model.Credential
}

func newMemoryCredentialRepo() *memoryCredentialRepo {
	return &memoryCredentialRepo{rows: make(map[string]model.Credential)}
}

func (f *memoryCredentialRepo) GetByTenantKey(ctx context.Context, tenantKey string) (*model.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[tenantKey]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := row
	return &out, nil
}

func (f *memoryCredentialRepo) Upsert(ctx context.Context, cred *model.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[cred.TenantKey] = *cred
	return nil
}

func (f *memoryCredentialRepo) Deactivate(ctx context.Context, tenantKey string) error {
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

func TestCredentialStoreRoundTrip(t *testing.T) {
	store := NewCredentialStore(newMemoryCredentialRepo(), NewNullCipher())
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour).Truncate(time.Second)

	require.NoError(t, store.Upsert(ctx, "t1", "access", "refresh", expiresAt))

	cred, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "access", cred.AccessToken)
	require.Equal(t, "refresh", cred.RefreshToken)
	require.True(t, cred.ExpiresAt.Equal(expiresAt))
	require.True(t, cred.IsActive)
}

func TestCredentialStoreGetUnknown(t *testing.T) {
	store := NewCredentialStore(newMemoryCredentialRepo(), NewNullCipher())

	_, err := store.Get(context.Background(), "t-unknown")
	require.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestCredentialStoreUpsertOverwrites(t *testing.T) {
	store := NewCredentialStore(newMemoryCredentialRepo(), NewNullCipher())
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "t1", "a1", "r1", time.Now().Add(time.Hour)))
	require.NoError(t, store.Upsert(ctx, "t1", "a2", "r2", time.Now().Add(2*time.Hour)))

	cred, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "a2", cred.AccessToken)
	require.Equal(t, "r2", cred.RefreshToken)
}

func TestCredentialStoreDeactivate(t *testing.T) {
	repo := newMemoryCredentialRepo()
	store := NewCredentialStore(repo, NewNullCipher())
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "t1", "access", "refresh", time.Now().Add(time.Hour)))
	require.NoError(t, store.Deactivate(ctx, "t1"))

	_, err := store.Get(ctx, "t1")
	require.ErrorIs(t, err, ErrCredentialNotFound)

	// Token fields survive deactivation for auditability.
	row := repo.rows["t1"]
	require.Equal(t, "access", row.AccessToken)
	require.Equal(t, "refresh", row.RefreshToken)
}

func TestCredentialStoreEncryptsAtRest(t *testing.T) {
	repo := newMemoryCredentialRepo()
	cipher, err := NewAESCipher("master-key")
	require.NoError(t, err)
	store := NewCredentialStore(repo, cipher)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "t1", "access", "refresh", time.Now().Add(time.Hour)))

	// The repo row must not contain plaintext tokens.
	row := repo.rows["t1"]
	require.NotEqual(t, "access", row.AccessToken)
	require.NotEqual(t, "refresh", row.RefreshToken)

	cred, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "access", cred.AccessToken)
	require.Equal(t, "refresh", cred.RefreshToken)
}
