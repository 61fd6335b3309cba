package creds

import (
	"context"
	"errors"
	"time"

	"github.com/softrlabs/bexgate/model"
	"gorm.io/gorm"
)

// CredentialStore is the durable tenant → token mapping. Get only ever
// returns active records with decrypted tokens; a deactivated or missing row
// is ErrCredentialNotFound either way, so callers cannot tell a revoked
// tenant apart from one that never connected.
type CredentialStore struct {
	repo   CredentialRepository
	cipher TokenCipher
}

func (s *CredentialStore) Get(ctx context.Context, tenantKey string) (*model.Credential, error) {
	cred, err := s.repo.GetByTenantKey(ctx, tenantKey)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}
	if !cred.IsActive {
		return nil, ErrCredentialNotFound
	}

	accessToken, err := s.cipher.Decrypt(cred.AccessToken)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.cipher.Decrypt(cred.RefreshToken)
	if err != nil {
		return nil, err
	}

	out := *cred
	out.AccessToken = accessToken
	out.RefreshToken = refreshToken
	return &out, nil
}

func (s *CredentialStore) Upsert(ctx context.Context, tenantKey string, accessToken string, refreshToken string, expiresAt time.Time) error {
	encAccess, err := s.cipher.Encrypt(accessToken)
	if err != nil {
		return err
	}
	encRefresh, err := s.cipher.Encrypt(refreshToken)
	if err != nil {
		return err
	}
	return s.repo.Upsert(ctx, &model.Credential{
		TenantKey:    tenantKey,
		AccessToken:  encAccess,
		RefreshToken: encRefresh,
		ExpiresAt:    expiresAt,
		IsActive:     true,
		UpdatedAt:    time.Now(),
	})
}

func (s *CredentialStore) Deactivate(ctx context.Context, tenantKey string) error {
	return s.repo.Deactivate(ctx, tenantKey)
}

func NewCredentialStore(repo CredentialRepository, cipher TokenCipher) *CredentialStore {
	return &CredentialStore{
		repo:   repo,
		cipher: cipher,
	}
}
