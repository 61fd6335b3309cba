package creds

import (
	"context"

	"github.com/softrlabs/bexgate/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CredentialRepository interface {
	GetByTenantKey(ctx context.Context, tenantKey string) (*model.Credential, error)
	Upsert(ctx context.Context, cred *model.Credential) error
	Deactivate(ctx context.Context, tenantKey string) error
}

type credentialRepository struct {
	db *gorm.DB
}

func (r *credentialRepository) GetByTenantKey(ctx context.Context, tenantKey string) (*model.Credential, error) {
	var cred model.Credential
	err := r.db.WithContext(ctx).Where("tenant_key = ?", tenantKey).First(&cred).Error
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *credentialRepository) Upsert(ctx context.Context, cred *model.Credential) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "expires_at", "is_active", "updated_at"}),
		}).
		Create(cred).Error
}

func (r *credentialRepository) Deactivate(ctx context.Context, tenantKey string) error {
	return r.db.WithContext(ctx).
		Model(&model.Credential{}).
		Where("tenant_key = ?", tenantKey).
		Update("is_active", false).Error
}

func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &credentialRepository{
		db: db,
	}
}
