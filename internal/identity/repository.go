package identity

import (
	"context"

	"github.com/softrlabs/bexgate/model"
	"gorm.io/gorm"
)

type TenantUserRepository interface {
	FindByEmail(ctx context.Context, email string) ([]*model.TenantUser, error)
}

type tenantUserRepository struct {
	db *gorm.DB
}

func (r *tenantUserRepository) FindByEmail(ctx context.Context, email string) ([]*model.TenantUser, error) {
	var users []*model.TenantUser
	err := r.db.WithContext(ctx).
		Where("email = ? AND disabled = ?", email, false).
		Find(&users).Error
	return users, err
}

func NewTenantUserRepository(db *gorm.DB) TenantUserRepository {
	return &tenantUserRepository{
		db: db,
	}
}
