package model

import (
	"time"

	"gorm.io/gorm"
)

// TenantUser maps a Softr user email to the bexio tenant it belongs to.
type TenantUser struct {
	ID        uint   `gorm:"primarykey"`
	Email     string `gorm:"index;size:256;not null"`
	TenantKey string `gorm:"index;size:64;not null"`
	Disabled  bool   `gorm:"default:false;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *TenantUser) BeforeCreate(tx *gorm.DB) error {
	if u.ID == 0 {
		u.ID = GenerateID()
	}
	return nil
}
