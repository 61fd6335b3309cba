package model

import (
	"time"

	"gorm.io/gorm"
)

// Credential holds the bexio OAuth2 token pair for one tenant. There is at
// most one row per tenant key; revocation flips IsActive instead of deleting
// the row so old tokens remain auditable.
type Credential struct {
	ID           uint      `gorm:"primarykey"`
	TenantKey    string    `gorm:"uniqueIndex;size:64;not null"`
	AccessToken  string    `gorm:"size:4096;not null"`
	RefreshToken string    `gorm:"size:4096"`
	ExpiresAt    time.Time `gorm:"not null"`
	IsActive     bool      `gorm:"default:true;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (c *Credential) BeforeCreate(tx *gorm.DB) error {
	if c.ID == 0 {
		c.ID = GenerateID()
	}
	return nil
}
