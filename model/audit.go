package model

import "time"

type AuditEvent struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	TenantKey string    `gorm:"size:64;not null;index"`
	EventType string    `gorm:"size:64;not null;index"` // tenant_authorized, token_refreshed...
	Reason    string    `gorm:"size:512"`               // failure reason or context
	IP        string    `gorm:"size:45"`                // IPv4/IPv6 of the triggering request, if any
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (AuditEvent) TableName() string {
	return "audit"
}
