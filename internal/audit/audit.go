package audit

import (
	"context"
	"sync"

	"github.com/softrlabs/bexgate/model"
)

var auditRepo AuditEventRepository
var initOnce sync.Once

func Initialize(repo AuditEventRepository) {
	initOnce.Do(func() {
		auditRepo = repo
	})
}

const (
	EventTypeTenantAuthorized = "tenant_authorized"
	EventTypeTokenRefreshed   = "token_refreshed"
	EventTypeRefreshRejected  = "refresh_rejected"
	EventTypeTenantRevoked    = "tenant_revoked"
)

type TenantRecord struct {
	TenantKey string
	Reason    string
	IP        string
}

func record(ctx context.Context, eventType string, rec TenantRecord) error {
	if auditRepo == nil {
		return nil
	}
	return auditRepo.RecordEvent(ctx, &model.AuditEvent{
		TenantKey: rec.TenantKey,
		EventType: eventType,
		Reason:    rec.Reason,
		IP:        rec.IP,
	})
}

func RecordTenantAuthorized(ctx context.Context, rec TenantRecord) error {
	return record(ctx, EventTypeTenantAuthorized, rec)
}

func RecordTokenRefreshed(ctx context.Context, rec TenantRecord) error {
	return record(ctx, EventTypeTokenRefreshed, rec)
}

func RecordRefreshRejected(ctx context.Context, rec TenantRecord) error {
	return record(ctx, EventTypeRefreshRejected, rec)
}

func RecordTenantRevoked(ctx context.Context, rec TenantRecord) error {
	return record(ctx, EventTypeTenantRevoked, rec)
}
