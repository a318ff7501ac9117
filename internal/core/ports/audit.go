package ports

import (
	"context"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
)

// AuditRepository persists audit entries.
type AuditRepository interface {
	SaveAuditLog(ctx context.Context, log domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)
}

// AuditService records operator actions.
type AuditService interface {
	Log(ctx context.Context, action domain.AuditAction, target, details, outcome string) error
	GetLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)
}
