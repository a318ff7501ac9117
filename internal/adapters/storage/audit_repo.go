package storage

import (
	"context"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
	"github.com/lcalzada-xor/fleetmap/internal/core/ports"
)

// DefaultAuditLimit caps ListAuditLogs when the caller passes no limit.
const DefaultAuditLimit = 100

var _ ports.AuditRepository = (*SQLiteAdapter)(nil)

func (a *SQLiteAdapter) SaveAuditLog(ctx context.Context, log domain.AuditLog) error {
	model := toModel(log)
	return a.db.WithContext(ctx).Create(&model).Error
}

// ListAuditLogs returns the newest entries first.
func (a *SQLiteAdapter) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = DefaultAuditLimit
	}

	var models []AuditModel
	if err := a.db.WithContext(ctx).Order("timestamp desc, id desc").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}

	logs := make([]domain.AuditLog, len(models))
	for i, m := range models {
		logs[i] = toDomain(m)
	}
	return logs, nil
}
