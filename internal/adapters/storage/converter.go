package storage

import (
	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
)

// toDomain converts a database model to a domain entity.
func toDomain(m AuditModel) domain.AuditLog {
	return domain.AuditLog{
		ID:          m.ID,
		Actor:       m.Actor,
		Action:      domain.AuditAction(m.Action),
		Target:      m.Target,
		Details:     m.Details,
		Outcome:     m.Outcome,
		Session:     m.Session,
		OperationID: m.OperationID,
		Timestamp:   m.Timestamp,
	}
}

// toModel converts a domain entity to a database model.
func toModel(l domain.AuditLog) AuditModel {
	return AuditModel{
		ID:          l.ID,
		Actor:       l.Actor,
		Action:      string(l.Action),
		Target:      l.Target,
		Details:     l.Details,
		Outcome:     l.Outcome,
		Session:     l.Session,
		OperationID: l.OperationID,
		Timestamp:   l.Timestamp.UTC(),
	}
}
