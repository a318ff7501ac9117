package audit

import (
	"context"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
	"github.com/lcalzada-xor/fleetmap/internal/core/ports"
)

var _ ports.AuditService = (*AuditService)(nil)

type contextKey int

const (
	actorKey contextKey = iota
	operationKey
)

// SystemActor is recorded when no operator is attached to the context.
const SystemActor = "system"

// WithActor attaches the operator performing a request to ctx.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom returns the operator attached to ctx, or SystemActor.
func ActorFrom(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey).(string); ok && a != "" {
		return a
	}
	return SystemActor
}

// WithOperation tags ctx with an operation id that audit entries will carry.
func WithOperation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, operationKey, id)
}

// OperationFrom returns the operation id attached to ctx.
func OperationFrom(ctx context.Context) string {
	id, _ := ctx.Value(operationKey).(string)
	return id
}

// SessionFingerprint identifies the directory session an entry was made under.
type SessionFingerprint interface {
	Fingerprint() string
}

type AuditService struct {
	repo    ports.AuditRepository
	session SessionFingerprint
}

func NewAuditService(repo ports.AuditRepository, session SessionFingerprint) *AuditService {
	return &AuditService{repo: repo, session: session}
}

func (s *AuditService) Log(ctx context.Context, action domain.AuditAction, target, details, outcome string) error {
	entry, err := domain.NewAuditLog(ActorFrom(ctx), action, target, details)
	if err != nil {
		return err
	}
	entry.Outcome = outcome
	entry.OperationID = OperationFrom(ctx)
	if s.session != nil {
		entry.Session = s.session.Fingerprint()
	}

	return s.repo.SaveAuditLog(ctx, *entry)
}

func (s *AuditService) GetLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	return s.repo.ListAuditLogs(ctx, limit)
}
