package domain

import (
	"errors"
	"time"
)

// AuditAction represents a type-safe action identifier for the audit log.
type AuditAction string

const (
	ActionTopologyLoad       AuditAction = "TOPOLOGY_LOAD"
	ActionDataCenterExpand   AuditAction = "DATACENTER_EXPAND"
	ActionProbeDevice        AuditAction = "PROBE_DEVICE"
	ActionProbeBatch         AuditAction = "PROBE_BATCH"
	ActionProbeSweep         AuditAction = "PROBE_SWEEP"
	ActionSweepCancel        AuditAction = "PROBE_SWEEP_CANCEL"
	ActionSessionInvalidated AuditAction = "SESSION_INVALIDATED"
	ActionSessionRenewed     AuditAction = "SESSION_RENEWED"
)

var (
	ErrInvalidAction = errors.New("invalid audit action")
	ErrMissingActor  = errors.New("actor is required for auditing")
)

// AuditLog records an operator action against the directory.
type AuditLog struct {
	ID          uint        `json:"id"`
	Actor       string      `json:"actor"`
	Action      AuditAction `json:"action"`
	Target      string      `json:"target"`
	Details     string      `json:"details"`
	Outcome     string      `json:"outcome"`
	Session     string      `json:"session"`
	OperationID string      `json:"operation_id"`
	Timestamp   time.Time   `json:"timestamp"`
}

// NewAuditLog is the designated factory for valid AuditLog entities.
func NewAuditLog(actor string, action AuditAction, target, details string) (*AuditLog, error) {
	if actor == "" {
		return nil, ErrMissingActor
	}
	if !isValidAction(action) {
		return nil, ErrInvalidAction
	}
	return &AuditLog{
		Actor:     actor,
		Action:    action,
		Target:    target,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}, nil
}

func isValidAction(action AuditAction) bool {
	switch action {
	case ActionTopologyLoad, ActionDataCenterExpand, ActionProbeDevice, ActionProbeBatch,
		ActionProbeSweep, ActionSweepCancel, ActionSessionInvalidated, ActionSessionRenewed:
		return true
	}
	return false
}
