// Package web is the HTTP and WebSocket transport of the console.
package web

import (
	"context"

	websocket "github.com/lcalzada-xor/fleetmap/internal/adapters/web/websocket"
	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
	"github.com/lcalzada-xor/fleetmap/internal/core/services/console"
	"github.com/lcalzada-xor/fleetmap/internal/core/services/presentation"
	"github.com/lcalzada-xor/fleetmap/internal/core/services/session"
)

// ConsoleService is everything the transport needs from the console.
type ConsoleService interface {
	LoadTopology(ctx context.Context) (domain.Topology, error)
	ExpandDataCenter(ctx context.Context, id string) (domain.DataCenter, error)
	PingDevice(ctx context.Context, ref domain.DeviceRef) (domain.StatusRecord, error)
	PingAllFirewalls(ctx context.Context) (domain.BatchSummary, error)
	StartCameraSweep(ctx context.Context) (domain.TaskInfo, error)
	Task(ctx context.Context, id string) (domain.TaskInfo, error)
	CancelTask(ctx context.Context, id string) (domain.TaskInfo, error)
	MapView(ctx context.Context) (*presentation.MapView, error)
	Stats(ctx context.Context) (domain.Stats, error)
	SessionState() session.State
	RenewSession(ctx context.Context, token string) error
	AuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)
}

var _ ConsoleService = (*console.Console)(nil)

// WSManager is re-exported from the websocket subpackage
type WSManager = websocket.WSManager

// NewWSManager creates a new WSManager
func NewWSManager(views websocket.ViewSource, allowedOrigins []string) *WSManager {
	return websocket.NewWSManager(views, allowedOrigins)
}
