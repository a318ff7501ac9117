package ports

import (
	"context"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
)

// Directory is the Device Directory Service as seen by the console.
// Implementations return domain.ErrUnauthorized when the service answers 401.
type Directory interface {
	// ListDataCenters returns every datacenter without its hierarchy.
	ListDataCenters(ctx context.Context) ([]domain.DataCenter, error)

	// Hierarchy returns the full datacenter -> firewall type -> device tree.
	Hierarchy(ctx context.Context) ([]domain.DataCenter, error)

	// ListCameras returns the camera markers.
	ListCameras(ctx context.Context) ([]domain.Device, error)

	// PingDevice probes one device.
	PingDevice(ctx context.Context, ref domain.DeviceRef) (domain.SingleResult, error)

	// PingAllFirewalls probes every firewall synchronously.
	PingAllFirewalls(ctx context.Context) (domain.BatchResult, error)

	// StartCameraPingAll kicks off an asynchronous camera sweep and returns its task id.
	StartCameraPingAll(ctx context.Context) (string, error)

	// CameraPingStatus checks an asynchronous camera sweep.
	CameraPingStatus(ctx context.Context, taskID string) (domain.TaskPoll, error)
}

// TokenSource supplies the bearer token for directory requests.
type TokenSource interface {
	Token() (string, error)
}
