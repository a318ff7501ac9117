package probe

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
)

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) ListDataCenters(ctx context.Context) ([]domain.DataCenter, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.DataCenter), args.Error(1)
}

func (m *mockDirectory) Hierarchy(ctx context.Context) ([]domain.DataCenter, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.DataCenter), args.Error(1)
}

func (m *mockDirectory) ListCameras(ctx context.Context) ([]domain.Device, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Device), args.Error(1)
}

func (m *mockDirectory) PingDevice(ctx context.Context, ref domain.DeviceRef) (domain.SingleResult, error) {
	args := m.Called(ctx, ref)
	return args.Get(0).(domain.SingleResult), args.Error(1)
}

func (m *mockDirectory) PingAllFirewalls(ctx context.Context) (domain.BatchResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.BatchResult), args.Error(1)
}

func (m *mockDirectory) StartCameraPingAll(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockDirectory) CameraPingStatus(ctx context.Context, taskID string) (domain.TaskPoll, error) {
	args := m.Called(ctx, taskID)
	return args.Get(0).(domain.TaskPoll), args.Error(1)
}
