package web

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
	"github.com/lcalzada-xor/fleetmap/internal/core/services/presentation"
	"github.com/lcalzada-xor/fleetmap/internal/core/services/session"
)

// MockConsoleService is a mock of ConsoleService
type MockConsoleService struct {
	mock.Mock
}

var _ ConsoleService = (*MockConsoleService)(nil)

func (m *MockConsoleService) LoadTopology(ctx context.Context) (domain.Topology, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.Topology), args.Error(1)
}

func (m *MockConsoleService) ExpandDataCenter(ctx context.Context, id string) (domain.DataCenter, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.DataCenter), args.Error(1)
}

func (m *MockConsoleService) PingDevice(ctx context.Context, ref domain.DeviceRef) (domain.StatusRecord, error) {
	args := m.Called(ctx, ref)
	return args.Get(0).(domain.StatusRecord), args.Error(1)
}

func (m *MockConsoleService) PingAllFirewalls(ctx context.Context) (domain.BatchSummary, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.BatchSummary), args.Error(1)
}

func (m *MockConsoleService) StartCameraSweep(ctx context.Context) (domain.TaskInfo, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.TaskInfo), args.Error(1)
}

func (m *MockConsoleService) Task(ctx context.Context, id string) (domain.TaskInfo, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.TaskInfo), args.Error(1)
}

func (m *MockConsoleService) CancelTask(ctx context.Context, id string) (domain.TaskInfo, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.TaskInfo), args.Error(1)
}

func (m *MockConsoleService) MapView(ctx context.Context) (*presentation.MapView, error) {
	args := m.Called(ctx)
	view, _ := args.Get(0).(*presentation.MapView)
	return view, args.Error(1)
}

func (m *MockConsoleService) Stats(ctx context.Context) (domain.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.Stats), args.Error(1)
}

func (m *MockConsoleService) SessionState() session.State {
	args := m.Called()
	return args.Get(0).(session.State)
}

func (m *MockConsoleService) RenewSession(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockConsoleService) AuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	args := m.Called(ctx, limit)
	logs, _ := args.Get(0).([]domain.AuditLog)
	return logs, args.Error(1)
}
