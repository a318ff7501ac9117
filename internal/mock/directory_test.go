package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
)

func newDirectory(t *testing.T) *Directory {
	t.Helper()
	f, err := DefaultFixture()
	require.NoError(t, err)
	return NewDirectory(f, 42)
}

func TestDefaultFixture(t *testing.T) {
	f, err := DefaultFixture()
	require.NoError(t, err)

	assert.Len(t, f.DataCenters, 3)
	assert.Len(t, f.Cameras, 3)
	assert.Equal(t, 2, f.SweepPendingPolls)
}

func TestParseFixture_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"duplicate device", "datacenters:\n  - id: '1'\n    firewall_types:\n      - id: a\n        devices:\n          - {id: '1'}\n          - {id: '1'}\n"},
		{"unknown behavior", "cameras:\n  - {id: '1', behavior: sleepy}\n"},
		{"missing id", "cameras:\n  - {name: x}\n"},
		{"not yaml", "datacenters: [:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFixture([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestDirectory_ListIsFlat(t *testing.T) {
	d := newDirectory(t)

	dcs, err := d.ListDataCenters(context.Background())
	require.NoError(t, err)

	require.Len(t, dcs, 3)
	assert.Empty(t, dcs[0].FirewallTypes)
	require.NotNil(t, dcs[0].Position)
	assert.Equal(t, "maintenance", dcs[2].Status)
}

func TestDirectory_Hierarchy(t *testing.T) {
	d := newDirectory(t)

	tree, err := d.Hierarchy(context.Background())
	require.NoError(t, err)

	devices := tree[0].Devices()
	require.Len(t, devices, 3)
	assert.Equal(t, "firewall:100", devices[0].ID)
	assert.Equal(t, "10", devices[0].FirewallTypeID)
}

func TestDirectory_PingDevice(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()

	res, err := d.PingDevice(ctx, domain.DeviceRef{Kind: domain.KindFirewall, RemoteID: "100"})
	require.NoError(t, err)
	assert.Equal(t, "online", res.Result.Status)
	require.NotNil(t, res.Result.ResponseTime)

	res, err = d.PingDevice(ctx, domain.DeviceRef{Kind: domain.KindFirewall, RemoteID: "200"})
	require.NoError(t, err)
	assert.Equal(t, "offline", res.Result.Status)

	_, err = d.PingDevice(ctx, domain.DeviceRef{Kind: domain.KindCamera, RemoteID: "100"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDirectory_PingAllFirewalls(t *testing.T) {
	d := newDirectory(t)

	res, err := d.PingAllFirewalls(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, res.Total)
	assert.Len(t, res.Results, 6)
	assert.Equal(t, res.Total, res.Online+res.Offline+res.Errors)
}

func TestDirectory_Sweep(t *testing.T) {
	d := newDirectory(t)
	ctx := context.Background()

	id, err := d.StartCameraPingAll(ctx)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		poll, err := d.CameraPingStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskPending, poll.State)
	}
	poll, err := d.CameraPingStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, poll.State)
	assert.Len(t, poll.Results, 3)

	poll, err = d.CameraPingStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskFailed, poll.State, "finished tasks are forgotten")
}

func TestDirectory_Unauthorized(t *testing.T) {
	d := newDirectory(t)
	d.SetUnauthorized(true)

	_, err := d.ListDataCenters(context.Background())

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
