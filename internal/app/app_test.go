package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/fleetmap/internal/config"
	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
)

func mockConfig(t *testing.T) *config.Config {
	return &config.Config{
		Addr:      "127.0.0.1:0",
		GRPCPort:  0,
		MockMode:  true,
		DBPath:    filepath.Join(t.TempDir(), "audit.db"),
		Latitude:  40.4168,
		Longitude: -3.7038,
		Probe: config.ProbeConfig{
			PollInterval: 5 * time.Millisecond,
			TaskTimeout:  time.Second,
			RateLimit:    30,
		},
	}
}

func TestApplication_MockModeLifecycle(t *testing.T) {
	application, err := New(mockConfig(t))
	require.NoError(t, err)
	assert.True(t, application.Session.State().Valid, "mock mode starts with a usable session")
	assert.Nil(t, application.Feed, "feed stays off without brokers")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	require.Eventually(t, application.Topology.Loaded, 2*time.Second, 10*time.Millisecond)

	rec, err := application.Console.PingDevice(ctx, domain.DeviceRef{Kind: domain.KindFirewall, RemoteID: "100"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOnline, rec.Status)

	view, err := application.Console.MapView(ctx)
	require.NoError(t, err)
	assert.Len(t, view.DataCenters, 3)

	logs, err := application.AuditService.GetLogs(ctx, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, logs)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("application did not stop")
	}
}

func TestApplication_BadFixture(t *testing.T) {
	cfg := mockConfig(t)
	cfg.MockFixture = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := New(cfg)
	assert.Error(t, err)
}
