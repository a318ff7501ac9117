package probe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
)

func ms(v float64) *float64 { return &v }

func TestNormalize(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		outcome domain.ProbeOutcome
		want    map[string]domain.DeviceStatus
		wantErr error
	}{
		{
			name: "single online",
			outcome: domain.SingleResult{
				Ref:    domain.DeviceRef{Kind: domain.KindFirewall, RemoteID: "4"},
				Result: domain.DeviceResult{Status: "online", ResponseTime: ms(3.2)},
			},
			want: map[string]domain.DeviceStatus{"firewall:4": domain.StatusOnline},
		},
		{
			name: "single unknown status is an error record",
			outcome: domain.SingleResult{
				Ref:    domain.DeviceRef{Kind: domain.KindCamera, RemoteID: "9"},
				Result: domain.DeviceResult{Status: "maybe"},
			},
			want: map[string]domain.DeviceStatus{"camera:9": domain.StatusError},
		},
		{
			name: "batch skips results without id",
			outcome: domain.BatchResult{
				Kind: domain.KindFirewall,
				Results: []domain.DeviceResult{
					{RemoteID: "1", Status: "online"},
					{RemoteID: "", Status: "online"},
					{RemoteID: "2", Status: "offline"},
				},
			},
			want: map[string]domain.DeviceStatus{
				"firewall:1": domain.StatusOnline,
				"firewall:2": domain.StatusOffline,
			},
		},
		{
			name: "completed task",
			outcome: domain.TaskPoll{
				Kind:    domain.KindCamera,
				State:   domain.TaskCompleted,
				Results: []domain.DeviceResult{{RemoteID: "3", Status: "error", Message: "timeout"}},
			},
			want: map[string]domain.DeviceStatus{"camera:3": domain.StatusError},
		},
		{
			name:    "pending task has no updates",
			outcome: domain.TaskPoll{Kind: domain.KindCamera, State: domain.TaskPending},
			want:    map[string]domain.DeviceStatus{},
		},
		{
			name: "failed task applies nothing",
			outcome: domain.TaskPoll{
				Kind:    domain.KindCamera,
				State:   domain.TaskFailed,
				Message: "worker crashed",
				Results: []domain.DeviceResult{{RemoteID: "3", Status: "online"}},
			},
			wantErr: domain.ErrTaskFailed,
		},
		{
			name:    "unknown task state",
			outcome: domain.TaskPoll{Kind: domain.KindCamera, State: "exploded"},
			wantErr: domain.ErrProtocol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.outcome, now)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for id, status := range tt.want {
				rec, ok := got[id]
				require.True(t, ok, "missing %s", id)
				assert.Equal(t, status, rec.Status)
				require.NotNil(t, rec.LastUpdate)
				assert.True(t, rec.LastUpdate.Equal(now))
			}
		})
	}
}

func TestNormalize_KeepsMessageAndLatency(t *testing.T) {
	got, err := Normalize(domain.SingleResult{
		Ref:    domain.DeviceRef{Kind: domain.KindFirewall, RemoteID: "1"},
		Result: domain.DeviceResult{Status: "offline", ResponseTime: ms(120), Message: "no route"},
	}, time.Now())
	require.NoError(t, err)

	rec := got["firewall:1"]
	assert.Equal(t, "no route", rec.Error)
	require.NotNil(t, rec.ResponseTime)
	assert.Equal(t, 120.0, *rec.ResponseTime)
}
