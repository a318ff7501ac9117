package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func fw(id string) domain.Device {
	return domain.NewDevice(domain.DeviceRef{Kind: domain.KindFirewall, RemoteID: id}, "fw-"+id, "10.0.0."+id)
}

func datacenter(id string, devices ...domain.Device) domain.DataCenter {
	return domain.DataCenter{
		ID:       id,
		Name:     "DC " + id,
		Expanded: true,
		FirewallTypes: []domain.FirewallType{
			{ID: "ft-" + id, Name: "edge", Devices: devices},
		},
	}
}

func rec(status domain.DeviceStatus, age time.Duration) domain.StatusRecord {
	return domain.TerminalRecord(status, nil, "", now.Add(-age))
}

func snapshot(records map[string]domain.StatusRecord) domain.StatusSnapshot {
	return domain.StatusSnapshot{Version: 1, Records: records}
}

func TestDataCenterStatus(t *testing.T) {
	tests := []struct {
		name    string
		dc      domain.DataCenter
		records map[string]domain.StatusRecord
		want    domain.AggregateStatus
	}{
		{
			name: "no devices",
			dc:   datacenter("1"),
			want: domain.AggregateUnknown,
		},
		{
			name: "never expanded",
			dc:   domain.DataCenter{ID: "1"},
			want: domain.AggregateUnknown,
		},
		{
			name: "all online",
			dc:   datacenter("1", fw("1"), fw("2")),
			records: map[string]domain.StatusRecord{
				"firewall:1": rec(domain.StatusOnline, time.Minute),
				"firewall:2": rec(domain.StatusOnline, 2*time.Minute),
			},
			want: domain.AggregateOnline,
		},
		{
			name: "all non-online",
			dc:   datacenter("1", fw("1"), fw("2")),
			records: map[string]domain.StatusRecord{
				"firewall:1": rec(domain.StatusOffline, time.Minute),
				"firewall:2": rec(domain.StatusError, time.Minute),
			},
			want: domain.AggregateOffline,
		},
		{
			name: "online, offline and absent is partial",
			dc:   datacenter("D", fw("1"), fw("2"), fw("3")),
			records: map[string]domain.StatusRecord{
				"firewall:1": rec(domain.StatusOnline, time.Minute),
				"firewall:2": rec(domain.StatusOffline, time.Minute),
			},
			want: domain.AggregatePartial,
		},
		{
			name: "sole device expired",
			dc:   datacenter("1", fw("1")),
			records: map[string]domain.StatusRecord{
				"firewall:1": rec(domain.StatusOnline, 6*time.Minute),
			},
			want: domain.AggregateUnknown,
		},
		{
			name: "every record expired",
			dc:   datacenter("1", fw("1"), fw("2")),
			records: map[string]domain.StatusRecord{
				"firewall:1": rec(domain.StatusOnline, 6*time.Minute),
				"firewall:2": rec(domain.StatusOffline, 10*time.Minute),
			},
			want: domain.AggregateUnknown,
		},
		{
			name: "expired device is excluded",
			dc:   datacenter("1", fw("1"), fw("2")),
			records: map[string]domain.StatusRecord{
				"firewall:1": rec(domain.StatusOnline, time.Minute),
				"firewall:2": rec(domain.StatusOffline, 6*time.Minute),
			},
			want: domain.AggregateOnline,
		},
		{
			name: "loading device is excluded",
			dc:   datacenter("1", fw("1"), fw("2")),
			records: map[string]domain.StatusRecord{
				"firewall:1": domain.LoadingRecord(),
				"firewall:2": rec(domain.StatusOffline, time.Minute),
			},
			want: domain.AggregateOffline,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DataCenterStatus(tt.dc, snapshot(tt.records), now)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDataCenterStatus_OrderIndependent(t *testing.T) {
	records := snapshot(map[string]domain.StatusRecord{
		"firewall:1": rec(domain.StatusOnline, time.Minute),
		"firewall:2": rec(domain.StatusOffline, time.Minute),
		"firewall:3": rec(domain.StatusOnline, time.Minute),
	})
	forward := datacenter("1", fw("1"), fw("2"), fw("3"))
	reversed := datacenter("1", fw("3"), fw("2"), fw("1"))

	assert.Equal(t, DataCenterStatus(forward, records, now), DataCenterStatus(reversed, records, now))
}

func TestDataCenterStatus_AcrossFirewallTypes(t *testing.T) {
	dc := domain.DataCenter{
		ID: "1",
		FirewallTypes: []domain.FirewallType{
			{ID: "a", Devices: []domain.Device{fw("1")}},
			{ID: "b", Devices: []domain.Device{fw("2")}},
		},
	}
	records := snapshot(map[string]domain.StatusRecord{
		"firewall:1": rec(domain.StatusOnline, time.Minute),
		"firewall:2": rec(domain.StatusOffline, time.Minute),
	})

	assert.Equal(t, domain.AggregatePartial, DataCenterStatus(dc, records, now))
}

func TestTallyDevices_CountsSharedDeviceOnce(t *testing.T) {
	shared := fw("1")
	dc := domain.DataCenter{
		ID: "1",
		FirewallTypes: []domain.FirewallType{
			{ID: "a", Devices: []domain.Device{shared, fw("2")}},
			{ID: "b", Devices: []domain.Device{shared}},
		},
	}
	records := snapshot(map[string]domain.StatusRecord{
		"firewall:1": rec(domain.StatusOnline, time.Minute),
		"firewall:2": rec(domain.StatusOffline, time.Minute),
	})

	tally := TallyDevices(dc.Devices(), records, now)

	assert.Equal(t, domain.Tally{Total: 2, Online: 1}, tally)
	assert.Equal(t, domain.AggregatePartial, DataCenterStatus(dc, records, now))
}

func TestDataCenterStatus_BecomesUnknownWithTime(t *testing.T) {
	dc := datacenter("1", fw("1"))
	records := snapshot(map[string]domain.StatusRecord{
		"firewall:1": rec(domain.StatusOnline, 0),
	})

	assert.Equal(t, domain.AggregateOnline, DataCenterStatus(dc, records, now.Add(4*time.Minute)))
	assert.Equal(t, domain.AggregateUnknown, DataCenterStatus(dc, records, now.Add(6*time.Minute)))
}

func TestEffectiveStatus(t *testing.T) {
	records := snapshot(map[string]domain.StatusRecord{
		"firewall:1": rec(domain.StatusError, time.Minute),
		"firewall:2": rec(domain.StatusOnline, 6*time.Minute),
		"firewall:3": domain.LoadingRecord(),
	})

	assert.Equal(t, domain.StatusError, EffectiveStatus(records, "firewall:1", now))
	assert.Equal(t, domain.StatusIdle, EffectiveStatus(records, "firewall:2", now))
	assert.Equal(t, domain.StatusIdle, EffectiveStatus(records, "firewall:3", now))
	assert.Equal(t, domain.StatusIdle, EffectiveStatus(records, "firewall:4", now))
}

func TestEvaluate(t *testing.T) {
	cam := domain.NewDevice(domain.DeviceRef{Kind: domain.KindCamera, RemoteID: "1"}, "lobby", "10.1.0.1")
	topology := domain.Topology{
		Version: 4,
		DataCenters: []domain.DataCenter{
			datacenter("A", fw("1"), fw("2")),
			datacenter("B", fw("3")),
			{ID: "C"},
		},
		Cameras: []domain.Device{cam},
	}
	snap := domain.StatusSnapshot{Version: 9, Records: map[string]domain.StatusRecord{
		"firewall:1": rec(domain.StatusOnline, 2*time.Minute),
		"firewall:2": rec(domain.StatusError, time.Minute),
		"firewall:3": rec(domain.StatusOffline, 7*time.Minute),
		"camera:1":   rec(domain.StatusOffline, 30*time.Second),
	}}

	view := Evaluate(topology, snap, now)

	assert.Equal(t, uint64(4), view.TopologyVersion)
	assert.Equal(t, uint64(9), view.StoreVersion)
	assert.Equal(t, domain.AggregatePartial, view.DataCenters["A"].Status)
	assert.Equal(t, domain.Tally{Total: 2, Online: 1}, view.DataCenters["A"].Tally)
	assert.Equal(t, domain.AggregateUnknown, view.DataCenters["B"].Status)
	assert.Equal(t, domain.AggregateUnknown, view.DataCenters["C"].Status)

	assert.Equal(t, domain.Stats{Total: 4, Online: 1, Offline: 1, Errors: 1, Unknown: 1}, view.Stats)
	assert.Equal(t, domain.StatusIdle, view.Devices["firewall:3"])

	// firewall:1 was probed two minutes ago and is the first to expire
	assert.Equal(t, now.Add(3*time.Minute), view.ValidUntil)
	assert.False(t, view.Expired(now.Add(3*time.Minute)))
	assert.True(t, view.Expired(now.Add(3*time.Minute+time.Second)))
}

func TestEvaluate_NothingFresh(t *testing.T) {
	view := Evaluate(domain.Topology{DataCenters: []domain.DataCenter{datacenter("1", fw("1"))}}, domain.StatusSnapshot{}, now)

	assert.True(t, view.ValidUntil.IsZero())
	assert.False(t, view.Expired(now.Add(time.Hour)))
	assert.Equal(t, domain.Stats{Total: 1, Unknown: 1}, view.Stats)
}
