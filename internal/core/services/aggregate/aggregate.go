// Package aggregate folds device health into datacenter and fleet level status.
// Every function is pure: the same topology, snapshot and instant always give
// the same result.
package aggregate

import (
	"time"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
)

// Records looks up status records. Both the live store and its snapshots satisfy it.
type Records interface {
	Get(id string) (domain.StatusRecord, bool)
}

// EffectiveStatus is a device's status as the map should show it.
// Absent, loading and expired records all read as idle.
func EffectiveStatus(records Records, deviceID string, now time.Time) domain.DeviceStatus {
	rec, ok := records.Get(deviceID)
	if !ok || !rec.IsFresh(now) {
		return domain.StatusIdle
	}
	return rec.Status
}

// TallyDevices counts the devices that have a fresh terminal record. A device
// listed more than once is counted once.
func TallyDevices(devices []domain.Device, records Records, now time.Time) domain.Tally {
	var t domain.Tally
	seen := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		if _, dup := seen[d.ID]; dup {
			continue
		}
		seen[d.ID] = struct{}{}
		switch EffectiveStatus(records, d.ID, now) {
		case domain.StatusOnline:
			t.Total++
			t.Online++
		case domain.StatusOffline, domain.StatusError:
			t.Total++
		}
	}
	return t
}

// DataCenterStatus classifies a datacenter from every device under its firewall types.
func DataCenterStatus(dc domain.DataCenter, records Records, now time.Time) domain.AggregateStatus {
	return TallyDevices(dc.Devices(), records, now).Classify()
}
