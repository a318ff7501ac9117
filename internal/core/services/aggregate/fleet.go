package aggregate

import (
	"time"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
)

// DataCenterView is the derived state of one datacenter.
type DataCenterView struct {
	ID     string                 `json:"id"`
	Status domain.AggregateStatus `json:"status"`
	Tally  domain.Tally           `json:"tally"`
}

// FleetView is everything derived from one topology and one status snapshot.
type FleetView struct {
	TopologyVersion uint64                         `json:"topology_version"`
	StoreVersion    uint64                         `json:"store_version"`
	EvaluatedAt     time.Time                      `json:"evaluated_at"`
	DataCenters     map[string]DataCenterView      `json:"datacenters"`
	Devices         map[string]domain.DeviceStatus `json:"devices"`
	Stats           domain.Stats                   `json:"stats"`

	// ValidUntil is the earliest instant a contributing record expires.
	// It is zero when no record can expire.
	ValidUntil time.Time `json:"valid_until,omitempty"`
}

// Expired reports whether time alone has changed the view since evaluation.
func (v FleetView) Expired(now time.Time) bool {
	return !v.ValidUntil.IsZero() && now.After(v.ValidUntil)
}

// Evaluate derives per-datacenter status, per-device effective status and the
// fleet statistics. Stats count every known device once: fresh terminal records
// by status, everything else as unknown.
func Evaluate(topology domain.Topology, snapshot domain.StatusSnapshot, now time.Time) FleetView {
	view := FleetView{
		TopologyVersion: topology.Version,
		StoreVersion:    snapshot.Version,
		EvaluatedAt:     now,
		DataCenters:     make(map[string]DataCenterView, len(topology.DataCenters)),
		Devices:         make(map[string]domain.DeviceStatus),
	}

	for _, dc := range topology.DataCenters {
		tally := TallyDevices(dc.Devices(), snapshot, now)
		view.DataCenters[dc.ID] = DataCenterView{ID: dc.ID, Status: tally.Classify(), Tally: tally}
	}

	for _, d := range topology.AllDevices() {
		if _, seen := view.Devices[d.ID]; seen {
			continue
		}
		status := EffectiveStatus(snapshot, d.ID, now)
		view.Devices[d.ID] = status
		view.Stats.Total++
		switch status {
		case domain.StatusOnline:
			view.Stats.Online++
		case domain.StatusOffline:
			view.Stats.Offline++
		case domain.StatusError:
			view.Stats.Errors++
		default:
			view.Stats.Unknown++
			continue
		}
		if rec, ok := snapshot.Get(d.ID); ok {
			if exp, ok := rec.ExpiresAt(); ok && (view.ValidUntil.IsZero() || exp.Before(view.ValidUntil)) {
				view.ValidUntil = exp
			}
		}
	}
	return view
}
