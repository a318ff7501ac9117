// Package presentation turns derived fleet status into map markers and icons.
package presentation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
	"github.com/lcalzada-xor/fleetmap/internal/core/ports"
	"github.com/lcalzada-xor/fleetmap/internal/core/services/aggregate"
	"github.com/lcalzada-xor/fleetmap/internal/geo"
	"github.com/lcalzada-xor/fleetmap/internal/logger"
	"github.com/lcalzada-xor/fleetmap/internal/telemetry"
)

const (
	MarkerDataCenter = "datacenter"
	MarkerFirewall   = "firewall"
	MarkerCamera     = "camera"
)

// Marker is one entity on the map. Markers are immutable once built.
type Marker struct {
	ID       string        `json:"id"`
	Kind     string        `json:"kind"`
	Name     string        `json:"name"`
	Parent   string        `json:"parent,omitempty"`
	Position *geo.Location `json:"position,omitempty"`
	Status   string        `json:"status"`
	Icon     *Icon         `json:"icon"`
}

// MapView is the complete render state for one (store, topology) pair.
type MapView struct {
	TopologyVersion uint64                  `json:"topology_version"`
	StoreVersion    uint64                  `json:"store_version"`
	GeneratedAt     time.Time               `json:"generated_at"`
	ValidUntil      *time.Time              `json:"valid_until,omitempty"`
	Center          geo.Location            `json:"center"`
	Bounds          *geo.Bounds             `json:"bounds,omitempty"`
	DataCenters     []*Marker               `json:"datacenters"`
	Devices         []*Marker               `json:"devices"`
	Tallies         map[string]domain.Tally `json:"tallies"`
	Stats           domain.Stats            `json:"stats"`

	fleet aggregate.FleetView
}

// ViewListener receives every newly computed view.
type ViewListener interface {
	OnMapView(ctx context.Context, view *MapView)
}

type markerKey struct {
	id     string
	status string
}

// Adapter memoizes the map view and its markers. It subscribes to store and
// topology changes and republishes the view to its listeners.
type Adapter struct {
	store    ports.StatusReader
	topology ports.TopologyReader
	palette  Palette
	center   geo.Provider
	now      func() time.Time
	log      zerolog.Logger

	mu      sync.Mutex
	view    *MapView
	markers map[markerKey]*Marker

	listenerMu sync.RWMutex
	listeners  []ViewListener

	wake chan struct{}
}

// NewAdapter creates an adapter reading from store and topology.
func NewAdapter(store ports.StatusReader, topology ports.TopologyReader, palette Palette, center geo.Provider) *Adapter {
	return &Adapter{
		store:    store,
		topology: topology,
		palette:  palette,
		center:   center,
		now:      time.Now,
		log:      logger.WithComponent("presentation"),
		markers:  make(map[markerKey]*Marker),
		wake:     make(chan struct{}, 1),
	}
}

// SetClock overrides the time source. Used by tests.
func (a *Adapter) SetClock(now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
}

// Palette returns the adapter's icon set.
func (a *Adapter) Palette() Palette {
	return a.palette
}

// AddListener registers a view listener.
func (a *Adapter) AddListener(l ViewListener) {
	a.listenerMu.Lock()
	defer a.listenerMu.Unlock()
	a.listeners = append(a.listeners, l)
}

// View returns the current map view. The same pointer is returned until the
// store or topology changes or a contributing record expires.
func (a *Adapter) View() *MapView {
	view, _ := a.current()
	return view
}

// DataCenterIcon returns the icon of a datacenter. Unknown ids get the unknown icon.
func (a *Adapter) DataCenterIcon(id string) *Icon {
	view := a.View()
	dc, ok := view.fleet.DataCenters[id]
	if !ok {
		return a.palette.DataCenterUnknown
	}
	return a.palette.ForDataCenter(dc.Status)
}

// DeviceIcon returns the icon of a device. Unknown ids get the default icon.
func (a *Adapter) DeviceIcon(id string) *Icon {
	view := a.View()
	return a.palette.ForDevice(view.fleet.Devices[id])
}

// DataCenterStatus returns the aggregate status of a datacenter in the current view.
func (a *Adapter) DataCenterStatus(id string) (domain.AggregateStatus, bool) {
	dc, ok := a.View().fleet.DataCenters[id]
	return dc.Status, ok
}

// OnStatusChanged implements ports.StatusObserver.
func (a *Adapter) OnStatusChanged(ctx context.Context, _ domain.StatusChange) {
	a.refresh(ctx)
}

// OnTopologyChanged implements ports.TopologyObserver. Names and positions may
// have changed, so every cached marker is dropped.
func (a *Adapter) OnTopologyChanged(ctx context.Context, _ domain.Topology) {
	a.mu.Lock()
	a.markers = make(map[markerKey]*Marker)
	a.mu.Unlock()
	a.refresh(ctx)
}

// Run republishes the view whenever time alone changes it, until ctx is done.
func (a *Adapter) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		timer.Reset(a.untilExpiry())
		select {
		case <-ctx.Done():
			return
		case <-a.wake:
		case <-timer.C:
			a.refresh(ctx)
		}
	}
}

func (a *Adapter) untilExpiry() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.view == nil || a.view.ValidUntil == nil {
		return time.Hour
	}
	wait := a.view.ValidUntil.Sub(a.now()) + time.Millisecond
	if wait < 0 {
		return 0
	}
	return wait
}

func (a *Adapter) refresh(ctx context.Context) {
	view, changed := a.current()
	if !changed {
		return
	}

	select {
	case a.wake <- struct{}{}:
	default:
	}

	a.listenerMu.RLock()
	listeners := make([]ViewListener, len(a.listeners))
	copy(listeners, a.listeners)
	a.listenerMu.RUnlock()

	for _, l := range listeners {
		l.OnMapView(ctx, view)
	}
}

// current returns the memoized view, rebuilding it when stale. The store is
// only copied when a rebuild is needed.
func (a *Adapter) current() (*MapView, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	topology := a.topology.Current()

	if v := a.view; v != nil &&
		v.StoreVersion == a.store.Version() &&
		v.TopologyVersion == topology.Version &&
		!v.fleet.Expired(now) {
		return v, false
	}

	a.view = a.build(topology, a.store.Snapshot(), now)
	return a.view, true
}

// build computes a new view. Callers hold a.mu.
func (a *Adapter) build(topology domain.Topology, snapshot domain.StatusSnapshot, now time.Time) *MapView {
	fleet := aggregate.Evaluate(topology, snapshot, now)

	view := &MapView{
		TopologyVersion: topology.Version,
		StoreVersion:    snapshot.Version,
		GeneratedAt:     now,
		DataCenters:     make([]*Marker, 0, len(topology.DataCenters)),
		Devices:         make([]*Marker, 0),
		Tallies:         make(map[string]domain.Tally, len(topology.DataCenters)),
		Stats:           fleet.Stats,
		fleet:           fleet,
	}
	if !fleet.ValidUntil.IsZero() {
		until := fleet.ValidUntil
		view.ValidUntil = &until
	}

	used := make(map[markerKey]*Marker, len(a.markers))
	bounds := geo.EmptyBounds()

	placed := make(map[string]struct{})
	for _, dc := range topology.DataCenters {
		dv := fleet.DataCenters[dc.ID]
		view.Tallies[dc.ID] = dv.Tally
		m := a.marker(used, markerKey{id: dc.ID, status: string(dv.Status)}, func() *Marker {
			return &Marker{
				ID:       dc.ID,
				Kind:     MarkerDataCenter,
				Name:     dc.Name,
				Position: dc.Position,
				Status:   string(dv.Status),
				Icon:     a.palette.ForDataCenter(dv.Status),
			}
		})
		view.DataCenters = append(view.DataCenters, m)
		if dc.Position != nil {
			bounds = bounds.Extend(*dc.Position)
		}
		telemetry.DataCenterStatus.WithLabelValues(dc.ID, string(dv.Status)).Set(1)
		for _, other := range []domain.AggregateStatus{domain.AggregateOnline, domain.AggregateOffline, domain.AggregatePartial, domain.AggregateUnknown} {
			if other != dv.Status {
				telemetry.DataCenterStatus.WithLabelValues(dc.ID, string(other)).Set(0)
			}
		}

		for _, d := range dc.Devices() {
			if _, dup := placed[d.ID]; dup {
				continue
			}
			placed[d.ID] = struct{}{}
			view.Devices = append(view.Devices, a.deviceMarker(used, d, dc.ID, fleet.Devices[d.ID]))
		}
	}

	for _, cam := range topology.Cameras {
		view.Devices = append(view.Devices, a.deviceMarker(used, cam, "", fleet.Devices[cam.ID]))
		if cam.Position != nil {
			bounds = bounds.Extend(*cam.Position)
		}
	}

	// Markers not used by this view are released.
	a.markers = used

	var fallback geo.Location
	if a.center != nil {
		fallback = a.center.GetLocation()
	}
	view.Center = bounds.Center(fallback)
	if !bounds.IsEmpty() {
		view.Bounds = &bounds
	}

	a.log.Debug().
		Uint64("store_version", view.StoreVersion).
		Uint64("topology_version", view.TopologyVersion).
		Int("markers", len(view.DataCenters)+len(view.Devices)).
		Msg("Map view rebuilt")
	return view
}

func (a *Adapter) deviceMarker(used map[markerKey]*Marker, d domain.Device, parent string, status domain.DeviceStatus) *Marker {
	if status == "" {
		status = domain.StatusIdle
	}
	return a.marker(used, markerKey{id: d.ID, status: string(status)}, func() *Marker {
		return &Marker{
			ID:       d.ID,
			Kind:     string(d.Ref.Kind),
			Name:     d.Name,
			Parent:   parent,
			Position: d.Position,
			Status:   string(status),
			Icon:     a.palette.ForDevice(status),
		}
	})
}

// marker returns the cached marker for key, creating it on a miss.
func (a *Adapter) marker(used map[markerKey]*Marker, key markerKey, create func() *Marker) *Marker {
	if m, ok := used[key]; ok {
		return m
	}
	m, ok := a.markers[key]
	if !ok {
		m = create()
	}
	used[key] = m
	return m
}
