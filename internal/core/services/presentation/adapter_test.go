package presentation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
	"github.com/lcalzada-xor/fleetmap/internal/core/services/status"
	"github.com/lcalzada-xor/fleetmap/internal/geo"
)

type fakeTopology struct {
	mu   sync.Mutex
	topo domain.Topology
}

func (f *fakeTopology) Current() domain.Topology {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.topo
}

func (f *fakeTopology) set(topo domain.Topology) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topo = topo
}

type viewRecorder struct {
	mu    sync.Mutex
	views []*MapView
}

func (r *viewRecorder) OnMapView(_ context.Context, v *MapView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *viewRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func device(kind domain.DeviceKind, id string) domain.Device {
	return domain.NewDevice(domain.DeviceRef{Kind: kind, RemoteID: id}, string(kind)+"-"+id, "10.0.0."+id)
}

func testTopology() domain.Topology {
	madrid, _ := geo.NewLocation(40.41, -3.70)
	lisbon, _ := geo.NewLocation(38.72, -9.13)
	return domain.Topology{
		Version: 1,
		DataCenters: []domain.DataCenter{
			{
				ID: "dc1", Name: "Madrid", Position: &madrid, Expanded: true,
				FirewallTypes: []domain.FirewallType{{ID: "ft1", Devices: []domain.Device{
					device(domain.KindFirewall, "1"),
					device(domain.KindFirewall, "2"),
				}}},
			},
			{ID: "dc2", Name: "Lisbon", Position: &lisbon},
		},
		Cameras: []domain.Device{device(domain.KindCamera, "1")},
	}
}

func setup(t *testing.T) (*Adapter, *status.Store, *fakeTopology, *time.Time) {
	t.Helper()
	store := status.NewStore()
	topo := &fakeTopology{topo: testTopology()}
	a := NewAdapter(store, topo, NewPalette("/static/icons"), geo.NewStaticProvider(0, 0))
	now := base
	a.SetClock(func() time.Time { return now })
	return a, store, topo, &now
}

// copyCounter counts how often the adapter copies the store.
type copyCounter struct {
	*status.Store
	copies atomic.Int32
}

func (c *copyCounter) Snapshot() domain.StatusSnapshot {
	c.copies.Add(1)
	return c.Store.Snapshot()
}

func online(at time.Time) domain.StatusRecord {
	return domain.TerminalRecord(domain.StatusOnline, nil, "", at)
}

func TestPalette_DeviceMapping(t *testing.T) {
	p := NewPalette("/icons")

	assert.Same(t, p.DeviceOnline, p.ForDevice(domain.StatusOnline))
	assert.Same(t, p.DeviceOffline, p.ForDevice(domain.StatusOffline))
	assert.Same(t, p.DeviceOffline, p.ForDevice(domain.StatusError))
	assert.Same(t, p.DeviceDefault, p.ForDevice(domain.StatusLoading))
	assert.Same(t, p.DeviceDefault, p.ForDevice(domain.StatusIdle))
	assert.Equal(t, "/icons/device-online.svg", p.DeviceOnline.URL)
}

func TestPalette_NotShared(t *testing.T) {
	assert.NotSame(t, NewPalette("").DeviceOnline, NewPalette("").DeviceOnline)
}

func TestAdapter_ViewIsMemoized(t *testing.T) {
	a, _, _, _ := setup(t)

	first := a.View()
	second := a.View()

	assert.Same(t, first, second)
	assert.Len(t, first.DataCenters, 2)
	assert.Len(t, first.Devices, 3)
	require.NotNil(t, first.Bounds)
}

func TestAdapter_ValidViewDoesNotCopyStore(t *testing.T) {
	store := &copyCounter{Store: status.NewStore()}
	a := NewAdapter(store, &fakeTopology{topo: testTopology()}, NewPalette("/static/icons"), geo.NewStaticProvider(0, 0))
	now := base
	a.SetClock(func() time.Time { return now })

	first := a.View()
	for i := 0; i < 5; i++ {
		assert.Same(t, first, a.View())
	}
	assert.Equal(t, int32(1), store.copies.Load())

	store.Set(context.Background(), "firewall:1", online(now))
	assert.NotSame(t, first, a.View())
	assert.Equal(t, int32(2), store.copies.Load())
}

func TestAdapter_SharedDeviceGetsOneMarker(t *testing.T) {
	a, _, topo, _ := setup(t)
	shared := device(domain.KindFirewall, "1")
	topo.set(domain.Topology{
		Version: 2,
		DataCenters: []domain.DataCenter{{
			ID: "dc1", Expanded: true,
			FirewallTypes: []domain.FirewallType{
				{ID: "a", Devices: []domain.Device{shared}},
				{ID: "b", Devices: []domain.Device{shared, device(domain.KindFirewall, "2")}},
			},
		}},
	})

	view := a.View()

	assert.Len(t, view.Devices, 2)
	assert.Equal(t, domain.Tally{}, view.Tallies["dc1"])
}

func TestAdapter_Icons(t *testing.T) {
	a, store, _, now := setup(t)
	ctx := context.Background()
	p := a.Palette()

	assert.Same(t, p.DataCenterUnknown, a.DataCenterIcon("dc1"))
	assert.Same(t, p.DeviceDefault, a.DeviceIcon("firewall:1"))

	store.Set(ctx, "firewall:1", online(*now))
	assert.Same(t, p.DataCenterOnline, a.DataCenterIcon("dc1"))
	assert.Same(t, p.DeviceOnline, a.DeviceIcon("firewall:1"))

	store.Set(ctx, "firewall:2", domain.TerminalRecord(domain.StatusError, nil, "refused", *now))
	assert.Same(t, p.DataCenterPartial, a.DataCenterIcon("dc1"))
	assert.Same(t, p.DeviceOffline, a.DeviceIcon("firewall:2"))

	assert.Same(t, p.DataCenterUnknown, a.DataCenterIcon("missing"))
	assert.Same(t, p.DeviceDefault, a.DeviceIcon("camera:404"))
}

func TestAdapter_ExpiredRendersDefault(t *testing.T) {
	a, store, _, now := setup(t)
	store.Set(context.Background(), "firewall:1", online(*now))
	require.Same(t, a.Palette().DeviceOnline, a.DeviceIcon("firewall:1"))

	*now = now.Add(6 * time.Minute)

	assert.Same(t, a.Palette().DeviceDefault, a.DeviceIcon("firewall:1"))
	assert.Same(t, a.Palette().DataCenterUnknown, a.DataCenterIcon("dc1"))
}

func TestAdapter_UnchangedMarkersKeepIdentity(t *testing.T) {
	a, store, _, now := setup(t)
	before := a.View()

	store.Set(context.Background(), "firewall:1", online(*now))
	after := a.View()

	require.NotSame(t, before, after)
	markers := func(v *MapView) map[string]*Marker {
		out := make(map[string]*Marker)
		for _, m := range append(append([]*Marker{}, v.DataCenters...), v.Devices...) {
			out[m.ID] = m
		}
		return out
	}
	b, c := markers(before), markers(after)

	assert.NotSame(t, b["firewall:1"], c["firewall:1"], "changed device gets a new marker")
	assert.NotSame(t, b["dc1"], c["dc1"], "its datacenter changed status")
	assert.Same(t, b["firewall:2"], c["firewall:2"])
	assert.Same(t, b["camera:1"], c["camera:1"])
	assert.Same(t, b["dc2"], c["dc2"])
}

func TestAdapter_PushesToListeners(t *testing.T) {
	a, store, _, now := setup(t)
	store.AddObserver(a)
	rec := &viewRecorder{}
	a.AddListener(rec)
	a.View()

	store.Set(context.Background(), "camera:1", online(*now))

	require.Equal(t, 1, rec.count())
	assert.Equal(t, 1, rec.views[0].Stats.Online)
	assert.Same(t, rec.views[0], a.View())
}

func TestAdapter_TopologyChangeRebuildsMarkers(t *testing.T) {
	a, _, topo, _ := setup(t)
	rec := &viewRecorder{}
	a.AddListener(rec)
	before := a.View()

	next := testTopology()
	next.Version = 2
	next.DataCenters[1].Name = "Lisboa"
	topo.set(next)
	a.OnTopologyChanged(context.Background(), next)

	after := a.View()
	require.Equal(t, 1, rec.count())
	assert.Equal(t, uint64(2), after.TopologyVersion)
	assert.Equal(t, "Lisboa", after.DataCenters[1].Name)
	assert.NotSame(t, before.DataCenters[1], after.DataCenters[1])
}

func TestAdapter_ValidUntil(t *testing.T) {
	a, store, _, now := setup(t)
	store.Set(context.Background(), "firewall:1", online(now.Add(-time.Minute)))

	v := a.View()

	require.NotNil(t, v.ValidUntil)
	assert.Equal(t, base.Add(4*time.Minute), *v.ValidUntil)
	assert.Equal(t, 4*time.Minute+time.Millisecond, a.untilExpiry())
}

func TestAdapter_RunRepublishesOnExpiry(t *testing.T) {
	store := status.NewStore()
	topo := &fakeTopology{topo: testTopology()}
	a := NewAdapter(store, topo, NewPalette(""), nil)
	rec := &viewRecorder{}
	a.AddListener(rec)

	// probed just under five minutes ago, so it expires in a few milliseconds
	store.Set(context.Background(), "firewall:1", online(time.Now().Add(-domain.FreshnessWindow+20*time.Millisecond)))
	require.Same(t, a.Palette().DataCenterOnline, a.DataCenterIcon("dc1"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	assert.Eventually(t, func() bool { return rec.count() >= 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Same(t, a.Palette().DataCenterUnknown, a.DataCenterIcon("dc1"))
}
