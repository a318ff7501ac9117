package topology

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
)

type fakeDirectory struct {
	datacenters    []domain.DataCenter
	hierarchy      []domain.DataCenter
	cameras        []domain.Device
	listErr        error
	hierarchyErr   error
	listCalls      atomic.Int32
	hierarchyCalls atomic.Int32
	hierarchyGate  chan struct{}
}

func (f *fakeDirectory) ListDataCenters(context.Context) ([]domain.DataCenter, error) {
	f.listCalls.Add(1)
	out := make([]domain.DataCenter, len(f.datacenters))
	copy(out, f.datacenters)
	return out, f.listErr
}

func (f *fakeDirectory) Hierarchy(context.Context) ([]domain.DataCenter, error) {
	f.hierarchyCalls.Add(1)
	if f.hierarchyGate != nil {
		<-f.hierarchyGate
	}
	return f.hierarchy, f.hierarchyErr
}

func (f *fakeDirectory) ListCameras(context.Context) ([]domain.Device, error) {
	return f.cameras, nil
}

func (f *fakeDirectory) PingDevice(context.Context, domain.DeviceRef) (domain.SingleResult, error) {
	return domain.SingleResult{}, nil
}

func (f *fakeDirectory) PingAllFirewalls(context.Context) (domain.BatchResult, error) {
	return domain.BatchResult{}, nil
}

func (f *fakeDirectory) StartCameraPingAll(context.Context) (string, error) { return "", nil }

func (f *fakeDirectory) CameraPingStatus(context.Context, string) (domain.TaskPoll, error) {
	return domain.TaskPoll{}, nil
}

type topologyRecorder struct {
	mu       sync.Mutex
	versions []uint64
}

func (r *topologyRecorder) OnTopologyChanged(_ context.Context, t domain.Topology) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions = append(r.versions, t.Version)
}

func fw(id string) domain.Device {
	return domain.NewDevice(domain.DeviceRef{Kind: domain.KindFirewall, RemoteID: id}, "fw-"+id, "")
}

func newFake() *fakeDirectory {
	return &fakeDirectory{
		datacenters: []domain.DataCenter{
			{ID: "1", Name: "Madrid", Active: true},
			{ID: "2", Name: "Lisbon", Active: true},
		},
		hierarchy: []domain.DataCenter{
			{ID: "1", FirewallTypes: []domain.FirewallType{
				{ID: "10", Name: "edge", Devices: []domain.Device{fw("100"), fw("101")}},
			}},
			{ID: "2", FirewallTypes: []domain.FirewallType{
				{ID: "20", Name: "core", Devices: []domain.Device{fw("200")}},
			}},
		},
		cameras: []domain.Device{
			domain.NewDevice(domain.DeviceRef{Kind: domain.KindCamera, RemoteID: "5"}, "gate", "10.9.0.5"),
		},
	}
}

func TestService_LoadOnce(t *testing.T) {
	dir := newFake()
	s := NewService(dir)
	rec := &topologyRecorder{}
	s.AddObserver(rec)

	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.Load(context.Background()))

	topo := s.Current()
	assert.Equal(t, uint64(1), topo.Version)
	assert.Len(t, topo.DataCenters, 2)
	assert.Len(t, topo.Cameras, 1)
	assert.False(t, topo.DataCenters[0].Expanded)
	assert.Equal(t, int32(1), dir.listCalls.Load())
	assert.Equal(t, []uint64{1}, rec.versions)
}

func TestService_LoadFailure(t *testing.T) {
	dir := newFake()
	dir.listErr = domain.ErrUnauthorized
	s := NewService(dir)

	err := s.Load(context.Background())

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.False(t, s.Loaded())
	assert.Zero(t, s.Current().Version)
}

func TestService_ExpandIsLazy(t *testing.T) {
	dir := newFake()
	s := NewService(dir)
	require.NoError(t, s.Load(context.Background()))

	dc, err := s.Expand(context.Background(), "1")
	require.NoError(t, err)

	assert.True(t, dc.Expanded)
	require.Len(t, dc.Devices(), 2)
	assert.Equal(t, "10", dc.Devices()[0].FirewallTypeID)

	topo := s.Current()
	assert.Equal(t, uint64(2), topo.Version)
	other, _ := topo.DataCenter("2")
	assert.False(t, other.Expanded, "only the requested datacenter is populated")
	assert.Empty(t, other.FirewallTypes)

	_, err = s.Expand(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), dir.hierarchyCalls.Load(), "expanded datacenters are cached")
	assert.Equal(t, uint64(2), s.Current().Version)
}

func TestService_ExpandDoesNotMutatePublished(t *testing.T) {
	s := NewService(newFake())
	require.NoError(t, s.Load(context.Background()))
	before := s.Current()

	_, err := s.Expand(context.Background(), "1")
	require.NoError(t, err)

	assert.False(t, before.DataCenters[0].Expanded)
}

func TestService_ExpandUnknown(t *testing.T) {
	s := NewService(newFake())
	require.NoError(t, s.Load(context.Background()))

	_, err := s.Expand(context.Background(), "99")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_ExpandFailure(t *testing.T) {
	dir := newFake()
	dir.hierarchyErr = errors.New("gateway timeout")
	s := NewService(dir)
	require.NoError(t, s.Load(context.Background()))

	_, err := s.Expand(context.Background(), "1")

	assert.Error(t, err)
	assert.Equal(t, uint64(1), s.Current().Version)
}

func TestService_ConcurrentExpandSharesRequest(t *testing.T) {
	dir := newFake()
	dir.hierarchyGate = make(chan struct{})
	s := NewService(dir)
	require.NoError(t, s.Load(context.Background()))

	var wg sync.WaitGroup
	for _, id := range []string{"1", "2", "1"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := s.Expand(context.Background(), id)
			assert.NoError(t, err)
		}(id)
	}
	assert.Eventually(t, func() bool { return dir.hierarchyCalls.Load() >= 1 }, time.Second, time.Millisecond)
	close(dir.hierarchyGate)
	wg.Wait()

	topo := s.Current()
	for _, dc := range topo.DataCenters {
		assert.True(t, dc.Expanded, dc.ID)
	}
	assert.LessOrEqual(t, dir.hierarchyCalls.Load(), int32(3))
}

func TestService_ExpandAll(t *testing.T) {
	dir := newFake()
	s := NewService(dir)
	require.NoError(t, s.Load(context.Background()))

	require.NoError(t, s.ExpandAll(context.Background()))

	topo := s.Current()
	assert.Len(t, topo.AllDevices(), 4)
	assert.Equal(t, int32(1), dir.hierarchyCalls.Load())
	assert.Equal(t, uint64(2), topo.Version)
}

func TestService_RefreshDropsExpansion(t *testing.T) {
	s := NewService(newFake())
	require.NoError(t, s.Load(context.Background()))
	_, err := s.Expand(context.Background(), "1")
	require.NoError(t, err)

	require.NoError(t, s.Refresh(context.Background()))

	dc, _ := s.Current().DataCenter("1")
	assert.False(t, dc.Expanded)
	assert.Equal(t, uint64(3), s.Current().Version)
}
