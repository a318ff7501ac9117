package mock

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
	"github.com/lcalzada-xor/fleetmap/internal/core/ports"
	"github.com/lcalzada-xor/fleetmap/internal/geo"
)

var _ ports.Directory = (*Directory)(nil)

var flakyStatuses = []string{"online", "offline", "error"}
var flakyWeights = []float32{0.7, 0.2, 0.1}

type sweep struct {
	remaining int
}

// Directory simulates the Device Directory Service from a fixture.
type Directory struct {
	fixture *Fixture

	mu           sync.Mutex
	rand         *rand.Rand
	unauthorized bool
	failSweeps   bool
	sweeps       map[string]*sweep
	statusChecks int
}

// NewDirectory creates a simulated directory. A fixed seed gives reproducible
// flaky outcomes and latencies.
func NewDirectory(fixture *Fixture, seed int64) *Directory {
	return &Directory{
		fixture: fixture,
		rand:    rand.New(rand.NewSource(seed)),
		sweeps:  make(map[string]*sweep),
	}
}

// SetUnauthorized makes every call fail as if the token had been revoked.
func (d *Directory) SetUnauthorized(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unauthorized = v
}

// SetFailSweeps makes camera sweeps report failed instead of completed.
func (d *Directory) SetFailSweeps(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failSweeps = v
}

// StatusChecks returns how many sweep status checks were served.
func (d *Directory) StatusChecks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.statusChecks
}

func (d *Directory) ListDataCenters(ctx context.Context) ([]domain.DataCenter, error) {
	if err := d.check(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.DataCenter, 0, len(d.fixture.DataCenters))
	for _, dc := range d.fixture.DataCenters {
		out = append(out, dataCenter(dc))
	}
	return out, nil
}

func (d *Directory) Hierarchy(ctx context.Context) ([]domain.DataCenter, error) {
	if err := d.check(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.DataCenter, 0, len(d.fixture.DataCenters))
	for _, dcf := range d.fixture.DataCenters {
		dc := dataCenter(dcf)
		for _, ftf := range dcf.FirewallTypes {
			ft := domain.FirewallType{ID: ftf.ID, Name: ftf.Name}
			for _, df := range ftf.Devices {
				dev := device(domain.KindFirewall, df)
				dev.FirewallTypeID = ftf.ID
				ft.Devices = append(ft.Devices, dev)
			}
			dc.FirewallTypes = append(dc.FirewallTypes, ft)
		}
		out = append(out, dc)
	}
	return out, nil
}

func (d *Directory) ListCameras(ctx context.Context) ([]domain.Device, error) {
	if err := d.check(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.Device, 0, len(d.fixture.Cameras))
	for _, c := range d.fixture.Cameras {
		out = append(out, device(domain.KindCamera, c))
	}
	return out, nil
}

func (d *Directory) PingDevice(ctx context.Context, ref domain.DeviceRef) (domain.SingleResult, error) {
	if err := d.check(ctx); err != nil {
		return domain.SingleResult{}, err
	}
	f, ok := d.find(ref)
	if !ok {
		return domain.SingleResult{}, fmt.Errorf("%w: %s", domain.ErrNotFound, ref)
	}
	return domain.SingleResult{Ref: ref, Result: d.probe(f)}, nil
}

func (d *Directory) PingAllFirewalls(ctx context.Context) (domain.BatchResult, error) {
	if err := d.check(ctx); err != nil {
		return domain.BatchResult{}, err
	}
	res := domain.BatchResult{Kind: domain.KindFirewall}
	for _, dc := range d.fixture.DataCenters {
		for _, ft := range dc.FirewallTypes {
			for _, f := range ft.Devices {
				r := d.probe(f)
				res.Results = append(res.Results, r)
				res.Total++
				switch r.Status {
				case "online":
					res.Online++
				case "offline":
					res.Offline++
				default:
					res.Errors++
				}
			}
		}
	}
	return res, nil
}

func (d *Directory) StartCameraPingAll(ctx context.Context) (string, error) {
	if err := d.check(ctx); err != nil {
		return "", err
	}
	id := uuid.NewString()
	d.mu.Lock()
	d.sweeps[id] = &sweep{remaining: d.fixture.SweepPendingPolls}
	d.mu.Unlock()
	return id, nil
}

func (d *Directory) CameraPingStatus(ctx context.Context, taskID string) (domain.TaskPoll, error) {
	if err := d.check(ctx); err != nil {
		return domain.TaskPoll{}, err
	}

	d.mu.Lock()
	d.statusChecks++
	s, ok := d.sweeps[taskID]
	failing := d.failSweeps
	if ok && s.remaining > 0 {
		s.remaining--
		d.mu.Unlock()
		return domain.TaskPoll{Kind: domain.KindCamera, TaskID: taskID, State: domain.TaskPending}, nil
	}
	delete(d.sweeps, taskID)
	d.mu.Unlock()

	if !ok {
		return domain.TaskPoll{Kind: domain.KindCamera, TaskID: taskID, State: domain.TaskFailed, Message: "unknown task"}, nil
	}
	if failing {
		return domain.TaskPoll{Kind: domain.KindCamera, TaskID: taskID, State: domain.TaskFailed, Message: "simulated worker failure"}, nil
	}

	poll := domain.TaskPoll{Kind: domain.KindCamera, TaskID: taskID, State: domain.TaskCompleted}
	for _, c := range d.fixture.Cameras {
		poll.Results = append(poll.Results, d.probe(c))
	}
	return poll, nil
}

func (d *Directory) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unauthorized {
		return domain.ErrUnauthorized
	}
	return nil
}

func (d *Directory) find(ref domain.DeviceRef) (DeviceFixture, bool) {
	switch ref.Kind {
	case domain.KindFirewall:
		for _, dc := range d.fixture.DataCenters {
			for _, ft := range dc.FirewallTypes {
				for _, f := range ft.Devices {
					if f.ID == ref.RemoteID {
						return f, true
					}
				}
			}
		}
	case domain.KindCamera:
		for _, c := range d.fixture.Cameras {
			if c.ID == ref.RemoteID {
				return c, true
			}
		}
	}
	return DeviceFixture{}, false
}

// probe simulates one health check.
func (d *Directory) probe(f DeviceFixture) domain.DeviceResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	status := string(f.Behavior)
	switch f.Behavior {
	case BehaviorFlaky:
		status = d.weightedChoice(flakyStatuses, flakyWeights)
	case "":
		status = string(BehaviorOnline)
	}

	res := domain.DeviceResult{RemoteID: f.ID, Status: status}
	switch status {
	case "online":
		lo, hi := d.fixture.LatencyMS[0], d.fixture.LatencyMS[1]
		rt := lo + d.rand.Float64()*(hi-lo)
		res.ResponseTime = &rt
	case "offline":
		res.Message = "host unreachable"
	default:
		res.Message = "probe timed out"
	}
	return res
}

func (d *Directory) weightedChoice(choices []string, weights []float32) string {
	total := float32(0)
	for _, w := range weights {
		total += w
	}

	r := d.rand.Float32() * total
	cumulative := float32(0)

	for i, w := range weights {
		cumulative += w
		if r <= cumulative {
			return choices[i]
		}
	}

	return choices[0]
}

func dataCenter(f DataCenterFixture) domain.DataCenter {
	dc := domain.DataCenter{
		ID:          f.ID,
		Name:        f.Name,
		Description: f.Description,
		Location:    f.Location,
		Region:      f.Region,
		Active:      f.Active,
		Status:      "active",
	}
	if !f.Active {
		dc.Status = "maintenance"
	}
	if loc, err := geo.NewLocation(f.Lat, f.Lng); err == nil {
		dc.Position = &loc
	}
	return dc
}

func device(kind domain.DeviceKind, f DeviceFixture) domain.Device {
	dev := domain.NewDevice(domain.DeviceRef{Kind: kind, RemoteID: f.ID}, f.Name, f.Address)
	if f.Lat != nil && f.Lng != nil {
		if loc, err := geo.NewLocation(*f.Lat, *f.Lng); err == nil {
			dev.Position = &loc
		}
	}
	return dev
}
