// Package console is the map session: the single entry point transports use to
// drive topology loading, probes and the rendered map.
package console

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
	"github.com/lcalzada-xor/fleetmap/internal/core/ports"
	"github.com/lcalzada-xor/fleetmap/internal/core/services/audit"
	"github.com/lcalzada-xor/fleetmap/internal/core/services/presentation"
	"github.com/lcalzada-xor/fleetmap/internal/core/services/probe"
	"github.com/lcalzada-xor/fleetmap/internal/core/services/session"
	"github.com/lcalzada-xor/fleetmap/internal/core/services/topology"
	"github.com/lcalzada-xor/fleetmap/internal/logger"
)

// Deps are the collaborators a Console drives.
type Deps struct {
	Topology   *topology.Service
	Dispatcher *probe.Dispatcher
	Presenter  *presentation.Adapter
	Session    *session.Session
	Audit      ports.AuditService

	// EagerHierarchy expands every datacenter right after the topology loads.
	EagerHierarchy bool
}

// Console is the facade the web transport drives.
type Console struct {
	topology   *topology.Service
	dispatcher *probe.Dispatcher
	presenter  *presentation.Adapter
	session    *session.Session
	audit      ports.AuditService
	eager      bool
	log        zerolog.Logger

	// base bounds the lifetime of background sweeps.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	watching map[string]bool
}

// New creates a console and subscribes it to session changes.
func New(deps Deps) *Console {
	base, cancel := context.WithCancel(context.Background())
	c := &Console{
		topology:   deps.Topology,
		dispatcher: deps.Dispatcher,
		presenter:  deps.Presenter,
		session:    deps.Session,
		audit:      deps.Audit,
		eager:      deps.EagerHierarchy,
		log:        logger.WithComponent("console"),
		base:       base,
		cancel:     cancel,
		watching:   make(map[string]bool),
	}
	c.session.AddListener(c)
	return c
}

// LoadTopology fetches the datacenter list again, dropping expanded hierarchies.
func (c *Console) LoadTopology(ctx context.Context) (domain.Topology, error) {
	if err := c.session.Check(ctx); err != nil {
		return domain.Topology{}, err
	}
	ctx = withOperation(ctx)

	err := c.topology.Refresh(ctx)
	if err == nil && c.eager {
		err = c.topology.ExpandAll(ctx)
	}
	topo := c.topology.Current()
	c.record(ctx, domain.ActionTopologyLoad, "datacenters",
		fmt.Sprintf("datacenters=%d cameras=%d", len(topo.DataCenters), len(topo.Cameras)), outcome(err))
	if err != nil {
		return domain.Topology{}, c.fail(ctx, err)
	}
	return topo, nil
}

// ExpandDataCenter lazily fetches one datacenter's firewall types and devices.
func (c *Console) ExpandDataCenter(ctx context.Context, id string) (domain.DataCenter, error) {
	if err := c.ensureTopology(ctx); err != nil {
		return domain.DataCenter{}, err
	}
	ctx = withOperation(ctx)

	dc, err := c.topology.Expand(ctx, id)
	c.record(ctx, domain.ActionDataCenterExpand, id, "", outcome(err))
	if err != nil {
		return domain.DataCenter{}, c.fail(ctx, err)
	}
	return dc, nil
}

// PingDevice probes one device. A probe on a device that is already being
// probed returns ErrProbeInFlight and the loading record.
func (c *Console) PingDevice(ctx context.Context, ref domain.DeviceRef) (domain.StatusRecord, error) {
	if err := c.session.Check(ctx); err != nil {
		return domain.StatusRecord{}, err
	}
	ctx = withOperation(ctx)

	rec, err := c.dispatcher.PingDevice(ctx, ref)
	if errors.Is(err, domain.ErrProbeInFlight) {
		return rec, err
	}
	res := string(rec.Status)
	if err != nil {
		res = outcome(err)
	}
	c.record(ctx, domain.ActionProbeDevice, ref.Key(), rec.Error, res)
	if err != nil {
		return rec, c.fail(ctx, err)
	}
	return rec, nil
}

// PingAllFirewalls runs the synchronous batch probe.
func (c *Console) PingAllFirewalls(ctx context.Context) (domain.BatchSummary, error) {
	if err := c.session.Check(ctx); err != nil {
		return domain.BatchSummary{}, err
	}
	ctx = withOperation(ctx)

	summary, err := c.dispatcher.PingAllFirewalls(ctx)
	c.record(ctx, domain.ActionProbeBatch, "firewalls",
		fmt.Sprintf("total=%d online=%d offline=%d errors=%d", summary.Total, summary.Online, summary.Offline, summary.Errors),
		outcome(err))
	if err != nil {
		return domain.BatchSummary{}, c.fail(ctx, err)
	}
	return summary, nil
}

// StartCameraSweep starts the asynchronous camera sweep, or returns the one
// already running. The sweep outlives ctx and is stopped by CancelTask or Close.
func (c *Console) StartCameraSweep(ctx context.Context) (domain.TaskInfo, error) {
	if err := c.session.Check(ctx); err != nil {
		return domain.TaskInfo{}, err
	}
	ctx = withOperation(ctx)

	// Sweeps are shared between callers and live as long as the console.
	task, err := c.dispatcher.StartCameraSweep(c.base)
	if err != nil {
		c.record(ctx, domain.ActionProbeSweep, "cameras", "", outcome(err))
		return domain.TaskInfo{}, c.fail(ctx, err)
	}

	info := task.Info()
	if !c.startWatching(task.ID()) {
		return info, nil
	}

	watchCtx := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.stopWatching(task.ID())
		c.watch(watchCtx, task)
	}()
	return info, nil
}

// Task returns the state of a sweep.
func (c *Console) Task(_ context.Context, id string) (domain.TaskInfo, error) {
	task, ok := c.dispatcher.Task(id)
	if !ok {
		return domain.TaskInfo{}, fmt.Errorf("%w: task %s", domain.ErrNotFound, id)
	}
	return task.Info(), nil
}

// CancelTask stops a sweep. Results that arrive afterwards are discarded.
func (c *Console) CancelTask(ctx context.Context, id string) (domain.TaskInfo, error) {
	task, ok := c.dispatcher.Task(id)
	if !ok {
		return domain.TaskInfo{}, fmt.Errorf("%w: task %s", domain.ErrNotFound, id)
	}
	task.Cancel()
	select {
	case <-task.Done():
	case <-ctx.Done():
		return task.Info(), ctx.Err()
	}
	c.record(withOperation(ctx), domain.ActionSweepCancel, id, "", string(task.State()))
	return task.Info(), nil
}

// MapView returns the memoized map, loading the topology on first use.
func (c *Console) MapView(ctx context.Context) (*presentation.MapView, error) {
	if err := c.ensureTopology(ctx); err != nil {
		return nil, err
	}
	return c.presenter.View(), nil
}

// Stats returns the live statistics summary.
func (c *Console) Stats(ctx context.Context) (domain.Stats, error) {
	view, err := c.MapView(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	return view.Stats, nil
}

// SessionState reports whether the directory session is usable.
func (c *Console) SessionState() session.State {
	return c.session.State()
}

// RenewSession installs a new directory token.
func (c *Console) RenewSession(ctx context.Context, token string) error {
	return c.session.Renew(ctx, token)
}

// AuditLogs returns the most recent audit entries.
func (c *Console) AuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if c.audit == nil {
		return []domain.AuditLog{}, nil
	}
	return c.audit.GetLogs(ctx, limit)
}

// Close cancels every running sweep and waits for them to stop.
func (c *Console) Close() {
	c.cancel()
	c.dispatcher.Close()
	c.wg.Wait()
}

// OnSessionInvalidated implements session.Listener.
func (c *Console) OnSessionInvalidated(ctx context.Context, state session.State) {
	c.record(ctx, domain.ActionSessionInvalidated, "directory", state.Reason, "invalidated")
}

// OnSessionRenewed implements session.Listener.
func (c *Console) OnSessionRenewed(ctx context.Context, state session.State) {
	c.record(ctx, domain.ActionSessionRenewed, "directory", "", "renewed")
}

func (c *Console) ensureTopology(ctx context.Context) error {
	if err := c.session.Check(ctx); err != nil {
		return err
	}
	if c.topology.Loaded() {
		return nil
	}
	_, err := c.LoadTopology(ctx)
	return err
}

func (c *Console) startWatching(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watching[id] {
		return false
	}
	c.watching[id] = true
	return true
}

func (c *Console) stopWatching(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.watching, id)
}

func (c *Console) watch(ctx context.Context, task *probe.Task) {
	<-task.Done()
	ctx = context.WithoutCancel(ctx)
	info := task.Info()
	err := task.Err()
	c.record(ctx, domain.ActionProbeSweep, "cameras",
		fmt.Sprintf("task=%s polls=%d applied=%d", info.ID, info.Polls, info.Summary.Applied), string(info.State))
	if err != nil && !errors.Is(err, domain.ErrTaskCancelled) {
		c.fail(ctx, err)
	}
}

// fail turns a rejected token into a session invalidation. It returns err unchanged.
func (c *Console) fail(ctx context.Context, err error) error {
	if errors.Is(err, domain.ErrUnauthorized) {
		c.session.Invalidate(ctx, err.Error())
	}
	return err
}

func (c *Console) record(ctx context.Context, action domain.AuditAction, target, details, result string) {
	if c.audit == nil {
		return
	}
	if err := c.audit.Log(ctx, action, target, details, result); err != nil {
		c.log.Warn().Err(err).Str("action", string(action)).Msg("Failed to write audit entry")
	}
}

func withOperation(ctx context.Context) context.Context {
	if audit.OperationFrom(ctx) != "" {
		return ctx
	}
	return audit.WithOperation(ctx, uuid.NewString())
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "failed"
	}
}
