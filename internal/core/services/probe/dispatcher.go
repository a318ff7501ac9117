// Package probe originates health checks against the directory and turns their
// results into status store updates.
package probe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
	"github.com/lcalzada-xor/fleetmap/internal/core/ports"
	"github.com/lcalzada-xor/fleetmap/internal/logger"
	"github.com/lcalzada-xor/fleetmap/internal/telemetry"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultTaskTimeout  = 5 * time.Minute

	// finished tasks stay queryable for this long
	taskRetention = 10 * time.Minute
)

const (
	shapeSingle = "single"
	shapeBatch  = "batch"
	shapeTask   = "task"

	sweepKey = "camera-sweep"
)

// Dispatcher is the only writer of the status store.
type Dispatcher struct {
	directory    ports.Directory
	store        ports.StatusStore
	now          func() time.Time
	pollInterval time.Duration
	taskTimeout  time.Duration
	log          zerolog.Logger

	// kickoff coalesces concurrent sweep starts. d.mu is never held across
	// the directory call.
	kickoff singleflight.Group

	mu     sync.Mutex
	sweep  *Task
	tasks  map[string]*Task
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithPollInterval sets the delay between task status checks.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

// WithTaskTimeout bounds how long a task is polled before it is failed.
func WithTaskTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.taskTimeout = timeout
		}
	}
}

// NewDispatcher creates a dispatcher writing to store.
func NewDispatcher(directory ports.Directory, store ports.StatusStore, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		directory:    directory,
		store:        store,
		now:          time.Now,
		pollInterval: DefaultPollInterval,
		taskTimeout:  DefaultTaskTimeout,
		log:          logger.WithComponent("probe"),
		tasks:        make(map[string]*Task),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// PingDevice probes one device. While the request is in flight the device reads
// as loading; a second call in that window returns ErrProbeInFlight and the
// current record without contacting the directory.
//
// Transport failures are recorded on the device and are not returned as errors.
// ErrUnauthorized is both recorded and returned.
func (d *Dispatcher) PingDevice(ctx context.Context, ref domain.DeviceRef) (domain.StatusRecord, error) {
	if !ref.Kind.IsValid() || ref.RemoteID == "" {
		return domain.StatusRecord{}, fmt.Errorf("%w: device %s", domain.ErrNotFound, ref)
	}
	id := ref.Key()

	if !d.store.TryBeginProbe(ctx, id) {
		telemetry.ProbesTotal.WithLabelValues(shapeSingle, "skipped").Inc()
		current, _ := d.store.Get(id)
		return current, domain.ErrProbeInFlight
	}

	// An in-flight probe resolves into the store even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	ctx, span := telemetry.Tracer().Start(ctx, "probe.PingDevice")
	defer span.End()
	span.SetAttributes(attribute.String("device.id", id))

	telemetry.ProbesInFlight.Inc()
	defer telemetry.ProbesInFlight.Dec()

	start := time.Now()
	result, err := d.directory.PingDevice(ctx, ref)
	telemetry.ProbeDuration.WithLabelValues(shapeSingle).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		record := domain.TerminalRecord(domain.StatusError, nil, err.Error(), d.now())
		d.store.Set(ctx, id, record)
		telemetry.ProbesTotal.WithLabelValues(shapeSingle, string(domain.StatusError)).Inc()
		d.log.Warn().Err(err).Str("device", id).Msg("Probe dispatch failed")
		if errors.Is(err, domain.ErrUnauthorized) {
			return record, err
		}
		return record, nil
	}

	result.Ref = ref
	records, err := Normalize(result, d.now())
	if err != nil {
		record := domain.TerminalRecord(domain.StatusError, nil, err.Error(), d.now())
		d.store.Set(ctx, id, record)
		return record, nil
	}
	d.store.SetMany(ctx, records)

	record := records[id]
	span.SetAttributes(attribute.String("device.status", string(record.Status)))
	telemetry.ProbesTotal.WithLabelValues(shapeSingle, string(record.Status)).Inc()
	d.log.Debug().Str("device", id).Str("status", string(record.Status)).Msg("Probe resolved")
	return record, nil
}

// PingAllFirewalls probes every firewall in one request and applies the results
// as a single store update. On failure the store is left untouched. Devices
// missing from the response keep their previous records.
func (d *Dispatcher) PingAllFirewalls(ctx context.Context) (domain.BatchSummary, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "probe.PingAllFirewalls")
	defer span.End()

	start := time.Now()
	result, err := d.directory.PingAllFirewalls(ctx)
	telemetry.ProbeDuration.WithLabelValues(shapeBatch).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		telemetry.ProbesTotal.WithLabelValues(shapeBatch, "failed").Inc()
		return domain.BatchSummary{}, fmt.Errorf("ping all firewalls: %w", err)
	}

	result.Kind = domain.KindFirewall
	records, err := Normalize(result, d.now())
	if err != nil {
		return domain.BatchSummary{}, err
	}
	d.store.SetMany(ctx, records)

	summary := summarize(records)
	if result.Total > 0 {
		summary.Total = result.Total
	}
	span.SetAttributes(attribute.Int("probe.applied", summary.Applied))
	telemetry.ProbesTotal.WithLabelValues(shapeBatch, "completed").Inc()
	d.log.Info().
		Int("total", summary.Total).
		Int("online", summary.Online).
		Int("applied", summary.Applied).
		Msg("Firewall batch probe applied")
	return summary, nil
}

// StartCameraSweep starts an asynchronous camera sweep and polls it in the
// background until it finishes, ctx is done, or the task is cancelled. If a
// sweep is already running it is returned instead of starting another.
func (d *Dispatcher) StartCameraSweep(ctx context.Context) (*Task, error) {
	if t := d.runningSweep(); t != nil {
		return t, nil
	}
	v, err, _ := d.kickoff.Do(sweepKey, func() (any, error) {
		if t := d.runningSweep(); t != nil {
			return t, nil
		}
		return d.startSweep(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Task), nil
}

func (d *Dispatcher) runningSweep() *Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sweep != nil && !d.sweep.finished() {
		return d.sweep
	}
	return nil
}

func (d *Dispatcher) startSweep(ctx context.Context) (*Task, error) {
	taskID, err := d.directory.StartCameraPingAll(ctx)
	if err != nil {
		telemetry.ProbesTotal.WithLabelValues(shapeTask, "failed").Inc()
		return nil, fmt.Errorf("start camera sweep: %w", err)
	}
	if taskID == "" {
		return nil, fmt.Errorf("%w: empty task id", domain.ErrProtocol)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("start camera sweep %s: %w", taskID, domain.ErrTaskCancelled)
	}

	taskCtx, cancel := context.WithCancel(ctx)
	task := newTask(taskID, domain.KindCamera, d.now(), cancel)
	d.pruneLocked()
	d.sweep = task
	d.tasks[taskID] = task

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.poll(taskCtx, task)
	}()

	d.log.Info().Str("task", taskID).Msg("Camera sweep started")
	return task, nil
}

// Task looks up a sweep started by this dispatcher.
func (d *Dispatcher) Task(id string) (*Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tasks[id]
	return t, ok
}

// Close cancels every running task and waits for the pollers to exit. A sweep
// whose kickoff is still in flight is discarded once it returns.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	for _, t := range d.tasks {
		t.Cancel()
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) poll(ctx context.Context, task *Task) {
	defer task.cancel()

	ctx, span := telemetry.Tracer().Start(ctx, "probe.CameraSweep")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", task.ID()))

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(d.taskTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			d.end(task, domain.TaskCancelled, domain.ErrTaskCancelled)
			return
		case <-deadline.C:
			d.end(task, domain.TaskFailed, fmt.Errorf("%w after %s", domain.ErrTaskTimeout, d.taskTimeout))
			return
		case <-ticker.C:
		}

		task.countPoll()
		poll, err := d.directory.CameraPingStatus(ctx, task.ID())
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			span.RecordError(err)
			telemetry.TaskPolls.WithLabelValues("error").Inc()
			d.end(task, domain.TaskFailed, fmt.Errorf("check sweep %s: %w", task.ID(), err))
			return
		}
		telemetry.TaskPolls.WithLabelValues(string(poll.State)).Inc()

		if poll.State == domain.TaskPending {
			continue
		}

		poll.Kind = domain.KindCamera
		records, err := Normalize(poll, d.now())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			d.end(task, domain.TaskFailed, err)
			return
		}
		d.apply(ctx, task, records)
		return
	}
}

// apply writes a completed sweep unless the task was cancelled first.
func (d *Dispatcher) apply(ctx context.Context, task *Task, records map[string]domain.StatusRecord) {
	task.mu.Lock()
	defer task.mu.Unlock()

	if ctx.Err() != nil {
		task.finishLocked(domain.TaskCancelled, domain.ErrTaskCancelled, d.now())
		telemetry.ProbesTotal.WithLabelValues(shapeTask, string(domain.TaskCancelled)).Inc()
		return
	}

	d.store.SetMany(ctx, records)
	task.summary = summarize(records)
	task.finishLocked(domain.TaskCompleted, nil, d.now())
	telemetry.ProbesTotal.WithLabelValues(shapeTask, string(domain.TaskCompleted)).Inc()
	d.log.Info().Str("task", task.ID()).Int("applied", len(records)).Msg("Camera sweep applied")
}

func (d *Dispatcher) end(task *Task, state domain.TaskState, err error) {
	task.finish(state, err, d.now())
	telemetry.ProbesTotal.WithLabelValues(shapeTask, string(state)).Inc()
	if state == domain.TaskCancelled {
		d.log.Info().Str("task", task.ID()).Msg("Camera sweep cancelled")
		return
	}
	d.log.Warn().Err(err).Str("task", task.ID()).Msg("Camera sweep failed")
}

// pruneLocked drops finished tasks past their retention. Callers hold d.mu.
func (d *Dispatcher) pruneLocked() {
	cutoff := d.now().Add(-taskRetention)
	for id, t := range d.tasks {
		info := t.Info()
		if info.FinishedAt != nil && info.FinishedAt.Before(cutoff) {
			delete(d.tasks, id)
		}
	}
}

func summarize(records map[string]domain.StatusRecord) domain.BatchSummary {
	s := domain.BatchSummary{Total: len(records), Applied: len(records)}
	for _, r := range records {
		switch r.Status {
		case domain.StatusOnline:
			s.Online++
		case domain.StatusOffline:
			s.Offline++
		case domain.StatusError:
			s.Errors++
		}
	}
	return s
}
