package probe

import (
	"context"
	"sync"
	"time"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
)

// Task is a handle on an asynchronous probe sweep. Cancelling it stops the
// polling loop; once Cancel returns the task will not write to the store.
type Task struct {
	id        string
	kind      domain.DeviceKind
	startedAt time.Time

	mu         sync.Mutex
	state      domain.TaskState
	err        error
	polls      int
	summary    domain.BatchSummary
	finishedAt *time.Time

	done   chan struct{}
	cancel context.CancelFunc
}

func newTask(id string, kind domain.DeviceKind, startedAt time.Time, cancel context.CancelFunc) *Task {
	return &Task{
		id:        id,
		kind:      kind,
		startedAt: startedAt,
		state:     domain.TaskPending,
		done:      make(chan struct{}),
		cancel:    cancel,
	}
}

func (t *Task) ID() string { return t.id }

// Done is closed when the task reaches a final state.
func (t *Task) Done() <-chan struct{} { return t.done }

func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Task) State() domain.TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Polls returns the number of status checks issued so far.
func (t *Task) Polls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.polls
}

// Cancel stops polling. It is a no-op on a finished task.
func (t *Task) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.IsFinal() {
		return
	}
	t.cancel()
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Info returns a snapshot suitable for transport.
func (t *Task) Info() domain.TaskInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	info := domain.TaskInfo{
		ID:         t.id,
		Kind:       t.kind,
		State:      t.state,
		Polls:      t.polls,
		StartedAt:  t.startedAt,
		FinishedAt: t.finishedAt,
		Summary:    t.summary,
	}
	if t.err != nil {
		info.Error = t.err.Error()
	}
	return info
}

func (t *Task) countPoll() {
	t.mu.Lock()
	t.polls++
	t.mu.Unlock()
}

// finishLocked moves the task to a final state. Callers hold t.mu.
func (t *Task) finishLocked(state domain.TaskState, err error, at time.Time) {
	if t.state.IsFinal() {
		return
	}
	t.state = state
	t.err = err
	t.finishedAt = &at
	close(t.done)
}

func (t *Task) finish(state domain.TaskState, err error, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finishLocked(state, err, at)
}

func (t *Task) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
