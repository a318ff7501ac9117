package domain

import "time"

// ProbeOutcome is the tagged union of the directory's probe response shapes.
// Exactly one of SingleResult, BatchResult or TaskPoll implements it.
type ProbeOutcome interface {
	isProbeOutcome()
}

// DeviceResult is one device's entry in any probe response.
type DeviceResult struct {
	RemoteID     string   `json:"id"`
	Status       string   `json:"status"`
	ResponseTime *float64 `json:"response_time"`
	Message      string   `json:"message,omitempty"`
}

// SingleResult is the response to a single-device probe.
type SingleResult struct {
	Ref    DeviceRef
	Result DeviceResult
}

// BatchResult is the response to a fleet-wide synchronous probe.
type BatchResult struct {
	Kind    DeviceKind
	Results []DeviceResult
	Total   int
	Online  int
	Offline int
	Errors  int
}

// TaskState is the lifecycle of a server-side probe task.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
	TaskCancelled TaskState = "cancelled"
)

// IsFinal reports whether polling must stop.
func (s TaskState) IsFinal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// TaskPoll is one status check of an asynchronous probe task.
type TaskPoll struct {
	Kind    DeviceKind
	TaskID  string
	State   TaskState
	Results []DeviceResult
	Message string
}

func (SingleResult) isProbeOutcome() {}
func (BatchResult) isProbeOutcome()  {}
func (TaskPoll) isProbeOutcome()     {}

// BatchSummary reports what a batch probe applied to the store.
type BatchSummary struct {
	Total   int `json:"total"`
	Online  int `json:"online"`
	Offline int `json:"offline"`
	Errors  int `json:"errors"`
	Applied int `json:"applied"`
}

// TaskInfo is a point-in-time view of an asynchronous probe task.
type TaskInfo struct {
	ID         string       `json:"id"`
	Kind       DeviceKind   `json:"kind"`
	State      TaskState    `json:"state"`
	Polls      int          `json:"polls"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Error      string       `json:"error,omitempty"`
	Summary    BatchSummary `json:"summary"`
}
