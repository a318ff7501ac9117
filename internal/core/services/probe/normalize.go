package probe

import (
	"fmt"
	"time"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
)

// Normalize converts any probe outcome into the store updates it implies,
// stamped at now. Results without a device id are dropped. A pending task
// yields no updates; a failed task yields ErrTaskFailed and no updates.
func Normalize(outcome domain.ProbeOutcome, now time.Time) (map[string]domain.StatusRecord, error) {
	switch o := outcome.(type) {
	case domain.SingleResult:
		return map[string]domain.StatusRecord{o.Ref.Key(): recordFor(o.Result, now)}, nil

	case domain.BatchResult:
		return collect(o.Kind, o.Results, now), nil

	case domain.TaskPoll:
		switch o.State {
		case domain.TaskCompleted:
			return collect(o.Kind, o.Results, now), nil
		case domain.TaskFailed:
			return nil, taskFailure(o.Message)
		case domain.TaskPending:
			return nil, nil
		default:
			return nil, fmt.Errorf("%w: task %s reported state %q", domain.ErrProtocol, o.TaskID, o.State)
		}

	default:
		return nil, fmt.Errorf("%w: unsupported outcome %T", domain.ErrProtocol, outcome)
	}
}

func collect(kind domain.DeviceKind, results []domain.DeviceResult, now time.Time) map[string]domain.StatusRecord {
	records := make(map[string]domain.StatusRecord, len(results))
	for _, r := range results {
		if r.RemoteID == "" {
			continue
		}
		ref := domain.DeviceRef{Kind: kind, RemoteID: r.RemoteID}
		records[ref.Key()] = recordFor(r, now)
	}
	return records
}

// recordFor maps one wire result to a terminal record. Unrecognized statuses
// become error records so they never count as online.
func recordFor(r domain.DeviceResult, now time.Time) domain.StatusRecord {
	status, ok := domain.ParseWireStatus(r.Status)
	if !ok {
		return domain.TerminalRecord(domain.StatusError, nil, fmt.Sprintf("unrecognized status %q", r.Status), now)
	}
	return domain.TerminalRecord(status, r.ResponseTime, r.Message, now)
}

func taskFailure(message string) error {
	if message == "" {
		return domain.ErrTaskFailed
	}
	return fmt.Errorf("%w: %s", domain.ErrTaskFailed, message)
}
