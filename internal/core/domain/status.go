package domain

import "time"

// DeviceStatus is the health state of a single device.
type DeviceStatus string

const (
	StatusIdle    DeviceStatus = "idle"
	StatusLoading DeviceStatus = "loading"
	StatusOnline  DeviceStatus = "online"
	StatusOffline DeviceStatus = "offline"
	StatusError   DeviceStatus = "error"
)

// IsTerminal reports whether the status is the outcome of a finished probe.
func (s DeviceStatus) IsTerminal() bool {
	return s == StatusOnline || s == StatusOffline || s == StatusError
}

// ParseWireStatus maps a directory probe status to a terminal DeviceStatus.
func ParseWireStatus(s string) (DeviceStatus, bool) {
	switch DeviceStatus(s) {
	case StatusOnline, StatusOffline, StatusError:
		return DeviceStatus(s), true
	}
	return "", false
}

// FreshnessWindow is how long a terminal record stays meaningful.
// A stale "online" is indistinguishable from "never probed".
const FreshnessWindow = 5 * time.Minute

// StatusRecord is the last known health of a device.
// LastUpdate is set exactly when a terminal status is recorded.
type StatusRecord struct {
	Status       DeviceStatus `json:"status"`
	ResponseTime *float64     `json:"response_time"`
	LastUpdate   *time.Time   `json:"last_update"`
	Error        string       `json:"error,omitempty"`
}

// LoadingRecord marks a probe in flight.
func LoadingRecord() StatusRecord {
	return StatusRecord{Status: StatusLoading}
}

// TerminalRecord builds a finished-probe record stamped at the given time.
func TerminalRecord(status DeviceStatus, responseTime *float64, message string, at time.Time) StatusRecord {
	ts := at
	return StatusRecord{
		Status:       status,
		ResponseTime: responseTime,
		LastUpdate:   &ts,
		Error:        message,
	}
}

// IsExpired reports whether a record last updated at lastUpdate must be treated as unknown.
func IsExpired(lastUpdate *time.Time, now time.Time) bool {
	if lastUpdate == nil {
		return true
	}
	return now.Sub(*lastUpdate) > FreshnessWindow
}

// IsFresh reports whether the record may contribute to aggregation at now.
func (r StatusRecord) IsFresh(now time.Time) bool {
	return r.Status.IsTerminal() && !IsExpired(r.LastUpdate, now)
}

// ExpiresAt returns the instant after which the record is expired.
func (r StatusRecord) ExpiresAt() (time.Time, bool) {
	if r.LastUpdate == nil {
		return time.Time{}, false
	}
	return r.LastUpdate.Add(FreshnessWindow), true
}

// Equal compares two records by value.
func (r StatusRecord) Equal(o StatusRecord) bool {
	if r.Status != o.Status || r.Error != o.Error {
		return false
	}
	if (r.ResponseTime == nil) != (o.ResponseTime == nil) {
		return false
	}
	if r.ResponseTime != nil && *r.ResponseTime != *o.ResponseTime {
		return false
	}
	if (r.LastUpdate == nil) != (o.LastUpdate == nil) {
		return false
	}
	return r.LastUpdate == nil || r.LastUpdate.Equal(*o.LastUpdate)
}

// StatusChange is published by the status store after every Set/SetMany.
type StatusChange struct {
	Version   uint64                  `json:"version"`
	DeviceIDs []string                `json:"device_ids"`
	Records   map[string]StatusRecord `json:"records"`
}

// StatusSnapshot is an immutable view of the status store at Version.
type StatusSnapshot struct {
	Version uint64
	Records map[string]StatusRecord
}

// Get returns the record for a device.
func (s StatusSnapshot) Get(id string) (StatusRecord, bool) {
	r, ok := s.Records[id]
	return r, ok
}
