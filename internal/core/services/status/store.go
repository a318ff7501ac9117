package status

import (
	"context"
	"sort"
	"sync"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
	"github.com/lcalzada-xor/fleetmap/internal/core/ports"
	"github.com/lcalzada-xor/fleetmap/internal/telemetry"
)

var _ ports.StatusStore = (*Store)(nil)

// Store maps device ids to their last known StatusRecord.
// Records are never deleted; stale ones stay until overwritten.
type Store struct {
	// writeMu serializes mutations together with their notification so observers
	// see changes in version order.
	writeMu sync.Mutex
	mu      sync.RWMutex
	records map[string]domain.StatusRecord
	version uint64
	subject *Subject
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]domain.StatusRecord),
		subject: NewSubject(),
	}
}

// AddObserver registers an observer for change events.
func (s *Store) AddObserver(observer ports.StatusObserver) {
	s.subject.AddObserver(observer)
}

// Get returns the record for a device.
func (s *Store) Get(id string) (domain.StatusRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return r, ok
}

// Version increments once per effective mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot returns a copy of every record at the current version.
func (s *Store) Snapshot() domain.StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make(map[string]domain.StatusRecord, len(s.records))
	for id, r := range s.records {
		records[id] = r
	}
	return domain.StatusSnapshot{Version: s.version, Records: records}
}

// Set replaces the record of one device.
func (s *Store) Set(ctx context.Context, id string, record domain.StatusRecord) {
	s.SetMany(ctx, map[string]domain.StatusRecord{id: record})
}

// SetMany replaces several records as one logical step: readers never observe a
// partially applied batch, and observers receive a single change event.
// Records equal to the stored value are skipped; if nothing changes no event is sent.
func (s *Store) SetMany(ctx context.Context, records map[string]domain.StatusRecord) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	changed := make(map[string]domain.StatusRecord, len(records))
	for id, rec := range records {
		if existing, ok := s.records[id]; ok && existing.Equal(rec) {
			continue
		}
		s.records[id] = rec
		changed[id] = rec
	}
	if len(changed) == 0 {
		s.mu.Unlock()
		return
	}
	s.version++
	change := newChange(s.version, changed)
	s.mu.Unlock()

	telemetry.StoreVersion.Set(float64(change.Version))
	s.subject.Notify(ctx, change)
}

// TryBeginProbe atomically marks a device as loading.
// It returns false, leaving the store untouched, if the device is already loading.
func (s *Store) TryBeginProbe(ctx context.Context, id string) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if existing, ok := s.records[id]; ok && existing.Status == domain.StatusLoading {
		s.mu.Unlock()
		return false
	}
	rec := domain.LoadingRecord()
	s.records[id] = rec
	s.version++
	change := newChange(s.version, map[string]domain.StatusRecord{id: rec})
	s.mu.Unlock()

	telemetry.StoreVersion.Set(float64(change.Version))
	s.subject.Notify(ctx, change)
	return true
}

func newChange(version uint64, changed map[string]domain.StatusRecord) domain.StatusChange {
	ids := make([]string, 0, len(changed))
	for id := range changed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return domain.StatusChange{Version: version, DeviceIDs: ids, Records: changed}
}
