package status

import (
	"context"
	"sync"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
	"github.com/lcalzada-xor/fleetmap/internal/core/ports"
)

// Subject manages status observers and notifies them of changes.
type Subject struct {
	observers []ports.StatusObserver
	mu        sync.RWMutex
}

// NewSubject creates a new subject.
func NewSubject() *Subject {
	return &Subject{
		observers: make([]ports.StatusObserver, 0),
	}
}

// AddObserver registers a new observer.
func (s *Subject) AddObserver(observer ports.StatusObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, observer)
}

// Notify calls every observer in registration order.
// Observers run on the writer's goroutine and must not write back to the store.
func (s *Subject) Notify(ctx context.Context, change domain.StatusChange) {
	s.mu.RLock()
	observers := make([]ports.StatusObserver, len(s.observers))
	copy(observers, s.observers)
	s.mu.RUnlock()

	for _, obs := range observers {
		obs.OnStatusChanged(ctx, change)
	}
}

// ObserverFunc adapts a function to ports.StatusObserver.
type ObserverFunc func(ctx context.Context, change domain.StatusChange)

func (f ObserverFunc) OnStatusChanged(ctx context.Context, change domain.StatusChange) {
	f(ctx, change)
}
