// Package topology caches the directory's datacenter tree for one map session.
// Datacenter hierarchies are fetched lazily, on first expansion.
package topology

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
	"github.com/lcalzada-xor/fleetmap/internal/core/ports"
	"github.com/lcalzada-xor/fleetmap/internal/logger"
	"github.com/lcalzada-xor/fleetmap/internal/telemetry"
)

var _ ports.TopologyReader = (*Service)(nil)

// Service holds the cached topology. Published topologies are never mutated;
// every change builds new slices and bumps Version.
type Service struct {
	directory ports.Directory
	log       zerolog.Logger

	mu     sync.RWMutex
	topo   domain.Topology
	loaded bool

	expand singleflight.Group

	obsMu     sync.RWMutex
	observers []ports.TopologyObserver
}

// NewService creates an empty topology cache.
func NewService(directory ports.Directory) *Service {
	return &Service{
		directory: directory,
		log:       logger.WithComponent("topology"),
	}
}

// AddObserver registers an observer for topology changes.
func (s *Service) AddObserver(o ports.TopologyObserver) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, o)
}

// Current returns the cached topology.
func (s *Service) Current() domain.Topology {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topo
}

// Loaded reports whether Load has succeeded in this session.
func (s *Service) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Load fetches the datacenter list and camera markers once per session.
// Later calls are no-ops; use Refresh to fetch again.
func (s *Service) Load(ctx context.Context) error {
	if s.Loaded() {
		return nil
	}
	return s.Refresh(ctx)
}

// Refresh replaces the cached topology with a fresh datacenter list.
// Expanded hierarchies are dropped and will be fetched again on demand.
func (s *Service) Refresh(ctx context.Context) error {
	ctx, span := telemetry.Tracer().Start(ctx, "topology.Refresh")
	defer span.End()

	var (
		datacenters []domain.DataCenter
		cameras     []domain.Device
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		datacenters, err = s.directory.ListDataCenters(gctx)
		if err != nil {
			return fmt.Errorf("list datacenters: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		cameras, err = s.directory.ListCameras(gctx)
		if err != nil {
			return fmt.Errorf("list cameras: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return err
	}

	for i := range datacenters {
		datacenters[i].FirewallTypes = nil
		datacenters[i].Expanded = false
	}

	s.mu.Lock()
	s.topo = domain.Topology{
		Version:     s.topo.Version + 1,
		DataCenters: datacenters,
		Cameras:     cameras,
	}
	s.loaded = true
	topo := s.topo
	s.mu.Unlock()

	span.SetAttributes(
		attribute.Int("topology.datacenters", len(datacenters)),
		attribute.Int("topology.cameras", len(cameras)),
	)
	s.log.Info().
		Int("datacenters", len(datacenters)).
		Int("cameras", len(cameras)).
		Uint64("version", topo.Version).
		Msg("Topology loaded")
	s.notify(ctx, topo)
	return nil
}

// Expand populates one datacenter's firewall types and devices. An already
// expanded datacenter is returned from cache. Concurrent expansions share one
// hierarchy request.
func (s *Service) Expand(ctx context.Context, datacenterID string) (domain.DataCenter, error) {
	s.mu.RLock()
	dc, ok := s.topo.DataCenter(datacenterID)
	s.mu.RUnlock()
	if !ok {
		return domain.DataCenter{}, fmt.Errorf("%w: datacenter %s", domain.ErrNotFound, datacenterID)
	}
	if dc.Expanded {
		return dc, nil
	}

	ctx, span := telemetry.Tracer().Start(ctx, "topology.Expand")
	defer span.End()
	span.SetAttributes(attribute.String("datacenter.id", datacenterID))

	tree, err := s.fetchHierarchy(ctx)
	if err != nil {
		span.RecordError(err)
		return domain.DataCenter{}, err
	}
	if _, ok := findDataCenter(tree, datacenterID); !ok {
		return domain.DataCenter{}, fmt.Errorf("%w: datacenter %s missing from hierarchy", domain.ErrNotFound, datacenterID)
	}

	topo := s.populate(ctx, tree, func(id string) bool { return id == datacenterID })
	expanded, ok := topo.DataCenter(datacenterID)
	if !ok {
		return domain.DataCenter{}, fmt.Errorf("%w: datacenter %s", domain.ErrNotFound, datacenterID)
	}
	return expanded, nil
}

// ExpandAll populates every datacenter from a single hierarchy request.
func (s *Service) ExpandAll(ctx context.Context) error {
	ctx, span := telemetry.Tracer().Start(ctx, "topology.ExpandAll")
	defer span.End()

	tree, err := s.fetchHierarchy(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}
	s.populate(ctx, tree, func(string) bool { return true })
	return nil
}

func (s *Service) fetchHierarchy(ctx context.Context) ([]domain.DataCenter, error) {
	v, err, _ := s.expand.Do("hierarchy", func() (interface{}, error) {
		return s.directory.Hierarchy(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch hierarchy: %w", err)
	}
	return v.([]domain.DataCenter), nil
}

// populate copies firewall types from tree into every cached, unexpanded
// datacenter selected by want. It publishes a new version only if something changed.
func (s *Service) populate(ctx context.Context, tree []domain.DataCenter, want func(id string) bool) domain.Topology {
	s.mu.Lock()
	datacenters := make([]domain.DataCenter, len(s.topo.DataCenters))
	copy(datacenters, s.topo.DataCenters)

	var expandedIDs []string
	for i, dc := range datacenters {
		if dc.Expanded || !want(dc.ID) {
			continue
		}
		fetched, ok := findDataCenter(tree, dc.ID)
		if !ok {
			continue
		}
		dc.FirewallTypes = withParents(fetched.FirewallTypes)
		dc.Expanded = true
		if dc.Position == nil {
			dc.Position = fetched.Position
		}
		datacenters[i] = dc
		expandedIDs = append(expandedIDs, dc.ID)
	}

	if len(expandedIDs) == 0 {
		topo := s.topo
		s.mu.Unlock()
		return topo
	}

	s.topo = domain.Topology{
		Version:     s.topo.Version + 1,
		DataCenters: datacenters,
		Cameras:     s.topo.Cameras,
	}
	topo := s.topo
	s.mu.Unlock()

	s.log.Info().
		Strs("datacenters", expandedIDs).
		Uint64("version", topo.Version).
		Msg("Datacenters expanded")
	s.notify(ctx, topo)
	return topo
}

func (s *Service) notify(ctx context.Context, topo domain.Topology) {
	s.obsMu.RLock()
	observers := make([]ports.TopologyObserver, len(s.observers))
	copy(observers, s.observers)
	s.obsMu.RUnlock()

	for _, o := range observers {
		o.OnTopologyChanged(ctx, topo)
	}
}

// withParents copies the firewall types, stamping each device with its type id.
func withParents(types []domain.FirewallType) []domain.FirewallType {
	out := make([]domain.FirewallType, len(types))
	for i, ft := range types {
		devices := make([]domain.Device, len(ft.Devices))
		for j, d := range ft.Devices {
			d.FirewallTypeID = ft.ID
			devices[j] = d
		}
		out[i] = domain.FirewallType{ID: ft.ID, Name: ft.Name, Devices: devices}
	}
	return out
}

func findDataCenter(tree []domain.DataCenter, id string) (domain.DataCenter, bool) {
	for _, dc := range tree {
		if dc.ID == id {
			return dc, true
		}
	}
	return domain.DataCenter{}, false
}
