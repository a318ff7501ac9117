// Package mock provides a simulated Device Directory Service for demos and tests.
package mock

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed fixtures/default.yaml
var fixtures embed.FS

// Behavior decides how a simulated device answers probes.
type Behavior string

const (
	BehaviorOnline  Behavior = "online"
	BehaviorOffline Behavior = "offline"
	BehaviorError   Behavior = "error"
	BehaviorFlaky   Behavior = "flaky"
)

// DeviceFixture is one simulated device.
type DeviceFixture struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Address  string   `yaml:"address"`
	Lat      *float64 `yaml:"lat"`
	Lng      *float64 `yaml:"lng"`
	Behavior Behavior `yaml:"behavior"`
}

// FirewallTypeFixture groups simulated firewalls.
type FirewallTypeFixture struct {
	ID      string          `yaml:"id"`
	Name    string          `yaml:"name"`
	Devices []DeviceFixture `yaml:"devices"`
}

// DataCenterFixture is one simulated datacenter.
type DataCenterFixture struct {
	ID            string                `yaml:"id"`
	Name          string                `yaml:"name"`
	Description   string                `yaml:"description"`
	Location      string                `yaml:"location"`
	Region        string                `yaml:"region"`
	Lat           float64               `yaml:"lat"`
	Lng           float64               `yaml:"lng"`
	Active        bool                  `yaml:"active"`
	FirewallTypes []FirewallTypeFixture `yaml:"firewall_types"`
}

// Fixture describes the whole simulated fleet.
type Fixture struct {
	// SweepPendingPolls is how many status checks report pending before a sweep completes.
	SweepPendingPolls int `yaml:"sweep_pending_polls"`
	// LatencyMS is the [min, max] simulated response time.
	LatencyMS   [2]float64          `yaml:"latency_ms"`
	DataCenters []DataCenterFixture `yaml:"datacenters"`
	Cameras     []DeviceFixture     `yaml:"cameras"`
}

// DefaultFixture returns the embedded demo fleet.
func DefaultFixture() (*Fixture, error) {
	data, err := fixtures.ReadFile("fixtures/default.yaml")
	if err != nil {
		return nil, err
	}
	return ParseFixture(data)
}

// LoadFixture reads a fixture file. An empty path selects the embedded default.
func LoadFixture(path string) (*Fixture, error) {
	if path == "" {
		return DefaultFixture()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes and validates a YAML fixture.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Fixture) validate() error {
	seen := make(map[string]bool)
	check := func(kind, id string, b Behavior) error {
		if id == "" {
			return fmt.Errorf("fixture: %s without id", kind)
		}
		key := kind + ":" + id
		if seen[key] {
			return fmt.Errorf("fixture: duplicate %s", key)
		}
		seen[key] = true
		switch b {
		case "", BehaviorOnline, BehaviorOffline, BehaviorError, BehaviorFlaky:
			return nil
		}
		return fmt.Errorf("fixture: %s has unknown behavior %q", key, b)
	}

	for _, dc := range f.DataCenters {
		if err := check("datacenter", dc.ID, ""); err != nil {
			return err
		}
		for _, ft := range dc.FirewallTypes {
			for _, d := range ft.Devices {
				if err := check("firewall", d.ID, d.Behavior); err != nil {
					return err
				}
			}
		}
	}
	for _, c := range f.Cameras {
		if err := check("camera", c.ID, c.Behavior); err != nil {
			return err
		}
	}
	if f.LatencyMS[1] < f.LatencyMS[0] {
		f.LatencyMS[0], f.LatencyMS[1] = f.LatencyMS[1], f.LatencyMS[0]
	}
	return nil
}
