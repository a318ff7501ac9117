package domain

import (
	"fmt"
	"strings"

	"github.com/lcalzada-xor/fleetmap/internal/geo"
)

// DeviceKind identifies the directory collection a device belongs to.
type DeviceKind string

const (
	KindFirewall DeviceKind = "firewall"
	KindCamera   DeviceKind = "camera"
)

// IsValid reports whether k is a kind the directory knows how to probe.
func (k DeviceKind) IsValid() bool {
	return k == KindFirewall || k == KindCamera
}

// DeviceRef addresses a device in the directory.
type DeviceRef struct {
	Kind     DeviceKind `json:"kind"`
	RemoteID string     `json:"remote_id"`
}

// Key returns the identifier used by the status store.
// Firewalls and cameras live in separate directory collections whose ids may collide,
// so the key is qualified with the kind.
func (r DeviceRef) Key() string {
	return string(r.Kind) + ":" + r.RemoteID
}

func (r DeviceRef) String() string {
	return r.Key()
}

// ParseDeviceKey is the inverse of DeviceRef.Key.
func ParseDeviceKey(key string) (DeviceRef, error) {
	kind, id, ok := strings.Cut(key, ":")
	if !ok || id == "" {
		return DeviceRef{}, fmt.Errorf("%w: malformed device key %q", ErrNotFound, key)
	}
	ref := DeviceRef{Kind: DeviceKind(kind), RemoteID: id}
	if !ref.Kind.IsValid() {
		return DeviceRef{}, fmt.Errorf("%w: unknown device kind %q", ErrNotFound, kind)
	}
	return ref, nil
}

// Device is reference data owned by the directory. The console never mutates it.
type Device struct {
	ID             string        `json:"id"`
	Ref            DeviceRef     `json:"ref"`
	Name           string        `json:"name"`
	Address        string        `json:"address"`
	FirewallTypeID string        `json:"firewall_type_id,omitempty"`
	Position       *geo.Location `json:"position,omitempty"`
}

// NewDevice builds a Device whose ID is derived from its directory reference.
func NewDevice(ref DeviceRef, name, address string) Device {
	return Device{
		ID:      ref.Key(),
		Ref:     ref,
		Name:    name,
		Address: address,
	}
}

// FirewallType groups devices under a datacenter. It carries no status of its own.
type FirewallType struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Devices []Device `json:"devices"`
}

// DataCenter is a map site. FirewallTypes is only populated once the datacenter
// has been expanded.
type DataCenter struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Location      string         `json:"location,omitempty"`
	Region        string         `json:"region,omitempty"`
	Status        string         `json:"status,omitempty"`
	Active        bool           `json:"is_active"`
	Position      *geo.Location  `json:"position,omitempty"`
	FirewallTypes []FirewallType `json:"firewall_types,omitempty"`
	Expanded      bool           `json:"expanded"`
}

// Devices enumerates every device under the datacenter's firewall types.
func (dc DataCenter) Devices() []Device {
	var out []Device
	for _, ft := range dc.FirewallTypes {
		out = append(out, ft.Devices...)
	}
	return out
}

// Topology is the console's cached, possibly partial copy of the directory.
type Topology struct {
	Version     uint64       `json:"version"`
	DataCenters []DataCenter `json:"datacenters"`
	Cameras     []Device     `json:"cameras"`
}

// DataCenter returns the datacenter with the given id.
func (t Topology) DataCenter(id string) (DataCenter, bool) {
	for _, dc := range t.DataCenters {
		if dc.ID == id {
			return dc, true
		}
	}
	return DataCenter{}, false
}

// AllDevices returns the devices of every expanded datacenter followed by the cameras.
func (t Topology) AllDevices() []Device {
	var out []Device
	for _, dc := range t.DataCenters {
		out = append(out, dc.Devices()...)
	}
	return append(out, t.Cameras...)
}

// Device looks a device up by store key.
func (t Topology) Device(id string) (Device, bool) {
	for _, d := range t.AllDevices() {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}
