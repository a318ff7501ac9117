package presentation

import "github.com/lcalzada-xor/fleetmap/internal/core/domain"

// Icon is a marker glyph. The rendering surface diffs markers by icon pointer,
// so a palette hands out the same *Icon for the same status every time.
type Icon struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Color string `json:"color"`
	Size  [2]int `json:"size"`
}

// Palette is the fixed set of icons an adapter chooses from.
type Palette struct {
	DataCenterOnline  *Icon
	DataCenterOffline *Icon
	DataCenterPartial *Icon
	DataCenterUnknown *Icon

	DeviceOnline  *Icon
	DeviceOffline *Icon
	DeviceDefault *Icon
}

// NewPalette builds the default icon set. Each call returns fresh icons.
func NewPalette(assetBase string) Palette {
	icon := func(name, color string, size int) *Icon {
		return &Icon{
			Name:  name,
			URL:   assetBase + "/" + name + ".svg",
			Color: color,
			Size:  [2]int{size, size},
		}
	}
	return Palette{
		DataCenterOnline:  icon("datacenter-online", "#16a34a", 32),
		DataCenterOffline: icon("datacenter-offline", "#dc2626", 32),
		DataCenterPartial: icon("datacenter-partial", "#f59e0b", 32),
		DataCenterUnknown: icon("datacenter-unknown", "#6b7280", 32),
		DeviceOnline:      icon("device-online", "#16a34a", 20),
		DeviceOffline:     icon("device-offline", "#dc2626", 20),
		DeviceDefault:     icon("device-default", "#2563eb", 20),
	}
}

// ForDataCenter picks the icon for an aggregate status.
func (p Palette) ForDataCenter(status domain.AggregateStatus) *Icon {
	switch status {
	case domain.AggregateOnline:
		return p.DataCenterOnline
	case domain.AggregateOffline:
		return p.DataCenterOffline
	case domain.AggregatePartial:
		return p.DataCenterPartial
	default:
		return p.DataCenterUnknown
	}
}

// ForDevice picks the icon for a device's effective status. Devices have no
// partial state; anything not freshly probed is drawn as untested.
func (p Palette) ForDevice(status domain.DeviceStatus) *Icon {
	switch status {
	case domain.StatusOnline:
		return p.DeviceOnline
	case domain.StatusOffline, domain.StatusError:
		return p.DeviceOffline
	default:
		return p.DeviceDefault
	}
}
