package geo

import (
	"errors"
	"math"
)

var ErrInvalidCoordinate = errors.New("coordinate out of range")

// Location represents a geographic coordinate.
type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// NewLocation validates and builds a Location.
func NewLocation(lat, lng float64) (Location, error) {
	l := Location{Latitude: lat, Longitude: lng}
	if !l.Valid() {
		return Location{}, ErrInvalidCoordinate
	}
	return l, nil
}

// Valid reports whether the coordinate is on the globe.
func (l Location) Valid() bool {
	if math.IsNaN(l.Latitude) || math.IsNaN(l.Longitude) {
		return false
	}
	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180
}

// Provider defines the interface for obtaining the default map center.
type Provider interface {
	GetLocation() Location
}

// StaticProvider implements Provider with a fixed location.
type StaticProvider struct {
	Lat float64
	Lng float64
}

// NewStaticProvider creates a provider that always returns the same location.
func NewStaticProvider(lat, lng float64) *StaticProvider {
	return &StaticProvider{
		Lat: lat,
		Lng: lng,
	}
}

// GetLocation returns the fixed location.
func (s *StaticProvider) GetLocation() Location {
	return Location{
		Latitude:  s.Lat,
		Longitude: s.Lng,
	}
}

// Bounds is the viewport that fits a set of markers.
type Bounds struct {
	SouthWest Location `json:"south_west"`
	NorthEast Location `json:"north_east"`
	empty     bool
}

// EmptyBounds returns bounds that contain nothing yet.
func EmptyBounds() Bounds {
	return Bounds{empty: true}
}

// Extend grows b to include l. Invalid locations are ignored.
func (b Bounds) Extend(l Location) Bounds {
	if !l.Valid() {
		return b
	}
	if b.empty {
		return Bounds{SouthWest: l, NorthEast: l}
	}
	b.SouthWest.Latitude = math.Min(b.SouthWest.Latitude, l.Latitude)
	b.SouthWest.Longitude = math.Min(b.SouthWest.Longitude, l.Longitude)
	b.NorthEast.Latitude = math.Max(b.NorthEast.Latitude, l.Latitude)
	b.NorthEast.Longitude = math.Max(b.NorthEast.Longitude, l.Longitude)
	return b
}

// IsEmpty reports whether no location was added.
func (b Bounds) IsEmpty() bool {
	return b.empty
}

// Center returns the midpoint of the bounds, or fallback when empty.
func (b Bounds) Center(fallback Location) Location {
	if b.empty {
		return fallback
	}
	return Location{
		Latitude:  (b.SouthWest.Latitude + b.NorthEast.Latitude) / 2,
		Longitude: (b.SouthWest.Longitude + b.NorthEast.Longitude) / 2,
	}
}
