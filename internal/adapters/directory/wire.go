package directory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
	"github.com/lcalzada-xor/fleetmap/internal/geo"
)

// flexID accepts ids serialized as JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id %s: %w", b, err)
	}
	*f = flexID(n.String())
	return nil
}

// flexFloat accepts decimals serialized as numbers, strings or null.
type flexFloat struct {
	Value float64
	Valid bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*f = flexFloat{}
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("decimal %s: %w", b, err)
	}
	*f = flexFloat{Value: v, Valid: true}
	return nil
}

func position(lat, lng flexFloat) *geo.Location {
	if !lat.Valid || !lng.Valid {
		return nil
	}
	loc, err := geo.NewLocation(lat.Value, lng.Value)
	if err != nil {
		return nil
	}
	return &loc
}

type page[T any] struct {
	Count   int    `json:"count"`
	Next    string `json:"next"`
	Results []T    `json:"results"`
}

type dataCenterDTO struct {
	ID            flexID            `json:"id"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Location      string            `json:"location"`
	Latitude      flexFloat         `json:"latitude"`
	Longitude     flexFloat         `json:"longitude"`
	IsActive      *bool             `json:"is_active"`
	Region        string            `json:"region"`
	Status        string            `json:"status"`
	FirewallTypes []firewallTypeDTO `json:"firewall_types"`
}

type firewallTypeDTO struct {
	ID        flexID      `json:"id"`
	Name      string      `json:"name"`
	Devices   []deviceDTO `json:"devices"`
	Firewalls []deviceDTO `json:"firewalls"`
}

type deviceDTO struct {
	ID        flexID    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	IPAddress string    `json:"ip_address"`
	Latitude  flexFloat `json:"latitude"`
	Longitude flexFloat `json:"longitude"`
}

type resultDTO struct {
	ID           flexID    `json:"id"`
	Status       string    `json:"status"`
	ResponseTime flexFloat `json:"response_time"`
	Message      string    `json:"message"`
	Error        string    `json:"error"`
}

type batchDTO struct {
	Results []resultDTO `json:"results"`
	Total   int         `json:"total"`
	Online  int         `json:"online"`
	Offline int         `json:"offline"`
	Errors  int         `json:"errors"`
}

type taskDTO struct {
	TaskID flexID `json:"task_id"`
}

type taskStatusDTO struct {
	Status  string      `json:"status"`
	Results []resultDTO `json:"results"`
	Message string      `json:"message"`
	Error   string      `json:"error"`
}

func (d dataCenterDTO) toDomain() domain.DataCenter {
	dc := domain.DataCenter{
		ID:          string(d.ID),
		Name:        d.Name,
		Description: d.Description,
		Location:    d.Location,
		Region:      d.Region,
		Status:      d.Status,
		Active:      d.IsActive == nil || *d.IsActive,
		Position:    position(d.Latitude, d.Longitude),
	}
	if d.FirewallTypes != nil {
		dc.FirewallTypes = make([]domain.FirewallType, 0, len(d.FirewallTypes))
		for _, ft := range d.FirewallTypes {
			dc.FirewallTypes = append(dc.FirewallTypes, ft.toDomain())
		}
	}
	return dc
}

func (f firewallTypeDTO) toDomain() domain.FirewallType {
	devices := f.Devices
	if len(devices) == 0 {
		devices = f.Firewalls
	}
	ft := domain.FirewallType{ID: string(f.ID), Name: f.Name, Devices: make([]domain.Device, 0, len(devices))}
	for _, d := range devices {
		if d.ID == "" {
			continue
		}
		ft.Devices = append(ft.Devices, d.toDomain(domain.KindFirewall))
	}
	return ft
}

func (d deviceDTO) toDomain(kind domain.DeviceKind) domain.Device {
	addr := d.Address
	if addr == "" {
		addr = d.IPAddress
	}
	dev := domain.NewDevice(domain.DeviceRef{Kind: kind, RemoteID: string(d.ID)}, d.Name, addr)
	dev.Position = position(d.Latitude, d.Longitude)
	return dev
}

func (r resultDTO) toDomain() domain.DeviceResult {
	res := domain.DeviceResult{RemoteID: string(r.ID), Status: r.Status, Message: r.Message}
	if res.Message == "" {
		res.Message = r.Error
	}
	if r.ResponseTime.Valid {
		rt := r.ResponseTime.Value
		res.ResponseTime = &rt
	}
	return res
}

func results(in []resultDTO) []domain.DeviceResult {
	out := make([]domain.DeviceResult, 0, len(in))
	for _, r := range in {
		out = append(out, r.toDomain())
	}
	return out
}

// decodeList accepts either a bare JSON array or a paginated envelope.
func decodeList[T any](body []byte) ([]T, string, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var items []T
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, "", err
		}
		return items, "", nil
	}
	var p page[T]
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, "", err
	}
	return p.Results, p.Next, nil
}
