package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lcalzada-xor/fleetmap/internal/adapters/web"
)

// MapHandler serves the map view and the topology it is drawn from.
type MapHandler struct {
	Service web.ConsoleService
}

func NewMapHandler(service web.ConsoleService) *MapHandler {
	return &MapHandler{Service: service}
}

// HandleMap returns the current map view, loading the topology on first use.
func (h *MapHandler) HandleMap(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.MapView(r.Context())
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleStats returns the live statistics summary.
func (h *MapHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.Stats(r.Context())
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleReload refetches the datacenter list.
func (h *MapHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	topo, err := h.Service.LoadTopology(r.Context())
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, topo)
}

// HandleExpand fetches one datacenter's firewall types and devices.
func (h *MapHandler) HandleExpand(w http.ResponseWriter, r *http.Request) {
	dc, err := h.Service.ExpandDataCenter(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, dc)
}
