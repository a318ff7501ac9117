package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lcalzada-xor/fleetmap/internal/adapters/web"
	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
)

// ProbeHandler triggers health checks.
type ProbeHandler struct {
	Service web.ConsoleService
}

func NewProbeHandler(service web.ConsoleService) *ProbeHandler {
	return &ProbeHandler{Service: service}
}

type pingResponse struct {
	Device string              `json:"device"`
	Record domain.StatusRecord `json:"record"`
}

// HandlePing probes one device. A device already being probed answers 409
// with its loading record.
func (h *ProbeHandler) HandlePing(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ref := domain.DeviceRef{Kind: domain.DeviceKind(vars["kind"]), RemoteID: vars["id"]}
	if !ref.Kind.IsValid() || ref.RemoteID == "" {
		badRequest(w, "unknown device kind "+vars["kind"])
		return
	}

	rec, err := h.Service.PingDevice(r.Context(), ref)
	resp := pingResponse{Device: ref.Key(), Record: rec}
	if err != nil {
		if errors.Is(err, domain.ErrProbeInFlight) {
			writeError(w, r, err, resp)
			return
		}
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandlePingFirewalls runs the synchronous batch probe.
func (h *ProbeHandler) HandlePingFirewalls(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Service.PingAllFirewalls(r.Context())
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandleStartSweep starts the asynchronous camera sweep.
func (h *ProbeHandler) HandleStartSweep(w http.ResponseWriter, r *http.Request) {
	task, err := h.Service.StartCameraSweep(r.Context())
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	w.Header().Set("Location", "/api/probes/tasks/"+task.ID)
	writeJSON(w, http.StatusAccepted, task)
}

// HandleTask reports the state of a sweep.
func (h *ProbeHandler) HandleTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.Service.Task(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// HandleCancelTask stops a sweep.
func (h *ProbeHandler) HandleCancelTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.Service.CancelTask(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, task)
}
