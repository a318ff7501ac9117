package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/lcalzada-xor/fleetmap/internal/adapters/web"
)

// maxTokenBody bounds the renew request body.
const maxTokenBody = 16 << 10

// SessionHandler exposes the directory session.
type SessionHandler struct {
	Service web.ConsoleService
}

func NewSessionHandler(service web.ConsoleService) *SessionHandler {
	return &SessionHandler{Service: service}
}

func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Service.SessionState())
}

// HandleRenew installs a new directory token.
func (h *SessionHandler) HandleRenew(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTokenBody)).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if err := h.Service.RenewSession(r.Context(), req.Token); err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, h.Service.SessionState())
}
