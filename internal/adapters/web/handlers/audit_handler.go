package handlers

import (
	"net/http"
	"strconv"

	"github.com/lcalzada-xor/fleetmap/internal/adapters/web"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AuditHandler handles audit logging operations
type AuditHandler struct {
	Service web.ConsoleService
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(service web.ConsoleService) *AuditHandler {
	return &AuditHandler{
		Service: service,
	}
}

// HandleGetLogs returns audit logs
func (h *AuditHandler) HandleGetLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxAuditLimit)
	}

	logs, err := h.Service.AuditLogs(r.Context(), limit)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs": logs,
	})
}
