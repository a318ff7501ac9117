package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
	"github.com/lcalzada-xor/fleetmap/internal/core/services/session"
	"github.com/lcalzada-xor/fleetmap/internal/logger"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string      `json:"error"`
	Code  string      `json:"code"`
	Data  interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug().Err(err).Msg("Failed to encode response")
	}
}

// StatusFor maps console errors to HTTP status codes and stable error codes.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrSessionInvalid):
		return http.StatusUnauthorized, "session_invalid"
	case errors.Is(err, session.ErrEmptyToken), errors.Is(err, session.ErrTokenExpired):
		return http.StatusBadRequest, "invalid_token"
	case errors.Is(err, domain.ErrProbeInFlight):
		return http.StatusConflict, "probe_in_flight"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrTaskTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, domain.ErrTaskFailed), errors.Is(err, domain.ErrProtocol), errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway, "upstream"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error, data interface{}) {
	status, code := StatusFor(err)
	ev := logger.Warn()
	if status >= http.StatusInternalServerError {
		ev = logger.Error()
	}
	ev.Err(err).Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Msg("Request failed")
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code, Data: data})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: "bad_request"})
}
