package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lcalzada-xor/fleetmap/internal/adapters/web/middleware"
)

func SetupRoutes(s *Server) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.RequestContext(s.trustedProxies))

	limited := func(h http.HandlerFunc) http.Handler {
		if s.probeLimiter == nil {
			return h
		}
		return middleware.RateLimitMiddleware(s.probeLimiter)(h)
	}

	// Full paths on the root router: a subrouter answers 404 on a method mismatch.
	api := func(path string) string { return "/api" + path }

	// Map
	r.HandleFunc(api("/map"), s.MapHandler.HandleMap).Methods(http.MethodGet)
	r.HandleFunc(api("/stats"), s.MapHandler.HandleStats).Methods(http.MethodGet)
	r.HandleFunc(api("/topology/reload"), s.MapHandler.HandleReload).Methods(http.MethodPost)
	r.HandleFunc(api("/datacenters/{id}/expand"), s.MapHandler.HandleExpand).Methods(http.MethodPost)

	// Probes
	r.Handle(api("/devices/{kind}/{id}/ping"), limited(s.ProbeHandler.HandlePing)).Methods(http.MethodPost)
	r.Handle(api("/probes/firewalls"), limited(s.ProbeHandler.HandlePingFirewalls)).Methods(http.MethodPost)
	r.Handle(api("/probes/cameras"), limited(s.ProbeHandler.HandleStartSweep)).Methods(http.MethodPost)
	r.HandleFunc(api("/probes/tasks/{id}"), s.ProbeHandler.HandleTask).Methods(http.MethodGet)
	r.HandleFunc(api("/probes/tasks/{id}"), s.ProbeHandler.HandleCancelTask).Methods(http.MethodDelete)

	// Session
	r.HandleFunc(api("/session"), s.SessionHandler.HandleGet).Methods(http.MethodGet)
	r.HandleFunc(api("/session/token"), s.SessionHandler.HandleRenew).Methods(http.MethodPut)

	// Audit and reports
	r.HandleFunc(api("/audit-logs"), s.AuditHandler.HandleGetLogs).Methods(http.MethodGet)
	r.HandleFunc(api("/reports/status.pdf"), s.ReportHandler.HandleStatusPDF).Methods(http.MethodGet)

	r.HandleFunc("/ws", s.WSManager.HandleWebSocket)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	return r
}
