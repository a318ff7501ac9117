package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lcalzada-xor/fleetmap/internal/adapters/reporting"
	"github.com/lcalzada-xor/fleetmap/internal/adapters/web"
)

// ReportHandler handles report generation
type ReportHandler struct {
	Service     web.ConsoleService
	PDFExporter *reporting.PDFExporter
	now         func() time.Time
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(service web.ConsoleService, exporter *reporting.PDFExporter) *ReportHandler {
	return &ReportHandler{
		Service:     service,
		PDFExporter: exporter,
		now:         time.Now,
	}
}

// HandleStatusPDF renders the current map view as a PDF download.
func (h *ReportHandler) HandleStatusPDF(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.MapView(r.Context())
	if err != nil {
		writeError(w, r, err, nil)
		return
	}

	now := h.now()
	data, err := h.PDFExporter.ExportStatusReport(view, reporting.ReportMetadata{
		ID:          uuid.NewString(),
		GeneratedAt: now,
		GeneratedBy: "fleetmap",
		Session:     h.Service.SessionState().Fingerprint,
	})
	if err != nil {
		writeError(w, r, err, nil)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="fleet-status-%s.pdf"`, now.Format("20060102-150405")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
