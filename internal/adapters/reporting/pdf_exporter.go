// Package reporting renders the fleet status as a PDF document.
package reporting

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/lcalzada-xor/fleetmap/internal/core/domain"
	"github.com/lcalzada-xor/fleetmap/internal/core/services/presentation"
)

// maxAttentionRows caps the offline/error device table.
const maxAttentionRows = 40

// ReportMetadata identifies one generated report.
type ReportMetadata struct {
	ID          string
	Title       string
	GeneratedAt time.Time
	GeneratedBy string
	Session     string
}

// PDFExporter exports the map view to PDF format
type PDFExporter struct{}

// NewPDFExporter creates a new PDF exporter instance
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ExportStatusReport renders the datacenter summary and the devices that need attention.
func (e *PDFExporter) ExportStatusReport(view *presentation.MapView, meta ReportMetadata) ([]byte, error) {
	if view == nil {
		return nil, fmt.Errorf("no map view to export")
	}
	if meta.Title == "" {
		meta.Title = "Fleet Status Report"
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 25)
	pdf.AddPage()

	e.addHeader(pdf, view, meta)
	e.addStatistics(pdf, view.Stats)
	e.addDataCenters(pdf, view)
	e.addAttention(pdf, view)
	e.addFooter(pdf, meta)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) addHeader(pdf *gofpdf.Fpdf, view *presentation.MapView, meta ReportMetadata) {
	pdf.SetFont("Arial", "B", 24)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 15, meta.Title, "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated: %s", meta.GeneratedAt.Format("2006-01-02 15:04:05 MST")), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Topology v%d / status v%d", view.TopologyVersion, view.StoreVersion), "", 1, "L", false, 0, "")
	if view.ValidUntil != nil {
		pdf.CellFormat(0, 6, fmt.Sprintf("Oldest result expires: %s", view.ValidUntil.Format("15:04:05")), "", 1, "L", false, 0, "")
	}
	pdf.Ln(8)
}

func (e *PDFExporter) addStatistics(pdf *gofpdf.Fpdf, stats domain.Stats) {
	e.section(pdf, "Fleet Overview")

	rows := []struct {
		label string
		value int
		color [3]int
	}{
		{"Total Devices", stats.Total, [3]int{0, 102, 204}},
		{"Online", stats.Online, statusColor(string(domain.StatusOnline))},
		{"Offline", stats.Offline, statusColor(string(domain.StatusOffline))},
		{"Errors", stats.Errors, statusColor(string(domain.StatusError))},
		{"Unknown / stale", stats.Unknown, statusColor("")},
	}

	for i, row := range rows {
		x := 20.0
		if i%2 == 1 {
			x = 105.0
		}
		pdf.SetXY(x, pdf.GetY())

		pdf.SetFont("Arial", "", 10)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(50, 7, row.label+":", "", 0, "L", false, 0, "")

		pdf.SetFont("Arial", "B", 11)
		pdf.SetTextColor(row.color[0], row.color[1], row.color[2])
		pdf.CellFormat(35, 7, fmt.Sprintf("%d", row.value), "", 0, "R", false, 0, "")

		if i%2 == 1 || i == len(rows)-1 {
			pdf.Ln(7)
		}
	}
	pdf.Ln(8)
}

func (e *PDFExporter) addDataCenters(pdf *gofpdf.Fpdf, view *presentation.MapView) {
	e.section(pdf, "Datacenters")

	if len(view.DataCenters) == 0 {
		e.empty(pdf, "No datacenters loaded")
		return
	}

	e.tableHeader(pdf, []column{{70, "Datacenter", "L"}, {35, "Status", "C"}, {30, "Online", "C"}, {35, "Probed", "C"}})

	pdf.SetFont("Arial", "", 9)
	for _, m := range sortedMarkers(view.DataCenters) {
		tally := view.Tallies[m.ID]
		r, g, b := rgb(statusColor(m.Status))

		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(70, 7, truncate(m.Name, 40), "1", 0, "L", false, 0, "")
		pdf.SetTextColor(r, g, b)
		pdf.CellFormat(35, 7, m.Status, "1", 0, "C", false, 0, "")
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(30, 7, fmt.Sprintf("%d", tally.Online), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 7, fmt.Sprintf("%d", tally.Total), "1", 1, "C", false, 0, "")
	}
	pdf.Ln(8)
}

// addAttention lists offline and failing devices.
func (e *PDFExporter) addAttention(pdf *gofpdf.Fpdf, view *presentation.MapView) {
	e.section(pdf, "Devices Needing Attention")

	var rows []*presentation.Marker
	for _, m := range sortedMarkers(view.Devices) {
		if m.Status == string(domain.StatusOffline) || m.Status == string(domain.StatusError) {
			rows = append(rows, m)
		}
	}
	if len(rows) == 0 {
		e.empty(pdf, "Every probed device is online")
		return
	}

	names := make(map[string]string, len(view.DataCenters))
	for _, dc := range view.DataCenters {
		names[dc.ID] = dc.Name
	}

	e.tableHeader(pdf, []column{{60, "Device", "L"}, {25, "Kind", "C"}, {25, "Status", "C"}, {60, "Datacenter", "L"}})

	pdf.SetFont("Arial", "", 9)
	for i, m := range rows {
		if i == maxAttentionRows {
			e.empty(pdf, fmt.Sprintf("... and %d more", len(rows)-maxAttentionRows))
			break
		}
		r, g, b := rgb(statusColor(m.Status))
		parent := names[m.Parent]
		if parent == "" {
			parent = "-"
		}

		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(60, 7, truncate(m.Name, 34), "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 7, m.Kind, "1", 0, "C", false, 0, "")
		pdf.SetTextColor(r, g, b)
		pdf.CellFormat(25, 7, m.Status, "1", 0, "C", false, 0, "")
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(60, 7, truncate(parent, 34), "1", 1, "L", false, 0, "")
	}
	pdf.Ln(5)
}

func (e *PDFExporter) addFooter(pdf *gofpdf.Fpdf, meta ReportMetadata) {
	pdf.SetY(-20)

	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(20, pdf.GetY(), 190, pdf.GetY())
	pdf.Ln(3)

	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	text := "Generated by " + meta.GeneratedBy
	if meta.ID != "" {
		text += " | Report ID: " + truncate(meta.ID, 8)
	}
	if meta.Session != "" {
		text += " | Session: " + meta.Session
	}
	pdf.CellFormat(0, 5, text, "", 1, "C", false, 0, "")
}

type column struct {
	width float64
	title string
	align string
}

func (e *PDFExporter) section(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, title, "", 1, "L", false, 0, "")
	pdf.Ln(2)
}

func (e *PDFExporter) empty(pdf *gofpdf.Fpdf, text string) {
	pdf.SetFont("Arial", "I", 10)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 7, text, "", 1, "L", false, 0, "")
	pdf.Ln(5)
}

func (e *PDFExporter) tableHeader(pdf *gofpdf.Fpdf, cols []column) {
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(60, 60, 60)
	for i, c := range cols {
		ln := 0
		if i == len(cols)-1 {
			ln = 1
		}
		pdf.CellFormat(c.width, 8, c.title, "1", ln, c.align, true, 0, "")
	}
}

// statusColor maps device and datacenter statuses to report colors.
func statusColor(status string) [3]int {
	switch status {
	case string(domain.StatusOnline):
		return [3]int{52, 199, 89}
	case string(domain.StatusOffline):
		return [3]int{220, 53, 69}
	case string(domain.StatusError):
		return [3]int{255, 149, 0}
	case string(domain.AggregatePartial):
		return [3]int{255, 204, 0}
	default:
		return [3]int{150, 150, 150}
	}
}

func rgb(c [3]int) (int, int, int) {
	return c[0], c[1], c[2]
}

func sortedMarkers(in []*presentation.Marker) []*presentation.Marker {
	out := append([]*presentation.Marker(nil), in...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
