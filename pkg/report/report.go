// Package report renders the gateway's command-tracking statistics as
// operator-facing documents: an XLSX workbook for shift handover and a
// PDF summary for quick review.
package report

import (
	"time"

	"shuttlegate/internal/engine"
)

// Format selects which document Generate produces.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// Snapshot is the data a report is built from, pulled from the
// coordinator at generation time.
type Snapshot struct {
	GeneratedAt string
	PerDevice   map[string]engine.DeviceStats
	Pending     []engine.CommandTrackingInfo
	Processing  []engine.CommandTrackingInfo
}

// Generate renders the snapshot in the requested format.
func Generate(format Format, snap Snapshot) ([]byte, error) {
	switch format {
	case FormatXLSX:
		return generateXLSX(snap)
	case FormatPDF:
		return generatePDF(snap)
	default:
		return generateXLSX(snap)
	}
}

// snapshotTimeFormat is the layout Export stamps GeneratedAt with.
const snapshotTimeFormat = "2006-01-02 15:04:05"

// Export renders a shift report straight from a running coordinator. It
// lives in this package rather than on engine.Coordinator itself: the
// coordinator's package must stay free of excelize/maroto, so exporting is
// a collaborator operation, not a facade method, the same way the spec's
// other external collaborators (PLC transport, barcode validation) sit
// outside the engine package.
func Export(coord *engine.Coordinator, format Format, generatedAt time.Time) ([]byte, error) {
	snap := Snapshot{
		GeneratedAt: generatedAt.Format(snapshotTimeFormat),
		PerDevice:   coord.Status().PerDevice,
		Pending:     coord.PendingCommands(),
		Processing:  coord.ProcessingCommands(),
	}
	return Generate(format, snap)
}
