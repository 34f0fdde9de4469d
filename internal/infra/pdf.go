package infra

// pdf.go — Batch movement report generation using go-pdf/fpdf.
// One A4 page per batch with:
//   - Batch header (code, recipe, status, planned volume)
//   - Lot composition table (lot code, phase, volume, percentage)
//   - Movement history table (kind, tanks, volume, timestamp)
//
// The output file is saved to storagePath/batch_{code}.pdf.

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/amphorabeer/brewhouse/internal/model"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"
)

// GenerateBatchReportPDF renders the movement report for one batch.
// tankNames maps tank IDs to display names for the movement rows.
// Returns the absolute path to the generated file.
func GenerateBatchReportPDF(batch *model.Batch, transfers []model.Transfer, tankNames map[uuid.UUID]string, storagePath string) (string, error) {
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return "", fmt.Errorf("pdf: create storage dir: %w", err)
	}

	fileName := fmt.Sprintf("batch_%s.pdf", sanitizeFileName(batch.Code))
	filePath := filepath.Join(storagePath, fileName)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 30

	// ── Header ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(contentW, 9, "Batch Movement Report", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(contentW, 6, fmt.Sprintf("Batch %s — %s", batch.Code, batch.RecipeName), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(contentW, 5, fmt.Sprintf("Status: %s    Planned volume: %s L    Brewed: %s",
		batch.Status, batch.PlannedVolume.StringFixed(2), batch.BrewedAt.Format("02/01/2006")), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	// ── Lot composition ───────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(contentW, 6, "Lot composition", "", 1, "L", false, 0, "")

	col1 := contentW * 0.30 // lot code
	col2 := contentW * 0.25 // phase
	col3 := contentW * 0.25 // volume
	col4 := contentW * 0.20 // percentage

	pdf.SetFont("Helvetica", "B", 8)
	pdf.CellFormat(col1, 6, "Lot", "B", 0, "L", false, 0, "")
	pdf.CellFormat(col2, 6, "Phase", "B", 0, "L", false, 0, "")
	pdf.CellFormat(col3, 6, "Volume (L)", "B", 0, "R", false, 0, "")
	pdf.CellFormat(col4, 6, "Share", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 8)
	for _, link := range batch.LotLinks {
		code := link.LotID.String()[:8]
		if link.Lot != nil {
			code = link.Lot.Code
		}
		pdf.CellFormat(col1, 5, code, "", 0, "L", false, 0, "")
		pdf.CellFormat(col2, 5, string(link.Phase), "", 0, "L", false, 0, "")
		pdf.CellFormat(col3, 5, link.Volume.StringFixed(2), "", 0, "R", false, 0, "")
		pdf.CellFormat(col4, 5, link.Percentage.StringFixed(2)+"%", "", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	// ── Movement history ──────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(contentW, 6, "Movements", "", 1, "L", false, 0, "")

	mc1 := contentW * 0.18 // kind
	mc2 := contentW * 0.44 // from → to
	mc3 := contentW * 0.16 // volume
	mc4 := contentW * 0.22 // date

	pdf.SetFont("Helvetica", "B", 8)
	pdf.CellFormat(mc1, 6, "Kind", "B", 0, "L", false, 0, "")
	pdf.CellFormat(mc2, 6, "Tanks", "B", 0, "L", false, 0, "")
	pdf.CellFormat(mc3, 6, "Volume (L)", "B", 0, "R", false, 0, "")
	pdf.CellFormat(mc4, 6, "Date", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 8)
	for _, t := range transfers {
		route := tankLabel(t.FromTankID, tankNames) + " > " + tankLabel(t.ToTankID, tankNames)
		pdf.CellFormat(mc1, 5, t.Kind, "", 0, "L", false, 0, "")
		pdf.CellFormat(mc2, 5, route, "", 0, "L", false, 0, "")
		pdf.CellFormat(mc3, 5, t.Volume.StringFixed(2), "", 0, "R", false, 0, "")
		pdf.CellFormat(mc4, 5, t.CreatedAt.Format("02/01/2006 15:04"), "", 1, "R", false, 0, "")
	}

	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return "", fmt.Errorf("pdf: write file: %w", err)
	}

	return filePath, nil
}

func tankLabel(id *uuid.UUID, names map[uuid.UUID]string) string {
	if id == nil {
		return "-"
	}
	if name, ok := names[*id]; ok {
		return name
	}
	return id.String()[:8]
}

func sanitizeFileName(code string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, code)
}
