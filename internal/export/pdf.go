// Package export renders a travel journal as a PDF document.
package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"voyage/internal/types"
)

const (
	pageMargin   = 15.0
	titleSize    = 22.0
	headingSize  = 14.0
	bodySize     = 10.0
	metaSize     = 9.0
	maxNoteRunes = 4000
)

// JournalDocument is the input to the PDF renderer: the owning profile plus
// the voyages to include, already filtered and ordered by the caller.
type JournalDocument struct {
	Profile     *types.Profile
	Voyages     []*types.Voyage
	GeneratedAt time.Time
}

// PDFRenderer turns a JournalDocument into PDF bytes.
type PDFRenderer struct{}

// NewPDFRenderer creates a renderer. It is stateless and safe for
// concurrent use.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

// Render produces the journal PDF. Returns an error only when the underlying
// document builder fails, which indicates a rendering bug rather than bad
// input.
func (r *PDFRenderer) Render(doc JournalDocument) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)

	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", metaSize)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	r.renderCover(pdf, doc)
	for _, v := range doc.Voyages {
		r.renderVoyage(pdf, v)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to render journal PDF", err)
	}
	return buf.Bytes(), nil
}

func (r *PDFRenderer) renderCover(pdf *fpdf.Fpdf, doc JournalDocument) {
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", titleSize)
	pdf.SetTextColor(30, 30, 30)
	pdf.CellFormat(0, 14, "Travel Journal", "", 1, "C", false, 0, "")

	owner := doc.Profile.DisplayName
	if owner == "" {
		owner = doc.Profile.Email
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", headingSize)
	pdf.CellFormat(0, 8, owner, "", 1, "C", false, 0, "")

	pdf.Ln(2)
	pdf.SetFont("Helvetica", "I", metaSize)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 6, fmt.Sprintf("%d voyages, exported %s", len(doc.Voyages), doc.GeneratedAt.UTC().Format("2 January 2006")), "", 1, "C", false, 0, "")
	pdf.Ln(6)
}

func (r *PDFRenderer) renderVoyage(pdf *fpdf.Fpdf, v *types.Voyage) {
	// Keep each voyage heading with at least a few lines of its body.
	if pdf.GetY() > 240 {
		pdf.AddPage()
	}

	pdf.SetFont("Helvetica", "B", headingSize)
	pdf.SetTextColor(30, 30, 30)
	pdf.MultiCell(0, 8, v.Title, "", "L", false)

	pdf.SetFont("Helvetica", "", metaSize)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 6, fmt.Sprintf("%s  |  %s", v.Location, formatDateRange(v.StartDate, v.EndDate)), "", 1, "L", false, 0, "")

	if v.Rating.Valid() {
		pdf.CellFormat(0, 6, ratingStars(v.Rating), "", 1, "L", false, 0, "")
	}

	if notes := strings.TrimSpace(v.Notes); notes != "" {
		pdf.Ln(1)
		pdf.SetFont("Helvetica", "", bodySize)
		pdf.SetTextColor(50, 50, 50)
		pdf.MultiCell(0, 5.5, truncateRunes(notes, maxNoteRunes), "", "L", false)
	}

	if n := len(v.ImageURLs); n > 0 {
		pdf.SetFont("Helvetica", "I", metaSize)
		pdf.SetTextColor(100, 100, 100)
		label := "1 photo attached"
		if n > 1 {
			label = fmt.Sprintf("%d photos attached", n)
		}
		pdf.CellFormat(0, 6, label, "", 1, "L", false, 0, "")
	}

	pdf.Ln(5)
}

func formatDateRange(start, end time.Time) string {
	const layout = "2 Jan 2006"
	if start.Equal(end) {
		return start.Format(layout)
	}
	return fmt.Sprintf("%s - %s", start.Format(layout), end.Format(layout))
}

func ratingStars(r types.Rating) string {
	return strings.Repeat("*", int(r)) + strings.Repeat("-", 5-int(r))
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
