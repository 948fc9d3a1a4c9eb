package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	landscapeWidth = 277.0
	rowHeight      = 7.0
	headerHeight   = 8.0
)

// Document describes a PDF export: a title, optional subtitle lines and a table.
type Document struct {
	Title     string
	Subtitles []string
	Data      Dataset
}

// PDFExporter renders documents as landscape A4 tables.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document. The table header is repeated on every page.
func (e *PDFExporter) Render(doc Document) ([]byte, error) {
	data := doc.Data
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	widths, err := columnWidths(data)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(false, 12)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	if doc.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(doc.Title), "", 1, "C", false, 0, "")
	}
	if len(doc.Subtitles) > 0 {
		pdf.SetFont("Arial", "", 9)
		for _, line := range doc.Subtitles {
			pdf.CellFormat(0, 5, tr(line), "", 1, "C", false, 0, "")
		}
		pdf.Ln(3)
	}

	writeHeader := func() {
		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for i, header := range data.Headers {
			pdf.CellFormat(widths[i], headerHeight, tr(header), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	}
	writeHeader()

	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, row := range data.Rows {
		if pdf.GetY()+rowHeight > pageHeight-bottom {
			pdf.AddPage()
			writeHeader()
		}
		for i, header := range data.Headers {
			pdf.CellFormat(widths[i], rowHeight, tr(row[header]), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(data Dataset) ([]float64, error) {
	widths := make([]float64, len(data.Headers))
	if len(data.Widths) == 0 {
		for i := range widths {
			widths[i] = landscapeWidth / float64(len(data.Headers))
		}
		return widths, nil
	}
	if len(data.Widths) != len(data.Headers) {
		return nil, fmt.Errorf("pdf widths: got %d, want %d", len(data.Widths), len(data.Headers))
	}
	var total float64
	for _, w := range data.Widths {
		if w <= 0 {
			return nil, fmt.Errorf("pdf widths must be positive")
		}
		total += w
	}
	for i, w := range data.Widths {
		widths[i] = landscapeWidth * w / total
	}
	return widths, nil
}
