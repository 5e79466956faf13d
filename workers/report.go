package workers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

// ErrMissingTitle is returned for a report without a title.
var ErrMissingTitle = errors.New("report title is required")

// Finding is one diagnosed condition in a report.
type Finding struct {
	Disease    string   `json:"disease"`
	Confidence float64  `json:"confidence"`
	Symptoms   []string `json:"symptoms,omitempty"`
	Treatments []string `json:"treatments,omitempty"`
}

// ReportRequest describes a diagnosis report.
type ReportRequest struct {
	Title       string    `json:"title"`
	Crop        string    `json:"crop,omitempty"`
	Location    string    `json:"location,omitempty"`
	Findings    []Finding `json:"findings"`
	Photo       []byte    `json:"photo,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	GeneratedAt time.Time `json:"generated_at,omitempty"`
}

// ReportResponse holds the rendered PDF.
type ReportResponse struct {
	PDF   []byte `json:"pdf"`
	Pages int    `json:"pages"`
}

// Report renders a diagnosis report as an A4 PDF.
func Report(ctx context.Context, req ReportRequest) (ReportResponse, error) {
	if strings.TrimSpace(req.Title) == "" {
		return ReportResponse{}, ErrMissingTitle
	}
	generated := req.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(req.Title, true)
	pdf.SetCreator("AgriDx-Engine", false)
	pdf.SetCreationDate(generated)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, tr(req.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, "Generated "+generated.Format("2006-01-02 15:04"), "", 1, "L", false, 0, "")
	if req.Crop != "" {
		pdf.CellFormat(0, 6, tr("Crop: "+req.Crop), "", 1, "L", false, 0, "")
	}
	if req.Location != "" {
		pdf.CellFormat(0, 6, tr("Location: "+req.Location), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	if len(req.Photo) > 0 {
		if err := placePhoto(pdf, req.Photo); err != nil {
			return ReportResponse{}, err
		}
	}

	for i, f := range req.Findings {
		if err := ctx.Err(); err != nil {
			return ReportResponse{}, err
		}
		pdf.SetFont("Helvetica", "B", 13)
		pdf.SetFillColor(232, 245, 233)
		heading := fmt.Sprintf("%d. %s (%.1f%%)", i+1, f.Disease, f.Confidence*100)
		pdf.CellFormat(0, 9, tr(heading), "", 1, "L", true, 0, "")
		writeList(pdf, tr, "Symptoms", f.Symptoms)
		writeList(pdf, tr, "Treatments", f.Treatments)
		pdf.Ln(3)
	}
	if len(req.Findings) == 0 {
		pdf.SetFont("Helvetica", "I", 11)
		pdf.CellFormat(0, 8, "No disease detected.", "", 1, "L", false, 0, "")
	}

	if req.Notes != "" {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(0, 8, "Notes", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, tr(req.Notes), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return ReportResponse{}, fmt.Errorf("failed to render pdf: %w", err)
	}
	return ReportResponse{PDF: buf.Bytes(), Pages: pdf.PageNo()}, nil
}

func writeList(pdf *fpdf.Fpdf, tr func(string) string, title string, items []string) {
	if len(items) == 0 {
		return
	}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(0, 6, title, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, item := range items {
		pdf.MultiCell(0, 5, tr("- "+item), "", "L", false)
	}
}

func placePhoto(pdf *fpdf.Fpdf, photo []byte) error {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(photo))
	if err != nil {
		return fmt.Errorf("failed to decode photo: %w", err)
	}
	var imageType string
	switch format {
	case "jpeg":
		imageType = "JPG"
	case "png":
		imageType = "PNG"
	default:
		return fmt.Errorf("%w: unsupported photo format %q", ErrBadPayload, format)
	}

	opts := fpdf.ImageOptions{ImageType: imageType}
	pdf.RegisterImageOptionsReader("photo", opts, bytes.NewReader(photo))
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to embed photo: %w", err)
	}

	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	w := (pageW - left - right) / 2
	h := w * float64(cfg.Height) / float64(cfg.Width)
	pdf.ImageOptions("photo", left, pdf.GetY(), w, h, true, opts, 0, "")
	pdf.Ln(4)
	return nil
}
