package report

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/signintech/gopdf"
)

// ErrNoFont is returned when no TrueType font is available for PDF output.
var ErrNoFont = errors.New("pdf reports need a TrueType font")

// fontCandidates are tried when no font path is configured.
var fontCandidates = []string{
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/TTF/DejaVuSans.ttf",
	"/Library/Fonts/Arial Unicode.ttf",
}

// FindFont returns configured if it exists, otherwise the first installed
// candidate font.
func FindFont(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("%w: %v", ErrNoFont, err)
		}
		return configured, nil
	}
	for _, p := range fontCandidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: set reports.font_path", ErrNoFont)
}

const (
	pageMargin = 40.0
	pageBottom = 800.0
	lineHeight = 16.0
)

type pdfWriter struct {
	pdf *gopdf.GoPdf
	err error
}

func (w *pdfWriter) font(size int) {
	if w.err == nil {
		w.err = w.pdf.SetFont("body", "", size)
	}
}

func (w *pdfWriter) line(text string) {
	if w.err != nil {
		return
	}
	if w.pdf.GetY() > pageBottom {
		w.pdf.AddPage()
		w.pdf.SetY(pageMargin)
	}
	w.pdf.SetX(pageMargin)
	lines, err := w.pdf.SplitText(text, gopdf.PageSizeA4.W-2*pageMargin)
	if err != nil {
		lines = []string{text}
	}
	for _, l := range lines {
		w.pdf.SetX(pageMargin)
		if err := w.pdf.Cell(nil, l); err != nil {
			w.err = err
			return
		}
		w.pdf.Br(lineHeight)
	}
}

func (w *pdfWriter) heading(text string) {
	w.pdf.Br(lineHeight / 2)
	w.font(14)
	w.line(text)
	w.font(10)
}

// WritePDF renders an audit to path.
func WritePDF(a *Audit, fontPath, path string) error {
	font, err := FindFont(fontPath)
	if err != nil {
		return err
	}

	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()
	if err := pdf.AddTTFFont("body", font); err != nil {
		return fmt.Errorf("loading font: %w", err)
	}
	pdf.SetY(pageMargin)

	w := &pdfWriter{pdf: pdf}
	v := a.Verification

	w.font(18)
	w.line("Extraction Audit: " + a.Asset.FileName)
	w.font(10)
	w.line("Generated " + a.GeneratedAt.Format("January 2, 2006 15:04:05 MST"))
	w.line("Asset " + a.Asset.ID + " (" + a.Asset.State().String() + ")")

	w.heading("Verification")
	w.line(fmt.Sprintf("Status %s, weighted score %.2f / 100", v.Status, v.WeightedScore))
	w.line(fmt.Sprintf("Spatial %.1f   Band %.1f   Geometry %.1f   Indices %.1f",
		v.Components.Spatial, v.Components.Band, v.Components.Geometry, v.Components.Indices))
	for _, issue := range v.Issues {
		w.line("Issue: " + issue)
	}
	for _, warn := range v.Warnings {
		w.line("Warning: " + warn)
	}

	if s := v.Summary; s != nil {
		w.heading("Extraction Summary")
		w.line(fmt.Sprintf("%d bands, %d indices, inline quality %.1f (%s)", s.BandsCount, s.IndicesCount, s.QualityScore, s.QualityStatus))
		w.line("Stored " + humanize.Bytes(uint64(s.MetadataSizeBytes+s.BandDataSizeBytes+s.AnalysisSizeBytes)))
		w.line("Content hash " + s.ContentHash)
	}

	if m := a.Spatial; m != nil {
		w.heading("Spatial Reference")
		w.line(fmt.Sprintf("%d x %d pixels, EPSG %s", m.Width, m.Height, m.EPSGCode))
		w.line("Extent " + m.ExtentWKT)
	}

	if len(a.Bands) > 0 {
		w.heading("Bands")
		for _, band := range a.Bands {
			st := parseStats(band.Statistics)
			w.line(fmt.Sprintf("Band %d  %s  min %s  max %s  mean %s",
				band.BandNumber, band.DataType, optional(st.Min), optional(st.Max), optional(st.Mean)))
		}
	}

	if len(a.Sessions) > 0 {
		w.heading("Processing History")
		for _, s := range a.Sessions {
			line := fmt.Sprintf("%s  %s  %d%%", s.StartedAt.Format(time.RFC3339), s.Status, s.Progress)
			if s.ErrorMessage != "" {
				line += "  " + s.ErrorMessage
			}
			w.line(line)
		}
	}

	if w.err != nil {
		return fmt.Errorf("rendering pdf: %w", w.err)
	}
	if err := pdf.WritePdf(path); err != nil {
		return fmt.Errorf("writing pdf: %w", err)
	}
	return nil
}
