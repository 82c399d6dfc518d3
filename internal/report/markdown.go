package report

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tikpoptv/terrahost/internal/quality"
)

// Markdown renders an audit as a markdown document.
func Markdown(a *Audit) string {
	var b strings.Builder
	v := a.Verification

	b.WriteString(fmt.Sprintf("# Extraction Audit: %s\n\n", a.Asset.FileName))
	b.WriteString(fmt.Sprintf("**Generated:** %s  \n", a.GeneratedAt.Format("January 2, 2006 15:04:05 MST")))
	b.WriteString(fmt.Sprintf("**Asset:** `%s`  \n", a.Asset.ID))
	b.WriteString(fmt.Sprintf("**Status:** %s  \n", a.Asset.State()))
	if a.Asset.SizeBytes > 0 {
		b.WriteString(fmt.Sprintf("**Size:** %s  \n", humanize.Bytes(uint64(a.Asset.SizeBytes))))
	}
	if a.Asset.AcquiredOn != "" {
		b.WriteString(fmt.Sprintf("**Acquired:** %s  \n", a.Asset.AcquiredOn))
	}
	b.WriteString("\n")

	// Verification
	b.WriteString("## Verification\n\n")
	b.WriteString(fmt.Sprintf("Status **%s**, weighted score **%.2f** / 100 (complete at %.0f).\n\n", v.Status, v.WeightedScore, quality.CompleteThreshold))
	b.WriteString("| Component | Weight | Score |\n")
	b.WriteString("|---|---|---|\n")
	b.WriteString(fmt.Sprintf("| Spatial completeness | 30%% | %.1f |\n", v.Components.Spatial))
	b.WriteString(fmt.Sprintf("| Band completeness | 30%% | %.1f |\n", v.Components.Band))
	b.WriteString(fmt.Sprintf("| Geometry validity | 30%% | %.1f |\n", v.Components.Geometry))
	b.WriteString(fmt.Sprintf("| Indices presence | 10%% | %.1f |\n", v.Components.Indices))
	b.WriteString("\n")
	writeList(&b, "Issues", v.Issues)
	writeList(&b, "Warnings", v.Warnings)

	if s := v.Summary; s != nil {
		b.WriteString("## Extraction Summary\n\n")
		b.WriteString(fmt.Sprintf("- Bands: %d\n", s.BandsCount))
		b.WriteString(fmt.Sprintf("- Indices: %d\n", s.IndicesCount))
		b.WriteString(fmt.Sprintf("- Inline quality: %.1f (%s, %.1f%% complete)\n", s.QualityScore, s.QualityStatus, s.CompletenessPct))
		b.WriteString(fmt.Sprintf("- Stored: %s metadata, %s band data, %s analysis\n",
			humanize.Bytes(uint64(s.MetadataSizeBytes)), humanize.Bytes(uint64(s.BandDataSizeBytes)), humanize.Bytes(uint64(s.AnalysisSizeBytes))))
		if s.ExtractorVersion != "" {
			b.WriteString(fmt.Sprintf("- Extractor: %s\n", s.ExtractorVersion))
		}
		b.WriteString(fmt.Sprintf("- Content hash: `%s`\n\n", s.ContentHash))
	}

	if m := a.Spatial; m != nil {
		b.WriteString("## Spatial Reference\n\n")
		b.WriteString(fmt.Sprintf("- Dimensions: %d x %d, %d band(s)\n", m.Width, m.Height, m.BandsCount))
		if m.EPSGCode != "" {
			b.WriteString(fmt.Sprintf("- EPSG: %s\n", m.EPSGCode))
		}
		b.WriteString(fmt.Sprintf("- Resolution: %g x %g\n", m.ResolutionX, m.ResolutionY))
		b.WriteString(fmt.Sprintf("- Extent: `%s`\n\n", m.ExtentWKT))
	}

	if len(a.Bands) > 0 {
		b.WriteString("## Bands\n\n")
		b.WriteString("| Band | Type | Wavelength | Min | Max | Mean |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, band := range a.Bands {
			st := parseStats(band.Statistics)
			b.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %s |\n",
				band.BandNumber, band.DataType, optional(band.Wavelength), optional(st.Min), optional(st.Max), optional(st.Mean)))
		}
		b.WriteString("\n")
	}

	if len(a.Sessions) > 0 {
		b.WriteString("## Processing History\n\n")
		b.WriteString("| Started | Status | Progress | Duration | Error |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, s := range a.Sessions {
			duration := "-"
			if s.DurationMs != nil {
				duration = (time.Duration(*s.DurationMs) * time.Millisecond).String()
			}
			b.WriteString(fmt.Sprintf("| %s | %s | %d%% | %s | %s |\n",
				s.StartedAt.Format(time.RFC3339), s.Status, s.Progress, duration, cell(s.ErrorMessage)))
		}
		b.WriteString("\n")
	}

	if len(a.Steps) > 0 {
		b.WriteString("### Steps\n\n")
		for _, st := range a.Steps {
			b.WriteString(fmt.Sprintf("%d. **%s** (%s) %s\n", st.StepOrder, st.StepName, st.Status, st.Description))
		}
		b.WriteString("\n")
	}

	if len(a.Edges) > 0 {
		b.WriteString("## Lineage\n\n")
		b.WriteString("| From | Relation | To |\n")
		b.WriteString("|---|---|---|\n")
		for _, e := range a.Edges {
			b.WriteString(fmt.Sprintf("| %s | %s | %s |\n", e.From, e.Relation, e.To))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("**%s:**\n\n", title))
	for _, it := range items {
		b.WriteString(fmt.Sprintf("- %s\n", it))
	}
	b.WriteString("\n")
}

type bandStats struct {
	Min  *float64 `json:"min"`
	Max  *float64 `json:"max"`
	Mean *float64 `json:"mean"`
}

func parseStats(raw string) bandStats {
	var st bandStats
	_ = json.Unmarshal([]byte(raw), &st)
	return st
}

func optional(f *float64) string {
	if f == nil {
		return "-"
	}
	return strconv.FormatFloat(*f, 'g', 6, 64)
}

// cell keeps a value from breaking a markdown table row.
func cell(s string) string {
	if s == "" {
		return "-"
	}
	s = strings.ReplaceAll(s, "|", "/")
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 100 {
		s = s[:100] + "..."
	}
	return s
}
