// Package quality scores extraction results. The inline scorer grades a
// fresh worker document on a 0-110 scale; the auditor grades what was
// persisted on a weighted 0-100 scale. The two are independent and are not
// expected to agree.
package quality

import (
	"math"

	"github.com/tikpoptv/terrahost/internal/extractor"
)

// InlineMax is the highest inline score.
const InlineMax = 110.0

// Inline component weights.
const (
	fileInfoPoints   = 20.0
	rasterInfoPoints = 20.0
	spatialPoints    = 10.0
	projectionPoints = 8.0
	boundingPoints   = 7.0
	bandPoints       = 25.0
	sensorBonus      = 5.0
)

// analysisPoints distributes the 30 advanced-analysis points.
var analysisPoints = []struct {
	name   string
	points float64
	has    func(*extractor.ComputedIndices) bool
}{
	{"band_detection", 4, func(c *extractor.ComputedIndices) bool { return extractor.Present(c.BandDetection) }},
	{"rgb", 4, func(c *extractor.ComputedIndices) bool { return extractor.Present(c.RGB) }},
	{"vegetation", 5, func(c *extractor.ComputedIndices) bool { return extractor.Present(c.Vegetation) }},
	{"water", 4, func(c *extractor.ComputedIndices) bool { return extractor.Present(c.Water) }},
	{"soil", 3, func(c *extractor.ComputedIndices) bool { return extractor.Present(c.Soil) }},
	{"thermal", 3, func(c *extractor.ComputedIndices) bool { return extractor.Present(c.Thermal) }},
	{"spectral_analysis", 4, func(c *extractor.ComputedIndices) bool { return c.SpectralAnalysis.Present() }},
	{"custom", 3, func(c *extractor.ComputedIndices) bool { return extractor.Present(c.Custom) }},
}

// Inline quality statuses.
const (
	StatusExcellent = "excellent"
	StatusGood      = "good"
	StatusFair      = "fair"
	StatusPoor      = "poor"
)

// InlineReport is the grade of one worker document.
type InlineReport struct {
	Score           float64            `json:"score"`
	MaxScore        float64            `json:"max_score"`
	CompletenessPct float64            `json:"completeness_pct"`
	Status          string             `json:"status"`
	Breakdown       map[string]float64 `json:"breakdown"`
	Issues          []string           `json:"issues,omitempty"`
	Warnings        []string           `json:"warnings,omitempty"`
}

// ScoreDocument grades doc. Missing sections contribute zero; a nil
// document scores zero.
func ScoreDocument(doc *extractor.Document) InlineReport {
	r := InlineReport{MaxScore: InlineMax, Breakdown: make(map[string]float64)}
	if doc == nil {
		r.Issues = append(r.Issues, "no extraction document")
		r.Status = StatusPoor
		return r
	}

	if extractor.Present(doc.FileInfo) {
		r.Breakdown["file_info"] = fileInfoPoints
	} else {
		r.Issues = append(r.Issues, "missing file_info")
	}

	if ri := doc.RasterInfo; ri != nil && ri.Width > 0 && ri.Height > 0 {
		r.Breakdown["raster_info"] = rasterInfoPoints
	} else {
		r.Issues = append(r.Issues, "missing or empty raster_info")
	}

	r.Breakdown["spatial_info"] = scoreSpatial(doc.SpatialInfo, &r)
	r.Breakdown["band_data"] = scoreBands(doc.BandData, &r)
	r.Breakdown["analysis"] = scoreAnalysis(doc.ComputedIndices, &r)

	if doc.DetectedSensor() != "" {
		r.Breakdown["sensor_bonus"] = sensorBonus
	}

	var total float64
	for _, v := range r.Breakdown {
		total += v
	}
	// The components add up to 125; anything above the scale is capped.
	r.Score = round1(math.Min(total, InlineMax))
	r.CompletenessPct = round1(r.Score / InlineMax * 100)
	r.Status = inlineStatus(r.Score)
	return r
}

func scoreSpatial(si *extractor.SpatialInfo, r *InlineReport) float64 {
	if si == nil {
		r.Issues = append(r.Issues, "missing spatial_info")
		return 0
	}
	points := spatialPoints
	if si.Projection.Known() {
		points += projectionPoints
	} else {
		r.Warnings = append(r.Warnings, "no projection (EPSG or WKT)")
	}
	if si.BoundingBox != nil {
		points += boundingPoints
	} else {
		r.Issues = append(r.Issues, "missing bounding_box")
	}
	return points
}

func scoreBands(bands []extractor.Band, r *InlineReport) float64 {
	if len(bands) == 0 {
		r.Issues = append(r.Issues, "no band_data")
		return 0
	}
	valid := 0
	for _, b := range bands {
		if b.Statistics.HasRange() && finite(*b.Statistics.Min) && finite(*b.Statistics.Max) {
			valid++
		}
	}
	if valid < len(bands) {
		r.Warnings = append(r.Warnings, "some bands have no valid min/max statistics")
	}
	return bandPoints * float64(valid) / float64(len(bands))
}

func scoreAnalysis(ci *extractor.ComputedIndices, r *InlineReport) float64 {
	if ci == nil {
		r.Warnings = append(r.Warnings, "no computed_indices")
		return 0
	}
	if ci.Error != "" {
		r.Warnings = append(r.Warnings, "index computation reported: "+ci.Error)
	}
	var points float64
	for _, a := range analysisPoints {
		if a.has(ci) {
			points += a.points
		}
	}
	return points
}

func inlineStatus(score float64) string {
	switch {
	case score >= 90:
		return StatusExcellent
	case score >= 70:
		return StatusGood
	case score >= 50:
		return StatusFair
	default:
		return StatusPoor
	}
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

func round1(f float64) float64 { return math.Round(f*10) / 10 }
