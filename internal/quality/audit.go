package quality

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/tikpoptv/terrahost/internal/database"
	"github.com/tikpoptv/terrahost/internal/geo"
)

// Audit statuses.
const (
	AuditComplete   = "complete"
	AuditIncomplete = "incomplete"
	AuditNoData     = "no_data"
	AuditError      = "error"
)

// CompleteThreshold is the weighted score at which an asset counts as
// completely extracted.
const CompleteThreshold = 90.0

// Components are the audit sub-scores, each on 0-100.
type Components struct {
	Spatial  float64 `json:"spatial_completeness"`
	Band     float64 `json:"band_completeness"`
	Geometry float64 `json:"geometry_validity"`
	Indices  float64 `json:"indices_presence"`
}

// Weighted combines the components as 30% spatial, 30% band, 30% geometry
// and 10% indices, rounded to two decimals.
func (c Components) Weighted() float64 {
	sum := 30*c.Spatial + 30*c.Band + 30*c.Geometry + 10*c.Indices
	return math.Round(sum) / 100
}

// Verification is the on-demand audit of an asset.
type Verification struct {
	AssetID       string                      `json:"asset_id"`
	SessionID     string                      `json:"session_id,omitempty"`
	Status        string                      `json:"status"`
	Components    Components                  `json:"components"`
	WeightedScore float64                     `json:"weighted_score"`
	Complete      bool                        `json:"complete"`
	BandsExpected int                         `json:"bands_expected"`
	BandsFound    int                         `json:"bands_found"`
	Summary       *database.ExtractionSummary `json:"summary,omitempty"`
	Issues        []string                    `json:"issues"`
	Warnings      []string                    `json:"warnings"`
	CheckedAt     time.Time                   `json:"checked_at"`
}

// Grade fills the weighted score, completeness flag and status from the
// components.
func (v *Verification) Grade() {
	v.WeightedScore = v.Components.Weighted()
	v.Complete = v.WeightedScore >= CompleteThreshold
	if v.Complete {
		v.Status = AuditComplete
	} else {
		v.Status = AuditIncomplete
	}
}

// Store is the read side the auditor needs. *database.DB satisfies it.
type Store interface {
	LatestCompletedSession(ctx context.Context, assetID string) (*database.ProcessingSession, error)
	GetSpatialMetadata(ctx context.Context, assetID, sessionID string) (*database.SpatialMetadata, error)
	ListRawBands(ctx context.Context, assetID, sessionID string) ([]database.RawBandData, error)
	GetAnalysisResult(ctx context.Context, assetID, sessionID string) (*database.AnalysisResult, error)
	GetExtractionSummary(ctx context.Context, assetID, sessionID string) (*database.ExtractionSummary, error)
}

// Auditor grades persisted extraction rows. It never reads the source
// raster, so it works after the file is gone.
type Auditor struct {
	store  Store
	logger *slog.Logger
}

func NewAuditor(store Store, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{store: store, logger: logger}
}

// Verify audits the latest completed session of an asset. It always returns
// a result; load failures produce status "error".
func (a *Auditor) Verify(ctx context.Context, assetID string) *Verification {
	v := &Verification{AssetID: assetID, Issues: []string{}, Warnings: []string{}, CheckedAt: time.Now().UTC()}

	fail := func(what string, err error) *Verification {
		a.logger.Error("verification failed", "asset_id", assetID, "stage", what, "error", err)
		v.Status = AuditError
		v.Issues = append(v.Issues, fmt.Sprintf("loading %s: %v", what, err))
		return v
	}

	session, err := a.store.LatestCompletedSession(ctx, assetID)
	if err != nil {
		return fail("session", err)
	}
	if session == nil {
		v.Status = AuditNoData
		v.Issues = append(v.Issues, "asset has no completed processing session")
		return v
	}
	v.SessionID = session.ID

	spatial, err := a.store.GetSpatialMetadata(ctx, assetID, session.ID)
	if err != nil {
		return fail("spatial metadata", err)
	}
	bands, err := a.store.ListRawBands(ctx, assetID, session.ID)
	if err != nil {
		return fail("band data", err)
	}
	analysis, err := a.store.GetAnalysisResult(ctx, assetID, session.ID)
	if err != nil {
		return fail("analysis results", err)
	}
	summary, err := a.store.GetExtractionSummary(ctx, assetID, session.ID)
	if err != nil {
		return fail("extraction summary", err)
	}
	v.Summary = summary

	if spatial == nil && len(bands) == 0 && analysis == nil {
		v.Status = AuditNoData
		v.Issues = append(v.Issues, "no persisted extraction data for the latest completed session")
		return v
	}

	v.Components = Components{
		Spatial:  spatialCompleteness(spatial, v),
		Band:     bandCompleteness(spatial, bands, v),
		Geometry: geometryValidity(spatial, v),
		Indices:  indicesPresence(analysis, v),
	}
	v.Grade()
	return v
}

func spatialCompleteness(m *database.SpatialMetadata, v *Verification) float64 {
	if m == nil {
		v.Issues = append(v.Issues, "missing spatial metadata")
		return 0
	}
	checks := []struct {
		ok   bool
		what string
	}{
		{m.Width > 0, "width"},
		{m.Height > 0, "height"},
		{m.BandsCount > 0, "bands_count"},
		{m.EPSGCode != "" || strings.TrimSpace(m.ProjectionWKT) != "", "coordinate system"},
		{m.Geotransform[1] != 0 && m.Geotransform[5] != 0, "geotransform"},
		{m.ExtentWKT != "", "extent"},
		{m.ResolutionX > 0 && m.ResolutionY > 0, "resolution"},
	}
	ok := 0
	for _, c := range checks {
		if c.ok {
			ok++
		} else {
			v.Issues = append(v.Issues, "spatial metadata lacks "+c.what)
		}
	}
	return percent(ok, len(checks))
}

func bandCompleteness(m *database.SpatialMetadata, bands []database.RawBandData, v *Verification) float64 {
	expected := len(bands)
	if m != nil && m.BandsCount > expected {
		expected = m.BandsCount
	}
	v.BandsExpected = expected
	v.BandsFound = len(bands)
	if expected == 0 {
		v.Issues = append(v.Issues, "no band data")
		return 0
	}
	if len(bands) < expected {
		v.Issues = append(v.Issues, fmt.Sprintf("%d of %d bands persisted", len(bands), expected))
	}

	valid := 0
	for _, b := range bands {
		var stats struct {
			Min *float64 `json:"min"`
			Max *float64 `json:"max"`
		}
		if err := json.Unmarshal([]byte(b.Statistics), &stats); err == nil && stats.Min != nil && stats.Max != nil {
			valid++
		} else {
			v.Warnings = append(v.Warnings, fmt.Sprintf("band %d has no min/max statistics", b.BandNumber))
		}
	}
	return percent(valid, expected)
}

func geometryValidity(m *database.SpatialMetadata, v *Verification) float64 {
	if m == nil || m.ExtentWKT == "" {
		v.Issues = append(v.Issues, "no extent geometry")
		return 0
	}
	if _, err := geo.ParseExtent(m.ExtentWKT); err != nil {
		v.Issues = append(v.Issues, "extent geometry: "+err.Error())
		return 0
	}
	return 100
}

func indicesPresence(r *database.AnalysisResult, v *Verification) float64 {
	if r == nil {
		v.Warnings = append(v.Warnings, "no analysis results")
		return 0
	}
	categories := []struct {
		name string
		raw  string
	}{
		{"vegetation", r.VegetationIndices},
		{"water", r.WaterIndices},
		{"soil", r.SoilIndices},
		{"thermal", r.ThermalIndices},
		{"custom", r.CustomIndices},
	}
	present := 0
	for _, c := range categories {
		if hasContent(c.raw) {
			present++
		} else {
			v.Warnings = append(v.Warnings, "no "+c.name+" indices")
		}
	}
	return percent(present, len(categories))
}

func hasContent(raw string) bool {
	switch strings.TrimSpace(raw) {
	case "", "null", "{}", "[]":
		return false
	}
	return true
}

func percent(n, of int) float64 {
	if of == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(of)*10000) / 100
}
