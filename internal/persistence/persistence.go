// Package persistence writes one extraction document into the database as
// a set of derived rows plus their lineage edges, in a single transaction.
package persistence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/tikpoptv/terrahost/internal/database"
	"github.com/tikpoptv/terrahost/internal/extractor"
	"github.com/tikpoptv/terrahost/internal/geo"
	"github.com/tikpoptv/terrahost/internal/lineage"
	"github.com/tikpoptv/terrahost/internal/quality"
)

// ErrMissingSection is returned before any write when the document lacks
// raster_info, spatial_info or spatial_info.bounding_box.
var ErrMissingSection = errors.New("extraction document is missing a required section")

// Engine is the persistence engine.
type Engine struct {
	db     *database.DB
	logger *slog.Logger
}

func New(db *database.DB, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{db: db, logger: logger}
}

// Input is one extraction to persist.
type Input struct {
	Asset     *database.Asset
	SessionID string
	Document  *extractor.Document
}

// Result describes what was written.
type Result struct {
	Summary   *database.ExtractionSummary
	Quality   quality.InlineReport
	Edges     []lineage.Edge
	BandCount int
}

// Validate checks the sections every extraction must carry.
func Validate(doc *extractor.Document) error {
	switch {
	case doc == nil:
		return fmt.Errorf("%w: no document", ErrMissingSection)
	case doc.RasterInfo == nil:
		return fmt.Errorf("%w: raster_info", ErrMissingSection)
	case doc.SpatialInfo == nil:
		return fmt.Errorf("%w: spatial_info", ErrMissingSection)
	case doc.SpatialInfo.BoundingBox == nil:
		return fmt.Errorf("%w: spatial_info.bounding_box", ErrMissingSection)
	}
	return nil
}

// Persist validates the document and writes all derived rows. Either every
// row commits or none does.
func (e *Engine) Persist(ctx context.Context, in Input) (*Result, error) {
	if err := Validate(in.Document); err != nil {
		return nil, err
	}
	if in.Asset == nil || in.SessionID == "" {
		return nil, fmt.Errorf("persist: asset and session are required")
	}

	rows, err := build(in)
	if err != nil {
		return nil, err
	}

	err = e.db.WithTx(ctx, func(tx *database.Tx) error {
		if err := tx.InsertSpatialMetadata(ctx, rows.spatial); err != nil {
			return err
		}
		if err := tx.InsertRawMetadata(ctx, rows.raw); err != nil {
			return err
		}
		for _, b := range rows.bands {
			if err := tx.InsertRawBand(ctx, b); err != nil {
				return err
			}
		}
		if err := tx.InsertAnalysisResult(ctx, rows.analysis); err != nil {
			return err
		}
		if err := tx.InsertExtractionSummary(ctx, rows.summary); err != nil {
			return err
		}
		return lineage.Write(ctx, tx, in.SessionID, rows.edges())
	})
	if err != nil {
		return nil, fmt.Errorf("persist extraction: %w", err)
	}

	e.logger.Info("extraction persisted",
		"asset_id", in.Asset.ID,
		"session_id", in.SessionID,
		"bands", len(rows.bands),
		"quality_score", rows.quality.Score,
		"stored", humanize.Bytes(uint64(rows.summary.MetadataSizeBytes+rows.summary.BandDataSizeBytes+rows.summary.AnalysisSizeBytes)),
	)

	return &Result{
		Summary:   rows.summary,
		Quality:   rows.quality,
		Edges:     rows.edges(),
		BandCount: len(rows.bands),
	}, nil
}

type derivedRows struct {
	spatial  *database.SpatialMetadata
	raw      *database.RawMetadata
	bands    []*database.RawBandData
	analysis *database.AnalysisResult
	summary  *database.ExtractionSummary
	quality  quality.InlineReport
	assetID  string
}

func (r *derivedRows) edges() []lineage.Edge {
	from := lineage.Asset(r.assetID)
	edges := []lineage.Edge{
		{From: from, To: lineage.SpatialMetadata(r.spatial.ID), Relation: lineage.DerivedFrom},
		{From: from, To: lineage.RawMetadata(r.raw.ID), Relation: lineage.DerivedFrom},
	}
	for _, b := range r.bands {
		edges = append(edges, lineage.Edge{From: from, To: lineage.RawBand(b.ID), Relation: lineage.SampledFrom})
	}
	return append(edges,
		lineage.Edge{From: from, To: lineage.AnalysisResult(r.analysis.ID), Relation: lineage.CalculatedFrom},
		lineage.Edge{From: from, To: lineage.ExtractionSummary(r.summary.ID), Relation: lineage.AggregatedFrom},
	)
}

// build computes every row up front so the transaction only inserts.
func build(in Input) (*derivedRows, error) {
	doc := in.Document
	a := in.Asset
	si := doc.SpatialInfo
	bb := si.BoundingBox

	raw := doc.Raw
	if len(raw) == 0 {
		var err error
		if raw, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("encode document: %w", err)
		}
	}
	sum := sha256.Sum256(raw)
	contentHash := hex.EncodeToString(sum[:])

	gt := si.Geotransform.Array()
	gtJSON, err := json.Marshal(gt)
	if err != nil {
		return nil, fmt.Errorf("encode geotransform: %w", err)
	}

	var proj extractor.Projection
	if si.Projection != nil {
		proj = *si.Projection
	}
	var res extractor.Resolution
	if si.Resolution != nil {
		res = *si.Resolution
	}

	bandStats, err := bandStatistics(doc.BandData)
	if err != nil {
		return nil, err
	}

	rows := &derivedRows{assetID: a.ID, quality: quality.ScoreDocument(doc)}
	rows.spatial = &database.SpatialMetadata{
		ID:             newID(),
		AssetID:        a.ID,
		SessionID:      in.SessionID,
		Width:          doc.RasterInfo.Width,
		Height:         doc.RasterInfo.Height,
		BandsCount:     doc.RasterInfo.BandsCount,
		EPSGCode:       string(proj.EPSGCode),
		ProjectionWKT:  proj.WKT,
		Geotransform:   gt,
		ExtentWKT:      geo.ExtentWKT(bb.XMin, bb.YMin, bb.XMax, bb.YMax),
		ResolutionX:    res.XMeters,
		ResolutionY:    res.YMeters,
		BandStatistics: bandStats,
	}

	rows.raw, err = rawMetadata(in, string(gtJSON), proj.WKT, contentHash)
	if err != nil {
		return nil, err
	}

	wavelengths := doc.ComputedIndices.Wavelengths()
	for _, b := range doc.BandData {
		row, err := bandRow(in, b, wavelengths)
		if err != nil {
			return nil, err
		}
		rows.bands = append(rows.bands, row)
	}

	rows.analysis = analysisRow(in)

	rows.summary = &database.ExtractionSummary{
		ID:                newID(),
		AssetID:           a.ID,
		SessionID:         in.SessionID,
		BandsCount:        len(doc.BandData),
		IndicesCount:      doc.ComputedIndices.IndexCount(),
		QualityScore:      rows.quality.Score,
		CompletenessPct:   rows.quality.CompletenessPct,
		QualityStatus:     rows.quality.Status,
		DocumentSizeBytes: int64(len(raw)),
		MetadataSizeBytes: metadataSize(rows.raw),
		BandDataSizeBytes: bandDataSize(rows.bands),
		AnalysisSizeBytes: analysisSize(rows.analysis),
		OriginalFileName:  a.FileName,
		OriginalSizeBytes: a.SizeBytes,
		OriginalChecksum:  a.Checksum,
		OriginalLocator:   a.StorageLocator,
		ExtractorVersion:  doc.ExtractorVersion,
		ExtractedAt:       doc.ExtractionTimestamp,
		ContentHash:       contentHash,
	}
	return rows, nil
}
