package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Derived rows are written only through Tx so that one extraction lands
// completely or not at all.

func prepareRow(id *string, createdAt *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if createdAt.IsZero() {
		*createdAt = time.Now().UTC()
	}
}

func (tx *Tx) InsertSpatialMetadata(ctx context.Context, m *SpatialMetadata) error {
	prepareRow(&m.ID, &m.CreatedAt)
	gt := m.Geotransform
	_, err := tx.ExecContext(ctx,
		`INSERT INTO spatial_metadata (id, asset_id, session_id, width, height, bands_count, epsg_code, projection_wkt,
		 gt_x0, gt_y0, gt_pixel_width, gt_pixel_height, gt_skew_x, gt_skew_y, extent_wkt, resolution_x, resolution_y,
		 band_statistics, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.AssetID, m.SessionID, m.Width, m.Height, m.BandsCount, m.EPSGCode, m.ProjectionWKT,
		gt[0], gt[3], gt[1], gt[5], gt[2], gt[4], m.ExtentWKT, m.ResolutionX, m.ResolutionY,
		m.BandStatistics, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert spatial metadata: %w", err)
	}
	return nil
}

func (tx *Tx) InsertRawMetadata(ctx context.Context, m *RawMetadata) error {
	prepareRow(&m.ID, &m.CreatedAt)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO raw_metadata (id, asset_id, session_id, sensor_info, acquisition_info, processing_info, quality_info,
		 format_info, complete_metadata, geotransform, projection_wkt, content_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.AssetID, m.SessionID, m.SensorInfo, m.AcquisitionInfo, m.ProcessingInfo, m.QualityInfo,
		m.FormatInfo, m.CompleteMetadata, m.Geotransform, m.ProjectionWKT, m.ContentHash, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert raw metadata: %w", err)
	}
	return nil
}

func (tx *Tx) InsertRawBand(ctx context.Context, b *RawBandData) error {
	prepareRow(&b.ID, &b.CreatedAt)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO raw_band_data (id, asset_id, session_id, band_number, data_type, statistics, histogram,
		 pixel_samples, wavelength, nodata_value, scale_factor, scale_offset, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.AssetID, b.SessionID, b.BandNumber, b.DataType, b.Statistics, b.Histogram,
		b.PixelSamples, nullFloat(b.Wavelength), nullFloat(b.NodataValue), nullFloat(b.Scale), nullFloat(b.Offset),
		b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert band %d: %w", b.BandNumber, err)
	}
	return nil
}

func (tx *Tx) InsertAnalysisResult(ctx context.Context, r *AnalysisResult) error {
	prepareRow(&r.ID, &r.CreatedAt)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO analysis_results (id, asset_id, session_id, band_detection, vegetation_indices, water_indices,
		 soil_indices, thermal_indices, custom_indices, band_correlations, material_hints, rgb_analysis,
		 atmospheric_analysis, spatial_features, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AssetID, r.SessionID, r.BandDetection, r.VegetationIndices, r.WaterIndices,
		r.SoilIndices, r.ThermalIndices, r.CustomIndices, r.BandCorrelations, r.MaterialHints, r.RGBAnalysis,
		r.AtmosphericAnalysis, r.SpatialFeatures, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert analysis result: %w", err)
	}
	return nil
}

func (tx *Tx) InsertExtractionSummary(ctx context.Context, s *ExtractionSummary) error {
	prepareRow(&s.ID, &s.CreatedAt)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO extraction_summaries (id, asset_id, session_id, bands_count, indices_count, quality_score,
		 completeness_pct, quality_status, document_size_bytes, metadata_size_bytes, band_data_size_bytes,
		 analysis_size_bytes, original_file_name, original_size_bytes, original_checksum, original_locator,
		 extractor_version, extracted_at, content_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.AssetID, s.SessionID, s.BandsCount, s.IndicesCount, s.QualityScore,
		s.CompletenessPct, s.QualityStatus, s.DocumentSizeBytes, s.MetadataSizeBytes, s.BandDataSizeBytes,
		s.AnalysisSizeBytes, s.OriginalFileName, s.OriginalSizeBytes, s.OriginalChecksum, s.OriginalLocator,
		s.ExtractorVersion, s.ExtractedAt, s.ContentHash, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert extraction summary: %w", err)
	}
	return nil
}

func (tx *Tx) InsertRelationship(ctx context.Context, r *DataRelationship) error {
	prepareRow(&r.ID, &r.CreatedAt)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO data_relationships (id, session_id, source_table, source_id, target_table, target_id, kind, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.SourceTable, r.SourceID, r.TargetTable, r.TargetID, r.Kind, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert relationship %s -> %s: %w", r.SourceTable, r.TargetTable, err)
	}
	return nil
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

// --- Reads ---

func (db *DB) GetSpatialMetadata(ctx context.Context, assetID, sessionID string) (*SpatialMetadata, error) {
	m := &SpatialMetadata{}
	gt := &m.Geotransform
	err := db.QueryRowContext(ctx,
		`SELECT id, asset_id, session_id, width, height, bands_count, epsg_code, projection_wkt,
		 gt_x0, gt_y0, gt_pixel_width, gt_pixel_height, gt_skew_x, gt_skew_y, extent_wkt, resolution_x, resolution_y,
		 band_statistics, created_at FROM spatial_metadata WHERE asset_id = ? AND session_id = ?`, assetID, sessionID,
	).Scan(&m.ID, &m.AssetID, &m.SessionID, &m.Width, &m.Height, &m.BandsCount, &m.EPSGCode, &m.ProjectionWKT,
		&gt[0], &gt[3], &gt[1], &gt[5], &gt[2], &gt[4], &m.ExtentWKT, &m.ResolutionX, &m.ResolutionY,
		&m.BandStatistics, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get spatial metadata: %w", err)
	}
	return m, nil
}

func (db *DB) GetRawMetadata(ctx context.Context, assetID, sessionID string) (*RawMetadata, error) {
	m := &RawMetadata{}
	err := db.QueryRowContext(ctx,
		`SELECT id, asset_id, session_id, sensor_info, acquisition_info, processing_info, quality_info, format_info,
		 complete_metadata, geotransform, projection_wkt, content_hash, created_at
		 FROM raw_metadata WHERE asset_id = ? AND session_id = ?`, assetID, sessionID,
	).Scan(&m.ID, &m.AssetID, &m.SessionID, &m.SensorInfo, &m.AcquisitionInfo, &m.ProcessingInfo, &m.QualityInfo,
		&m.FormatInfo, &m.CompleteMetadata, &m.Geotransform, &m.ProjectionWKT, &m.ContentHash, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get raw metadata: %w", err)
	}
	return m, nil
}

func (db *DB) ListRawBands(ctx context.Context, assetID, sessionID string) ([]RawBandData, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, asset_id, session_id, band_number, data_type, statistics, histogram, pixel_samples,
		 wavelength, nodata_value, scale_factor, scale_offset, created_at
		 FROM raw_band_data WHERE asset_id = ? AND session_id = ? ORDER BY band_number`, assetID, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list bands: %w", err)
	}
	defer rows.Close()

	var bands []RawBandData
	for rows.Next() {
		var b RawBandData
		var wavelength, nodata, scale, offset sql.NullFloat64
		if err := rows.Scan(&b.ID, &b.AssetID, &b.SessionID, &b.BandNumber, &b.DataType, &b.Statistics, &b.Histogram,
			&b.PixelSamples, &wavelength, &nodata, &scale, &offset, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan band: %w", err)
		}
		b.Wavelength = floatPtr(wavelength)
		b.NodataValue = floatPtr(nodata)
		b.Scale = floatPtr(scale)
		b.Offset = floatPtr(offset)
		bands = append(bands, b)
	}
	return bands, rows.Err()
}

func (db *DB) GetAnalysisResult(ctx context.Context, assetID, sessionID string) (*AnalysisResult, error) {
	r := &AnalysisResult{}
	err := db.QueryRowContext(ctx,
		`SELECT id, asset_id, session_id, band_detection, vegetation_indices, water_indices, soil_indices,
		 thermal_indices, custom_indices, band_correlations, material_hints, rgb_analysis, atmospheric_analysis,
		 spatial_features, created_at FROM analysis_results WHERE asset_id = ? AND session_id = ?`, assetID, sessionID,
	).Scan(&r.ID, &r.AssetID, &r.SessionID, &r.BandDetection, &r.VegetationIndices, &r.WaterIndices, &r.SoilIndices,
		&r.ThermalIndices, &r.CustomIndices, &r.BandCorrelations, &r.MaterialHints, &r.RGBAnalysis,
		&r.AtmosphericAnalysis, &r.SpatialFeatures, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis result: %w", err)
	}
	return r, nil
}

func (db *DB) GetExtractionSummary(ctx context.Context, assetID, sessionID string) (*ExtractionSummary, error) {
	s := &ExtractionSummary{}
	err := db.QueryRowContext(ctx,
		`SELECT id, asset_id, session_id, bands_count, indices_count, quality_score, completeness_pct, quality_status,
		 document_size_bytes, metadata_size_bytes, band_data_size_bytes, analysis_size_bytes, original_file_name,
		 original_size_bytes, original_checksum, original_locator, extractor_version, extracted_at, content_hash,
		 created_at FROM extraction_summaries WHERE asset_id = ? AND session_id = ?`, assetID, sessionID,
	).Scan(&s.ID, &s.AssetID, &s.SessionID, &s.BandsCount, &s.IndicesCount, &s.QualityScore, &s.CompletenessPct,
		&s.QualityStatus, &s.DocumentSizeBytes, &s.MetadataSizeBytes, &s.BandDataSizeBytes, &s.AnalysisSizeBytes,
		&s.OriginalFileName, &s.OriginalSizeBytes, &s.OriginalChecksum, &s.OriginalLocator, &s.ExtractorVersion,
		&s.ExtractedAt, &s.ContentHash, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get extraction summary: %w", err)
	}
	return s, nil
}

func (db *DB) ListRelationships(ctx context.Context, sessionID string) ([]DataRelationship, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, session_id, source_table, source_id, target_table, target_id, kind, created_at
		 FROM data_relationships WHERE session_id = ? ORDER BY target_table, target_id`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}
	defer rows.Close()

	var rels []DataRelationship
	for rows.Next() {
		var r DataRelationship
		if err := rows.Scan(&r.ID, &r.SessionID, &r.SourceTable, &r.SourceID, &r.TargetTable, &r.TargetID,
			&r.Kind, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

// DerivedTables lists the tables populated by one extraction.
var DerivedTables = []string{
	"spatial_metadata", "raw_metadata", "raw_band_data", "analysis_results", "extraction_summaries", "data_relationships",
}

// CountDerivedRows returns the number of rows each derived table holds for
// a session.
func (db *DB) CountDerivedRows(ctx context.Context, sessionID string) (map[string]int, error) {
	counts := make(map[string]int, len(DerivedTables))
	for _, table := range DerivedTables {
		var n int
		// table comes from the fixed list above.
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE session_id = ?`, sessionID).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
