package database

import (
	"time"

	"github.com/tikpoptv/terrahost/internal/asset"
)

type Asset struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	FileName       string    `json:"file_name"`
	AcquiredOn     string    `json:"acquired_on"`
	StorageLocator string    `json:"storage_locator"`
	Checksum       string    `json:"checksum"`
	SizeBytes      int64     `json:"size_bytes"`
	Status         string    `json:"status"`
	SessionID      string    `json:"session_id,omitempty"`
	FailureReason  string    `json:"failure_reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// State returns the tagged state stored in the status columns.
func (a *Asset) State() asset.State {
	return asset.Restore(asset.Status(a.Status), a.SessionID, a.FailureReason)
}

type ProcessingSession struct {
	ID              string     `json:"id"`
	AssetID         string     `json:"asset_id"`
	Status          string     `json:"status"`
	Progress        int        `json:"progress"`
	StepDescription string     `json:"step_description"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	WorkerVersion   string     `json:"worker_version,omitempty"`
	Method          string     `json:"method,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationMs      *int64     `json:"duration_ms,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Session statuses. completed and failed are terminal.
const (
	SessionStarted    = "started"
	SessionProcessing = "processing"
	SessionCompleted  = "completed"
	SessionFailed     = "failed"
)

func IsTerminalSessionStatus(status string) bool {
	return status == SessionCompleted || status == SessionFailed
}

type ProcessingStep struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	StepOrder   int        `json:"step_order"`
	StepName    string     `json:"step_name"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Output      string     `json:"output,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	DurationMs  *int64     `json:"duration_ms,omitempty"`
}

// JSON-typed columns are carried as strings holding the encoded document.

// SpatialMetadata keeps the geotransform in GDAL order: x0, pixel width,
// x skew, y0, y skew, pixel height.
type SpatialMetadata struct {
	ID             string     `json:"id"`
	AssetID        string     `json:"asset_id"`
	SessionID      string     `json:"session_id"`
	Width          int        `json:"width"`
	Height         int        `json:"height"`
	BandsCount     int        `json:"bands_count"`
	EPSGCode       string     `json:"epsg_code"`
	ProjectionWKT  string     `json:"projection_wkt"`
	Geotransform   [6]float64 `json:"geotransform"`
	ExtentWKT      string     `json:"extent_wkt"`
	ResolutionX    float64    `json:"resolution_x"`
	ResolutionY    float64    `json:"resolution_y"`
	BandStatistics string     `json:"band_statistics"`
	CreatedAt      time.Time  `json:"created_at"`
}

type RawMetadata struct {
	ID               string    `json:"id"`
	AssetID          string    `json:"asset_id"`
	SessionID        string    `json:"session_id"`
	SensorInfo       string    `json:"sensor_info"`
	AcquisitionInfo  string    `json:"acquisition_info"`
	ProcessingInfo   string    `json:"processing_info"`
	QualityInfo      string    `json:"quality_info"`
	FormatInfo       string    `json:"format_info"`
	CompleteMetadata string    `json:"complete_metadata"`
	Geotransform     string    `json:"geotransform"`
	ProjectionWKT    string    `json:"projection_wkt"`
	ContentHash      string    `json:"content_hash"`
	CreatedAt        time.Time `json:"created_at"`
}

type RawBandData struct {
	ID           string    `json:"id"`
	AssetID      string    `json:"asset_id"`
	SessionID    string    `json:"session_id"`
	BandNumber   int       `json:"band_number"`
	DataType     string    `json:"data_type"`
	Statistics   string    `json:"statistics"`
	Histogram    string    `json:"histogram"`
	PixelSamples string    `json:"pixel_samples"`
	Wavelength   *float64  `json:"wavelength,omitempty"`
	NodataValue  *float64  `json:"nodata_value,omitempty"`
	Scale        *float64  `json:"scale,omitempty"`
	Offset       *float64  `json:"offset,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type AnalysisResult struct {
	ID                  string    `json:"id"`
	AssetID             string    `json:"asset_id"`
	SessionID           string    `json:"session_id"`
	BandDetection       string    `json:"band_detection"`
	VegetationIndices   string    `json:"vegetation_indices"`
	WaterIndices        string    `json:"water_indices"`
	SoilIndices         string    `json:"soil_indices"`
	ThermalIndices      string    `json:"thermal_indices"`
	CustomIndices       string    `json:"custom_indices"`
	BandCorrelations    string    `json:"band_correlations"`
	MaterialHints       string    `json:"material_hints"`
	RGBAnalysis         string    `json:"rgb_analysis"`
	AtmosphericAnalysis string    `json:"atmospheric_analysis"`
	SpatialFeatures     string    `json:"spatial_features"`
	CreatedAt           time.Time `json:"created_at"`
}

type ExtractionSummary struct {
	ID                string    `json:"id"`
	AssetID           string    `json:"asset_id"`
	SessionID         string    `json:"session_id"`
	BandsCount        int       `json:"bands_count"`
	IndicesCount      int       `json:"indices_count"`
	QualityScore      float64   `json:"quality_score"`
	CompletenessPct   float64   `json:"completeness_pct"`
	QualityStatus     string    `json:"quality_status"`
	DocumentSizeBytes int64     `json:"document_size_bytes"`
	MetadataSizeBytes int64     `json:"metadata_size_bytes"`
	BandDataSizeBytes int64     `json:"band_data_size_bytes"`
	AnalysisSizeBytes int64     `json:"analysis_size_bytes"`
	OriginalFileName  string    `json:"original_file_name"`
	OriginalSizeBytes int64     `json:"original_size_bytes"`
	OriginalChecksum  string    `json:"original_checksum"`
	OriginalLocator   string    `json:"original_locator"`
	ExtractorVersion  string    `json:"extractor_version"`
	ExtractedAt       string    `json:"extracted_at"`
	ContentHash       string    `json:"content_hash"`
	CreatedAt         time.Time `json:"created_at"`
}

type DataRelationship struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	SourceTable string    `json:"source_table"`
	SourceID    string    `json:"source_id"`
	TargetTable string    `json:"target_table"`
	TargetID    string    `json:"target_id"`
	Kind        string    `json:"kind"`
	CreatedAt   time.Time `json:"created_at"`
}

type Report struct {
	ID        string    `json:"id"`
	AssetID   string    `json:"asset_id"`
	Title     string    `json:"title"`
	Format    string    `json:"format"`
	Content   string    `json:"content,omitempty"`
	FilePath  string    `json:"file_path"`
	CreatedAt time.Time `json:"created_at"`
}
