package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/tikpoptv/terrahost/internal/database"
	"github.com/tikpoptv/terrahost/internal/extractor"
)

func newID() string { return uuid.NewString() }

// orDefault returns raw as text, or def when raw is empty.
func orDefault(raw json.RawMessage, def string) string {
	if len(raw) == 0 {
		return def
	}
	return string(raw)
}

type bandStat struct {
	BandNumber  int      `json:"band_number"`
	DataType    string   `json:"data_type,omitempty"`
	Min         *float64 `json:"min"`
	Max         *float64 `json:"max"`
	Mean        *float64 `json:"mean"`
	Std         *float64 `json:"std"`
	ValidPixels int64    `json:"valid_pixels"`
	TotalPixels int64    `json:"total_pixels"`
}

func bandStatistics(bands []extractor.Band) (string, error) {
	stats := make([]bandStat, 0, len(bands))
	for _, b := range bands {
		s := bandStat{BandNumber: b.BandNumber, DataType: b.DataType}
		if b.Statistics != nil {
			s.Min, s.Max, s.Mean, s.Std = b.Statistics.Min, b.Statistics.Max, b.Statistics.Mean, b.Statistics.Std
			s.ValidPixels, s.TotalPixels = b.Statistics.ValidPixels, b.Statistics.TotalPixels
		}
		stats = append(stats, s)
	}
	out, err := json.Marshal(stats)
	if err != nil {
		return "", fmt.Errorf("encode band statistics: %w", err)
	}
	return string(out), nil
}

func rawMetadata(in Input, geotransform, projectionWKT, contentHash string) (*database.RawMetadata, error) {
	doc := in.Document
	m := &database.RawMetadata{
		ID:               newID(),
		AssetID:          in.Asset.ID,
		SessionID:        in.SessionID,
		SensorInfo:       "{}",
		AcquisitionInfo:  "{}",
		ProcessingInfo:   "{}",
		QualityInfo:      "{}",
		CompleteMetadata: "{}",
		Geotransform:     geotransform,
		ProjectionWKT:    projectionWKT,
		ContentHash:      contentHash,
	}

	if doc.Metadata != nil {
		if pi := doc.Metadata.ParsedInfo; pi != nil {
			m.SensorInfo = orDefault(pi.SensorInfo, "{}")
			m.AcquisitionInfo = orDefault(pi.AcquisitionInfo, "{}")
			m.ProcessingInfo = orDefault(pi.ProcessingInfo, "{}")
			m.QualityInfo = orDefault(pi.QualityInfo, "{}")
		}
		complete, err := json.Marshal(doc.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		m.CompleteMetadata = string(complete)
	}
	if doc.RawStorage != nil && extractor.Present(doc.RawStorage.CompleteMetadata) {
		m.CompleteMetadata = string(doc.RawStorage.CompleteMetadata)
	}

	format := struct {
		Driver           string          `json:"driver,omitempty"`
		ImageStructure   json.RawMessage `json:"image_structure,omitempty"`
		FileInfo         json.RawMessage `json:"file_info,omitempty"`
		ExtractorVersion string          `json:"extractor_version,omitempty"`
	}{
		Driver:           doc.RasterInfo.Driver,
		FileInfo:         doc.FileInfo,
		ExtractorVersion: doc.ExtractorVersion,
	}
	if doc.Metadata != nil {
		format.ImageStructure = doc.Metadata.Domains["IMAGE_STRUCTURE"]
	}
	out, err := json.Marshal(format)
	if err != nil {
		return nil, fmt.Errorf("encode format info: %w", err)
	}
	m.FormatInfo = string(out)
	return m, nil
}

func bandRow(in Input, b extractor.Band, wavelengths map[int]float64) (*database.RawBandData, error) {
	stats := "{}"
	if b.Statistics != nil {
		out, err := json.Marshal(b.Statistics)
		if err != nil {
			return nil, fmt.Errorf("encode band %d statistics: %w", b.BandNumber, err)
		}
		stats = string(out)
	}

	row := &database.RawBandData{
		ID:           newID(),
		AssetID:      in.Asset.ID,
		SessionID:    in.SessionID,
		BandNumber:   b.BandNumber,
		DataType:     b.DataType,
		Statistics:   stats,
		Histogram:    orDefault(b.Histogram, "{}"),
		PixelSamples: orDefault(in.Document.RawStorage.PixelSamplesFor(b.BandNumber), "{}"),
		NodataValue:  b.NodataValue,
		Scale:        b.Scale,
		Offset:       b.Offset,
	}
	if wl, ok := wavelengths[b.BandNumber]; ok {
		row.Wavelength = &wl
	}
	return row, nil
}

func analysisRow(in Input) *database.AnalysisResult {
	r := &database.AnalysisResult{
		ID:                  newID(),
		AssetID:             in.Asset.ID,
		SessionID:           in.SessionID,
		BandDetection:       "{}",
		VegetationIndices:   "{}",
		WaterIndices:        "{}",
		SoilIndices:         "{}",
		ThermalIndices:      "{}",
		CustomIndices:       "{}",
		BandCorrelations:    "{}",
		MaterialHints:       "[]",
		RGBAnalysis:         "{}",
		AtmosphericAnalysis: "{}",
		SpatialFeatures:     orDefault(in.Document.SpatialFeatures, "{}"),
	}
	ci := in.Document.ComputedIndices
	if ci == nil {
		return r
	}
	r.BandDetection = orDefault(ci.BandDetection, "{}")
	r.VegetationIndices = orDefault(ci.Vegetation, "{}")
	r.WaterIndices = orDefault(ci.Water, "{}")
	r.SoilIndices = orDefault(ci.Soil, "{}")
	r.ThermalIndices = orDefault(ci.Thermal, "{}")
	r.CustomIndices = orDefault(ci.Custom, "{}")
	r.RGBAnalysis = orDefault(ci.RGB, "{}")
	if sa := ci.SpectralAnalysis; sa != nil {
		r.BandCorrelations = orDefault(sa.BandCorrelations, "{}")
		r.MaterialHints = orDefault(sa.SurfaceMaterialHints, "[]")
		r.AtmosphericAnalysis = orDefault(sa.AtmosphericAnalysis, "{}")
	}
	return r
}

func metadataSize(m *database.RawMetadata) int64 {
	return int64(len(m.SensorInfo) + len(m.AcquisitionInfo) + len(m.ProcessingInfo) + len(m.QualityInfo) +
		len(m.FormatInfo) + len(m.CompleteMetadata) + len(m.Geotransform) + len(m.ProjectionWKT))
}

func bandDataSize(bands []*database.RawBandData) int64 {
	var n int64
	for _, b := range bands {
		n += int64(len(b.Statistics) + len(b.Histogram) + len(b.PixelSamples))
	}
	return n
}

func analysisSize(r *database.AnalysisResult) int64 {
	return int64(len(r.BandDetection) + len(r.VegetationIndices) + len(r.WaterIndices) + len(r.SoilIndices) +
		len(r.ThermalIndices) + len(r.CustomIndices) + len(r.BandCorrelations) + len(r.MaterialHints) +
		len(r.RGBAnalysis) + len(r.AtmosphericAnalysis) + len(r.SpatialFeatures))
}
