package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Document is the JSON document the extraction worker prints. Sections the
// persistence layer stores verbatim are kept as raw JSON.
type Document struct {
	FileInfo            json.RawMessage  `json:"file_info,omitempty"`
	RasterInfo          *RasterInfo      `json:"raster_info,omitempty"`
	SpatialInfo         *SpatialInfo     `json:"spatial_info,omitempty"`
	BandData            []Band           `json:"band_data,omitempty"`
	Metadata            *Metadata        `json:"metadata,omitempty"`
	ComputedIndices     *ComputedIndices `json:"computed_indices,omitempty"`
	SpatialFeatures     json.RawMessage  `json:"spatial_features,omitempty"`
	Statistics          json.RawMessage  `json:"statistics,omitempty"`
	RawStorage          *RawStorage      `json:"raw_storage,omitempty"`
	ExtractionTimestamp string           `json:"extraction_timestamp,omitempty"`
	ExtractorVersion    string           `json:"extractor_version,omitempty"`
	Error               string           `json:"error,omitempty"`

	// Raw is the exact worker output the document was parsed from.
	Raw []byte `json:"-"`
}

type RasterInfo struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	BandsCount int    `json:"bands_count"`
	Driver     string `json:"driver,omitempty"`
}

type SpatialInfo struct {
	Geotransform *Geotransform `json:"geotransform,omitempty"`
	Projection   *Projection   `json:"projection,omitempty"`
	BoundingBox  *BoundingBox  `json:"bounding_box,omitempty"`
	Resolution   *Resolution   `json:"resolution,omitempty"`
	AreaSqMeters *float64      `json:"area_sq_meters,omitempty"`
}

type Geotransform struct {
	X0          float64 `json:"x0"`
	Y0          float64 `json:"y0"`
	PixelWidth  float64 `json:"pixel_width"`
	PixelHeight float64 `json:"pixel_height"`
	SkewX       float64 `json:"skew_x"`
	SkewY       float64 `json:"skew_y"`
}

// Array returns the geotransform in GDAL order.
func (g *Geotransform) Array() [6]float64 {
	if g == nil {
		return [6]float64{}
	}
	return [6]float64{g.X0, g.PixelWidth, g.SkewX, g.Y0, g.SkewY, g.PixelHeight}
}

type Projection struct {
	WKT      string `json:"wkt,omitempty"`
	EPSGCode EPSG   `json:"epsg_code,omitempty"`
	Proj4    string `json:"proj4,omitempty"`
	Name     string `json:"name,omitempty"`
}

// Known reports whether either an EPSG code or WKT text is present.
func (p *Projection) Known() bool {
	return p != nil && (p.EPSGCode != "" || strings.TrimSpace(p.WKT) != "")
}

// EPSG is an EPSG code. Workers emit it as a string, a number or null.
type EPSG string

func (e *EPSG) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*e = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = EPSG(strings.TrimPrefix(strings.TrimSpace(s), "EPSG:"))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("epsg_code: %w", err)
	}
	*e = EPSG(n.String())
	return nil
}

type BoundingBox struct {
	XMin    float64 `json:"x_min"`
	YMin    float64 `json:"y_min"`
	XMax    float64 `json:"x_max"`
	YMax    float64 `json:"y_max"`
	CenterX float64 `json:"center_x,omitempty"`
	CenterY float64 `json:"center_y,omitempty"`
}

type Resolution struct {
	XMeters float64 `json:"x_meters"`
	YMeters float64 `json:"y_meters"`
	Units   string  `json:"units,omitempty"`
}

type Band struct {
	BandIndex           int             `json:"band_index"`
	BandNumber          int             `json:"band_number"`
	DataType            string          `json:"data_type,omitempty"`
	NodataValue         *float64        `json:"nodata_value,omitempty"`
	Scale               *float64        `json:"scale,omitempty"`
	Offset              *float64        `json:"offset,omitempty"`
	UnitType            string          `json:"unit_type,omitempty"`
	Description         string          `json:"description,omitempty"`
	ColorInterpretation string          `json:"color_interpretation,omitempty"`
	Metadata            json.RawMessage `json:"metadata,omitempty"`
	Statistics          *BandStatistics `json:"statistics,omitempty"`
	Histogram           json.RawMessage `json:"histogram,omitempty"`
}

// Statistics are pointers because the worker writes NaN as null.
type BandStatistics struct {
	Min          *float64 `json:"min"`
	Max          *float64 `json:"max"`
	Mean         *float64 `json:"mean"`
	Std          *float64 `json:"std"`
	Median       *float64 `json:"median,omitempty"`
	Q25          *float64 `json:"q25,omitempty"`
	Q75          *float64 `json:"q75,omitempty"`
	ValidPixels  int64    `json:"valid_pixels"`
	TotalPixels  int64    `json:"total_pixels"`
	NodataPixels int64    `json:"nodata_pixels,omitempty"`
}

// HasRange reports whether both min and max are present.
func (s *BandStatistics) HasRange() bool {
	return s != nil && s.Min != nil && s.Max != nil
}

// Metadata holds the worker's metadata domains. parsed_info and bands are
// split out; every other key is a GDAL metadata domain.
type Metadata struct {
	Domains    map[string]json.RawMessage
	Bands      json.RawMessage
	ParsedInfo *ParsedInfo
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	if raw, ok := all["parsed_info"]; ok {
		if err := json.Unmarshal(raw, &m.ParsedInfo); err != nil {
			return fmt.Errorf("parsed_info: %w", err)
		}
		delete(all, "parsed_info")
	}
	if raw, ok := all["bands"]; ok {
		m.Bands = raw
		delete(all, "bands")
	}
	m.Domains = all
	return nil
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	all := make(map[string]any, len(m.Domains)+2)
	for k, v := range m.Domains {
		all[k] = v
	}
	if len(m.Bands) > 0 {
		all["bands"] = m.Bands
	}
	if m.ParsedInfo != nil {
		all["parsed_info"] = m.ParsedInfo
	}
	return json.Marshal(all)
}

type ParsedInfo struct {
	SensorInfo      json.RawMessage `json:"sensor_info,omitempty"`
	AcquisitionInfo json.RawMessage `json:"acquisition_info,omitempty"`
	ProcessingInfo  json.RawMessage `json:"processing_info,omitempty"`
	CoordinateInfo  json.RawMessage `json:"coordinate_info,omitempty"`
	QualityInfo     json.RawMessage `json:"quality_info,omitempty"`
}

// DetectedSensor returns the sensor the worker recognised, or "" when it
// did not recognise one.
func (d *Document) DetectedSensor() string {
	if d.Metadata == nil || d.Metadata.ParsedInfo == nil || !Present(d.Metadata.ParsedInfo.SensorInfo) {
		return ""
	}
	var info struct {
		DetectedSensor string `json:"detected_sensor"`
	}
	if err := json.Unmarshal(d.Metadata.ParsedInfo.SensorInfo, &info); err != nil {
		return ""
	}
	switch strings.ToLower(strings.TrimSpace(info.DetectedSensor)) {
	case "", "unknown", "none":
		return ""
	}
	return info.DetectedSensor
}

type ComputedIndices struct {
	BandDetection    json.RawMessage   `json:"band_detection,omitempty"`
	RGB              json.RawMessage   `json:"rgb,omitempty"`
	Vegetation       json.RawMessage   `json:"vegetation,omitempty"`
	Water            json.RawMessage   `json:"water,omitempty"`
	Soil             json.RawMessage   `json:"soil,omitempty"`
	Thermal          json.RawMessage   `json:"thermal,omitempty"`
	Custom           json.RawMessage   `json:"custom,omitempty"`
	SpectralAnalysis *SpectralAnalysis `json:"spectral_analysis,omitempty"`
	Error            string            `json:"error,omitempty"`
}

type SpectralAnalysis struct {
	SpectralProfile      json.RawMessage `json:"spectral_profile,omitempty"`
	WavelengthInfo       json.RawMessage `json:"wavelength_info,omitempty"`
	BandCorrelations     json.RawMessage `json:"band_correlations,omitempty"`
	SpectralCurve        json.RawMessage `json:"spectral_curve,omitempty"`
	AtmosphericAnalysis  json.RawMessage `json:"atmospheric_analysis,omitempty"`
	SurfaceMaterialHints json.RawMessage `json:"surface_material_hints,omitempty"`
}

// Present reports whether the spectral analysis carries any content.
func (s *SpectralAnalysis) Present() bool {
	if s == nil {
		return false
	}
	for _, raw := range []json.RawMessage{s.SpectralProfile, s.WavelengthInfo, s.BandCorrelations,
		s.SpectralCurve, s.AtmosphericAnalysis, s.SurfaceMaterialHints} {
		if Present(raw) {
			return true
		}
	}
	return false
}

// IndexCount is the number of computed indices across the vegetation,
// water, soil, thermal and custom categories.
func (c *ComputedIndices) IndexCount() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, raw := range []json.RawMessage{c.Vegetation, c.Water, c.Soil, c.Thermal, c.Custom} {
		n += countKeys(raw)
	}
	return n
}

// Wavelengths maps band numbers to the centre wavelength the worker
// detected for them.
func (c *ComputedIndices) Wavelengths() map[int]float64 {
	out := make(map[int]float64)
	if c == nil || !Present(c.BandDetection) {
		return out
	}
	var detection map[string]json.RawMessage
	if err := json.Unmarshal(c.BandDetection, &detection); err != nil {
		return out
	}
	for key, raw := range detection {
		var band struct {
			BandNumber int             `json:"band_number"`
			Wavelength json.RawMessage `json:"wavelength"`
		}
		if err := json.Unmarshal(raw, &band); err != nil {
			continue
		}
		if band.BandNumber == 0 {
			band.BandNumber, _ = strconv.Atoi(strings.TrimPrefix(key, "band_"))
		}
		if wl, ok := parseWavelength(band.Wavelength); ok && band.BandNumber > 0 {
			out[band.BandNumber] = wl
		}
	}
	return out
}

// parseWavelength accepts a number, a numeric string such as "665nm" or a
// [min, max] range, whose midpoint is used.
func parseWavelength(raw json.RawMessage) (float64, bool) {
	if !Present(raw) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var pair []float64
	if err := json.Unmarshal(raw, &pair); err == nil && len(pair) == 2 {
		return (pair[0] + pair[1]) / 2, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "nm"))
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

type RawStorage struct {
	CompleteMetadata   json.RawMessage            `json:"complete_metadata,omitempty"`
	PixelSamples       map[string]json.RawMessage `json:"pixel_samples,omitempty"`
	CompressedBands    json.RawMessage            `json:"compressed_bands,omitempty"`
	ReconstructionInfo json.RawMessage            `json:"reconstruction_info,omitempty"`
}

// PixelSamplesFor returns the raw samples for a band, or nil.
func (r *RawStorage) PixelSamplesFor(bandNumber int) json.RawMessage {
	if r == nil {
		return nil
	}
	return r.PixelSamples["band_"+strconv.Itoa(bandNumber)]
}

// Present reports whether raw holds a value other than null or an empty
// object, array or string.
func Present(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	switch string(t) {
	case "", "null", "{}", "[]", `""`:
		return false
	}
	return true
}

func countKeys(raw json.RawMessage) int {
	if !Present(raw) {
		return 0
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return 0
	}
	n := 0
	for _, v := range m {
		if Present(v) {
			n++
		}
	}
	return n
}

// SortedKeys returns the keys of a JSON object in order; used for stable
// report output.
func SortedKeys(raw json.RawMessage) []string {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
