package extractor_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikpoptv/terrahost/internal/extractor"
	"github.com/tikpoptv/terrahost/internal/extractor/extractortest"
	"github.com/tikpoptv/terrahost/internal/tools"
)

func TestParseSample(t *testing.T) {
	doc, err := extractor.Parse(extractortest.SampleJSON())
	require.NoError(t, err)

	require.NotNil(t, doc.RasterInfo)
	assert.Equal(t, 120, doc.RasterInfo.Width)
	assert.Equal(t, 3, doc.RasterInfo.BandsCount)
	assert.Equal(t, extractor.EPSG("4326"), doc.SpatialInfo.Projection.EPSGCode)
	assert.Equal(t, [6]float64{100, 0.01, 0, 14, 0, -0.01}, doc.SpatialInfo.Geotransform.Array())
	require.Len(t, doc.BandData, 3)
	assert.True(t, doc.BandData[0].Statistics.HasRange())
	assert.Nil(t, doc.BandData[2].NodataValue)
	assert.Equal(t, "MODIS", doc.DetectedSensor())
	assert.Equal(t, 4, doc.ComputedIndices.IndexCount())
	assert.Equal(t, map[int]float64{1: 665, 3: 842}, doc.ComputedIndices.Wavelengths())
	assert.True(t, doc.ComputedIndices.SpectralAnalysis.Present())
	assert.Contains(t, doc.Metadata.Domains, "IMAGE_STRUCTURE")
	assert.NotContains(t, doc.Metadata.Domains, "parsed_info")
	assert.NotEmpty(t, doc.RawStorage.PixelSamplesFor(2))
	assert.Equal(t, "1.0.1-with-raw-storage", doc.ExtractorVersion)
	assert.NotEmpty(t, doc.Raw)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"empty", "   ", extractor.ErrInvalidOutput},
		{"array", `[1,2]`, extractor.ErrInvalidOutput},
		{"null", `null`, extractor.ErrInvalidOutput},
		{"garbage", `Traceback (most recent call last)`, extractor.ErrInvalidOutput},
		{"truncated", `{"raster_info": {"width": 1`, extractor.ErrInvalidOutput},
		{"two documents", `{"a":1}{"b":2}`, extractor.ErrInvalidOutput},
		{"trailing text", `{"a":1} done`, extractor.ErrInvalidOutput},
		{"error document", `{"error": "Cannot open file"}`, extractor.ErrWorkerFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := extractor.Parse([]byte(tt.in))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEPSGAcceptsNumbersAndStrings(t *testing.T) {
	for in, want := range map[string]extractor.EPSG{
		`{"epsg_code": 32647}`:       "32647",
		`{"epsg_code": "EPSG:3857"}`: "3857",
		`{"epsg_code": null}`:        "",
	} {
		var p extractor.Projection
		require.NoError(t, json.Unmarshal([]byte(in), &p))
		assert.Equal(t, want, p.EPSGCode, in)
	}
}

func TestWavelengthFormats(t *testing.T) {
	ci := &extractor.ComputedIndices{BandDetection: json.RawMessage(`{
		"band_1": {"wavelength": "665nm"},
		"band_2": {"band_number": 2, "wavelength": [520, 600]},
		"band_4": {"wavelength": "n/a"}
	}`)}
	assert.Equal(t, map[int]float64{1: 665, 2: 560}, ci.Wavelengths())
}

func TestMetadataRoundTrip(t *testing.T) {
	doc := extractortest.SampleDocument()
	out, err := json.Marshal(doc.Metadata)
	require.NoError(t, err)

	var back extractor.Metadata
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, len(doc.Metadata.Domains), len(back.Domains))
	require.NotNil(t, back.ParsedInfo)
	assert.JSONEq(t, string(doc.Metadata.ParsedInfo.SensorInfo), string(back.ParsedInfo.SensorInfo))
}

func TestExtractSuccess(t *testing.T) {
	w := extractortest.NewWorker(t, extractortest.SampleJSON(), "reading raster\n", 0)
	inv := extractor.New(w.Binary, w.Args)

	lines := make(chan tools.OutputLine, 16)
	doc, err := inv.Extract(context.Background(), "/tmp/scene.tif", lines)
	require.NoError(t, err)
	assert.Equal(t, 3, doc.RasterInfo.BandsCount)

	var got []string
	for l := range lines {
		got = append(got, l.Line)
	}
	assert.Equal(t, []string{"reading raster"}, got)
}

func TestExtractPassesPath(t *testing.T) {
	w := extractortest.ScriptWorker(t, `printf '{"raster_info":{"width":1,"height":1,"bands_count":1},"file_info":{"path":"%s"}}' "$1"`)
	doc, err := extractor.New(w.Binary, w.Args).Extract(context.Background(), "/data/x_20250101.tif", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":"/data/x_20250101.tif"}`, string(doc.FileInfo))
}

func TestExtractNonZeroExit(t *testing.T) {
	w := extractortest.NewWorker(t, []byte(`{"error": "File not found: /x.tif"}`), "", 1)
	_, err := extractor.New(w.Binary, w.Args).Extract(context.Background(), "/x.tif", nil)
	require.ErrorIs(t, err, extractor.ErrWorkerFailed)
	assert.Contains(t, err.Error(), "File not found")
}

func TestExtractStderrDiagnostic(t *testing.T) {
	w := extractortest.NewWorker(t, nil, "ModuleNotFoundError: No module named 'rasterio'\n", 2)
	_, err := extractor.New(w.Binary, w.Args).Extract(context.Background(), "/x.tif", nil)
	require.ErrorIs(t, err, extractor.ErrWorkerFailed)
	assert.Contains(t, err.Error(), "rasterio")
	assert.Contains(t, err.Error(), "exit code 2")
}

func TestExtractErrorDocumentWithZeroExit(t *testing.T) {
	w := extractortest.NewWorker(t, []byte(`{"error": "Extraction failed: bad IFD"}`), "", 0)
	_, err := extractor.New(w.Binary, w.Args).Extract(context.Background(), "/x.tif", nil)
	assert.ErrorIs(t, err, extractor.ErrWorkerFailed)
}

func TestExtractUnparsableOutput(t *testing.T) {
	w := extractortest.NewWorker(t, []byte("not json"), "warning: something\n", 0)
	_, err := extractor.New(w.Binary, w.Args).Extract(context.Background(), "/x.tif", nil)
	require.ErrorIs(t, err, extractor.ErrInvalidOutput)
	assert.Contains(t, err.Error(), "warning: something")
}

func TestExtractTimeoutKillsWorker(t *testing.T) {
	w := extractortest.ScriptWorker(t, "sleep 60\n")
	inv := extractor.New(w.Binary, w.Args, extractor.WithTimeout(300*time.Millisecond))

	start := time.Now()
	_, err := inv.Extract(context.Background(), "/x.tif", nil)
	assert.ErrorIs(t, err, extractor.ErrTimeout)
	assert.Less(t, time.Since(start), 15*time.Second)
}

func TestExtractMissingBinary(t *testing.T) {
	_, err := extractor.New("/nonexistent/python3", nil).Extract(context.Background(), "/x.tif", nil)
	assert.ErrorIs(t, err, extractor.ErrWorkerFailed)
}

func TestSampleWithout(t *testing.T) {
	doc, err := extractor.Parse(extractortest.SampleWithout("computed_indices.vegetation", "raw_storage"))
	require.NoError(t, err)
	assert.Nil(t, doc.RawStorage)
	assert.Empty(t, doc.ComputedIndices.Vegetation)
	assert.NotEmpty(t, doc.ComputedIndices.Water)
}
