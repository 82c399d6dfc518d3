package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikpoptv/terrahost/internal/extractor"
	"github.com/tikpoptv/terrahost/internal/extractor/extractortest"
)

func parse(t *testing.T, data []byte) *extractor.Document {
	t.Helper()
	doc, err := extractor.Parse(data)
	require.NoError(t, err)
	return doc
}

func TestScoreDocumentFullSampleIsCapped(t *testing.T) {
	r := ScoreDocument(extractortest.SampleDocument())
	assert.Equal(t, InlineMax, r.Score)
	assert.Equal(t, 100.0, r.CompletenessPct)
	assert.Equal(t, StatusExcellent, r.Status)
	assert.Equal(t, 25.0, r.Breakdown["spatial_info"])
	assert.Equal(t, 25.0, r.Breakdown["band_data"])
	assert.Equal(t, 27.0, r.Breakdown["analysis"])
	assert.Equal(t, 5.0, r.Breakdown["sensor_bonus"])
}

func TestScoreDocumentMissingSectionsScoreZero(t *testing.T) {
	doc := parse(t, extractortest.SampleWithout("computed_indices", "metadata", "band_data", "spatial_info.projection"))
	r := ScoreDocument(doc)

	assert.Zero(t, r.Breakdown["analysis"])
	assert.Zero(t, r.Breakdown["band_data"])
	assert.Zero(t, r.Breakdown["sensor_bonus"])
	assert.Equal(t, 17.0, r.Breakdown["spatial_info"])
	assert.Equal(t, 57.0, r.Score)
	assert.Equal(t, StatusFair, r.Status)
	assert.Contains(t, r.Issues, "no band_data")
}

func TestScoreDocumentNil(t *testing.T) {
	r := ScoreDocument(nil)
	assert.Zero(t, r.Score)
	assert.Equal(t, StatusPoor, r.Status)
	assert.NotEmpty(t, r.Issues)
}

func TestScoreDocumentPartialBands(t *testing.T) {
	doc := extractortest.SampleDocument()
	doc.BandData[2].Statistics.Min = nil
	r := ScoreDocument(doc)
	assert.InDelta(t, 25.0*2/3, r.Breakdown["band_data"], 1e-9)
	assert.NotEmpty(t, r.Warnings)
}

var optionalSections = []string{
	"file_info",
	"raster_info",
	"spatial_info",
	"spatial_info.projection",
	"spatial_info.bounding_box",
	"band_data",
	"metadata",
	"computed_indices",
	"computed_indices.band_detection",
	"computed_indices.rgb",
	"computed_indices.vegetation",
	"computed_indices.water",
	"computed_indices.soil",
	"computed_indices.spectral_analysis",
	"computed_indices.custom",
}

func TestScoreIsMonotonic(t *testing.T) {
	// Start from a document missing everything and add sections back one
	// at a time; the score must never go down.
	for i := range optionalSections {
		without := optionalSections[i:]
		withOne := optionalSections[i+1:]

		before := ScoreDocument(parse(t, extractortest.SampleWithout(without...))).Score
		after := ScoreDocument(parse(t, extractortest.SampleWithout(withOne...))).Score
		assert.GreaterOrEqual(t, after, before, "adding %s", optionalSections[i])
	}

	// Removing any single section never raises the score.
	full := ScoreDocument(extractortest.SampleDocument()).Score
	for _, s := range optionalSections {
		got := ScoreDocument(parse(t, extractortest.SampleWithout(s))).Score
		assert.LessOrEqual(t, got, full, "removing %s", s)
	}
}

func TestInlineStatusThresholds(t *testing.T) {
	assert.Equal(t, StatusExcellent, inlineStatus(90))
	assert.Equal(t, StatusGood, inlineStatus(89.9))
	assert.Equal(t, StatusGood, inlineStatus(70))
	assert.Equal(t, StatusFair, inlineStatus(50))
	assert.Equal(t, StatusPoor, inlineStatus(49.9))
}
