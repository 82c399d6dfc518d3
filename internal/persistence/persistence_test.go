package persistence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikpoptv/terrahost/internal/asset"
	"github.com/tikpoptv/terrahost/internal/database"
	"github.com/tikpoptv/terrahost/internal/extractor"
	"github.com/tikpoptv/terrahost/internal/extractor/extractortest"
	"github.com/tikpoptv/terrahost/internal/geo"
	"github.com/tikpoptv/terrahost/internal/lineage"
	"github.com/tikpoptv/terrahost/internal/quality"
)

type fixture struct {
	db      *database.DB
	engine  *Engine
	asset   *database.Asset
	session *database.ProcessingSession
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.New(filepath.Join(t.TempDir(), "persist.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	a := &database.Asset{
		FileName: "MCD18A1_20250605.tif", StorageLocator: "uploads/a/MCD18A1_20250605.tif",
		Checksum: "abc123", SizeBytes: 4096, Status: string(asset.StatusProcessing),
	}
	require.NoError(t, db.CreateAsset(ctx, a))
	s := &database.ProcessingSession{AssetID: a.ID}
	require.NoError(t, db.CreateSession(ctx, s))

	return &fixture{db: db, engine: New(db, nil), asset: a, session: s}
}

func (f *fixture) input(doc *extractor.Document) Input {
	return Input{Asset: f.asset, SessionID: f.session.ID, Document: doc}
}

func TestPersistWritesEveryEntity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := extractortest.SampleDocument()

	res, err := f.engine.Persist(ctx, f.input(doc))
	require.NoError(t, err)
	assert.Equal(t, 3, res.BandCount)
	assert.Equal(t, quality.InlineMax, res.Quality.Score)

	counts, err := f.db.CountDerivedRows(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"spatial_metadata":     1,
		"raw_metadata":         1,
		"raw_band_data":        3,
		"analysis_results":     1,
		"extraction_summaries": 1,
		"data_relationships":   7,
	}, counts)

	spatial, err := f.db.GetSpatialMetadata(ctx, f.asset.ID, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, "4326", spatial.EPSGCode)
	assert.Equal(t, [6]float64{100, 0.01, 0, 14, 0, -0.01}, spatial.Geotransform)
	poly, err := geo.ParseExtent(spatial.ExtentWKT)
	require.NoError(t, err)
	assert.Equal(t, geo.Extent(100, 13.2, 101.2, 14), poly)

	summary, err := f.db.GetExtractionSummary(ctx, f.asset.ID, f.session.ID)
	require.NoError(t, err)
	sum := sha256.Sum256(doc.Raw)
	assert.Equal(t, hex.EncodeToString(sum[:]), summary.ContentHash)
	assert.Equal(t, "MCD18A1_20250605.tif", summary.OriginalFileName)
	assert.Equal(t, "abc123", summary.OriginalChecksum)
	assert.Equal(t, int64(4096), summary.OriginalSizeBytes)
	assert.Equal(t, 4, summary.IndicesCount)
	assert.Equal(t, int64(len(doc.Raw)), summary.DocumentSizeBytes)
	assert.Positive(t, summary.BandDataSizeBytes)
	assert.Positive(t, summary.MetadataSizeBytes)
	assert.Positive(t, summary.AnalysisSizeBytes)
	assert.Equal(t, quality.StatusExcellent, summary.QualityStatus)

	bands, err := f.db.ListRawBands(ctx, f.asset.ID, f.session.ID)
	require.NoError(t, err)
	require.Len(t, bands, 3)
	require.NotNil(t, bands[0].Wavelength)
	assert.Equal(t, 665.0, *bands[0].Wavelength)
	assert.Nil(t, bands[1].Wavelength)
	assert.Nil(t, bands[2].NodataValue)
	assert.JSONEq(t, `{"samples": [12, 400, 812], "sample_count": 3, "total_pixels": 9600}`, bands[0].PixelSamples)

	raw, err := f.db.GetRawMetadata(ctx, f.asset.ID, f.session.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"default": {"AREA_OR_POINT": "Area"}}`, raw.CompleteMetadata)
	assert.Contains(t, raw.SensorInfo, "MODIS")
	assert.Contains(t, raw.FormatInfo, "GTiff")

	analysis, err := f.db.GetAnalysisResult(ctx, f.asset.ID, f.session.ID)
	require.NoError(t, err)
	assert.Contains(t, analysis.BandCorrelations, "band_1_vs_band_2")
	assert.Contains(t, analysis.MaterialHints, "vegetation")
}

func TestPersistLineageEdges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.engine.Persist(ctx, f.input(extractortest.SampleDocument()))
	require.NoError(t, err)

	edges, err := lineage.Load(ctx, f.db, f.session.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, res.Edges, edges)

	byRelation := map[lineage.Relation]int{}
	for _, e := range edges {
		assert.Equal(t, lineage.Asset(f.asset.ID), e.From)
		byRelation[e.Relation]++
	}
	assert.Equal(t, map[lineage.Relation]int{
		lineage.DerivedFrom:    2,
		lineage.SampledFrom:    3,
		lineage.CalculatedFrom: 1,
		lineage.AggregatedFrom: 1,
	}, byRelation)
}

func TestPersistRejectsMissingSectionsBeforeWriting(t *testing.T) {
	for _, section := range []string{"raster_info", "spatial_info", "spatial_info.bounding_box"} {
		t.Run(section, func(t *testing.T) {
			f := newFixture(t)
			doc, err := extractor.Parse(extractortest.SampleWithout(section))
			require.NoError(t, err)

			_, err = f.engine.Persist(context.Background(), f.input(doc))
			assert.ErrorIs(t, err, ErrMissingSection)

			counts, err := f.db.CountDerivedRows(context.Background(), f.session.ID)
			require.NoError(t, err)
			for table, n := range counts {
				assert.Zero(t, n, table)
			}
		})
	}
}

func TestPersistIsAtomicWhenBandInsertFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := extractortest.SampleDocument()
	// Two bands with the same number violate the per-band unique key.
	doc.BandData[2].BandNumber = 1

	_, err := f.engine.Persist(ctx, f.input(doc))
	require.Error(t, err)

	counts, err := f.db.CountDerivedRows(ctx, f.session.ID)
	require.NoError(t, err)
	for table, n := range counts {
		assert.Zero(t, n, table)
	}
}

func TestPersistTwiceForSameSessionFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.Persist(ctx, f.input(extractortest.SampleDocument()))
	require.NoError(t, err)

	_, err = f.engine.Persist(ctx, f.input(extractortest.SampleDocument()))
	require.Error(t, err)

	counts, err := f.db.CountDerivedRows(ctx, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["spatial_metadata"])
	assert.Equal(t, 3, counts["raw_band_data"])
}

func TestPersistMinimalDocument(t *testing.T) {
	f := newFixture(t)
	doc, err := extractor.Parse([]byte(`{
		"raster_info": {"width": 2, "height": 2, "bands_count": 1},
		"spatial_info": {"bounding_box": {"x_min": 0, "y_min": 0, "x_max": 1, "y_max": 1}}
	}`))
	require.NoError(t, err)

	res, err := f.engine.Persist(context.Background(), f.input(doc))
	require.NoError(t, err)
	assert.Zero(t, res.BandCount)
	assert.Len(t, res.Edges, 4)
	assert.Equal(t, quality.StatusPoor, res.Quality.Status)

	analysis, err := f.db.GetAnalysisResult(context.Background(), f.asset.ID, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, "[]", analysis.MaterialHints)
}
