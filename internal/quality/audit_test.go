package quality

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikpoptv/terrahost/internal/asset"
	"github.com/tikpoptv/terrahost/internal/database"
	"github.com/tikpoptv/terrahost/internal/geo"
)

func TestWeightedBoundary(t *testing.T) {
	c := Components{Spatial: 100, Band: 100, Geometry: 100, Indices: 0}
	assert.Equal(t, 90.0, c.Weighted())
	v := &Verification{Components: c}
	v.Grade()
	assert.True(t, v.Complete)
	assert.Equal(t, AuditComplete, v.Status)

	c = Components{Spatial: 80, Band: 80, Geometry: 80, Indices: 0}
	assert.Equal(t, 72.0, c.Weighted())
	v = &Verification{Components: c}
	v.Grade()
	assert.False(t, v.Complete)
	assert.Equal(t, AuditIncomplete, v.Status)

	assert.Equal(t, 100.0, Components{100, 100, 100, 100}.Weighted())
	assert.Equal(t, 89.99, Components{100, 100, 99.97, 0}.Weighted())
}

type failingStore struct {
	*database.DB
}

func (failingStore) LatestCompletedSession(context.Context, string) (*database.ProcessingSession, error) {
	return nil, errors.New("database is locked")
}

func TestVerifyLoadErrorIsReported(t *testing.T) {
	v := NewAuditor(failingStore{}, nil).Verify(context.Background(), "a1")
	assert.Equal(t, AuditError, v.Status)
	assert.False(t, v.Complete)
	require.Len(t, v.Issues, 1)
	assert.Contains(t, v.Issues[0], "database is locked")
}

func setupDB(t *testing.T) (*database.DB, *database.Asset) {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	a := &database.Asset{FileName: "MCD18A1_20250605.tif", StorageLocator: "uploads/x.tif", Status: string(asset.StatusProcessed)}
	require.NoError(t, db.CreateAsset(context.Background(), a))
	return db, a
}

func completedSession(t *testing.T, db *database.DB, assetID string) *database.ProcessingSession {
	t.Helper()
	ctx := context.Background()
	s := &database.ProcessingSession{AssetID: assetID}
	require.NoError(t, db.CreateSession(ctx, s))
	_, err := db.UpdateSession(ctx, s.ID, database.SessionUpdate{Status: database.SessionCompleted})
	require.NoError(t, err)
	return s
}

func TestVerifyNoSession(t *testing.T) {
	db, a := setupDB(t)
	v := NewAuditor(db, nil).Verify(context.Background(), a.ID)
	assert.Equal(t, AuditNoData, v.Status)
	assert.Empty(t, v.SessionID)
}

func TestVerifySessionWithoutRows(t *testing.T) {
	db, a := setupDB(t)
	completedSession(t, db, a.ID)
	v := NewAuditor(db, nil).Verify(context.Background(), a.ID)
	assert.Equal(t, AuditNoData, v.Status)
}

func TestVerifyCompleteAsset(t *testing.T) {
	db, a := setupDB(t)
	ctx := context.Background()
	s := completedSession(t, db, a.ID)

	err := db.WithTx(ctx, func(tx *database.Tx) error {
		if err := tx.InsertSpatialMetadata(ctx, &database.SpatialMetadata{
			AssetID: a.ID, SessionID: s.ID, Width: 10, Height: 10, BandsCount: 2, EPSGCode: "4326",
			Geotransform: [6]float64{100, 0.1, 0, 14, 0, -0.1},
			ExtentWKT:    geo.ExtentWKT(100, 13, 101, 14), ResolutionX: 30, ResolutionY: 30,
		}); err != nil {
			return err
		}
		for i := 1; i <= 2; i++ {
			if err := tx.InsertRawBand(ctx, &database.RawBandData{
				AssetID: a.ID, SessionID: s.ID, BandNumber: i, Statistics: `{"min": 1, "max": 9}`,
			}); err != nil {
				return err
			}
		}
		return tx.InsertAnalysisResult(ctx, &database.AnalysisResult{
			AssetID: a.ID, SessionID: s.ID,
			VegetationIndices: `{"ndvi": {}}`, WaterIndices: `{}`, SoilIndices: `{}`, ThermalIndices: `{}`, CustomIndices: `{}`,
		})
	})
	require.NoError(t, err)

	v := NewAuditor(db, nil).Verify(ctx, a.ID)
	assert.Equal(t, s.ID, v.SessionID)
	assert.Equal(t, 100.0, v.Components.Spatial)
	assert.Equal(t, 100.0, v.Components.Band)
	assert.Equal(t, 100.0, v.Components.Geometry)
	assert.Equal(t, 20.0, v.Components.Indices)
	assert.Equal(t, 92.0, v.WeightedScore)
	assert.True(t, v.Complete)
	assert.Equal(t, AuditComplete, v.Status)
}

func TestVerifyIncompleteAsset(t *testing.T) {
	db, a := setupDB(t)
	ctx := context.Background()
	s := completedSession(t, db, a.ID)

	err := db.WithTx(ctx, func(tx *database.Tx) error {
		if err := tx.InsertSpatialMetadata(ctx, &database.SpatialMetadata{
			AssetID: a.ID, SessionID: s.ID, Width: 10, Height: 10, BandsCount: 4,
			ExtentWKT: "POLYGON((0 0,0 0,0 0,0 0,0 0))",
		}); err != nil {
			return err
		}
		return tx.InsertRawBand(ctx, &database.RawBandData{
			AssetID: a.ID, SessionID: s.ID, BandNumber: 1, Statistics: `{"min": null, "max": 3}`,
		})
	})
	require.NoError(t, err)

	v := NewAuditor(db, nil).Verify(ctx, a.ID)
	assert.Equal(t, AuditIncomplete, v.Status)
	assert.False(t, v.Complete)
	assert.Zero(t, v.Components.Geometry)
	assert.Zero(t, v.Components.Band)
	assert.Equal(t, 4, v.BandsExpected)
	assert.Equal(t, 1, v.BandsFound)
	assert.Less(t, v.Components.Spatial, 100.0)
	assert.NotEmpty(t, v.Issues)
}
