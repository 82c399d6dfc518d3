package report

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikpoptv/terrahost/internal/asset"
	"github.com/tikpoptv/terrahost/internal/database"
	"github.com/tikpoptv/terrahost/internal/extractor/extractortest"
	"github.com/tikpoptv/terrahost/internal/persistence"
	"github.com/tikpoptv/terrahost/internal/quality"
)

func setup(t *testing.T) (*Generator, *database.DB, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := database.New(filepath.Join(dir, "report.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewGenerator(db, quality.NewAuditor(db, nil), filepath.Join(dir, "reports"), ""), db, dir
}

func processedAsset(t *testing.T, db *database.DB) *database.Asset {
	t.Helper()
	ctx := context.Background()
	a := &database.Asset{FileName: "MCD18A1_20250605.tif", StorageLocator: "uploads/x/MCD18A1_20250605.tif", SizeBytes: 2 << 20}
	require.NoError(t, db.CreateAsset(ctx, a))
	s := &database.ProcessingSession{AssetID: a.ID}
	require.NoError(t, db.CreateSession(ctx, s))

	_, err := persistence.New(db, nil).Persist(ctx, persistence.Input{Asset: a, SessionID: s.ID, Document: extractortest.SampleDocument()})
	require.NoError(t, err)

	full := 100
	_, err = db.UpdateSession(ctx, s.ID, database.SessionUpdate{Status: database.SessionCompleted, Progress: &full})
	require.NoError(t, err)
	require.NoError(t, db.SetAssetState(ctx, a.ID, asset.Processed(s.ID)))
	a, err = db.GetAsset(ctx, a.ID)
	require.NoError(t, err)
	return a
}

func TestSaveMarkdown(t *testing.T) {
	g, db, _ := setup(t)
	ctx := context.Background()
	a := processedAsset(t, db)

	rpt, err := g.Save(ctx, a.ID, "")
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, rpt.Format)
	assert.True(t, strings.HasSuffix(rpt.FilePath, ".md"))

	data, err := os.ReadFile(rpt.FilePath)
	require.NoError(t, err)
	content := string(data)
	assert.Equal(t, rpt.Content, content)
	assert.Contains(t, content, "# Extraction Audit: MCD18A1_20250605.tif")
	assert.Contains(t, content, "Status **complete**")
	assert.Contains(t, content, "## Bands")
	assert.Contains(t, content, "## Lineage")
	assert.Contains(t, content, "derived_from")
	assert.Contains(t, content, "2.1 MB")

	stored, err := db.ListReports(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, rpt.ID, stored[0].ID)
}

func TestMarkdownForUnprocessedAsset(t *testing.T) {
	g, db, _ := setup(t)
	ctx := context.Background()
	a := &database.Asset{FileName: "MCD18A1_20250605.tif", Status: string(asset.StatusUploaded)}
	require.NoError(t, db.CreateAsset(ctx, a))

	audit, err := g.Collect(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, quality.AuditNoData, audit.Verification.Status)

	md := Markdown(audit)
	assert.Contains(t, md, "Status **no_data**")
	assert.NotContains(t, md, "## Bands")
}

func TestSaveErrors(t *testing.T) {
	g, db, _ := setup(t)
	ctx := context.Background()

	_, err := g.Save(ctx, "missing", FormatMarkdown)
	assert.ErrorIs(t, err, ErrAssetNotFound)

	a := processedAsset(t, db)
	_, err = g.Save(ctx, a.ID, "docx")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestSavePDF(t *testing.T) {
	if _, err := FindFont(""); err != nil {
		t.Skip("no TrueType font installed")
	}
	g, db, _ := setup(t)
	a := processedAsset(t, db)

	rpt, err := g.Save(context.Background(), a.ID, FormatPDF)
	require.NoError(t, err)
	data, err := os.ReadFile(rpt.FilePath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
	assert.Empty(t, rpt.Content)
}

func TestFindFontRejectsMissingPath(t *testing.T) {
	_, err := FindFont(filepath.Join(t.TempDir(), "nope.ttf"))
	assert.ErrorIs(t, err, ErrNoFont)
}
