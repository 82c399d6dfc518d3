// Package report renders extraction audit reports for an asset as markdown
// or PDF and records them in the reports table.
package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tikpoptv/terrahost/internal/database"
	"github.com/tikpoptv/terrahost/internal/lineage"
	"github.com/tikpoptv/terrahost/internal/quality"
)

const (
	FormatMarkdown = "markdown"
	FormatPDF      = "pdf"
)

var (
	ErrAssetNotFound = errors.New("asset not found")
	ErrUnknownFormat = errors.New("unknown report format")
)

// Audit is everything a report shows about one asset.
type Audit struct {
	Asset        *database.Asset
	Verification *quality.Verification
	Sessions     []database.ProcessingSession
	Steps        []database.ProcessingStep
	Spatial      *database.SpatialMetadata
	Bands        []database.RawBandData
	Edges        []lineage.Edge
	GeneratedAt  time.Time
}

type Generator struct {
	db         *database.DB
	auditor    *quality.Auditor
	reportsDir string
	fontPath   string
}

func NewGenerator(db *database.DB, auditor *quality.Auditor, reportsDir, fontPath string) *Generator {
	return &Generator{db: db, auditor: auditor, reportsDir: reportsDir, fontPath: fontPath}
}

// Collect loads the audit for an asset. Sections belonging to the latest
// completed session are left empty when the asset was never processed.
func (g *Generator) Collect(ctx context.Context, assetID string) (*Audit, error) {
	a, err := g.db.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, assetID)
	}

	audit := &Audit{Asset: a, GeneratedAt: time.Now().UTC()}
	audit.Verification = g.auditor.Verify(ctx, assetID)

	if audit.Sessions, err = g.db.ListSessions(ctx, assetID); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	sessionID := audit.Verification.SessionID
	if sessionID == "" {
		return audit, nil
	}
	if audit.Steps, err = g.db.ListSteps(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("listing steps: %w", err)
	}
	if audit.Spatial, err = g.db.GetSpatialMetadata(ctx, assetID, sessionID); err != nil {
		return nil, err
	}
	if audit.Bands, err = g.db.ListRawBands(ctx, assetID, sessionID); err != nil {
		return nil, err
	}
	if audit.Edges, err = lineage.Load(ctx, g.db, sessionID); err != nil {
		return nil, err
	}
	return audit, nil
}

// Save renders a report, writes it under the reports directory and records
// it. Markdown content is also stored in the row.
func (g *Generator) Save(ctx context.Context, assetID, format string) (*database.Report, error) {
	if format == "" {
		format = FormatMarkdown
	}
	if format != FormatMarkdown && format != FormatPDF {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}

	audit, err := g.Collect(ctx, assetID)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(g.reportsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating reports dir: %w", err)
	}
	base := strings.TrimSuffix(audit.Asset.FileName, filepath.Ext(audit.Asset.FileName))
	stamp := audit.GeneratedAt.Format("20060102-150405")

	rpt := &database.Report{
		AssetID: assetID,
		Title:   "Extraction audit: " + audit.Asset.FileName,
		Format:  format,
	}

	switch format {
	case FormatMarkdown:
		rpt.Content = Markdown(audit)
		rpt.FilePath = filepath.Join(g.reportsDir, fmt.Sprintf("%s-%s.md", base, stamp))
		if err := os.WriteFile(rpt.FilePath, []byte(rpt.Content), 0o644); err != nil {
			return nil, fmt.Errorf("writing report: %w", err)
		}
	case FormatPDF:
		rpt.FilePath = filepath.Join(g.reportsDir, fmt.Sprintf("%s-%s.pdf", base, stamp))
		if err := WritePDF(audit, g.fontPath, rpt.FilePath); err != nil {
			return nil, err
		}
	}

	if err := g.db.CreateReport(ctx, rpt); err != nil {
		return nil, fmt.Errorf("saving report record: %w", err)
	}
	return rpt, nil
}
