// Package lineage records which persisted rows were derived from which.
package lineage

import (
	"context"
	"fmt"

	"github.com/tikpoptv/terrahost/internal/database"
)

// Kind is the entity a Ref points at.
type Kind struct {
	table string
}

// Table is the database table holding entities of this kind.
func (k Kind) Table() string { return k.table }

func (k Kind) String() string { return k.table }

var (
	KindAsset             = Kind{"assets"}
	KindSpatialMetadata   = Kind{"spatial_metadata"}
	KindRawMetadata       = Kind{"raw_metadata"}
	KindRawBand           = Kind{"raw_band_data"}
	KindAnalysisResult    = Kind{"analysis_results"}
	KindExtractionSummary = Kind{"extraction_summaries"}
)

var kinds = []Kind{KindAsset, KindSpatialMetadata, KindRawMetadata, KindRawBand, KindAnalysisResult, KindExtractionSummary}

// Ref identifies one persisted row. Refs can only be built with the
// constructors below, so an edge can never name an unknown table.
type Ref struct {
	kind Kind
	id   string
}

func Asset(id string) Ref             { return Ref{KindAsset, id} }
func SpatialMetadata(id string) Ref   { return Ref{KindSpatialMetadata, id} }
func RawMetadata(id string) Ref       { return Ref{KindRawMetadata, id} }
func RawBand(id string) Ref           { return Ref{KindRawBand, id} }
func AnalysisResult(id string) Ref    { return Ref{KindAnalysisResult, id} }
func ExtractionSummary(id string) Ref { return Ref{KindExtractionSummary, id} }

func (r Ref) Kind() Kind     { return r.kind }
func (r Ref) ID() string     { return r.id }
func (r Ref) String() string { return r.kind.table + "/" + r.id }

// Relation is the kind of a lineage edge.
type Relation string

const (
	DerivedFrom    Relation = "derived_from"
	CalculatedFrom Relation = "calculated_from"
	SampledFrom    Relation = "sampled_from"
	AggregatedFrom Relation = "aggregated_from"
)

// Edge states that To was produced from From.
type Edge struct {
	From     Ref
	To       Ref
	Relation Relation
}

// Row converts the edge to its database form.
func (e Edge) Row(sessionID string) *database.DataRelationship {
	return &database.DataRelationship{
		SessionID:   sessionID,
		SourceTable: e.From.kind.table,
		SourceID:    e.From.id,
		TargetTable: e.To.kind.table,
		TargetID:    e.To.id,
		Kind:        string(e.Relation),
	}
}

// FromRow rebuilds an edge from a stored row.
func FromRow(row database.DataRelationship) (Edge, error) {
	from, err := refFor(row.SourceTable, row.SourceID)
	if err != nil {
		return Edge{}, err
	}
	to, err := refFor(row.TargetTable, row.TargetID)
	if err != nil {
		return Edge{}, err
	}
	return Edge{From: from, To: to, Relation: Relation(row.Kind)}, nil
}

func refFor(table, id string) (Ref, error) {
	for _, k := range kinds {
		if k.table == table {
			return Ref{k, id}, nil
		}
	}
	return Ref{}, fmt.Errorf("unknown lineage table %q", table)
}

// Write inserts the edges inside tx.
func Write(ctx context.Context, tx *database.Tx, sessionID string, edges []Edge) error {
	for _, e := range edges {
		if err := tx.InsertRelationship(ctx, e.Row(sessionID)); err != nil {
			return err
		}
	}
	return nil
}

// Lister is the read side Load needs.
type Lister interface {
	ListRelationships(ctx context.Context, sessionID string) ([]database.DataRelationship, error)
}

// Load returns the edges recorded for a session.
func Load(ctx context.Context, l Lister, sessionID string) ([]Edge, error) {
	rows, err := l.ListRelationships(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	edges := make([]Edge, 0, len(rows))
	for _, row := range rows {
		e, err := FromRow(row)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, nil
}
