package lineage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikpoptv/terrahost/internal/database"
)

func TestEdgeRowRoundTrip(t *testing.T) {
	e := Edge{From: Asset("a1"), To: RawBand("b1"), Relation: SampledFrom}
	row := e.Row("s1")
	assert.Equal(t, "assets", row.SourceTable)
	assert.Equal(t, "raw_band_data", row.TargetTable)
	assert.Equal(t, "sampled_from", row.Kind)
	assert.Equal(t, "s1", row.SessionID)

	back, err := FromRow(*row)
	require.NoError(t, err)
	assert.Equal(t, e, back)
	assert.Equal(t, "raw_band_data/b1", back.To.String())
}

func TestFromRowRejectsUnknownTables(t *testing.T) {
	_, err := FromRow(database.DataRelationship{SourceTable: "users", SourceID: "u1", TargetTable: "assets", TargetID: "a1"})
	assert.Error(t, err)
}
