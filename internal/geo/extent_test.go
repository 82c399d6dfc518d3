package geo

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtentIsClosedRing(t *testing.T) {
	poly := Extent(100, 13.2, 101.2, 14)
	require.Len(t, poly, 1)
	assert.Len(t, poly[0], 5)
	assert.True(t, poly[0].Closed())
	assert.NoError(t, ValidateExtent(poly))
}

func TestExtentWKTRoundTrip(t *testing.T) {
	s := ExtentWKT(100, 13.2, 101.2, 14)
	assert.Contains(t, s, "POLYGON")

	poly, err := ParseExtent(s)
	require.NoError(t, err)
	assert.Equal(t, Extent(100, 13.2, 101.2, 14), poly)
}

func TestValidateExtentRejects(t *testing.T) {
	assert.ErrorIs(t, ValidateExtent(Extent(1, 1, 1, 5)), ErrInvalidExtent)
	assert.ErrorIs(t, ValidateExtent(orb.Polygon{}), ErrInvalidExtent)
	assert.ErrorIs(t, ValidateExtent(Extent(0, 0, math.NaN(), 1)), ErrInvalidExtent)

	open := orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0.5}}}
	assert.ErrorIs(t, ValidateExtent(open), ErrInvalidExtent)

	_, err := ParseExtent("POINT (1 2)")
	assert.ErrorIs(t, err, ErrInvalidExtent)
	_, err = ParseExtent("")
	assert.ErrorIs(t, err, ErrInvalidExtent)
}

func TestFeature(t *testing.T) {
	f, err := Feature(ExtentWKT(0, 0, 2, 1), map[string]any{"asset_id": "a1"})
	require.NoError(t, err)

	out, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"type":"Feature"`)
	assert.Contains(t, string(out), `"asset_id":"a1"`)
	assert.Contains(t, string(out), `"Polygon"`)
}
