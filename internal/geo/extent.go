// Package geo builds and checks raster extent geometries.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// ErrInvalidExtent is returned when an extent is not a closed, non-empty
// five-point ring.
var ErrInvalidExtent = errors.New("invalid extent")

// Extent returns the bounding box as a closed five-point polygon, wound
// counter-clockwise from the lower-left corner.
func Extent(xMin, yMin, xMax, yMax float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{xMin, yMin},
		{xMax, yMin},
		{xMax, yMax},
		{xMin, yMax},
		{xMin, yMin},
	}}
}

func ExtentWKT(xMin, yMin, xMax, yMax float64) string {
	return wkt.MarshalString(Extent(xMin, yMin, xMax, yMax))
}

// ParseExtent parses a WKT polygon and checks it with ValidateExtent.
func ParseExtent(s string) (orb.Polygon, error) {
	poly, err := wkt.UnmarshalPolygon(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExtent, err)
	}
	if err := ValidateExtent(poly); err != nil {
		return nil, err
	}
	return poly, nil
}

// ValidateExtent requires one closed ring of five finite points enclosing
// a non-zero area.
func ValidateExtent(poly orb.Polygon) error {
	if len(poly) != 1 {
		return fmt.Errorf("%w: expected 1 ring, got %d", ErrInvalidExtent, len(poly))
	}
	ring := poly[0]
	if len(ring) != 5 {
		return fmt.Errorf("%w: expected 5 points, got %d", ErrInvalidExtent, len(ring))
	}
	if !ring.Closed() {
		return fmt.Errorf("%w: ring is not closed", ErrInvalidExtent)
	}
	for _, p := range ring {
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
			return fmt.Errorf("%w: non-finite coordinate", ErrInvalidExtent)
		}
	}
	if planar.Area(poly) == 0 {
		return fmt.Errorf("%w: zero area", ErrInvalidExtent)
	}
	return nil
}

// Feature wraps an extent WKT as a GeoJSON feature with the given
// properties.
func Feature(extentWKT string, props map[string]any) (*geojson.Feature, error) {
	poly, err := ParseExtent(extentWKT)
	if err != nil {
		return nil, err
	}
	f := geojson.NewFeature(poly)
	for k, v := range props {
		f.Properties[k] = v
	}
	return f, nil
}
