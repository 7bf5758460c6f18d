// Package geojson provides the GeoJSON polygon footprints published on items
// and the bounding-box arithmetic around them.
package geojson

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrUnsupportedGeometry is returned for geometry types other than Polygon.
var ErrUnsupportedGeometry = errors.New("unsupported geometry type")

// Geometry is a GeoJSON geometry with its coordinates kept raw until needed.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Polygon decodes the rings of a Polygon geometry.
func (g *Geometry) Polygon() ([][][]float64, error) {
	if g.Type != "Polygon" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGeometry, g.Type)
	}
	var rings [][][]float64
	if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
		return nil, fmt.Errorf("decode polygon coordinates: %w", err)
	}
	return rings, nil
}

// BBox is ComputeBBox(g).
func (g *Geometry) BBox() ([]float64, error) {
	return ComputeBBox(g)
}

// ComputeBBox returns [minx, miny, maxx, maxy] over every vertex of a
// polygon. Vertices with fewer than two ordinates are ignored.
func ComputeBBox(g *Geometry) ([]float64, error) {
	if g == nil {
		return nil, errors.New("geometry is nil")
	}
	rings, err := g.Polygon()
	if err != nil {
		return nil, err
	}

	box := []float64{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for _, ring := range rings {
		for _, p := range ring {
			if len(p) < 2 {
				continue
			}
			box[0], box[1] = math.Min(box[0], p[0]), math.Min(box[1], p[1])
			box[2], box[3] = math.Max(box[2], p[0]), math.Max(box[3], p[1])
		}
	}
	if math.IsInf(box[0], 0) {
		return nil, errors.New("polygon has no vertices")
	}
	return box, nil
}

// NewFootprint creates the exact rectangular footprint of a raster extent.
// bbox should be [minx, miny, maxx, maxy]. The ring visits the corners in
// pixel-grid order: bottom-left, top-left, top-right, bottom-right, and is
// closed back on bottom-left.
func NewFootprint(bbox []float64) (*Geometry, error) {
	if len(bbox) != 4 {
		return nil, fmt.Errorf("bbox must have 4 values [minx, miny, maxx, maxy], got %d", len(bbox))
	}

	minX, minY, maxX, maxY := bbox[0], bbox[1], bbox[2], bbox[3]
	if minX > maxX || minY > maxY {
		return nil, fmt.Errorf("bbox is inverted: %v", bbox)
	}

	ring := [][]float64{{minX, minY}, {minX, maxY}, {maxX, maxY}, {maxX, minY}, {minX, minY}}
	coords, err := json.Marshal([][][]float64{ring})
	if err != nil {
		return nil, fmt.Errorf("encode footprint: %w", err)
	}
	return &Geometry{Type: "Polygon", Coordinates: coords}, nil
}

// BBoxIntersects reports whether two [minx, miny, maxx, maxy] boxes share any
// area or boundary.
func BBoxIntersects(a, b []float64) bool {
	if len(a) != 4 || len(b) != 4 {
		return false
	}
	return a[0] <= b[2] && b[0] <= a[2] && a[1] <= b[3] && b[1] <= a[3]
}

// BBoxEqual reports whether two boxes are equal within tolerance.
func BBoxEqual(a, b []float64, tolerance float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > tolerance {
			return false
		}
	}
	return true
}
