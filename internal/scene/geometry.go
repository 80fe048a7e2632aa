package scene

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// GeometryType is the shape of a local overlay.
type GeometryType string

const (
	PointGeometry    GeometryType = "point"
	PolylineGeometry GeometryType = "polyline"
	PolygonGeometry  GeometryType = "polygon"
)

// Geometry is a local vector shape in lon/lat. Only the field matching
// Type is read.
type Geometry struct {
	Type  GeometryType        `json:"type" yaml:"type" required:"true" enum:"point,polyline,polygon" doc:"Geometry type"`
	Point orb.Point           `json:"point,omitempty" yaml:"point,omitempty" doc:"Point as [lon, lat]"`
	Paths orb.MultiLineString `json:"paths,omitempty" yaml:"paths,omitempty" doc:"Polyline paths"`
	Rings orb.Polygon         `json:"rings,omitempty" yaml:"rings,omitempty" doc:"Polygon rings, each closed"`
}

// PointAt returns a point geometry.
func PointAt(lon, lat float64) Geometry {
	return Geometry{Type: PointGeometry, Point: orb.Point{lon, lat}}
}

// PolylineOf returns a polyline geometry with the given paths.
func PolylineOf(paths ...orb.LineString) Geometry {
	return Geometry{Type: PolylineGeometry, Paths: orb.MultiLineString(paths)}
}

// PolygonOf returns a polygon geometry with the given rings.
func PolygonOf(rings ...orb.Ring) Geometry {
	return Geometry{Type: PolygonGeometry, Rings: orb.Polygon(rings)}
}

// Validate checks coordinate ranges and shape rules: paths need two
// vertices, rings need four and must close.
func (g Geometry) Validate() error {
	switch g.Type {
	case PointGeometry:
		if err := validPoint(g.Point); err != nil {
			return scoped(err, "", "point")
		}
	case PolylineGeometry:
		if len(g.Paths) == 0 {
			return invalidf("paths", "polyline needs at least one path")
		}
		for i, path := range g.Paths {
			if len(path) < 2 {
				return invalidf(fmt.Sprintf("paths[%d]", i), "path needs at least 2 vertices, got %d", len(path))
			}
			for j, p := range path {
				if err := validPoint(p); err != nil {
					return scoped(err, "", fmt.Sprintf("paths[%d][%d]", i, j))
				}
			}
		}
	case PolygonGeometry:
		if len(g.Rings) == 0 {
			return invalidf("rings", "polygon needs at least one ring")
		}
		for i, ring := range g.Rings {
			if len(ring) < 4 {
				return invalidf(fmt.Sprintf("rings[%d]", i), "ring needs at least 4 vertices, got %d", len(ring))
			}
			if !ring.Closed() {
				return invalidf(fmt.Sprintf("rings[%d]", i), "ring is not closed")
			}
			for j, p := range ring {
				if err := validPoint(p); err != nil {
					return scoped(err, "", fmt.Sprintf("rings[%d][%d]", i, j))
				}
			}
		}
	default:
		return invalidf("type", "unknown geometry type %q", g.Type)
	}
	return nil
}

// Orb returns the geometry as an orb value. A single polyline path comes
// back as a LineString.
func (g Geometry) Orb() orb.Geometry {
	switch g.Type {
	case PointGeometry:
		return g.Point
	case PolylineGeometry:
		if len(g.Paths) == 1 {
			return g.Paths[0]
		}
		return g.Paths
	case PolygonGeometry:
		return g.Rings
	}
	return nil
}

// Bound returns the geometry's bounding box.
func (g Geometry) Bound() orb.Bound {
	if o := g.Orb(); o != nil {
		return o.Bound()
	}
	return orb.Bound{}
}

func validPoint(p orb.Point) error {
	if !within(p.Lon(), -180, 180) {
		return invalidf("", "longitude %v out of range [-180, 180]", p.Lon())
	}
	if !within(p.Lat(), -90, 90) {
		return invalidf("", "latitude %v out of range [-90, 90]", p.Lat())
	}
	return nil
}

// within reports lo <= v <= hi. NaN is never within a range.
func within(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

// nonNegative reports whether v is a finite number >= 0.
func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 1)
}
