// Package tiles cuts a scene's graphic overlays into Mapbox vector tiles so
// the browser map can draw them as a tiled source.
//
// Tiles are built on request from the overlay FeatureCollection. Geometry is
// simplified by zoom, clipped to the tile and projected into tile space by
// orb's mvt encoder.
package tiles

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// Layer is the vector tile layer overlays are written to.
const Layer = "overlays"

// MaxZoom is the deepest zoom tiles are cut at.
const MaxZoom = 22

// Encode renders the features that touch t into a gzipped MVT. It returns
// nil when nothing is left after clipping.
func Encode(fc *geojson.FeatureCollection, t maptile.Tile) ([]byte, error) {
	if t.Z > MaxZoom {
		return nil, fmt.Errorf("zoom %d is deeper than %d", t.Z, MaxZoom)
	}
	bound := t.Bound()

	clipped := geojson.NewFeatureCollection()
	for _, f := range fc.Features {
		if f.Geometry == nil || !intersects(f.Geometry, bound) {
			continue
		}
		// mvt clips and projects in place.
		g := geojson.NewFeature(orb.Clone(f.Geometry))
		g.Properties = flatten(f)
		clipped.Append(g)
	}
	if len(clipped.Features) == 0 {
		return nil, nil
	}

	layer := mvt.NewLayer(Layer, clipped)
	if eps := epsilon(t.Z); eps > 0 {
		layer.Simplify(simplify.DouglasPeucker(eps))
	}
	layer.Clip(bound)
	layer.ProjectToTile(t)
	layer.RemoveEmpty(0.5, 0.5)
	if len(layer.Features) == 0 {
		return nil, nil
	}

	data, err := mvt.MarshalGzipped(mvt.Layers{layer})
	if err != nil {
		return nil, fmt.Errorf("encode tile %d/%d/%d: %w", t.Z, t.X, t.Y, err)
	}
	return data, nil
}

// Covering returns the tiles at zoom z that the bound overlaps. Every
// tile returned exists at that zoom.
func Covering(b orb.Bound, z maptile.Zoom) []maptile.Tile {
	lo := maptile.At(b.Min, z)
	hi := maptile.At(b.Max, z)
	// Longitude 180 and the southern mercator limit land one past the edge.
	last := uint32(1)<<z - 1
	minX, maxX := min(lo.X, hi.X, last), min(max(lo.X, hi.X), last)
	minY, maxY := min(lo.Y, hi.Y, last), min(max(lo.Y, hi.Y), last)

	var out []maptile.Tile
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			out = append(out, maptile.New(x, y, z))
		}
	}
	return out
}

// Pyramid encodes every non-empty tile of fc between minZ and maxZ.
func Pyramid(fc *geojson.FeatureCollection, minZ, maxZ maptile.Zoom) (map[maptile.Tile][]byte, error) {
	out := map[maptile.Tile][]byte{}
	if len(fc.Features) == 0 {
		return out, nil
	}
	b := fc.Features[0].Geometry.Bound()
	for _, f := range fc.Features[1:] {
		b = b.Union(f.Geometry.Bound())
	}
	for z := minZ; z <= maxZ; z++ {
		for _, t := range Covering(b, z) {
			data, err := Encode(fc, t)
			if err != nil {
				return nil, err
			}
			if data != nil {
				out[t] = data
			}
		}
	}
	return out, nil
}

func intersects(g orb.Geometry, b orb.Bound) bool {
	if !g.Bound().Intersects(b) {
		return false
	}
	switch g := g.(type) {
	case orb.Point:
		return b.Contains(g)
	case orb.Polygon:
		for _, ring := range g {
			for _, p := range ring {
				if b.Contains(p) {
					return true
				}
			}
		}
		// Tile inside the polygon.
		corners := []orb.Point{b.Min, {b.Max[0], b.Min[1]}, b.Max, {b.Min[0], b.Max[1]}, b.Center()}
		for _, p := range corners {
			if planar.PolygonContains(g, p) {
				return true
			}
		}
		return false
	case orb.MultiPolygon:
		for _, p := range g {
			if intersects(p, b) {
				return true
			}
		}
		return false
	case orb.MultiLineString:
		for _, ls := range g {
			if intersects(ls, b) {
				return true
			}
		}
		return false
	default:
		// Lines whose bound overlaps are kept; clipping drops the misses.
		return true
	}
}

// epsilon is the Douglas-Peucker tolerance in degrees for a zoom.
func epsilon(z maptile.Zoom) float64 {
	switch {
	case z >= 14:
		return 0
	case z >= 10:
		return 0.00001
	case z >= 6:
		return 0.0001
	default:
		return 0.001
	}
}

// flatten keeps scalar properties and writes the rest as JSON text, which
// is all a vector tile value can hold. The feature id becomes "id".
func flatten(f *geojson.Feature) geojson.Properties {
	props := geojson.Properties{}
	if f.ID != nil {
		props["id"] = fmt.Sprint(f.ID)
	}
	for k, v := range f.Properties {
		switch v := v.(type) {
		case nil:
		case string, bool, int, int32, int64, uint, uint32, uint64, float32, float64:
			props[k] = v
		default:
			data, err := json.Marshal(v)
			if err != nil {
				continue
			}
			props[k] = string(data)
		}
	}
	return props
}
