package scene

import (
	"maps"

	"github.com/paulmach/orb/geojson"
)

// FeatureCollection exports the scene's overlays as GeoJSON, in z-order.
// Attributes become properties; the symbol travels under "symbol".
func (s Scene) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, o := range s.Overlays {
		fc.Append(o.Feature())
	}
	return fc
}

// Feature returns the overlay as a GeoJSON feature.
func (o GraphicOverlay) Feature() *geojson.Feature {
	f := geojson.NewFeature(o.Geometry.Orb())
	if o.ID != "" {
		f.ID = o.ID
	}
	maps.Copy(f.Properties, o.Attributes)
	f.Properties["symbol"] = o.Symbol.Resolve(o.Attributes)
	if o.Popup != nil {
		f.Properties["popup"] = o.Popup
	}
	return f
}
