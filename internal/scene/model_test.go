package scene

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeometryValidate(t *testing.T) {
	ring := orb.Ring{{-122.68, 45.51}, {-122.67, 45.51}, {-122.67, 45.52}, {-122.68, 45.51}}

	tests := []struct {
		name  string
		geom  Geometry
		field string
	}{
		{"point", PointAt(-122.76477, 45.58508), ""},
		{"point lon out of range", PointAt(-190, 45), "point"},
		{"point lon NaN", PointAt(math.NaN(), 45), "point"},
		{"point lat infinite", PointAt(-122, math.Inf(1)), "point"},
		{"polyline", PolylineOf(orb.LineString{{-122.68, 45.51}, {-122.66, 45.52}}), ""},
		{"polyline without paths", Geometry{Type: PolylineGeometry}, "paths"},
		{"polyline short path", PolylineOf(orb.LineString{{-122.68, 45.51}}), "paths[0]"},
		{"polyline vertex NaN", PolylineOf(orb.LineString{{-122.68, 45.51}, {math.NaN(), 45.52}}), "paths[0][1]"},
		{"polygon", PolygonOf(ring), ""},
		{"polygon open ring", PolygonOf(orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}}), "rings[0]"},
		{"polygon short ring", PolygonOf(orb.Ring{{0, 0}, {1, 0}, {0, 0}}), "rings[0]"},
		{"polygon vertex out of range", PolygonOf(orb.Ring{{0, 0}, {1, 0}, {1, 91}, {0, 0}}), "rings[0][2]"},
		{"polygon vertex infinite", PolygonOf(orb.Ring{{0, 0}, {1, 0}, {math.Inf(-1), 1}, {0, 0}}), "rings[0][2]"},
		{"unknown type", Geometry{Type: "circle"}, "type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.geom.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ce *ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestGeometryOrb(t *testing.T) {
	single := PolylineOf(orb.LineString{{0, 0}, {1, 1}})
	assert.IsType(t, orb.LineString{}, single.Orb())

	multi := PolylineOf(orb.LineString{{0, 0}, {1, 1}}, orb.LineString{{2, 2}, {3, 3}})
	assert.IsType(t, orb.MultiLineString{}, multi.Orb())

	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{3, 3}}, multi.Bound())
}

func TestSymbolValidate(t *testing.T) {
	red := Symbol{Kind: SimpleFill, Color: "#ff0000"}
	blue := Symbol{Kind: SimpleFill, Color: "#00f"}

	tests := []struct {
		name  string
		sym   Symbol
		field string
	}{
		{"simple marker", Symbol{Kind: SimpleMarker, Color: "#e2770080", Size: 8}, ""},
		{"bad color", Symbol{Kind: SimpleMarker, Color: "orange"}, "color"},
		{"picture without url", Symbol{Kind: PictureMarker}, "url"},
		{"unknown kind", Symbol{Kind: "text"}, "kind"},
		{"bad outline", Symbol{Kind: SimpleFill, Outline: &Outline{Color: "#12"}}, "outline.color"},
		{"negative size", Symbol{Kind: SimpleMarker, Size: -1}, "size"},
		{"NaN size", Symbol{Kind: SimpleMarker, Size: math.NaN()}, "size"},
		{"infinite outline width", Symbol{Kind: SimpleFill, Outline: &Outline{Color: "#000", Width: math.Inf(1)}}, "outline.width"},
		{"unique value", Symbol{Kind: UniqueValue, Field: "ZONE", UniqueValues: []UniqueValueInfo{{Value: "R1", Symbol: red}}, Default: &blue}, ""},
		{"unique value without field", Symbol{Kind: UniqueValue, UniqueValues: []UniqueValueInfo{{Value: "R1", Symbol: red}}, Default: &blue}, "field"},
		{"unique value without default", Symbol{Kind: UniqueValue, Field: "ZONE", UniqueValues: []UniqueValueInfo{{Value: "R1", Symbol: red}}}, "default"},
		{"unique value without values", Symbol{Kind: UniqueValue, Field: "ZONE", Default: &blue}, "uniqueValues"},
		{"unique value duplicate", Symbol{Kind: UniqueValue, Field: "ZONE", UniqueValues: []UniqueValueInfo{{Value: "R1", Symbol: red}, {Value: "R1", Symbol: blue}}, Default: &blue}, "uniqueValues[1].value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sym.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ce *ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestRemoteLayerValidate(t *testing.T) {
	const url = "https://example.com/FeatureServer/0"

	tests := []struct {
		name  string
		layer RemoteLayerRef
		field string
	}{
		{"plain", RemoteLayerRef{ID: "parks", URL: url, Opacity: 0.5}, ""},
		{"relative url", RemoteLayerRef{ID: "parks", URL: "/FeatureServer/0"}, "url"},
		{"opacity above one", RemoteLayerRef{ID: "parks", URL: url, Opacity: 1.5}, "opacity"},
		{"NaN opacity", RemoteLayerRef{ID: "parks", URL: url, Opacity: math.NaN()}, "opacity"},
		{"infinite label size", RemoteLayerRef{ID: "parks", URL: url, Label: &LabelRule{Expression: "$feature.NAME", FontSize: math.Inf(1)}}, "label"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.layer.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ce *ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestSymbolSupports(t *testing.T) {
	assert.True(t, Symbol{Kind: SimpleMarker}.Supports(PointGeometry))
	assert.True(t, Symbol{Kind: PictureMarker}.Supports(PointGeometry))
	assert.True(t, Symbol{Kind: SimpleLine}.Supports(PolylineGeometry))
	assert.True(t, Symbol{Kind: SimpleFill}.Supports(PolygonGeometry))
	assert.False(t, Symbol{Kind: SimpleLine}.Supports(PointGeometry))
	assert.False(t, Symbol{Kind: SimpleFill}.Supports(PolylineGeometry))

	line := Symbol{Kind: SimpleLine}
	mixed := Symbol{Kind: UniqueValue, Field: "TYPE", UniqueValues: []UniqueValueInfo{{Value: "a", Symbol: line}}, Default: &Symbol{Kind: SimpleMarker}}
	assert.False(t, mixed.Supports(PolylineGeometry))
	assert.False(t, mixed.Supports(PointGeometry))

	lines := Symbol{Kind: UniqueValue, Field: "TYPE", UniqueValues: []UniqueValueInfo{{Value: "a", Symbol: line}}, Default: &line}
	assert.True(t, lines.Supports(PolylineGeometry))
}

func TestSymbolResolve(t *testing.T) {
	bike := Symbol{Kind: SimpleLine, Color: "#00ff00"}
	other := Symbol{Kind: SimpleLine, Color: "#999999"}
	uv := Symbol{Kind: UniqueValue, Field: "LANES", UniqueValues: []UniqueValueInfo{{Value: "2", Symbol: bike}}, Default: &other}

	assert.Equal(t, bike, uv.Resolve(map[string]any{"LANES": 2}))
	assert.Equal(t, other, uv.Resolve(map[string]any{"LANES": 4}))
	assert.Equal(t, other, uv.Resolve(nil))
	assert.Equal(t, bike, bike.Resolve(nil))
}

func TestPopupPlaceholders(t *testing.T) {
	p := PopupTemplate{
		Title:   "{Name}",
		Content: `<img src="a.jpg" style="width:100%;height:auto;" /><br>{Description} ({Name})`,
	}
	assert.Equal(t, []string{"Name", "Description"}, p.Placeholders())

	title, content := p.Render(map[string]any{"Name": "Hawthorne Bridge"})
	assert.Equal(t, "Hawthorne Bridge", title)
	assert.Contains(t, content, "{Description} (Hawthorne Bridge)")
}

func TestParsePlaceholderPolicy(t *testing.T) {
	p, ok := ParsePlaceholderPolicy("passthrough")
	assert.True(t, ok)
	assert.Equal(t, PlaceholderPassthrough, p)

	p, ok = ParsePlaceholderPolicy("")
	assert.True(t, ok)
	assert.Equal(t, PlaceholderStrict, p)

	_, ok = ParsePlaceholderPolicy("lenient")
	assert.False(t, ok)
}

func TestPlace(t *testing.T) {
	placements := Place([]Widget{
		{Kind: LegendWidget, Anchor: BottomRight},
		{Kind: LocateWidget, Anchor: TopLeft},
		{Kind: SearchWidget, Anchor: TopLeft, Order: intp(0)},
	})
	require.Len(t, placements, 3)
	assert.Equal(t, BottomRight, placements[0].Anchor)
	assert.Equal(t, SearchWidget, placements[1].Widget.Kind)
	assert.Equal(t, 0, placements[1].Index)
	assert.Equal(t, LocateWidget, placements[2].Widget.Kind)
	assert.Equal(t, 1, placements[2].Index)
}

func TestSceneValidate(t *testing.T) {
	s := Scene{
		Name:     "Portland",
		View:     portlandView(),
		Basemaps: []string{"arcgis-nova"},
		Widgets: []Widget{
			{Kind: LegendWidget, Anchor: BottomLeft, Legend: []LegendEntry{{LayerID: "bridges", Title: "Bridges"}}},
			{Kind: BasemapSwitcherWidget, Anchor: TopRight, Styles: []string{"arcgis-streets"}},
		},
		Overlays: []GraphicOverlay{bridgeOverlay()},
		Layers:   []RemoteLayerRef{{ID: "bridges", URL: "https://example.com/FeatureServer/0"}},
	}
	require.NoError(t, s.Validate())
	assert.Equal(t, []string{"arcgis-nova", "arcgis-streets"}, s.Catalog())

	t.Run("collects every problem", func(t *testing.T) {
		bad := s
		bad.Name = ""
		bad.Widgets = []Widget{{Kind: EditorWidget, Anchor: TopLeft, EditorLayers: []string{"parks"}}}
		bad.Layers = []RemoteLayerRef{s.Layers[0], s.Layers[0]}
		bad.View.Basemap = "osm"

		err := bad.Validate()
		require.Error(t, err)
		msg := err.Error()
		assert.Contains(t, msg, "scene name is required")
		assert.Contains(t, msg, `unknown layer "parks"`)
		assert.Contains(t, msg, `duplicate layer id "bridges"`)
		assert.Contains(t, msg, `basemap "osm" is not in the scene catalog`)
	})
}

func TestFeatureCollection(t *testing.T) {
	s := Scene{Name: "Portland", View: portlandView(), Overlays: []GraphicOverlay{bridgeOverlay()}}
	fc := s.FeatureCollection()
	require.Len(t, fc.Features, 1)

	f := fc.Features[0]
	assert.Equal(t, "st_johns_bridge", f.ID)
	assert.Equal(t, orb.Point{-122.76477, 45.58508}, f.Geometry)
	assert.Equal(t, "St. Johns Bridge", f.Properties["Name"])

	data, err := json.Marshal(fc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"picture-marker"`)
}
