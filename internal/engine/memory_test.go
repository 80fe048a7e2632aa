package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-scene/internal/scene"
)

func portland() scene.Scene {
	zero := 0
	return scene.Scene{
		Name: "Portland",
		View: scene.ViewConfig{Basemap: "arcgis-nova", Center: [2]float64{-122.6784, 45.5152}, Zoom: 10, Container: "viewDiv"},
		Widgets: []scene.Widget{
			{Kind: scene.LocateWidget, Anchor: scene.TopLeft},
			{Kind: scene.SearchWidget, Anchor: scene.TopLeft, Order: &zero},
		},
		Overlays: []scene.GraphicOverlay{{
			ID:         "st_johns_bridge",
			Geometry:   scene.PointAt(-122.76477, 45.58508),
			Symbol:     scene.Symbol{Kind: scene.PictureMarker, URL: "icons8-bridge-64.png", Width: 24, Height: 24},
			Attributes: map[string]any{"Name": "St. Johns Bridge"},
			Popup:      &scene.PopupTemplate{Title: "{Name}"},
		}},
		Layers: []scene.RemoteLayerRef{
			{ID: "trails", URL: "https://example.com/Trails/FeatureServer/0"},
			{ID: "parks", URL: "https://example.com/Parks/FeatureServer/0"},
		},
	}
}

func build(t *testing.T, eng *Memory) *scene.Builder {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, err := scene.Build(ctx, eng, portland())
	require.NoError(t, err)
	return b
}

func TestMemoryDocument(t *testing.T) {
	eng := New(WithContainers("viewDiv"))
	b := build(t, eng)
	assert.Equal(t, scene.StateSceneReady, b.State())

	doc, ok := eng.Document(b.Handle().ID)
	require.True(t, ok)
	assert.Equal(t, StatusReady, doc.Status)

	top := doc.UI[scene.TopLeft]
	require.Len(t, top, 2)
	assert.Equal(t, scene.SearchWidget, top[0].Widget.Kind)
	assert.Equal(t, scene.LocateWidget, top[1].Widget.Kind)

	require.Len(t, doc.Layers, 3)
	assert.Equal(t, KindGraphics, doc.Layers[0].Kind)
	assert.Equal(t, "trails", doc.Layers[1].Feature.ID)
	assert.Equal(t, "parks", doc.Layers[2].Feature.ID)

	require.Equal(t, 1, doc.GraphicCount())
	assert.Equal(t, "St. Johns Bridge", doc.Layers[0].Graphics[0].PopupTitle)
}

func TestMemoryBasemap(t *testing.T) {
	eng := New()
	b := build(t, eng)
	require.NoError(t, b.OnStyleSelected("arcgis-streets"))

	doc, _ := eng.Document(b.Handle().ID)
	assert.Equal(t, "arcgis-streets", doc.View.Basemap)
}

func TestMemoryUnknownContainer(t *testing.T) {
	eng := New(WithContainers("viewDiv"))
	s := portland()
	s.View.Container = "mapDiv"

	_, err := scene.Build(context.Background(), eng, s)
	var ce *scene.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, scene.ErrContainerNotFound)
}

func TestMemoryLoadFailure(t *testing.T) {
	eng := New(WithLoadFailure(errors.New("basemap service down")), WithLoadDelay(10*time.Millisecond))
	b, err := scene.Build(context.Background(), eng, portland())
	var le *scene.ViewLoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, scene.StateViewRequested, b.State())

	doc, ok := eng.Document(b.Handle().ID)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, doc.Status)
	assert.Equal(t, "basemap service down", doc.Error)
	assert.Empty(t, doc.Layers)
}

func TestMemoryRelease(t *testing.T) {
	eng := New()
	b := build(t, eng)
	id := b.Handle().ID
	eng.Release(id)
	_, ok := eng.Document(id)
	assert.False(t, ok)
}
