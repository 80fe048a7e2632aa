package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-scene/internal/ctxlog"
	"github.com/joeblew999/plat-scene/internal/engine"
	"github.com/joeblew999/plat-scene/internal/humastar"
	"github.com/joeblew999/plat-scene/internal/scene"
	"github.com/joeblew999/plat-scene/internal/service"
)

func portland() scene.Scene {
	return scene.Scene{
		ID:       "portland",
		Name:     "Portland bridges",
		View:     scene.ViewConfig{Basemap: "arcgis-nova", Center: [2]float64{-122.6784, 45.5152}, Zoom: 10, Container: "viewDiv"},
		Basemaps: []string{"arcgis-nova", "arcgis-streets"},
		Widgets:  []scene.Widget{{Kind: scene.LocateWidget, Anchor: scene.TopLeft}},
		Overlays: []scene.GraphicOverlay{{
			ID:         "st_johns_bridge",
			Geometry:   scene.PointAt(-122.76477, 45.58508),
			Symbol:     scene.Symbol{Kind: scene.PictureMarker, URL: "icons8-bridge-64.png", Width: 24, Height: 24},
			Attributes: map[string]any{"Name": "St. Johns Bridge"},
			Popup:      &scene.PopupTemplate{Title: "{Name}"},
		}},
	}
}

func newTestAPI(t *testing.T, opts ...service.Option) (humatest.TestAPI, *service.SceneService) {
	t.Helper()
	svc := service.NewSceneService(t.TempDir(), opts...)
	_, err := svc.Create(context.Background(), portland())
	require.NoError(t, err)

	cfg := huma.DefaultConfig("plat-scene test", Version)
	cfg.CreateHooks = nil
	cfg.Transformers = append(cfg.Transformers, humastar.LinkTransformer(Links()))
	_, api := humatest.New(t, cfg)
	api.UseMiddleware(Logger(ctxlog.Discard()))
	RegisterRoutes(api, &Services{Scenes: svc, DataDir: "testdata"})
	return api, svc
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

func TestHealth(t *testing.T) {
	api, _ := newTestAPI(t)
	resp := api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ok", decode[HealthBody](t, resp.Body.Bytes()).Status)
	assert.Contains(t, resp.Header().Values("Link"), `</api/v1/scenes>; rel="scenes"`)

	info := decode[InfoBody](t, api.Get("/api/v1/info").Body.Bytes())
	assert.Equal(t, 1, info.Scenes)
	assert.False(t, info.DB)
}

func TestListScenes(t *testing.T) {
	api, _ := newTestAPI(t)
	resp := api.Get("/api/v1/scenes?limit=1")
	require.Equal(t, http.StatusOK, resp.Code)

	page := decode[humastar.PageBody[SceneBody]](t, resp.Body.Bytes())
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "unbuilt", page.Data[0].State)
	assert.Contains(t, resp.Header().Values("Link"), `</api/v1/scenes?offset=0&limit=1>; rel="first"`)
}

func TestSceneCRUD(t *testing.T) {
	api, _ := newTestAPI(t)

	hawthorne := portland()
	hawthorne.ID = ""
	hawthorne.Name = "Hawthorne Bridge"
	resp := api.Post("/api/v1/scenes", hawthorne)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.Equal(t, "hawthorne_bridge", decode[SceneBody](t, resp.Body.Bytes()).ID)

	resp = api.Post("/api/v1/scenes", hawthorne)
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp = api.Get("/api/v1/scenes/hawthorne_bridge")
	require.Equal(t, http.StatusOK, resp.Code)
	links := resp.Header().Values("Link")
	assert.Contains(t, links, `</api/v1/scenes/hawthorne_bridge>; rel="self"`)
	assert.Contains(t, links, `</api/v1/scenes/hawthorne_bridge/build>; rel="build"; method="POST"; title="Build scene"`)
	assert.NotContains(t, links, `</api/v1/scenes/hawthorne_bridge/basemap>; rel="basemap"; method="PUT"; title="Switch basemap"`)

	hawthorne.View.Zoom = 15
	resp = api.Put("/api/v1/scenes/hawthorne_bridge", hawthorne)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 15.0, decode[SceneBody](t, resp.Body.Bytes()).View.Zoom)

	resp = api.Delete("/api/v1/scenes/hawthorne_bridge")
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, http.StatusNotFound, api.Get("/api/v1/scenes/hawthorne_bridge").Code)
	assert.Equal(t, http.StatusNotFound, api.Delete("/api/v1/scenes/hawthorne_bridge").Code)
}

func TestCreateInvalidScene(t *testing.T) {
	api, _ := newTestAPI(t)

	bad := portland()
	bad.ID = "bad"
	bad.View.Basemap = "osm"
	resp := api.Post("/api/v1/scenes", bad)
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	var model huma.ErrorModel
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &model))
	require.NotEmpty(t, model.Errors)
	assert.Equal(t, "view.basemap", model.Errors[0].Location)
}

func TestValidateScene(t *testing.T) {
	api, _ := newTestAPI(t)

	resp := api.Post("/api/v1/scenes/validate", portland())
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, decode[ValidateBody](t, resp.Body.Bytes()).Valid)

	bad := portland()
	bad.Overlays[0].Symbol = scene.Symbol{Kind: scene.SimpleLine}
	resp = api.Post("/api/v1/scenes/validate", bad)
	require.Equal(t, http.StatusOK, resp.Code)
	body := decode[ValidateBody](t, resp.Body.Bytes())
	assert.False(t, body.Valid)
	require.Len(t, body.Errors, 1)
	assert.Contains(t, body.Errors[0], "cannot draw point geometry")
}

func TestBuildAndBasemap(t *testing.T) {
	api, _ := newTestAPI(t)

	assert.Equal(t, http.StatusConflict, api.Get("/api/v1/scenes/portland/document").Code)
	assert.Equal(t, http.StatusConflict, api.Put("/api/v1/scenes/portland/basemap", map[string]any{"basemap": "arcgis-streets"}).Code)

	resp := api.Post("/api/v1/scenes/portland/build")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	built := decode[BuildBody](t, resp.Body.Bytes())
	assert.Equal(t, "scene-ready", built.State)
	assert.Empty(t, built.Errors)
	assert.Equal(t, 1, built.Document.GraphicCount())

	resp = api.Get("/api/v1/scenes/portland")
	assert.Contains(t, resp.Header().Values("Link"), `</api/v1/scenes/portland/basemap>; rel="basemap"; method="PUT"; title="Switch basemap"`)

	resp = api.Put("/api/v1/scenes/portland/basemap", map[string]any{"basemap": "arcgis-streets"})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "arcgis-streets", decode[engine.Document](t, resp.Body.Bytes()).View.Basemap)

	resp = api.Put("/api/v1/scenes/portland/basemap", map[string]any{"basemap": "osm"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	doc := decode[engine.Document](t, api.Get("/api/v1/scenes/portland/document").Body.Bytes())
	assert.Equal(t, "arcgis-streets", doc.View.Basemap)
}

func TestBuildReportsStepErrors(t *testing.T) {
	api, svc := newTestAPI(t)

	sc, _ := svc.Get("portland")
	sc.Overlays[0].Popup = &scene.PopupTemplate{Title: "{Name}", Content: "{Description}"}
	_, err := svc.Update(context.Background(), "portland", sc)
	require.NoError(t, err)

	resp := api.Post("/api/v1/scenes/portland/build")
	require.Equal(t, http.StatusOK, resp.Code)
	built := decode[BuildBody](t, resp.Body.Bytes())
	assert.Equal(t, "view-ready", built.State)
	require.Len(t, built.Errors, 1)
	assert.Contains(t, built.Errors[0], "Description")
}

func TestBuildUnknownContainer(t *testing.T) {
	api, _ := newTestAPI(t, service.WithEngine(engine.New(engine.WithContainers("mapDiv"))))
	resp := api.Post("/api/v1/scenes/portland/build")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, http.StatusNotFound, api.Post("/api/v1/scenes/nowhere/build").Code)
}

func TestOverlaysGeoJSON(t *testing.T) {
	api, _ := newTestAPI(t)
	resp := api.Get("/api/v1/scenes/portland/overlays")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/geo+json", resp.Header().Get("Content-Type"))

	fc := decode[map[string]any](t, resp.Body.Bytes())
	assert.Equal(t, "FeatureCollection", fc["type"])
	assert.Len(t, fc["features"], 1)
}

func TestOverlayTiles(t *testing.T) {
	api, _ := newTestAPI(t)
	tile := maptile.At(orb.Point{-122.76477, 45.58508}, 12)

	resp := api.Get(fmt.Sprintf("/api/v1/scenes/portland/tiles/%d/%d/%d", tile.Z, tile.X, tile.Y))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "application/vnd.mapbox-vector-tile", resp.Header().Get("Content-Type"))
	assert.Equal(t, "gzip", resp.Header().Get("Content-Encoding"))
	layers, err := mvt.UnmarshalGzipped(resp.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Len(t, layers[0].Features, 1)

	assert.Equal(t, http.StatusNoContent, api.Get("/api/v1/scenes/portland/tiles/12/0/0").Code)
	assert.Equal(t, http.StatusNotFound, api.Get("/api/v1/scenes/portland/tiles/1/2/0").Code)
	assert.Equal(t, http.StatusNotFound, api.Get("/api/v1/scenes/nowhere/tiles/0/0/0").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, api.Get("/api/v1/scenes/portland/tiles/23/0/0").Code)
}

func TestDatabaseUnavailable(t *testing.T) {
	api, _ := newTestAPI(t)
	assert.Equal(t, http.StatusServiceUnavailable, api.Get("/api/v1/tables").Code)
	assert.Equal(t, http.StatusServiceUnavailable, api.Post("/api/v1/query", map[string]any{"query": "SELECT 1"}).Code)
	assert.Equal(t, http.StatusServiceUnavailable, api.Get("/api/v1/scenes/portland/index").Code)
}
