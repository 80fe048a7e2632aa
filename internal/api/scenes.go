package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/plat-scene/internal/engine"
	"github.com/joeblew999/plat-scene/internal/humastar"
	"github.com/joeblew999/plat-scene/internal/scene"
)

var sceneActions = []humastar.ActionDef{
	{Rel: "build", Pattern: "/api/v1/scenes/%s/build", Method: http.MethodPost, Title: "Build scene"},
	{Rel: "document", Pattern: "/api/v1/scenes/%s/document", Method: http.MethodGet, Title: "Built document"},
	{Rel: "overlays", Pattern: "/api/v1/scenes/%s/overlays", Method: http.MethodGet, Title: "Overlays as GeoJSON"},
	{Rel: "tiles", Pattern: "/api/v1/scenes/%s/tiles/{z}/{x}/{y}", Method: http.MethodGet, Title: "Overlays as vector tiles"},
	{Rel: "edit", Pattern: "/api/v1/scenes/%s", Method: http.MethodPut, Title: "Replace scene"},
	{Rel: "delete", Pattern: "/api/v1/scenes/%s", Method: http.MethodDelete, Title: "Delete scene"},
}

var styleAction = humastar.ActionDef{Rel: "basemap", Pattern: "/api/v1/scenes/%s/basemap", Method: http.MethodPut, Title: "Switch basemap"}

type IDInput struct {
	ID string `path:"id" doc:"Scene ID" example:"portland"`
}

type ListInput struct {
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Items to skip"`
	Limit  int `query:"limit" minimum:"1" maximum:"100" default:"20" doc:"Page size"`
}

// SceneBody is a scene with its build state.
type SceneBody struct {
	scene.Scene
	State string `json:"state" enum:"unbuilt,uninitialized,view-requested,view-ready,scene-ready" doc:"Build state"`
}

// Actions links the scene's operations; basemap switching needs a build.
func (b SceneBody) Actions() []humastar.Action {
	defs := sceneActions
	if b.State == scene.StateSceneReady.String() || b.State == scene.StateViewReady.String() {
		defs = append(defs[:len(defs):len(defs)], styleAction)
	}
	return humastar.ActionsFor(b.ID, defs...)
}

type SceneOutput struct {
	Body SceneBody
}

type ScenesOutput struct {
	Body humastar.PageBody[SceneBody]
}

type SceneInput struct {
	Body scene.Scene
}

type PutSceneInput struct {
	IDInput
	Body scene.Scene
}

// BuildBody reports a build. Errors lists step failures; the document
// holds whatever the other steps produced.
type BuildBody struct {
	State    string          `json:"state" doc:"State after the build"`
	Errors   []string        `json:"errors,omitempty" doc:"Step failures"`
	Document engine.Document `json:"document" doc:"Built document"`
}

type DocumentOutput struct {
	Body engine.Document
}

type BasemapInput struct {
	IDInput
	Body struct {
		Basemap string `json:"basemap" required:"true" minLength:"1" doc:"Basemap id from the scene catalog" example:"arcgis-streets"`
	}
}

type ValidateBody struct {
	Valid  bool     `json:"valid" doc:"Whether the scene is valid"`
	Errors []string `json:"errors,omitempty" doc:"Validation problems"`
}

type GeoJSONOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type TileInput struct {
	IDInput
	Z uint32 `path:"z" maximum:"22" doc:"Zoom" example:"12"`
	X uint32 `path:"x" doc:"Tile column" example:"651"`
	Y uint32 `path:"y" doc:"Tile row" example:"1464"`
}

type TileOutput struct {
	Status          int
	ContentType     string `header:"Content-Type"`
	ContentEncoding string `header:"Content-Encoding"`
	Body            []byte
}

// RegisterScenes registers scene routes.
func (h *APIHandler) RegisterScenes(api huma.API) {
	tags := huma.OperationTags("scenes")
	huma.Get(api, "/api/v1/scenes", h.ListScenes, tags)
	huma.Register(api, huma.Operation{
		OperationID:   "create-scene",
		Method:        http.MethodPost,
		Path:          "/api/v1/scenes",
		Summary:       "Create scene",
		Tags:          []string{"scenes"},
		DefaultStatus: http.StatusCreated,
	}, h.CreateScene)
	huma.Post(api, "/api/v1/scenes/validate", h.ValidateScene, tags)
	huma.Get(api, "/api/v1/scenes/{id}", h.GetScene, tags)
	huma.Put(api, "/api/v1/scenes/{id}", h.PutScene, tags)
	huma.Register(api, huma.Operation{
		OperationID:   "delete-scene",
		Method:        http.MethodDelete,
		Path:          "/api/v1/scenes/{id}",
		Summary:       "Delete scene",
		Tags:          []string{"scenes"},
		DefaultStatus: http.StatusNoContent,
	}, h.DeleteScene)
	huma.Post(api, "/api/v1/scenes/{id}/build", h.BuildScene, tags)
	huma.Get(api, "/api/v1/scenes/{id}/document", h.GetDocument, tags)
	huma.Put(api, "/api/v1/scenes/{id}/basemap", h.PutBasemap, tags)
	huma.Register(api, huma.Operation{
		OperationID: "get-scene-overlays",
		Method:      http.MethodGet,
		Path:        "/api/v1/scenes/{id}/overlays",
		Summary:     "Scene overlays as GeoJSON",
		Tags:        []string{"scenes"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "GeoJSON FeatureCollection",
				Content:     map[string]*huma.MediaType{"application/geo+json": {}},
			},
		},
	}, h.GetOverlays)
	huma.Register(api, huma.Operation{
		OperationID: "get-scene-tile",
		Method:      http.MethodGet,
		Path:        "/api/v1/scenes/{id}/tiles/{z}/{x}/{y}",
		Summary:     "Scene overlays as a vector tile",
		Tags:        []string{"scenes"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Gzipped Mapbox vector tile, layer \"overlays\"",
				Content:     map[string]*huma.MediaType{"application/vnd.mapbox-vector-tile": {}},
			},
			"204": {Description: "No overlay reaches the tile"},
		},
	}, h.GetTile)
}

func (h *APIHandler) body(sc scene.Scene) SceneBody {
	state := "unbuilt"
	if s, err := h.svc.Scenes.State(sc.ID); err == nil {
		state = s.String()
	}
	return SceneBody{Scene: sc, State: state}
}

func (h *APIHandler) ListScenes(ctx context.Context, input *ListInput) (*ScenesOutput, error) {
	scenes := h.svc.Scenes.List()
	bodies := make([]SceneBody, len(scenes))
	for i, sc := range scenes {
		bodies[i] = h.body(sc)
	}
	return &ScenesOutput{Body: humastar.Paginate(bodies, input.Offset, input.Limit)}, nil
}

func (h *APIHandler) CreateScene(ctx context.Context, input *SceneInput) (*SceneOutput, error) {
	created, err := h.svc.Scenes.Create(ctx, input.Body)
	if err != nil {
		return nil, problem(err)
	}
	return &SceneOutput{Body: h.body(created)}, nil
}

func (h *APIHandler) ValidateScene(ctx context.Context, input *SceneInput) (*struct{ Body ValidateBody }, error) {
	out := &struct{ Body ValidateBody }{Body: ValidateBody{Valid: true}}
	if err := input.Body.Validate(); err != nil {
		out.Body = ValidateBody{Errors: messages(err)}
	}
	return out, nil
}

func (h *APIHandler) GetScene(ctx context.Context, input *IDInput) (*SceneOutput, error) {
	sc, ok := h.svc.Scenes.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("scene not found")
	}
	return &SceneOutput{Body: h.body(sc)}, nil
}

func (h *APIHandler) PutScene(ctx context.Context, input *PutSceneInput) (*SceneOutput, error) {
	updated, err := h.svc.Scenes.Update(ctx, input.ID, input.Body)
	if err != nil {
		return nil, problem(err)
	}
	return &SceneOutput{Body: h.body(updated)}, nil
}

func (h *APIHandler) DeleteScene(ctx context.Context, input *IDInput) (*struct{}, error) {
	if err := h.svc.Scenes.Delete(ctx, input.ID); err != nil {
		return nil, problem(err)
	}
	return &struct{}{}, nil
}

func (h *APIHandler) BuildScene(ctx context.Context, input *IDInput) (*struct{ Body BuildBody }, error) {
	doc, err := h.svc.Scenes.Build(ctx, input.ID)
	var le *scene.ViewLoadError
	if err != nil && (doc.ID == "" || errors.As(err, &le)) {
		return nil, problem(err)
	}
	state, _ := h.svc.Scenes.State(input.ID)
	out := &struct{ Body BuildBody }{Body: BuildBody{State: state.String(), Document: doc}}
	if err != nil {
		out.Body.Errors = messages(err)
	}
	return out, nil
}

func (h *APIHandler) GetDocument(ctx context.Context, input *IDInput) (*DocumentOutput, error) {
	doc, err := h.svc.Scenes.Document(input.ID)
	if err != nil {
		return nil, problem(err)
	}
	return &DocumentOutput{Body: doc}, nil
}

func (h *APIHandler) PutBasemap(ctx context.Context, input *BasemapInput) (*DocumentOutput, error) {
	doc, err := h.svc.Scenes.SelectStyle(ctx, input.ID, input.Body.Basemap)
	if err != nil {
		return nil, problem(err)
	}
	return &DocumentOutput{Body: doc}, nil
}

func (h *APIHandler) GetTile(ctx context.Context, input *TileInput) (*TileOutput, error) {
	z := maptile.Zoom(input.Z)
	if n := uint32(1) << z; input.X >= n || input.Y >= n {
		return nil, huma.Error404NotFound(fmt.Sprintf("tile %d/%d/%d is outside the zoom level", input.Z, input.X, input.Y))
	}
	data, err := h.svc.Scenes.Tile(input.ID, maptile.New(input.X, input.Y, z))
	if err != nil {
		return nil, problem(err)
	}
	if data == nil {
		return &TileOutput{Status: http.StatusNoContent}, nil
	}
	return &TileOutput{
		Status:          http.StatusOK,
		ContentType:     "application/vnd.mapbox-vector-tile",
		ContentEncoding: "gzip",
		Body:            data,
	}, nil
}

func (h *APIHandler) GetOverlays(ctx context.Context, input *IDInput) (*GeoJSONOutput, error) {
	fc, err := h.svc.Scenes.GeoJSON(input.ID)
	if err != nil {
		return nil, problem(err)
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return nil, huma.Error500InternalServerError("encode geojson", err)
	}
	return &GeoJSONOutput{ContentType: "application/geo+json", Body: data}, nil
}
