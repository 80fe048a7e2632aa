// Package editor contains Datastar SSE handlers for the scene editor UI.
package editor

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-scene/internal/ctxlog"
	"github.com/joeblew999/plat-scene/internal/humastar"
	"github.com/joeblew999/plat-scene/internal/scene"
	"github.com/joeblew999/plat-scene/internal/service"
)

// SceneHandler serves the scene list, the basemap style switcher and the
// scene event stream.
type SceneHandler struct {
	humastar.Handler
	scenes *service.SceneService
}

// NewSceneHandler creates a scene editor handler.
func NewSceneHandler(scenes *service.SceneService, renderer *humastar.Renderer) *SceneHandler {
	return &SceneHandler{
		Handler: humastar.Handler{Renderer: renderer},
		scenes:  scenes,
	}
}

func (h *SceneHandler) RegisterRoutes(api huma.API) {
	tags := huma.OperationTags("editor")
	huma.Get(api, "/api/v1/editor/scenes", h.ListScenes, tags)
	huma.Get(api, "/api/v1/editor/scenes/{id}/styles", h.ListStyles, tags)
	huma.Post(api, "/api/v1/editor/scenes/{id}/build", h.BuildScene, tags)
	huma.Post(api, "/api/v1/editor/scenes/{id}/style", h.SelectStyle, tags)
	huma.Get(api, "/api/v1/editor/events", h.Events, tags)
}

type SceneIDInput struct {
	ID string `path:"id" doc:"Scene ID" example:"portland"`
}

// StyleInput carries the Datastar signals of the style switcher.
type StyleInput struct {
	SceneIDInput
	RawBody []byte
}

// SceneCardData feeds the scene-card template.
type SceneCardData struct {
	ID       string
	Name     string
	Basemap  string
	State    string
	Overlays int
	Layers   int
	Widgets  int
}

func (h *SceneHandler) ListScenes(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return h.Stream(func(sse humastar.SSE) {
		sse.Patch(h.renderSceneList(), "#scene-list")
	}), nil
}

func (h *SceneHandler) ListStyles(ctx context.Context, input *SceneIDInput) (*huma.StreamResponse, error) {
	sc, ok := h.scenes.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("scene not found")
	}
	return h.Stream(func(sse humastar.SSE) {
		sse.Patch(h.renderStyles(sc, h.currentBasemap(sc)), "#style-select")
	}), nil
}

func (h *SceneHandler) BuildScene(ctx context.Context, input *SceneIDInput) (*huma.StreamResponse, error) {
	if _, ok := h.scenes.Get(input.ID); !ok {
		return nil, huma.Error404NotFound("scene not found")
	}
	return h.Stream(func(sse humastar.SSE) {
		doc, err := h.scenes.Build(ctx, input.ID)
		state, _ := h.scenes.State(input.ID)
		sse.Signals(map[string]any{
			"state":   state.String(),
			"basemap": doc.View.Basemap,
		})
		if err != nil {
			sse.Error(err.Error())
		} else {
			sse.Success(fmt.Sprintf("Scene '%s' built", input.ID))
		}
		sse.Patch(h.renderSceneList(), "#scene-list")
	}), nil
}

// SelectStyle applies the basemap signal chosen in the style switcher.
func (h *SceneHandler) SelectStyle(ctx context.Context, input *StyleInput) (*huma.StreamResponse, error) {
	signals, err := humastar.ParseSignals(input.RawBody)
	if err != nil {
		return nil, err
	}
	basemap := signals.String("basemap")

	return h.Stream(func(sse humastar.SSE) {
		doc, err := h.scenes.SelectStyle(ctx, input.ID, basemap)
		if err != nil {
			ctxlog.FromContext(ctx).Warn("basemap selection rejected", "scene", input.ID, "basemap", basemap, "error", err)
			sse.Error(err.Error())
			return
		}
		sse.Signals(map[string]any{"basemap": doc.View.Basemap})
		sse.Success(fmt.Sprintf("Basemap set to %s", doc.View.Basemap))
		sse.DispatchCustomEvent("basemap-changed", map[string]any{
			"scene": input.ID, "view": doc.ID, "basemap": doc.View.Basemap,
		})
	}), nil
}

// Events streams scene changes until the client disconnects.
func (h *SceneHandler) Events(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			sse := humastar.NewSSE(humaCtx)
			for ev := range h.scenes.Bus().Subscribe(ctx) {
				sse.Patch(h.renderSceneList(), "#scene-list")
				sse.DispatchCustomEvent("scene-changed", map[string]any{
					"resource": ev.Resource,
					"action":   ev.Action,
					"id":       ev.ID,
					"detail":   ev.Detail,
				})
			}
		},
	}, nil
}

func (h *SceneHandler) currentBasemap(sc scene.Scene) string {
	if doc, err := h.scenes.Document(sc.ID); err == nil {
		return doc.View.Basemap
	}
	return sc.View.Basemap
}

func (h *SceneHandler) renderSceneList() string {
	scenes := h.scenes.List()
	items := make([]any, len(scenes))
	for i, sc := range scenes {
		state := "unbuilt"
		if s, err := h.scenes.State(sc.ID); err == nil {
			state = s.String()
		}
		items[i] = SceneCardData{
			ID:       sc.ID,
			Name:     sc.Name,
			Basemap:  h.currentBasemap(sc),
			State:    state,
			Overlays: len(sc.Overlays),
			Layers:   len(sc.Layers),
			Widgets:  len(sc.Widgets),
		}
	}
	return h.RenderList("scene-card", items, "No scenes", "Add a YAML scene under the data directory's scenes/ folder")
}

func (h *SceneHandler) renderStyles(sc scene.Scene, current string) string {
	catalog := sc.Catalog()
	if len(catalog) == 0 {
		catalog = []string{sc.View.Basemap}
	}
	options := make([]humastar.SelectOptionData, len(catalog))
	for i, id := range catalog {
		options[i] = humastar.SelectOptionData{Value: id, Label: id}
	}
	return h.RenderSelect("", current, options)
}
