// Package humastar bridges Huma (REST/OpenAPI) with Datastar (SSE/hypermedia).
//
// It provides:
//   - SSE: Huma streaming responses as Datastar events via [SSE] and [NewSSE]
//   - Signals: Datastar request bodies via [ParseSignals]
//   - Rendering: fragment lists and select options via [Handler]
//   - Links: RFC 8288 Link headers from [Actor] and [Pager] bodies via [LinkTransformer]
//
// Usage:
//
//	type SceneHandler struct {
//	    humastar.Handler
//	    scenes *service.SceneService
//	}
//
//	func (h *SceneHandler) List(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
//	    return h.Stream(func(sse humastar.SSE) {
//	        sse.Patch(h.RenderList("scene-card", items, "No scenes", "Add a scene file"), "#scene-list")
//	    }), nil
//	}
package humastar

import (
	"bytes"
	"encoding/json"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/joeblew999/plat-scene/internal/templates"
)

// Renderer renders named HTML fragments.
type Renderer = templates.Renderer

// EmptyInput is the input of handlers that take no parameters.
type EmptyInput struct{}

// Handler is embedded by editor handlers. It streams Datastar events and
// renders fragments with Renderer.
type Handler struct {
	Renderer *Renderer
}

// Stream answers with an SSE stream driven by fn.
func (h *Handler) Stream(fn func(sse SSE)) *huma.StreamResponse {
	return &huma.StreamResponse{
		Body: func(ctx huma.Context) { fn(NewSSE(ctx)) },
	}
}

// RenderList renders each item with tmpl. With no items it renders the
// empty-state fragment instead.
func (h *Handler) RenderList(tmpl string, items []any, emptyTitle, emptyMsg string) string {
	var buf bytes.Buffer
	if len(items) == 0 {
		h.Renderer.RenderToBuffer(&buf, "empty-state", map[string]string{"Title": emptyTitle, "Message": emptyMsg})
		return buf.String()
	}
	for _, item := range items {
		h.Renderer.RenderToBuffer(&buf, tmpl, item)
	}
	return buf.String()
}

// RenderSelect renders <option> elements and marks the one whose value is
// selected. An empty placeholder is left out.
func (h *Handler) RenderSelect(placeholder, selected string, options []SelectOptionData) string {
	var buf bytes.Buffer
	if placeholder != "" {
		h.Renderer.RenderToBuffer(&buf, "select-option", SelectOptionData{Label: placeholder})
	}
	for _, opt := range options {
		opt.Selected = opt.Value == selected
		h.Renderer.RenderToBuffer(&buf, "select-option", opt)
	}
	return buf.String()
}

// SelectOptionData feeds the select-option fragment.
type SelectOptionData struct {
	Value    string
	Label    string
	Selected bool
}

// SSE is a Datastar event writer bound to one streaming response.
type SSE struct {
	*datastar.ServerSentEventGenerator
}

// NewSSE opens a Datastar stream on a Huma streaming context.
func NewSSE(ctx huma.Context) SSE {
	r, w := humago.Unwrap(ctx)
	return SSE{datastar.NewSSE(w, r)}
}

// Patch replaces the inner HTML of selector.
func (s SSE) Patch(html, selector string) {
	s.PatchElements(html,
		datastar.WithSelector(selector),
		datastar.WithModeInner(),
		datastar.WithViewTransitions(),
	)
}

// Signals patches signals on the page.
func (s SSE) Signals(signals map[string]any) {
	s.MarshalAndPatchSignals(signals)
}

// Error shows msg in the page's error slot and clears success.
func (s SSE) Error(msg string) {
	s.Signals(map[string]any{"error": msg, "success": ""})
}

// Success shows msg in the page's success slot and clears error.
func (s SSE) Success(msg string) {
	s.Signals(map[string]any{"success": msg, "error": ""})
}

// Signals are the values Datastar posts as a flat JSON object.
type Signals map[string]any

// ParseSignals decodes a Datastar request body. Malformed bodies are a
// Huma 400.
func ParseSignals(body []byte) (Signals, error) {
	var signals Signals
	if err := json.Unmarshal(body, &signals); err != nil {
		return nil, huma.Error400BadRequest("Invalid request data: " + err.Error())
	}
	return signals, nil
}

// String returns the signal as a string; missing and non-string values
// give "".
func (s Signals) String(key string) string {
	str, _ := s[key].(string)
	return str
}

// Has reports whether the signal was sent.
func (s Signals) Has(key string) bool {
	_, ok := s[key]
	return ok
}
