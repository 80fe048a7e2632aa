// Package scene models a declarative map scene (view, widgets, local
// overlays, remote layers) and builds it against an external Engine.
//
// Struct tags serve three readers: encoding/json for the HTTP API, yaml.v3
// for scene documents and Huma for OpenAPI schemas and request validation.
package scene

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

// Anchor is a fixed UI placement slot.
type Anchor string

const (
	TopLeft     Anchor = "top-left"
	TopRight    Anchor = "top-right"
	BottomLeft  Anchor = "bottom-left"
	BottomRight Anchor = "bottom-right"
)

// Anchors lists every valid anchor.
var Anchors = []Anchor{TopLeft, TopRight, BottomLeft, BottomRight}

func (a Anchor) valid() bool {
	for _, v := range Anchors {
		if a == v {
			return true
		}
	}
	return false
}

// WidgetKind identifies a pre-built UI control.
type WidgetKind string

const (
	LocateWidget          WidgetKind = "locate"
	SearchWidget          WidgetKind = "search"
	LegendWidget          WidgetKind = "legend"
	EditorWidget          WidgetKind = "editor"
	BasemapSwitcherWidget WidgetKind = "basemap-switcher"
)

func (k WidgetKind) valid() bool {
	switch k {
	case LocateWidget, SearchWidget, LegendWidget, EditorWidget, BasemapSwitcherWidget:
		return true
	}
	return false
}

// ViewConfig is the initial camera/view state.
type ViewConfig struct {
	Basemap     string      `json:"basemap" yaml:"basemap" required:"true" minLength:"1" doc:"Basemap style identifier" example:"arcgis-nova"`
	Center      orb.Point   `json:"center" yaml:"center" doc:"Initial center as [lon, lat]"`
	Zoom        float64     `json:"zoom" yaml:"zoom" minimum:"0" doc:"Initial zoom level" example:"10"`
	Container   string      `json:"container" yaml:"container" required:"true" minLength:"1" doc:"Host container reference" example:"viewDiv"`
	Constraints Constraints `json:"constraints" yaml:"constraints,omitempty" required:"false" doc:"Interaction constraints"`
}

// Constraints limit how the user can move the view.
type Constraints struct {
	SnapToZoom bool    `json:"snapToZoom" yaml:"snapToZoom" required:"false" doc:"Snap to integer zoom levels"`
	MinZoom    float64 `json:"minZoom,omitempty" yaml:"minZoom,omitempty" minimum:"0" doc:"Minimum zoom (0 = unbounded)"`
	MaxZoom    float64 `json:"maxZoom,omitempty" yaml:"maxZoom,omitempty" minimum:"0" doc:"Maximum zoom (0 = unbounded)"`
}

// Validate checks the view config invariants.
func (c ViewConfig) Validate() error {
	if c.Basemap == "" {
		return invalidf("basemap", "basemap is required")
	}
	if c.Container == "" {
		return invalidf("container", "container reference is required")
	}
	if err := validPoint(c.Center); err != nil {
		return scoped(err, "", "center")
	}
	if !nonNegative(c.Zoom) {
		return invalidf("zoom", "zoom must be a finite number >= 0, got %v", c.Zoom)
	}
	if !nonNegative(c.Constraints.MinZoom) || !nonNegative(c.Constraints.MaxZoom) {
		return invalidf("constraints", "zoom bounds must be finite and >= 0")
	}
	if c.Constraints.MaxZoom > 0 && c.Constraints.MinZoom > c.Constraints.MaxZoom {
		return invalidf("constraints", "minZoom %v exceeds maxZoom %v", c.Constraints.MinZoom, c.Constraints.MaxZoom)
	}
	return nil
}

// Widget is an attachable UI control.
type Widget struct {
	Kind         WidgetKind    `json:"kind" yaml:"kind" required:"true" enum:"locate,search,legend,editor,basemap-switcher" doc:"Widget kind"`
	Anchor       Anchor        `json:"anchor" yaml:"anchor" required:"true" enum:"top-left,top-right,bottom-left,bottom-right" doc:"UI corner"`
	Order        *int          `json:"order,omitempty" yaml:"order,omitempty" minimum:"0" doc:"Stacking order within the anchor"`
	Placeholder  string        `json:"placeholder,omitempty" yaml:"placeholder,omitempty" doc:"Search box placeholder text"`
	Legend       []LegendEntry `json:"legend,omitempty" yaml:"legend,omitempty" doc:"Legend layer/title pairs"`
	EditorLayers []string      `json:"editorLayers,omitempty" yaml:"editorLayers,omitempty" doc:"Layer ids the editor may edit"`
	Styles       []string      `json:"styles,omitempty" yaml:"styles,omitempty" doc:"Basemap ids offered by the switcher"`
}

// LegendEntry binds a remote layer to a legend title.
type LegendEntry struct {
	LayerID string `json:"layerId" yaml:"layerId" required:"true" doc:"Remote layer id"`
	Title   string `json:"title,omitempty" yaml:"title,omitempty" doc:"Legend title"`
}

// Validate checks the widget on its own. Layer references are checked by
// Scene.Validate, which knows the declared layers.
func (w Widget) Validate() error {
	if !w.Kind.valid() {
		return invalidf("kind", "unknown widget kind %q", w.Kind)
	}
	if !w.Anchor.valid() {
		return invalidf("anchor", "unknown anchor %q", w.Anchor)
	}
	if w.Order != nil && *w.Order < 0 {
		return invalidf("order", "order must be >= 0, got %d", *w.Order)
	}
	for i, e := range w.Legend {
		if e.LayerID == "" {
			return invalidf(fmt.Sprintf("legend[%d].layerId", i), "layer id is required")
		}
	}
	return nil
}

// GraphicOverlay is one renderable local feature.
type GraphicOverlay struct {
	ID         string         `json:"id,omitempty" yaml:"id,omitempty" doc:"Overlay identifier" example:"st_johns_bridge"`
	Geometry   Geometry       `json:"geometry" yaml:"geometry" required:"true" doc:"Overlay geometry"`
	Symbol     Symbol         `json:"symbol" yaml:"symbol" required:"true" doc:"Overlay symbol"`
	Attributes map[string]any `json:"attributes,omitempty" yaml:"attributes,omitempty" doc:"Attribute values"`
	Popup      *PopupTemplate `json:"popup,omitempty" yaml:"popup,omitempty" doc:"Popup template"`
}

// Validate checks geometry, symbol and that the symbol can draw the geometry.
func (o GraphicOverlay) Validate() error {
	if err := o.Geometry.Validate(); err != nil {
		return scoped(err, "", "geometry")
	}
	if err := o.Symbol.Validate(); err != nil {
		return scoped(err, "", "symbol")
	}
	if !o.Symbol.Supports(o.Geometry.Type) {
		return invalidf("symbol.kind", "%s symbol cannot draw %s geometry", o.Symbol.Kind, o.Geometry.Type)
	}
	return nil
}

// UnresolvedPlaceholders returns popup placeholders that name no attribute.
func (o GraphicOverlay) UnresolvedPlaceholders() []string {
	if o.Popup == nil {
		return nil
	}
	var missing []string
	for _, key := range o.Popup.Placeholders() {
		if _, ok := o.Attributes[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

// Scene is the aggregate root: one view, then widgets, overlays and remote
// layers in declaration (= z) order.
type Scene struct {
	ID       string           `json:"id,omitempty" yaml:"id,omitempty" doc:"Scene identifier" example:"portland"`
	Name     string           `json:"name" yaml:"name" required:"true" minLength:"1" maxLength:"100" doc:"Display name" example:"Portland bridges"`
	View     ViewConfig       `json:"view" yaml:"view" required:"true" doc:"Initial view"`
	Basemaps []string         `json:"basemaps,omitempty" yaml:"basemaps,omitempty" doc:"Selectable basemap styles"`
	Widgets  []Widget         `json:"widgets,omitempty" yaml:"widgets,omitempty" doc:"UI widgets"`
	Overlays []GraphicOverlay `json:"overlays,omitempty" yaml:"overlays,omitempty" doc:"Local graphics, bottom to top"`
	Layers   []RemoteLayerRef `json:"layers,omitempty" yaml:"layers,omitempty" doc:"Remote feature layers, bottom to top"`
}

// Catalog returns the basemap ids the style switcher may select: the
// scene's declared basemaps followed by any switcher widget styles.
// An empty catalog means any id is accepted.
func (s Scene) Catalog() []string {
	seen := map[string]bool{}
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, id := range s.Basemaps {
		add(id)
	}
	for _, w := range s.Widgets {
		if w.Kind == BasemapSwitcherWidget {
			for _, id := range w.Styles {
				add(id)
			}
		}
	}
	return ids
}

// Validate checks every part of the scene and the references between
// parts. It collects all problems instead of stopping at the first one.
// Popup placeholders are left to the builder's placeholder policy.
func (s Scene) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, invalidf("name", "scene name is required"))
	}
	if err := s.View.Validate(); err != nil {
		errs = append(errs, scoped(err, "view", "view"))
	}
	if catalog := s.Catalog(); len(catalog) > 0 && s.View.Basemap != "" && !contains(catalog, s.View.Basemap) {
		errs = append(errs, &ConfigurationError{Step: "view", Field: "view.basemap", Msg: fmt.Sprintf("basemap %q is not in the scene catalog", s.View.Basemap)})
	}

	layerIDs := map[string]bool{}
	for i, l := range s.Layers {
		field := fmt.Sprintf("layers[%d]", i)
		if err := l.Validate(); err != nil {
			errs = append(errs, scoped(err, "layers", field))
			continue
		}
		if layerIDs[l.ID] {
			errs = append(errs, &ConfigurationError{Step: "layers", Field: field + ".id", Msg: fmt.Sprintf("duplicate layer id %q", l.ID)})
		}
		layerIDs[l.ID] = true
	}

	for i, w := range s.Widgets {
		field := fmt.Sprintf("widgets[%d]", i)
		if err := w.Validate(); err != nil {
			errs = append(errs, scoped(err, "widgets", field))
			continue
		}
		for j, e := range w.Legend {
			if !layerIDs[e.LayerID] {
				errs = append(errs, &ConfigurationError{Step: "widgets", Field: fmt.Sprintf("%s.legend[%d].layerId", field, j), Msg: fmt.Sprintf("unknown layer %q", e.LayerID)})
			}
		}
		for j, id := range w.EditorLayers {
			if !layerIDs[id] {
				errs = append(errs, &ConfigurationError{Step: "widgets", Field: fmt.Sprintf("%s.editorLayers[%d]", field, j), Msg: fmt.Sprintf("unknown layer %q", id)})
			}
		}
	}

	overlayIDs := map[string]bool{}
	for i, o := range s.Overlays {
		field := fmt.Sprintf("overlays[%d]", i)
		if err := o.Validate(); err != nil {
			errs = append(errs, scoped(err, "overlays", field))
		}
		if o.ID == "" {
			continue
		}
		if overlayIDs[o.ID] {
			errs = append(errs, &ConfigurationError{Step: "overlays", Field: field + ".id", Msg: fmt.Sprintf("duplicate overlay id %q", o.ID)})
		}
		overlayIDs[o.ID] = true
	}
	return errors.Join(errs...)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
