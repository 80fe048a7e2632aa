package engine

import "github.com/joeblew999/plat-scene/internal/scene"

// Layer kinds in a map stack.
const (
	KindGraphics = "graphics"
	KindFeature  = "feature"
)

// Document is the materialized form of one view, as served to the map
// client. Layers run bottom to top.
type Document struct {
	ID     string                          `json:"id" doc:"View id"`
	MapID  string                          `json:"mapId" doc:"Map id"`
	Status string                          `json:"status" enum:"requested,ready,failed" doc:"View load status"`
	Error  string                          `json:"error,omitempty" doc:"Load failure"`
	View   scene.ViewConfig                `json:"view" doc:"Current view config"`
	UI     map[scene.Anchor][]PlacedWidget `json:"ui" doc:"Widgets per anchor, top to bottom"`
	Layers []LayerEntry                    `json:"layers" doc:"Map layer stack, bottom to top"`
}

// PlacedWidget is a widget in an anchor stack.
type PlacedWidget struct {
	ID     string       `json:"id" doc:"Widget id"`
	Widget scene.Widget `json:"widget" doc:"Widget definition"`
}

// LayerEntry is one layer of the map stack: either a graphics container
// or a remote feature layer.
type LayerEntry struct {
	ID       string                `json:"id" doc:"Layer id"`
	Kind     string                `json:"kind" enum:"graphics,feature" doc:"Layer kind"`
	Graphics []Graphic             `json:"graphics,omitempty" doc:"Graphics, in draw order"`
	Feature  *scene.RemoteLayerRef `json:"feature,omitempty" doc:"Remote layer reference"`
}

// Graphic is a composed overlay with its symbol resolved and popup text
// substituted.
type Graphic struct {
	ID           string               `json:"id" doc:"Graphic id"`
	Overlay      scene.GraphicOverlay `json:"overlay" doc:"Source overlay"`
	Symbol       scene.Symbol         `json:"symbol" doc:"Resolved symbol"`
	PopupTitle   string               `json:"popupTitle,omitempty" doc:"Popup title after substitution"`
	PopupContent string               `json:"popupContent,omitempty" doc:"Popup content after substitution"`
}

func newGraphic(id string, o scene.GraphicOverlay) Graphic {
	g := Graphic{ID: id, Overlay: o, Symbol: o.Symbol.Resolve(o.Attributes)}
	if o.Popup != nil {
		g.PopupTitle, g.PopupContent = o.Popup.Render(o.Attributes)
	}
	return g
}

// GraphicCount returns the number of graphics across all containers.
func (d Document) GraphicCount() int {
	n := 0
	for _, l := range d.Layers {
		n += len(l.Graphics)
	}
	return n
}
