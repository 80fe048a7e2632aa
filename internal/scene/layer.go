package scene

import (
	"fmt"
	"net/url"
	"slices"
)

// RemoteLayerRef declares a server-hosted feature layer. The builder never
// talks to the service; the engine fetches, filters and symbolizes lazily.
type RemoteLayerRef struct {
	ID       string         `json:"id" yaml:"id" required:"true" minLength:"1" doc:"Layer identifier" example:"bridges"`
	Title    string         `json:"title,omitempty" yaml:"title,omitempty" doc:"Display title" example:"Bridges"`
	URL      string         `json:"url" yaml:"url" required:"true" format:"uri" doc:"Feature service layer URL"`
	Fields   []string       `json:"fields,omitempty" yaml:"fields,omitempty" doc:"Requested fields (\"*\" for all)"`
	Filter   string         `json:"filter,omitempty" yaml:"filter,omitempty" doc:"Boolean filter expression, evaluated by the service" example:"TYPE = 'Bridge'"`
	Renderer *Symbol        `json:"renderer,omitempty" yaml:"renderer,omitempty" doc:"Renderer (simple or unique-value symbol)"`
	Label    *LabelRule     `json:"label,omitempty" yaml:"label,omitempty" doc:"Label definition"`
	Popup    *PopupTemplate `json:"popup,omitempty" yaml:"popup,omitempty" doc:"Popup template"`
	Opacity  float64        `json:"opacity,omitempty" yaml:"opacity,omitempty" minimum:"0" maximum:"1" doc:"Layer opacity (0-1, 0 = engine default)"`
}

// LabelRule describes how features of a remote layer are labeled.
type LabelRule struct {
	Expression string  `json:"expression" yaml:"expression" required:"true" doc:"Label expression" example:"$feature.NAME"`
	Color      string  `json:"color,omitempty" yaml:"color,omitempty" doc:"CSS hex color"`
	FontSize   float64 `json:"fontSize,omitempty" yaml:"fontSize,omitempty" minimum:"0" doc:"Font size in points"`
	Placement  string  `json:"placement,omitempty" yaml:"placement,omitempty" doc:"Label placement" example:"above-center"`
	MinScale   float64 `json:"minScale,omitempty" yaml:"minScale,omitempty" minimum:"0" doc:"Hide labels when zoomed out beyond this scale"`
	MaxScale   float64 `json:"maxScale,omitempty" yaml:"maxScale,omitempty" minimum:"0" doc:"Hide labels when zoomed in beyond this scale"`
}

// Validate checks the reference. The filter is opaque and not parsed.
func (r RemoteLayerRef) Validate() error {
	if r.ID == "" {
		return invalidf("id", "layer id is required")
	}
	u, err := url.Parse(r.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalidf("url", "layer url must be an absolute http(s) url, got %q", r.URL)
	}
	for i, f := range r.Fields {
		if f == "" {
			return invalidf(fmt.Sprintf("fields[%d]", i), "field name is empty")
		}
	}
	if !within(r.Opacity, 0, 1) {
		return invalidf("opacity", "opacity must be within [0, 1], got %v", r.Opacity)
	}
	if r.Renderer != nil {
		if err := r.Renderer.Validate(); err != nil {
			return scoped(err, "", "renderer")
		}
	}
	if r.Label != nil {
		if r.Label.Expression == "" {
			return invalidf("label.expression", "label expression is required")
		}
		if r.Label.Color != "" && !ValidColor(r.Label.Color) {
			return invalidf("label.color", "invalid color %q", r.Label.Color)
		}
		if !nonNegative(r.Label.FontSize) || !nonNegative(r.Label.MinScale) || !nonNegative(r.Label.MaxScale) {
			return invalidf("label", "font size and scales must be finite and >= 0")
		}
	}
	return nil
}

// AllFields reports whether the layer requests every field.
func (r RemoteLayerRef) AllFields() bool {
	return len(r.Fields) == 0 || slices.Contains(r.Fields, "*")
}

// UnresolvedPlaceholders returns popup placeholders outside the requested
// field list. A layer requesting all fields resolves everything.
func (r RemoteLayerRef) UnresolvedPlaceholders() []string {
	if r.Popup == nil || r.AllFields() {
		return nil
	}
	var missing []string
	for _, key := range r.Popup.Placeholders() {
		if !slices.Contains(r.Fields, key) {
			missing = append(missing, key)
		}
	}
	return missing
}
