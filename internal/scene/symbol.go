package scene

import (
	"fmt"
	"regexp"
)

// SymbolKind identifies how a geometry is drawn.
type SymbolKind string

const (
	SimpleMarker  SymbolKind = "simple-marker"
	PictureMarker SymbolKind = "picture-marker"
	SimpleLine    SymbolKind = "simple-line"
	SimpleFill    SymbolKind = "simple-fill"
	UniqueValue   SymbolKind = "unique-value"
)

// Symbol is the visual style of a geometry. Kind selects which fields
// apply. A unique-value symbol picks a sub-symbol by attribute value and
// doubles as a remote layer renderer.
type Symbol struct {
	Kind         SymbolKind        `json:"kind" yaml:"kind" required:"true" enum:"simple-marker,picture-marker,simple-line,simple-fill,unique-value" doc:"Symbol kind"`
	Color        string            `json:"color,omitempty" yaml:"color,omitempty" doc:"CSS hex color" example:"#3388ff"`
	Size         float64           `json:"size,omitempty" yaml:"size,omitempty" minimum:"0" doc:"Marker size in points"`
	Width        float64           `json:"width,omitempty" yaml:"width,omitempty" minimum:"0" doc:"Line width, or picture width in pixels"`
	Height       float64           `json:"height,omitempty" yaml:"height,omitempty" minimum:"0" doc:"Picture height in pixels"`
	Style        string            `json:"style,omitempty" yaml:"style,omitempty" doc:"Marker, line or fill style" example:"solid"`
	URL          string            `json:"url,omitempty" yaml:"url,omitempty" doc:"Picture marker image URL"`
	Outline      *Outline          `json:"outline,omitempty" yaml:"outline,omitempty" doc:"Marker or fill outline"`
	Field        string            `json:"field,omitempty" yaml:"field,omitempty" doc:"Attribute field for unique values"`
	UniqueValues []UniqueValueInfo `json:"uniqueValues,omitempty" yaml:"uniqueValues,omitempty" doc:"Value to symbol mapping"`
	Default      *Symbol           `json:"default,omitempty" yaml:"default,omitempty" doc:"Symbol for unmatched values"`
}

// Outline strokes the edge of a marker or fill.
type Outline struct {
	Color string  `json:"color,omitempty" yaml:"color,omitempty" doc:"CSS hex color"`
	Width float64 `json:"width,omitempty" yaml:"width,omitempty" minimum:"0" doc:"Outline width"`
}

// UniqueValueInfo maps one attribute value to a symbol.
type UniqueValueInfo struct {
	Value  string `json:"value" yaml:"value" doc:"Attribute value"`
	Label  string `json:"label,omitempty" yaml:"label,omitempty" doc:"Legend label"`
	Symbol Symbol `json:"symbol" yaml:"symbol" doc:"Symbol for this value"`
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

// ValidColor reports whether c is an accepted CSS hex color.
func ValidColor(c string) bool {
	return hexColor.MatchString(c)
}

// Validate checks the kind-specific fields.
func (s Symbol) Validate() error {
	if s.Color != "" && !ValidColor(s.Color) {
		return invalidf("color", "invalid color %q", s.Color)
	}
	if !nonNegative(s.Size) || !nonNegative(s.Width) || !nonNegative(s.Height) {
		return invalidf("size", "sizes must be finite and >= 0")
	}
	if s.Outline != nil {
		if s.Outline.Color != "" && !ValidColor(s.Outline.Color) {
			return invalidf("outline.color", "invalid color %q", s.Outline.Color)
		}
		if !nonNegative(s.Outline.Width) {
			return invalidf("outline.width", "width must be finite and >= 0")
		}
	}

	switch s.Kind {
	case SimpleMarker, SimpleLine, SimpleFill:
	case PictureMarker:
		if s.URL == "" {
			return invalidf("url", "picture marker needs an image url")
		}
	case UniqueValue:
		return s.validateUniqueValues()
	default:
		return invalidf("kind", "unknown symbol kind %q", s.Kind)
	}
	return nil
}

func (s Symbol) validateUniqueValues() error {
	if s.Field == "" {
		return invalidf("field", "unique-value symbol needs a field")
	}
	if len(s.UniqueValues) == 0 {
		return invalidf("uniqueValues", "unique-value symbol needs at least one value")
	}
	if s.Default == nil {
		return invalidf("default", "unique-value symbol needs a default symbol")
	}
	seen := map[string]bool{}
	for i, uv := range s.UniqueValues {
		field := fmt.Sprintf("uniqueValues[%d]", i)
		if seen[uv.Value] {
			return invalidf(field+".value", "duplicate value %q", uv.Value)
		}
		seen[uv.Value] = true
		if uv.Symbol.Kind == UniqueValue {
			return invalidf(field+".symbol", "unique-value symbols cannot nest")
		}
		if err := uv.Symbol.Validate(); err != nil {
			return scoped(err, "", field+".symbol")
		}
	}
	if s.Default.Kind == UniqueValue {
		return invalidf("default", "unique-value symbols cannot nest")
	}
	return scoped(s.Default.Validate(), "", "default")
}

// Supports reports whether the symbol can draw geometries of type t.
// A unique-value symbol supports t only if every sub-symbol does.
func (s Symbol) Supports(t GeometryType) bool {
	switch s.Kind {
	case SimpleMarker, PictureMarker:
		return t == PointGeometry
	case SimpleLine:
		return t == PolylineGeometry
	case SimpleFill:
		return t == PolygonGeometry
	case UniqueValue:
		if s.Default == nil || !s.Default.Supports(t) {
			return false
		}
		for _, uv := range s.UniqueValues {
			if !uv.Symbol.Supports(t) {
				return false
			}
		}
		return true
	}
	return false
}

// Resolve returns the symbol used for a feature with the given attributes.
// Simple symbols return themselves.
func (s Symbol) Resolve(attrs map[string]any) Symbol {
	if s.Kind != UniqueValue {
		return s
	}
	if v, ok := attrs[s.Field]; ok {
		key := fmt.Sprint(v)
		for _, uv := range s.UniqueValues {
			if uv.Value == key {
				return uv.Symbol
			}
		}
	}
	if s.Default != nil {
		return *s.Default
	}
	return s
}
