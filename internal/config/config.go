// Package config reads scene documents.
//
// A scene document is YAML. Besides the scene fields it may declare named
// symbols and popups once and refer to them from overlays and layers:
//
//	symbols:
//	  bridge: {kind: picture-marker, url: icons8-bridge-64.png, width: 24, height: 24}
//	overlays:
//	  - id: st_johns_bridge
//	    symbolRef: bridge
//
// Unknown keys and references to undefined names are load errors.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-scene/internal/scene"
)

// Extensions lists the file extensions LoadDir picks up.
var Extensions = []string{".yaml", ".yml"}

type document struct {
	ID       string                         `yaml:"id"`
	Name     string                         `yaml:"name"`
	View     scene.ViewConfig               `yaml:"view"`
	Basemaps []string                       `yaml:"basemaps"`
	Symbols  map[string]scene.Symbol        `yaml:"symbols"`
	Popups   map[string]scene.PopupTemplate `yaml:"popups"`
	Widgets  []scene.Widget                 `yaml:"widgets"`
	Overlays []overlay                      `yaml:"overlays"`
	Layers   []layer                        `yaml:"layers"`
}

type overlay struct {
	scene.GraphicOverlay `yaml:",inline"`
	SymbolRef            string `yaml:"symbolRef"`
	PopupRef             string `yaml:"popupRef"`
}

type layer struct {
	scene.RemoteLayerRef `yaml:",inline"`
	RendererRef          string `yaml:"rendererRef"`
	PopupRef             string `yaml:"popupRef"`
}

// RefError reports a symbolRef, rendererRef or popupRef that is undefined
// or that conflicts with an inline value.
type RefError struct {
	Field string
	Name  string
	Msg   string
}

func (e *RefError) Error() string {
	return fmt.Sprintf("%s: %s %q", e.Field, e.Msg, e.Name)
}

// Parse decodes one scene document. The result is not validated; call
// Scene.Validate for that.
func Parse(r io.Reader) (scene.Scene, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return scene.Scene{}, errors.New("empty scene document")
		}
		return scene.Scene{}, fmt.Errorf("decode scene: %w", err)
	}
	return doc.resolve()
}

// ParseBytes is Parse over a byte slice.
func ParseBytes(data []byte) (scene.Scene, error) {
	return Parse(bytes.NewReader(data))
}

func (d document) resolve() (scene.Scene, error) {
	s := scene.Scene{
		ID:       d.ID,
		Name:     d.Name,
		View:     d.View,
		Basemaps: d.Basemaps,
		Widgets:  d.Widgets,
	}

	var errs []error
	for i, o := range d.Overlays {
		field := fmt.Sprintf("overlays[%d]", i)
		if o.SymbolRef != "" {
			sym, err := d.symbol(field+".symbolRef", o.SymbolRef, o.Symbol.Kind != "")
			if err != nil {
				errs = append(errs, err)
			}
			o.Symbol = sym
		}
		if o.PopupRef != "" {
			p, err := d.popup(field+".popupRef", o.PopupRef, o.Popup != nil)
			if err != nil {
				errs = append(errs, err)
			}
			o.Popup = p
		}
		s.Overlays = append(s.Overlays, o.GraphicOverlay)
	}

	for i, l := range d.Layers {
		field := fmt.Sprintf("layers[%d]", i)
		if l.RendererRef != "" {
			sym, err := d.symbol(field+".rendererRef", l.RendererRef, l.Renderer != nil)
			if err != nil {
				errs = append(errs, err)
			}
			l.Renderer = &sym
		}
		if l.PopupRef != "" {
			p, err := d.popup(field+".popupRef", l.PopupRef, l.Popup != nil)
			if err != nil {
				errs = append(errs, err)
			}
			l.Popup = p
		}
		s.Layers = append(s.Layers, l.RemoteLayerRef)
	}

	if err := errors.Join(errs...); err != nil {
		return scene.Scene{}, err
	}
	return s, nil
}

func (d document) symbol(field, name string, inline bool) (scene.Symbol, error) {
	if inline {
		return scene.Symbol{}, &RefError{Field: field, Name: name, Msg: "inline symbol conflicts with reference"}
	}
	sym, ok := d.Symbols[name]
	if !ok {
		return scene.Symbol{}, &RefError{Field: field, Name: name, Msg: "undefined symbol"}
	}
	return sym, nil
}

func (d document) popup(field, name string, inline bool) (*scene.PopupTemplate, error) {
	if inline {
		return nil, &RefError{Field: field, Name: name, Msg: "inline popup conflicts with reference"}
	}
	p, ok := d.Popups[name]
	if !ok {
		return nil, &RefError{Field: field, Name: name, Msg: "undefined popup"}
	}
	return &p, nil
}

// LoadFile parses and validates a scene file. A scene without an id takes
// the file's base name.
func LoadFile(path string) (scene.Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return scene.Scene{}, err
	}
	defer f.Close()

	s, err := Parse(f)
	if err != nil {
		return scene.Scene{}, fmt.Errorf("%s: %w", path, err)
	}
	if s.ID == "" {
		s.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := s.Validate(); err != nil {
		return scene.Scene{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// LoadDir loads every scene file in dir, sorted by name. A missing
// directory yields no scenes. Files that fail to load are reported
// together; the scenes that did load are still returned.
func LoadDir(dir string) ([]scene.Scene, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var (
		scenes []scene.Scene
		errs   []error
		seen   = map[string]string{}
	)
	for _, e := range entries {
		if e.IsDir() || !slices.Contains(Extensions, filepath.Ext(e.Name())) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		s, err := LoadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if prev, ok := seen[s.ID]; ok {
			errs = append(errs, fmt.Errorf("%s: scene id %q already defined in %s", path, s.ID, prev))
			continue
		}
		seen[s.ID] = path
		scenes = append(scenes, s)
	}
	return scenes, errors.Join(errs...)
}
