// Package engine provides an in-process scene.Engine. It keeps every
// request the builder makes and exposes the result as a Document that the
// browser map client renders.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/joeblew999/plat-scene/internal/scene"
)

// Status values for a view document.
const (
	StatusRequested = "requested"
	StatusReady     = "ready"
	StatusFailed    = "failed"
)

// Option configures a Memory engine.
type Option func(*Memory)

// WithContainers sets the container references the engine can resolve.
// With none set, every non-empty reference resolves.
func WithContainers(ids ...string) Option {
	return func(m *Memory) {
		for _, id := range ids {
			m.containers[id] = true
		}
	}
}

// WithLoadDelay delays view readiness.
func WithLoadDelay(d time.Duration) Option {
	return func(m *Memory) { m.delay = d }
}

// WithLoadFailure makes every view fail to load with err.
func WithLoadFailure(err error) Option {
	return func(m *Memory) { m.failWith = err }
}

// WithEngineLogger sets the engine's logger.
func WithEngineLogger(l *slog.Logger) Option {
	return func(m *Memory) { m.logger = l }
}

// Memory is a scene.Engine that materializes scenes in memory.
type Memory struct {
	containers map[string]bool
	delay      time.Duration
	failWith   error
	logger     *slog.Logger

	mu       sync.RWMutex
	seq      int
	views    map[string]*viewState
	maps     map[string]*mapState
	widgets  map[string]scene.Widget
	graphics map[string]scene.GraphicOverlay
	layers   map[string]scene.RemoteLayerRef
	owners   map[string]string // graphics container id -> map id
}

type viewState struct {
	id     string
	mapID  string
	config scene.ViewConfig
	status string
	err    string
	ui     map[scene.Anchor][]PlacedWidget
}

type mapState struct {
	stack []LayerEntry
}

// New returns an empty engine.
func New(opts ...Option) *Memory {
	m := &Memory{
		containers: map[string]bool{},
		logger:     slog.Default(),
		views:      map[string]*viewState{},
		maps:       map[string]*mapState{},
		widgets:    map[string]scene.Widget{},
		graphics:   map[string]scene.GraphicOverlay{},
		layers:     map[string]scene.RemoteLayerRef{},
		owners:     map[string]string{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) next(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

// CreateView registers a view and its map, then resolves readiness after
// the configured delay.
func (m *Memory) CreateView(ctx context.Context, cfg scene.ViewConfig) (scene.ViewHandle, *scene.Readiness, error) {
	if cfg.Container == "" || (len(m.containers) > 0 && !m.containers[cfg.Container]) {
		return scene.ViewHandle{}, nil, fmt.Errorf("%w: %q", scene.ErrContainerNotFound, cfg.Container)
	}

	m.mu.Lock()
	v := &viewState{
		id:     m.next("view"),
		mapID:  m.next("map"),
		config: cfg,
		status: StatusRequested,
		ui:     map[scene.Anchor][]PlacedWidget{},
	}
	m.views[v.id] = v
	m.maps[v.mapID] = &mapState{}
	m.mu.Unlock()

	ready := scene.NewReadiness()
	resolve := func() {
		m.mu.Lock()
		if m.failWith != nil {
			v.status = StatusFailed
			v.err = m.failWith.Error()
		} else {
			v.status = StatusReady
		}
		m.mu.Unlock()
		ready.Resolve(m.failWith)
	}
	if m.delay > 0 {
		time.AfterFunc(m.delay, resolve)
	} else {
		go resolve()
	}

	m.logger.Debug("view created", "view", v.id, "map", v.mapID, "container", cfg.Container)
	return scene.ViewHandle{ID: v.id, Map: scene.MapHandle{ID: v.mapID}}, ready, nil
}

func (m *Memory) CreateWidget(view scene.ViewHandle, w scene.Widget) (scene.WidgetHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.views[view.ID]; !ok {
		return scene.WidgetHandle{}, fmt.Errorf("unknown view %q", view.ID)
	}
	id := m.next("widget")
	m.widgets[id] = w
	return scene.WidgetHandle{ID: id}, nil
}

// AddWidgetToUI inserts the widget at index within the anchor's stack.
// Indexes past the end append.
func (m *Memory) AddWidgetToUI(view scene.ViewHandle, widget scene.WidgetHandle, anchor scene.Anchor, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.views[view.ID]
	if !ok {
		return fmt.Errorf("unknown view %q", view.ID)
	}
	w, ok := m.widgets[widget.ID]
	if !ok {
		return fmt.Errorf("unknown widget %q", widget.ID)
	}
	stack := v.ui[anchor]
	index = max(0, min(index, len(stack)))
	v.ui[anchor] = slices.Insert(stack, index, PlacedWidget{ID: widget.ID, Widget: w})
	return nil
}

func (m *Memory) CreateGraphicsLayer(mh scene.MapHandle) (scene.GraphicsContainer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.maps[mh.ID]
	if !ok {
		return scene.GraphicsContainer{}, fmt.Errorf("unknown map %q", mh.ID)
	}
	id := m.next("graphics")
	ms.stack = append(ms.stack, LayerEntry{ID: id, Kind: KindGraphics, Graphics: []Graphic{}})
	m.owners[id] = mh.ID
	return scene.GraphicsContainer{ID: id}, nil
}

func (m *Memory) CreateGraphic(o scene.GraphicOverlay) (scene.GraphicHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.next("graphic")
	m.graphics[id] = o
	return scene.GraphicHandle{ID: id}, nil
}

// AddGraphic appends to the container. Adding the same graphic twice
// gives two entries.
func (m *Memory) AddGraphic(c scene.GraphicsContainer, g scene.GraphicHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.graphics[g.ID]
	if !ok {
		return fmt.Errorf("unknown graphic %q", g.ID)
	}
	entry := m.entry(c.ID)
	if entry == nil {
		return fmt.Errorf("unknown graphics container %q", c.ID)
	}
	entry.Graphics = append(entry.Graphics, newGraphic(g.ID, o))
	return nil
}

func (m *Memory) CreateFeatureLayer(ref scene.RemoteLayerRef) (scene.LayerHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.next("layer")
	m.layers[id] = ref
	return scene.LayerHandle{ID: id}, nil
}

func (m *Memory) AddLayer(mh scene.MapHandle, l scene.LayerHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.maps[mh.ID]
	if !ok {
		return fmt.Errorf("unknown map %q", mh.ID)
	}
	ref, ok := m.layers[l.ID]
	if !ok {
		return fmt.Errorf("unknown layer %q", l.ID)
	}
	ms.stack = append(ms.stack, LayerEntry{ID: l.ID, Kind: KindFeature, Feature: &ref})
	return nil
}

func (m *Memory) SetBasemap(view scene.ViewHandle, basemap string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.views[view.ID]
	if !ok {
		return fmt.Errorf("unknown view %q", view.ID)
	}
	v.config.Basemap = basemap
	return nil
}

// entry finds a graphics container's layer entry. Callers hold m.mu.
func (m *Memory) entry(containerID string) *LayerEntry {
	ms, ok := m.maps[m.owners[containerID]]
	if !ok {
		return nil
	}
	for i := range ms.stack {
		if ms.stack[i].ID == containerID {
			return &ms.stack[i]
		}
	}
	return nil
}

// Document returns a snapshot of a view.
func (m *Memory) Document(viewID string) (Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.views[viewID]
	if !ok {
		return Document{}, false
	}
	doc := Document{
		ID:     v.id,
		MapID:  v.mapID,
		Status: v.status,
		Error:  v.err,
		View:   v.config,
		UI:     make(map[scene.Anchor][]PlacedWidget, len(v.ui)),
	}
	for a, ws := range v.ui {
		doc.UI[a] = slices.Clone(ws)
	}
	for _, l := range m.maps[v.mapID].stack {
		l.Graphics = slices.Clone(l.Graphics)
		doc.Layers = append(doc.Layers, l)
	}
	return doc, true
}

// Release forgets a view and everything attached to it.
func (m *Memory) Release(viewID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.views[viewID]
	if !ok {
		return
	}
	for _, ws := range v.ui {
		for _, w := range ws {
			delete(m.widgets, w.ID)
		}
	}
	for _, l := range m.maps[v.mapID].stack {
		for _, g := range l.Graphics {
			delete(m.graphics, g.ID)
		}
		delete(m.layers, l.ID)
		delete(m.owners, l.ID)
	}
	delete(m.maps, v.mapID)
	delete(m.views, viewID)
}
