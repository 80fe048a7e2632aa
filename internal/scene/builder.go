package scene

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// State is the scene lifecycle position.
type State int

const (
	StateUninitialized State = iota
	StateViewRequested
	StateViewReady
	StateSceneReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateViewRequested:
		return "view-requested"
	case StateViewReady:
		return "view-ready"
	case StateSceneReady:
		return "scene-ready"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type step uint8

const (
	stepWidgets step = 1 << iota
	stepOverlays
	stepLayers

	allSteps = stepWidgets | stepOverlays | stepLayers
)

// ErrNotInitialized is returned by steps that need a view that was never
// requested.
var ErrNotInitialized = errors.New("view not initialized")

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the builder's logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithPlaceholderPolicy sets how unresolved popup placeholders are handled.
func WithPlaceholderPolicy(p PlaceholderPolicy) Option {
	return func(b *Builder) { b.policy = p }
}

// WithBasemaps restricts OnStyleSelected to the given basemap ids.
func WithBasemaps(ids ...string) Option {
	return func(b *Builder) {
		for _, id := range ids {
			b.catalog[id] = struct{}{}
		}
	}
}

// Builder assembles a scene against an Engine. It owns the view, map and
// graphics container handles. Steps issued before the view is ready are
// queued and run, in order, once the engine reports readiness.
type Builder struct {
	engine  Engine
	logger  *slog.Logger
	policy  PlaceholderPolicy
	catalog map[string]struct{}

	mu        sync.Mutex
	state     State
	done      step
	view      ViewConfig
	handle    ViewHandle
	graphics  *GraphicsContainer
	anchors   map[Anchor]int
	pending   []func() error
	deferred  []error
	loadErr   error
	settled   chan struct{}
	graphicN  int
	layerN    int
	styleRuns int
}

// NewBuilder returns a builder in the Uninitialized state.
func NewBuilder(engine Engine, opts ...Option) *Builder {
	b := &Builder{
		engine:  engine,
		logger:  slog.Default(),
		catalog: map[string]struct{}{},
		anchors: map[Anchor]int{},
		settled: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// InitializeView validates cfg and requests a view from the engine.
// An invalid config or an unresolvable container is a ConfigurationError;
// the caller must not continue with the other steps.
func (b *Builder) InitializeView(ctx context.Context, cfg ViewConfig) (ViewHandle, error) {
	if err := cfg.Validate(); err != nil {
		return ViewHandle{}, scoped(err, "view", "")
	}
	if len(b.catalog) > 0 {
		if _, ok := b.catalog[cfg.Basemap]; !ok {
			return ViewHandle{}, &ConfigurationError{Step: "view", Field: "basemap", Msg: fmt.Sprintf("basemap %q is not in the catalog", cfg.Basemap)}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateUninitialized {
		return b.handle, &ConfigurationError{Step: "view", Msg: "view already initialized"}
	}

	handle, ready, err := b.engine.CreateView(ctx, cfg)
	if err != nil {
		if errors.Is(err, ErrContainerNotFound) {
			return ViewHandle{}, &ConfigurationError{Step: "view", Field: "container", Msg: fmt.Sprintf("cannot resolve container %q", cfg.Container), Err: err}
		}
		b.state = StateViewRequested
		b.loadErr = &ViewLoadError{Err: err}
		close(b.settled)
		return ViewHandle{}, b.loadErr
	}

	b.state = StateViewRequested
	b.view = cfg
	b.handle = handle
	b.logger.Info("view requested", "view", handle.ID, "basemap", cfg.Basemap, "container", cfg.Container)

	go b.watch(ready)
	return handle, nil
}

func (b *Builder) watch(ready *Readiness) {
	<-ready.Done()
	b.settle(ready.Err())
	close(b.settled)
}

// settle applies the readiness outcome and drains queued steps.
func (b *Builder) settle(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.loadErr = &ViewLoadError{Err: err}
		b.pending = nil
		b.logger.Error("view failed to load", "view", b.handle.ID, "error", err)
		return
	}

	b.state = StateViewReady
	b.logger.Info("view ready", "view", b.handle.ID)

	pending := b.pending
	b.pending = nil
	for _, op := range pending {
		if err := op(); err != nil {
			b.deferred = append(b.deferred, err)
			b.logger.Error("deferred step failed", "view", b.handle.ID, "error", err)
		}
	}
	b.advance()
}

// AwaitView blocks until the view is ready, failed, or ctx is done. On
// success every step queued before readiness has been applied.
func (b *Builder) AwaitView(ctx context.Context) error {
	b.mu.Lock()
	uninitialized := b.state == StateUninitialized
	b.mu.Unlock()
	if uninitialized {
		return ErrNotInitialized
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.settled:
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loadErr != nil {
		return b.loadErr
	}
	return errors.Join(b.deferred...)
}

// run applies op now if the view is ready, queues it if the view is
// still pending, and fails with the load error if the view failed.
// Callers hold b.mu.
func (b *Builder) run(op func() error) error {
	if b.loadErr != nil {
		return b.loadErr
	}
	if b.state == StateViewReady || b.state == StateSceneReady {
		return op()
	}
	b.pending = append(b.pending, op)
	return nil
}

func (b *Builder) advance() {
	if b.state == StateViewReady && b.done == allSteps {
		b.state = StateSceneReady
		b.logger.Info("scene ready", "view", b.handle.ID, "graphics", b.graphicN, "layers", b.layerN)
	}
}

// AttachWidgets binds widgets to the view at their anchors. Attachment
// before readiness is deferred, never dropped.
func (b *Builder) AttachWidgets(widgets []Widget) error {
	for i, w := range widgets {
		if err := w.Validate(); err != nil {
			return scoped(err, "widgets", fmt.Sprintf("widgets[%d]", i))
		}
	}
	placements := Place(widgets)

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.run(func() error { return b.attach(placements) })
}

func (b *Builder) attach(placements []Placement) error {
	added := map[Anchor]int{}
	for _, p := range placements {
		h, err := b.engine.CreateWidget(b.handle, p.Widget)
		if err != nil {
			return fmt.Errorf("create %s widget: %w", p.Widget.Kind, err)
		}
		if err := b.engine.AddWidgetToUI(b.handle, h, p.Anchor, b.anchors[p.Anchor]+p.Index); err != nil {
			return fmt.Errorf("place %s widget at %s: %w", p.Widget.Kind, p.Anchor, err)
		}
		added[p.Anchor]++
	}
	for a, n := range added {
		b.anchors[a] += n
	}
	b.done |= stepWidgets
	b.logger.Debug("widgets attached", "view", b.handle.ID, "count", len(placements))
	b.advance()
	return nil
}

// ComposeOverlays appends overlays to the scene's graphics container in
// order. All overlays are validated first; on any failure nothing is
// appended. Appending is not deduplicating.
func (b *Builder) ComposeOverlays(overlays []GraphicOverlay) error {
	for i, o := range overlays {
		field := fmt.Sprintf("overlays[%d]", i)
		if err := o.Validate(); err != nil {
			return scoped(err, "overlays", field)
		}
		if b.policy == PlaceholderStrict {
			if missing := o.UnresolvedPlaceholders(); len(missing) > 0 {
				return &ConfigurationError{Step: "overlays", Field: field + ".popup", Msg: "unresolved placeholders: " + strings.Join(missing, ", ")}
			}
		}
	}
	overlays = slices.Clone(overlays)

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.run(func() error { return b.compose(overlays) })
}

func (b *Builder) compose(overlays []GraphicOverlay) error {
	if b.graphics == nil {
		c, err := b.engine.CreateGraphicsLayer(b.handle.Map)
		if err != nil {
			return fmt.Errorf("create graphics layer: %w", err)
		}
		b.graphics = &c
	}
	for _, o := range overlays {
		g, err := b.engine.CreateGraphic(o)
		if err != nil {
			return fmt.Errorf("create graphic %q: %w", o.ID, err)
		}
		if err := b.engine.AddGraphic(*b.graphics, g); err != nil {
			return fmt.Errorf("add graphic %q: %w", o.ID, err)
		}
		b.graphicN++
	}
	b.done |= stepOverlays
	b.logger.Debug("overlays composed", "view", b.handle.ID, "count", len(overlays))
	b.advance()
	return nil
}

// RegisterLayers appends remote layer references to the map's layer stack
// in order. Filters are passed through unparsed.
func (b *Builder) RegisterLayers(layers []RemoteLayerRef) error {
	for i, l := range layers {
		field := fmt.Sprintf("layers[%d]", i)
		if err := l.Validate(); err != nil {
			return scoped(err, "layers", field)
		}
		if b.policy == PlaceholderStrict {
			if missing := l.UnresolvedPlaceholders(); len(missing) > 0 {
				return &ConfigurationError{Step: "layers", Field: field + ".popup", Msg: "placeholders outside requested fields: " + strings.Join(missing, ", ")}
			}
		}
	}
	layers = slices.Clone(layers)

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.run(func() error { return b.register(layers) })
}

func (b *Builder) register(layers []RemoteLayerRef) error {
	for _, ref := range layers {
		l, err := b.engine.CreateFeatureLayer(ref)
		if err != nil {
			return fmt.Errorf("create feature layer %q: %w", ref.ID, err)
		}
		if err := b.engine.AddLayer(b.handle.Map, l); err != nil {
			return fmt.Errorf("add layer %q: %w", ref.ID, err)
		}
		b.layerN++
	}
	b.done |= stepLayers
	b.logger.Debug("layers registered", "view", b.handle.ID, "count", len(layers))
	b.advance()
	return nil
}

// OnStyleSelected handles a basemap selection from the UI. It sets the
// view's basemap and asks the engine to re-render. Selecting the current
// basemap again is allowed and still runs. Ids outside the catalog, when
// one is configured, are rejected and leave the basemap unchanged.
func (b *Builder) OnStyleSelected(basemapID string) error {
	if basemapID == "" {
		return &ConfigurationError{Step: "style", Field: "basemap", Msg: "basemap id is empty"}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateUninitialized {
		return ErrNotInitialized
	}
	if len(b.catalog) > 0 {
		if _, ok := b.catalog[basemapID]; !ok {
			return &ConfigurationError{Step: "style", Field: "basemap", Msg: fmt.Sprintf("unknown basemap %q", basemapID)}
		}
	}
	if b.loadErr != nil {
		return b.loadErr
	}

	b.view.Basemap = basemapID
	b.styleRuns++
	b.logger.Info("basemap selected", "view", b.handle.ID, "basemap", basemapID)
	return b.run(func() error { return b.engine.SetBasemap(b.handle, basemapID) })
}

// State returns the current lifecycle state.
func (b *Builder) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// View returns the current view config, including basemap changes.
func (b *Builder) View() ViewConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.view
}

// Handle returns the view handle issued by the engine.
func (b *Builder) Handle() ViewHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handle
}

// Err returns the view load failure, if any.
func (b *Builder) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loadErr
}

// StyleSelections counts OnStyleSelected runs that reached the engine
// queue, including repeated selections of the same basemap.
func (b *Builder) StyleSelections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.styleRuns
}

// Build runs the whole sequence for s: initialize the view, wait for
// readiness, then attach widgets, compose overlays and register layers.
// A failing step does not stop the others; their errors are joined. The
// builder is returned even on error so callers can inspect its state.
func Build(ctx context.Context, engine Engine, s Scene, opts ...Option) (*Builder, error) {
	opts = append([]Option{WithBasemaps(s.Catalog()...)}, opts...)
	b := NewBuilder(engine, opts...)

	if _, err := b.InitializeView(ctx, s.View); err != nil {
		return b, err
	}
	if err := b.AwaitView(ctx); err != nil {
		return b, err
	}
	return b, errors.Join(
		b.AttachWidgets(s.Widgets),
		b.ComposeOverlays(s.Overlays),
		b.RegisterLayers(s.Layers),
	)
}
