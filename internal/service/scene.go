// Package service contains business logic for plat-scene: the scene
// catalog, building scenes against the map engine and change events.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/plat-scene/internal/config"
	"github.com/joeblew999/plat-scene/internal/ctxlog"
	"github.com/joeblew999/plat-scene/internal/engine"
	"github.com/joeblew999/plat-scene/internal/scene"
	"github.com/joeblew999/plat-scene/internal/tiles"
)

// Resource is the event resource name for scenes.
const Resource = "scenes"

var (
	ErrSceneNotFound = errors.New("scene not found")
	ErrSceneExists   = errors.New("scene already exists")
	ErrNotBuilt      = errors.New("scene has not been built")
)

// OverlayIndex receives the overlays of every successfully built scene.
type OverlayIndex interface {
	Replace(ctx context.Context, sceneID string, overlays []scene.GraphicOverlay) error
	Remove(ctx context.Context, sceneID string) error
}

// Option configures a SceneService.
type Option func(*SceneService)

// WithEngine sets the engine scenes are built against.
func WithEngine(e *engine.Memory) Option {
	return func(s *SceneService) { s.engine = e }
}

// WithIndex sets the overlay index.
func WithIndex(ix OverlayIndex) Option {
	return func(s *SceneService) { s.index = ix }
}

// WithBus sets the event bus.
func WithBus(b *EventBus) Option {
	return func(s *SceneService) { s.bus = b }
}

// WithPlaceholderPolicy sets the popup placeholder policy for builds.
func WithPlaceholderPolicy(p scene.PlaceholderPolicy) Option {
	return func(s *SceneService) { s.policy = p }
}

// SceneService manages scene definitions and their built views.
//
// Scenes come from two places: YAML documents under <data-dir>/scenes and
// scenes created through the API, which are persisted to scenes.json.
// A stored scene always overrides a file scene with the same id.
type SceneService struct {
	dataDir string
	engine  *engine.Memory
	index   OverlayIndex
	bus     *EventBus
	policy  scene.PlaceholderPolicy

	mu     sync.RWMutex
	scenes map[string]scene.Scene
	files  map[string]bool // ids still backed only by a scene file
	builds map[string]*scene.Builder
}

// NewSceneService creates a scene service. Call Load to read scenes.
func NewSceneService(dataDir string, opts ...Option) *SceneService {
	s := &SceneService{
		dataDir: dataDir,
		engine:  engine.New(),
		bus:     NewEventBus(),
		scenes:  make(map[string]scene.Scene),
		files:   make(map[string]bool),
		builds:  make(map[string]*scene.Builder),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bus returns the service's event bus.
func (s *SceneService) Bus() *EventBus { return s.bus }

// Engine returns the engine scenes are built against.
func (s *SceneService) Engine() *engine.Memory { return s.engine }

// Load reads scene files and the stored scenes. Bad files are logged and
// reported; the rest still load.
func (s *SceneService) Load(ctx context.Context) error {
	log := ctxlog.FromContext(ctx)

	loaded, fileErr := config.LoadDir(s.scenesDir())
	stored, storeErr := s.loadFromDisk()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sc := range loaded {
		s.scenes[sc.ID] = sc
		s.files[sc.ID] = true
	}
	for id, sc := range stored {
		s.scenes[id] = sc
		delete(s.files, id)
	}
	log.Info("scenes loaded", "files", len(loaded), "stored", len(stored), "dir", s.scenesDir())

	err := errors.Join(fileErr, storeErr)
	if err != nil {
		log.Warn("some scenes failed to load", "error", err)
	}
	return err
}

// List returns all scenes sorted by id.
func (s *SceneService) List() []scene.Scene {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := slices.Sorted(maps.Keys(s.scenes))
	result := make([]scene.Scene, 0, len(ids))
	for _, id := range ids {
		result = append(result, s.scenes[id])
	}
	return result
}

// Get returns a scene by id.
func (s *SceneService) Get(id string) (scene.Scene, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.scenes[id]
	return sc, ok
}

// Create validates and stores a new scene.
func (s *SceneService) Create(ctx context.Context, sc scene.Scene) (scene.Scene, error) {
	if sc.ID == "" {
		sc.ID = generateID(sc.Name)
	}
	if sc.ID == "" {
		return scene.Scene{}, &scene.ConfigurationError{Field: "id", Msg: "cannot derive an id from the scene name"}
	}
	if err := sc.Validate(); err != nil {
		return scene.Scene{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.scenes[sc.ID]; exists {
		return scene.Scene{}, fmt.Errorf("%w: %q", ErrSceneExists, sc.ID)
	}
	s.scenes[sc.ID] = sc
	if err := s.saveToDisk(); err != nil {
		delete(s.scenes, sc.ID)
		return scene.Scene{}, err
	}

	ctxlog.FromContext(ctx).Info("scene created", "scene", sc.ID)
	s.bus.Publish(Event{Resource: Resource, Action: "created", ID: sc.ID})
	return sc, nil
}

// Update replaces a scene by id. A built view of the old definition is
// released; build again to see the change.
func (s *SceneService) Update(ctx context.Context, id string, sc scene.Scene) (scene.Scene, error) {
	sc.ID = id
	if err := sc.Validate(); err != nil {
		return scene.Scene{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.scenes[id]
	if !exists {
		return scene.Scene{}, fmt.Errorf("%w: %q", ErrSceneNotFound, id)
	}
	wasFile := s.files[id]
	s.scenes[id] = sc
	delete(s.files, id)
	if err := s.saveToDisk(); err != nil {
		s.scenes[id] = prev
		if wasFile {
			s.files[id] = true
		}
		return scene.Scene{}, err
	}
	s.release(id)

	ctxlog.FromContext(ctx).Info("scene updated", "scene", id)
	s.bus.Publish(Event{Resource: Resource, Action: "updated", ID: id})
	return sc, nil
}

// Delete removes a scene, its built view and its indexed overlays. A scene
// that only exists as a file comes back on the next Load.
func (s *SceneService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.scenes[id]; !exists {
		return fmt.Errorf("%w: %q", ErrSceneNotFound, id)
	}
	delete(s.scenes, id)
	delete(s.files, id)
	s.release(id)
	if err := s.saveToDisk(); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.Remove(ctx, id); err != nil {
			ctxlog.FromContext(ctx).Warn("overlay index cleanup failed", "scene", id, "error", err)
		}
	}

	ctxlog.FromContext(ctx).Info("scene deleted", "scene", id)
	s.bus.Publish(Event{Resource: Resource, Action: "deleted", ID: id})
	return nil
}

// Build builds a scene against the engine and returns its document. Any
// previous build of the scene is released first. Step failures are
// returned together with whatever document the engine holds.
func (s *SceneService) Build(ctx context.Context, id string) (engine.Document, error) {
	log, ctx := ctxlog.With(ctx, "scene", id)

	sc, ok := s.Get(id)
	if !ok {
		return engine.Document{}, fmt.Errorf("%w: %q", ErrSceneNotFound, id)
	}

	b, buildErr := scene.Build(ctx, s.engine, sc,
		scene.WithLogger(log),
		scene.WithPlaceholderPolicy(s.policy),
	)

	s.mu.Lock()
	s.release(id)
	if b.Handle().ID != "" {
		s.builds[id] = b
	}
	s.mu.Unlock()

	if buildErr != nil {
		log.Warn("scene build incomplete", "state", b.State().String(), "error", buildErr)
	} else if s.index != nil {
		if err := s.index.Replace(ctx, id, sc.Overlays); err != nil {
			log.Warn("overlay indexing failed", "error", err)
		}
	}

	doc, _ := s.engine.Document(b.Handle().ID)
	s.bus.Publish(Event{Resource: Resource, Action: "built", ID: id, Detail: b.State().String()})
	return doc, buildErr
}

// Document returns the engine document of a built scene.
func (s *SceneService) Document(id string) (engine.Document, error) {
	b, err := s.builder(id)
	if err != nil {
		return engine.Document{}, err
	}
	doc, ok := s.engine.Document(b.Handle().ID)
	if !ok {
		return engine.Document{}, fmt.Errorf("%w: %q", ErrNotBuilt, id)
	}
	return doc, nil
}

// State returns the lifecycle state of a built scene.
func (s *SceneService) State(id string) (scene.State, error) {
	b, err := s.builder(id)
	if err != nil {
		return scene.StateUninitialized, err
	}
	return b.State(), nil
}

// SelectStyle switches the basemap of a built scene.
func (s *SceneService) SelectStyle(ctx context.Context, id, basemap string) (engine.Document, error) {
	b, err := s.builder(id)
	if err != nil {
		return engine.Document{}, err
	}
	if err := b.OnStyleSelected(basemap); err != nil {
		return engine.Document{}, err
	}

	ctxlog.FromContext(ctx).Info("basemap selected", "scene", id, "basemap", basemap)
	s.bus.Publish(Event{Resource: Resource, Action: "styled", ID: id, Detail: basemap})
	return s.Document(id)
}

// Catalog returns the basemaps a scene's style switcher may select.
func (s *SceneService) Catalog(id string) ([]string, error) {
	sc, ok := s.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSceneNotFound, id)
	}
	return sc.Catalog(), nil
}

// GeoJSON returns a scene's overlays as a feature collection.
func (s *SceneService) GeoJSON(id string) (*geojson.FeatureCollection, error) {
	sc, ok := s.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSceneNotFound, id)
	}
	return sc.FeatureCollection(), nil
}

// Tile returns one gzipped vector tile of a scene's overlays, or nil when
// no overlay reaches the tile.
func (s *SceneService) Tile(id string, t maptile.Tile) ([]byte, error) {
	fc, err := s.GeoJSON(id)
	if err != nil {
		return nil, err
	}
	return tiles.Encode(fc, t)
}

func (s *SceneService) builder(id string) (*scene.Builder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.scenes[id]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrSceneNotFound, id)
	}
	b, ok := s.builds[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotBuilt, id)
	}
	return b, nil
}

// release drops a scene's built view. Callers hold s.mu.
func (s *SceneService) release(id string) {
	if b, ok := s.builds[id]; ok {
		s.engine.Release(b.Handle().ID)
		delete(s.builds, id)
	}
}

func (s *SceneService) scenesDir() string {
	return filepath.Join(s.dataDir, "scenes")
}

// configFile returns the path to the stored scenes file.
func (s *SceneService) configFile() string {
	return filepath.Join(s.dataDir, "scenes.json")
}

// loadFromDisk reads stored scenes. A missing file is not an error.
func (s *SceneService) loadFromDisk() (map[string]scene.Scene, error) {
	data, err := os.ReadFile(s.configFile())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var stored map[string]scene.Scene
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("%s: %w", s.configFile(), err)
	}
	for id, sc := range stored {
		sc.ID = id
		stored[id] = sc
	}
	return stored, nil
}

// saveToDisk persists every scene not backed only by a file. Callers hold s.mu.
func (s *SceneService) saveToDisk() error {
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}

	stored := make(map[string]scene.Scene, len(s.scenes))
	for id, sc := range s.scenes {
		if !s.files[id] {
			stored[id] = sc
		}
	}
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.configFile(), data, 0644)
}

// generateID creates a URL-safe ID from a name.
func generateID(name string) string {
	id := strings.ToLower(strings.TrimSpace(name))
	id = strings.ReplaceAll(id, " ", "_")
	var result strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
