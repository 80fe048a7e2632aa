// Package server assembles the scene HTTP server.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/plat-scene/internal/api"
	"github.com/joeblew999/plat-scene/internal/api/editor"
	"github.com/joeblew999/plat-scene/internal/ctxlog"
	"github.com/joeblew999/plat-scene/internal/db"
	"github.com/joeblew999/plat-scene/internal/engine"
	"github.com/joeblew999/plat-scene/internal/humastar"
	"github.com/joeblew999/plat-scene/internal/scene"
	"github.com/joeblew999/plat-scene/internal/service"
	"github.com/joeblew999/plat-scene/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	WebDir  string // Path to web/ directory for static files and templates

	Logger       *slog.Logger // defaults to slog.Default()
	Placeholders scene.PlaceholderPolicy
	Containers   []string // container ids views may mount into; empty accepts any
}

// Server is the scene HTTP server.
type Server struct {
	config   Config
	logger   *slog.Logger
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	scenes   *service.SceneService
	renderer *templates.Renderer
}

// New creates a scene server and loads the scenes under the data
// directory. Scene files that fail to load are logged and skipped.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx := ctxlog.WithLogger(context.Background(), logger)

	mux := http.NewServeMux()

	humaConfig := huma.DefaultConfig("plat-scene API", api.Version)
	humaConfig.Info.Description = "Map scene builder: scene documents, view builds, overlays and basemap selection."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = nil
	humaConfig.Transformers = append(humaConfig.Transformers, humastar.LinkTransformer(api.Links()))

	humaAPI := humago.New(mux, humaConfig)
	humaAPI.UseMiddleware(api.Logger(logger))

	s := &Server{
		config:  cfg,
		logger:  logger,
		mux:     mux,
		humaAPI: humaAPI,
	}

	opts := []service.Option{
		service.WithEngine(engine.New(
			engine.WithContainers(cfg.Containers...),
			engine.WithEngineLogger(logger.With("component", "engine")),
		)),
		service.WithPlaceholderPolicy(cfg.Placeholders),
	}

	conn, err := db.Get(db.Config{
		DataDir:    cfg.DataDir,
		DBName:     "scene",
		Extensions: []string{"spatial"},
	})
	if err != nil {
		logger.Warn("duckdb unavailable, overlay index disabled", "error", err)
	} else {
		s.db = conn
		index := db.NewOverlayIndex(conn)
		if err := index.Ensure(ctx); err != nil {
			logger.Warn("overlay index unavailable", "error", err)
		} else {
			opts = append(opts, service.WithIndex(index))
		}
	}

	s.scenes = service.NewSceneService(cfg.DataDir, opts...)
	if err := s.scenes.Load(ctx); err != nil {
		logger.Warn("serving without the scenes that failed to load", "error", err)
	}

	if cfg.WebDir != "" {
		fragmentsDir := filepath.Join(cfg.WebDir, "templates", "fragments")
		if r, err := templates.New(fragmentsDir); err == nil {
			s.renderer = r
			logger.Info("fragment templates loaded", "dir", fragmentsDir)
		} else {
			logger.Warn("editor disabled", "dir", fragmentsDir, "error", err)
		}
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the server's OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Scenes returns the scene service.
func (s *Server) Scenes() *service.SceneService {
	return s.scenes
}

// Close closes server resources.
func (s *Server) Close() error {
	return db.Close()
}

func (s *Server) routes() {
	api.RegisterRoutes(s.humaAPI, &api.Services{
		Scenes:  s.scenes,
		DB:      s.db,
		DataDir: s.config.DataDir,
	})

	if s.renderer != nil {
		editor.NewSceneHandler(s.scenes, s.renderer).RegisterRoutes(s.humaAPI)
	}

	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
		s.mux.HandleFunc("/viewer", s.page("viewer.html"))
		s.mux.HandleFunc("/editor", s.page("editor.html"))
	}
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"service": "plat-scene",
		"status":  "running",
		"scenes":  len(s.scenes.List()),
	})
}

func (s *Server) page(name string) http.HandlerFunc {
	path := filepath.Join(s.config.WebDir, "templates", name)
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, path)
	}
}
