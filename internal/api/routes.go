// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"database/sql"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-scene/internal/humastar"
	"github.com/joeblew999/plat-scene/internal/scene"
	"github.com/joeblew999/plat-scene/internal/service"
)

// Version is the API version reported by /health and /api/v1/info.
const Version = "0.1.0"

// Services holds the dependencies for API handlers.
type Services struct {
	Scenes  *service.SceneService
	DB      *sql.DB // nil when DuckDB is unavailable
	DataDir string
}

// RegisterRoutes registers every REST route on api.
func RegisterRoutes(api huma.API, svc *Services) {
	h := &APIHandler{svc: svc}
	h.RegisterHealth(api)
	h.RegisterScenes(api)
	NewDBHandler(svc.DB).RegisterRoutes(api)
}

// Links returns the static Link headers between REST operations.
func Links() humastar.Links {
	l := humastar.Links{}
	for _, rel := range []struct{ to, rel string }{
		{"/api/v1/info", "info"},
		{"/api/v1/scenes", "scenes"},
		{"/api/v1/tables", "tables"},
		{"/openapi.json", "service-desc"},
		{"/docs", "service-doc"},
	} {
		l.Add("/health", rel.to, rel.rel)
	}
	l.Add("/api/v1/info", "/health", "up")
	l.Add("/api/v1/scenes", "/health", "up")
	l.Add("/api/v1/scenes", "/api/v1/scenes/{id}", "item")
	l.Add("/api/v1/scenes", "/api/v1/scenes", "create-form")
	l.Add("/api/v1/scenes/{id}", "/api/v1/scenes", "collection")
	l.Add("/api/v1/scenes/{id}/document", "/api/v1/scenes", "collection")
	l.Add("/api/v1/scenes/{id}/overlays", "/api/v1/scenes", "collection")
	l.Add("/api/v1/tables", "/api/v1/query", "search")
	return l
}

// APIHandler holds the REST handlers.
type APIHandler struct {
	svc *Services
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"0.1.0"`
}

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	DataDir  string   `json:"data_dir" doc:"Data directory path"`
	DB       bool     `json:"db" doc:"Whether DuckDB is available"`
	Scenes   int      `json:"scenes" doc:"Number of loaded scenes"`
	Features []string `json:"features" doc:"Available features"`
}

// RegisterHealth registers health and info routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

func (h *APIHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	features := []string{"scenes", "geojson", "datastar"}
	if h.svc.DB != nil {
		features = append(features, "duckdb")
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:     "plat-scene",
		Version:  Version,
		DataDir:  h.svc.DataDir,
		DB:       h.svc.DB != nil,
		Scenes:   len(h.svc.Scenes.List()),
		Features: features,
	}}, nil
}

// problem maps service and scene errors to Huma status errors.
func problem(err error) error {
	var (
		ce *scene.ConfigurationError
		le *scene.ViewLoadError
	)
	switch {
	case errors.Is(err, service.ErrSceneNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, service.ErrSceneExists), errors.Is(err, service.ErrNotBuilt):
		return huma.Error409Conflict(err.Error())
	case errors.As(err, &le):
		return huma.Error503ServiceUnavailable(err.Error())
	case errors.As(err, &ce):
		return huma.Error422UnprocessableEntity("invalid scene", details(err)...)
	}
	return huma.Error500InternalServerError("internal error", err)
}

// details flattens joined errors into Huma error details.
func details(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, details(e)...)
		}
		return out
	}
	var ce *scene.ConfigurationError
	if errors.As(err, &ce) {
		return []error{&huma.ErrorDetail{Message: ce.Error(), Location: ce.Field}}
	}
	return []error{&huma.ErrorDetail{Message: err.Error()}}
}

// messages flattens joined errors into strings.
func messages(err error) []string {
	var out []string
	for _, d := range details(err) {
		if ed, ok := d.(*huma.ErrorDetail); ok {
			out = append(out, ed.Message)
			continue
		}
		out = append(out, d.Error())
	}
	return out
}
