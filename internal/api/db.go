package api

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-scene/internal/ctxlog"
	"github.com/joeblew999/plat-scene/internal/db"
)

// DBHandler serves the DuckDB overlay index.
type DBHandler struct {
	db *sql.DB
}

// NewDBHandler creates a database handler. A nil db answers 503.
func NewDBHandler(db *sql.DB) *DBHandler {
	return &DBHandler{db: db}
}

// RegisterRoutes registers database routes with Huma.
func (h *DBHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/tables", h.ListTables, huma.OperationTags("db"))
	huma.Post(api, "/api/v1/query", h.Query, huma.OperationTags("db"))
	huma.Get(api, "/api/v1/scenes/{id}/index", h.SceneIndex, huma.OperationTags("db", "scenes"))
}

type TablesBody struct {
	Tables []string `json:"tables" doc:"Table names"`
}

type QueryInput struct {
	Body struct {
		Query string `json:"query" required:"true" minLength:"1" doc:"SQL query to execute" example:"SELECT scene_id, wkt FROM scene_overlays"`
		Limit int    `json:"limit,omitempty" minimum:"0" maximum:"10000" doc:"Maximum rows returned (0 = 1000)"`
	}
}

type QueryBody struct {
	Columns   []string         `json:"columns" doc:"Column names"`
	Rows      []map[string]any `json:"rows" doc:"Query results"`
	Count     int              `json:"count" doc:"Number of rows returned"`
	Truncated bool             `json:"truncated" doc:"Whether more rows were available"`
}

type IndexBody struct {
	Scene string   `json:"scene" doc:"Scene ID"`
	Rows  []db.Row `json:"rows" doc:"Indexed overlays in draw order"`
}

func (h *DBHandler) ListTables(ctx context.Context, input *struct{}) (*struct{ Body TablesBody }, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}

	rows, err := h.db.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tables", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err == nil {
			tables = append(tables, name)
		}
	}
	return &struct{ Body TablesBody }{Body: TablesBody{Tables: tables}}, nil
}

// Query executes a SQL query against DuckDB.
func (h *DBHandler) Query(ctx context.Context, input *QueryInput) (*struct{ Body QueryBody }, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	limit := input.Body.Limit
	if limit == 0 {
		limit = 1000
	}

	rows, err := h.db.QueryContext(ctx, input.Body.Query)
	if err != nil {
		return nil, huma.Error400BadRequest("Query failed: " + err.Error())
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to get columns", err)
	}

	out := QueryBody{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		if len(out.Rows) == limit {
			out.Truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, huma.Error500InternalServerError("Failed to scan row", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = jsonValue(values[i])
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, huma.Error400BadRequest("Query failed: " + err.Error())
	}
	out.Count = len(out.Rows)

	ctxlog.FromContext(ctx).Debug("query executed", "rows", out.Count, "truncated", out.Truncated)
	return &struct{ Body QueryBody }{Body: out}, nil
}

func (h *DBHandler) SceneIndex(ctx context.Context, input *IDInput) (*struct{ Body IndexBody }, error) {
	if h.db == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	rows, err := db.NewOverlayIndex(h.db).Rows(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to read overlay index", err)
	}
	if rows == nil {
		rows = []db.Row{}
	}
	return &struct{ Body IndexBody }{Body: IndexBody{Scene: input.ID, Rows: rows}}, nil
}

// jsonValue converts driver values that encoding/json cannot represent.
func jsonValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	}
	return v
}
