package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb/encoding/wkt"

	"github.com/joeblew999/plat-scene/internal/scene"
)

// OverlaysTable is the table the overlay index writes to.
const OverlaysTable = "scene_overlays"

const overlaysSchema = `CREATE TABLE IF NOT EXISTS ` + OverlaysTable + ` (
	scene_id    VARCHAR NOT NULL,
	seq         INTEGER NOT NULL,
	overlay_id  VARCHAR,
	geom_type   VARCHAR NOT NULL,
	wkt         VARCHAR NOT NULL,
	symbol_kind VARCHAR NOT NULL,
	attributes  VARCHAR,
	min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE
)`

// OverlayIndex stores built scene overlays as WKT rows so they can be
// queried with SQL. With the spatial extension loaded,
// ST_GeomFromText(wkt) turns them into geometries.
type OverlayIndex struct {
	db *sql.DB
}

// NewOverlayIndex returns an index over db. Call Ensure before use.
func NewOverlayIndex(db *sql.DB) *OverlayIndex {
	return &OverlayIndex{db: db}
}

// Ensure creates the overlays table if it does not exist.
func (ix *OverlayIndex) Ensure(ctx context.Context) error {
	if _, err := ix.db.ExecContext(ctx, overlaysSchema); err != nil {
		return fmt.Errorf("create %s: %w", OverlaysTable, err)
	}
	return nil
}

// Replace swaps a scene's rows for overlays, in draw order.
func (ix *OverlayIndex) Replace(ctx context.Context, sceneID string, overlays []scene.GraphicOverlay) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+OverlaysTable+` WHERE scene_id = ?`, sceneID); err != nil {
		return fmt.Errorf("clear overlays of %q: %w", sceneID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+OverlaysTable+`
		(scene_id, seq, overlay_id, geom_type, wkt, symbol_kind, attributes, min_x, min_y, max_x, max_y)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, o := range overlays {
		attrs, err := json.Marshal(o.Attributes)
		if err != nil {
			return fmt.Errorf("overlay %d attributes: %w", i, err)
		}
		b := o.Geometry.Bound()
		if _, err := stmt.ExecContext(ctx,
			sceneID, i, o.ID, string(o.Geometry.Type),
			wkt.MarshalString(o.Geometry.Orb()),
			string(o.Symbol.Kind), string(attrs),
			b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y(),
		); err != nil {
			return fmt.Errorf("insert overlay %d of %q: %w", i, sceneID, err)
		}
	}
	return tx.Commit()
}

// Remove deletes a scene's rows.
func (ix *OverlayIndex) Remove(ctx context.Context, sceneID string) error {
	_, err := ix.db.ExecContext(ctx, `DELETE FROM `+OverlaysTable+` WHERE scene_id = ?`, sceneID)
	return err
}

// Row is one indexed overlay.
type Row struct {
	Seq       int    `json:"seq"`
	OverlayID string `json:"overlayId,omitempty"`
	GeomType  string `json:"geomType"`
	WKT       string `json:"wkt"`
}

// Rows returns a scene's indexed overlays in draw order.
func (ix *OverlayIndex) Rows(ctx context.Context, sceneID string) ([]Row, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT seq, coalesce(overlay_id, ''), geom_type, wkt FROM `+OverlaysTable+` WHERE scene_id = ? ORDER BY seq`, sceneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Seq, &r.OverlayID, &r.GeomType, &r.WKT); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
