package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fly-io/gpsdl/pkg/errors"
	"github.com/fly-io/gpsdl/pkg/gpx"
	"github.com/fly-io/gpsdl/pkg/layer"
	_ "modernc.org/sqlite"
)

// Repository persists the layer registry between runs
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}

	// Create schema
	slog.Info("database_create_schema", "db_path", dbPath)
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	slog.Info("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// SaveRegistry makes the stored session match reg. Rows of surviving layers
// keep their created_at.
func (r *Repository) SaveRegistry(ctx context.Context, reg *layer.Registry) error {
	layers := reg.Layers()
	slog.Info("database_save_registry", "layer_count", len(layers))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed_to_begin_transaction", "error", err)
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var activeID string
	if a := reg.ActiveLayer(); a != nil {
		activeID = a.ID()
	}

	// Upsert so created_at survives later saves.
	query := `
		INSERT INTO layers (id, position, kind, name, from_server, from_layer_id, active, point_count, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    position = excluded.position,
		    kind = excluded.kind,
		    name = excluded.name,
		    from_server = excluded.from_server,
		    from_layer_id = excluded.from_layer_id,
		    active = excluded.active,
		    point_count = excluded.point_count,
		    payload = excluded.payload,
		    updated_at = CURRENT_TIMESTAMP
	`
	ids := make([]any, 0, len(layers))
	for i, l := range layers {
		rec, payload, err := encodeLayer(l)
		if err != nil {
			slog.Error("database_encode_layer_failed", "layer_id", l.ID(), "error", err)
			return err
		}
		_, err = tx.ExecContext(ctx, query,
			l.ID(), i, rec.Kind, rec.Name, rec.FromServer, nullString(rec.FromLayerID),
			l.ID() == activeID, rec.PointCount, payload)
		if err != nil {
			slog.Error("database_upsert_failed", "layer_id", l.ID(), "error", err)
			return errors.Wrap(err, "failed to upsert layer")
		}
		ids = append(ids, l.ID())
	}

	// Drop layers that are no longer in the registry
	deleteQuery := "DELETE FROM layers"
	if len(ids) > 0 {
		deleteQuery += " WHERE id NOT IN (?" + strings.Repeat(", ?", len(ids)-1) + ")"
	}
	result, err := tx.ExecContext(ctx, deleteQuery, ids...)
	if err != nil {
		slog.Error("database_prune_layers_failed", "error", err)
		return errors.Wrap(err, "failed to prune layers")
	}
	if pruned, err := result.RowsAffected(); err == nil && pruned > 0 {
		slog.Info("database_layers_pruned", "count", pruned)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM viewport"); err != nil {
		slog.Error("database_clear_viewport_failed", "error", err)
		return errors.Wrap(err, "failed to clear viewport")
	}
	if vp, ok := reg.Viewport(); ok {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO viewport (id, min_lat, min_lon, max_lat, max_lon) VALUES (1, ?, ?, ?, ?)",
			vp.MinLat, vp.MinLon, vp.MaxLat, vp.MaxLon)
		if err != nil {
			slog.Error("database_viewport_insert_failed", "error", err)
			return errors.Wrap(err, "failed to store viewport")
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed_to_commit_transaction", "error", err)
		return errors.Wrap(err, "failed to commit transaction")
	}

	slog.Info("database_registry_saved", "layer_count", len(layers), "active_layer", activeID)
	return nil
}

// LoadRegistry rebuilds the saved session. An empty database yields an empty
// registry.
func (r *Repository) LoadRegistry(ctx context.Context) (*layer.Registry, error) {
	slog.Info("database_load_registry")

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, name, from_layer_id, active, payload
		FROM layers ORDER BY position
	`)
	if err != nil {
		slog.Error("database_load_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to query layers")
	}
	defer rows.Close()

	reg := layer.NewRegistry()
	var activeID string
	for rows.Next() {
		var id, kind, name, payload string
		var fromLayer sql.NullString
		var active bool
		if err := rows.Scan(&id, &kind, &name, &fromLayer, &active, &payload); err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}

		l, err := decodeLayer(id, kind, name, fromLayer.String, payload)
		if err != nil {
			slog.Error("database_decode_layer_failed", "layer_id", id, "error", err)
			return nil, err
		}
		reg.AddLayer(l, false)
		if active {
			activeID = id
		}
	}
	if err := rows.Err(); err != nil {
		slog.Error("database_rows_error", "error", err)
		return nil, errors.Wrap(err, "rows error")
	}

	if activeID != "" {
		if err := reg.SetActiveLayer(activeID); err != nil {
			return nil, errors.Wrap(err, "failed to restore active layer")
		}
	}

	var vp gpx.Bounds
	err = r.db.QueryRowContext(ctx, "SELECT min_lat, min_lon, max_lat, max_lon FROM viewport WHERE id = 1").
		Scan(&vp.MinLat, &vp.MinLon, &vp.MaxLat, &vp.MaxLon)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		slog.Error("database_viewport_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to query viewport")
	default:
		reg.SetViewport(vp)
	}

	slog.Info("database_registry_loaded", "layer_count", len(reg.Layers()), "active_layer", activeID)
	return reg, nil
}

// List retrieves all stored layers in registry order
func (r *Repository) List(ctx context.Context) ([]*LayerRecord, error) {
	slog.Info("database_list_layers")

	query := `
		SELECT id, position, kind, name, from_server, from_layer_id, active, point_count, created_at, updated_at
		FROM layers ORDER BY position
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list layers")
	}
	defer rows.Close()

	var records []*LayerRecord
	for rows.Next() {
		var rec LayerRecord
		var fromLayer sql.NullString

		err := rows.Scan(
			&rec.ID, &rec.Position, &rec.Kind, &rec.Name, &rec.FromServer,
			&fromLayer, &rec.Active, &rec.PointCount, &rec.CreatedAt, &rec.UpdatedAt)
		if err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}
		rec.FromLayerID = fromLayer.String

		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		slog.Error("database_rows_error", "error", err)
		return nil, errors.Wrap(err, "rows error")
	}

	slog.Info("database_list_complete", "layer_count", len(records))
	return records, nil
}

func encodeLayer(l layer.Layer) (*LayerRecord, []byte, error) {
	rec := &LayerRecord{ID: l.ID(), Name: l.Name()}

	var v any
	switch t := l.(type) {
	case *layer.TrackLayer:
		data := t.Data()
		rec.Kind = KindTrack
		rec.FromServer = data.FromServer
		rec.PointCount = data.PointCount()
		v = data
	case *layer.MarkerLayer:
		markers := t.Markers()
		rec.Kind = KindMarker
		rec.FromLayerID = t.FromLayer()
		rec.PointCount = len(markers)
		v = markers
	default:
		return nil, nil, fmt.Errorf("unsupported layer type %T", l)
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to encode layer payload")
	}
	return rec, payload, nil
}

func decodeLayer(id, kind, name, fromLayer, payload string) (layer.Layer, error) {
	switch kind {
	case KindTrack:
		data := gpx.NewTrackData()
		if err := json.Unmarshal([]byte(payload), data); err != nil {
			return nil, errors.Wrap(err, "failed to decode track payload")
		}
		return layer.RestoreTrackLayer(id, name, data), nil
	case KindMarker:
		var markers []layer.Marker
		if err := json.Unmarshal([]byte(payload), &markers); err != nil {
			return nil, errors.Wrap(err, "failed to decode marker payload")
		}
		return layer.RestoreMarkerLayer(id, name, fromLayer, markers), nil
	}
	return nil, fmt.Errorf("unknown layer kind %q", kind)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
