package db

// Schema defines the SQLite schema for a saved session.
// layers keeps registry order in position; viewport holds at most one row.
const Schema = `
CREATE TABLE IF NOT EXISTS layers (
    id TEXT PRIMARY KEY,
    position INTEGER NOT NULL,
    kind TEXT NOT NULL CHECK(kind IN ('track', 'marker')),
    name TEXT NOT NULL,
    from_server INTEGER NOT NULL DEFAULT 0,
    from_layer_id TEXT,
    active INTEGER NOT NULL DEFAULT 0,
    point_count INTEGER NOT NULL DEFAULT 0,
    payload TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_layers_position ON layers(position);
CREATE INDEX IF NOT EXISTS idx_layers_from_layer_id ON layers(from_layer_id);

CREATE TABLE IF NOT EXISTS viewport (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    min_lat REAL NOT NULL,
    min_lon REAL NOT NULL,
    max_lat REAL NOT NULL,
    max_lon REAL NOT NULL
);
`

// Kind values stored in layers.kind
const (
	KindTrack  = "track"
	KindMarker = "marker"
)

// LayerRecord is one row of the layers table, without its payload
type LayerRecord struct {
	ID          string
	Position    int
	Kind        string
	Name        string
	FromServer  bool
	FromLayerID string
	Active      bool
	PointCount  int
	CreatedAt   string
	UpdatedAt   string
}
