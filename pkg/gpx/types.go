// Package gpx holds the track data model produced by fetchers and consumed by
// the layer importer.
package gpx

// Metadata keys filled by Decode.
const (
	MetaName     = "name"
	MetaDesc     = "desc"
	MetaAuthor   = "author"
	MetaKeywords = "keywords"
	MetaCreator  = "creator"
)

// Point is a single geographic position.
type Point struct {
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	Elevation    float64 `json:"ele,omitempty"`
	HasElevation bool    `json:"has_ele,omitempty"`
}

// Segment is a continuous run of track points.
type Segment struct {
	Points []Point `json:"points"`
}

// Track is one named track made of segments.
type Track struct {
	Name     string    `json:"name,omitempty"`
	Segments []Segment `json:"segments"`
}

// Waypoint is a named point of interest carried next to the tracks.
type Waypoint struct {
	Point
	Name        string `json:"name,omitempty"`
	Description string `json:"desc,omitempty"`
}

// TrackData is the result of one fetch.
type TrackData struct {
	Tracks    []Track           `json:"tracks"`
	Waypoints []Waypoint        `json:"waypoints,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	// WasCleanlyParsed is false when only part of the payload could be decoded.
	WasCleanlyParsed bool `json:"clean"`
	// FromServer marks data downloaded from the OSM server rather than a
	// local or third-party file.
	FromServer bool `json:"from_server"`
}

// NewTrackData returns empty, cleanly parsed data.
func NewTrackData() *TrackData {
	return &TrackData{
		Metadata:         make(map[string]string),
		WasCleanlyParsed: true,
	}
}

// String returns the metadata value for key, or "" when absent.
func (d *TrackData) String(key string) string {
	if d == nil || d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}

// PointCount returns the number of track points over all tracks.
func (d *TrackData) PointCount() int {
	if d == nil {
		return 0
	}
	n := 0
	for _, t := range d.Tracks {
		for _, s := range t.Segments {
			n += len(s.Points)
		}
	}
	return n
}

// HasWaypoints reports whether the data carries any waypoints.
func (d *TrackData) HasWaypoints() bool {
	return d != nil && len(d.Waypoints) > 0
}

// MergeFrom appends the tracks and waypoints of other. Metadata keys already
// present are kept. FromServer is left unchanged.
func (d *TrackData) MergeFrom(other *TrackData) {
	if other == nil {
		return
	}
	d.Tracks = append(d.Tracks, other.Tracks...)
	d.Waypoints = append(d.Waypoints, other.Waypoints...)
	if len(other.Metadata) > 0 && d.Metadata == nil {
		d.Metadata = make(map[string]string, len(other.Metadata))
	}
	for k, v := range other.Metadata {
		if _, ok := d.Metadata[k]; !ok {
			d.Metadata[k] = v
		}
	}
	d.WasCleanlyParsed = d.WasCleanlyParsed && other.WasCleanlyParsed
}

// Bounds returns the box enclosing all track points and waypoints.
func (d *TrackData) Bounds() (Bounds, bool) {
	var b Bounds
	found := false
	extend := func(p Point) {
		if !found {
			b = Bounds{MinLat: p.Lat, MinLon: p.Lon, MaxLat: p.Lat, MaxLon: p.Lon}
			found = true
			return
		}
		b.Extend(p.Lat, p.Lon)
	}
	if d == nil {
		return b, false
	}
	for _, t := range d.Tracks {
		for _, s := range t.Segments {
			for _, p := range s.Points {
				extend(p)
			}
		}
	}
	for _, w := range d.Waypoints {
		extend(w.Point)
	}
	return b, found
}
