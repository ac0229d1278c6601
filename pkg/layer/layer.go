// Package layer implements the in-memory track and marker layers built from
// downloaded gps data, and the registry that owns them for a session.
package layer

import (
	"sync"

	"github.com/fly-io/gpsdl/pkg/gpx"
	"github.com/google/uuid"
)

// Kind distinguishes layer variants in the registry.
type Kind string

const (
	KindTrack  Kind = "track"
	KindMarker Kind = "marker"
)

// Layer is the registry view of a track or marker layer.
type Layer interface {
	ID() string
	Name() string
	Kind() Kind
	Bounds() (gpx.Bounds, bool)
	// Invalidate requests a redraw after the layer contents changed.
	Invalidate()
	Invalidations() int
}

type base struct {
	mu            sync.RWMutex
	id            string
	name          string
	invalidations int
}

func layerID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func (b *base) ID() string { return b.id }

func (b *base) Name() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.name
}

func (b *base) Invalidate() {
	b.mu.Lock()
	b.invalidations++
	b.mu.Unlock()
}

func (b *base) Invalidations() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.invalidations
}

// TrackLayer holds the path data of one or more merged traces.
type TrackLayer struct {
	base
	data *gpx.TrackData
}

// NewTrackLayer creates a track layer with a fresh ID.
func NewTrackLayer(name string, data *gpx.TrackData) *TrackLayer {
	return RestoreTrackLayer("", name, data)
}

// RestoreTrackLayer recreates a persisted track layer with its original ID.
func RestoreTrackLayer(id, name string, data *gpx.TrackData) *TrackLayer {
	if data == nil {
		data = gpx.NewTrackData()
	}
	return &TrackLayer{base: base{id: layerID(id), name: name}, data: data}
}

func (l *TrackLayer) Kind() Kind { return KindTrack }

// FromServer reports whether the layer data came from a server download.
func (l *TrackLayer) FromServer() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.data.FromServer
}

// Data returns the layer data. Callers must not modify it.
func (l *TrackLayer) Data() *gpx.TrackData {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.data
}

func (l *TrackLayer) Bounds() (gpx.Bounds, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.data.Bounds()
}

// MergeFrom absorbs the data of other into l.
func (l *TrackLayer) MergeFrom(other *TrackLayer) {
	if other == nil || other == l {
		return
	}
	src := other.Data()
	l.mu.Lock()
	l.data.MergeFrom(src)
	l.mu.Unlock()
}

// Marker is a point of interest shown on a marker layer.
type Marker struct {
	gpx.Point
	Text        string `json:"text,omitempty"`
	Description string `json:"desc,omitempty"`
}

// MarkerLayer holds markers derived from a trace. FromLayer is the ID of the
// track layer the markers belong to; it is a lookup key, not an owner.
type MarkerLayer struct {
	base
	fromLayer string
	markers   []Marker
}

// NewMarkerLayer creates a marker layer paired with the track layer fromLayer.
func NewMarkerLayer(name, fromLayer string, markers []Marker) *MarkerLayer {
	return RestoreMarkerLayer("", name, fromLayer, markers)
}

// RestoreMarkerLayer recreates a persisted marker layer with its original ID.
func RestoreMarkerLayer(id, name, fromLayer string, markers []Marker) *MarkerLayer {
	return &MarkerLayer{base: base{id: layerID(id), name: name}, fromLayer: fromLayer, markers: markers}
}

func (l *MarkerLayer) Kind() Kind { return KindMarker }

// FromLayer returns the ID of the paired track layer.
func (l *MarkerLayer) FromLayer() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fromLayer
}

// SetFromLayer re-points the layer at the track layer id.
func (l *MarkerLayer) SetFromLayer(id string) {
	l.mu.Lock()
	l.fromLayer = id
	l.mu.Unlock()
}

// Markers returns a copy of the markers.
func (l *MarkerLayer) Markers() []Marker {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Marker(nil), l.markers...)
}

func (l *MarkerLayer) Bounds() (gpx.Bounds, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var b gpx.Bounds
	for i, m := range l.markers {
		if i == 0 {
			b = gpx.Bounds{MinLat: m.Lat, MinLon: m.Lon, MaxLat: m.Lat, MaxLon: m.Lon}
			continue
		}
		b.Extend(m.Lat, m.Lon)
	}
	return b, len(l.markers) > 0
}

// MergeFrom appends the markers of other.
func (l *MarkerLayer) MergeFrom(other *MarkerLayer) {
	if other == nil || other == l {
		return
	}
	src := other.Markers()
	l.mu.Lock()
	l.markers = append(l.markers, src...)
	l.mu.Unlock()
}
