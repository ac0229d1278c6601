package gpstask

import (
	"log/slog"
	"sync"

	"github.com/fly-io/gpsdl/pkg/gpx"
	"github.com/fly-io/gpsdl/pkg/layer"
	"github.com/fly-io/gpsdl/pkg/source"
)

// Preference keys read by the integrator.
const (
	PrefPreferMetadataName = "gpx.prefermetadataname"
	PrefMergeWithLocal     = "download.gps.mergeWithLocal"
	PrefMakeAutoMarkers    = "marker.makeautomarkers"
)

// DefaultLayerName names downloaded data when nothing better applies.
const DefaultLayerName = "Downloaded GPX Data"

// Preferences is a read-only boolean preference store.
type Preferences interface {
	Bool(key string, def bool) bool
}

// Registry is the part of the layer registry the integrator needs.
type Registry interface {
	AddLayer(l layer.Layer, zoom bool)
	ActiveLayer() layer.Layer
	LayersOfKind(kind layer.Kind) []layer.Layer
}

// Result describes where the downloaded layers ended up. Track and Marker
// are the registry layers holding the data, whether new or merged into.
type Result struct {
	Name         string
	Track        *layer.TrackLayer
	Marker       *layer.MarkerLayer
	TrackMerged  bool
	MarkerMerged bool

	// Downloaded covers only the data of this download, even after a merge.
	Downloaded    gpx.Bounds
	HasDownloaded bool
}

// Integrator places downloaded data into a registry. Calls to Integrate are
// serialized.
type Integrator struct {
	registry Registry
	prefs    Preferences

	mu sync.Mutex
}

// NewIntegrator creates an integrator for registry.
func NewIntegrator(registry Registry, prefs Preferences) *Integrator {
	return &Integrator{registry: registry, prefs: prefs}
}

// Integrate adds or merges data into the registry. A nil data is a no-op.
func (in *Integrator) Integrate(data *gpx.TrackData, settings Settings, url string) Result {
	if data == nil {
		return Result{}
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	name := LayerName(data, url, in.prefs.Bool(PrefPreferMetadataName, false))
	imported := layer.Import(data, name, MarkerLayerName(name), in.prefs.Bool(PrefMakeAutoMarkers, true))

	res := Result{Name: name}
	res.Downloaded, res.HasDownloaded = imported.Track.Bounds()

	track, merged := in.addOrMergeTrack(imported.Track, settings)
	res.Track, res.TrackMerged = track, merged

	if imported.Marker != nil {
		res.Marker, res.MarkerMerged = in.addOrMergeMarker(imported.Marker, track, settings)
	}

	if imported.PostLayerTask != nil {
		imported.PostLayerTask()
	}

	slog.Info("download_integrated",
		"name", name,
		"track_layer", res.Track.ID(),
		"track_merged", res.TrackMerged,
		"has_markers", res.Marker != nil,
		"marker_merged", res.MarkerMerged)

	return res
}

func (in *Integrator) addOrMergeTrack(l *layer.TrackLayer, settings Settings) (*layer.TrackLayer, bool) {
	target := in.findTrackMergeLayer()
	if settings.NewLayer || target == nil {
		in.registry.AddLayer(l, settings.ZoomAfterDownload)
		return l, false
	}

	target.MergeFrom(l)
	target.Invalidate()
	slog.Info("layer_merged", "layer_id", target.ID(), "kind", layer.KindTrack, "name", target.Name())
	return target, true
}

func (in *Integrator) addOrMergeMarker(l *layer.MarkerLayer, track *layer.TrackLayer, settings Settings) (*layer.MarkerLayer, bool) {
	target := in.findMarkerMergeLayer(track)
	if settings.NewLayer || target == nil {
		l.SetFromLayer(track.ID())
		in.registry.AddLayer(l, settings.ZoomAfterDownload)
		return l, false
	}

	target.MergeFrom(l)
	target.Invalidate()
	slog.Info("layer_merged", "layer_id", target.ID(), "kind", layer.KindMarker, "name", target.Name())
	return target, true
}

// findTrackMergeLayer prefers the active track layer, then the first track
// layer in registry order, that is mergeable.
func (in *Integrator) findTrackMergeLayer() *layer.TrackLayer {
	mergeLocal := in.prefs.Bool(PrefMergeWithLocal, false)
	mergeable := func(l *layer.TrackLayer) bool {
		return mergeLocal || l.FromServer()
	}

	if active, ok := in.registry.ActiveLayer().(*layer.TrackLayer); ok && mergeable(active) {
		return active
	}
	for _, l := range in.registry.LayersOfKind(layer.KindTrack) {
		if t, ok := l.(*layer.TrackLayer); ok && mergeable(t) {
			return t
		}
	}
	return nil
}

// findMarkerMergeLayer returns the first marker layer paired with track.
func (in *Integrator) findMarkerMergeLayer(track *layer.TrackLayer) *layer.MarkerLayer {
	if track == nil {
		return nil
	}
	for _, l := range in.registry.LayersOfKind(layer.KindMarker) {
		if m, ok := l.(*layer.MarkerLayer); ok && m.FromLayer() == track.ID() {
			return m
		}
	}
	return nil
}

// LayerName picks the display name for downloaded data: the first non-empty
// of the default name, the .gpx file name of url and the metadata name, with
// the last two swapped when preferMetadata is set.
func LayerName(data *gpx.TrackData, url string, preferMetadata bool) string {
	fileName := source.FileName(url)
	metadataName := data.String(gpx.MetaName)

	if preferMetadata {
		return firstNotEmpty(DefaultLayerName, metadataName, fileName)
	}
	return firstNotEmpty(DefaultLayerName, fileName, metadataName)
}

// MarkerLayerName names the marker layer derived from a track layer.
func MarkerLayerName(name string) string {
	return "Markers from " + name
}

func firstNotEmpty(candidates ...string) string {
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}
