package gpstask

import (
	"fmt"
	"sync"
	"testing"

	"github.com/fly-io/gpsdl/pkg/gpx"
	"github.com/fly-io/gpsdl/pkg/layer"
)

type mapPrefs map[string]bool

func (p mapPrefs) Bool(key string, def bool) bool {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

func newData(fromServer bool, lat, lon float64) *gpx.TrackData {
	d := gpx.NewTrackData()
	d.FromServer = fromServer
	d.Tracks = []gpx.Track{{Segments: []gpx.Segment{{Points: []gpx.Point{{Lat: lat, Lon: lon}}}}}}
	return d
}

func withWaypoint(d *gpx.TrackData, name string) *gpx.TrackData {
	d.Waypoints = append(d.Waypoints, gpx.Waypoint{Point: gpx.Point{Lat: 1, Lon: 1}, Name: name})
	return d
}

func TestIntegrate_NilDataIsNoop(t *testing.T) {
	reg := layer.NewRegistry()
	in := NewIntegrator(reg, mapPrefs{})

	res := in.Integrate(nil, Settings{}, "https://example.com/track.gpx")

	if res.Track != nil || res.Marker != nil {
		t.Errorf("expected no layers, got %+v", res)
	}
	if len(reg.Layers()) != 0 {
		t.Errorf("registry must stay empty, got %d layers", len(reg.Layers()))
	}
}

func TestLayerName(t *testing.T) {
	data := gpx.NewTrackData()
	data.Metadata[gpx.MetaName] = "MyRide"
	url := "https://example.com/files/track.gpx"

	// The default name is always a non-empty first candidate.
	for _, prefer := range []bool{false, true} {
		if got := LayerName(data, url, prefer); got != DefaultLayerName {
			t.Errorf("LayerName(prefer=%v) = %q, want %q", prefer, got, DefaultLayerName)
		}
	}
}

func TestFirstNotEmpty(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{[]string{"", "track", "MyRide"}, "track"},
		{[]string{"", "", "MyRide"}, "MyRide"},
		{[]string{"", ""}, ""},
		{nil, ""},
	}

	for _, tt := range tests {
		if got := firstNotEmpty(tt.in...); got != tt.want {
			t.Errorf("firstNotEmpty(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIntegrate_AddsNewLayerWhenNothingToMerge(t *testing.T) {
	reg := layer.NewRegistry()
	in := NewIntegrator(reg, mapPrefs{})

	res := in.Integrate(withWaypoint(newData(true, 3, 4), "Cafe"), Settings{ZoomAfterDownload: true}, "")

	if res.TrackMerged || res.MarkerMerged {
		t.Errorf("expected new layers, got %+v", res)
	}
	if res.Track.Name() != DefaultLayerName {
		t.Errorf("unexpected track name %q", res.Track.Name())
	}
	if res.Marker == nil || res.Marker.Name() != "Markers from "+DefaultLayerName {
		t.Fatalf("unexpected marker layer: %+v", res.Marker)
	}
	if res.Marker.FromLayer() != res.Track.ID() {
		t.Error("marker layer must point at its track layer")
	}
	if len(reg.Layers()) != 2 {
		t.Errorf("expected 2 layers, got %d", len(reg.Layers()))
	}
	if _, ok := reg.Viewport(); !ok {
		t.Error("expected zoom to the new layer")
	}
}

func TestIntegrate_MergesIntoActiveServerLayer(t *testing.T) {
	reg := layer.NewRegistry()
	other := layer.NewTrackLayer("other", newData(true, 0, 0))
	active := layer.NewTrackLayer("active", newData(true, 1, 1))
	reg.AddLayer(other, false)
	reg.AddLayer(active, false)

	in := NewIntegrator(reg, mapPrefs{PrefMergeWithLocal: false})
	res := in.Integrate(newData(true, 2, 2), Settings{NewLayer: false}, "")

	if !res.TrackMerged || res.Track != active {
		t.Fatalf("expected merge into the active layer, got %+v", res)
	}
	if active.Invalidations() != 1 {
		t.Errorf("expected exactly one invalidation, got %d", active.Invalidations())
	}
	if other.Invalidations() != 0 || other.Data().PointCount() != 1 {
		t.Error("non-active layer must be untouched")
	}
	if active.Data().PointCount() != 2 {
		t.Errorf("expected merged points, got %d", active.Data().PointCount())
	}
	if len(reg.Layers()) != 2 {
		t.Errorf("merge must not add layers, got %d", len(reg.Layers()))
	}
}

func TestIntegrate_ScansForServerLayerWhenActiveIsLocal(t *testing.T) {
	reg := layer.NewRegistry()
	local := layer.NewTrackLayer("local", newData(false, 0, 0))
	server1 := layer.NewTrackLayer("server1", newData(true, 1, 1))
	server2 := layer.NewTrackLayer("server2", newData(true, 2, 2))
	reg.AddLayer(server1, false)
	reg.AddLayer(server2, false)
	reg.AddLayer(local, false)

	in := NewIntegrator(reg, mapPrefs{})
	res := in.Integrate(newData(true, 5, 5), Settings{}, "")

	if res.Track != server1 {
		t.Errorf("expected merge into first server layer, got %s", res.Track.Name())
	}
	if local.Invalidations() != 0 {
		t.Error("local layer must not be merged into")
	}
}

func TestIntegrate_MergeWithLocalPreference(t *testing.T) {
	reg := layer.NewRegistry()
	local := layer.NewTrackLayer("local", newData(false, 0, 0))
	reg.AddLayer(local, false)

	res := NewIntegrator(reg, mapPrefs{}).Integrate(newData(true, 1, 1), Settings{}, "")
	if res.TrackMerged {
		t.Error("local layers must not be merged into by default")
	}

	reg = layer.NewRegistry()
	reg.AddLayer(local, false)
	res = NewIntegrator(reg, mapPrefs{PrefMergeWithLocal: true}).Integrate(newData(true, 1, 1), Settings{}, "")
	if !res.TrackMerged || res.Track != local {
		t.Error("mergeWithLocal must allow merging into local layers")
	}
}

func TestIntegrate_NewLayerSettingForcesAdd(t *testing.T) {
	reg := layer.NewRegistry()
	server := layer.NewTrackLayer("server", newData(true, 0, 0))
	reg.AddLayer(server, false)

	res := NewIntegrator(reg, mapPrefs{}).Integrate(newData(true, 1, 1), Settings{NewLayer: true}, "")

	if res.TrackMerged || res.Track == server {
		t.Error("NewLayer must add a fresh layer")
	}
	if server.Invalidations() != 0 {
		t.Error("existing layer must not be invalidated")
	}
	if len(reg.LayersOfKind(layer.KindTrack)) != 2 {
		t.Error("expected two track layers")
	}
}

func TestIntegrate_MarkerMergeOnlyIntoPairedLayer(t *testing.T) {
	reg := layer.NewRegistry()
	track := layer.NewTrackLayer("track", newData(true, 0, 0))
	unrelated := layer.NewMarkerLayer("unrelated", "some-other-track", nil)
	paired := layer.NewMarkerLayer("paired", track.ID(), []layer.Marker{{Text: "old"}})
	reg.AddLayer(unrelated, false)
	reg.AddLayer(track, false)
	reg.AddLayer(paired, false)

	in := NewIntegrator(reg, mapPrefs{})
	res := in.Integrate(withWaypoint(newData(true, 1, 1), "new"), Settings{}, "")

	if res.Track != track || !res.TrackMerged {
		t.Fatalf("expected track merge, got %+v", res)
	}
	if res.Marker != paired || !res.MarkerMerged {
		t.Fatalf("expected marker merge into the paired layer, got %+v", res.Marker)
	}
	if len(paired.Markers()) != 2 || paired.Invalidations() != 1 {
		t.Errorf("paired layer not merged: %d markers, %d invalidations", len(paired.Markers()), paired.Invalidations())
	}
	if len(unrelated.Markers()) != 0 || unrelated.Invalidations() != 0 {
		t.Error("unrelated marker layer must stay untouched")
	}
}

func TestIntegrate_NewMarkerLayerFollowsMergedTrack(t *testing.T) {
	reg := layer.NewRegistry()
	track := layer.NewTrackLayer("track", newData(true, 0, 0))
	reg.AddLayer(track, false)

	res := NewIntegrator(reg, mapPrefs{}).Integrate(withWaypoint(newData(true, 1, 1), "poi"), Settings{}, "")

	if res.Marker == nil || res.MarkerMerged {
		t.Fatalf("expected a new marker layer, got %+v", res)
	}
	if res.Marker.FromLayer() != track.ID() {
		t.Error("new marker layer must be paired with the merged track layer")
	}

	// A second download now finds the pair.
	res = NewIntegrator(reg, mapPrefs{}).Integrate(withWaypoint(newData(true, 2, 2), "poi2"), Settings{}, "")
	if !res.MarkerMerged {
		t.Error("second download should merge into the paired marker layer")
	}
}

func TestIntegrate_AutoMarkersDisabled(t *testing.T) {
	reg := layer.NewRegistry()
	res := NewIntegrator(reg, mapPrefs{PrefMakeAutoMarkers: false}).
		Integrate(withWaypoint(newData(true, 1, 1), "poi"), Settings{}, "")

	if res.Marker != nil {
		t.Error("marker layer must not be created when auto markers are off")
	}
	if len(reg.LayersOfKind(layer.KindMarker)) != 0 {
		t.Error("registry must hold no marker layer")
	}
}

func TestIntegrate_ActivatedTrackStaysMergeTarget(t *testing.T) {
	reg := layer.NewRegistry()
	s1 := layer.NewTrackLayer("s1", newData(true, 0, 0))
	s2 := layer.NewTrackLayer("s2", newData(true, 1, 1))
	reg.AddLayer(s1, false)
	reg.AddLayer(s2, false)
	if err := reg.SetActiveLayer(s2.ID()); err != nil {
		t.Fatalf("failed to activate: %v", err)
	}

	in := NewIntegrator(reg, mapPrefs{})
	for i, name := range []string{"first", "second"} {
		res := in.Integrate(withWaypoint(newData(true, float64(i+2), 2), name), Settings{}, "")
		if res.Track != s2 || !res.TrackMerged {
			t.Fatalf("%s download: expected merge into s2, got %s", name, res.Track.Name())
		}
		if active := reg.ActiveLayer(); active != s2 {
			t.Fatalf("%s download: active layer changed to %s", name, active.Name())
		}
	}

	if s1.Invalidations() != 0 || s1.Data().PointCount() != 1 {
		t.Error("s1 must be untouched")
	}
	if s2.Data().PointCount() != 3 {
		t.Errorf("expected 3 points in s2, got %d", s2.Data().PointCount())
	}
	if markers := reg.LayersOfKind(layer.KindMarker); len(markers) != 1 {
		t.Errorf("expected one marker layer paired with s2, got %d", len(markers))
	}
}

func TestIntegrate_ConcurrentCallsAreSerialized(t *testing.T) {
	reg := layer.NewRegistry()
	in := NewIntegrator(reg, mapPrefs{})

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in.Integrate(withWaypoint(newData(true, float64(i%80), 1), fmt.Sprintf("poi-%d", i)), Settings{}, "")
		}(i)
	}
	wg.Wait()

	tracks := reg.LayersOfKind(layer.KindTrack)
	if len(tracks) != 1 {
		t.Fatalf("expected every download to merge into one track layer, got %d", len(tracks))
	}
	if got := tracks[0].(*layer.TrackLayer).Data().PointCount(); got != n {
		t.Errorf("expected %d points, got %d", n, got)
	}

	markers := reg.LayersOfKind(layer.KindMarker)
	if len(markers) != 1 {
		t.Fatalf("expected one paired marker layer, got %d", len(markers))
	}
	if got := len(markers[0].(*layer.MarkerLayer).Markers()); got != n {
		t.Errorf("expected %d markers, got %d", n, got)
	}
}
