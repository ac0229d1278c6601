package layer

import (
	"log/slog"

	"github.com/fly-io/gpsdl/pkg/gpx"
)

// Imported is the output of Import: a track layer, an optional marker layer
// and a task to run once both are placed in the registry.
type Imported struct {
	Track         *TrackLayer
	Marker        *MarkerLayer
	PostLayerTask func()
}

// Import builds the layers for data. A marker layer is produced only when
// makeMarkers is set and the data carries waypoints.
func Import(data *gpx.TrackData, name, markerName string, makeMarkers bool) *Imported {
	track := NewTrackLayer(name, data)
	out := &Imported{Track: track}

	if makeMarkers && data.HasWaypoints() {
		markers := make([]Marker, 0, len(data.Waypoints))
		for _, w := range data.Waypoints {
			markers = append(markers, Marker{Point: w.Point, Text: w.Name, Description: w.Description})
		}
		out.Marker = NewMarkerLayer(markerName, track.ID(), markers)
	}

	clean := data.WasCleanlyParsed
	out.PostLayerTask = func() {
		if !clean {
			slog.Warn("gpx_partially_parsed", "layer", name, "points", data.PointCount(),
				"detail", "only a part of the data is available")
		}
	}

	return out
}
