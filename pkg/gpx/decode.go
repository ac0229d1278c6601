package gpx

import (
	"io"

	"github.com/fly-io/gpsdl/pkg/errors"
	gpxgo "github.com/tkrajina/gpxgo/gpx"
)

// Decode reads a GPX document into TrackData. Routes are folded into tracks
// with a single segment each.
func Decode(r io.Reader) (*TrackData, error) {
	doc, err := gpxgo.Parse(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse gpx")
	}

	data := NewTrackData()
	setMeta(data, MetaName, doc.Name)
	setMeta(data, MetaDesc, doc.Description)
	setMeta(data, MetaAuthor, doc.AuthorName)
	setMeta(data, MetaKeywords, doc.Keywords)
	setMeta(data, MetaCreator, doc.Creator)

	for _, trk := range doc.Tracks {
		t := Track{Name: trk.Name}
		for _, seg := range trk.Segments {
			s := Segment{Points: make([]Point, 0, len(seg.Points))}
			for _, p := range seg.Points {
				s.Points = append(s.Points, toPoint(p))
			}
			t.Segments = append(t.Segments, s)
		}
		data.Tracks = append(data.Tracks, t)
	}

	for _, rte := range doc.Routes {
		s := Segment{Points: make([]Point, 0, len(rte.Points))}
		for _, p := range rte.Points {
			s.Points = append(s.Points, toPoint(p))
		}
		data.Tracks = append(data.Tracks, Track{Name: rte.Name, Segments: []Segment{s}})
	}

	for _, w := range doc.Waypoints {
		data.Waypoints = append(data.Waypoints, Waypoint{
			Point:       toPoint(w),
			Name:        w.Name,
			Description: w.Description,
		})
	}

	return data, nil
}

func toPoint(p gpxgo.GPXPoint) Point {
	pt := Point{Lat: p.Latitude, Lon: p.Longitude}
	if !p.Elevation.Null() {
		pt.Elevation = p.Elevation.Value()
		pt.HasElevation = true
	}
	return pt
}

func setMeta(d *TrackData, key, value string) {
	if value != "" {
		d.Metadata[key] = value
	}
}
