package gpx

import (
	"fmt"
	"strconv"
	"strings"
)

// Bounds is a latitude/longitude box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// ParseBounds parses "left,bottom,right,top" (min lon, min lat, max lon, max
// lat) using sep as the separator.
func ParseBounds(s, sep string) (Bounds, error) {
	parts := strings.Split(s, sep)
	if len(parts) != 4 {
		return Bounds{}, fmt.Errorf("bounds %q: expected 4 values, got %d", s, len(parts))
	}

	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Bounds{}, fmt.Errorf("bounds %q: value %d: %w", s, i+1, err)
		}
		v[i] = f
	}

	b := Bounds{MinLon: v[0], MinLat: v[1], MaxLon: v[2], MaxLat: v[3]}
	if err := b.Validate(); err != nil {
		return Bounds{}, err
	}
	return b, nil
}

// Validate checks coordinate ranges.
func (b Bounds) Validate() error {
	for _, lat := range []float64{b.MinLat, b.MaxLat} {
		if lat < -90 || lat > 90 {
			return fmt.Errorf("bounds: invalid latitude %v", lat)
		}
	}
	for _, lon := range []float64{b.MinLon, b.MaxLon} {
		if lon < -180 || lon > 180 {
			return fmt.Errorf("bounds: invalid longitude %v", lon)
		}
	}
	return nil
}

// Extend grows the box to include lat/lon.
func (b *Bounds) Extend(lat, lon float64) {
	b.MinLat = min(b.MinLat, lat)
	b.MaxLat = max(b.MaxLat, lat)
	b.MinLon = min(b.MinLon, lon)
	b.MaxLon = max(b.MaxLon, lon)
}

// Union returns the box enclosing b and o.
func (b Bounds) Union(o Bounds) Bounds {
	b.Extend(o.MinLat, o.MinLon)
	b.Extend(o.MaxLat, o.MaxLon)
	return b
}

// String formats the box in the trackpoints API bbox order.
func (b Bounds) String() string {
	return strings.Join([]string{
		strconv.FormatFloat(b.MinLon, 'f', -1, 64),
		strconv.FormatFloat(b.MinLat, 'f', -1, 64),
		strconv.FormatFloat(b.MaxLon, 'f', -1, 64),
		strconv.FormatFloat(b.MaxLat, 'f', -1, 64),
	}, ",")
}
