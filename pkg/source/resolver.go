package source

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/fly-io/gpsdl/pkg/gpx"
)

// TraceDataURL is the canonical download location of a trace by id.
const TraceDataURL = "https://www.openstreetmap.org/trace/%s/data"

// Kind tells how a descriptor must be fetched.
type Kind int

const (
	KindURL Kind = iota + 1
	KindBounds
)

func (k Kind) String() string {
	switch k {
	case KindURL:
		return "url"
	case KindBounds:
		return "bbox"
	default:
		return "unknown"
	}
}

// Descriptor is a resolved trace source.
type Descriptor struct {
	Kind   Kind
	URL    string     // set for KindURL
	Bounds gpx.Bounds // set for KindBounds
}

var bboxSplitter = regexp.MustCompile(`\?|=|&`)

// Resolve classifies url. The boolean is false when no pattern applies.
func Resolve(url string) (Descriptor, bool) {
	for _, p := range []Pattern{UserTraceID, EditTraceID} {
		if m := p.submatch(url); m != nil {
			mapped := fmt.Sprintf(TraceDataURL, m[2])
			slog.Debug("source_rewritten", "url", url, "mapped", mapped, "pattern", p.Name)
			return Resolve(mapped)
		}
	}

	for _, p := range []Pattern{TraceID, ExternalGPXScript, ExternalGPXFile, TaskingManager} {
		if p.Matches(url) {
			return Descriptor{Kind: KindURL, URL: url}, true
		}
	}

	if TrackpointsBBox.Matches(url) {
		tokens := bboxSplitter.Split(url, -1)
		for i := 0; i < len(tokens)-1; i++ {
			if tokens[i] != "bbox" {
				continue
			}
			b, err := gpx.ParseBounds(tokens[i+1], ",")
			if err != nil {
				slog.Warn("source_bbox_invalid", "url", url, "error", err)
				return Descriptor{}, false
			}
			return Descriptor{Kind: KindBounds, Bounds: b}, true
		}
	}

	return Descriptor{}, false
}

// FileName returns the .gpx base name of a direct file URL, or "".
func FileName(url string) string {
	if m := ExternalGPXFile.submatch(url); m != nil {
		return m[1]
	}
	return ""
}

// MappedURL returns the canonical trace URL for user and edit trace links,
// and url unchanged otherwise.
func MappedURL(url string) string {
	for _, p := range []Pattern{UserTraceID, EditTraceID} {
		if m := p.submatch(url); m != nil {
			return fmt.Sprintf(TraceDataURL, m[2])
		}
	}
	return url
}
