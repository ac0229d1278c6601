// Package source classifies URL strings into gps trace sources.
package source

import "regexp"

// Pattern is a named, fully anchored URL pattern.
type Pattern struct {
	Name string
	re   *regexp.Regexp
}

// Matches reports whether the whole url matches the pattern.
func (p Pattern) Matches(url string) bool {
	return p.re.MatchString(url)
}

func (p Pattern) submatch(url string) []string {
	return p.re.FindStringSubmatch(url)
}

func (p Pattern) String() string {
	return p.re.String()
}

func newPattern(name, expr string) Pattern {
	return Pattern{Name: name, re: regexp.MustCompile(`^(?:` + expr + `)$`)}
}

var (
	// TraceID is the canonical "trace data by id" URL.
	TraceID = newPattern("trace_id", `.*(osm|openstreetmap)\.org/trace/\d+/data`)
	// UserTraceID is a trace page under a user profile; group 2 is the id.
	UserTraceID = newPattern("user_trace_id", `.*(osm|openstreetmap)\.org/user/[^/]+/traces/(\d+)`)
	// EditTraceID is the editor deep link for a trace; group 2 is the id.
	EditTraceID = newPattern("edit_trace_id", `.*(osm|openstreetmap)\.org/edit/?\?gpx=(\d+)(#.*)?`)
	// TrackpointsBBox is an API trackpoints query with a bbox parameter.
	TrackpointsBBox = newPattern("trackpoints_bbox", `.*/api/0\.6/trackpoints\?bbox=.*`)
	// ExternalGPXScript is a script that exports gpx.
	ExternalGPXScript = newPattern("external_gpx_script", `.*exportgpx.*`)
	// ExternalGPXFile is a direct .gpx file; group 1 is the base name.
	ExternalGPXFile = newPattern("external_gpx_file", `.*/([^/]*)\.gpx`)
	// TaskingManager is a tasking manager project export.
	TaskingManager = newPattern("tasking_manager", `.*/api/v\d+/projects?/\d+/tasks_as_gpx.*`)
)

// Patterns returns every recognised pattern in resolution order.
func Patterns() []Pattern {
	return []Pattern{
		UserTraceID, EditTraceID,
		TraceID, ExternalGPXScript, ExternalGPXFile, TaskingManager,
		TrackpointsBBox,
	}
}
