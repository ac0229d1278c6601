// Package gpstask downloads gps traces in the background and merges the
// result into a layer registry.
//
// A Task is the public entry point. Each Download or LoadURL call starts a new
// job on the injected executor; the job fetches, then always runs a finish
// step that hands the data (or nothing, on failure or cancellation) to the
// Integrator.
package gpstask

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fly-io/gpsdl/pkg/errors"
	"github.com/fly-io/gpsdl/pkg/gpx"
	"github.com/fly-io/gpsdl/pkg/source"
	"github.com/fly-io/gpsdl/pkg/worker"
)

// Title is the user-facing name of the task.
const Title = "Download GPS"

// Settings are the caller's download options.
type Settings struct {
	// NewLayer forces a new layer instead of merging into an existing one.
	NewLayer bool
	// ZoomAfterDownload moves the viewport to a newly added layer.
	ZoomAfterDownload bool
}

// Fetcher retrieves raw track data. Both calls must return promptly once ctx
// is cancelled.
type Fetcher interface {
	FetchByBounds(ctx context.Context, bounds gpx.Bounds) (*gpx.TrackData, error)
	FetchByURL(ctx context.Context, url string) (*gpx.TrackData, error)
}

// Task downloads gps data by bounding box or URL.
type Task struct {
	fetcher    Fetcher
	executor   worker.Executor
	integrator *Integrator

	mu      sync.Mutex
	current *job
}

// New creates a task. Jobs are submitted to executor and their results are
// merged through integrator.
func New(fetcher Fetcher, executor worker.Executor, integrator *Integrator) *Task {
	return &Task{
		fetcher:    fetcher,
		executor:   executor,
		integrator: integrator,
	}
}

// Download fetches the trackpoints inside bounds.
func (t *Task) Download(settings Settings, bounds gpx.Bounds) *Handle {
	return t.download(settings, bounds, "")
}

func (t *Task) download(settings Settings, bounds gpx.Bounds, url string) *Handle {
	slog.Info("download_bbox_requested", "bbox", bounds.String(), "new_layer", settings.NewLayer)
	return t.submit(newJob(settings, url, func(ctx context.Context) (*gpx.TrackData, error) {
		return t.fetcher.FetchByBounds(ctx, bounds)
	}, t.integrator))
}

// LoadURL fetches the trace behind url. It returns ErrUnrecognizedSource and
// starts nothing when url is not a known trace source.
func (t *Task) LoadURL(settings Settings, url string) (*Handle, error) {
	d, ok := source.Resolve(url)
	if !ok {
		slog.Warn("load_url_unrecognized", "url", url)
		return nil, errors.Wrap(errors.ErrUnrecognizedSource, url)
	}

	// User and edit trace links are named after their canonical data URL.
	mapped := source.MappedURL(url)
	if d.Kind == source.KindBounds {
		return t.download(settings, d.Bounds, mapped), nil
	}

	slog.Info("download_url_requested", "url", mapped, "new_layer", settings.NewLayer)
	return t.submit(newJob(settings, mapped, func(ctx context.Context) (*gpx.TrackData, error) {
		return t.fetcher.FetchByURL(ctx, d.URL)
	}, t.integrator)), nil
}

func (t *Task) submit(j *job) *Handle {
	t.mu.Lock()
	t.current = j
	t.mu.Unlock()

	t.executor.Submit(j.run)
	return &Handle{j: j}
}

// Cancel aborts the most recently started download.
func (t *Task) Cancel() {
	t.mu.Lock()
	j := t.current
	t.mu.Unlock()

	if j != nil {
		j.cancel()
	}
}

// ErrorMessage returns the remembered error of the latest download, or "".
func (t *Task) ErrorMessage() string {
	t.mu.Lock()
	j := t.current
	t.mu.Unlock()

	if j == nil {
		return ""
	}
	if err := j.error(); err != nil {
		return err.Error()
	}
	return ""
}

// DownloadedData returns the data fetched by the latest download, if any.
func (t *Task) DownloadedData() *gpx.TrackData {
	t.mu.Lock()
	j := t.current
	t.mu.Unlock()

	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rawData
}

// DownloadedBounds returns the area covered by the latest download alone,
// not by the layer it was merged into.
func (t *Task) DownloadedBounds() (gpx.Bounds, bool) {
	t.mu.Lock()
	j := t.current
	t.mu.Unlock()

	if j == nil {
		return gpx.Bounds{}, false
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result.Downloaded, j.result.HasDownloaded
}
