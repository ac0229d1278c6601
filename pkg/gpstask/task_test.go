package gpstask

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fly-io/gpsdl/pkg/errors"
	"github.com/fly-io/gpsdl/pkg/gpx"
	"github.com/fly-io/gpsdl/pkg/layer"
	"github.com/fly-io/gpsdl/pkg/worker"
)

type fakeFetcher struct {
	mu       sync.Mutex
	data     *gpx.TrackData
	err      error
	block    bool
	started  chan struct{}
	calls    atomic.Int32
	lastURL  string
	lastBBox gpx.Bounds
}

func (f *fakeFetcher) fetch(ctx context.Context) (*gpx.TrackData, error) {
	f.calls.Add(1)
	if f.started != nil {
		close(f.started)
	}
	if f.block {
		<-ctx.Done()
		return nil, errors.Transport("url", "", ctx.Err())
	}
	return f.data, f.err
}

func (f *fakeFetcher) FetchByBounds(ctx context.Context, b gpx.Bounds) (*gpx.TrackData, error) {
	f.mu.Lock()
	f.lastBBox = b
	f.mu.Unlock()
	return f.fetch(ctx)
}

func (f *fakeFetcher) FetchByURL(ctx context.Context, url string) (*gpx.TrackData, error) {
	f.mu.Lock()
	f.lastURL = url
	f.mu.Unlock()
	return f.fetch(ctx)
}

// manualExecutor holds submitted work until run is called.
type manualExecutor struct {
	jobs []func()
}

func (e *manualExecutor) Submit(fn func()) { e.jobs = append(e.jobs, fn) }

func (e *manualExecutor) run() {
	for _, fn := range e.jobs {
		fn()
	}
	e.jobs = nil
}

type panickingRegistry struct{ *layer.Registry }

func (panickingRegistry) AddLayer(layer.Layer, bool) { panic("boom") }

func newTestTask(f Fetcher, exec worker.Executor) (*Task, *layer.Registry) {
	reg := layer.NewRegistry()
	return New(f, exec, NewIntegrator(reg, mapPrefs{})), reg
}

func TestLoadURL_Success(t *testing.T) {
	f := &fakeFetcher{data: newData(false, 1, 2)}
	task, reg := newTestTask(f, worker.Inline{})

	h, err := task.LoadURL(Settings{}, "https://example.com/files/track.gpx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("wait returned error: %v", err)
	}

	if h.State() != StateCompleted || h.Outcome() != OutcomeSuccess {
		t.Errorf("unexpected state %s / outcome %s", h.State(), h.Outcome())
	}
	if task.ErrorMessage() != "" {
		t.Errorf("expected no error message, got %q", task.ErrorMessage())
	}
	if f.lastURL != "https://example.com/files/track.gpx" {
		t.Errorf("fetched wrong url: %s", f.lastURL)
	}
	if len(reg.Layers()) != 1 || h.Result().Track == nil {
		t.Errorf("expected one new layer, got %d", len(reg.Layers()))
	}
	if task.DownloadedData() == nil {
		t.Error("expected downloaded data to be remembered")
	}
	if b, ok := task.DownloadedBounds(); !ok || b.MinLat != 1 || b.MinLon != 2 {
		t.Errorf("unexpected downloaded bounds %+v (%v)", b, ok)
	}
}

func TestLoadURL_UserTraceIsRewritten(t *testing.T) {
	f := &fakeFetcher{data: newData(true, 1, 1)}
	task, _ := newTestTask(f, worker.Inline{})

	h, err := task.LoadURL(Settings{}, "https://www.openstreetmap.org/user/bob/traces/4242")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-h.Done()

	if f.lastURL != "https://www.openstreetmap.org/trace/4242/data" {
		t.Errorf("expected canonical trace url, got %s", f.lastURL)
	}
}

func TestLoadURL_BBox(t *testing.T) {
	f := &fakeFetcher{data: newData(true, 1, 1)}
	task, _ := newTestTask(f, worker.Inline{})

	h, err := task.LoadURL(Settings{}, "https://api.openstreetmap.org/api/0.6/trackpoints?bbox=1,2,3,4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-h.Done()

	want := gpx.Bounds{MinLon: 1, MinLat: 2, MaxLon: 3, MaxLat: 4}
	if f.lastBBox != want {
		t.Errorf("fetched bounds %+v, want %+v", f.lastBBox, want)
	}
}

func TestLoadURL_Unrecognized(t *testing.T) {
	f := &fakeFetcher{}
	exec := &manualExecutor{}
	task, _ := newTestTask(f, exec)

	h, err := task.LoadURL(Settings{}, "https://example.com/page.html")
	if h != nil {
		t.Error("expected no handle for an unrecognized url")
	}
	if !errors.Is(err, errors.ErrUnrecognizedSource) {
		t.Errorf("expected ErrUnrecognizedSource, got %v", err)
	}
	if len(exec.jobs) != 0 || f.calls.Load() != 0 {
		t.Error("no task may be started for an unrecognized url")
	}
	if task.ErrorMessage() != "" {
		t.Error("no error may be remembered without a task")
	}
}

func TestDownload_FailureIsRemembered(t *testing.T) {
	f := &fakeFetcher{err: errors.New("connection refused")}
	task, reg := newTestTask(f, worker.Inline{})

	h := task.Download(Settings{}, gpx.Bounds{MinLon: 1, MinLat: 2, MaxLon: 3, MaxLat: 4})
	err := h.Wait(context.Background())

	if !errors.IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if !strings.Contains(task.ErrorMessage(), "connection refused") {
		t.Errorf("unexpected error message %q", task.ErrorMessage())
	}
	if h.Outcome() != OutcomeFailure || h.State() != StateCompleted {
		t.Errorf("unexpected state %s / outcome %s", h.State(), h.Outcome())
	}
	if len(reg.Layers()) != 0 {
		t.Error("failed download must not touch the registry")
	}
}

func TestCancel_BeforeFetchStarts(t *testing.T) {
	f := &fakeFetcher{data: newData(true, 1, 1)}
	exec := &manualExecutor{}
	task, reg := newTestTask(f, exec)

	h := task.Download(Settings{}, gpx.Bounds{})
	task.Cancel()
	exec.run()

	if err := h.Wait(context.Background()); err != nil {
		t.Errorf("cancelled task must not report an error, got %v", err)
	}
	if f.calls.Load() != 0 {
		t.Error("fetch must not run after cancel")
	}
	if h.State() != StateCancelled || h.Outcome() != OutcomeCancelled {
		t.Errorf("unexpected state %s / outcome %s", h.State(), h.Outcome())
	}
	if task.ErrorMessage() != "" {
		t.Errorf("expected no remembered error, got %q", task.ErrorMessage())
	}
	if len(reg.Layers()) != 0 {
		t.Error("cancelled task must not touch the registry")
	}
}

func TestCancel_DuringFetchSuppressesError(t *testing.T) {
	f := &fakeFetcher{block: true, started: make(chan struct{})}
	pool := worker.NewPool(1, 1)
	defer pool.Shutdown()
	task, reg := newTestTask(f, pool)

	h, err := task.LoadURL(Settings{}, "https://www.openstreetmap.org/trace/1/data")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-f.started:
	case <-time.After(5 * time.Second):
		t.Fatal("fetch did not start")
	}
	task.Cancel()
	task.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Wait(ctx); err != nil {
		t.Errorf("expected nil after cancel, got %v", err)
	}
	if h.Outcome() != OutcomeCancelled {
		t.Errorf("expected cancelled outcome, got %s", h.Outcome())
	}
	if task.ErrorMessage() != "" {
		t.Errorf("expected no remembered error, got %q", task.ErrorMessage())
	}
	if len(reg.Layers()) != 0 {
		t.Error("cancelled task must not touch the registry")
	}
}

func TestFinish_RecoversFromIntegratorPanic(t *testing.T) {
	f := &fakeFetcher{data: newData(true, 1, 1)}
	reg := panickingRegistry{layer.NewRegistry()}
	task := New(f, worker.Inline{}, NewIntegrator(reg, mapPrefs{}))

	h := task.Download(Settings{}, gpx.Bounds{})

	select {
	case <-h.Done():
	default:
		t.Fatal("handle must be done after a panicking finish")
	}
	if h.State() != StateCompleted {
		t.Errorf("unexpected state %s", h.State())
	}
}

func TestWait_HonoursContext(t *testing.T) {
	f := &fakeFetcher{}
	exec := &manualExecutor{}
	task, _ := newTestTask(f, exec)

	h := task.Download(Settings{}, gpx.Bounds{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if h.State() != StateIdle {
		t.Errorf("job must still be idle, got %s", h.State())
	}
}

func TestCancel_WithoutTask(t *testing.T) {
	task, _ := newTestTask(&fakeFetcher{}, worker.Inline{})
	task.Cancel()
	if task.ErrorMessage() != "" {
		t.Error("expected empty error message")
	}
	if _, ok := task.DownloadedBounds(); ok {
		t.Error("expected no bounds")
	}
}

func TestDownloadedBounds_AfterMerge(t *testing.T) {
	f := &fakeFetcher{data: newData(true, 50, 50)}
	task, reg := newTestTask(f, worker.Inline{})

	existing := layer.NewTrackLayer("existing", newData(true, 0, 0))
	reg.AddLayer(existing, false)

	h := task.Download(Settings{}, gpx.Bounds{MinLat: 49, MinLon: 49, MaxLat: 51, MaxLon: 51})
	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("wait returned error: %v", err)
	}
	if res := h.Result(); !res.TrackMerged || res.Track != existing {
		t.Fatalf("expected merge into the existing layer, got %+v", res)
	}

	want := gpx.Bounds{MinLat: 50, MinLon: 50, MaxLat: 50, MaxLon: 50}
	if b, ok := task.DownloadedBounds(); !ok || b != want {
		t.Errorf("DownloadedBounds = %+v (%v), want %+v", b, ok, want)
	}
	if b, _ := existing.Bounds(); b == want {
		t.Error("merged layer bounds should still include the old data")
	}
}
