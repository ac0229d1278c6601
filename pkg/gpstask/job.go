package gpstask

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/fly-io/gpsdl/pkg/errors"
	"github.com/fly-io/gpsdl/pkg/gpx"
)

// State is the lifecycle position of a single download.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCancelled
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCancelled:
		return "cancelled"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// IsTerminal reports whether the state can no longer change.
func (s State) IsTerminal() bool {
	return s == StateCancelled || s == StateCompleted
}

// Outcome is how a finished download ended. Exactly one applies.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSuccess
	OutcomeFailure
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "pending"
	}
}

type fetchFunc func(ctx context.Context) (*gpx.TrackData, error)

// job is one fetch plus its finish step. run and finish execute once.
type job struct {
	settings   Settings
	url        string
	fetch      fetchFunc
	integrator *Integrator

	ctx      context.Context
	cancelFn context.CancelFunc
	canceled atomic.Bool
	state    atomic.Int32
	done     chan struct{}

	mu      sync.Mutex
	rawData *gpx.TrackData
	err     error
	outcome Outcome
	result  Result
}

func newJob(settings Settings, url string, fetch fetchFunc, integrator *Integrator) *job {
	ctx, cancel := context.WithCancel(context.Background())
	return &job{
		settings:   settings,
		url:        url,
		fetch:      fetch,
		integrator: integrator,
		ctx:        ctx,
		cancelFn:   cancel,
		done:       make(chan struct{}),
	}
}

// run is the body submitted to the executor.
func (j *job) run() {
	if !j.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return
	}
	defer close(j.done)
	defer j.cancelFn()
	defer j.finish()

	j.realRun()
}

func (j *job) realRun() {
	if j.canceled.Load() {
		slog.Info("download_skipped", "url", j.url, "reason", "cancelled_before_start")
		return
	}

	slog.Info("download_started", "url", j.url)
	data, err := j.fetch(j.ctx)
	if err != nil {
		if j.canceled.Load() {
			slog.Info("download_cancelled", "url", j.url, "error", err)
			return
		}
		slog.Error("download_failed", "url", j.url, "error", err)
		j.mu.Lock()
		j.err = errors.Transport("fetch", j.url, err)
		j.mu.Unlock()
		return
	}

	slog.Info("download_complete", "url", j.url, "points", data.PointCount(), "waypoints", len(data.Waypoints))
	j.mu.Lock()
	j.rawData = data
	j.mu.Unlock()
}

// finish records the outcome and integrates the data. It never panics.
func (j *job) finish() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("download_finish_panic", "url", j.url, "panic", r)
		}
	}()

	j.mu.Lock()
	data, err := j.rawData, j.err
	switch {
	case data != nil:
		j.outcome = OutcomeSuccess
	case j.canceled.Load():
		j.outcome = OutcomeCancelled
	case err != nil:
		j.outcome = OutcomeFailure
	default:
		j.outcome = OutcomeFailure
		j.err = errors.Transport("fetch", j.url, errors.New("no data returned"))
	}
	outcome := j.outcome
	j.mu.Unlock()

	// Data that arrived before a late cancel is still integrated.
	if outcome == OutcomeCancelled {
		j.state.Store(int32(StateCancelled))
	} else {
		j.state.Store(int32(StateCompleted))
	}

	result := j.integrator.Integrate(data, j.settings, j.url)

	j.mu.Lock()
	j.result = result
	j.mu.Unlock()
}

// cancel flags the job and aborts any in-flight fetch.
func (j *job) cancel() {
	if j.canceled.Swap(true) {
		return
	}
	slog.Info("download_cancel_requested", "url", j.url, "state", State(j.state.Load()))
	j.cancelFn()
}

func (j *job) error() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Handle lets callers observe one submitted download.
type Handle struct {
	j *job
}

// Done is closed once the finish step has run.
func (h *Handle) Done() <-chan struct{} {
	return h.j.done
}

// Wait blocks until the download finished or ctx ends. It returns the
// remembered transport error, nil for success and cancellation.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.j.done:
		return h.j.error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	return State(h.j.state.Load())
}

// Outcome returns how the download ended, or OutcomePending while running.
func (h *Handle) Outcome() Outcome {
	h.j.mu.Lock()
	defer h.j.mu.Unlock()
	return h.j.outcome
}

// Result returns the layers placed by the finish step.
func (h *Handle) Result() Result {
	h.j.mu.Lock()
	defer h.j.mu.Unlock()
	return h.j.result
}
