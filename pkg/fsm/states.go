package fsm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fly-io/gpsdl/pkg/db"
	"github.com/fly-io/gpsdl/pkg/errors"
	"github.com/fly-io/gpsdl/pkg/gpstask"
	"github.com/fly-io/gpsdl/pkg/gpx"
	"github.com/fly-io/gpsdl/pkg/layer"
	"github.com/fly-io/gpsdl/pkg/source"
	"github.com/superfly/fsm"
)

// Store persists the layer registry between transitions
type Store interface {
	SaveRegistry(ctx context.Context, reg *layer.Registry) error
}

var _ Store = (*db.Repository)(nil)

// Machine holds dependencies for FSM transitions
type Machine struct {
	store      Store
	registry   *layer.Registry
	task       *gpstask.Task
	maxRetries int
}

// NewMachine creates a new FSM machine with dependencies. task must integrate
// into registry.
func NewMachine(store Store, registry *layer.Registry, task *gpstask.Task, maxRetries int) *Machine {
	return &Machine{
		store:      store,
		registry:   registry,
		task:       task,
		maxRetries: maxRetries,
	}
}

// Registry returns the registry downloads are integrated into
func (m *Machine) Registry() *layer.Registry {
	return m.registry
}

func (m *Machine) checkRetries(ctx context.Context, state, src string) error {
	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		slog.Error("max_retries_exceeded", "state", state, "source", src, "max_retries", m.maxRetries)
		return fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}
	return nil
}

func response(req *fsm.Request[DownloadRequest, DownloadResponse]) *DownloadResponse {
	if req.W.Msg == nil {
		return &DownloadResponse{}
	}
	return req.W.Msg
}

// handleResolve checks the request and works out what will be fetched
func (m *Machine) handleResolve(ctx context.Context, req *fsm.Request[DownloadRequest, DownloadResponse]) (*fsm.Response[DownloadResponse], error) {
	slog.Info("fsm_state_resolve", "source", req.Msg.Source, "bbox", req.Msg.BBox)

	if err := m.checkRetries(ctx, StateResolve, req.Msg.Source); err != nil {
		return nil, err
	}

	resp := response(req)
	if err := m.resolve(req.Msg, resp); err != nil {
		resp.Status = StatusFailed
		resp.ErrorMessage = err.Error()
		return nil, fsm.Abort(err)
	}

	return fsm.NewResponse(resp), nil
}

// handleDownload runs one download task and waits for it
func (m *Machine) handleDownload(ctx context.Context, req *fsm.Request[DownloadRequest, DownloadResponse]) (*fsm.Response[DownloadResponse], error) {
	slog.Info("fsm_state_download", "source", req.Msg.Source, "bbox", req.Msg.BBox)

	if err := m.checkRetries(ctx, StateDownload, req.Msg.Source); err != nil {
		return nil, err
	}

	resp := response(req)
	if err := m.download(ctx, req.Msg, resp); err != nil {
		if errors.IsTransport(err) {
			slog.Warn("download_retry_scheduled", "source", req.Msg.Source, "error", err)
			return nil, err
		}
		resp.Status = StatusFailed
		resp.ErrorMessage = err.Error()
		if msg := m.task.ErrorMessage(); msg != "" {
			resp.ErrorMessage = msg
		}
		return nil, fsm.Abort(err)
	}

	return fsm.NewResponse(resp), nil
}

// handlePersist saves the registry so later runs see the new layers
func (m *Machine) handlePersist(ctx context.Context, req *fsm.Request[DownloadRequest, DownloadResponse]) (*fsm.Response[DownloadResponse], error) {
	slog.Info("fsm_state_persist", "source", req.Msg.Source)

	if err := m.checkRetries(ctx, StatePersist, req.Msg.Source); err != nil {
		return nil, err
	}

	if err := m.store.SaveRegistry(ctx, m.registry); err != nil {
		slog.Error("registry_persist_failed", "error", err)
		return nil, errors.Wrap(err, "failed to persist registry")
	}

	return fsm.NewResponse(response(req)), nil
}

// handleComplete marks the download as complete
func (m *Machine) handleComplete(ctx context.Context, req *fsm.Request[DownloadRequest, DownloadResponse]) (*fsm.Response[DownloadResponse], error) {
	resp := response(req)
	resp.Status = StatusComplete

	slog.Info("fsm_complete",
		"source", req.Msg.Source,
		"track_layer", resp.TrackLayerID,
		"merged", resp.Merged,
		"points", resp.Points)

	return fsm.NewResponse(resp), nil
}

func (m *Machine) resolve(req *DownloadRequest, resp *DownloadResponse) error {
	switch {
	case req.Source != "" && req.BBox != "":
		return errors.New("source and bbox are mutually exclusive")
	case req.Source != "":
		d, ok := source.Resolve(req.Source)
		if !ok {
			slog.Warn("source_unrecognized", "source", req.Source)
			return errors.Wrap(errors.ErrUnrecognizedSource, req.Source)
		}
		resp.SourceKind = d.Kind.String()
		if d.Kind == source.KindBounds {
			resp.Bounds = d.Bounds.String()
		} else {
			resp.ResolvedURL = d.URL
		}
	case req.BBox != "":
		b, err := gpx.ParseBounds(req.BBox, ",")
		if err != nil {
			slog.Warn("bbox_invalid", "bbox", req.BBox, "error", err)
			return errors.Wrap(err, "invalid bbox")
		}
		resp.SourceKind = source.KindBounds.String()
		resp.Bounds = b.String()
	default:
		return errors.New("nothing to download")
	}

	slog.Info("source_resolved", "kind", resp.SourceKind, "url", resp.ResolvedURL, "bbox", resp.Bounds)
	return nil
}

func (m *Machine) download(ctx context.Context, req *DownloadRequest, resp *DownloadResponse) error {
	settings := gpstask.Settings{NewLayer: req.NewLayer, ZoomAfterDownload: req.ZoomAfterDownload}

	var h *gpstask.Handle
	if req.Source != "" {
		var err error
		if h, err = m.task.LoadURL(settings, req.Source); err != nil {
			return err
		}
	} else {
		b, err := gpx.ParseBounds(req.BBox, ",")
		if err != nil {
			return errors.Wrap(err, "invalid bbox")
		}
		h = m.task.Download(settings, b)
	}

	select {
	case <-h.Done():
	case <-ctx.Done():
		m.task.Cancel()
		<-h.Done()
	}

	switch h.Outcome() {
	case gpstask.OutcomeSuccess:
	case gpstask.OutcomeCancelled:
		slog.Info("download_cancelled", "source", req.Source)
		return errors.ErrCancelled
	default:
		if err := h.Wait(context.Background()); err != nil {
			slog.Error("download_failed", "source", req.Source, "error", err)
			return err
		}
		return errors.New("download failed")
	}

	res := h.Result()
	if res.Track != nil {
		data := res.Track.Data()
		resp.TrackLayerID = res.Track.ID()
		resp.TrackLayerName = res.Track.Name()
		resp.Points = data.PointCount()
		resp.Partial = !data.WasCleanlyParsed
	}
	if res.Marker != nil {
		resp.MarkerLayerID = res.Marker.ID()
	}
	resp.Merged = res.TrackMerged
	resp.MarkerMerged = res.MarkerMerged

	slog.Info("download_complete",
		"task", gpstask.Title,
		"track_layer", resp.TrackLayerID,
		"name", resp.TrackLayerName,
		"merged", resp.Merged,
		"points", resp.Points)
	return nil
}
