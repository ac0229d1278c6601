// Package fsm runs a gps download as a durable workflow on top of
// superfly/fsm: resolve the source, download and integrate it, then persist
// the layer registry.
package fsm

import (
	"context"

	"github.com/fly-io/gpsdl/pkg/errors"
	"github.com/superfly/fsm"
)

// Register registers the gps download FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[DownloadRequest, DownloadResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[DownloadRequest, DownloadResponse](manager, "gps-download").
		Start(StateResolve, m.handleResolve).
		To(StateDownload, m.handleDownload).
		To(StatePersist, m.handlePersist).
		To(StateComplete, m.handleComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}
