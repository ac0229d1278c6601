package layer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/fly-io/gpsdl/pkg/gpx"
)

// Registry holds the live layers of a session in insertion order.
type Registry struct {
	mu       sync.RWMutex
	layers   []Layer
	active   Layer
	viewport *gpx.Bounds
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// AddLayer appends l. Track layers become the active layer; marker layers
// only do when nothing is active. With zoom set the viewport is moved to the
// layer bounds.
func (r *Registry) AddLayer(l Layer, zoom bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.layers = append(r.layers, l)
	if l.Kind() != KindMarker || r.active == nil {
		r.active = l
	}

	if zoom {
		if b, ok := l.Bounds(); ok {
			r.viewport = &b
		}
	}

	slog.Info("layer_added", "layer_id", l.ID(), "kind", l.Kind(), "name", l.Name(), "zoom", zoom)
}

// ActiveLayer returns the active layer, or nil.
func (r *Registry) ActiveLayer() Layer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// SetActiveLayer activates the layer with the given ID.
func (r *Registry) SetActiveLayer(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, l := range r.layers {
		if l.ID() == id {
			r.active = l
			return nil
		}
	}
	return fmt.Errorf("layer not found: %s", id)
}

// RemoveLayer drops the layer with the given ID. When it was active, the
// last remaining layer becomes active.
func (r *Registry) RemoveLayer(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, l := range r.layers {
		if l.ID() != id {
			continue
		}
		r.layers = append(r.layers[:i], r.layers[i+1:]...)
		if r.active == l {
			r.active = nil
			if n := len(r.layers); n > 0 {
				r.active = r.layers[n-1]
			}
		}
		slog.Info("layer_removed", "layer_id", id, "kind", l.Kind())
		return true
	}
	return false
}

// Orphans returns marker layers whose paired track layer is gone.
func (r *Registry) Orphans() []*MarkerLayer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make(map[string]bool, len(r.layers))
	for _, l := range r.layers {
		ids[l.ID()] = true
	}

	var out []*MarkerLayer
	for _, l := range r.layers {
		if m, ok := l.(*MarkerLayer); ok && !ids[m.FromLayer()] {
			out = append(out, m)
		}
	}
	return out
}

// Layer returns the layer with the given ID.
func (r *Registry) Layer(id string) (Layer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, l := range r.layers {
		if l.ID() == id {
			return l, true
		}
	}
	return nil, false
}

// Layers returns all layers in registry order.
func (r *Registry) Layers() []Layer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Layer(nil), r.layers...)
}

// LayersOfKind returns the layers of kind in registry order.
func (r *Registry) LayersOfKind(kind Kind) []Layer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Layer
	for _, l := range r.layers {
		if l.Kind() == kind {
			out = append(out, l)
		}
	}
	return out
}

// Viewport returns the area last zoomed to.
func (r *Registry) Viewport() (gpx.Bounds, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.viewport == nil {
		return gpx.Bounds{}, false
	}
	return *r.viewport, true
}

// SetViewport restores a persisted viewport.
func (r *Registry) SetViewport(b gpx.Bounds) {
	r.mu.Lock()
	r.viewport = &b
	r.mu.Unlock()
}
